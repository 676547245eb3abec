package tool

import (
	"log/slog"
	"strings"
	"unicode"
)

const (
	unitFields     = 6 // ID IMAGE OS ARCH STATE ADDR
	unitMinFields  = 5
	imageMinFields = 3 // NAME TAG DIGEST
)

// ParseUnits turns `list --all` output into units. The first line is the
// header. Rows with fewer than five columns are skipped.
func ParseUnits(text string) []Unit {
	units, _ := ParseUnitsReport(text)
	return units
}

// ParseUnitsReport is ParseUnits plus the number of rows skipped.
func ParseUnitsReport(text string) ([]Unit, int) {
	units := make([]Unit, 0)
	skipped := 0
	for _, line := range dataLines(text) {
		f := splitFields(line, unitFields)
		if len(f) < unitMinFields {
			skipped++
			slog.Debug("parse units: short row", "fields", len(f), "line", line)
			continue
		}
		u := Unit{ID: f[0], Image: f[1], OS: f[2], Arch: f[3], State: State(f[4])}
		if len(f) > 5 {
			u.Addr = f[5]
		}
		units = append(units, u)
	}
	return units, skipped
}

// ParseImages turns `images list` output into images. Columns past the third
// are ignored.
func ParseImages(text string) []Image {
	images, _ := ParseImagesReport(text)
	return images
}

// ParseImagesReport is ParseImages plus the number of rows skipped.
func ParseImagesReport(text string) ([]Image, int) {
	images := make([]Image, 0)
	skipped := 0
	for _, line := range dataLines(text) {
		f := strings.Fields(line)
		if len(f) < imageMinFields {
			skipped++
			slog.Debug("parse images: short row", "fields", len(f), "line", line)
			continue
		}
		images = append(images, Image{Name: f[0], Tag: f[1], Digest: f[2]})
	}
	return images, skipped
}

// dataLines splits text into lines, drops the header and blank lines.
func dataLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) <= 1 {
		return nil
	}
	out := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// splitFields splits s on runs of whitespace into at most n fields. The last
// field keeps the remainder of the line with inner spacing intact.
func splitFields(s string, n int) []string {
	var out []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for rest != "" {
		if len(out) == n-1 {
			out = append(out, strings.TrimRightFunc(rest, unicode.IsSpace))
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			out = append(out, rest)
			break
		}
		out = append(out, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return out
}
