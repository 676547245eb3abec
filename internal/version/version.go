// Package version compares release version strings leniently and checks the
// installed CLI against a minimum supported version.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Ordering is the result of Compare.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// Triple is a parsed version. Parse never fails: unparseable components are 0.
type Triple struct {
	Major      int
	Minor      int
	Patch      int
	PreRelease bool
}

// Parse strips one leading "v", cuts the string at the first "-" (marking it a
// pre-release) and reads up to three dot-separated integers.
func Parse(s string) Triple {
	s = strings.TrimPrefix(s, "v")

	var t Triple
	if i := strings.IndexByte(s, '-'); i >= 0 {
		t.PreRelease = true
		s = s[:i]
	}

	parts := strings.SplitN(s, ".", 4)
	nums := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			n = 0
		}
		nums[i] = n
	}
	t.Major, t.Minor, t.Patch = nums[0], nums[1], nums[2]
	return t
}

func (t Triple) String() string {
	s := fmt.Sprintf("%d.%d.%d", t.Major, t.Minor, t.Patch)
	if t.PreRelease {
		s += "-pre"
	}
	return s
}

// Compare orders two triples. Numeric components win; on a numeric tie a
// release sorts above a pre-release.
func (t Triple) Compare(o Triple) Ordering {
	for _, p := range [][2]int{{t.Major, o.Major}, {t.Minor, o.Minor}, {t.Patch, o.Patch}} {
		if p[0] < p[1] {
			return Less
		}
		if p[0] > p[1] {
			return Greater
		}
	}
	switch {
	case t.PreRelease == o.PreRelease:
		return Equal
	case t.PreRelease:
		return Less
	default:
		return Greater
	}
}

// Compare orders version strings a and b.
func Compare(a, b string) Ordering {
	return Parse(a).Compare(Parse(b))
}

func GreaterThan(a, b string) bool        { return Compare(a, b) == Greater }
func LessThan(a, b string) bool           { return Compare(a, b) == Less }
func EqualTo(a, b string) bool            { return Compare(a, b) == Equal }
func GreaterThanOrEqual(a, b string) bool { return Compare(a, b) != Less }
func LessThanOrEqual(a, b string) bool    { return Compare(a, b) != Greater }

var cliVersionRe = regexp.MustCompile(`version\s+(\d+\.\d+\.\d+)`)

// Extract pulls the dotted version out of `--version` output such as
// "container CLI version 0.1.0 (build: release, commit: 0fd8692)". Output
// without that shape is returned trimmed and without a leading "v".
func Extract(raw string) string {
	if m := cliVersionRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return strings.TrimPrefix(strings.TrimSpace(raw), "v")
}

// Satisfies reports whether current meets constraint (Masterminds syntax,
// e.g. ">= 0.1.0"). An empty constraint is always satisfied.
func Satisfies(current, constraint string) (bool, error) {
	if strings.TrimSpace(constraint) == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("parse constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("parse version %q: %w", current, err)
	}
	return c.Check(v), nil
}
