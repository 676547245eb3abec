package tool

import (
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/pkg/stringid"
)

// State is the lifecycle token reported in the STATE column. Values other
// than the named constants are kept verbatim.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Unit is one row of `list --all`.
type Unit struct {
	ID    string `json:"id"`
	Image string `json:"image"`
	OS    string `json:"os"`
	Arch  string `json:"arch"`
	State State  `json:"state"`
	Addr  string `json:"addr"`
}

func (u Unit) Running() bool { return u.State == StateRunning }

// Image is one row of `images list`.
type Image struct {
	Name   string `json:"name"`
	Tag    string `json:"tag"`
	Digest string `json:"digest"`
}

// ID is the identifier used to select images: name:tag@digest.
func (i Image) ID() string {
	return i.Name + ":" + i.Tag + "@" + i.Digest
}

// Reference is the argument passed to `image delete`.
func (i Image) Reference() string {
	return i.Name + ":" + i.Tag
}

// ShortDigest is the digest hex truncated for display.
func (i Image) ShortDigest() string {
	d := i.Digest
	if _, hex, ok := strings.Cut(d, ":"); ok {
		d = hex
	}
	return stringid.TruncateID(d)
}

// FamiliarName renders Name the way users type it (library/ and the default
// registry dropped). Names that are not valid references are returned as is.
func (i Image) FamiliarName() string {
	named, err := reference.ParseNormalizedNamed(i.Name)
	if err != nil {
		return i.Name
	}
	return reference.FamiliarName(named)
}
