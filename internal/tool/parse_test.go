package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unitHeader = "ID          IMAGE                                   OS     ARCH   STATE    ADDR\n"

func TestParseUnits(t *testing.T) {
	t.Parallel()

	text := unitHeader +
		"web         docker.io/library/nginx:latest      linux  arm64  running  192.168.64.3\n" +
		"db          docker.io/library/postgres:16       linux  arm64  stopped\n"

	units := ParseUnits(text)
	require.Len(t, units, 2)
	assert.Equal(t, Unit{
		ID: "web", Image: "docker.io/library/nginx:latest", OS: "linux", Arch: "arm64",
		State: StateRunning, Addr: "192.168.64.3",
	}, units[0])
	assert.Equal(t, "db", units[1].ID)
	assert.Equal(t, StateStopped, units[1].State)
	assert.Equal(t, "", units[1].Addr)
	assert.True(t, units[0].Running())
	assert.False(t, units[1].Running())
}

func TestParseUnitsHeaderOnly(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseUnits(unitHeader))
	assert.Empty(t, ParseUnits(""))
	assert.Empty(t, ParseUnits("ID IMAGE OS ARCH STATE ADDR"))
}

func TestParseUnitsAddressKeepsRemainder(t *testing.T) {
	t.Parallel()

	text := unitHeader + "a img linux amd64 running 10.0.0.2,  fd00::2  \n"
	units := ParseUnits(text)
	require.Len(t, units, 1)
	assert.Equal(t, "10.0.0.2,  fd00::2", units[0].Addr)
}

func TestParseUnitsUnknownStateVerbatim(t *testing.T) {
	t.Parallel()

	units := ParseUnits(unitHeader + "a img linux amd64 paused\n")
	require.Len(t, units, 1)
	assert.Equal(t, State("paused"), units[0].State)
}

func TestParseUnitsSkipsShortAndBlankRows(t *testing.T) {
	t.Parallel()

	text := unitHeader +
		"\n" +
		"broken row here\n" +
		"   \r\n" +
		"ok img linux arm64 running\r\n"

	units, skipped := ParseUnitsReport(text)
	require.Len(t, units, 1)
	assert.Equal(t, "ok", units[0].ID)
	assert.Equal(t, StateRunning, units[0].State, "trailing CR must not leak into the last column")
	assert.Equal(t, 1, skipped)
}

func TestParseUnitsLeadingWhitespace(t *testing.T) {
	t.Parallel()

	units := ParseUnits(unitHeader + "\t  a   img   linux   arm64   stopped   \n")
	require.Len(t, units, 1)
	assert.Equal(t, Unit{ID: "a", Image: "img", OS: "linux", Arch: "arm64", State: StateStopped}, units[0])
}

func TestParseImages(t *testing.T) {
	t.Parallel()

	text := "NAME                         TAG     DIGEST\n" +
		"docker.io/library/alpine     latest  sha256:4bcff63911fcb4448bd4fdacec207030997caf25e9bea4045fa6c8c44de311d1\n" +
		"ghcr.io/acme/tool            1.2     sha256:aaaa   extra columns ignored\n" +
		"short row\n"

	images, skipped := ParseImagesReport(text)
	require.Len(t, images, 2)
	assert.Equal(t, 1, skipped)

	alpine := images[0]
	assert.Equal(t, "docker.io/library/alpine", alpine.Name)
	assert.Equal(t, "latest", alpine.Tag)
	assert.Equal(t, "docker.io/library/alpine:latest@sha256:4bcff63911fcb4448bd4fdacec207030997caf25e9bea4045fa6c8c44de311d1", alpine.ID())
	assert.Equal(t, "docker.io/library/alpine:latest", alpine.Reference())
	assert.Equal(t, "alpine", alpine.FamiliarName())
	assert.Equal(t, "4bcff63911fc", alpine.ShortDigest())

	assert.Equal(t, "ghcr.io/acme/tool:1.2@sha256:aaaa", images[1].ID())
	assert.Equal(t, "ghcr.io/acme/tool", images[1].FamiliarName())
}

func TestParseImagesEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseImages("NAME TAG DIGEST\n"))
	assert.Empty(t, ParseImages(""))
}

func TestFamiliarNameInvalid(t *testing.T) {
	t.Parallel()

	img := Image{Name: "Not A Valid Ref", Tag: "x", Digest: "d"}
	assert.Equal(t, "Not A Valid Ref", img.FamiliarName())
}

func TestSplitFields(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c d  e"}, splitFields("a b   c d  e ", 3))
	assert.Equal(t, []string{"a", "b"}, splitFields("  a b", 3))
	assert.Nil(t, splitFields("   ", 3))
}
