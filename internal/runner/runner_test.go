package runner

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	const sh = "/bin/sh"
	if _, err := os.Stat(sh); err != nil {
		t.Skip("no /bin/sh")
	}
	return sh
}

func TestExecMergesStdoutAndStderr(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	out, ok := Exec{}.Run(sh, "-c", "echo out; echo err 1>&2")
	require.True(t, ok)
	assert.Contains(t, out, "out\n")
	assert.Contains(t, out, "err\n")
}

func TestExecNonZeroExitIsNotFailure(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	out, ok := Exec{}.Run(sh, "-c", "echo boom; exit 3")
	assert.True(t, ok)
	assert.Equal(t, "boom\n", out)
}

func TestExecLaunchFailure(t *testing.T) {
	t.Parallel()

	out, ok := Exec{}.Run(filepath.Join(t.TempDir(), "missing-binary"))
	assert.False(t, ok)
	assert.Empty(t, out)
}

func TestExecNotExecutable(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits")
	}

	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))

	out, ok := Exec{}.Run(path)
	assert.False(t, ok)
	assert.Empty(t, out)
}

func TestExecEmptyOutput(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	out, ok := Exec{}.Run(sh, "-c", "true")
	assert.True(t, ok)
	assert.Equal(t, "", out)
}

func TestFakePrefixMatching(t *testing.T) {
	t.Parallel()

	f := NewFake()
	f.SetOutput("short", "list")
	f.SetOutput("long", "list", "--all")

	out, ok := f.Run("/x", "list")
	assert.True(t, ok)
	assert.Equal(t, "short", out)

	out, _ = f.Run("/x", "list", "--all")
	assert.Equal(t, "long", out)

	out, _ = f.Run("/x", "lister")
	assert.Equal(t, "", out, "prefix must match on word boundaries")

	assert.Equal(t, []string{"list", "list --all", "lister"}, f.CallStrings())
}

func TestFakeLaunchFailureAndHooks(t *testing.T) {
	t.Parallel()

	f := NewFake()
	hits := 0
	f.OnRun(func() { hits++ }, "start")

	f.Run("/x", "start", "web")
	assert.Equal(t, 1, hits)

	f.SetLaunchFailure(true)
	out, ok := f.Run("/x", "start", "web")
	assert.False(t, ok)
	assert.Empty(t, out)
	assert.Equal(t, 1, hits, "hooks do not run when launch fails")
	assert.Len(t, f.Calls(), 2)

	f.Reset()
	assert.Empty(t, f.Calls())
}
