// Package tool speaks to the external container CLI: it names the verbs the
// daemon uses, parses the CLI's tabular listings and watches the binary for
// upgrades.
package tool

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/cfilipov/containerdeck/internal/runner"
	"github.com/cfilipov/containerdeck/internal/version"
)

const (
	// DefaultPath is where the CLI installer puts the binary.
	DefaultPath = "/usr/local/bin/container"

	// notRunningMarker appears in any command's output while the system
	// service is down.
	notRunningMarker = "XPC connection error"
)

// Tool binds a Runner to the CLI binary path. The path may change at runtime
// (SetPath) when the binary is relocated.
type Tool struct {
	run runner.Runner

	mu   sync.RWMutex
	path string
}

func New(r runner.Runner, path string) *Tool {
	if path == "" {
		path = DefaultPath
	}
	return &Tool{run: r, path: path}
}

func (t *Tool) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

func (t *Tool) SetPath(path string) {
	t.mu.Lock()
	t.path = path
	t.mu.Unlock()
}

func (t *Tool) exec(args ...string) (string, bool) {
	return t.run.Run(t.Path(), args...)
}

// Discover asks `which container` for the binary location. It returns "" when
// the lookup fails or prints nothing.
func Discover(r runner.Runner) string {
	out, ok := r.Run("/usr/bin/which", "container")
	if !ok {
		return ""
	}
	return strings.TrimSpace(out)
}

// Version runs `--version` and extracts the dotted version. ok is false when
// the binary could not be launched.
func (t *Tool) Version() (raw, v string, ok bool) {
	out, ok := t.exec("--version")
	if !ok {
		return "", "", false
	}
	raw = strings.TrimSpace(out)
	return raw, version.Extract(raw), true
}

// SystemRunning probes with a plain `list`. A launch failure or the XPC
// marker both mean the system service is down.
func (t *Tool) SystemRunning() bool {
	out, ok := t.exec("list")
	if !ok {
		return false
	}
	running := !strings.Contains(out, notRunningMarker)
	slog.Debug("system probe", "running", running)
	return running
}

// ListUnits runs `list --all`. ok is false on launch failure, in which case
// callers keep what they had.
func (t *Tool) ListUnits() ([]Unit, bool) {
	out, ok := t.exec("list", "--all")
	if !ok {
		return nil, false
	}
	units, skipped := ParseUnitsReport(out)
	if skipped > 0 {
		slog.Debug("list units: skipped rows", "skipped", skipped)
	}
	return units, true
}

// ListImages runs `images list`.
func (t *Tool) ListImages() ([]Image, bool) {
	out, ok := t.exec("images", "list")
	if !ok {
		return nil, false
	}
	images, skipped := ParseImagesReport(out)
	if skipped > 0 {
		slog.Debug("list images: skipped rows", "skipped", skipped)
	}
	return images, true
}

func (t *Tool) SystemStart() (string, bool)      { return t.exec("system", "start") }
func (t *Tool) SystemStop() (string, bool)       { return t.exec("system", "stop") }
func (t *Tool) Start(id string) (string, bool)   { return t.exec("start", id) }
func (t *Tool) Stop(id string) (string, bool)    { return t.exec("stop", id) }
func (t *Tool) Kill(id string) (string, bool)    { return t.exec("kill", id) }
func (t *Tool) Delete(id string) (string, bool)  { return t.exec("delete", id) }
func (t *Tool) DeleteAll() (string, bool)        { return t.exec("delete", "--all") }
func (t *Tool) ImagePrune() (string, bool)       { return t.exec("image", "prune") }
func (t *Tool) ImageDeleteAll() (string, bool)   { return t.exec("image", "delete", "--all") }
func (t *Tool) ImageDelete(ref string) (string, bool) {
	return t.exec("image", "delete", ref)
}
