// Package runner invokes the external container CLI and captures its output.
package runner

import (
	"bytes"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner runs a program to completion and returns its combined output.
//
// ok is false only when the program could not be launched. A program that
// starts and exits non-zero still yields its output with ok == true; callers
// decide what the text means.
type Runner interface {
	Run(path string, args ...string) (out string, ok bool)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

// Run launches path with args, merging stdout and stderr into one buffer.
func (Exec) Run(path string, args ...string) (string, bool) {
	cmd := exec.Command(path, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		slog.Debug("runner launch", "path", path, "args", args, "err", err)
		return "", false
	}

	// Exit status is carried in the output, not in ok.
	err := cmd.Wait()
	slog.Debug("runner exec", "path", path, "args", args, "elapsed", time.Since(start), "err", err)

	return strings.ToValidUTF8(buf.String(), "�"), true
}
