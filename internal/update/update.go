// Package update checks GitHub for newer releases of the CLI and of the
// daemon itself, and tracks which releases the user has dismissed.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cfilipov/containerdeck/internal/models"
	"github.com/cfilipov/containerdeck/internal/version"
)

// Source looks up the newest release tag of a repository.
type Source interface {
	LatestTag(ctx context.Context, repo string) (string, error)
}

// Recorder persists check results.
type Recorder interface {
	Upsert(rec models.ReleaseRecord) error
}

// History returns the results recorded by earlier runs.
type History interface {
	All() ([]models.ReleaseRecord, error)
}

// Bookmarks are the user's skip/remind choices.
type Bookmarks interface {
	SkippedVersion() (string, bool, error)
	RemindedVersion() (string, bool, error)
	SetSkippedVersion(v *string) error
	SetRemindedVersion(v *string) error
}

// Target is one product to check.
type Target struct {
	Product string
	Repo    string
	// Current returns the installed version, "" when unknown.
	Current func() string
	// Dismissible targets honour the skip/remind bookmarks.
	Dismissible bool
}

// Result is the outcome of checking one Target. Latest is empty when the
// lookup failed.
type Result struct {
	Product   string `json:"product"`
	Repo      string `json:"repo"`
	Current   string `json:"current"`
	Latest    string `json:"latest,omitempty"`
	Available bool   `json:"available"`
	Prompt    bool   `json:"prompt"`
}

type Checker struct {
	src      Source
	targets  []Target
	recorder Recorder
	marks    Bookmarks

	mu   sync.RWMutex
	last []Result
}

func NewChecker(src Source, recorder Recorder, marks Bookmarks, targets ...Target) *Checker {
	return &Checker{src: src, recorder: recorder, marks: marks, targets: targets}
}

// Check looks up every target. Targets whose installed version is unknown are
// skipped. Lookup failures are logged and leave Latest empty. When every
// target is skipped the previous results are kept.
func (c *Checker) Check(ctx context.Context) []Result {
	results := make([]Result, 0, len(c.targets))
	for _, t := range c.targets {
		current := ""
		if t.Current != nil {
			current = t.Current()
		}
		if current == "" {
			slog.Debug("update check: version unknown, skipping", "product", t.Product)
			continue
		}

		r := Result{Product: t.Product, Repo: t.Repo, Current: current}
		tag, err := c.src.LatestTag(ctx, t.Repo)
		if err != nil {
			slog.Warn("update check failed", "product", t.Product, "repo", t.Repo, "err", err)
			results = append(results, r)
			continue
		}

		r.Latest = strings.TrimPrefix(strings.TrimSpace(tag), "v")
		r.Available = version.GreaterThan(r.Latest, current)
		r.Prompt = r.Available && (!t.Dismissible || c.notDismissed(r.Latest))

		if c.recorder != nil {
			err := c.recorder.Upsert(models.ReleaseRecord{
				Product:   r.Product,
				Repo:      r.Repo,
				Current:   r.Current,
				Latest:    r.Latest,
				Available: r.Available,
			})
			if err != nil {
				slog.Warn("update check: record", "product", t.Product, "err", err)
			}
		}

		slog.Info("update check", "product", r.Product, "current", r.Current, "latest", r.Latest, "available", r.Available)
		results = append(results, r)
	}

	if len(results) == 0 {
		return results
	}
	c.mu.Lock()
	c.last = results
	c.mu.Unlock()
	return results
}

// Restore seeds Last with the results recorded by a previous run so clients
// see update info before the first check of this run. Records for products
// or repositories that are no longer configured are ignored. It does nothing
// once a Check has produced results.
func (c *Checker) Restore(h History) error {
	recs, err := h.All()
	if err != nil {
		return fmt.Errorf("restore release history: %w", err)
	}

	var results []Result
	for _, t := range c.targets {
		for _, rec := range recs {
			if rec.Product != t.Product || rec.Repo != t.Repo {
				continue
			}
			r := Result{
				Product:   rec.Product,
				Repo:      rec.Repo,
				Current:   rec.Current,
				Latest:    rec.Latest,
				Available: rec.Available,
			}
			r.Prompt = r.Available && (!t.Dismissible || c.notDismissed(r.Latest))
			results = append(results, r)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.last) == 0 {
		c.last = results
	}
	return nil
}

// Last returns the results of the most recent Check.
func (c *Checker) Last() []Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Result(nil), c.last...)
}

// ShouldPrompt reports whether latest is newer than current and has been
// neither skipped nor reminded about.
func (c *Checker) ShouldPrompt(current, latest string) bool {
	if latest == "" || !version.GreaterThan(latest, current) {
		return false
	}
	return c.notDismissed(latest)
}

// Skip stops prompting for v.
func (c *Checker) Skip(v string) error {
	if err := c.marks.SetSkippedVersion(&v); err != nil {
		return err
	}
	c.RefreshPrompts()
	return nil
}

// RemindLater records that the user was reminded about v. v will not prompt
// again; a newer release will.
func (c *Checker) RemindLater(v string) error {
	if err := c.marks.SetRemindedVersion(&v); err != nil {
		return err
	}
	c.RefreshPrompts()
	return nil
}

func (c *Checker) notDismissed(latest string) bool {
	if c.marks == nil {
		return true
	}
	if v, ok, err := c.marks.SkippedVersion(); err == nil && ok && v == latest {
		return false
	}
	if v, ok, err := c.marks.RemindedVersion(); err == nil && ok && v == latest {
		return false
	}
	return true
}

// RefreshPrompts recomputes Prompt on the cached results after a bookmark
// changed.
func (c *Checker) RefreshPrompts() {
	dismissible := make(map[string]bool, len(c.targets))
	for _, t := range c.targets {
		dismissible[t.Product] = t.Dismissible
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.last {
		r := &c.last[i]
		r.Prompt = r.Available && (!dismissible[r.Product] || c.notDismissed(r.Latest))
	}
}
