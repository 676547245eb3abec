// Package batch applies one lifecycle verb to a set of units or images, one
// CLI invocation at a time, and reports the collected output.
package batch

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cfilipov/containerdeck/internal/store"
)

// Verb is a batch operation.
type Verb string

const (
	StartUnits      Verb = "startUnits"
	StopUnits       Verb = "stopUnits"
	KillUnits       Verb = "killUnits"
	DeleteUnits     Verb = "deleteUnits"
	DeleteAllUnits  Verb = "deleteAllUnits"
	DeleteImages    Verb = "deleteImages"
	DeleteAllImages Verb = "deleteAllImages"
	PruneImages     Verb = "pruneImages"
	SystemStart     Verb = "startSystem"
	SystemStop      Verb = "stopSystem"
)

const (
	allUnitsDeletedMsg  = "All containers have been deleted."
	allImagesDeletedMsg = "All images have been deleted."
)

// CLI is the set of CLI verbs the executor needs.
type CLI interface {
	Start(id string) (string, bool)
	Stop(id string) (string, bool)
	Kill(id string) (string, bool)
	Delete(id string) (string, bool)
	DeleteAll() (string, bool)
	ImageDelete(ref string) (string, bool)
	ImageDeleteAll() (string, bool)
	ImagePrune() (string, bool)
	SystemStart() (string, bool)
	SystemStop() (string, bool)
}

// Entry is the outcome of one invocation. Output is empty when the CLI could
// not be launched or printed nothing.
type Entry struct {
	Target string `json:"target"`
	Output string `json:"output"`
}

// Result is the aggregated outcome of a batch.
type Result struct {
	Verb    Verb    `json:"verb"`
	Title   string  `json:"title"`
	Entries []Entry `json:"results"`
	Message string  `json:"msg"`
}

// Executor runs batches. Batches never overlap with each other or with a
// store refresh.
type Executor struct {
	cli   CLI
	store *store.Store

	// Progress, when set, receives each entry as soon as it finishes.
	Progress io.Writer

	mu sync.Mutex
}

func New(cli CLI, st *store.Store) *Executor {
	return &Executor{cli: cli, store: st}
}

// Run applies verb to targets. Targets are unit identifiers for unit verbs
// and image identifiers (name:tag@digest) for DeleteImages; whole-collection
// verbs ignore them. Duplicate targets run once.
func (e *Executor) Run(verb Verb, targets []string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	targets = dedupe(targets)
	res := Result{Verb: verb, Entries: []Entry{}}

	switch verb {
	case StartUnits, StopUnits, KillUnits, DeleteUnits:
		if len(targets) == 0 {
			return res
		}
		res.Title = unitTitle(verb, len(targets))
		e.store.Exclusive(func(l store.Locked) {
			for _, id := range targets {
				res.Entries = append(res.Entries, e.entry(id, e.unitFn(verb), id))
			}
			l.RefreshUnits()
		})

	case DeleteAllUnits:
		res.Title = "All Containers Deleted"
		e.store.Exclusive(func(l store.Locked) {
			res.Entries = append(res.Entries, e.entry("--all", func(string) (string, bool) { return e.cli.DeleteAll() }, ""))
			l.RefreshUnits()
		})

	case DeleteImages:
		if len(targets) == 0 {
			return res
		}
		byID := e.store.ImagesByID()
		var refs []string
		for _, id := range targets {
			img, ok := byID[id]
			if !ok {
				slog.Debug("batch: image not in snapshot", "id", id)
				continue
			}
			refs = append(refs, img.Reference())
		}
		res.Title = countTitle(len(targets), "Image", "Images", "Deleted")
		e.store.Exclusive(func(l store.Locked) {
			for _, ref := range refs {
				res.Entries = append(res.Entries, e.entry(ref, e.cli.ImageDelete, ref))
			}
			l.RefreshImages()
		})

	case DeleteAllImages:
		res.Title = "All Images Deleted"
		e.store.Exclusive(func(l store.Locked) {
			res.Entries = append(res.Entries, e.entry("--all", func(string) (string, bool) { return e.cli.ImageDeleteAll() }, ""))
			l.RefreshImages()
		})

	case PruneImages:
		res.Title = "Images Pruned"
		e.store.Exclusive(func(l store.Locked) {
			res.Entries = append(res.Entries, e.entry("prune", func(string) (string, bool) { return e.cli.ImagePrune() }, ""))
			l.RefreshImages()
		})

	case SystemStart, SystemStop:
		res.Title = "System Started"
		fn := e.cli.SystemStart
		if verb == SystemStop {
			res.Title = "System Stopped"
			fn = e.cli.SystemStop
		}
		e.store.Exclusive(func(l store.Locked) {
			res.Entries = append(res.Entries, e.entry("system", func(string) (string, bool) { return fn() }, ""))
			l.RefreshRunningStatus()
			l.RefreshUnits()
			l.RefreshImages()
		})

	default:
		slog.Warn("batch: unknown verb", "verb", verb)
		return res
	}

	res.Message = aggregate(res.Entries)
	if strings.TrimSpace(res.Message) == "" {
		switch verb {
		case DeleteAllUnits:
			res.Message = allUnitsDeletedMsg
		case DeleteAllImages:
			res.Message = allImagesDeletedMsg
		}
	}

	slog.Info("batch done", "verb", verb, "targets", len(res.Entries), "title", res.Title)
	return res
}

func (e *Executor) unitFn(verb Verb) func(string) (string, bool) {
	switch verb {
	case StartUnits:
		return e.cli.Start
	case StopUnits:
		return e.cli.Stop
	case KillUnits:
		return e.cli.Kill
	default:
		return e.cli.Delete
	}
}

// entry runs fn(arg), logs a launch failure and forwards the output to
// Progress.
func (e *Executor) entry(target string, fn func(string) (string, bool), arg string) Entry {
	out, ok := fn(arg)
	if !ok {
		slog.Warn("batch: cli did not launch", "target", target)
	}
	if e.Progress != nil && out != "" {
		if _, err := io.WriteString(e.Progress, out+"\n"); err != nil {
			slog.Debug("batch progress write", "err", err)
		}
	}
	return Entry{Target: target, Output: out}
}

// aggregate joins entry outputs with a blank line between entries.
func aggregate(entries []Entry) string {
	parts := make([]string, len(entries))
	for i, en := range entries {
		parts[i] = strings.TrimRight(en.Output, "\n")
	}
	return strings.Join(parts, "\n\n")
}

func unitTitle(verb Verb, n int) string {
	past := map[Verb]string{
		StartUnits:  "Started",
		StopUnits:   "Stopped",
		KillUnits:   "Killed",
		DeleteUnits: "Deleted",
	}[verb]
	return countTitle(n, "Container", "Containers", past)
}

// countTitle renders "Container Deleted" for one and "3 Containers Deleted"
// otherwise.
func countTitle(n int, singular, plural, past string) string {
	if n == 1 {
		return singular + " " + past
	}
	return fmt.Sprintf("%d %s %s", n, plural, past)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
