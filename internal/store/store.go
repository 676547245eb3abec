// Package store keeps the current view of units, images and the system
// running flag, refreshed from the CLI.
package store

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/cfilipov/containerdeck/internal/tool"
)

// Lister is the slice of the CLI the store reads from.
type Lister interface {
	ListUnits() ([]tool.Unit, bool)
	ListImages() ([]tool.Image, bool)
	SystemRunning() bool
}

// Kind names which part of the snapshot changed.
type Kind int

const (
	KindUnits Kind = iota
	KindImages
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindUnits:
		return "units"
	case KindImages:
		return "images"
	default:
		return "system"
	}
}

// Change is delivered to subscribers after a refresh replaced a value with a
// different one.
type Change struct {
	Kind Kind
}

// Snapshot is a consistent copy of everything the store holds.
type Snapshot struct {
	Units   []tool.Unit  `json:"units"`
	Images  []tool.Image `json:"images"`
	Running bool         `json:"running"`
}

// Store owns the unit and image lists and the running flag. Readers always
// get copies; refreshes replace each list in one assignment.
type Store struct {
	src Lister

	// refreshMu serializes refreshes and Exclusive callers.
	refreshMu sync.Mutex

	mu      sync.RWMutex
	units   []tool.Unit
	images  []tool.Image
	running bool

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func New(src Lister) *Store {
	return &Store{
		src:    src,
		units:  []tool.Unit{},
		images: []tool.Image{},
		subs:   make(map[int]func(Change)),
	}
}

// Units returns a copy of the current unit list.
func (s *Store) Units() []tool.Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.units)
}

// Images returns a copy of the current image list.
func (s *Store) Images() []tool.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.images)
}

func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Units:   slices.Clone(s.units),
		Images:  slices.Clone(s.images),
		Running: s.running,
	}
}

// ImagesByID indexes the current images by identifier. Later duplicates
// overwrite earlier ones.
func (s *Store) ImagesByID() map[string]tool.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]tool.Image, len(s.images))
	for _, img := range s.images {
		m[img.ID()] = img
	}
	return m
}

// ImageByID resolves one identifier against the current images.
func (s *Store) ImageByID(id string) (tool.Image, bool) {
	img, ok := s.ImagesByID()[id]
	return img, ok
}

// Refresh reloads units and then images.
func (s *Store) Refresh() {
	s.Exclusive(func(l Locked) {
		l.RefreshUnits()
		l.RefreshImages()
	})
}

// RefreshUnits reloads the unit list. A launch failure keeps the previous list.
func (s *Store) RefreshUnits() {
	s.Exclusive(func(l Locked) { l.RefreshUnits() })
}

// RefreshImages reloads the image list. A launch failure keeps the previous list.
func (s *Store) RefreshImages() {
	s.Exclusive(func(l Locked) { l.RefreshImages() })
}

// RefreshRunningStatus re-probes the system service.
func (s *Store) RefreshRunningStatus() {
	s.Exclusive(func(l Locked) { l.RefreshRunningStatus() })
}

// Exclusive runs fn with every other refresh and Exclusive caller held off.
// Batch operations use it so their commands and the refresh that follows
// cannot interleave with a polling tick.
func (s *Store) Exclusive(fn func(Locked)) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	fn(Locked{s: s})
}

// Locked exposes the refresh operations to an Exclusive callback. It must not
// escape the callback.
type Locked struct {
	s *Store
}

func (l Locked) RefreshUnits() {
	s := l.s
	units, ok := s.src.ListUnits()
	if !ok {
		slog.Debug("refresh units: listing unavailable, keeping snapshot")
		return
	}
	if units == nil {
		units = []tool.Unit{}
	}

	s.mu.Lock()
	changed := !slices.Equal(s.units, units)
	s.units = units
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: KindUnits})
	}
}

func (l Locked) RefreshImages() {
	s := l.s
	images, ok := s.src.ListImages()
	if !ok {
		slog.Debug("refresh images: listing unavailable, keeping snapshot")
		return
	}
	if images == nil {
		images = []tool.Image{}
	}

	s.mu.Lock()
	changed := !slices.Equal(s.images, images)
	s.images = images
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: KindImages})
	}
}

func (l Locked) RefreshRunningStatus() {
	s := l.s
	running := s.src.SystemRunning()

	s.mu.Lock()
	changed := s.running != running
	s.running = running
	s.mu.Unlock()

	if changed {
		slog.Info("system running changed", "running", running)
		s.notify(Change{Kind: KindSystem})
	}
}

// Subscribe registers fn for change notifications. fn runs on the refreshing
// goroutine with the refresh lock held: it must not block or refresh. The
// returned func unsubscribes.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
