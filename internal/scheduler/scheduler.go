// Package scheduler polls the CLI while a client is watching and rate limits
// update checks.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultCooldown = time.Hour
)

// Refresher is the store surface the scheduler drives.
type Refresher interface {
	Refresh()
	RefreshRunningStatus()
}

// UpdateChecker runs one update check. It reports false when nothing was
// looked up, for example because no installed version is known yet; such a
// check does not start the cooldown.
type UpdateChecker interface {
	CheckForUpdates(ctx context.Context) bool
}

// UpdateCheckerFunc adapts a func to UpdateChecker.
type UpdateCheckerFunc func(ctx context.Context) bool

func (f UpdateCheckerFunc) CheckForUpdates(ctx context.Context) bool { return f(ctx) }

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }
func WithCooldown(d time.Duration) Option { return func(s *Scheduler) { s.cooldown = d } }

// WithClock replaces time.Now for the cooldown.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// Scheduler is Inactive until SetActive(true). While Active it refreshes the
// store every interval. All state below is owned by the Run goroutine.
type Scheduler struct {
	store    Refresher
	checker  UpdateChecker
	interval time.Duration
	cooldown time.Duration
	now      func() time.Time

	activeCh  chan activeRequest
	checkCh   chan struct{}
	checkedCh chan time.Time
	done      chan struct{}

	active    bool
	lastCheck time.Time
	ticker    *time.Ticker

	refreshing atomic.Bool
	checking   atomic.Bool
	isActive   atomic.Bool
}

func New(store Refresher, checker UpdateChecker, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		checker:  checker,
		interval: DefaultInterval,
		cooldown: DefaultCooldown,
		now:      time.Now,
		activeCh:  make(chan activeRequest),
		checkCh:   make(chan struct{}),
		checkedCh: make(chan time.Time),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type activeRequest struct {
	active  bool
	applied chan struct{}
}

// SetActive moves the scheduler between Inactive and Active. It blocks until
// Run has applied the transition, so Active reflects it on return. It returns
// immediately once Run has exited.
func (s *Scheduler) SetActive(active bool) {
	req := activeRequest{active: active, applied: make(chan struct{})}
	select {
	case s.activeCh <- req:
	case <-s.done:
		return
	}
	select {
	case <-req.applied:
	case <-s.done:
	}
}

// RequestUpdateCheck asks for an update check subject to the cooldown.
func (s *Scheduler) RequestUpdateCheck() {
	select {
	case s.checkCh <- struct{}{}:
	case <-s.done:
	}
}

// Active reports the last accepted state.
func (s *Scheduler) Active() bool {
	return s.isActive.Load()
}

// Run owns the scheduler state until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	defer s.stopTicker()

	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}

		select {
		case <-ctx.Done():
			return

		case req := <-s.activeCh:
			s.transition(ctx, req.active)
			close(req.applied)

		case <-s.checkCh:
			s.maybeCheck(ctx)

		case at := <-s.checkedCh:
			s.lastCheck = at

		case <-tick:
			s.tick()
		}
	}
}

func (s *Scheduler) transition(ctx context.Context, active bool) {
	if active == s.active {
		return
	}
	s.active = active
	s.isActive.Store(active)

	if !active {
		s.stopTicker()
		slog.Debug("scheduler inactive")
		return
	}

	s.ticker = time.NewTicker(s.interval)
	slog.Debug("scheduler active", "interval", s.interval)
	s.maybeCheck(ctx)
}

// tick starts a refresh unless the previous one is still running.
func (s *Scheduler) tick() {
	if !s.refreshing.CompareAndSwap(false, true) {
		slog.Debug("scheduler tick skipped, refresh in flight")
		return
	}
	go func() {
		defer s.refreshing.Store(false)
		s.store.Refresh()
		s.store.RefreshRunningStatus()
	}()
}

// maybeCheck runs an update check if the cooldown has elapsed since the last
// one. The cooldown starts at the time the check started, and only once the
// checker reports it looked something up.
func (s *Scheduler) maybeCheck(ctx context.Context) {
	if s.checker == nil {
		return
	}
	now := s.now()
	if !s.lastCheck.IsZero() && now.Sub(s.lastCheck) < s.cooldown {
		slog.Debug("update check skipped, cooldown", "remaining", s.cooldown-now.Sub(s.lastCheck))
		return
	}
	if !s.checking.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.checking.Store(false)
		if !s.checker.CheckForUpdates(ctx) {
			slog.Debug("update check looked nothing up, cooldown not started")
			return
		}
		select {
		case s.checkedCh <- now:
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
