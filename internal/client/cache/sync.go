// Package cache keeps the dashboard's local copy of server state. Reads are
// served from memory; mutations are shown immediately and then confirmed by
// refetching the affected keys in the background.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/alert"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/dashboard"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
)

// Source is the server as the synchronizer needs it. *client.API satisfies it.
type Source interface {
	ListPatients(ctx context.Context) ([]triage.Patient, error)
	DashboardStats(ctx context.Context) (*dashboard.Stats, error)
	Alerts(ctx context.Context, status alert.Status) ([]alert.Alert, error)
	Timeline(ctx context.Context, id uuid.UUID) ([]triage.TriageTransition, error)
	VitalsHistory(ctx context.Context, id uuid.UUID) ([]triage.VitalsRecord, error)
	ShiftTriage(ctx context.Context, id uuid.UUID, in triage.ShiftInput) (*triage.ShiftResult, error)
	ApplyVitals(ctx context.Context, id uuid.UUID, in triage.VitalsInput) (*triage.VitalsResult, error)
}

type Options struct {
	// PollInterval is how often Run refetches the board-wide keys.
	PollInterval time.Duration
	// FetchTimeout bounds each background refetch.
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Meta describes a key without its data.
type Meta struct {
	State     State
	Err       error
	UpdatedAt time.Time
}

type entry struct {
	data      interface{}
	state     State
	err       error
	written   uint64
	updatedAt time.Time
}

// slot holds one mutation's place in its patient's lane.
type slot struct {
	epoch uint64
	done  bool
	patch func()
}

type Synchronizer struct {
	src    Source
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu          sync.Mutex
	seq         uint64
	floor       uint64
	epoch       uint64
	entries     map[Key]*entry
	lanes       map[uuid.UUID][]*slot
	lastPatched map[uuid.UUID]time.Time
	watched     map[uuid.UUID]bool
	discarded   int
	subscribers []func(Key)
}

func New(src Source, logger zerolog.Logger, opts Options) *Synchronizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		src:    src,
		opts:   opts,
		logger: logger.With().Str("component", "cache").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.reset()
	return s
}

func (s *Synchronizer) reset() {
	s.entries = make(map[Key]*entry)
	s.lanes = make(map[uuid.UUID][]*slot)
	s.lastPatched = make(map[uuid.UUID]time.Time)
	s.watched = make(map[uuid.UUID]bool)
}

// Subscribe registers fn to be called, outside the cache lock, whenever a
// key's data or state changes.
func (s *Synchronizer) Subscribe(fn func(Key)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Synchronizer) notify(keys ...Key) {
	s.mu.Lock()
	subs := append([]func(Key){}, s.subscribers...)
	s.mu.Unlock()
	for _, k := range keys {
		for _, fn := range subs {
			fn(k)
		}
	}
}

// Watch adds a patient's timeline to every poll.
func (s *Synchronizer) Watch(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[id] = true
}

func (s *Synchronizer) nextLocked() uint64 {
	s.seq++
	return s.seq
}

func (s *Synchronizer) entryLocked(k Key) *entry {
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	return e
}

func read[T any](s *Synchronizer, k Key) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	e, ok := s.entries[k]
	if !ok {
		return zero
	}
	v, ok := e.data.(T)
	if !ok {
		return zero
	}
	return v
}

func (s *Synchronizer) Meta(k Key) Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		return Meta{}
	}
	return Meta{State: e.state, Err: e.err, UpdatedAt: e.updatedAt}
}

func (s *Synchronizer) Patients() []triage.Patient {
	return append([]triage.Patient(nil), read[[]triage.Patient](s, KeyPatients)...)
}

func (s *Synchronizer) Timeline(id uuid.UUID) []Entry {
	return append([]Entry(nil), read[[]Entry](s, TimelineKey(id))...)
}

func (s *Synchronizer) Vitals(id uuid.UUID) []triage.VitalsRecord {
	return append([]triage.VitalsRecord(nil), read[[]triage.VitalsRecord](s, VitalsKey(id))...)
}

func (s *Synchronizer) Alerts() []alert.Alert {
	return append([]alert.Alert(nil), read[[]alert.Alert](s, KeyAlerts)...)
}

func (s *Synchronizer) Stats() *dashboard.Stats {
	return read[*dashboard.Stats](s, KeyDashboardStats)
}

// Discarded counts responses dropped because a newer write had already
// landed on their key.
func (s *Synchronizer) Discarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

func (s *Synchronizer) load(ctx context.Context, k Key) (interface{}, error) {
	switch k {
	case KeyPatients:
		ps, err := s.src.ListPatients(ctx)
		if err != nil {
			return nil, err
		}
		return lo.Ternary(ps == nil, []triage.Patient{}, ps), nil
	case KeyDashboardStats:
		stats, err := s.src.DashboardStats(ctx)
		if err != nil {
			return nil, err
		}
		return stats, nil
	case KeyAlerts:
		as, err := s.src.Alerts(ctx, "")
		if err != nil {
			return nil, err
		}
		return lo.Ternary(as == nil, []alert.Alert{}, as), nil
	}

	prefix, id, ok := k.patient()
	if !ok {
		return nil, fmt.Errorf("unknown cache key %q", k)
	}
	if prefix == timelinePrefix {
		ts, err := s.src.Timeline(ctx, id)
		if err != nil {
			return nil, err
		}
		return fromTimeline(ts), nil
	}
	vs, err := s.src.VitalsHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(vs == nil, []triage.VitalsRecord{}, vs), nil
}

// Fetch loads k from the server. The response is applied only if nothing
// newer has been written to k since the fetch began. An authoritative
// response replaces whatever the key held, optimistic rows included.
func (s *Synchronizer) Fetch(ctx context.Context, k Key) error {
	s.mu.Lock()
	ticket := s.nextLocked()
	s.mu.Unlock()

	data, err := s.load(ctx, k)
	if s.apply(k, ticket, data, err) {
		s.notify(k)
	}
	return err
}

func (s *Synchronizer) apply(k Key, ticket uint64, data interface{}, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket <= s.floor {
		return false
	}
	e, exists := s.entries[k]
	if exists && ticket <= e.written {
		s.discarded++
		s.logger.Debug().Str("key", string(k)).Uint64("ticket", ticket).Uint64("written", e.written).Msg("discarding stale response")
		return false
	}
	if err != nil {
		if !exists {
			return false
		}
		e.err = err
		return true
	}

	e = s.entryLocked(k)
	if e.state == StalePendingRefetch {
		e.state = Reconciled
	} else {
		e.state = Fresh
	}
	e.data = data
	e.err = nil
	e.written = ticket
	e.updatedAt = s.opts.Now()
	return true
}

// invalidate marks keys stale. Responses to fetches begun earlier are
// discarded from here on.
func (s *Synchronizer) invalidate(keys []Key) {
	s.mu.Lock()
	for _, k := range keys {
		e := s.entryLocked(k)
		e.state = StalePendingRefetch
		e.written = s.nextLocked()
	}
	s.mu.Unlock()
	s.notify(keys...)
}

// refresh invalidates keys and refetches them in the background. Failures
// stay on each key's Meta.Err.
func (s *Synchronizer) refresh(keys []Key) {
	s.invalidate(keys)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		var g errgroup.Group
		for _, k := range keys {
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(s.ctx, s.opts.FetchTimeout)
				defer cancel()
				return s.Fetch(ctx, k)
			})
		}
		if err := g.Wait(); err != nil {
			s.logger.Warn().Err(err).Msg("background refetch failed")
		}
	}()
}

// Wait blocks until background refetches started so far have finished.
func (s *Synchronizer) Wait() {
	s.bg.Wait()
}

func (s *Synchronizer) pollKeys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []Key{KeyPatients, KeyDashboardStats, KeyAlerts}
	for id := range s.watched {
		keys = append(keys, TimelineKey(id))
	}
	return keys
}

// Poll refetches the board-wide keys and any watched timelines once.
func (s *Synchronizer) Poll(ctx context.Context) error {
	var g errgroup.Group
	for _, k := range s.pollKeys() {
		g.Go(func() error {
			return s.Fetch(ctx, k)
		})
	}
	return g.Wait()
}

// Run polls every PollInterval until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	if err := s.Poll(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("poll failed")
	}
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("poll failed")
			}
		}
	}
}

// Clear drops every key. Responses and mutations still in flight are
// ignored when they land.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	s.floor = s.seq
	s.epoch++
	s.reset()
	s.mu.Unlock()
	s.logger.Debug().Msg("cache cleared")
}

// Close stops background refetches and waits for them to return.
func (s *Synchronizer) Close() {
	s.cancel()
	s.bg.Wait()
}
