// Package retention implements the higher-level retention policy the
// engine itself deliberately does not: periodic garbage collection of
// negotiations that reached a terminal state more than a configured window
// ago.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// TerminalRecord is one negotiation the Store tracks for eventual sweeping.
type TerminalRecord struct {
	NegotiationID string
	TerminalAt    time.Time
}

// Store is the minimal surface a retention Sweeper needs: enumerate
// terminal negotiations and delete the ones past the window. Deliberately
// decoupled from negotiation.Session so the sweeper has no dependency on
// the engine package.
type Store interface {
	ListTerminal() []TerminalRecord
	Delete(negotiationID string)
}

// MemoryStore is a mutex-guarded in-memory Store, suitable for wiring a
// negotiation.RunDefaults.RegisterSession callback into.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]TerminalRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]TerminalRecord)}
}

// MarkTerminal records negotiationID as having reached a terminal state at
// terminalAt. Call this from the engine's terminal-state transition point
// (or from an EventPusher observing plan.ready).
func (s *MemoryStore) MarkTerminal(negotiationID string, terminalAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[negotiationID] = TerminalRecord{NegotiationID: negotiationID, TerminalAt: terminalAt}
}

func (s *MemoryStore) ListTerminal() []TerminalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TerminalRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

func (s *MemoryStore) Delete(negotiationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, negotiationID)
}

// Sweeper periodically deletes terminal negotiations older than Window.
type Sweeper struct {
	store  Store
	window time.Duration
	logger *slog.Logger

	cron     *cron.Cron
	entryID  cron.EntryID
	nowFunc  func() time.Time
}

// NewSweeper builds a Sweeper that deletes every terminal record older than
// window. The schedule (standard 5-field cron expression) is given to Start.
func NewSweeper(store Store, window time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:   store,
		window:  window,
		logger:  logger,
		cron:    cron.New(),
		nowFunc: time.Now,
	}
}

// Start schedules the sweep on the given cron expression and begins
// running it in the background. Returns an error if the expression is
// invalid.
func (s *Sweeper) Start(schedule string) error {
	id, err := s.cron.AddFunc(schedule, func() { s.sweepOnce() })
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop halts the background schedule, waiting for any in-flight sweep to
// finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SweepNow runs one sweep pass synchronously, outside the cron schedule.
// Exposed for tests and for callers that sweep on demand.
func (s *Sweeper) SweepNow(_ context.Context) int {
	return s.sweepOnce()
}

func (s *Sweeper) sweepOnce() int {
	cutoff := s.nowFunc().Add(-s.window)
	removed := 0
	for _, rec := range s.store.ListTerminal() {
		if rec.TerminalAt.Before(cutoff) {
			s.store.Delete(rec.NegotiationID)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("retention sweep removed terminal negotiations", "count", removed)
	}
	return removed
}
