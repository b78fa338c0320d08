// Package scanner polls the equipped-items container once per frame and
// reports when any slot's item, condition or spiritbond changed.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"

	"go.opentelemetry.io/otel/metric"
)

// DefaultCooldown is the minimum time between two effectful scans.
const DefaultCooldown = 200 * time.Millisecond

// Option configures a Scanner.
type Option func(*Scanner)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(s *Scanner) {
		s.cooldown = d
	}
}

// Stats counts scanner activity since creation.
type Stats struct {
	Scans      uint64 // completed reads
	Changes    uint64 // reads that produced a snapshot
	Skipped    uint64 // calls that did not read (disabled or cooling down)
	ReadErrors uint64
}

// Scanner owns the last observed slot values. Scan is meant to be called
// from the frame thread; Enable and Disable may be called from lifecycle
// callbacks on any goroutine.
type Scanner struct {
	provider host.EquipmentProvider
	logger   *slog.Logger
	cooldown time.Duration

	mu       sync.Mutex
	enabled  bool
	source   host.EquipmentSource
	previous core.Slots
	// primed is false until the first read from the current source, so that
	// read always builds a snapshot, even for an empty loadout.
	primed   bool
	lastScan time.Time
	stats    Stats

	latest atomic.Pointer[core.Snapshot]

	scans      metric.Int64Counter
	changes    metric.Int64Counter
	readErrors metric.Int64Counter
}

// New creates a disabled scanner. Uses the global OTel meter for metrics
// (no-op if not configured).
func New(provider host.EquipmentProvider, logger *slog.Logger, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		provider: provider,
		logger:   logger.With("component", "scanner"),
		cooldown: DefaultCooldown,
	}
	for _, opt := range opts {
		opt(s)
	}

	m := meter()
	var err error

	s.scans, err = m.Int64Counter("scanner.scans",
		metric.WithDescription("Completed equipment reads"))
	if err != nil {
		return nil, fmt.Errorf("creating scans counter: %w", err)
	}
	s.changes, err = m.Int64Counter("scanner.changes",
		metric.WithDescription("Equipment reads that detected a change"))
	if err != nil {
		return nil, fmt.Errorf("creating changes counter: %w", err)
	}
	s.readErrors, err = m.Int64Counter("scanner.read_errors",
		metric.WithDescription("Failed equipment reads"))
	if err != nil {
		return nil, fmt.Errorf("creating read errors counter: %w", err)
	}

	return s, nil
}

// Enable permits scanning and acquires the equipment source if it is not
// held. A failed acquisition is logged; the next Enable retries.
func (s *Scanner) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	if s.source != nil {
		return
	}

	src, err := s.provider.AcquireEquipment()
	if err != nil {
		s.logger.Warn("equipment source unavailable", "error", err)
		return
	}
	s.source = src
	s.primed = false
	s.logger.Debug("equipment source acquired")
}

// Disable stops scanning and drops the equipment source.
func (s *Scanner) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled || s.source != nil {
		s.logger.Debug("scanner disabled")
	}
	s.enabled = false
	s.source = nil
}

// Enabled reports whether scanning is permitted and a source is held.
func (s *Scanner) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.source != nil
}

// Scan reads every slot unless disabled or called within the cooldown of the
// previous completed scan. It returns a snapshot when a slot differs from the
// previous read, and on the first read after the source was acquired; the
// baseline is overwritten either way.
func (s *Scanner) Scan(now time.Time) *core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.source == nil {
		s.stats.Skipped++
		return nil
	}
	if !s.lastScan.IsZero() && now.Sub(s.lastScan) < s.cooldown {
		s.stats.Skipped++
		return nil
	}

	slots, err := s.source.ReadEquipmentSlots()
	if err != nil {
		s.stats.ReadErrors++
		s.readErrors.Add(context.Background(), 1)
		s.logger.Warn("reading equipment failed, waiting for re-enable", "error", err)
		s.source = nil
		return nil
	}

	s.stats.Scans++
	s.scans.Add(context.Background(), 1)
	s.lastScan = now

	if s.primed && slots == s.previous {
		return nil
	}

	if s.primed && s.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.logger.Debug("equipment changed", "slots", s.previous.Diff(&slots))
	}
	s.previous = slots
	s.primed = true

	snap := core.NewSnapshot(slots, now)
	s.latest.Store(snap)
	s.stats.Changes++
	s.changes.Add(context.Background(), 1)
	return snap
}

// Latest returns the most recent snapshot, or nil before the first completed
// scan.
func (s *Scanner) Latest() *core.Snapshot {
	return s.latest.Load()
}

// Stats returns a copy of the activity counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
