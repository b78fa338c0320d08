// Package notify bridges the frame-thread scanner to the renderer. The
// scanner signals a change; a background loop wakes, publishes the latest
// snapshot and then sleeps for a cooldown, so a burst of changes is
// published at most twice per cooldown window: the first immediately and
// the last one once the window ends.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RepairMe/extension/internal/channel"
	"github.com/RepairMe/extension/pkg/core"

	"go.opentelemetry.io/otel/metric"
)

// DefaultCooldown is the minimum time between two publishes.
const DefaultCooldown = 500 * time.Millisecond

// ErrRunning is returned by Start when the loop is already running.
var ErrRunning = errors.New("notification loop already running")

// Source provides the snapshot to publish.
type Source interface {
	Latest() *core.Snapshot
}

// Option configures a Handler.
type Option func(*Handler)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(h *Handler) {
		h.cooldown = d
	}
}

// withClock replaces the cooldown timer.
func withClock(after func(time.Duration) <-chan time.Time) Option {
	return func(h *Handler) {
		h.after = after
	}
}

// Handler runs the publishing loop.
type Handler struct {
	source   Source
	logger   *slog.Logger
	cooldown time.Duration
	after    func(time.Duration) <-chan time.Time

	signal    *Signal
	latest    atomic.Pointer[core.Snapshot]
	published atomic.Uint64
	running   atomic.Bool
	failed    atomic.Bool

	mu          sync.Mutex
	subscribers []channel.Sender[*core.Snapshot]
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	publishedCounter metric.Int64Counter
}

// New creates a stopped Handler.
func New(source Source, logger *slog.Logger, opts ...Option) (*Handler, error) {
	h := &Handler{
		source:   source,
		logger:   logger.With("component", "notify"),
		cooldown: DefaultCooldown,
		after:    time.After,
		signal:   NewSignal(),
	}
	for _, opt := range opts {
		opt(h)
	}

	var err error
	h.publishedCounter, err = meter().Int64Counter("notify.published",
		metric.WithDescription("Snapshots published to the renderer"))
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	return h, nil
}

// Subscribe adds a receiver for every published snapshot. Send is called on
// the loop goroutine and must not block; use channel.Latest.
func (h *Handler) Subscribe(s channel.Sender[*core.Snapshot]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, s)
}

// Notify wakes the loop. Safe to call from any goroutine.
func (h *Handler) Notify() {
	h.signal.Notify()
}

// Block discards a pending Notify. Safe to call from any goroutine.
func (h *Handler) Block() {
	h.signal.Block()
}

// Start runs the loop on a new goroutine until ctx is done or Stop is
// called.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running.Load() {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.failed.Store(false)
	h.running.Store(true)

	h.wg.Add(1)
	go h.run(ctx)

	h.logger.Debug("notification loop started", "cooldown", h.cooldown)
	return nil
}

// Stop cancels the loop, wakes it if it is waiting and returns once it has
// exited.
func (h *Handler) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	h.signal.Notify()
	h.wg.Wait()
	h.signal.Block()
	h.logger.Debug("notification loop stopped")
}

// Latest returns the last published snapshot, or nil before the first
// publish. Safe to call from the render thread.
func (h *Handler) Latest() *core.Snapshot {
	return h.latest.Load()
}

// Running reports whether the loop goroutine is alive.
func (h *Handler) Running() bool {
	return h.running.Load()
}

// Failed reports whether the loop terminated on a panic. The overlay no
// longer updates until the plugin is reloaded.
func (h *Handler) Failed() bool {
	return h.failed.Load()
}

// Published is the number of snapshots published since creation.
func (h *Handler) Published() uint64 {
	return h.published.Load()
}

func (h *Handler) run(ctx context.Context) {
	defer h.wg.Done()
	defer h.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			h.failed.Store(true)
			h.logger.Error("prevented notification loop crash; the overlay stopped updating, reload the plugin to continue",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	for {
		if err := h.signal.Wait(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		h.publish()

		select {
		case <-ctx.Done():
			return
		case <-h.after(h.cooldown):
		}
	}
}

func (h *Handler) publish() {
	snap := h.source.Latest()
	if snap == nil || snap == h.latest.Load() {
		return
	}

	h.latest.Store(snap)
	h.published.Add(1)
	h.publishedCounter.Add(context.Background(), 1)

	h.mu.Lock()
	subs := h.subscribers
	h.mu.Unlock()
	for _, s := range subs {
		s.Send(snap)
	}
}
