package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RepairMe/extension/internal/channel"
	"github.com/RepairMe/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource stands in for the scanner.
type fakeSource struct {
	snap atomic.Pointer[core.Snapshot]
}

func (f *fakeSource) Latest() *core.Snapshot { return f.snap.Load() }

func (f *fakeSource) set(condition uint16) *core.Snapshot {
	var slots core.Slots
	slots[0] = core.Slot{ItemID: 1, Condition: condition}
	s := core.NewSnapshot(slots, time.Now())
	f.snap.Store(s)
	return s
}

// fakeClock hands every cooldown timer to the test.
type fakeClock struct {
	timers chan chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{timers: make(chan chan time.Time, 16)}
}

func (c *fakeClock) after(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.timers <- ch
	return ch
}

// next waits for the loop to enter its cooldown sleep.
func (c *fakeClock) next(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case ch := <-c.timers:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("loop never entered cooldown")
		return nil
	}
}

// recorder collects every published snapshot.
type recorder struct {
	mu   sync.Mutex
	seen []*core.Snapshot
}

func (r *recorder) Send(s *core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) all() []*core.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.Snapshot(nil), r.seen...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHandler(t *testing.T, src Source, logger *slog.Logger, clock *fakeClock) (*Handler, *recorder) {
	t.Helper()
	h, err := New(src, logger, withClock(clock.after))
	require.NoError(t, err)
	rec := &recorder{}
	h.Subscribe(rec)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Stop)
	return h, rec
}

func TestHandler_NothingPublishedBeforeNotify(t *testing.T) {
	src := &fakeSource{}
	src.set(100)
	h, _ := startHandler(t, src, discard(), newFakeClock())

	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, h.Latest())
	assert.Zero(t, h.Published())
}

func TestHandler_FirstChangePublishedImmediately(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	h, rec := startHandler(t, src, discard(), clock)

	a := src.set(100)
	h.Notify()

	clock.next(t)
	assert.Same(t, a, h.Latest())
	assert.Equal(t, []*core.Snapshot{a}, rec.all())
}

func TestHandler_BurstCoalescedWithinCooldown(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	h, rec := startHandler(t, src, discard(), clock)

	first := src.set(300)
	h.Notify()
	cooldown := clock.next(t)

	// two more changes land inside the same window
	src.set(200)
	h.Notify()
	third := src.set(100)
	h.Notify()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(1), h.Published(), "no publish while cooling down")

	cooldown <- time.Now()
	clock.next(t)

	assert.Equal(t, []*core.Snapshot{first, third}, rec.all())
	assert.Same(t, third, h.Latest())
	assert.Equal(t, uint64(2), h.Published())
}

func TestHandler_NotifyWithUnchangedSnapshotDoesNotRepublish(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	h, rec := startHandler(t, src, discard(), clock)

	src.set(100)
	h.Notify()
	clock.next(t) <- time.Now()

	h.Notify()
	clock.next(t)
	assert.Len(t, rec.all(), 1)
}

func TestHandler_BlockDiscardsPendingNotify(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	h, _ := startHandler(t, src, discard(), clock)

	src.set(100)
	h.Notify()
	cooldown := clock.next(t)

	src.set(50)
	h.Notify()
	h.Block()
	cooldown <- time.Now()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(1), h.Published())
}

func TestHandler_StopWhileWaiting(t *testing.T) {
	h, _ := startHandler(t, &fakeSource{}, discard(), newFakeClock())
	require.True(t, h.Running())

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, h.Running())
	assert.False(t, h.Failed())
}

func TestHandler_StopDuringCooldown(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	h, _ := startHandler(t, src, discard(), clock)

	src.set(1)
	h.Notify()
	clock.next(t) // never fired

	h.Stop()
	assert.False(t, h.Running())
}

func TestHandler_StartTwice(t *testing.T) {
	h, _ := startHandler(t, &fakeSource{}, discard(), newFakeClock())
	assert.ErrorIs(t, h.Start(context.Background()), ErrRunning)
}

func TestHandler_ParentContextCancels(t *testing.T) {
	h, err := New(&fakeSource{}, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !h.Running() }, time.Second, time.Millisecond)
	h.Stop()
}

type panicSource struct{}

func (panicSource) Latest() *core.Snapshot { panic("snapshot exploded") }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHandler_PanicTerminatesLoopWithoutCrashing(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h, _ := startHandler(t, panicSource{}, logger, newFakeClock())

	h.Notify()
	require.Eventually(t, func() bool { return !h.Running() }, 2*time.Second, time.Millisecond)

	assert.True(t, h.Failed())
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "snapshot exploded")
	assert.Nil(t, h.Latest())
}

func TestHandler_CancellationIsSilent(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h, _ := startHandler(t, &fakeSource{}, logger, newFakeClock())

	h.Stop()
	assert.NotContains(t, logs.String(), "level=ERROR")
	assert.False(t, h.Failed())
}

func TestHandler_FansOutToLatestChannel(t *testing.T) {
	src := &fakeSource{}
	clock := newFakeClock()
	h, err := New(src, discard(), withClock(clock.after))
	require.NoError(t, err)

	out := channel.NewLatest[*core.Snapshot]()
	h.Subscribe(out)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Stop)

	a := src.set(10)
	h.Notify()
	clock.next(t)

	assert.Same(t, a, <-out.Receive())
}

func TestHandler_RealClockCooldown(t *testing.T) {
	src := &fakeSource{}
	h, err := New(src, discard(), WithCooldown(30*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Stop)

	src.set(3)
	h.Notify()
	require.Eventually(t, func() bool { return h.Published() == 1 }, time.Second, time.Millisecond)

	last := src.set(1)
	h.Notify()
	require.Eventually(t, func() bool { return h.Latest() == last }, time.Second, time.Millisecond)
}
