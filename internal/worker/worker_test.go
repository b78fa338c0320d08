package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/influx"
	"github.com/RepairMe/extension/internal/logging"
	"github.com/RepairMe/extension/internal/session"
	"github.com/RepairMe/extension/internal/storage/memory"
	"github.com/RepairMe/extension/pkg/core"
)

var login = time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu        sync.Mutex
	calls     []string
	recordErr error
	sessionID uint
}

func (b *mockBackend) log(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *mockBackend) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.sessionID++
	s.ID = b.sessionID
	b.mu.Unlock()
	b.log("start")
	return nil
}

func (b *mockBackend) EndSession(time.Time) error {
	b.log("end")
	return nil
}

func (b *mockBackend) RecordSnapshot(*core.Snapshot) error {
	b.log("record")
	return b.recordErr
}

func (b *mockBackend) Pending() int { return 7 }

func (b *mockBackend) GetLastDBWriteDuration() time.Duration { return 3 * time.Millisecond }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(logging.NewDispatcherLogger(discard()))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func snapshot(condition uint16, at time.Time) *core.Snapshot {
	var slots core.Slots
	slots[0] = core.Slot{ItemID: 10, Condition: condition, Spiritbond: 5000}
	return core.NewSnapshot(slots, at)
}

func TestRegisterHandlers(t *testing.T) {
	d := newTestDispatcher(t)
	m := NewManager(Dependencies{Backend: &mockBackend{}, Logger: discard()})
	m.RegisterHandlers(d)

	for _, cmd := range []string{CommandSessionStart, CommandSessionEnd, CommandRecord, CommandHistory} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestSessionEventsHandledInOrder(t *testing.T) {
	d := newTestDispatcher(t)
	backend := &mockBackend{}
	sessions := session.NewContext()
	m := NewManager(Dependencies{Backend: backend, Session: sessions, Logger: discard()})
	m.RegisterHandlers(d)
	sender := NewSender(d, sessions, discard())

	sender.Send(snapshot(30000, login))
	require.NoError(t, m.StartSession(core.Character{Name: "Minfilia"}, login))
	sender.Send(snapshot(30000, login.Add(time.Second)))
	sender.Send(snapshot(29000, login.Add(2*time.Second)))
	require.NoError(t, m.EndSession(login.Add(time.Minute)))
	sender.Send(snapshot(28000, login.Add(2*time.Minute)))
	d.Close()

	assert.Equal(t, []string{"start", "record", "record", "end"}, backend.all(),
		"snapshots outside a session are not forwarded")

	last, ok := sessions.Last()
	require.True(t, ok)
	assert.Equal(t, uint(1), last.ID)
}

func TestStartSession_EndsRunningSession(t *testing.T) {
	d := newTestDispatcher(t)
	backend := &mockBackend{}
	m := NewManager(Dependencies{Backend: backend, Logger: discard()})
	m.RegisterHandlers(d)

	require.NoError(t, m.StartSession(core.Character{Name: "A"}, login))
	require.NoError(t, m.StartSession(core.Character{Name: "B"}, login.Add(time.Hour)))
	require.NoError(t, m.EndSession(login.Add(2*time.Hour)))
	require.NoError(t, m.EndSession(login.Add(3*time.Hour)))
	d.Close()

	assert.Equal(t, []string{"start", "end", "start", "end"}, backend.all())
}

func TestSessionEvents_NotRegistered(t *testing.T) {
	m := NewManager(Dependencies{Backend: &mockBackend{}})
	assert.ErrorIs(t, m.StartSession(core.Character{}, login), ErrNotRegistered)
	assert.ErrorIs(t, m.EndSession(login), ErrNotRegistered)
}

func TestHandleRecord_Errors(t *testing.T) {
	backend := &mockBackend{recordErr: errors.New("disk full")}
	m := NewManager(Dependencies{Backend: backend, Logger: discard()})

	_, err := m.handleRecord(dispatcher.Event{Command: CommandRecord, Payload: "not a snapshot"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	_, err = m.handleRecord(dispatcher.Event{Command: CommandRecord, Payload: snapshot(1, login)})
	assert.ErrorContains(t, err, "disk full")

	_, err = m.handleSessionStart(dispatcher.Event{Command: CommandSessionStart})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestHandleRecord_WritesInfluxBackup(t *testing.T) {
	backupPath := filepath.Join(t.TempDir(), "influx.lp.gz")
	sink := influx.NewManager(config.InfluxConfig{
		Enabled:    true,
		URL:        "http://127.0.0.1:1",
		BackupPath: backupPath,
	}, discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Connect(ctx))

	m := NewManager(Dependencies{Backend: &mockBackend{}, Influx: sink, Logger: discard()})
	_, err := m.handleRecord(dispatcher.Event{Command: CommandRecord, Payload: snapshot(15000, login)})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	info, err := os.Stat(backupPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestHistorySummary_Memory(t *testing.T) {
	d := newTestDispatcher(t)
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, "test")
	m := NewManager(Dependencies{Backend: backend, Logger: discard()})
	m.RegisterHandlers(d)

	_, err := d.Dispatch(dispatcher.Event{Command: CommandHistory})
	assert.ErrorIs(t, err, core.ErrNoSession)

	require.NoError(t, m.StartSession(core.Character{Name: "Tataru Taru", World: "Gilgamesh"}, login))
	sender := NewSender(d, m.Session(), discard())
	sender.Send(snapshot(9000, login.Add(10*time.Minute)))
	d.Close()

	line, err := m.HistorySummary(login.Add(time.Hour))
	require.NoError(t, err)
	assert.Contains(t, line, "Session #1 (Tataru Taru @ Gilgamesh)")
	assert.Contains(t, line, "logged in for 1h0m0s: 1 snapshots")
	assert.Contains(t, line, "lowest condition 30.00%")
	assert.Contains(t, line, "highest spiritbond 50.00%")
}

func TestHistorySummary_NoSummarizer(t *testing.T) {
	d := newTestDispatcher(t)
	m := NewManager(Dependencies{Backend: &mockBackend{}, Logger: discard()})
	m.RegisterHandlers(d)

	_, err := m.HistorySummary(login)
	assert.ErrorIs(t, err, core.ErrNoSession)

	require.NoError(t, m.StartSession(core.Character{Name: "Alisaie"}, login))
	d.Close()
	line, err := m.HistorySummary(login.Add(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "Session #1 (Alisaie), logged in for 1m30s. This history backend keeps no summaries.", line)
}

func TestFormatSummary_Ended(t *testing.T) {
	s := core.NewSessionSummary(core.Session{ID: 4, LoginTime: login, LogoutTime: login.Add(2 * time.Hour)})
	assert.Equal(t, "Session #4 (unknown character), ended after 2h0m0s: 0 snapshots.", FormatSummary(s, time.Time{}))
}

func TestBackendMetrics(t *testing.T) {
	m := NewManager(Dependencies{Backend: &mockBackend{}})
	assert.Equal(t, 7, m.Pending())
	assert.Equal(t, 3*time.Millisecond, m.GetLastDBWriteDuration())

	plain := NewManager(Dependencies{Backend: memory.New(config.MemoryConfig{}, "test")})
	assert.Zero(t, plain.Pending())
	assert.Zero(t, plain.GetLastDBWriteDuration())
}

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
	metas []core.UploadMetadata
	err   error
}

func (u *fakeUploader) Upload(path string, meta core.UploadMetadata) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, path)
	u.metas = append(u.metas, meta)
	return u.err
}

func TestSessionEnd_UploadsExport(t *testing.T) {
	d := newTestDispatcher(t)
	dir := t.TempDir()
	backend := memory.New(config.MemoryConfig{OutputDir: dir, Tag: "raid"}, "test")
	up := &fakeUploader{}
	m := NewManager(Dependencies{Backend: backend, Uploader: up, Logger: discard()})
	m.RegisterHandlers(d)

	require.NoError(t, m.StartSession(core.Character{Name: "Urianger", World: "Sargatanas"}, login))
	NewSender(d, m.Session(), discard()).Send(snapshot(9000, login.Add(time.Minute)))
	require.NoError(t, m.EndSession(login.Add(30*time.Minute)))
	d.Close()

	require.Len(t, up.paths, 1)
	assert.Equal(t, backend.ExportedFilePath(), up.paths[0])
	assert.Equal(t, dir, filepath.Dir(up.paths[0]))
	assert.Equal(t, core.UploadMetadata{
		CharacterName:   "Urianger",
		World:           "Sargatanas",
		SessionDuration: 1800,
		Snapshots:       1,
		Tag:             "raid",
	}, up.metas[0])
}

func TestSessionEnd_UploadErrorReturned(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()}, "test")
	m := NewManager(Dependencies{Backend: backend, Uploader: &fakeUploader{err: errors.New("403")}, Logger: discard()})

	s := core.Session{Character: core.Character{Name: "Urianger"}, LoginTime: login}
	_, err := m.handleSessionStart(dispatcher.Event{Command: CommandSessionStart, Payload: s})
	require.NoError(t, err)

	_, err = m.handleSessionEnd(dispatcher.Event{Command: CommandSessionEnd, Timestamp: login.Add(time.Minute)})
	assert.ErrorContains(t, err, "failed to upload")
}

func TestSessionEnd_NoUploadWithoutExports(t *testing.T) {
	d := newTestDispatcher(t)
	up := &fakeUploader{}
	m := NewManager(Dependencies{Backend: &mockBackend{}, Uploader: up, Logger: discard()})
	m.RegisterHandlers(d)

	require.NoError(t, m.StartSession(core.Character{Name: "Urianger"}, login))
	require.NoError(t, m.EndSession(login.Add(time.Minute)))
	d.Close()
	assert.Empty(t, up.paths)
}
