package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/storage"
	"github.com/RepairMe/extension/internal/util"
	"github.com/RepairMe/extension/pkg/core"
)

// Dispatcher commands handled by the worker.
const (
	CommandSessionStart = ":SESSION:START:"
	CommandSessionEnd   = ":SESSION:END:"
	CommandRecord       = ":RECORD:"
	CommandHistory      = ":HISTORY:"

	historyQueue = "history"
)

// ErrUnexpectedPayload is returned when an event carries the wrong value.
var ErrUnexpectedPayload = errors.New("unexpected event payload")

// RegisterHandlers registers all history handlers with the dispatcher.
// Session and snapshot events share one queue so a snapshot is never handled
// before the session it belongs to.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.d = d

	// First registration sizes the shared queue. Snapshots may be dropped
	// when it is full; session boundaries wait for room.
	d.Register(CommandRecord, m.handleRecord, dispatcher.Buffered(1000), dispatcher.Queue(historyQueue))
	d.Register(CommandSessionStart, m.handleSessionStart, dispatcher.Buffered(1000), dispatcher.Queue(historyQueue), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(CommandSessionEnd, m.handleSessionEnd, dispatcher.Buffered(1000), dispatcher.Queue(historyQueue), dispatcher.Blocking(), dispatcher.Logged())

	d.Register(CommandHistory, m.handleHistory, dispatcher.Logged())
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(core.Session)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %T", CommandSessionStart, ErrUnexpectedPayload, e.Payload)
	}
	if err := m.deps.Backend.StartSession(&s); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	m.deps.Session.SetID(s.ID)
	m.deps.Logger.Info("session started", "id", s.ID, "character", s.Character.Name, "world", s.Character.World)
	return nil, nil
}

func (m *Manager) handleSessionEnd(e dispatcher.Event) (any, error) {
	at := e.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	if err := m.deps.Backend.EndSession(at); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if exp, ok := m.deps.Backend.(storage.Exporter); ok && exp.ExportedFilePath() != "" {
		m.deps.Logger.Info("session exported", "path", exp.ExportedFilePath())
	}
	return nil, m.upload()
}

// upload sends the last export to the history server when an uploader is
// configured and the backend produces uploadable files.
func (m *Manager) upload() error {
	up, ok := m.deps.Backend.(storage.Uploadable)
	if !ok || m.deps.Uploader == nil {
		return nil
	}
	path := up.ExportedFilePath()
	if path == "" {
		return nil
	}
	start := time.Now()
	if err := m.deps.Uploader.Upload(path, up.GetExportMetadata()); err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	m.deps.Logger.Info("session uploaded", "path", path, "duration", time.Since(start))
	return nil
}

func (m *Manager) handleRecord(e dispatcher.Event) (any, error) {
	snap, ok := e.Payload.(*core.Snapshot)
	if !ok || snap == nil {
		return nil, fmt.Errorf("%s: %w: %T", CommandRecord, ErrUnexpectedPayload, e.Payload)
	}

	var errs []error
	if err := m.deps.Backend.RecordSnapshot(snap); err != nil {
		errs = append(errs, fmt.Errorf("failed to record snapshot: %w", err))
	}
	if m.deps.Influx != nil {
		character, _ := m.deps.Session.Character()
		if err := m.deps.Influx.WriteSnapshot(snap, character); err != nil {
			errs = append(errs, fmt.Errorf("failed to write snapshot to influx: %w", err))
		}
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) handleHistory(dispatcher.Event) (any, error) {
	return m.HistorySummary(time.Now())
}

// HistorySummary describes the running or last session for chat.
func (m *Manager) HistorySummary(now time.Time) (string, error) {
	sum, ok := m.deps.Backend.(storage.Summarizer)
	if !ok {
		s, found := m.deps.Session.Last()
		if !found {
			return "", core.ErrNoSession
		}
		return fmt.Sprintf("%s, logged in for %s. This history backend keeps no summaries.",
			describeSession(s), s.Duration(now).Truncate(time.Second)), nil
	}

	summary, err := sum.Summary()
	if err != nil {
		return "", err
	}
	return FormatSummary(summary, now), nil
}

// FormatSummary renders a session summary as one chat line.
func FormatSummary(s core.SessionSummary, now time.Time) string {
	state := "logged in for"
	if !s.Session.Active() {
		state = "ended after"
	}
	line := fmt.Sprintf("%s, %s %s: %d snapshots",
		describeSession(s.Session), state, s.Session.Duration(now).Truncate(time.Second), s.Snapshots)
	if s.Snapshots == 0 {
		return line + "."
	}
	return fmt.Sprintf("%s, lowest condition %s at %s, highest spiritbond %s.",
		line,
		util.FormatPercent(s.LowestCondition, true, true),
		s.LowestConditionAt.Local().Format("15:04:05"),
		util.FormatPercent(s.HighestSpiritbond, true, true),
	)
}

func describeSession(s core.Session) string {
	name := s.Character.Name
	if name == "" {
		name = "unknown character"
	}
	if s.Character.World != "" {
		name += " @ " + s.Character.World
	}
	return fmt.Sprintf("Session #%d (%s)", s.ID, name)
}
