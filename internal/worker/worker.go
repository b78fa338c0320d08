// Package worker moves published snapshots and session lifecycle events from
// the dispatcher into the history backend and the InfluxDB sink.
package worker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/influx"
	"github.com/RepairMe/extension/internal/session"
	"github.com/RepairMe/extension/internal/storage"
	"github.com/RepairMe/extension/pkg/core"
)

// ErrNotRegistered is returned when session events are raised before
// RegisterHandlers.
var ErrNotRegistered = errors.New("worker handlers not registered")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend storage.Backend
	// Influx and Uploader are optional.
	Influx   *influx.Manager
	Uploader Uploader
	Session  *session.Context
	Logger   *slog.Logger
}

// Uploader sends an exported session file to the history server.
type Uploader interface {
	Upload(filePath string, meta core.UploadMetadata) error
}

// Manager manages the history handlers
type Manager struct {
	deps Dependencies
	d    *dispatcher.Dispatcher
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	return &Manager{deps: deps}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// PendingProvider is an optional interface for backends that queue writes.
type PendingProvider interface {
	Pending() int
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.deps.Backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// Pending returns the number of snapshots waiting for the backend, or 0.
func (m *Manager) Pending() int {
	if p, ok := m.deps.Backend.(PendingProvider); ok {
		return p.Pending()
	}
	return 0
}

// Session returns the session context the worker records into.
func (m *Manager) Session() *session.Context {
	return m.deps.Session
}

// StartSession begins a session for character and queues it for the
// backend. A session still running is ended first.
func (m *Manager) StartSession(character core.Character, at time.Time) error {
	if m.d == nil {
		return ErrNotRegistered
	}
	if err := m.EndSession(at); err != nil {
		return err
	}
	s := m.deps.Session.Start(character, at)
	_, err := m.d.Dispatch(dispatcher.Event{
		Command:   CommandSessionStart,
		Timestamp: at,
		Payload:   s,
	})
	return err
}

// EndSession ends the running session, if any, and queues the end for the
// backend.
func (m *Manager) EndSession(at time.Time) error {
	if m.d == nil {
		return ErrNotRegistered
	}
	if _, ok := m.deps.Session.End(at); !ok {
		return nil
	}
	_, err := m.d.Dispatch(dispatcher.Event{
		Command:   CommandSessionEnd,
		Timestamp: at,
	})
	return err
}
