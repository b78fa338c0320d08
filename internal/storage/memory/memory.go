// Package memory implements a storage.Backend that keeps the running session
// in memory and exports it to a JSON file when the session ends.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/pkg/core"
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	version string

	session   *core.Session
	snapshots []*core.Snapshot
	summary   core.SessionSummary
	hasLast   bool

	idCounter      uint
	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig, version string) *Backend {
	return &Backend{cfg: cfg, version: version}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports a session that was never ended.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.endLocked(time.Now())
}

// StartSession begins recording a new session. A session still running is
// ended and exported first.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.session != nil {
		err = b.endLocked(s.LoginTime)
	}

	b.idCounter++
	s.ID = b.idCounter
	started := *s
	b.session = &started
	b.snapshots = nil
	b.summary = core.NewSessionSummary(started)
	b.hasLast = true
	return err
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.endLocked(at)
}

func (b *Backend) endLocked(at time.Time) error {
	b.session.LogoutTime = at
	b.summary.Session = *b.session
	err := b.exportJSON()
	b.session = nil
	b.snapshots = nil
	if err != nil {
		return fmt.Errorf("failed to export session: %w", err)
	}
	return nil
}

// RecordSnapshot appends a snapshot to the running session
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return core.ErrNoSession
	}
	b.snapshots = append(b.snapshots, s)
	b.summary.Add(s)
	return nil
}

// Summary reports on the running session, or the last one when none runs.
func (b *Backend) Summary() (core.SessionSummary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasLast {
		return core.SessionSummary{}, core.ErrNoSession
	}
	return b.summary, nil
}

// ExportedFilePath returns the path of the last exported file
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported file.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}
