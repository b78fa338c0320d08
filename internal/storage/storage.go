// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/RepairMe/extension/pkg/core"
)

// Backend is the interface all history storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (assigns ID to the passed pointer)
	StartSession(s *core.Session) error
	EndSession(at time.Time) error

	// Snapshot recording
	RecordSnapshot(s *core.Snapshot) error
}

// Summarizer is an optional interface for backends that can report on the
// running or last ended session.
type Summarizer interface {
	Summary() (core.SessionSummary, error)
}

// Exporter is an optional interface for backends that write a file when a
// session ends.
type Exporter interface {
	ExportedFilePath() string
}

// Uploadable is an optional interface for backends whose exported files can
// be uploaded to the history server.
type Uploadable interface {
	Exporter
	GetExportMetadata() core.UploadMetadata
}
