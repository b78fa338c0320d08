// Package gormstorage implements the storage.Backend interface on top of GORM
// with an internal queue and a background DB writer goroutine. The postgres
// and sqlite backends embed it and only provide the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RepairMe/extension/internal/model"
	"github.com/RepairMe/extension/internal/model/convert"
	"github.com/RepairMe/extension/internal/queue"
	"github.com/RepairMe/extension/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued snapshots are written.
const DefaultFlushInterval = 2 * time.Second

// MaxPending caps the snapshots kept while the database is unreachable.
const MaxPending = 50000

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB               *gorm.DB
	Logger           *slog.Logger
	FlushInterval    time.Duration
	ExtensionVersion string
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	snapshots *queue.Queue[model.SnapshotRecord]

	sessionID     atomic.Uint64
	lastSessionID atomic.Uint64
	lastWrite     atomic.Int64

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:      deps,
		snapshots: queue.New[model.SnapshotRecord](MaxPending),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("no database connection")
	}
	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writer()
	return nil
}

// setupDB migrates tables and records the schema version if it isn't there yet.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.Logger

	log.Info("migrating schema", "dialect", db.Name())
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var count int64
	if err := db.Model(&model.ExtensionInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read extension info: %w", err)
	}
	if count == 0 {
		info := model.ExtensionInfo{
			SchemaVersion:    model.SchemaVersion,
			ExtensionVersion: b.deps.ExtensionVersion,
		}
		if err := db.Create(&info).Error; err != nil {
			return fmt.Errorf("failed to create extension info entry: %w", err)
		}
	}
	log.Info("database setup complete")
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	return b.Flush()
}

// StartSession inserts the session synchronously so its ID can be assigned.
func (b *Backend) StartSession(s *core.Session) error {
	if err := b.Flush(); err != nil {
		b.deps.Logger.Warn("snapshots of the previous session not written", "error", err)
	}
	row := convert.CoreToSession(*s)
	row.ID = 0
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))
	b.lastSessionID.Store(uint64(row.ID))
	return nil
}

// EndSession writes queued snapshots and stamps the logout time.
func (b *Backend) EndSession(at time.Time) error {
	id := b.sessionID.Swap(0)
	if id == 0 {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", id).
		Update("logout_time", at).Error
	if err != nil {
		return fmt.Errorf("failed to end session %d: %w", id, err)
	}
	return nil
}

// RecordSnapshot converts and queues a snapshot for the running session.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	id := b.sessionID.Load()
	if id == 0 {
		return core.ErrNoSession
	}
	rec, err := convert.CoreToSnapshotRecord(s, uint(id))
	if err != nil {
		return err
	}
	if n := b.snapshots.Push(rec); n > 0 {
		b.deps.Logger.Warn("pending snapshots over limit, oldest dropped", "dropped", n, "limit", MaxPending)
	}
	return nil
}

// Pending is the number of snapshots waiting to be written.
func (b *Backend) Pending() int {
	return b.snapshots.Len()
}

// GetLastDBWriteDuration returns how long the last write cycle took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// Flush writes every queued snapshot in one transaction. On failure the
// snapshots are put back at the front of the queue.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.snapshots.Empty() {
		return nil
	}

	start := time.Now()
	items := b.snapshots.Drain()
	tx := b.deps.DB.Begin()
	if err := tx.CreateInBatches(&items, 500).Error; err != nil {
		tx.Rollback()
		b.snapshots.Requeue(items)
		return fmt.Errorf("error creating snapshot records: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		b.snapshots.Requeue(items)
		return fmt.Errorf("error committing snapshot records: %w", err)
	}
	b.lastWrite.Store(int64(time.Since(start)))
	return nil
}

func (b *Backend) writer() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("DB writer failed", "error", err)
			}
		}
	}
}

// Summary reports on the running session, or the last one when none runs.
func (b *Backend) Summary() (core.SessionSummary, error) {
	id := b.lastSessionID.Load()
	if id == 0 {
		return core.SessionSummary{}, core.ErrNoSession
	}
	if err := b.Flush(); err != nil {
		b.deps.Logger.Warn("summary without queued snapshots", "error", err)
	}

	db := b.deps.DB
	var row model.Session
	if err := db.First(&row, id).Error; err != nil {
		return core.SessionSummary{}, fmt.Errorf("failed to load session %d: %w", id, err)
	}
	summary := core.NewSessionSummary(convert.SessionToCore(row))

	var agg struct {
		Count             int64
		HighestSpiritbond float32
	}
	err := db.Model(&model.SnapshotRecord{}).
		Select("COUNT(*) AS count, COALESCE(MAX(highest_spiritbond), 0) AS highest_spiritbond").
		Where("session_id = ?", id).
		Scan(&agg).Error
	if err != nil {
		return summary, fmt.Errorf("failed to aggregate snapshots: %w", err)
	}
	summary.Snapshots = int(agg.Count)
	summary.HighestSpiritbond = agg.HighestSpiritbond
	if agg.Count == 0 {
		return summary, nil
	}

	var lowest, last model.SnapshotRecord
	if err := db.Where("session_id = ?", id).Order("lowest_condition ASC, time ASC").First(&lowest).Error; err != nil {
		return summary, fmt.Errorf("failed to find lowest condition: %w", err)
	}
	if err := db.Where("session_id = ?", id).Order("time DESC").First(&last).Error; err != nil {
		return summary, fmt.Errorf("failed to find last snapshot: %w", err)
	}
	summary.LowestCondition = lowest.LowestCondition
	summary.LowestConditionAt = lowest.Time
	summary.LastRecordedAt = last.Time
	return summary, nil
}

// Snapshots loads every snapshot recorded in a session, oldest first.
func (b *Backend) Snapshots(sessionID uint) ([]*core.Snapshot, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	var rows []model.SnapshotRecord
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	out := make([]*core.Snapshot, 0, len(rows))
	for _, r := range rows {
		s, err := convert.SnapshotRecordToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
