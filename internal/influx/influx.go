// Package influx writes published equipment snapshots to InfluxDB, falling
// back to a gzipped line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/pkg/core"
)

const (
	// MeasurementEquipment holds the snapshot aggregates.
	MeasurementEquipment = "equipment"
	// MeasurementSlot holds one point per equipped slot.
	MeasurementSlot = "equipment_slot"

	retention = 60 * 60 * 24 * 90 // 90 days
)

var ErrDisabled = errors.New("influx sink disabled")

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg    config.InfluxConfig
	logger *slog.Logger

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupFile *os.File
	backup     *gzip.Writer
	valid      bool
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger.With("component", "influx")}
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer, points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.logger.Info("failed to initialize InfluxDB client, writing to backup file",
			"backupPath", m.cfg.BackupPath, "error", err)
		m.client.Close()
		m.client = nil
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error("error sending data to InfluxDB", "bucket", m.cfg.Bucket, "error", writeErr)
		}
	}(m.writer.Errors())

	m.valid = true
	m.logger.Info("InfluxDB client initialized", "url", m.cfg.URL, "bucket", m.cfg.Bucket)
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.BackupPath), 0o755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info("organization not found, creating", "org", m.cfg.Org)
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.logger.Info("bucket not found, creating", "bucket", m.cfg.Bucket)
		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retention,
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

// Valid reports whether points go to the server rather than the backup file.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(lineProtocol, "\n") {
		lineProtocol += "\n"
	}
	if _, err := m.backup.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteSnapshot writes the aggregate point and one point per equipped slot.
func (m *Manager) WriteSnapshot(s *core.Snapshot, c core.Character) error {
	for _, p := range SnapshotPoints(s, c) {
		if err := m.WritePoint(p); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.valid = false

	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// SnapshotPoints converts a snapshot into line-protocol points.
func SnapshotPoints(s *core.Snapshot, c core.Character) []*influxdb2_write.Point {
	at := s.CapturedAt()
	tags := map[string]string{}
	if c.Name != "" {
		tags["character"] = c.Name
	}
	if c.World != "" {
		tags["world"] = c.World
	}

	points := make([]*influxdb2_write.Point, 0, 1+s.Equipped())
	points = append(points, influxdb2.NewPoint(MeasurementEquipment, tags, map[string]any{
		"lowest_condition":      s.LowestConditionPercent(),
		"lowest_condition_slot": s.LowestConditionSlot(),
		"highest_spiritbond":    s.HighestSpiritbondPercent(),
		"lowest_spiritbond":     s.LowestSpiritbondPercent(),
		"equipped":              s.Equipped(),
	}, at))

	for i := 0; i < core.SlotCount; i++ {
		slot := s.Slot(i)
		if slot.Empty() {
			continue
		}
		slotTags := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			slotTags[k] = v
		}
		slotTags["slot"] = strconv.Itoa(i)
		points = append(points, influxdb2.NewPoint(MeasurementSlot, slotTags, map[string]any{
			"item_id":    int64(slot.ItemID),
			"condition":  slot.ConditionPercent(),
			"spiritbond": slot.SpiritbondPercent(),
		}, at))
	}
	return points
}
