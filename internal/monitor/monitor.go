// Package monitor reports what the extension is doing: a status file that is
// rewritten periodically and the text printed by "/repairme status".
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RepairMe/extension/internal/gate"
	"github.com/RepairMe/extension/internal/scanner"
	"github.com/RepairMe/extension/internal/session"
	"github.com/RepairMe/extension/internal/util"
	"github.com/RepairMe/extension/pkg/core"
)

// StatusFileName is written into the status directory.
const StatusFileName = "status.txt"

// ScannerStats is satisfied by *scanner.Scanner.
type ScannerStats interface {
	Enabled() bool
	Stats() scanner.Stats
}

// GateReason is satisfied by *gate.Gate.
type GateReason interface {
	Reason() gate.Reason
}

// Publisher is satisfied by *notify.Handler.
type Publisher interface {
	Latest() *core.Snapshot
	Running() bool
	Failed() bool
	Published() uint64
}

// HistoryStats is satisfied by *worker.Manager.
type HistoryStats interface {
	Pending() int
	GetLastDBWriteDuration() time.Duration
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Scanner ScannerStats
	Gate    GateReason
	Notify  Publisher
	// History and Session are optional.
	History   HistoryStats
	Session   *session.Context
	StatusDir string
	Interval  time.Duration
	Logger    *slog.Logger
}

// Status is a point-in-time view of the extension.
type Status struct {
	Time                time.Time     `json:"time"`
	Gate                string        `json:"gate"`
	ScannerEnabled      bool          `json:"scannerEnabled"`
	Scanner             scanner.Stats `json:"scanner"`
	LoopRunning         bool          `json:"loopRunning"`
	LoopFailed          bool          `json:"loopFailed"`
	Published           uint64        `json:"published"`
	LowestCondition     *float32      `json:"lowestCondition,omitempty"`
	LowestConditionSlot int           `json:"lowestConditionSlot"`
	HighestSpiritbond   *float32      `json:"highestSpiritbond,omitempty"`
	Character           string        `json:"character,omitempty"`
	SessionID           uint          `json:"sessionId,omitempty"`
	PendingWrites       int           `json:"pendingWrites"`
	LastWriteDurationMs float32       `json:"lastWriteDurationMs"`
}

// Lines renders the status for chat.
func (s Status) Lines() []string {
	loop := "running"
	switch {
	case s.LoopFailed:
		loop = "stopped after an error, reload the plugin"
	case !s.LoopRunning:
		loop = "stopped"
	}
	scan := "disabled"
	if s.ScannerEnabled {
		scan = "enabled"
	}

	lines := []string{
		fmt.Sprintf("Overlay: %s", s.Gate),
		fmt.Sprintf("Scanner: %s, %d reads, %d changes, %d errors", scan, s.Scanner.Scans, s.Scanner.Changes, s.Scanner.ReadErrors),
		fmt.Sprintf("Notifications: %s, %d published", loop, s.Published),
	}
	if s.LowestCondition != nil {
		lines = append(lines, fmt.Sprintf("Equipment: lowest condition %s (slot %d), highest spiritbond %s",
			util.FormatPercent(*s.LowestCondition, true, true),
			s.LowestConditionSlot,
			util.FormatPercent(*s.HighestSpiritbond, true, true)))
	}
	if s.Character != "" {
		lines = append(lines, fmt.Sprintf("History: session #%d for %s, %d pending writes", s.SessionID, s.Character, s.PendingWrites))
	}
	return lines
}

// String joins Lines for the chat bridge.
func (s Status) String() string {
	return strings.Join(s.Lines(), "\n")
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status
func (s *Service) GetProgramStatus(now time.Time) Status {
	st := Status{
		Time:                now,
		Gate:                s.deps.Gate.Reason().String(),
		ScannerEnabled:      s.deps.Scanner.Enabled(),
		Scanner:             s.deps.Scanner.Stats(),
		LoopRunning:         s.deps.Notify.Running(),
		LoopFailed:          s.deps.Notify.Failed(),
		Published:           s.deps.Notify.Published(),
		LowestConditionSlot: -1,
	}

	if snap := s.deps.Notify.Latest(); snap != nil {
		cond, sb := snap.LowestConditionPercent(), snap.HighestSpiritbondPercent()
		st.LowestCondition = &cond
		st.HighestSpiritbond = &sb
		st.LowestConditionSlot = snap.LowestConditionSlot()
	}
	if s.deps.Session != nil {
		if cur, ok := s.deps.Session.Current(); ok {
			st.Character = cur.Character.Name
			st.SessionID = cur.ID
		}
	}
	if s.deps.History != nil {
		st.PendingWrites = s.deps.History.Pending()
		st.LastWriteDurationMs = float32(s.deps.History.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	return st
}

// WriteStatusFile replaces the status file with the current status as JSON.
func (s *Service) WriteStatusFile(now time.Time) error {
	data, err := json.MarshalIndent(s.GetProgramStatus(now), "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}
	if err := os.MkdirAll(s.deps.StatusDir, 0o755); err != nil {
		return fmt.Errorf("error creating status dir: %w", err)
	}
	path := filepath.Join(s.deps.StatusDir, StatusFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine. Without a status directory
// nothing is written and Start is a no-op.
func (s *Service) Start() error {
	if s.deps.StatusDir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopChan)
	return nil
}

func (s *Service) run(stop <-chan struct{}) {
	defer s.wg.Done()
	log := s.deps.Logger
	log.Debug("starting status monitor", "dir", s.deps.StatusDir, "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := s.WriteStatusFile(now); err != nil {
				log.Error("error writing status", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}
