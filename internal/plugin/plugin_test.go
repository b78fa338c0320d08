package plugin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/overlay"
	"github.com/RepairMe/extension/internal/storage/memory"
	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
	"github.com/RepairMe/extension/pkg/host/sim"
)

type nullSurface struct{ w, h int }

func (s nullSurface) Viewport() (int, int)                 { return s.w, s.h }
func (nullSurface) DrawBar(overlay.Bar) overlay.Feedback     { return overlay.Feedback{} }
func (nullSurface) DrawLabel(overlay.Label) overlay.Feedback { return overlay.Feedback{} }
func (nullSurface) DrawAlert(overlay.Alert) overlay.Feedback { return overlay.Feedback{} }
func (nullSurface) DrawDebug([]overlay.DebugRow)             {}

var wol = core.Character{Name: "Wol Lightwarden", World: "Ragnarok"}

func testTiming() config.TimingConfig {
	return config.TimingConfig{
		ScanCooldown:   time.Millisecond,
		NotifyCooldown: time.Millisecond,
		StatusInterval: time.Hour,
	}
}

func newPlugin(t *testing.T, backend *memory.Backend) (*Plugin, *sim.Host) {
	t.Helper()
	h := sim.New()
	deps := Dependencies{
		Surface: nullSurface{1920, 1080},
		Timing:  testTiming(),
	}
	if backend != nil {
		require.NoError(t, backend.Init())
		deps.Backend = backend
	}
	p, err := New(h.Services(), deps)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p, h
}

func lastChat(h *sim.Host) sim.ChatLine {
	lines := h.Chat()
	if len(lines) == 0 {
		return sim.ChatLine{}
	}
	return lines[len(lines)-1]
}

func equip(h *sim.Host, condition uint16) {
	h.SetSlot(0, core.Slot{ItemID: 3012, Condition: condition, Spiritbond: 5000})
}

func TestNew_RequiresSurface(t *testing.T) {
	_, err := New(sim.New().Services(), Dependencies{})
	assert.Error(t, err)
}

func TestStart_SubscribesAndCloseUnsubscribes(t *testing.T) {
	p, h := newPlugin(t, nil)

	assert.Equal(t, 6, h.Subscribers())
	assert.True(t, h.RunCommand("/repairme status"))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Zero(t, h.Subscribers())
	assert.False(t, h.RunCommand("/repairme status"))
	assert.False(t, p.notify.Running())
}

func TestLogin_PublishesSnapshot(t *testing.T) {
	p, h := newPlugin(t, nil)
	equip(h, 15000)

	h.Tick(time.Now())
	assert.Nil(t, p.notify.Latest(), "nothing is scanned while logged out")

	h.Login(wol)
	h.Tick(time.Now())

	require.Eventually(t, func() bool { return p.notify.Latest() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 50, p.notify.Latest().LowestConditionPercent(), 0.01)
}

func TestStart_AlreadyLoggedIn(t *testing.T) {
	h := sim.New()
	h.Login(wol)
	equip(h, 30000)

	p, err := New(h.Services(), Dependencies{Surface: nullSurface{}, Timing: testTiming()})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	assert.True(t, p.scanner.Enabled())
	h.Tick(time.Now())
	require.Eventually(t, func() bool { return p.notify.Latest() != nil }, 2*time.Second, 5*time.Millisecond)
}

func TestLogin_EmptyLoadoutPublishesSentinels(t *testing.T) {
	p, h := newPlugin(t, nil)
	h.Login(wol)
	h.Tick(time.Now())

	require.Eventually(t, func() bool { return p.notify.Latest() != nil }, 2*time.Second, 5*time.Millisecond)
	snap := p.notify.Latest()
	assert.Zero(t, snap.Equipped())
	assert.Equal(t, float32(100), snap.LowestConditionPercent())
	assert.Equal(t, -1, snap.LowestConditionSlot())
}

func TestLogin_ExcludedTerritoryKeepsScannerDisabled(t *testing.T) {
	p, h := newPlugin(t, nil)
	h.Exclude(250)
	h.ChangeTerritory(250)

	h.Login(wol)
	assert.False(t, p.scanner.Enabled())

	h.ChangeTerritory(132)
	assert.True(t, p.scanner.Enabled())
}

func TestLogout_DisablesScanner(t *testing.T) {
	p, h := newPlugin(t, nil)
	h.Login(wol)
	require.True(t, p.scanner.Enabled())

	h.Logout()
	assert.False(t, p.scanner.Enabled())
}

func TestTerritoryChange(t *testing.T) {
	p, h := newPlugin(t, nil)
	h.Exclude(250)
	h.Login(wol)

	h.ChangeTerritory(250)
	assert.False(t, p.scanner.Enabled())

	h.ChangeTerritory(132)
	assert.True(t, p.scanner.Enabled())

	h.Logout()
	h.ChangeTerritory(133)
	assert.False(t, p.scanner.Enabled(), "territory changes never enable a logged-out scanner")
}

func TestToggle(t *testing.T) {
	p, h := newPlugin(t, nil)
	h.Login(wol)

	require.True(t, h.RunCommand("/repairme"))
	assert.True(t, p.ui.SettingsVisible())
	assert.Empty(t, h.Chat())

	require.True(t, h.RunCommand("/repairme toggle"))
	assert.False(t, p.ui.SettingsVisible())
}

func TestToggle_ExplainsHiddenOverlay(t *testing.T) {
	_, h := newPlugin(t, nil)
	h.Login(wol)
	h.SetCondition(host.Occupied, true)

	require.True(t, h.RunCommand("/repairme set occupied on"))
	require.True(t, h.RunCommand("/repairme"))
	assert.Contains(t, lastChat(h).Text, "hidden while you are occupied")

	h.RunCommand("/repairme")
	h.SetCondition(host.Occupied, false)
	h.Exclude(250)
	h.ChangeTerritory(250)
	require.True(t, h.RunCommand("/repairme"))
	assert.Equal(t, "RepairMe is hidden in this area.", lastChat(h).Text)
}

func TestOpenConfig_ShowsSettings(t *testing.T) {
	p, h := newPlugin(t, nil)
	h.OpenConfig()
	assert.True(t, p.ui.SettingsVisible())
}

func TestSet(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		chat    string
		isError bool
		check   func(t *testing.T, s *config.Settings)
	}{
		{
			name: "low threshold",
			line: "/repairme set low 40",
			chat: "Thresholds: low 40%, critical 30%.",
			check: func(t *testing.T, s *config.Settings) {
				assert.Equal(t, 40, s.ThresholdLow)
			},
		},
		{
			name: "critical pushed below low",
			line: "/repairme set critical 70%",
			chat: "Thresholds: low 50%, critical 49%.",
			check: func(t *testing.T, s *config.Settings) {
				assert.Equal(t, 49, s.ThresholdCritical)
			},
		},
		{
			name: "alert text",
			line: `/repairme set text alertLowCondition "Repair soon!"`,
			chat: "Alert alertLowCondition text set.",
			check: func(t *testing.T, s *config.Settings) {
				a, ok := s.AlertFor(config.ElementAlertLowCondition)
				require.True(t, ok)
				assert.Equal(t, "Repair soon!", a.Text)
			},
		},
		{
			name: "shortcut",
			line: "/repairme set shortcut alertSpiritbond on",
			chat: "Alert alertSpiritbond shortcut: on.",
			check: func(t *testing.T, s *config.Settings) {
				a, _ := s.AlertFor(config.ElementAlertSpiritbond)
				assert.True(t, a.Shortcut)
			},
		},
		{
			name: "hide bar",
			line: "/repairme set show barSpiritbond off",
			chat: "barSpiritbond: off.",
			check: func(t *testing.T, s *config.Settings) {
				assert.False(t, s.SpiritbondBar.Enabled)
			},
		},
		{name: "not a number", line: "/repairme set low lots", isError: true},
		{name: "unknown element", line: "/repairme set show minimap on", isError: true},
		{name: "bad orientation", line: "/repairme set orientation barCondition 9", isError: true},
		{name: "unknown key", line: "/repairme set colour red blue", isError: true},
		{name: "missing value", line: "/repairme set low", isError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, h := newPlugin(t, nil)
			before := p.settings.Current()

			require.True(t, h.RunCommand(tt.line))
			line := lastChat(h)
			assert.Equal(t, tt.isError, line.Error, line.Text)

			if tt.isError {
				assert.Equal(t, before, p.settings.Current(), "failed set must not change settings")
				return
			}
			assert.Equal(t, tt.chat, line.Text)
			tt.check(t, p.settings.Current())
		})
	}
}

func TestSet_Persists(t *testing.T) {
	p, h := newPlugin(t, nil)
	require.True(t, h.RunCommand("/repairme set low 60"))
	require.NoError(t, p.Close())

	reloaded := config.NewStore(h, nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 60, reloaded.Current().ThresholdLow)
}

func TestUIModeCommands(t *testing.T) {
	p, h := newPlugin(t, nil)

	h.RunCommand("/repairme debug")
	assert.True(t, p.ui.DebugVisible())
	assert.Equal(t, "Debug table shown.", lastChat(h).Text)

	h.RunCommand("/repairme test")
	assert.False(t, p.ui.TestingMode())

	h.RunCommand("/repairme unlock")
	assert.True(t, p.ui.Unlocked())
	assert.True(t, p.ui.SettingsVisible())
	h.RunCommand("/repairme unlock")
	assert.False(t, p.ui.Unlocked())
	assert.Equal(t, "Overlay locked.", lastChat(h).Text)
}

func TestStatusCommand(t *testing.T) {
	_, h := newPlugin(t, nil)
	h.Login(wol)

	require.True(t, h.RunCommand("/repairme status"))
	assert.True(t, strings.HasPrefix(lastChat(h).Text, "Overlay: active\n"))
}

func TestUnknownSubcommand(t *testing.T) {
	_, h := newPlugin(t, nil)
	require.True(t, h.RunCommand("/repairme history"))
	assert.True(t, lastChat(h).Error, "history is only registered with a backend")
}

func TestHistory_RecordsAndExports(t *testing.T) {
	dir := t.TempDir()
	backend := memory.New(config.MemoryConfig{OutputDir: dir}, "test")
	p, h := newPlugin(t, backend)

	equip(h, 30000)
	h.Login(wol)
	h.Tick(time.Now())

	require.Eventually(t, func() bool {
		sum, err := backend.Summary()
		return err == nil && sum.Snapshots == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, h.RunCommand("/repairme history"))
	line := lastChat(h)
	assert.False(t, line.Error, line.Text)
	assert.Contains(t, line.Text, "Session #1 (Wol Lightwarden @ Ragnarok), logged in for")

	h.Logout()
	require.Eventually(t, func() bool { return backend.ExportedFilePath() != "" }, 2*time.Second, 5*time.Millisecond)
	path := backend.ExportedFilePath()
	assert.Equal(t, dir, filepath.Dir(path))
	_, err := os.Stat(path)
	assert.NoError(t, err)

	require.NoError(t, p.Close())
}

func TestHistory_RelogWithSameGearRecordsSecondSession(t *testing.T) {
	dir := t.TempDir()
	backend := memory.New(config.MemoryConfig{OutputDir: dir}, "test")
	_, h := newPlugin(t, backend)

	equip(h, 24000)
	h.Login(wol)
	h.Tick(time.Now())
	require.Eventually(t, func() bool {
		sum, err := backend.Summary()
		return err == nil && sum.Session.ID == 1 && sum.Snapshots == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.Logout()
	require.Eventually(t, func() bool { return backend.ExportedFilePath() != "" }, 2*time.Second, 5*time.Millisecond)
	first := backend.ExportedFilePath()

	h.Login(wol)
	h.Tick(time.Now())
	require.Eventually(t, func() bool {
		sum, err := backend.Summary()
		return err == nil && sum.Session.ID == 2 && sum.Snapshots == 1
	}, 2*time.Second, 5*time.Millisecond)

	sum, err := backend.Summary()
	require.NoError(t, err)
	assert.InDelta(t, 80, sum.LowestCondition, 0.01)

	h.Logout()
	require.Eventually(t, func() bool { return backend.ExportedFilePath() != first }, 2*time.Second, 5*time.Millisecond)
	assert.FileExists(t, first)
	assert.FileExists(t, backend.ExportedFilePath())
}

func TestClose_EndsRunningSession(t *testing.T) {
	dir := t.TempDir()
	backend := memory.New(config.MemoryConfig{OutputDir: dir}, "test")
	p, h := newPlugin(t, backend)
	h.Login(wol)

	require.NoError(t, p.Close())
	assert.NotEmpty(t, backend.ExportedFilePath())
	_, ok := p.sessions.Current()
	assert.False(t, ok)
}
