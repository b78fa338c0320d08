package overlay

import (
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
)

// Chat commands sent when a clickable alert is clicked.
const (
	RepairShortcut     = `/gaction "Repair"`
	ExtractionShortcut = `/gaction "Materia Extraction"`
)

// ShortcutFor returns the chat command bound to an alert.
func ShortcutFor(e config.Element) string {
	switch e {
	case config.ElementAlertLowCondition, config.ElementAlertCriticalCondition:
		return RepairShortcut
	case config.ElementAlertSpiritbond:
		return ExtractionShortcut
	}
	return ""
}

// Activity reports whether the overlay may be drawn.
type Activity interface {
	IsActive() bool
}

// SnapshotSource returns the last published snapshot, or nil.
type SnapshotSource interface {
	Latest() *core.Snapshot
}

// UI draws the overlay on every host draw callback. Draw runs on the host
// GUI thread; the mode toggles may be called from any goroutine.
type UI struct {
	surface  Surface
	activity Activity
	settings *config.Store
	source   SnapshotSource
	chat     host.Chat
	names    host.GameData
	logger   *slog.Logger
	now      func() time.Time

	settingsVisible atomic.Bool
	testing         atomic.Bool
	unlocked        atomic.Bool
	debugVisible    atomic.Bool

	firstFrame bool
	frames     atomic.Int64
}

// Dependencies groups what the UI needs from the rest of the extension.
type Dependencies struct {
	Surface  Surface
	Activity Activity
	Settings *config.Store
	Source   SnapshotSource
	Chat     host.Chat
	Names    host.GameData
	Logger   *slog.Logger
}

func New(deps Dependencies) *UI {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	u := &UI{
		surface:    deps.Surface,
		activity:   deps.Activity,
		settings:   deps.Settings,
		source:     deps.Source,
		chat:       deps.Chat,
		names:      deps.Names,
		logger:     logger.With("component", "overlay"),
		now:        time.Now,
		firstFrame: true,
	}
	u.testing.Store(true)
	return u
}

// ToggleSettings flips settings visibility and returns the new state.
func (u *UI) ToggleSettings() bool {
	for {
		old := u.settingsVisible.Load()
		if u.settingsVisible.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (u *UI) SettingsVisible() bool       { return u.settingsVisible.Load() }
func (u *UI) SetSettingsVisible(v bool)   { u.settingsVisible.Store(v) }
func (u *UI) SetTestingMode(v bool)       { u.testing.Store(v) }
func (u *UI) TestingMode() bool           { return u.testing.Load() }
func (u *UI) SetUnlocked(v bool)          { u.unlocked.Store(v) }
func (u *UI) SetDebugVisible(v bool)      { u.debugVisible.Store(v) }
func (u *UI) DebugVisible() bool          { return u.debugVisible.Load() }
func (u *UI) Frames() int64               { return u.frames.Load() }

// Unlocked reports whether elements can be moved. The unlock switch only
// takes effect while settings are visible.
func (u *UI) Unlocked() bool {
	return u.unlocked.Load() && u.settingsVisible.Load()
}

// Testing reports whether synthetic values are shown.
func (u *UI) Testing() bool {
	return u.testing.Load() && u.settingsVisible.Load()
}

// Draw renders one frame. Any panic from the surface is recovered and
// logged so the host GUI keeps running.
func (u *UI) Draw() {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("prevented GUI crash", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if !u.activity.IsActive() {
		return
	}

	w, h := u.surface.Viewport()
	profile, err := u.settings.EnsureProfile(w, h)
	if err != nil {
		u.logger.Debug("drawing with unsaved profile", "error", err)
	}
	settings := u.settings.Current()
	unlocked := u.Unlocked()

	frame := Compose(Input{
		Snapshot: u.source.Latest(),
		Settings: settings,
		Profile:  profile,
		Testing:  u.Testing(),
		Unlocked: unlocked,
		Now:      u.now(),
	})

	var moves []config.Mutation
	record := func(p Placement, fb Feedback) {
		if fb.Moved && (p.Free || p.Movable) {
			moves = append(moves, config.MovePosition(profile.ID(), p.ID, fb.Position))
		}
	}

	for _, b := range frame.Bars {
		record(b.Placement, u.surface.DrawBar(b))
	}
	for _, l := range frame.Labels {
		record(l.Placement, u.surface.DrawLabel(l))
	}
	for _, a := range frame.Alerts {
		fb := u.surface.DrawAlert(a)
		record(a.Placement, fb)
		if fb.Clicked && a.Clickable && !unlocked {
			u.runShortcut(a.ID)
		}
	}

	if u.debugVisible.Load() {
		if snap := u.source.Latest(); snap != nil {
			u.surface.DrawDebug(DebugRows(snap, u.names))
		}
	}

	if u.firstFrame && !settings.PositionsMigrated {
		moves = append(moves, config.MarkPositionsMigrated())
		u.logger.Info("captured element positions", "resolution", profile.ID(), "elements", len(moves)-1)
	}
	u.firstFrame = false

	if len(moves) > 0 {
		if err := u.settings.Update(moves...); err != nil {
			u.logger.Warn("failed to save element positions", "error", err)
		}
	}
	u.frames.Add(1)
}

func (u *UI) runShortcut(e config.Element) {
	cmd := ShortcutFor(e)
	if cmd == "" || u.chat == nil {
		return
	}
	if err := u.chat.SendMessage(cmd); err != nil {
		u.logger.Warn("alert shortcut failed", "element", e, "error", err)
	}
}
