// Package plugin wires the extension together: it subscribes to the host's
// frame, draw and lifecycle callbacks and drives the scanner, the
// notification loop, the overlay and the history worker from them.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RepairMe/extension/internal/cache"
	"github.com/RepairMe/extension/internal/channel"
	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/gate"
	"github.com/RepairMe/extension/internal/influx"
	"github.com/RepairMe/extension/internal/logging"
	"github.com/RepairMe/extension/internal/monitor"
	"github.com/RepairMe/extension/internal/notify"
	"github.com/RepairMe/extension/internal/overlay"
	"github.com/RepairMe/extension/internal/scanner"
	"github.com/RepairMe/extension/internal/session"
	"github.com/RepairMe/extension/internal/storage"
	"github.com/RepairMe/extension/internal/worker"
	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
)

const (
	// Command is the slash command registered with the host.
	Command = "/repairme"

	commandHelp = "Toggle the RepairMe settings. Subcommands: status, debug, test, unlock, history, set, help."
)

// Dependencies holds what the plugin needs beyond the host services.
type Dependencies struct {
	Surface overlay.Surface
	// Backend, Influx and Uploader are optional. Without a backend no
	// history is kept.
	Backend   storage.Backend
	Influx    *influx.Manager
	Uploader  worker.Uploader
	Timing    config.TimingConfig
	StatusDir string
	Logger    *slog.Logger
}

// Plugin owns every component for the lifetime of the loaded extension.
type Plugin struct {
	services host.Services
	deps     Dependencies
	logger   *slog.Logger
	now      func() time.Time

	settings   *config.Store
	itemNames  *cache.ItemNames
	scanner    *scanner.Scanner
	gate       *gate.Gate
	notify     *notify.Handler
	ui         *overlay.UI
	dispatcher *dispatcher.Dispatcher
	bridge     *host.Bridge
	sessions   *session.Context
	worker     *worker.Manager
	monitor    *monitor.Service

	mu      sync.Mutex
	unsubs  []host.Unsubscribe
	started bool
	closed  bool
}

// New builds every component. Nothing is subscribed until Start.
func New(services host.Services, deps Dependencies) (*Plugin, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Surface == nil {
		return nil, errors.New("plugin needs a render surface")
	}

	p := &Plugin{
		services: services,
		deps:     deps,
		logger:   deps.Logger,
		now:      time.Now,
		sessions: session.NewContext(),
	}

	p.settings = config.NewStore(services.Config, deps.Logger)
	if err := p.settings.Load(); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	var scanOpts []scanner.Option
	if deps.Timing.ScanCooldown > 0 {
		scanOpts = append(scanOpts, scanner.WithCooldown(deps.Timing.ScanCooldown))
	}
	var err error
	p.scanner, err = scanner.New(services.Equipment, deps.Logger, scanOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}

	p.gate = gate.New(gate.Dependencies{
		Client:           services.Client,
		Territory:        services.Territory,
		Conditions:       services.Conditions,
		Addons:           services.Addons,
		HideWhenOccupied: func() bool { return p.settings.Current().HideWhenOccupied },
		Logger:           deps.Logger,
	})

	var notifyOpts []notify.Option
	if deps.Timing.NotifyCooldown > 0 {
		notifyOpts = append(notifyOpts, notify.WithCooldown(deps.Timing.NotifyCooldown))
	}
	p.notify, err = notify.New(p.scanner, deps.Logger, notifyOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating notification loop: %w", err)
	}

	p.notify.Subscribe(channel.SenderFunc[*core.Snapshot](p.logPublished))

	p.itemNames = cache.NewItemNames(services.GameData)
	p.ui = overlay.New(overlay.Dependencies{
		Surface:  deps.Surface,
		Activity: p.gate,
		Settings: p.settings,
		Source:   p.notify,
		Chat:     services.Chat,
		Names:    p.itemNames,
		Logger:   deps.Logger,
	})

	p.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(deps.Logger))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	monitorDeps := monitor.Dependencies{
		Scanner:   p.scanner,
		Gate:      p.gate,
		Notify:    p.notify,
		Session:   p.sessions,
		StatusDir: deps.StatusDir,
		Interval:  deps.Timing.StatusInterval,
		Logger:    deps.Logger,
	}

	if deps.Backend != nil {
		p.worker = worker.NewManager(worker.Dependencies{
			Backend: deps.Backend,
			Influx:   deps.Influx,
			Uploader: deps.Uploader,
			Session:  p.sessions,
			Logger:   deps.Logger,
		})
		p.worker.RegisterHandlers(p.dispatcher)
		p.notify.Subscribe(worker.NewSender(p.dispatcher, p.sessions, deps.Logger))
		monitorDeps.History = p.worker
	}

	p.monitor = monitor.NewService(monitorDeps)
	p.registerCommands()
	p.bridge = host.NewBridge(Command, commandHelp, services.Commands, services.Chat, p.dispatcher, deps.Logger)

	return p, nil
}

// UI returns the overlay, e.g. for a host that draws settings itself.
func (p *Plugin) UI() *overlay.UI {
	return p.ui
}

// Settings returns the settings store.
func (p *Plugin) Settings() *config.Store {
	return p.settings
}

// Subscribe adds a receiver for every published snapshot. s must not block.
func (p *Plugin) Subscribe(s channel.Sender[*core.Snapshot]) {
	p.notify.Subscribe(s)
}

// Sessions returns the login session context, for log attributes.
func (p *Plugin) Sessions() *session.Context {
	return p.sessions
}

// Start registers the slash command, subscribes to host callbacks and starts
// the notification loop. If a character is already logged in the scanner is
// enabled right away.
func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("plugin closed")
	}
	if p.started {
		return nil
	}

	if err := p.bridge.Register(); err != nil {
		return err
	}

	p.unsubs = append(p.unsubs,
		p.services.Framework.OnUpdate(p.onUpdate),
		p.services.UI.OnDraw(p.ui.Draw),
		p.services.UI.OnOpenConfig(p.onOpenConfig),
		p.services.Client.OnLogin(p.onLogin),
		p.services.Client.OnLogout(p.onLogout),
		p.services.Client.OnTerritoryChanged(p.onTerritoryChanged),
	)

	if err := p.notify.Start(ctx); err != nil {
		return fmt.Errorf("starting notification loop: %w", err)
	}
	if err := p.monitor.Start(); err != nil {
		p.logger.Warn("status monitor not started", "error", err)
	}

	p.started = true
	p.logger.Info("plugin started", "history", p.worker != nil)

	if p.services.Client.IsLoggedIn() {
		p.onLogin()
	}
	return nil
}

// Close unsubscribes everything, stops the notification loop and then shuts
// down the history path. Safe to call more than once.
func (p *Plugin) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	unsubs := p.unsubs
	p.unsubs = nil
	started := p.started
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if started {
		p.bridge.Close()
	}
	p.notify.Stop()

	var errs []error
	if p.worker != nil {
		if err := p.worker.EndSession(p.now()); err != nil && !errors.Is(err, dispatcher.ErrClosed) {
			errs = append(errs, fmt.Errorf("ending session: %w", err))
		}
	}
	p.dispatcher.Close()
	p.monitor.Stop()

	if p.deps.Backend != nil {
		if err := p.deps.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing history backend: %w", err))
		}
	}
	if p.deps.Influx != nil {
		if err := p.deps.Influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing influx: %w", err))
		}
	}

	p.logger.Info("plugin closed")
	return errors.Join(errs...)
}

func (p *Plugin) onUpdate(now time.Time) {
	if snap := p.scanner.Scan(now); snap != nil {
		p.notify.Notify()
	}
}

func (p *Plugin) logPublished(s *core.Snapshot) {
	p.logger.Debug("equipment published",
		"equipped", s.Equipped(),
		"lowestCondition", s.LowestConditionPercent(),
		"lowestConditionSlot", s.LowestConditionSlot(),
		"highestSpiritbond", s.HighestSpiritbondPercent())
}

func (p *Plugin) onOpenConfig() {
	p.ui.SetSettingsVisible(true)
}

// onLogin starts the history session before anything is published, so the
// first snapshot of the login is recorded.
func (p *Plugin) onLogin() {
	p.itemNames.Reset()
	p.startSession()

	if p.services.Territory.IsExcluded(p.services.Territory.CurrentTerritory()) {
		p.logger.Debug("logged in to an excluded territory, scanner stays disabled")
	} else {
		p.scanner.Enable()
	}
	p.gate.RefreshLoading()
	p.notify.Notify()
}

func (p *Plugin) startSession() {
	if p.worker == nil {
		return
	}
	character, ok := p.services.Client.LocalCharacter()
	if !ok {
		p.logger.Warn("logged in without a local character, history session not started")
		return
	}
	if err := p.worker.StartSession(character, p.now()); err != nil {
		p.logger.Error("error starting history session", "error", err)
	}
}

func (p *Plugin) onLogout() {
	p.scanner.Disable()
	p.notify.Block()

	if p.worker == nil {
		return
	}
	if err := p.worker.EndSession(p.now()); err != nil {
		p.logger.Error("error ending history session", "error", err)
	}
}

func (p *Plugin) onTerritoryChanged(territory uint32) {
	if p.services.Territory.IsExcluded(territory) {
		p.logger.Debug("entered excluded territory", "territory", territory)
		p.scanner.Disable()
		return
	}
	if p.services.Client.IsLoggedIn() {
		p.scanner.Enable()
	}
}
