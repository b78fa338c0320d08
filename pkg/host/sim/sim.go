// Package sim is an in-process host used by tests and the dev harness. It
// implements every capability in package host and exposes drivers to move
// the simulated client through login, zoning, gear changes and frames.
package sim

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
)

// LoadingAddon is the name of the native loading screen element.
const LoadingAddon = "NowLoading"

// ChatLine is one line printed to the simulated chat log.
type ChatLine struct {
	Text  string
	Error bool
}

type subs[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]T
}

func (s *subs[T]) add(fn T) host.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]T)
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subs[T]) list() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.fns))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.fns[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (s *subs[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Host is a simulated game client.
type Host struct {
	mu         sync.Mutex
	loggedIn   bool
	character  core.Character
	territory  uint32
	excluded   map[uint32]bool
	conditions map[host.ConditionFlag]bool
	addons     map[string]*addon
	slots      core.Slots
	generation int
	acquireErr error
	readErr    error
	reads      int
	width      int
	height     int
	commands   map[string]host.CommandFunc
	chat       []ChatLine
	sent       []string
	items      map[uint32]string
	config     []byte

	update  subs[func(time.Time)]
	draw    subs[func()]
	openCfg subs[func()]
	login   subs[func()]
	logout  subs[func()]
	zone    subs[func(uint32)]
}

// New returns a logged-out host with a 1920x1080 viewport and a hidden
// loading screen element.
func New() *Host {
	h := &Host{
		excluded:   make(map[uint32]bool),
		conditions: make(map[host.ConditionFlag]bool),
		addons:     make(map[string]*addon),
		commands:   make(map[string]host.CommandFunc),
		items:      make(map[uint32]string),
		width:      1920,
		height:     1080,
	}
	h.addons[LoadingAddon] = &addon{h: h, name: LoadingAddon}
	return h
}

// Services bundles the host's capabilities.
func (h *Host) Services() host.Services {
	return host.Services{
		Framework:  h,
		UI:         h,
		Client:     h,
		Territory:  h,
		Conditions: h,
		Addons:     h,
		Equipment:  h,
		Config:     h,
		Commands:   h,
		Chat:       h,
		GameData:   h,
	}
}

// Framework / UIBuilder

func (h *Host) OnUpdate(fn func(time.Time)) host.Unsubscribe { return h.update.add(fn) }
func (h *Host) OnDraw(fn func()) host.Unsubscribe            { return h.draw.add(fn) }
func (h *Host) OnOpenConfig(fn func()) host.Unsubscribe      { return h.openCfg.add(fn) }

func (h *Host) Viewport() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// ClientState

func (h *Host) IsLoggedIn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loggedIn
}

func (h *Host) LocalCharacter() (core.Character, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.character, h.loggedIn
}

func (h *Host) OnLogin(fn func()) host.Unsubscribe  { return h.login.add(fn) }
func (h *Host) OnLogout(fn func()) host.Unsubscribe { return h.logout.add(fn) }
func (h *Host) OnTerritoryChanged(fn func(uint32)) host.Unsubscribe {
	return h.zone.add(fn)
}

// Territory

func (h *Host) CurrentTerritory() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.territory
}

func (h *Host) IsExcluded(territory uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.excluded[territory]
}

// Conditions

func (h *Host) Any(flags ...host.ConditionFlag) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range flags {
		if h.conditions[f] {
			return true
		}
	}
	return false
}

// Addons

type addon struct {
	h       *Host
	name    string
	visible bool
	removed bool
}

func (a *addon) IsVisible() (bool, error) {
	a.h.mu.Lock()
	defer a.h.mu.Unlock()
	if a.removed {
		return false, fmt.Errorf("%s: stale handle", a.name)
	}
	return a.visible, nil
}

func (h *Host) Lookup(name string, index int) (host.Addon, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.addons[name]
	if !ok || index != 1 {
		return nil, fmt.Errorf("%s/%d: %w", name, index, host.ErrAddonNotFound)
	}
	return a, nil
}

// Equipment

type source struct {
	h          *Host
	generation int
}

func (s *source) ReadEquipmentSlots() (core.Slots, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	if s.generation != s.h.generation || !s.h.loggedIn {
		return core.Slots{}, host.ErrSourceUnavailable
	}
	if s.h.readErr != nil {
		return core.Slots{}, s.h.readErr
	}
	s.h.reads++
	return s.h.slots, nil
}

func (h *Host) AcquireEquipment() (host.EquipmentSource, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acquireErr != nil {
		return nil, h.acquireErr
	}
	if !h.loggedIn {
		return nil, host.ErrSourceUnavailable
	}
	return &source{h: h, generation: h.generation}, nil
}

// ConfigStore

func (h *Host) Load(v any) (bool, error) {
	h.mu.Lock()
	data := h.config
	h.mu.Unlock()
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decoding config: %w", err)
	}
	return true, nil
}

func (h *Host) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	h.mu.Lock()
	h.config = data
	h.mu.Unlock()
	return nil
}

// Commands

func (h *Host) AddHandler(command, _ string, fn host.CommandFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.commands[command]; ok {
		return fmt.Errorf("command %s already registered", command)
	}
	h.commands[command] = fn
	return nil
}

func (h *Host) RemoveHandler(command string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.commands, command)
}

// Chat

func (h *Host) Print(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chat = append(h.chat, ChatLine{Text: msg})
}

func (h *Host) PrintError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chat = append(h.chat, ChatLine{Text: msg, Error: true})
}

func (h *Host) SendMessage(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, text)
	return nil
}

// GameData

func (h *Host) ItemName(id uint32) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name, ok := h.items[id]
	return name, ok
}
