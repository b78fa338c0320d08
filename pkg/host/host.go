// Package host defines the capabilities the extension consumes from the game
// client's plugin framework. Every dependency on the host goes through one of
// these interfaces so the extension can be driven by a fake in tests.
package host

import (
	"errors"
	"time"

	"github.com/RepairMe/extension/pkg/core"
)

var (
	// ErrSourceUnavailable is returned when the equipment container cannot
	// be resolved, e.g. while no character is loaded.
	ErrSourceUnavailable = errors.New("equipment source unavailable")

	// ErrAddonNotFound is returned by Addons when the named UI element does
	// not exist (yet).
	ErrAddonNotFound = errors.New("addon not found")
)

// Unsubscribe removes a previously registered callback.
type Unsubscribe func()

// Framework delivers the per-frame update on the game's main thread.
type Framework interface {
	OnUpdate(fn func(now time.Time)) Unsubscribe
}

// UIBuilder delivers the per-frame draw callback and the "open config"
// request from the plugin installer.
type UIBuilder interface {
	OnDraw(fn func()) Unsubscribe
	OnOpenConfig(fn func()) Unsubscribe
	Viewport() (width, height int)
}

// ClientState exposes the session lifecycle.
type ClientState interface {
	IsLoggedIn() bool
	LocalCharacter() (core.Character, bool)
	OnLogin(fn func()) Unsubscribe
	OnLogout(fn func()) Unsubscribe
	OnTerritoryChanged(fn func(territory uint32)) Unsubscribe
}

// Territory answers whether the current area is one where the overlay is not
// shown, such as PvP instances.
type Territory interface {
	CurrentTerritory() uint32
	IsExcluded(territory uint32) bool
}

// ConditionFlag is a client condition bit.
type ConditionFlag int

const (
	Occupied ConditionFlag = iota + 1
	OccupiedInCutSceneEvent
	OccupiedSummoningBell
	OccupiedInQuestEvent
	Occupied38
	OccupiedInEvent
	Crafting
	BetweenAreas
)

// Conditions queries the client's condition flags.
type Conditions interface {
	Any(flags ...ConditionFlag) bool
}

// Addon is a resolved handle to a native UI element.
type Addon interface {
	IsVisible() (bool, error)
}

// Addons resolves native UI elements by name.
type Addons interface {
	Lookup(name string, index int) (Addon, error)
}

// EquipmentSource reads the equipped-items container. It must copy the values
// out; the returned array is owned by the caller.
type EquipmentSource interface {
	ReadEquipmentSlots() (core.Slots, error)
}

// EquipmentProvider resolves the equipped-items container. The handle is only
// valid for the current login.
type EquipmentProvider interface {
	AcquireEquipment() (EquipmentSource, error)
}

// ConfigStore persists the plugin configuration. Load reports found=false
// when nothing has been saved yet.
type ConfigStore interface {
	Load(v any) (found bool, err error)
	Save(v any) error
}

// CommandFunc handles a slash command. args is everything after the command.
type CommandFunc func(command, args string)

// Commands registers slash commands.
type Commands interface {
	AddHandler(command, help string, fn CommandFunc) error
	RemoveHandler(command string)
}

// Chat prints to the local chat log and sends text as if typed by the player.
type Chat interface {
	Print(msg string)
	PrintError(msg string)
	SendMessage(text string) error
}

// GameData looks up static game data.
type GameData interface {
	ItemName(id uint32) (string, bool)
}

// Services bundles every host capability. It is built once by the host glue
// and passed down to the components that need it.
type Services struct {
	Framework  Framework
	UI         UIBuilder
	Client     ClientState
	Territory  Territory
	Conditions Conditions
	Addons     Addons
	Equipment  EquipmentProvider
	Config     ConfigStore
	Commands   Commands
	Chat       Chat
	GameData   GameData
}
