// Package gate decides whether the overlay should be shown and the scanner's
// output trusted.
package gate

import (
	"log/slog"
	"sync"

	"github.com/RepairMe/extension/pkg/host"
)

// LoadingAddon is the native element shown during loading screens.
const LoadingAddon = "NowLoading"

// OccupiedFlags are the conditions that hide the overlay when the
// hide-when-occupied setting is on.
var OccupiedFlags = []host.ConditionFlag{
	host.Occupied,
	host.OccupiedInCutSceneEvent,
	host.OccupiedSummoningBell,
	host.OccupiedInQuestEvent,
	host.Occupied38,
	host.OccupiedInEvent,
	host.Crafting,
}

// Reason names the first predicate that made the gate inactive.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonLoggedOut
	ReasonLoading
	ReasonExcludedArea
	ReasonOccupied
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "active"
	case ReasonLoggedOut:
		return "logged out"
	case ReasonLoading:
		return "loading"
	case ReasonExcludedArea:
		return "in a restricted area"
	case ReasonOccupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// Dependencies holds the host capabilities the gate queries.
type Dependencies struct {
	Client     host.ClientState
	Territory  host.Territory
	Conditions host.Conditions
	Addons     host.Addons
	// HideWhenOccupied reads the live setting.
	HideWhenOccupied func() bool
	Logger           *slog.Logger
}

// Gate is re-evaluated on every call; nothing but the loading-screen handle
// is cached.
type Gate struct {
	deps Dependencies

	mu      sync.Mutex
	loading host.Addon
}

// New creates a Gate.
func New(deps Dependencies) *Gate {
	if deps.HideWhenOccupied == nil {
		deps.HideWhenOccupied = func() bool { return true }
	}
	return &Gate{deps: deps}
}

// IsActive reports whether the player is logged in, not loading, not in an
// excluded area and, if the setting asks for it, not occupied.
func (g *Gate) IsActive() bool {
	return g.Reason() == ReasonNone
}

// Reason evaluates the predicates in order and returns the first that
// failed, or ReasonNone.
func (g *Gate) Reason() Reason {
	switch {
	case !g.deps.Client.IsLoggedIn():
		return ReasonLoggedOut
	case g.IsLoading():
		return ReasonLoading
	case g.InExcludedArea():
		return ReasonExcludedArea
	case g.IsOccupied():
		return ReasonOccupied
	default:
		return ReasonNone
	}
}

// InExcludedArea reports whether the current territory hides the overlay.
func (g *Gate) InExcludedArea() bool {
	return g.deps.Territory.IsExcluded(g.deps.Territory.CurrentTerritory())
}

// IsOccupied reports whether an occupied condition is set and the user opted
// into hiding while occupied.
func (g *Gate) IsOccupied() bool {
	return g.deps.HideWhenOccupied() && g.deps.Conditions.Any(OccupiedFlags...)
}

// IsLoading reports whether the loading screen is visible. A failed query
// re-resolves the element once; if that fails too it counts as not loading.
func (g *Gate) IsLoading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.loading == nil {
		if !g.lookupLoading() {
			return false
		}
	}

	visible, err := g.loading.IsVisible()
	if err == nil {
		return visible
	}

	g.deps.Logger.Debug("loading screen query failed, re-resolving", "error", err)
	if !g.lookupLoading() {
		return false
	}
	visible, err = g.loading.IsVisible()
	if err != nil {
		g.deps.Logger.Debug("loading screen query failed", "error", err)
		g.loading = nil
		return false
	}
	return visible
}

// RefreshLoading forgets the cached loading-screen handle. Called on login,
// when native UI elements are rebuilt.
func (g *Gate) RefreshLoading() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loading = nil
}

func (g *Gate) lookupLoading() bool {
	a, err := g.deps.Addons.Lookup(LoadingAddon, 1)
	if err != nil {
		g.deps.Logger.Debug("loading screen element not found", "error", err)
		g.loading = nil
		return false
	}
	g.loading = a
	return true
}
