package sim

import (
	"strings"
	"time"

	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
)

// Login logs c in, invalidating any equipment handle from an earlier login,
// and fires the login callbacks.
func (h *Host) Login(c core.Character) {
	h.mu.Lock()
	h.loggedIn = true
	h.character = c
	h.generation++
	h.mu.Unlock()

	for _, fn := range h.login.list() {
		fn()
	}
}

// Logout fires the logout callbacks.
func (h *Host) Logout() {
	h.mu.Lock()
	h.loggedIn = false
	h.generation++
	h.mu.Unlock()

	for _, fn := range h.logout.list() {
		fn()
	}
}

// ChangeTerritory moves the character and fires the territory callbacks.
func (h *Host) ChangeTerritory(territory uint32) {
	h.mu.Lock()
	h.territory = territory
	h.mu.Unlock()

	for _, fn := range h.zone.list() {
		fn(territory)
	}
}

// Exclude marks territory as one where the overlay is hidden.
func (h *Host) Exclude(territory uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.excluded[territory] = true
}

// Tick runs one frame update.
func (h *Host) Tick(now time.Time) {
	for _, fn := range h.update.list() {
		fn(now)
	}
}

// Draw runs one frame draw.
func (h *Host) Draw() {
	for _, fn := range h.draw.list() {
		fn()
	}
}

// OpenConfig simulates the installer's settings button.
func (h *Host) OpenConfig() {
	for _, fn := range h.openCfg.list() {
		fn()
	}
}

// Subscribers returns the number of live frame, draw and lifecycle callbacks.
func (h *Host) Subscribers() int {
	return h.update.len() + h.draw.len() + h.openCfg.len() +
		h.login.len() + h.logout.len() + h.zone.len()
}

// SetSlots replaces the equipped items.
func (h *Host) SetSlots(slots core.Slots) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots = slots
}

// SetSlot replaces one equipped item.
func (h *Host) SetSlot(i int, slot core.Slot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slots[i] = slot
}

// Reads is the number of successful equipment reads.
func (h *Host) Reads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reads
}

// FailAcquire makes AcquireEquipment return err; nil restores it.
func (h *Host) FailAcquire(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acquireErr = err
}

// FailRead makes every equipment read return err; nil restores it.
func (h *Host) FailRead(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readErr = err
}

// SetCondition sets or clears a condition flag.
func (h *Host) SetCondition(flag host.ConditionFlag, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conditions[flag] = on
}

// SetLoading shows or hides the loading screen.
func (h *Host) SetLoading(visible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.addons[LoadingAddon]; ok {
		a.visible = visible
	}
}

// RecreateAddon replaces the named element, leaving handles to the old one
// stale.
func (h *Host) RecreateAddon(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var visible bool
	if old, ok := h.addons[name]; ok {
		old.removed = true
		visible = old.visible
	}
	h.addons[name] = &addon{h: h, name: name, visible: visible}
}

// RemoveAddon deletes the named element.
func (h *Host) RemoveAddon(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.addons[name]; ok {
		old.removed = true
	}
	delete(h.addons, name)
}

// SetViewport changes the screen resolution.
func (h *Host) SetViewport(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.width, h.height = width, height
}

// SetItemName registers an item name for GameData lookups.
func (h *Host) SetItemName(id uint32, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[id] = name
}

// RunCommand types line into chat, e.g. "/repairme status". It reports
// whether a handler was registered for the command.
func (h *Host) RunCommand(line string) bool {
	command, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	h.mu.Lock()
	fn, ok := h.commands[command]
	h.mu.Unlock()
	if !ok {
		return false
	}
	fn(command, strings.TrimSpace(args))
	return true
}

// Chat returns every line printed to chat so far.
func (h *Host) Chat() []ChatLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ChatLine(nil), h.chat...)
}

// Sent returns every message sent as the player.
func (h *Host) Sent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...)
}
