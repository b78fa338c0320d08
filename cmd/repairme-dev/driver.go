package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RepairMe/extension/internal/overlay"
	"github.com/RepairMe/extension/internal/util"
	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
	"github.com/RepairMe/extension/pkg/host/sim"
)

const frameInterval = 100 * time.Millisecond

const driverHelp = `commands:
  login <name> <world>            log a character in
  logout                          log out
  zone <id> [excluded]            change territory
  wear <slot> <cond%> <sb%> [id]  equip an item
  remove <slot>                   empty a slot
  occupied on|off                 set the occupied condition
  loading on|off                  show or hide the loading screen
  frame                           print the last drawn frame
  /repairme ...                   run a chat command
  quit`

// consoleSurface keeps the elements drawn in the last frame so the driver
// can print them.
type consoleSurface struct {
	viewport interface{ Viewport() (int, int) }
	out      io.Writer

	mu    sync.Mutex
	lines []string
	last  []string
}

func newConsoleSurface(viewport interface{ Viewport() (int, int) }, out io.Writer) *consoleSurface {
	return &consoleSurface{viewport: viewport, out: out}
}

func (s *consoleSurface) Viewport() (int, int) {
	return s.viewport.Viewport()
}

func (s *consoleSurface) add(line string, p overlay.Placement) overlay.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, fmt.Sprintf("%-24s at %v %s", p.ID, p.Position, line))
	return overlay.Feedback{Position: p.Position}
}

func (s *consoleSurface) DrawBar(b overlay.Bar) overlay.Feedback {
	return s.add(fmt.Sprintf("bar %3.0f%%", b.Progress*100), b.Placement)
}

func (s *consoleSurface) DrawLabel(l overlay.Label) overlay.Feedback {
	return s.add(fmt.Sprintf("label %q", l.Text), l.Placement)
}

func (s *consoleSurface) DrawAlert(a overlay.Alert) overlay.Feedback {
	return s.add(fmt.Sprintf("alert %q", a.Text), a.Placement)
}

func (s *consoleSurface) DrawDebug(rows []overlay.DebugRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.lines = append(s.lines, r.String())
	}
}

// endFrame keeps the frame just drawn.
func (s *consoleSurface) endFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.lines = s.lines, nil
}

func (s *consoleSurface) print() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.last) == 0 {
		fmt.Fprintln(s.out, "(nothing drawn)")
		return
	}
	for _, l := range s.last {
		fmt.Fprintln(s.out, l)
	}
}

// driver runs frames on a ticker and applies stdin lines between them, so
// every host callback fires on one goroutine like the game's main thread.
type driver struct {
	host      *sim.Host
	surface   *consoleSurface
	out       io.Writer
	chatOut   int
	published <-chan *core.Snapshot
}

func newDriver(h *sim.Host, surface *consoleSurface, out io.Writer) *driver {
	return &driver{host: h, surface: surface, out: out}
}

// watch prints every snapshot received on ch.
func (d *driver) watch(ch <-chan *core.Snapshot) {
	d.published = ch
}

func (d *driver) printSnapshot(s *core.Snapshot) {
	fmt.Fprintf(d.out, "[published] %d equipped, lowest condition %s (slot %d), highest spiritbond %s\n",
		s.Equipped(),
		util.FormatPercent(s.LowestConditionPercent(), true, true),
		s.LowestConditionSlot(),
		util.FormatPercent(s.HighestSpiritbondPercent(), true, true))
}

func (d *driver) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(d.out, driverHelp)
	lines := readLines(in)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			d.host.Tick(now)
			d.host.Draw()
			d.surface.endFrame()
		case snap, ok := <-d.published:
			if !ok {
				d.published = nil
				continue
			}
			d.printSnapshot(snap)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := d.apply(line)
			if err != nil {
				fmt.Fprintln(d.out, "error:", err)
			}
			d.flushChat()
			if quit {
				return nil
			}
		}
	}
}

func (d *driver) flushChat() {
	chat := d.host.Chat()
	for _, l := range chat[d.chatOut:] {
		prefix := "[chat]"
		if l.Error {
			prefix = "[chat error]"
		}
		fmt.Fprintln(d.out, prefix, l.Text)
	}
	d.chatOut = len(chat)
}

func (d *driver) apply(line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		if !d.host.RunCommand(line) {
			return false, fmt.Errorf("unknown command %s", line)
		}
		return false, nil
	}

	args := util.SplitArgs(line)
	switch args[0] {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(d.out, driverHelp)
	case "login":
		if len(args) < 3 {
			return false, fmt.Errorf("login <name> <world>")
		}
		d.host.Login(core.Character{Name: args[1], World: args[2]})
	case "logout":
		d.host.Logout()
	case "zone":
		if len(args) < 2 {
			return false, fmt.Errorf("zone <id> [excluded]")
		}
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return false, err
		}
		if len(args) > 2 && args[2] == "excluded" {
			d.host.Exclude(uint32(id))
		}
		d.host.ChangeTerritory(uint32(id))
	case "wear":
		return false, d.wear(args[1:])
	case "remove":
		if len(args) < 2 {
			return false, fmt.Errorf("remove <slot>")
		}
		i, err := slotIndex(args[1])
		if err != nil {
			return false, err
		}
		d.host.SetSlot(i, core.Slot{})
	case "occupied", "loading":
		if len(args) < 2 {
			return false, fmt.Errorf("%s on|off", args[0])
		}
		on, err := util.ParseSwitch(args[1])
		if err != nil {
			return false, err
		}
		if args[0] == "occupied" {
			d.host.SetCondition(host.Occupied, on)
		} else {
			d.host.SetLoading(on)
		}
	case "frame":
		d.surface.print()
	default:
		return false, fmt.Errorf("unknown input %q, try help", args[0])
	}
	return false, nil
}

func (d *driver) wear(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("wear <slot> <cond%%> <sb%%> [id]")
	}
	i, err := slotIndex(args[0])
	if err != nil {
		return err
	}
	cond, err := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
	if err != nil {
		return err
	}
	sb, err := strconv.ParseFloat(strings.TrimSuffix(args[2], "%"), 64)
	if err != nil {
		return err
	}
	id := uint64(1000 + i)
	if len(args) > 3 {
		if id, err = strconv.ParseUint(args[3], 10, 32); err != nil {
			return err
		}
	}
	d.host.SetSlot(i, core.Slot{
		ItemID:     uint32(id),
		Condition:  uint16(cond * core.MaxCondition / 100),
		Spiritbond: uint16(sb * core.MaxSpiritbond / 100),
	})
	return nil
}

func slotIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= core.SlotCount {
		return 0, fmt.Errorf("slot must be 0..%d", core.SlotCount-1)
	}
	return i, nil
}
