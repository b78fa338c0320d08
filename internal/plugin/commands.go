package plugin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/gate"
	"github.com/RepairMe/extension/internal/util"
)

// Subcommands of /repairme, as dispatcher commands.
const (
	CommandToggle = ":TOGGLE:"
	CommandStatus = ":STATUS:"
	CommandDebug  = ":DEBUG:"
	CommandTest   = ":TEST:"
	CommandUnlock = ":UNLOCK:"
	CommandSet    = ":SET:"
	CommandHelp   = ":HELP:"
)

var ErrUsage = errors.New("usage")

const setUsage = `usage: /repairme set low|critical <0-100> | occupied on|off | text <alert> "<text>" | shortcut <alert> on|off | show <element> on|off | orientation <bar> <0-3>`

func (p *Plugin) registerCommands() {
	d := p.dispatcher
	d.Register(CommandToggle, p.handleToggle)
	d.Register(CommandStatus, p.handleStatus)
	d.Register(CommandDebug, p.handleDebug)
	d.Register(CommandTest, p.handleTest)
	d.Register(CommandUnlock, p.handleUnlock)
	d.Register(CommandSet, p.handleSet, dispatcher.Logged())
	d.Register(CommandHelp, p.handleHelp)
}

func (p *Plugin) handleToggle(dispatcher.Event) (any, error) {
	if !p.ui.ToggleSettings() {
		return nil, nil
	}
	switch p.gate.Reason() {
	case gate.ReasonOccupied:
		return "RepairMe is hidden while you are occupied. Use /repairme set occupied off to show it anyway.", nil
	case gate.ReasonExcludedArea:
		return "RepairMe is hidden in this area.", nil
	}
	return nil, nil
}

func (p *Plugin) handleStatus(e dispatcher.Event) (any, error) {
	return p.monitor.GetProgramStatus(e.Timestamp), nil
}

func (p *Plugin) handleDebug(dispatcher.Event) (any, error) {
	visible := !p.ui.DebugVisible()
	p.ui.SetDebugVisible(visible)
	if visible {
		return "Debug table shown.", nil
	}
	return "Debug table hidden.", nil
}

func (p *Plugin) handleTest(dispatcher.Event) (any, error) {
	on := !p.ui.TestingMode()
	p.ui.SetTestingMode(on)
	if on {
		return "Testing mode on: the overlay cycles through sample values while settings are open.", nil
	}
	return "Testing mode off.", nil
}

func (p *Plugin) handleUnlock(dispatcher.Event) (any, error) {
	on := !p.ui.Unlocked()
	p.ui.SetUnlocked(on)
	if on {
		p.ui.SetSettingsVisible(true)
		return "Overlay unlocked: drag elements to move them, /repairme unlock again to lock.", nil
	}
	return "Overlay locked.", nil
}

func (p *Plugin) handleHelp(dispatcher.Event) (any, error) {
	return []string{
		commandHelp,
		setUsage,
	}, nil
}

// handleSet applies one settings change from chat through the store.
func (p *Plugin) handleSet(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrUsage, setUsage)
	}

	key, args := strings.ToLower(e.Args[0]), e.Args[1:]
	mutation, msg, err := parseSet(key, args)
	if err != nil {
		return nil, err
	}
	if err := p.settings.Update(mutation); err != nil {
		return nil, err
	}

	cur := p.settings.Current()
	switch key {
	case "low", "critical":
		// normalization may have moved the other threshold
		return fmt.Sprintf("Thresholds: low %d%%, critical %d%%.", cur.ThresholdLow, cur.ThresholdCritical), nil
	}
	return msg, nil
}

func parseSet(key string, args []string) (config.Mutation, string, error) {
	switch key {
	case "low", "critical":
		v, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s needs a number, got %q", ErrUsage, key, args[0])
		}
		if key == "low" {
			return config.SetLowThreshold(v), "", nil
		}
		return config.SetCriticalThreshold(v), "", nil

	case "occupied":
		on, err := util.ParseSwitch(args[0])
		if err != nil {
			return nil, "", err
		}
		return config.SetHideWhenOccupied(on), fmt.Sprintf("Hide when occupied: %s.", onOff(on)), nil
	}

	if len(args) < 2 {
		return nil, "", fmt.Errorf("%w: %s", ErrUsage, setUsage)
	}
	element, value := config.Element(args[0]), args[1]

	switch key {
	case "text":
		return config.SetAlertText(element, value), fmt.Sprintf("Alert %s text set.", element), nil

	case "shortcut":
		on, err := util.ParseSwitch(value)
		if err != nil {
			return nil, "", err
		}
		return config.SetAlertShortcut(element, on), fmt.Sprintf("Alert %s shortcut: %s.", element, onOff(on)), nil

	case "show":
		on, err := util.ParseSwitch(value)
		if err != nil {
			return nil, "", err
		}
		return config.SetEnabled(element, on), fmt.Sprintf("%s: %s.", element, onOff(on)), nil

	case "orientation":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, "", fmt.Errorf("%w: orientation needs a number, got %q", ErrUsage, value)
		}
		o := config.Orientation(v)
		return config.SetOrientation(element, o), fmt.Sprintf("%s orientation: %s.", element, o), nil
	}

	return nil, "", fmt.Errorf("%w: unknown setting %q", ErrUsage, key)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
