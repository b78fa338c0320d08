package overlay

import (
	"time"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/util"
	"github.com/RepairMe/extension/pkg/core"
)

const (
	// SpiritbondFull is the spiritbond percentage at which materia can be extracted.
	SpiritbondFull = 100

	// TestingCycle is the period of the synthetic values shown in testing mode.
	TestingCycle = 15 * time.Second
)

var testingPoints = []float32{0, 0.2, 0.25, 0.4, 0.5, 0.7, 0.8, 0.81, 0.82, 0.83, 0.9}

// Input is everything a frame depends on.
type Input struct {
	Snapshot *core.Snapshot
	Settings *config.Settings
	Profile  config.PositionProfile
	// Testing replaces the snapshot with a cycling synthetic one.
	Testing  bool
	Unlocked bool
	Now      time.Time
}

// Values are the numbers a frame displays.
type Values struct {
	Condition       float32
	Spiritbond      float32
	LeastSpiritbond float32
	Points          []float32
}

// ValuesFor extracts the displayed values from the input.
func ValuesFor(in Input) Values {
	if in.Testing {
		cycle := int(TestingCycle / time.Second)
		sec := in.Now.Second() % cycle
		sb := float32(sec+1) / float32(cycle) * 100
		return Values{
			Condition:       float32(cycle-sec) / float32(cycle) * 100,
			Spiritbond:      sb,
			LeastSpiritbond: sb * 0.3,
			Points:          testingPoints,
		}
	}
	if in.Snapshot == nil {
		return Values{Condition: 100}
	}
	return Values{
		Condition:       in.Snapshot.LowestConditionPercent(),
		Spiritbond:      in.Snapshot.HighestSpiritbondPercent(),
		LeastSpiritbond: in.Snapshot.LowestSpiritbondPercent(),
		Points:          in.Snapshot.SpiritbondPoints(),
	}
}

// Compose builds the frame for the input. It has no side effects.
func Compose(in Input) Frame {
	s := in.Settings
	v := ValuesFor(in)

	// Until positions are captured for this install every element is drawn
	// so that the surface can report where it sits.
	capturing := !s.PositionsMigrated
	showAll := capturing || in.Unlocked
	visible := func(enabled bool) bool { return capturing || enabled }
	place := func(e config.Element) Placement {
		return Placement{
			ID:       e,
			Position: in.Profile.Position(e),
			Free:     capturing,
			Movable:  in.Unlocked,
		}
	}

	var f Frame

	if cb := s.ConditionBar; visible(cb.Enabled) {
		color, bg := cb.OkColor, cb.OkBackground
		switch {
		case v.Condition <= float32(s.ThresholdCritical):
			color, bg = cb.CriticalColor, cb.CriticalBackground
		case v.Condition <= float32(s.ThresholdLow):
			color, bg = cb.LowColor, cb.LowBackground
		}
		f.Bars = append(f.Bars, bar(place(config.ElementBarCondition), cb.BarStyle, v.Condition, color, bg))
	}

	if sb := s.SpiritbondBar; visible(sb.Enabled) {
		color, bg := sb.ProgressColor, sb.ProgressBackground
		if v.Spiritbond >= SpiritbondFull {
			color, bg = sb.FullColor, sb.FullBackground
		}
		b := bar(place(config.ElementBarSpiritbond), sb.BarStyle, v.Spiritbond, color, bg)
		if sb.ShowAllItems {
			b.Points = pointsBelow(v.Points, b.Progress)
			b.PointsColor = sb.PointsColor
		}
		f.Bars = append(f.Bars, b)
	}

	if pc := s.ConditionPercent; visible(pc.Enabled) {
		f.Labels = append(f.Labels, Label{
			Placement:  place(config.ElementPercentCondition),
			Text:       util.FormatPercent(v.Condition, pc.ShowPercent, pc.ShowDecimals),
			Color:      pc.Color,
			Background: pc.Background,
		})
	}

	if ps := s.SpiritbondPercent; visible(ps.Enabled) {
		text := util.FormatPercent(v.Spiritbond, ps.ShowPercent, ps.ShowDecimals)
		if ps.ShowMinMax {
			text = util.FormatPercent(v.LeastSpiritbond, ps.ShowPercent, ps.ShowDecimals) + " / " + text
		}
		f.Labels = append(f.Labels, Label{
			Placement:  place(config.ElementPercentSpiritbond),
			Text:       text,
			Color:      ps.Color,
			Background: ps.Background,
		})
	}

	critical := v.Condition <= float32(s.ThresholdCritical)
	low := v.Condition <= float32(s.ThresholdLow) && !critical
	full := v.Spiritbond >= SpiritbondFull

	alerts := []struct {
		id     config.Element
		alert  config.Alert
		active bool
	}{
		{config.ElementAlertCriticalCondition, s.AlertCritical, critical},
		{config.ElementAlertLowCondition, s.AlertLow, low},
		{config.ElementAlertSpiritbond, s.AlertSpiritbond, full},
	}
	for _, a := range alerts {
		if !(showAll || a.active) || !visible(a.alert.Enabled) {
			continue
		}
		f.Alerts = append(f.Alerts, Alert{
			Label: Label{
				Placement:  place(a.id),
				Text:       a.alert.Text,
				Color:      a.alert.Color,
				Background: a.alert.Background,
			},
			Clickable: a.alert.Shortcut && !in.Unlocked,
		})
	}

	return f
}

func bar(p Placement, style config.BarStyle, percent float32, color, bg config.Color) Bar {
	return Bar{
		Placement:   p,
		Progress:    min(max(percent/100, 0), 1),
		Size:        style.Size,
		Orientation: style.Orientation,
		Rounding:    style.Rounding,
		BorderSize:  style.BorderSize,
		BorderColor: style.BorderColor,
		Color:       color,
		Background:  bg,
	}
}

// pointsBelow keeps the markers that fall inside the filled part of a bar.
func pointsBelow(points []float32, progress float32) []float32 {
	var out []float32
	for _, p := range points {
		if p < progress {
			out = append(out, p)
		}
	}
	return out
}
