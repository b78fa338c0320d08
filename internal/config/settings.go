package config

import "fmt"

// SettingsVersion is the current version of the persisted Settings record.
const SettingsVersion = 1

// AlertTextMaxLength is the maximum length, in bytes, of an alert message.
const AlertTextMaxLength = 1000

// Vec2 is a screen position or size in pixels.
type Vec2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Color is an RGBA color with components in 0..1.
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// Orientation is the fill direction of a bar.
type Orientation int

const (
	LeftToRight Orientation = iota
	RightToLeft
	TopToBottom
	BottomToTop
)

var orientationLabels = [...]string{"Left to right", "Right to left", "Top to bottom", "Bottom to top"}

func (o Orientation) String() string {
	if o < LeftToRight || o > BottomToTop {
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
	return orientationLabels[o]
}

// Valid reports whether o is one of the known orientations.
func (o Orientation) Valid() bool {
	return o >= LeftToRight && o <= BottomToTop
}

// BarStyle holds the layout shared by both bars.
type BarStyle struct {
	Enabled     bool        `json:"enabled"`
	Rounding    float32     `json:"rounding"`
	Size        Vec2        `json:"size"`
	Orientation Orientation `json:"orientation"`
	BorderSize  float32     `json:"borderSize"`
	BorderColor Color       `json:"borderColor"`
}

type ConditionBar struct {
	BarStyle
	OkColor            Color `json:"okColor"`
	OkBackground       Color `json:"okBackground"`
	LowColor           Color `json:"lowColor"`
	LowBackground      Color `json:"lowBackground"`
	CriticalColor      Color `json:"criticalColor"`
	CriticalBackground Color `json:"criticalBackground"`
}

type SpiritbondBar struct {
	BarStyle
	// ShowAllItems draws a marker for every equipped item's spiritbond.
	ShowAllItems       bool  `json:"showAllItems"`
	ProgressColor      Color `json:"progressColor"`
	ProgressBackground Color `json:"progressBackground"`
	PointsColor        Color `json:"pointsColor"`
	FullColor          Color `json:"fullColor"`
	FullBackground     Color `json:"fullBackground"`
}

// PercentLabel configures a numeric percentage label.
type PercentLabel struct {
	Enabled      bool  `json:"enabled"`
	ShowPercent  bool  `json:"showPercent"`
	ShowDecimals bool  `json:"showDecimals"`
	ShowMinMax   bool  `json:"showMinMax"`
	Color        Color `json:"color"`
	Background   Color `json:"background"`
}

// Alert configures a text alert. Shortcut makes the alert clickable.
type Alert struct {
	Enabled    bool   `json:"enabled"`
	Text       string `json:"text"`
	Color      Color  `json:"color"`
	Background Color  `json:"background"`
	Shortcut   bool   `json:"shortcut"`
}

// Element identifies a movable overlay element.
type Element string

const (
	ElementPercentCondition       Element = "percentCondition"
	ElementAlertLowCondition      Element = "alertLowCondition"
	ElementAlertCriticalCondition Element = "alertCriticalCondition"
	ElementBarCondition           Element = "barCondition"
	ElementBarSpiritbond          Element = "barSpiritbond"
	ElementPercentSpiritbond      Element = "percentSpiritbond"
	ElementAlertSpiritbond        Element = "alertSpiritbond"
)

// Elements lists every movable element in draw order.
var Elements = []Element{
	ElementBarCondition,
	ElementBarSpiritbond,
	ElementPercentCondition,
	ElementPercentSpiritbond,
	ElementAlertCriticalCondition,
	ElementAlertLowCondition,
	ElementAlertSpiritbond,
}

// PositionProfile stores element positions for one screen resolution.
type PositionProfile struct {
	ResolutionWidth  int              `json:"resolutionWidth"`
	ResolutionHeight int              `json:"resolutionHeight"`
	Positions        map[Element]Vec2 `json:"positions"`
}

// ResolutionID returns the profile key for a resolution, e.g. "1920x1080".
func ResolutionID(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// NewPositionProfile returns a profile for the resolution with default positions.
func NewPositionProfile(width, height int) PositionProfile {
	return PositionProfile{
		ResolutionWidth:  width,
		ResolutionHeight: height,
		Positions: map[Element]Vec2{
			ElementPercentCondition:       {50, 50},
			ElementAlertLowCondition:      {250, 50},
			ElementAlertCriticalCondition: {250, 75},
			ElementBarCondition:           {50, 100},
			ElementBarSpiritbond:          {50, 150},
			ElementPercentSpiritbond:      {250, 150},
			ElementAlertSpiritbond:        {50, 200},
		},
	}
}

func (p PositionProfile) ID() string {
	return ResolutionID(p.ResolutionWidth, p.ResolutionHeight)
}

// Position returns the stored position of e, falling back to the default.
func (p PositionProfile) Position(e Element) Vec2 {
	if v, ok := p.Positions[e]; ok {
		return v
	}
	return NewPositionProfile(0, 0).Positions[e]
}

// CopyFrom replaces every position with the ones from other, keeping the resolution.
func (p *PositionProfile) CopyFrom(other PositionProfile) {
	p.Positions = make(map[Element]Vec2, len(other.Positions))
	for k, v := range other.Positions {
		p.Positions[k] = v
	}
}

func (p PositionProfile) clone() PositionProfile {
	c := p
	c.CopyFrom(p)
	return c
}

// Settings is the user-facing settings record persisted by the host.
type Settings struct {
	Version           int  `json:"version"`
	PositionsMigrated bool `json:"positionsMigrated"`
	HideWhenOccupied  bool `json:"hideWhenOccupied"`

	ThresholdLow      int `json:"thresholdConditionLow"`
	ThresholdCritical int `json:"thresholdConditionCritical"`

	ConditionBar      ConditionBar  `json:"barCondition"`
	SpiritbondBar     SpiritbondBar `json:"barSpiritbond"`
	ConditionPercent  PercentLabel  `json:"percentCondition"`
	SpiritbondPercent PercentLabel  `json:"percentSpiritbond"`

	AlertLow        Alert `json:"alertConditionLow"`
	AlertCritical   Alert `json:"alertConditionCritical"`
	AlertSpiritbond Alert `json:"alertSpiritbondFull"`

	PositionProfiles map[string]PositionProfile `json:"positionProfiles"`
}

var (
	barBackground = Color{0.29, 0.29, 0.29, 0.54}
	black         = Color{0, 0, 0, 1}
	white         = Color{1, 1, 1, 1}
	labelShade    = Color{1, 1, 1, 0.2}
)

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() *Settings {
	return &Settings{
		Version:           SettingsVersion,
		PositionsMigrated: true,
		HideWhenOccupied:  true,
		ThresholdLow:      50,
		ThresholdCritical: 30,
		ConditionBar: ConditionBar{
			BarStyle: BarStyle{
				Enabled:     true,
				Rounding:    5,
				Size:        Vec2{470, 2},
				Orientation: LeftToRight,
				BorderColor: black,
			},
			OkColor:            Color{0.5, 0.9, 0, 1},
			OkBackground:       barBackground,
			LowColor:           Color{0.9, 0.7, 0, 1},
			LowBackground:      barBackground,
			CriticalColor:      Color{0.9, 0.2, 0, 1},
			CriticalBackground: barBackground,
		},
		SpiritbondBar: SpiritbondBar{
			BarStyle: BarStyle{
				Enabled:     false,
				Rounding:    5,
				Size:        Vec2{470, 2},
				Orientation: LeftToRight,
				BorderColor: black,
			},
			ProgressColor:      Color{0.12, 0.81, 0.88, 0.4},
			ProgressBackground: barBackground,
			PointsColor:        Color{0.9, 0.7, 0, 1},
			FullColor:          white,
			FullBackground:     barBackground,
		},
		ConditionPercent: PercentLabel{
			Enabled:     true,
			ShowPercent: true,
			Color:       white,
			Background:  labelShade,
		},
		SpiritbondPercent: PercentLabel{
			Enabled:     false,
			ShowPercent: true,
			Color:       white,
			Background:  labelShade,
		},
		AlertLow: Alert{
			Enabled:    true,
			Text:       "Condition is low",
			Color:      Color{0.95, 0.8, 0.25, 1},
			Background: labelShade,
		},
		AlertCritical: Alert{
			Enabled:    true,
			Text:       "Condition is critical",
			Color:      white,
			Background: Color{0.85, 0.05, 0.05, 0.25},
		},
		AlertSpiritbond: Alert{
			Enabled:    false,
			Text:       "Spiritbond complete",
			Color:      Color{0.25, 0.9, 0.95, 1},
			Background: labelShade,
		},
		PositionProfiles: map[string]PositionProfile{},
	}
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	c := *s
	c.PositionProfiles = make(map[string]PositionProfile, len(s.PositionProfiles))
	for k, v := range s.PositionProfiles {
		c.PositionProfiles[k] = v.clone()
	}
	return &c
}

// Profile returns the position profile for a resolution.
func (s *Settings) Profile(width, height int) (PositionProfile, bool) {
	p, ok := s.PositionProfiles[ResolutionID(width, height)]
	return p, ok
}

// AlertFor returns the alert settings for an alert element.
func (s *Settings) AlertFor(e Element) (Alert, bool) {
	switch e {
	case ElementAlertLowCondition:
		return s.AlertLow, true
	case ElementAlertCriticalCondition:
		return s.AlertCritical, true
	case ElementAlertSpiritbond:
		return s.AlertSpiritbond, true
	}
	return Alert{}, false
}

func (s *Settings) alert(e Element) *Alert {
	switch e {
	case ElementAlertLowCondition:
		return &s.AlertLow
	case ElementAlertCriticalCondition:
		return &s.AlertCritical
	case ElementAlertSpiritbond:
		return &s.AlertSpiritbond
	}
	return nil
}

func (s *Settings) bar(e Element) *BarStyle {
	switch e {
	case ElementBarCondition:
		return &s.ConditionBar.BarStyle
	case ElementBarSpiritbond:
		return &s.SpiritbondBar.BarStyle
	}
	return nil
}

func (s *Settings) label(e Element) *PercentLabel {
	switch e {
	case ElementPercentCondition:
		return &s.ConditionPercent
	case ElementPercentSpiritbond:
		return &s.SpiritbondPercent
	}
	return nil
}
