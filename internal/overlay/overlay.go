// Package overlay turns equipment snapshots and user settings into the
// frames drawn on screen by the host GUI.
package overlay

import "github.com/RepairMe/extension/internal/config"

// Placement positions an element on screen.
type Placement struct {
	ID       config.Element
	Position config.Vec2
	// Free leaves the element where the surface last put it. Set while
	// positions are being captured for the current resolution.
	Free bool
	// Movable lets the user drag the element.
	Movable bool
}

// Bar is a progress bar.
type Bar struct {
	Placement
	Progress    float32 // 0..1
	Size        config.Vec2
	Orientation config.Orientation
	Rounding    float32
	BorderSize  float32
	BorderColor config.Color
	Color       config.Color
	Background  config.Color
	// Points are markers drawn inside the filled part, as 0..1 fractions.
	Points      []float32
	PointsColor config.Color
}

// Label is a text element.
type Label struct {
	Placement
	Text       string
	Color      config.Color
	Background config.Color
}

// Alert is a label that may react to clicks.
type Alert struct {
	Label
	Clickable bool
}

// Feedback reports what happened to a drawn element.
type Feedback struct {
	Clicked bool
	// Moved is set when Position differs from the one requested, either
	// after a drag or when a Free element was placed.
	Moved    bool
	Position config.Vec2
}

// Frame is everything drawn in one UI pass.
type Frame struct {
	Bars   []Bar
	Labels []Label
	Alerts []Alert
}

// Surface is the host GUI the frame is drawn on.
type Surface interface {
	Viewport() (w, h int)
	DrawBar(Bar) Feedback
	DrawLabel(Label) Feedback
	DrawAlert(Alert) Feedback
	DrawDebug([]DebugRow)
}
