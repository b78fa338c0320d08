package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/RepairMe/extension/pkg/host"
)

var (
	ErrUnknownElement     = errors.New("unknown element")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrUnknownProfile     = errors.New("unknown position profile")
	ErrNotLoaded          = errors.New("settings not loaded")
)

// Mutation changes a settings record in place. Mutations run on a private
// copy inside Store.Update and never see a published record.
type Mutation func(*Settings) error

// Store owns the current Settings record. Readers get an immutable pointer
// from Current; every change goes through Update, which normalizes and
// persists the record before publishing it.
type Store struct {
	persister host.ConfigStore
	logger    *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[Settings]
}

func NewStore(persister host.ConfigStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persister: persister, logger: logger}
}

// Load reads the persisted record, migrating older versions. When nothing is
// persisted yet the defaults are saved.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := DefaultSettings()
	settings.Version = 0
	found, err := s.persister.Load(settings)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	dirty := false
	if !found {
		settings = DefaultSettings()
		dirty = true
	} else if settings.Version < SettingsVersion {
		s.logger.Info("migrating settings", "from", settings.Version, "to", SettingsVersion)
		migrate(settings)
		dirty = true
	}

	normalize(settings)
	s.current.Store(settings)

	if dirty {
		if err := s.persister.Save(settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}
	return nil
}

// Current returns the published settings. The record must not be modified.
// Before Load it returns the defaults.
func (s *Store) Current() *Settings {
	if c := s.current.Load(); c != nil {
		return c
	}
	return DefaultSettings()
}

// Update applies the mutations to a copy of the current record, normalizes
// it, publishes it and persists it. A failing mutation leaves the record
// untouched.
func (s *Store) Update(mutations ...Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return ErrNotLoaded
	}
	next := cur.Clone()
	for _, m := range mutations {
		if err := m(next); err != nil {
			return err
		}
	}
	normalize(next)
	s.current.Store(next)

	if err := s.persister.Save(next); err != nil {
		s.logger.Error("failed to persist settings", "error", err)
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// EnsureProfile returns the position profile for the resolution, creating
// and persisting a default one when it does not exist.
func (s *Store) EnsureProfile(width, height int) (PositionProfile, error) {
	if p, ok := s.Current().Profile(width, height); ok {
		return p, nil
	}
	err := s.Update(func(st *Settings) error {
		id := ResolutionID(width, height)
		if _, ok := st.PositionProfiles[id]; !ok {
			st.PositionProfiles[id] = NewPositionProfile(width, height)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotLoaded) {
		s.logger.Warn("position profile not persisted", "resolution", ResolutionID(width, height), "error", err)
	}
	if p, ok := s.Current().Profile(width, height); ok {
		return p, err
	}
	return NewPositionProfile(width, height), err
}

// migrate upgrades a record from an older version. Version 0 predates
// position profiles, so the positions are captured again from the first
// drawn frame.
func migrate(s *Settings) {
	if s.Version < 1 {
		s.PositionsMigrated = false
	}
	s.Version = SettingsVersion
}

func normalize(s *Settings) {
	s.ThresholdLow = clamp(s.ThresholdLow, 1, 100)
	s.ThresholdCritical = clamp(s.ThresholdCritical, 0, 99)
	if s.ThresholdCritical >= s.ThresholdLow {
		s.ThresholdCritical = s.ThresholdLow - 1
	}

	for _, a := range []*Alert{&s.AlertLow, &s.AlertCritical, &s.AlertSpiritbond} {
		a.Text = truncate(a.Text, AlertTextMaxLength)
	}

	for _, b := range []*BarStyle{&s.ConditionBar.BarStyle, &s.SpiritbondBar.BarStyle} {
		if !b.Orientation.Valid() {
			b.Orientation = LeftToRight
		}
		b.Rounding = max(b.Rounding, 0)
		b.BorderSize = max(b.BorderSize, 0)
		b.Size.X = max(b.Size.X, 1)
		b.Size.Y = max(b.Size.Y, 1)
	}

	if s.PositionProfiles == nil {
		s.PositionProfiles = map[string]PositionProfile{}
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SetLowThreshold sets the low threshold, pushing it above the critical one.
func SetLowThreshold(v int) Mutation {
	return func(s *Settings) error {
		s.ThresholdLow = clamp(v, 0, 100)
		if s.ThresholdLow <= s.ThresholdCritical {
			s.ThresholdLow = s.ThresholdCritical + 1
		}
		return nil
	}
}

// SetCriticalThreshold sets the critical threshold, keeping it below the low one.
func SetCriticalThreshold(v int) Mutation {
	return func(s *Settings) error {
		s.ThresholdCritical = clamp(v, 0, 100)
		if s.ThresholdCritical >= s.ThresholdLow {
			s.ThresholdCritical = s.ThresholdLow - 1
		}
		return nil
	}
}

func SetHideWhenOccupied(v bool) Mutation {
	return func(s *Settings) error {
		s.HideWhenOccupied = v
		return nil
	}
}

func SetAlertText(e Element, text string) Mutation {
	return func(s *Settings) error {
		a := s.alert(e)
		if a == nil {
			return fmt.Errorf("%w: %s is not an alert", ErrUnknownElement, e)
		}
		a.Text = text
		return nil
	}
}

func SetAlertShortcut(e Element, v bool) Mutation {
	return func(s *Settings) error {
		a := s.alert(e)
		if a == nil {
			return fmt.Errorf("%w: %s is not an alert", ErrUnknownElement, e)
		}
		a.Shortcut = v
		return nil
	}
}

// SetEnabled toggles any element: bars, percent labels or alerts.
func SetEnabled(e Element, v bool) Mutation {
	return func(s *Settings) error {
		if b := s.bar(e); b != nil {
			b.Enabled = v
			return nil
		}
		if l := s.label(e); l != nil {
			l.Enabled = v
			return nil
		}
		if a := s.alert(e); a != nil {
			a.Enabled = v
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownElement, e)
	}
}

func SetBarEnabled(e Element, v bool) Mutation {
	return func(s *Settings) error {
		b := s.bar(e)
		if b == nil {
			return fmt.Errorf("%w: %s is not a bar", ErrUnknownElement, e)
		}
		b.Enabled = v
		return nil
	}
}

func SetOrientation(e Element, o Orientation) Mutation {
	return func(s *Settings) error {
		b := s.bar(e)
		if b == nil {
			return fmt.Errorf("%w: %s is not a bar", ErrUnknownElement, e)
		}
		if !o.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidOrientation, int(o))
		}
		b.Orientation = o
		return nil
	}
}

// MovePosition stores a new position for an element in a resolution profile.
func MovePosition(resolutionID string, e Element, pos Vec2) Mutation {
	return func(s *Settings) error {
		p, ok := s.PositionProfiles[resolutionID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProfile, resolutionID)
		}
		if p.Positions == nil {
			p.Positions = map[Element]Vec2{}
		}
		p.Positions[e] = pos
		s.PositionProfiles[resolutionID] = p
		return nil
	}
}

// CopyProfile copies every position of one resolution profile into another.
func CopyProfile(fromID, toID string) Mutation {
	return func(s *Settings) error {
		from, ok := s.PositionProfiles[fromID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProfile, fromID)
		}
		to, ok := s.PositionProfiles[toID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProfile, toID)
		}
		to.CopyFrom(from)
		s.PositionProfiles[toID] = to
		return nil
	}
}

func MarkPositionsMigrated() Mutation {
	return func(s *Settings) error {
		s.PositionsMigrated = true
		return nil
	}
}
