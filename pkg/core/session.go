// pkg/core/session.go
package core

import (
	"errors"
	"time"
)

// Character identifies the logged-in character.
type Character struct {
	Name  string
	World string
}

// Session is one login, from login to logout. History backends assign ID.
type Session struct {
	ID         uint
	Character  Character
	LoginTime  time.Time
	LogoutTime time.Time
}

// Active reports whether the session has not been ended yet.
func (s *Session) Active() bool {
	return s.LogoutTime.IsZero()
}

// Duration is the time logged in so far, or in total once ended.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.Active() {
		return now.Sub(s.LoginTime)
	}
	return s.LogoutTime.Sub(s.LoginTime)
}

// SessionSummary aggregates the snapshots recorded during a session.
type SessionSummary struct {
	Session   Session
	Snapshots int
	// LowestCondition is the worst condition seen, 100 with no snapshots.
	LowestCondition   float32
	LowestConditionAt time.Time
	HighestSpiritbond float32
	LastRecordedAt    time.Time
}

// NewSessionSummary returns an empty summary for s.
func NewSessionSummary(s Session) SessionSummary {
	return SessionSummary{Session: s, LowestCondition: 100}
}

// Add folds a snapshot into the summary.
func (m *SessionSummary) Add(s *Snapshot) {
	m.Snapshots++
	if c := s.LowestConditionPercent(); m.LowestConditionAt.IsZero() || c < m.LowestCondition {
		m.LowestCondition = c
		m.LowestConditionAt = s.CapturedAt()
	}
	m.HighestSpiritbond = max(m.HighestSpiritbond, s.HighestSpiritbondPercent())
	if s.CapturedAt().After(m.LastRecordedAt) {
		m.LastRecordedAt = s.CapturedAt()
	}
}

// ErrNoSession is returned when recording while no session is running.
var ErrNoSession = errors.New("no active session")

// UploadMetadata describes an exported session file for the history server.
type UploadMetadata struct {
	CharacterName   string
	World           string
	SessionDuration float64 // seconds
	Snapshots       int
	Tag             string
}
