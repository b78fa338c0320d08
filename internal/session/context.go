package session

import (
	"sync"
	"time"

	"github.com/RepairMe/extension/pkg/core"
)

// Context holds the current login session
type Context struct {
	mu      sync.RWMutex
	session *core.Session
	last    *core.Session
}

// NewContext creates a new Context with no session
func NewContext() *Context {
	return &Context{}
}

// Start begins a session for the character and returns a copy of it. A
// session still running is ended first.
func (c *Context) Start(character core.Character, at time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.LogoutTime = at
		c.last = c.session
	}
	c.session = &core.Session{Character: character, LoginTime: at}
	return *c.session
}

// SetID stores the ID assigned by the history backend.
func (c *Context) SetID(id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.ID = id
	}
}

// End finishes the current session. It reports false when none is running.
func (c *Context) End(at time.Time) (core.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return core.Session{}, false
	}
	c.session.LogoutTime = at
	ended := *c.session
	c.last = c.session
	c.session = nil
	return ended, true
}

// Current returns the running session
func (c *Context) Current() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return core.Session{}, false
	}
	return *c.session, true
}

// Last returns the running session, or the most recently ended one
func (c *Context) Last() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.session != nil:
		return *c.session, true
	case c.last != nil:
		return *c.last, true
	}
	return core.Session{}, false
}

// Character returns the character of the running session, if any
func (c *Context) Character() (core.Character, bool) {
	s, ok := c.Current()
	return s.Character, ok
}
