// Package buffers holds the three editable sources of a preview session.
//
// A Set owns a markup, a styles and a script buffer plus the active-buffer
// selector. Every mutation replaces whole buffer contents; there is no
// partial update, no validation and no history. Observers registered with
// Subscribe receive an immutable Snapshot after each content mutation, which
// is how the preview pipeline recomposes on change.
package buffers

import (
	"sync"
)

// Contents is the markup/styles/script triple.
type Contents struct {
	Markup string `json:"html" yaml:"html"`
	Styles string `json:"css" yaml:"css"`
	Script string `json:"javascript" yaml:"javascript"`
}

// Get returns the buffer for role r. Unknown roles yield "".
func (c Contents) Get(r Role) string {
	switch r {
	case Markup:
		return c.Markup
	case Styles:
		return c.Styles
	case Script:
		return c.Script
	default:
		return ""
	}
}

// With returns a copy of c with role r replaced.
func (c Contents) With(r Role, content string) Contents {
	switch r {
	case Markup:
		c.Markup = content
	case Styles:
		c.Styles = content
	case Script:
		c.Script = content
	}
	return c
}

// Snapshot is an immutable view of a Set at one revision.
type Snapshot struct {
	Contents
	Active   Role   `json:"active"`
	Revision uint64 `json:"revision"`
}

// Observer is notified with the new snapshot after each content mutation.
type Observer func(Snapshot)

type subscription struct {
	id uint64
	fn Observer
}

// Set is a SourceBufferSet. The zero value is not usable; call New or NewWith.
//
// Observers run synchronously on the mutating goroutine, after the state lock
// is released and in registration order. They may read the set but must not
// mutate it.
type Set struct {
	// emitMu serializes mutate+notify so observers see revisions in order.
	emitMu sync.Mutex

	mu       sync.RWMutex
	contents Contents
	active   Role
	revision uint64
	subs     []subscription
	nextSub  uint64
}

// New creates a set holding the welcome template with the markup buffer active.
func New() *Set {
	return NewWith(Welcome())
}

// NewWith creates a set holding c with the markup buffer active.
func NewWith(c Contents) *Set {
	return &Set{contents: c, active: Markup}
}

// Snapshot returns the current state.
func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Set) snapshotLocked() Snapshot {
	return Snapshot{Contents: s.contents, Active: s.active, Revision: s.revision}
}

// Get returns the content of one buffer.
func (s *Set) Get(r Role) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contents.Get(r)
}

// Active returns the active buffer role.
func (s *Set) Active() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive selects the buffer the editor pane edits. It does not change
// any content and does not notify observers.
func (s *Set) SetActive(r Role) error {
	if !r.Valid() {
		return invalidRole(r)
	}
	s.mu.Lock()
	s.active = r
	s.mu.Unlock()
	return nil
}

// Set replaces the full text of one buffer.
func (s *Set) Set(r Role, content string) error {
	if !r.Valid() {
		return invalidRole(r)
	}
	s.mutate(func(c Contents) Contents { return c.With(r, content) })
	return nil
}

// LoadAll replaces all three buffers in one step. Observers see either the
// old or the new triple, never a mix.
func (s *Set) LoadAll(markup, styles, script string) Snapshot {
	return s.Load(Contents{Markup: markup, Styles: styles, Script: script})
}

// Load is LoadAll taking a Contents value.
func (s *Set) Load(c Contents) Snapshot {
	return s.mutate(func(Contents) Contents { return c })
}

// Reset restores the built-in starter template.
func (s *Set) Reset() Snapshot {
	return s.Load(Starter())
}

// Subscribe registers fn and returns a function that removes it.
func (s *Set) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Set) mutate(update func(Contents) Contents) Snapshot {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.contents = update(s.contents)
	s.revision++
	snap := s.snapshotLocked()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
	return snap
}
