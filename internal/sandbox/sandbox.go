// Package sandbox is the isolation boundary of the live preview.
//
// A Sandbox holds at most one Frame. Render never patches the current frame:
// it discards it and installs a new one with a higher generation, so nothing
// from a previous composition survives. Browsers receive the frame through
// the iframe srcdoc attribute (IFrame) or through Handler, which serves it
// with a CSP sandbox header. Errors raised by the user's code stay inside the
// frame; the host has no channel that reports them.
package sandbox

import (
	"sync"
	"time"
)

// Frame is one generation of the rendering surface.
type Frame struct {
	Generation uint64    `json:"generation"`
	Document   string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// SrcDoc is the raw value for the iframe srcdoc attribute. It is escaped when
// the attribute is written.
func (f Frame) SrcDoc() string {
	return f.Document
}

// Sandbox owns the current preview frame.
type Sandbox struct {
	policy Policy
	now    func() time.Time

	mu         sync.RWMutex
	current    *Frame
	generation uint64
	subs       []subscriber
	nextSub    uint64
}

type subscriber struct {
	id uint64
	fn func(Frame)
}

// New validates the policy and returns an empty sandbox.
func New(policy Policy) (*Sandbox, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Sandbox{policy: policy, now: time.Now}, nil
}

// Policy returns the isolation policy.
func (s *Sandbox) Policy() Policy {
	return s.policy
}

// Render tears down the current frame and installs a new one holding doc.
// Subscribers are notified after the swap, in registration order.
func (s *Sandbox) Render(doc string) Frame {
	s.mu.Lock()
	s.generation++
	frame := Frame{Generation: s.generation, Document: doc, CreatedAt: s.now()}
	s.current = &frame
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(frame)
	}
	return frame
}

// Current returns the live frame, if any.
func (s *Sandbox) Current() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Frame{}, false
	}
	return *s.current, true
}

// Generation returns the generation of the most recent frame.
func (s *Sandbox) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// TearDown discards the current frame without installing a new one.
func (s *Sandbox) TearDown() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Subscribe registers fn to be called with every new frame.
func (s *Sandbox) Subscribe(fn func(Frame)) (cancel func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}
