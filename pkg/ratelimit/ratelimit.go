// Package ratelimit tracks the GitHub API rate-limit window shared by every
// enrichment request in the process.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is assumed when GitHub rejects a request without telling us
// when the limit resets.
const DefaultWindow = time.Hour

// State is the process-wide rate-limit view. The zero value is not limited.
// A State is safe for concurrent use.
//
// There is no explicit reset: once ResetTime passes, Limited reports false
// again on its own.
type State struct {
	mu        sync.Mutex
	remaining int
	known     bool
	resetTime time.Time
	limited   bool
}

// Snapshot is a copy of the state at one instant.
type Snapshot struct {
	Remaining int       `json:"remaining"`
	Known     bool      `json:"known"`
	ResetTime time.Time `json:"resetTime"`
	IsLimited bool      `json:"isLimited"`
}

// New returns an unlimited State.
func New() *State { return &State{} }

// Limited reports whether requests must be refused at now, and until when.
func (s *State) Limited(now time.Time) (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)
	if s.limited {
		return true, s.resetTime
	}
	return false, time.Time{}
}

// expire drops the limited flag once its window has passed, so a later
// Observe moving resetTime forward cannot revive it.
func (s *State) expire(now time.Time) {
	if s.limited && !now.Before(s.resetTime) {
		s.limited = false
	}
}

// Observe records the headers of a successful response at now. A zero reset
// leaves the previous reset time in place. Remaining calls in the response
// end any limited window.
func (s *State) Observe(now time.Time, remaining int, hasRemaining bool, reset time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)
	if hasRemaining {
		s.remaining, s.known = remaining, true
		if remaining > 0 {
			s.limited = false
		}
	}
	if !reset.IsZero() {
		s.resetTime = reset
	}
}

// MarkLimited flags the state as limited until reset. A zero reset means
// now plus [DefaultWindow]. It returns the effective reset time.
func (s *State) MarkLimited(now, reset time.Time) time.Time {
	if reset.IsZero() {
		reset = now.Add(DefaultWindow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limited = true
	s.resetTime = reset
	s.remaining, s.known = 0, true
	return reset
}

// Snapshot returns the current state as seen at now.
func (s *State) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)
	return Snapshot{
		Remaining: s.remaining,
		Known:     s.known,
		ResetTime: s.resetTime,
		IsLimited: s.limited,
	}
}
