package usecase

import (
	"fmt"
	"sync"
	"time"
)

// SessionBudgetConfig holds the limits of one scraping session
type SessionBudgetConfig struct {
	MaxRequests int           // 0 = unlimited
	Timeout     time.Duration // 0 = unlimited
}

// SessionStats is a snapshot of the current session budget
type SessionStats struct {
	RequestsMade int           `json:"requestsMade"`
	MaxRequests  int           `json:"maxRequests"`
	Elapsed      time.Duration `json:"elapsed"`
	Timeout      time.Duration `json:"timeout"`
	Paused       bool          `json:"paused"`
}

// SessionBudget bounds a session by wall time, request count and manual pause. It is polled
// cooperatively between batches and never persisted.
type SessionBudget struct {
	maxRequests int
	timeout     time.Duration

	mu           sync.Mutex
	requestsMade int
	start        time.Time
	paused       bool

	now func() time.Time
}

// NewSessionBudget creates a budget; call Start before polling it
func NewSessionBudget(cfg SessionBudgetConfig) *SessionBudget {
	return &SessionBudget{
		maxRequests: cfg.MaxRequests,
		timeout:     cfg.Timeout,
		now:         time.Now,
	}
}

// Start begins a fresh session
func (b *SessionBudget) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requestsMade = 0
	b.paused = false
	b.start = b.now()
}

// RecordRequests counts n item lookups against the request limit
func (b *SessionBudget) RecordRequests(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requestsMade += n
}

// Pause requests a cooperative stop at the next poll
func (b *SessionBudget) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
}

// ShouldPause reports whether the session must stop and why
func (b *SessionBudget) ShouldPause() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return true, "manual pause"
	}
	if b.timeout > 0 {
		if elapsed := b.now().Sub(b.start); elapsed >= b.timeout {
			return true, fmt.Sprintf("session timeout reached after %s", elapsed.Round(time.Second))
		}
	}
	if b.maxRequests > 0 && b.requestsMade >= b.maxRequests {
		return true, fmt.Sprintf("request limit reached (%d/%d)", b.requestsMade, b.maxRequests)
	}
	return false, ""
}

// Stats returns a snapshot of the budget
func (b *SessionBudget) Stats() SessionStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SessionStats{
		RequestsMade: b.requestsMade,
		MaxRequests:  b.maxRequests,
		Elapsed:      b.now().Sub(b.start),
		Timeout:      b.timeout,
		Paused:       b.paused,
	}
}
