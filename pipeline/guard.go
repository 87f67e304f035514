package pipeline

import (
	"context"
	"sync"
)

// Guard tracks which sessions have an in-flight generation and enforces at
// most one per session, plus a single global slot for brand-new conversations.
// It is a plain value owned by the Runtime, never package-level state, so
// independent runtimes do not share it.
type Guard struct {
	mu              sync.Mutex
	typing          map[string]bool
	cancels         map[string]context.CancelFunc
	submitting      map[string]bool
	newChatInFlight bool
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{
		typing:     make(map[string]bool),
		cancels:    make(map[string]context.CancelFunc),
		submitting: make(map[string]bool),
	}
}

// TryAcquire checks and claims the submission slot for a turn in one step. A
// new-conversation turn claims the single global slot; an existing session
// claims its own. Check and claim happen under one lock, so of any number of
// concurrent submissions targeting the same slot exactly one wins.
func (g *Guard) TryAcquire(sessionID string, isNewChat bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if isNewChat {
		if g.newChatInFlight {
			return false
		}
		g.newChatInFlight = true
		return true
	}
	if sessionID == "" || g.submitting[sessionID] {
		return false
	}
	g.submitting[sessionID] = true
	return true
}

// CanSubmit reports whether a turn could start right now, without claiming
// anything. Advisory only; submission paths must use TryAcquire.
func (g *Guard) CanSubmit(sessionID string, isNewChat bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if isNewChat {
		return !g.newChatInFlight
	}
	return sessionID != "" && !g.submitting[sessionID]
}

// MarkSubmitting claims the per-session slot and, for a new conversation, the
// global new-chat slot.
func (g *Guard) MarkSubmitting(sessionID string, isNewChat bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitting[sessionID] = true
	if isNewChat {
		g.newChatInFlight = true
	}
}

// ResetSubmission releases the per-session slot.
func (g *Guard) ResetSubmission(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.submitting, sessionID)
}

// ClearNewChatSubmitting releases the global new-chat slot.
func (g *Guard) ClearNewChatSubmitting() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.newChatInFlight = false
}

// SetTyping flags or clears the typing indicator for a session.
func (g *Guard) SetTyping(sessionID string, typing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if typing {
		g.typing[sessionID] = true
	} else {
		delete(g.typing, sessionID)
	}
}

// IsTyping reports whether a session has an active generation.
func (g *Guard) IsTyping(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.typing[sessionID]
}

// RegisterCancel stores the cancellation handle for a session's active stream.
func (g *Guard) RegisterCancel(sessionID string, cancel context.CancelFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels[sessionID] = cancel
}

// ClearCancel drops the stored handle without firing it.
func (g *Guard) ClearCancel(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cancels, sessionID)
}

// Cancel fires and drops the stored handle. Returns false when the session had
// no active stream.
func (g *Guard) Cancel(sessionID string) bool {
	g.mu.Lock()
	cancel, ok := g.cancels[sessionID]
	delete(g.cancels, sessionID)
	g.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
