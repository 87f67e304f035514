// Package cache holds the in-memory authoritative view of conversations.
package cache

import (
	"sync"
	"time"

	"github.com/lianxi-ai/tutorcore/domain"
)

// Store keeps the session collection as an immutable snapshot. Every mutation
// installs a freshly built slice, so a snapshot handed out to a reader is never
// torn by a later write.
type Store struct {
	mu       sync.RWMutex
	sessions []domain.Session
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetClock overrides the wall clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Snapshot returns the current session list, newest first.
func (s *Store) Snapshot() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(id string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return domain.Session{}, false
}

// Prepend inserts a new session at the head of the list.
func (s *Store) Prepend(sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = s.bump(sess.UpdatedAt)
	next := make([]domain.Session, 0, len(s.sessions)+1)
	next = append(next, sess)
	next = append(next, s.sessions...)
	s.sessions = next
}

// Remove deletes the session with the given id, if present.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.ID != id {
			next = append(next, sess)
		}
	}
	s.sessions = next
}

// SetTitle replaces the title of a session.
func (s *Store) SetTitle(id, title string) {
	s.update(id, func(sess *domain.Session) {
		sess.Title = title
	})
}

// SetTitleGenerating flags or clears the title-generation indicator.
func (s *Store) SetTitleGenerating(id string, generating bool) {
	s.update(id, func(sess *domain.Session) {
		sess.TitleGenerating = generating
	})
}

// UpdateMessages rewrites the message list of a session through fn. The slice
// passed to fn is a copy; fn returns the list to install.
func (s *Store) UpdateMessages(id string, fn func([]domain.Message) []domain.Message) {
	s.update(id, func(sess *domain.Session) {
		msgs := make([]domain.Message, len(sess.Messages))
		copy(msgs, sess.Messages)
		sess.Messages = fn(msgs)
	})
}

// Replace swaps the entire collection, e.g. after a remote fetch was merged.
func (s *Store) Replace(sessions []domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
}

func (s *Store) update(id string, fn func(*domain.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Session, len(s.sessions))
	copy(next, s.sessions)
	for i := range next {
		if next[i].ID == id {
			fn(&next[i])
			next[i].UpdatedAt = s.bump(next[i].UpdatedAt)
			break
		}
	}
	s.sessions = next
}

// bump returns a timestamp strictly after prev. UpdatedAt drives merge and
// list ordering, so it must never stand still across two local mutations.
func (s *Store) bump(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
