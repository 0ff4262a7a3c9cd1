package library

import (
	"errors"
	"sync"

	"github.com/kabili207/ebook-go/core/codec"
)

// ErrSessionNotFound is returned when a username lookup fails.
var ErrSessionNotFound = errors.New("session not found")

// SessionRegistry maps usernames to active sessions for push fanout and
// chat routing.
type SessionRegistry interface {
	// Add registers s under its username. If another session held the name it
	// is returned; the new session wins.
	Add(s *Session) (replaced *Session)

	// Remove unregisters s. A session that was replaced is left alone, so the
	// newer session keeps the name. Returns ErrSessionNotFound if s is not
	// the registered session for its name.
	Remove(s *Session) error

	// Get returns the session registered for username, or nil.
	Get(username string) *Session

	// Count returns the number of registered sessions.
	Count() int

	// ForEach calls fn for each session. Return false from fn to stop iteration.
	ForEach(fn func(s *Session) bool)
}

// Compile-time assertion that MemoryRegistry implements SessionRegistry.
var _ SessionRegistry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-memory SessionRegistry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]*Session)}
}

func (r *MemoryRegistry) Add(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.Username()]
	r.sessions[s.Username()] = s
	if prev == s {
		return nil
	}
	return prev
}

func (r *MemoryRegistry) Remove(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.Username()]; ok && cur == s {
		delete(r.sessions, s.Username())
		return nil
	}
	return ErrSessionNotFound
}

func (r *MemoryRegistry) Get(username string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[username]
}

func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemoryRegistry) ForEach(fn func(s *Session) bool) {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	for _, s := range list {
		if !fn(s) {
			return
		}
	}
}

// pushTargets returns the push-mode sessions other than exclude.
func pushTargets(r SessionRegistry, exclude *Session) []*Session {
	var targets []*Session
	r.ForEach(func(s *Session) bool {
		if s != exclude && s.Mode() == codec.ModePush {
			targets = append(targets, s)
		}
		return true
	})
	return targets
}
