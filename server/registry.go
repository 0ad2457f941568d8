package server

import "sync"

// Registry is the process-wide map of logged-in usernames to their live
// sessions. Every read-modify-write goes through the mutex; the maps handed
// out are point-in-time copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register maps the session's username to it, returning the superseded
// session if one was online. Last write wins.
func (r *Registry) Register(sess *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[sess.Username]
	r.sessions[sess.Username] = sess
	return prev
}

// Unregister removes the mapping only while it still points at this exact
// session, and reports whether it did. A handler finalizing after its session
// was superseded cannot remove its successor.
func (r *Registry) Unregister(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[sess.Username] != sess {
		return false
	}
	delete(r.sessions, sess.Username)
	return true
}

func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[username]
	return ok
}

// Snapshot returns the current sessions in one locked pass.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// OnlineSet returns the set of online usernames.
func (r *Registry) OnlineSet() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make(map[string]struct{}, len(r.sessions))
	for username := range r.sessions {
		online[username] = struct{}{}
	}
	return online
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
