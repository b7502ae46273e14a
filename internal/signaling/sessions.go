package signaling

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New(ErrCodeNoSession)
	ErrSessionConflict = errors.New(ErrCodeSessionConflict)
	ErrKioskNotFound   = errors.New(ErrCodeKioskNotFound)
	ErrNotOwner        = errors.New(ErrCodeNotOwner)
	ErrInvalidState    = errors.New(ErrCodeInvalidState)
	ErrNoActiveCall    = errors.New(ErrCodeNoActiveCall)
)

// Sessions is the shared per-kiosk session map (spec §3, §5). Each
// session's own fields are protected by the store-wide mutex; spec §5
// allows "one actor/goroutine per client plus a shared store protected by
// per-key locking, or a central single-threaded reactor" — this package
// takes the single shared-lock-per-store approach the teacher's Room
// type uses for its client map, scoped down to one map of call state
// machines instead of a participant roster.
type Sessions struct {
	mu       sync.Mutex
	byKiosk  map[string]*Session
}

func newSessions() *Sessions {
	return &Sessions{byKiosk: make(map[string]*Session)}
}

// Start creates a session in IDLE for kioskId, owned by monitorID. Fails
// with ErrSessionConflict if a session already exists with a different
// owner (spec §4.1 "start-monitoring").
func (s *Sessions) Start(kioskID, monitorID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKiosk[kioskID]; ok {
		if existing.MonitorConnectionHandle != monitorID {
			return nil, ErrSessionConflict
		}
		return existing, nil
	}
	sess := newSession(kioskID, monitorID)
	s.byKiosk[kioskID] = sess
	return sess, nil
}

// Stop deletes the session for kioskId, if owned by monitorID.
func (s *Sessions) Stop(kioskID, monitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKiosk[kioskID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.MonitorConnectionHandle != monitorID {
		return ErrNotOwner
	}
	delete(s.byKiosk, kioskID)
	return nil
}

// Get returns the session for kioskId without mutating it.
func (s *Sessions) Get(kioskID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKiosk[kioskID]
	return sess, ok
}

// Delete removes a session unconditionally (used for disconnect cleanup,
// where ownership was already established by the caller's context).
func (s *Sessions) Delete(kioskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKiosk, kioskID)
}

// DeleteByMonitor removes and returns every session owned by monitorID —
// used on monitor disconnect (spec §4.1).
func (s *Sessions) DeleteByMonitor(monitorID string) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*Session
	for kioskID, sess := range s.byKiosk {
		if sess.MonitorConnectionHandle == monitorID {
			removed = append(removed, sess)
			delete(s.byKiosk, kioskID)
		}
	}
	return removed
}

// Touch refreshes lastActivityAt for kioskId's session. The hub calls it
// for every inbound kiosk command, including ping and toggles; a
// monitor's call and toggle commands refresh the session in
// resolveAndMutate instead. A monitor's ping, registration and
// get-online-kiosks commands refresh no session.
func (s *Sessions) Touch(kioskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byKiosk[kioskID]; ok {
		sess.LastActivityAt = time.Now()
	}
}

// withSession runs fn with the store lock held, so the whole
// read-modify-write for a single session's call state machine is
// serialized (spec §5 "per session, state transitions are serialized").
func (s *Sessions) withSession(kioskID string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKiosk[kioskID]
	if !ok {
		return ErrSessionNotFound
	}
	return fn(sess)
}

// ExpiredSessions returns a snapshot of sessions idle longer than
// timeout, for the reaper to end (spec §4.1 "Session timeout reaper").
func (s *Sessions) ExpiredSessions(timeout time.Duration) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var expired []*Session
	for _, sess := range s.byKiosk {
		if now.Sub(sess.LastActivityAt) > timeout {
			expired = append(expired, sess)
		}
	}
	return expired
}
