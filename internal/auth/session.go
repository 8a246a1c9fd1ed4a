// Package auth implements ConsultEase's authentication and session
// management (§4.7): RFID-backed student login, admin credential
// verification with lockout and password-family migration, and an
// in-memory session/CSRF manager. Sessions and failed-attempt tracking are
// kept in-process per §3 ("Session manager exclusively owns sessions and
// failed-attempt tables") -- there is no shared cache tier.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/telemetry"
)

// SubjectKind distinguishes the two kinds of authenticated subject.
type SubjectKind string

const (
	SubjectStudent SubjectKind = "student"
	SubjectAdmin   SubjectKind = "admin"
)

// Session is an authenticated subject's bounded-lifetime token (§3).
type Session struct {
	ID          string
	SubjectID   int64
	SubjectKind SubjectKind
	Created     time.Time
	LastActive  time.Time
	SourceAddr  string
	UserAgent   string
	CSRFToken   string
}

// SessionManager owns the in-memory session table behind a single lock;
// every hold is O(1) per §5's concurrency model.
type SessionManager struct {
	mu                     sync.Mutex
	sessions               map[string]*Session
	idleTimeout            time.Duration
	invalidateOnAddrChange bool
}

// NewSessionManager creates a SessionManager. idleTimeout bounds how long a
// session may go without activity before Validate rejects it.
func NewSessionManager(idleTimeout time.Duration, invalidateOnAddrChange bool) *SessionManager {
	return &SessionManager{
		sessions:               make(map[string]*Session),
		idleTimeout:            idleTimeout,
		invalidateOnAddrChange: invalidateOnAddrChange,
	}
}

func newToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// Create opens a new session bound to subjectID, with a freshly rotated
// CSRF token.
func (m *SessionManager) Create(subjectID int64, kind SubjectKind, sourceAddr, userAgent string) *Session {
	now := time.Now()
	s := &Session{
		ID:          newToken(),
		SubjectID:   subjectID,
		SubjectKind: kind,
		Created:     now,
		LastActive:  now,
		SourceAddr:  sourceAddr,
		UserAgent:   userAgent,
		CSRFToken:   newToken(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	telemetry.SessionsActive.Set(float64(m.count()))
	return s
}

func (m *SessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Validate reports whether id refers to a live, non-idle-expired session,
// touching LastActive on success. Returns a copy so callers never mutate
// shared state outside the lock.
func (m *SessionManager) Validate(id string) (bool, Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, Session{}
	}
	if time.Since(s.LastActive) > m.idleTimeout {
		delete(m.sessions, id)
		return false, Session{}
	}
	s.LastActive = time.Now()
	return true, *s
}

// Invalidate removes a single session.
func (m *SessionManager) Invalidate(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// InvalidateAllFor removes every session belonging to subjectID, used when
// an admin account is deactivated or a password is changed.
func (m *SessionManager) InvalidateAllFor(subjectID int64, kind SubjectKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.SubjectID == subjectID && s.SubjectKind == kind {
			delete(m.sessions, id)
		}
	}
}

// RotateCsrf issues a fresh CSRF token for an existing session.
func (m *SessionManager) RotateCsrf(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", errs.New(errs.KindNotFound, "session_not_found", "session does not exist")
	}
	s.CSRFToken = newToken()
	return s.CSRFToken, nil
}

// UpdateSecurityContext refreshes the recorded source address/user agent
// for a session. On an address change it logs a warning through logFn but,
// per §4.7, does not invalidate the session unless invalidateOnAddrChange
// is configured.
func (m *SessionManager) UpdateSecurityContext(id, addr, ua string, logFn func(oldAddr, newAddr string)) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.KindNotFound, "session_not_found", "session does not exist")
	}
	changed := s.SourceAddr != "" && addr != "" && s.SourceAddr != addr
	oldAddr := s.SourceAddr
	s.SourceAddr = addr
	s.UserAgent = ua
	shouldInvalidate := changed && m.invalidateOnAddrChange
	if shouldInvalidate {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if changed && logFn != nil {
		logFn(oldAddr, addr)
	}
	return nil
}

// Sweep removes idle-expired sessions, intended to run periodically from
// the coordinator so memory doesn't grow unbounded between validations.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if time.Since(s.LastActive) > m.idleTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	telemetry.SessionsActive.Set(float64(len(m.sessions)))
	return removed
}
