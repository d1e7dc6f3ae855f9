package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the authentication stage a session is in. The three stages are
// mutually exclusive: a session never carries both a pending and a confirmed
// identity.
type State int

const (
	StateAnonymous State = iota
	StateAwaiting2FA
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAwaiting2FA:
		return "awaiting_2fa"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the user bound to a session once the password check passed.
type Identity struct {
	UserID      string
	Username    string
	Role        string
	DisplayName string
}

// Session is server-side per-browser state addressed by an opaque random ID.
// All mutators go through methods so the state tag and identity move together.
type Session struct {
	mu sync.Mutex

	id        string
	csrfToken string
	createdAt time.Time
	lastSeen  time.Time

	state    State
	identity Identity // meaningful only outside StateAnonymous

	// pendingTOTPSecret parks an enrollment secret between the QR page and
	// the confirmation code, so the secret never round-trips the client.
	pendingTOTPSecret string
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound user. The boolean is false while anonymous.
func (s *Session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAnonymous {
		return Identity{}, false
	}
	return s.identity, true
}

// SetAwaiting2FA parks the identity until the second factor is confirmed.
func (s *Session) SetAwaiting2FA(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAwaiting2FA
	s.identity = identity
}

// SetAuthenticated binds the identity as fully signed in.
func (s *Session) SetAuthenticated(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.identity = identity
}

// Clear drops the identity and returns the session to anonymous.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAnonymous
	s.identity = Identity{}
}

// SetPendingTOTPSecret stores an unconfirmed enrollment secret.
func (s *Session) SetPendingTOTPSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTOTPSecret = secret
}

// PendingTOTPSecret returns the unconfirmed enrollment secret, if any.
func (s *Session) PendingTOTPSecret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingTOTPSecret
}

// ClearPendingTOTPSecret drops the unconfirmed enrollment secret.
func (s *Session) ClearPendingTOTPSecret() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTOTPSecret = ""
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, inactivity, absolute time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSeen) > inactivity {
		return true
	}
	return now.Sub(s.createdAt) > absolute
}

// Manager owns the live sessions. Expired entries are rejected on lookup and
// reaped by a background sweeper.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	inactivityTTL time.Duration
	absoluteTTL   time.Duration
	logger        *slog.Logger

	now func() time.Time // injectable for tests
}

// NewManager creates a session manager. Call StartSweeper to begin reaping.
func NewManager(inactivityTTL, absoluteTTL time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		sessions:      make(map[string]*Session),
		inactivityTTL: inactivityTTL,
		absoluteTTL:   absoluteTTL,
		logger:        logger,
		now:           time.Now,
	}
}

func randomID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create allocates a fresh anonymous session with its own CSRF token.
func (m *Manager) Create() (*Session, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	csrf, err := randomID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		id:        id,
		csrfToken: csrf,
		createdAt: now,
		lastSeen:  now,
		state:     StateAnonymous,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get returns the live session for an ID. Expired sessions are removed and
// reported as absent.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if sess.expired(m.now(), m.inactivityTTL, m.absoluteTTL) {
		m.Destroy(id)
		return nil, false
	}

	return sess, true
}

// Rotate destroys the old session and hands back a fresh anonymous one with a
// new ID and CSRF token. Used at every privilege transition so a
// pre-authentication session ID never survives into an authenticated session.
func (m *Manager) Rotate(old *Session) (*Session, error) {
	if old != nil {
		m.Destroy(old.ID())
	}
	return m.Create()
}

// Destroy removes a session immediately.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Touch refreshes the inactivity clock for a session.
func (m *Manager) Touch(sess *Session) {
	sess.touch(m.now())
}

// Count reports the number of resident sessions, expired or not.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartSweeper reaps expired sessions until stop is closed.
func (m *Manager) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-stop:
				return
			}
		}
	}()
}

func (m *Manager) sweep() {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.expired(now, m.inactivityTTL, m.absoluteTTL) {
			delete(m.sessions, id)
			removed++
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept expired sessions",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining),
		)
	}
}
