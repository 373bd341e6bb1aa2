package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fruit-quality-eval/backend/internal/store"
)

var (
	// ErrInvalidCredentials covers malformed login payloads. The demo accepts
	// any email; the only enforced rule is the password length floor.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotFound is returned for unknown or expired tokens.
	ErrSessionNotFound = errors.New("session not found")
)

const (
	minPasswordLength  = 6
	defaultSessionTTL  = 24 * time.Hour
	defaultRememberTTL = 30 * 24 * time.Hour
)

// Manager issues and validates login sessions backed by the store.
type Manager struct {
	db          *store.Database
	ttl         time.Duration
	rememberTTL time.Duration
}

// NewManager constructs a session manager. Zero TTLs fall back to defaults.
func NewManager(db *store.Database, ttl, rememberTTL time.Duration) *Manager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if rememberTTL <= 0 {
		rememberTTL = defaultRememberTTL
	}
	return &Manager{db: db, ttl: ttl, rememberTTL: rememberTTL}
}

// Login validates the demo credentials and issues a session token. The user
// profile name is derived from the email local part, matching the dashboard's
// expectations.
func (m *Manager) Login(email, password string, remember bool) (*store.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidCredentials, minPasswordLength)
	}

	ttl := m.ttl
	if remember {
		ttl = m.rememberTTL
	}

	session := &store.Session{
		Token:     uuid.NewString(),
		Name:      localPart(email),
		Email:     email,
		Remember:  remember,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := m.db.CreateSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Authenticate resolves a token to its session. Expired sessions are purged
// on sight and reported as not found.
func (m *Manager) Authenticate(token string) (*store.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionNotFound
	}
	session, err := m.db.GetSession(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		_ = m.db.DeleteSession(token)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Logout revokes the session for the given token. Unknown tokens are a no-op.
func (m *Manager) Logout(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return m.db.DeleteSession(token)
}

// PurgeExpired removes sessions past their expiry.
func (m *Manager) PurgeExpired() (int64, error) {
	return m.db.PurgeExpiredSessions(time.Now().UTC())
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
