package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"

	"sitbrief/internal/config"
)

const maxSessions = 1024

var (
	// ErrInvalidCredentials is returned for a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthNotConfigured means no admin account is configured.
	ErrAuthNotConfigured = errors.New("authentication not configured")
)

// Session is an issued admin token.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authenticator checks admin credentials and tracks issued sessions.
type Authenticator struct {
	username     string
	passwordHash []byte
	ttl          time.Duration
	sessions     *expirable.LRU[string, Session]
	now          func() time.Time
}

// NewAuthenticator builds the session store from the admin settings.
func NewAuthenticator(cfg config.AdminConfig) *Authenticator {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{
		username:     cfg.Username,
		passwordHash: []byte(cfg.PasswordHash),
		ttl:          ttl,
		sessions:     expirable.NewLRU[string, Session](maxSessions, nil, ttl),
		now:          time.Now,
	}
}

// Login verifies the credentials and issues a new session.
func (a *Authenticator) Login(username, password string) (Session, error) {
	if a.username == "" || len(a.passwordHash) == 0 {
		return Session{}, ErrAuthNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	session := Session{
		Token:     uuid.NewString(),
		Username:  username,
		ExpiresAt: a.now().Add(a.ttl).UTC(),
	}
	a.sessions.Add(session.Token, session)
	return session, nil
}

// Verify returns the live session for token.
func (a *Authenticator) Verify(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	return a.sessions.Get(token)
}

// Logout drops the session if it exists.
func (a *Authenticator) Logout(token string) {
	a.sessions.Remove(token)
}

type sessionKey struct{}

// SessionFrom returns the session attached by the auth middleware.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, ok := a.Verify(token)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
