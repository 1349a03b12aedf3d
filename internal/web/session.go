package web

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionCookie carries the signed admin session token.
	SessionCookie = "admin_session"
	// DefaultSessionTTL bounds how long an admin login stays valid.
	DefaultSessionTTL = 24 * time.Hour

	sessionSubject = "admin"
)

// SessionManager issues and verifies the admin session cookie. Tokens are
// HS256-signed JWTs. The signing secret falls back to the admin password
// when no dedicated secret is configured, so single-variable deployments
// keep working.
type SessionManager struct {
	secret       []byte
	password     string
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
}

// NewSessionManager builds a session manager from the configured admin
// credentials. password may be empty when only the bcrypt hash is set. An
// empty secret (no secret and no password) disables sessions entirely:
// Verify rejects every token.
func NewSessionManager(password, passwordHash, secret string) *SessionManager {
	password = strings.TrimSpace(password)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		secret = password
	}
	return &SessionManager{
		secret:       []byte(secret),
		password:     password,
		passwordHash: strings.TrimSpace(passwordHash),
		ttl:          DefaultSessionTTL,
		now:          time.Now,
	}
}

// Enabled reports whether any login credential is configured.
func (m *SessionManager) Enabled() bool {
	return m.password != "" || m.passwordHash != ""
}

// VerifyPassword checks a submitted password. A configured bcrypt hash takes
// precedence over the plain-text password.
func (m *SessionManager) VerifyPassword(password string) bool {
	if m.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(m.passwordHash), []byte(password)) == nil
	}
	if m.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) == 1
}

// Issue signs a fresh admin session token.
func (m *SessionManager) Issue() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify reports whether token is a valid, unexpired admin session token.
func (m *SessionManager) Verify(token string) bool {
	if len(m.secret) == 0 || token == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	return err == nil && parsed.Valid && claims.Subject == sessionSubject
}

// IsAdmin reports whether the request carries a valid session cookie.
func (m *SessionManager) IsAdmin(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}
	return m.Verify(cookie.Value)
}

// SetCookie attaches the session token to the response.
func (m *SessionManager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
