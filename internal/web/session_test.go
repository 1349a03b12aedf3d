package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestSessionManagerPlainPassword(t *testing.T) {
	m := NewSessionManager("hunter2", "", "")
	if !m.Enabled() {
		t.Fatal("Enabled() = false with a password set")
	}
	if !m.VerifyPassword("hunter2") {
		t.Error("VerifyPassword(correct) = false")
	}
	if m.VerifyPassword("hunter3") {
		t.Error("VerifyPassword(wrong) = true")
	}
	if m.VerifyPassword("") {
		t.Error("VerifyPassword(empty) = true")
	}
}

func TestSessionManagerBcryptHashWins(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("real-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}

	// The plain password is deliberately different: the hash must take
	// precedence.
	m := NewSessionManager("decoy", string(hash), "")
	if !m.VerifyPassword("real-password") {
		t.Error("VerifyPassword(hash match) = false")
	}
	if m.VerifyPassword("decoy") {
		t.Error("VerifyPassword(plain fallback) = true, want hash to win")
	}
}

func TestSessionManagerDisabled(t *testing.T) {
	m := NewSessionManager("", "", "")
	if m.Enabled() {
		t.Error("Enabled() = true with no credentials")
	}
	if m.VerifyPassword("anything") {
		t.Error("VerifyPassword() = true with no credentials")
	}
	if m.Verify("some-token") {
		t.Error("Verify() = true with no secret")
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	m := NewSessionManager("pw", "", "signing-secret")
	token, err := m.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !m.Verify(token) {
		t.Error("Verify(fresh token) = false")
	}

	other := NewSessionManager("pw", "", "different-secret")
	if other.Verify(token) {
		t.Error("Verify() accepted a token signed with another secret")
	}
	if m.Verify("") {
		t.Error("Verify(empty) = true")
	}
	if m.Verify("not.a.token") {
		t.Error("Verify(garbage) = true")
	}
}

func TestSessionTokenExpires(t *testing.T) {
	m := NewSessionManager("pw", "", "signing-secret")
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	m.now = func() time.Time { return issued.Add(DefaultSessionTTL - time.Minute) }
	if !m.Verify(token) {
		t.Error("Verify() = false before expiry")
	}

	m.now = func() time.Time { return issued.Add(DefaultSessionTTL + time.Minute) }
	if m.Verify(token) {
		t.Error("Verify() = true after expiry")
	}
}

func TestSessionSecretFallsBackToPassword(t *testing.T) {
	// Single-variable deployments sign with the password itself.
	issuer := NewSessionManager("only-password", "", "")
	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	verifier := NewSessionManager("only-password", "", "")
	if !verifier.Verify(token) {
		t.Error("Verify() = false for token signed with the password-derived secret")
	}
}

func TestIsAdminCookie(t *testing.T) {
	m := NewSessionManager("pw", "", "secret")

	r := httptest.NewRequest(http.MethodGet, "/admin/search", nil)
	if m.IsAdmin(r) {
		t.Error("IsAdmin() = true without a cookie")
	}

	token, err := m.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	if !m.IsAdmin(r) {
		t.Error("IsAdmin() = false with a valid cookie")
	}
}

func TestSetAndClearCookie(t *testing.T) {
	m := NewSessionManager("pw", "", "secret")

	w := httptest.NewRecorder()
	m.SetCookie(w, "token-value")
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookie || cookies[0].Value != "token-value" {
		t.Fatalf("SetCookie() cookies = %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie is not HttpOnly")
	}

	w = httptest.NewRecorder()
	m.ClearCookie(w)
	cookies = w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("ClearCookie() cookies = %v, want an expired cookie", cookies)
	}
}
