package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sitbrief/internal/config"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func TestAuthenticatorLogin(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(config.AdminConfig{Username: "admin", PasswordHash: hashPassword(t, "s3cret"), SessionTTL: time.Hour})

	if _, err := auth.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login("root", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	session, err := auth.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Token == "" || session.ExpiresAt.Before(time.Now()) {
		t.Fatalf("unexpected session: %+v", session)
	}
	if got, ok := auth.Verify(session.Token); !ok || got.Username != "admin" {
		t.Fatalf("Verify = %+v, %v", got, ok)
	}

	auth.Logout(session.Token)
	if _, ok := auth.Verify(session.Token); ok {
		t.Fatal("session survived logout")
	}
}

func TestAuthenticatorNotConfigured(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(config.AdminConfig{})
	if _, err := auth.Login("admin", "x"); !errors.Is(err, ErrAuthNotConfigured) {
		t.Fatalf("expected ErrAuthNotConfigured, got %v", err)
	}
}

func TestAuthenticatorSessionsExpire(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(config.AdminConfig{Username: "admin", PasswordHash: hashPassword(t, "pw"), SessionTTL: 20 * time.Millisecond})
	session, err := auth.Login("admin", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := auth.Verify(session.Token); ok {
		t.Fatal("expired session still valid")
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator(config.AdminConfig{Username: "admin", PasswordHash: hashPassword(t, "pw")})
	session, _ := auth.Login("admin", "pw")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := SessionFrom(r.Context()); !ok || s.Username != "admin" {
			t.Errorf("session missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing":   {header: "", want: http.StatusUnauthorized},
		"raw token": {header: session.Token, want: http.StatusUnauthorized},
		"unknown":   {header: "Bearer nope", want: http.StatusUnauthorized},
		"valid":     {header: "Bearer " + session.Token, want: http.StatusNoContent},
		"lowercase": {header: "bearer " + session.Token, want: http.StatusNoContent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
