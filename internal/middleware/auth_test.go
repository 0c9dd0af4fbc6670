package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Varun5711/gatekeeper/internal/auth"
)

func newProtectedHandler(t *testing.T, m *AuthMiddleware) (http.HandlerFunc, *string) {
	t.Helper()

	var seenUserID string
	handler := m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return handler, &seenUserID
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (bool, string) {
	t.Helper()

	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return envelope.Success, envelope.Message
}

func TestRequireAuth_MissingCookie(t *testing.T) {
	m := NewAuthMiddleware(auth.NewJWTManager("secret", time.Hour))
	handler, seen := newProtectedHandler(t, m)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()
	handler(w, r)

	success, message := decodeEnvelope(t, w)
	if success || message != "Not Authorized. Login Again" {
		t.Errorf("unexpected envelope: success=%v message=%q", success, message)
	}
	if *seen != "" {
		t.Error("handler must not run without a session")
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	m := NewAuthMiddleware(auth.NewJWTManager("secret", time.Hour))
	handler, seen := newProtectedHandler(t, m)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	w := httptest.NewRecorder()
	handler(w, r)

	if success, _ := decodeEnvelope(t, w); success {
		t.Error("expected rejection for invalid token")
	}
	if *seen != "" {
		t.Error("handler must not run with an invalid session")
	}
}

func TestRequireAuth_WrongSigningKey(t *testing.T) {
	issuer := auth.NewJWTManager("other-secret", time.Hour)
	token, _, err := issuer.GenerateToken("user-123", "a@x.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	m := NewAuthMiddleware(auth.NewJWTManager("secret", time.Hour))
	handler, seen := newProtectedHandler(t, m)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	handler(w, r)

	if success, _ := decodeEnvelope(t, w); success {
		t.Error("expected rejection for foreign signature")
	}
	if *seen != "" {
		t.Error("handler must not run with a forged session")
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", -time.Hour)
	token, _, err := jwtManager.GenerateToken("user-123", "a@x.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	m := NewAuthMiddleware(auth.NewJWTManager("secret", time.Hour))
	handler, _ := newProtectedHandler(t, m)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	handler(w, r)

	if success, _ := decodeEnvelope(t, w); success {
		t.Error("expected rejection for expired token")
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwtManager.GenerateToken("user-123", "a@x.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	m := NewAuthMiddleware(jwtManager)
	handler, seen := newProtectedHandler(t, m)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if *seen != "user-123" {
		t.Errorf("expected user-123 in context, got %q", *seen)
	}
}

func TestGetUserID_EmptyContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetUserID(r.Context()); id != "" {
		t.Errorf("expected empty user id, got %q", id)
	}
}
