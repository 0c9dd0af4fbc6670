package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Varun5711/gatekeeper/internal/auth"
	"github.com/Varun5711/gatekeeper/internal/clickhouse"
	"github.com/Varun5711/gatekeeper/internal/mailer"
	"github.com/Varun5711/gatekeeper/internal/middleware"
	"github.com/Varun5711/gatekeeper/internal/service"
	"github.com/Varun5711/gatekeeper/internal/storage"
)

type discardSender struct{}

func (discardSender) Send(ctx context.Context, msg mailer.Message) error { return nil }

type testEnv struct {
	handler    *AuthHandler
	middleware *middleware.AuthMiddleware
	store      *storage.MemoryStorage
	svc        *service.AuthService
}

func newTestEnv(t *testing.T, environment string) *testEnv {
	t.Helper()

	store := storage.NewMemoryStorage()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	svc := service.NewAuthService(store, jwtManager, discardSender{}, service.Config{})

	return &testEnv{
		handler:    NewAuthHandler(svc, nil, nil, environment, 7*24*time.Hour),
		middleware: middleware.NewAuthMiddleware(jwtManager),
		store:      store,
		svc:        svc,
	}
}

type fakeActivity struct {
	events     []clickhouse.AuthEvent
	lastUserID string
	lastLimit  int
}

func (f *fakeActivity) GetRecentEvents(ctx context.Context, userID string, limit int) ([]clickhouse.AuthEvent, error) {
	f.lastUserID = userID
	f.lastLimit = limit
	return f.events, nil
}

func doJSON(t *testing.T, handlerFunc http.HandlerFunc, body string, cookies ...*http.Cookie) (*http.Response, Response) {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	handlerFunc(w, r)

	resp := w.Result()
	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, envelope
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestRegister_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, "development")

	resp, envelope := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !envelope.Success || envelope.Message != "User registered successfully" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}

	cookie := sessionCookie(t, resp)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected session cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be http-only")
	}
	if cookie.Secure {
		t.Error("expected Secure=false outside production")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Error("expected SameSite=Strict outside production")
	}
	if cookie.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("expected 7-day max-age, got %d", cookie.MaxAge)
	}
}

func TestRegister_ProductionCookieAttributes(t *testing.T) {
	env := newTestEnv(t, "production")

	resp, _ := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)

	cookie := sessionCookie(t, resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.Secure {
		t.Error("expected Secure=true in production")
	}
	if cookie.SameSite != http.SameSiteNoneMode {
		t.Error("expected SameSite=None in production")
	}
}

func TestRegister_NoSensitiveDataInBody(t *testing.T) {
	env := newTestEnv(t, "development")

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"A","email":"a@x.com","password":"p"}`))
	w := httptest.NewRecorder()
	env.handler.Register(w, r)

	body := w.Body.String()
	if strings.Contains(body, "token") || strings.Contains(body, "hash") {
		t.Errorf("response body must not carry token or hash material: %s", body)
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	env := newTestEnv(t, "development")

	resp, envelope := doJSON(t, env.handler.Register, `{not json`)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("business failures stay 200, got %d", resp.StatusCode)
	}
	if envelope.Success || envelope.Message != "Missing Details" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}

func TestScenario_RegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t, "development")

	// Fresh registration succeeds.
	resp, envelope := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)
	if !envelope.Success {
		t.Fatalf("expected registration success, got %+v", envelope)
	}
	if sessionCookie(t, resp) == nil {
		t.Fatal("expected cookie on register")
	}

	// Same email again conflicts.
	_, envelope = doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)
	if envelope.Success || envelope.Message != "Email already exists" {
		t.Errorf("expected duplicate rejection, got %+v", envelope)
	}

	// Wrong password.
	_, envelope = doJSON(t, env.handler.Login, `{"email":"a@x.com","password":"wrong"}`)
	if envelope.Success || envelope.Message != "Invalid password" {
		t.Errorf("expected invalid password, got %+v", envelope)
	}

	// Unknown email.
	_, envelope = doJSON(t, env.handler.Login, `{"email":"b@x.com","password":"p"}`)
	if envelope.Success || envelope.Message != "User not found" {
		t.Errorf("expected user not found, got %+v", envelope)
	}

	// Correct credentials set a cookie.
	resp, envelope = doJSON(t, env.handler.Login, `{"email":"a@x.com","password":"p"}`)
	if !envelope.Success || envelope.Message != "User login successfully" {
		t.Fatalf("expected login success, got %+v", envelope)
	}
	if sessionCookie(t, resp) == nil {
		t.Fatal("expected cookie on login")
	}

	// Logout clears the cookie.
	resp, envelope = doJSON(t, env.handler.Logout, ``)
	if !envelope.Success || envelope.Message != "Logged Out" {
		t.Errorf("expected logout success, got %+v", envelope)
	}
	cookie := sessionCookie(t, resp)
	if cookie == nil {
		t.Fatal("expected clearing cookie on logout")
	}
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Errorf("expected cleared cookie, got value=%q maxAge=%d", cookie.Value, cookie.MaxAge)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t, "development")

	for i := 0; i < 2; i++ {
		_, envelope := doJSON(t, env.handler.Logout, ``)
		if !envelope.Success {
			t.Errorf("logout must always succeed, got %+v", envelope)
		}
	}
}

func TestVerificationEndpoints_FullFlow(t *testing.T) {
	env := newTestEnv(t, "development")
	ctx := context.Background()

	resp, _ := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)
	cookie := sessionCookie(t, resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	requestVerify := env.middleware.RequireAuth(env.handler.RequestVerification)
	confirmVerify := env.middleware.RequireAuth(env.handler.ConfirmVerification)

	_, envelope := doJSON(t, requestVerify, ``, cookie)
	if !envelope.Success || envelope.Message != "Verification OTP sent on email" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	u, _ := env.store.GetUserByEmail(ctx, "a@x.com")
	if u.VerifyCode == "" {
		t.Fatal("expected pending verification code")
	}

	_, envelope = doJSON(t, confirmVerify, `{"code":"`+u.VerifyCode+`"}`, cookie)
	if !envelope.Success || envelope.Message != "Email verified successfully" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	verified, _ := env.store.GetUserByEmail(ctx, "a@x.com")
	if !verified.IsVerified {
		t.Error("expected account verified")
	}

	// Replaying the consumed code fails.
	_, envelope = doJSON(t, confirmVerify, `{"code":"`+u.VerifyCode+`"}`, cookie)
	if envelope.Success || envelope.Message != "Invalid OTP" {
		t.Errorf("expected replay rejection, got %+v", envelope)
	}
}

func TestResetEndpoints_FullFlow(t *testing.T) {
	env := newTestEnv(t, "development")
	ctx := context.Background()

	doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)

	_, envelope := doJSON(t, env.handler.RequestPasswordReset, `{"email":"a@x.com"}`)
	if !envelope.Success || envelope.Message != "OTP sent to your email" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	u, _ := env.store.GetUserByEmail(ctx, "a@x.com")
	if u.ResetCode == "" {
		t.Fatal("expected pending reset code")
	}

	_, envelope = doJSON(t, env.handler.ResetPassword,
		`{"email":"a@x.com","code":"`+u.ResetCode+`","newPassword":"fresh"}`)
	if !envelope.Success || envelope.Message != "Password has been reset successfully" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	_, envelope = doJSON(t, env.handler.Login, `{"email":"a@x.com","password":"fresh"}`)
	if !envelope.Success {
		t.Errorf("expected login with new password, got %+v", envelope)
	}

	_, envelope = doJSON(t, env.handler.Login, `{"email":"a@x.com","password":"p"}`)
	if envelope.Success {
		t.Error("old password must no longer authenticate")
	}
}

func TestMe_ReturnsProfileWithoutSecrets(t *testing.T) {
	env := newTestEnv(t, "development")

	resp, _ := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)
	cookie := sessionCookie(t, resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	env.middleware.RequireAuth(env.handler.Me)(w, r)

	var body struct {
		Success bool `json:"success"`
		User    struct {
			Email      string `json:"email"`
			Name       string `json:"name"`
			IsVerified bool   `json:"is_verified"`
		} `json:"user"`
	}
	raw := w.Body.String()
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !body.Success || body.User.Email != "a@x.com" {
		t.Errorf("unexpected body: %+v", body)
	}
	if strings.Contains(raw, "password") {
		t.Error("profile response must not include password material")
	}
}

func TestRecentActivity_ReturnsOwnAuditRows(t *testing.T) {
	env := newTestEnv(t, "development")

	resp, _ := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)
	cookie := sessionCookie(t, resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	u, _ := env.store.GetUserByEmail(context.Background(), "a@x.com")
	activity := &fakeActivity{events: []clickhouse.AuthEvent{{
		EventID:    "e1",
		EventType:  "login",
		UserID:     u.ID,
		OccurredAt: time.Now(),
		DeviceType: "desktop",
	}}}
	handler := NewAuthHandler(env.svc, nil, activity, "development", 7*24*time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	env.middleware.RequireAuth(handler.RecentActivity)(w, r)

	var body struct {
		Success bool `json:"success"`
		Events  []struct {
			EventType  string `json:"event_type"`
			DeviceType string `json:"device_type"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !body.Success || len(body.Events) != 1 || body.Events[0].EventType != "login" {
		t.Errorf("unexpected body: %+v", body)
	}
	if activity.lastUserID != u.ID {
		t.Errorf("expected query scoped to user %s, got %s", u.ID, activity.lastUserID)
	}
	if activity.lastLimit <= 0 {
		t.Error("expected a positive row limit")
	}
}

func TestRecentActivity_NoAuditStore(t *testing.T) {
	env := newTestEnv(t, "development")

	resp, _ := doJSON(t, env.handler.Register, `{"name":"A","email":"a@x.com","password":"p"}`)
	cookie := sessionCookie(t, resp)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	env.middleware.RequireAuth(env.handler.RecentActivity)(w, r)

	var envelope Response
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Success || envelope.Message != "Something went wrong" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}

func TestResetRequest_UnknownEmail(t *testing.T) {
	env := newTestEnv(t, "development")

	_, envelope := doJSON(t, env.handler.RequestPasswordReset, `{"email":"nobody@x.com"}`)
	if envelope.Success || envelope.Message != "User not found" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}
}
