package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Varun5711/gatekeeper/internal/clickhouse"
	"github.com/Varun5711/gatekeeper/internal/events"
	"github.com/Varun5711/gatekeeper/internal/logger"
	"github.com/Varun5711/gatekeeper/internal/middleware"
	usermodel "github.com/Varun5711/gatekeeper/internal/models/user"
	"github.com/Varun5711/gatekeeper/internal/service"
)

const (
	publishTimeout = 3 * time.Second
	activityLimit  = 20
)

// EventPublisher is satisfied by events.AuthProducer; nil disables
// audit publishing entirely.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.AuthEvent) error
}

// ActivityReader is satisfied by clickhouse.Client; nil means the
// audit store is not connected and the activity endpoint fails.
type ActivityReader interface {
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]clickhouse.AuthEvent, error)
}

var errNoActivityStore = errors.New("audit store not connected")

type AuthHandler struct {
	svc       *service.AuthService
	publisher EventPublisher
	activity  ActivityReader
	env       string
	cookieTTL time.Duration
	log       *logger.Logger
}

func NewAuthHandler(svc *service.AuthService, publisher EventPublisher, activity ActivityReader, env string, cookieTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		svc:       svc,
		publisher: publisher,
		activity:  activity,
		env:       env,
		cookieTTL: cookieTTL,
		log:       logger.New("auth-handler"),
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ConfirmVerifyRequest struct {
	Code string `json:"code"`
}

type ResetRequestRequest struct {
	Email string `json:"email"`
}

type ResetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// Response is the envelope every endpoint answers with. Business
// failures keep HTTP 200; success=false is the failure signal.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, service.ErrMissingFields)
		return
	}

	result, err := h.svc.Register(r.Context(), usermodel.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logInternal("register", err)
		h.fail(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	h.publishEvent(r, events.TypeRegister, result.User.ID, result.User.Email)
	h.ok(w, "User registered successfully")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, service.ErrMissingCredentials)
		return
	}

	result, err := h.svc.Login(r.Context(), usermodel.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logInternal("login", err)
		h.publishEvent(r, events.TypeLoginFailed, "", req.Email)
		h.fail(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	h.publishEvent(r, events.TypeLogin, result.User.ID, result.User.Email)
	h.ok(w, "User login successfully")
}

// Logout clears the cookie unconditionally; there is no server-side
// session state to tear down.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	h.publishEvent(r, events.TypeLogout, middleware.GetUserID(r.Context()), "")
	h.ok(w, "Logged Out")
}

func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.RequestVerification(r.Context(), userID); err != nil {
		h.logInternal("verify/request", err)
		h.fail(w, err)
		return
	}

	h.ok(w, "Verification OTP sent on email")
}

func (h *AuthHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req ConfirmVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, service.ErrMissingFields)
		return
	}

	if err := h.svc.ConfirmVerification(r.Context(), userID, req.Code); err != nil {
		h.logInternal("verify/confirm", err)
		h.fail(w, err)
		return
	}

	h.publishEvent(r, events.TypeVerify, userID, "")
	h.ok(w, "Email verified successfully")
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, service.ErrMissingFields)
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logInternal("reset/request", err)
		h.fail(w, err)
		return
	}

	h.ok(w, "OTP sent to your email")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, service.ErrMissingFields)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.logInternal("reset/confirm", err)
		h.fail(w, err)
		return
	}

	h.publishEvent(r, events.TypeReset, "", req.Email)
	h.ok(w, "Password has been reset successfully")
}

// Me returns the authenticated account's profile. Sensitive fields
// never serialize (see the user model's json tags).
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	u, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		h.logInternal("me", err)
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"user":    u,
	})
}

// RecentActivity returns the account's latest audit rows so users can
// review where their account was used.
func (h *AuthHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if h.activity == nil {
		h.fail(w, errNoActivityStore)
		return
	}

	rows, err := h.activity.GetRecentEvents(r.Context(), userID, activityLimit)
	if err != nil {
		h.logInternal("activity", err)
		h.fail(w, err)
		return
	}
	if rows == nil {
		rows = []clickhouse.AuthEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"events":  rows,
	})
}

func (h *AuthHandler) ok(w http.ResponseWriter, message string) {
	h.writeJSON(w, Response{Success: true, Message: message})
}

func (h *AuthHandler) fail(w http.ResponseWriter, err error) {
	h.writeJSON(w, Response{Success: false, Message: service.UserMessage(err)})
}

func (h *AuthHandler) writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Only unexpected lower-layer failures are worth a log line; the
// taxonomy errors are normal request outcomes.
func (h *AuthHandler) logInternal(op string, err error) {
	switch {
	case errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrUnauthenticated):
	default:
		h.log.Error("%s failed: %v", op, err)
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, h.sessionCookie(token, int(h.cookieTTL.Seconds())))
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.sessionCookie("", -1))
}

// Production traffic arrives cross-site from the frontend origin, so
// the cookie needs SameSite=None and Secure there; local development
// runs over plain HTTP and uses Strict instead.
func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	secure := false
	sameSite := http.SameSiteStrictMode
	if h.env == "production" {
		secure = true
		sameSite = http.SameSiteNoneMode
	}

	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}

func (h *AuthHandler) publishEvent(r *http.Request, eventType, userID, email string) {
	if h.publisher == nil {
		return
	}

	event := &events.AuthEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Timestamp: time.Now().Unix(),
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}

	// Best effort off the request path; audit loss never fails auth.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := h.publisher.Publish(ctx, event); err != nil {
			h.log.Warn("Failed to publish %s event: %v", eventType, err)
		}
	}()
}
