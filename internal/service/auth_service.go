package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Varun5711/gatekeeper/internal/auth"
	"github.com/Varun5711/gatekeeper/internal/logger"
	"github.com/Varun5711/gatekeeper/internal/mailer"
	usermodel "github.com/Varun5711/gatekeeper/internal/models/user"
	"github.com/Varun5711/gatekeeper/internal/storage"
)

const mailTimeout = 15 * time.Second

type Config struct {
	VerifyCodeTTL time.Duration
	ResetCodeTTL  time.Duration
}

type AuthService struct {
	store      storage.UserStore
	jwtManager *auth.JWTManager
	sender     mailer.Sender
	cfg        Config
	log        *logger.Logger
}

func NewAuthService(store storage.UserStore, jwtManager *auth.JWTManager, sender mailer.Sender, cfg Config) *AuthService {
	if cfg.VerifyCodeTTL == 0 {
		cfg.VerifyCodeTTL = 24 * time.Hour
	}
	if cfg.ResetCodeTTL == 0 {
		cfg.ResetCodeTTL = 15 * time.Minute
	}

	return &AuthService{
		store:      store,
		jwtManager: jwtManager,
		sender:     sender,
		cfg:        cfg,
		log:        logger.New("auth-service"),
	}
}

func (s *AuthService) Register(ctx context.Context, req usermodel.RegisterRequest) (*usermodel.AuthResult, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &usermodel.User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(req.Email),
		Name:         req.Name,
		PasswordHash: passwordHash,
	}

	// The store enforces email uniqueness atomically; concurrent
	// registrations with the same email yield exactly one success.
	if err := s.store.CreateUser(ctx, u); err != nil {
		if err == storage.ErrEmailExists {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, expiresAt, err := s.jwtManager.GenerateToken(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	// Registration succeeds even if the welcome mail fails.
	s.sendMailAsync(u.Email, "Welcome to Gatekeeper!",
		fmt.Sprintf("Thank you for registering! Your account has been created with email id: %s.", u.Email))

	return &usermodel.AuthResult{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) Login(ctx context.Context, req usermodel.LoginRequest) (*usermodel.AuthResult, error) {
	if req.Email == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}

	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidPassword
	}

	token, expiresAt, err := s.jwtManager.GenerateToken(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &usermodel.AuthResult{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

// RequestVerification stores a fresh one-time code on the account,
// overwriting any pending one, and mails it out.
func (s *AuthService) RequestVerification(ctx context.Context, userID string) error {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}
	if u.IsVerified {
		return ErrAlreadyVerified
	}

	code, err := auth.GenerateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	expiry := time.Now().Add(s.cfg.VerifyCodeTTL)
	u.VerifyCode = code
	u.VerifyExpiry = &expiry

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	s.sendMailAsync(u.Email, "Account Verification OTP",
		fmt.Sprintf("Your OTP is %s. Verify your account using this OTP.", code))

	return nil
}

func (s *AuthService) ConfirmVerification(ctx context.Context, userID, code string) error {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}

	if code == "" || u.VerifyCode == "" || u.VerifyCode != code {
		return ErrInvalidCode
	}

	// An expired code is spent either way; clear it so it can never
	// match again.
	if u.VerifyExpiry == nil || time.Now().After(*u.VerifyExpiry) {
		u.VerifyCode = ""
		u.VerifyExpiry = nil
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("failed to clear expired code: %w", err)
		}
		return ErrCodeExpired
	}

	u.IsVerified = true
	u.VerifyCode = ""
	u.VerifyExpiry = nil

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	return nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return ErrMissingFields
	}

	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}

	code, err := auth.GenerateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	expiry := time.Now().Add(s.cfg.ResetCodeTTL)
	u.ResetCode = code
	u.ResetExpiry = &expiry

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	s.sendMailAsync(u.Email, "Password Reset OTP",
		fmt.Sprintf("Your OTP for resetting your password is %s. Use this OTP to proceed.", code))

	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if email == "" || code == "" || newPassword == "" {
		return ErrMissingFields
	}

	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}

	if u.ResetCode == "" || u.ResetCode != code {
		return ErrInvalidCode
	}

	if u.ResetExpiry == nil || time.Now().After(*u.ResetExpiry) {
		u.ResetCode = ""
		u.ResetExpiry = nil
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("failed to clear expired code: %w", err)
		}
		return ErrCodeExpired
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.PasswordHash = passwordHash
	u.ResetCode = ""
	u.ResetExpiry = nil

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	return nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*usermodel.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// sendMailAsync delivers off the request path so a slow or failing
// mail transport never blocks or fails the auth operation.
func (s *AuthService) sendMailAsync(to, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		if err := s.sender.Send(ctx, mailer.Message{To: to, Subject: subject, Body: body}); err != nil {
			s.log.Error("Failed to send mail to %s: %v", to, err)
		}
	}()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
