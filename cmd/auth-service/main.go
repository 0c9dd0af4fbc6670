package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Varun5711/gatekeeper/internal/auth"
	"github.com/Varun5711/gatekeeper/internal/clickhouse"
	"github.com/Varun5711/gatekeeper/internal/config"
	"github.com/Varun5711/gatekeeper/internal/database"
	"github.com/Varun5711/gatekeeper/internal/events"
	"github.com/Varun5711/gatekeeper/internal/handlers"
	"github.com/Varun5711/gatekeeper/internal/logger"
	"github.com/Varun5711/gatekeeper/internal/mailer"
	"github.com/Varun5711/gatekeeper/internal/middleware"
	"github.com/Varun5711/gatekeeper/internal/redis"
	"github.com/Varun5711/gatekeeper/internal/service"
	"github.com/Varun5711/gatekeeper/internal/storage"
)

func main() {
	log := logger.New("auth-service")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: %v", err)
	}

	if err := database.RunMigrations(ctx, cfg.Database.PrimaryDSN); err != nil {
		log.Fatal("Failed to run migrations: %v", err)
	}

	dbManager, err := database.NewDBManager(ctx, database.Config{
		PrimaryDSN:      cfg.Database.PrimaryDSN,
		ReplicaDSNs:     cfg.Database.ReplicaDSNs,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer dbManager.Close()

	redisClient, err := redis.NewRedisClient(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-in-production"
		log.Warn("JWT_SECRET not set, using default (insecure for production)")
	}
	jwtManager := auth.NewJWTManager(jwtSecret, cfg.Auth.TokenTTL)

	var sender mailer.Sender
	if cfg.SMTP.Host != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			SenderEmail: cfg.SMTP.SenderEmail,
		})
	} else {
		log.Warn("SMTP_HOST not set, mail will only be logged")
		sender = mailer.NewLogSender()
	}

	userStorage := storage.NewUserStorage(dbManager)
	authService := service.NewAuthService(userStorage, jwtManager, sender, service.Config{
		VerifyCodeTTL: cfg.Auth.VerifyCodeTTL,
		ResetCodeTTL:  cfg.Auth.ResetCodeTTL,
	})

	// The audit store is optional: without it the activity endpoint
	// fails gracefully while everything else keeps working.
	var activity handlers.ActivityReader
	chClient, err := clickhouse.NewClient(clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
		MaxConns: cfg.ClickHouse.MaxConns,
	})
	if err != nil {
		log.Warn("ClickHouse unavailable, recent activity disabled: %v", err)
	} else {
		defer chClient.Close()
		activity = chClient
	}

	producer := events.NewAuthProducer(redisClient.GetClient(), cfg.Redis.StreamName)
	authHandler := handlers.NewAuthHandler(authService, producer, activity, cfg.Server.Environment, cfg.Auth.TokenTTL)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	credentialLimiter := middleware.NewRateLimiter(redisClient.GetClient(), "credentials", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	codeLimiter := middleware.NewRateLimiter(redisClient.GetClient(), "codes", cfg.RateLimit.Requests, cfg.RateLimit.Window)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", post(credentialLimiter.Middleware(authHandler.Register)))
	mux.HandleFunc("/api/auth/login", post(credentialLimiter.Middleware(authHandler.Login)))
	mux.HandleFunc("/api/auth/logout", post(authHandler.Logout))
	mux.HandleFunc("/api/auth/verify/request", post(codeLimiter.Middleware(authMiddleware.RequireAuth(authHandler.RequestVerification))))
	mux.HandleFunc("/api/auth/verify/confirm", post(authMiddleware.RequireAuth(authHandler.ConfirmVerification)))
	mux.HandleFunc("/api/auth/reset/request", post(codeLimiter.Middleware(authHandler.RequestPasswordReset)))
	mux.HandleFunc("/api/auth/reset/confirm", post(authHandler.ResetPassword))
	mux.HandleFunc("/api/auth/me", get(authMiddleware.RequireAuth(authHandler.Me)))
	mux.HandleFunc("/api/auth/activity", get(authMiddleware.RequireAuth(authHandler.RecentActivity)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx); err != nil {
			http.Error(w, "degraded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}

	go func() {
		log.Info("Auth service listening on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auth service...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error: %v", err)
	}
	log.Info("Auth service stopped")
}

func post(next http.HandlerFunc) http.HandlerFunc {
	return allowMethod(http.MethodPost, next)
}

func get(next http.HandlerFunc) http.HandlerFunc {
	return allowMethod(http.MethodGet, next)
}

func allowMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
