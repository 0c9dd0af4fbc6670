package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Varun5711/gatekeeper/internal/database"
	usermodel "github.com/Varun5711/gatekeeper/internal/models/user"
)

type UserStorage struct {
	db *database.DBManager
}

func NewUserStorage(db *database.DBManager) *UserStorage {
	return &UserStorage{db: db}
}

func (s *UserStorage) CreateUser(ctx context.Context, u *usermodel.User) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, name, password_hash, is_verified,
			verify_code, verify_expiry, reset_code, reset_expiry,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.Write().Exec(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		u.IsVerified,
		u.VerifyCode,
		u.VerifyExpiry,
		u.ResetCode,
		u.ResetExpiry,
		u.CreatedAt,
		u.UpdatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *UserStorage) GetUserByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	query := `
		SELECT id, email, name, password_hash, is_verified,
			verify_code, verify_expiry, reset_code, reset_expiry,
			created_at, updated_at
		FROM users
		WHERE email = $1
	`

	return s.scanUser(s.db.Read().QueryRow(ctx, query, email))
}

func (s *UserStorage) GetUserByID(ctx context.Context, id string) (*usermodel.User, error) {
	query := `
		SELECT id, email, name, password_hash, is_verified,
			verify_code, verify_expiry, reset_code, reset_expiry,
			created_at, updated_at
		FROM users
		WHERE id = $1
	`

	return s.scanUser(s.db.Read().QueryRow(ctx, query, id))
}

func (s *UserStorage) UpdateUser(ctx context.Context, u *usermodel.User) error {
	query := `
		UPDATE users
		SET name = $1, password_hash = $2, is_verified = $3,
			verify_code = $4, verify_expiry = $5,
			reset_code = $6, reset_expiry = $7,
			updated_at = NOW()
		WHERE id = $8
	`

	tag, err := s.db.Write().Exec(ctx, query,
		u.Name,
		u.PasswordHash,
		u.IsVerified,
		u.VerifyCode,
		u.VerifyExpiry,
		u.ResetCode,
		u.ResetExpiry,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", u.ID)
	}

	return nil
}

func (s *UserStorage) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.Write().Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *UserStorage) scanUser(row pgx.Row) (*usermodel.User, error) {
	var u usermodel.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.IsVerified,
		&u.VerifyCode,
		&u.VerifyExpiry,
		&u.ResetCode,
		&u.ResetExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}
