package storage

import (
	"context"
	"errors"

	usermodel "github.com/Varun5711/gatekeeper/internal/models/user"
)

// ErrEmailExists is returned by CreateUser when the email is already
// taken. Uniqueness is enforced inside the store itself, never as a
// separate lookup before the insert.
var ErrEmailExists = errors.New("email already exists")

type UserStore interface {
	CreateUser(ctx context.Context, u *usermodel.User) error
	GetUserByEmail(ctx context.Context, email string) (*usermodel.User, error)
	GetUserByID(ctx context.Context, id string) (*usermodel.User, error)
	UpdateUser(ctx context.Context, u *usermodel.User) error
	DeleteUser(ctx context.Context, id string) error
}
