package service

import "errors"

// Terminal per-request failure kinds. Handlers translate these into
// the response envelope via UserMessage; anything unrecognized gets
// the generic internal message so lower-layer detail never leaks.
var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrEmailExists        = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCode        = errors.New("invalid one-time code")
	ErrCodeExpired        = errors.New("one-time code expired")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrUnauthenticated    = errors.New("missing or invalid session")
)

func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "Missing Details"
	case errors.Is(err, ErrMissingCredentials):
		return "Email and password are required"
	case errors.Is(err, ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	case errors.Is(err, ErrInvalidPassword):
		return "Invalid password"
	case errors.Is(err, ErrInvalidCode):
		return "Invalid OTP"
	case errors.Is(err, ErrCodeExpired):
		return "OTP Expired"
	case errors.Is(err, ErrAlreadyVerified):
		return "Account already verified"
	case errors.Is(err, ErrUnauthenticated):
		return "Not Authorized. Login Again"
	default:
		return "Something went wrong"
	}
}
