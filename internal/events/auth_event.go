package events

const (
	TypeRegister    = "register"
	TypeLogin       = "login"
	TypeLoginFailed = "login_failed"
	TypeLogout      = "logout"
	TypeVerify      = "verify"
	TypeReset       = "reset"
)

type AuthEvent struct {
	EventType string
	UserID    string
	Email     string
	Timestamp int64
	IP        string
	UserAgent string
}
