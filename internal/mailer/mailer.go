package mailer

import "context"

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender is the outbound notification contract. Implementations must
// be safe for concurrent use; callers treat delivery as best-effort.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
