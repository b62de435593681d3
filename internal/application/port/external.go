package port

import "context"

// Message is a notification addressed to one user
type Message struct {
	Recipient  string
	Subject    string
	Body       string
	ApprovalID int64
}

// MessageSender delivers notifications to users
type MessageSender interface {
	Send(ctx context.Context, msg Message) error
}
