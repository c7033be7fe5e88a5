package email

import (
	"context"
)

// Address is a display name plus mailbox.
type Address struct {
	Name  string
	Email string
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a fully composed outbound email.
type Message struct {
	From        Address
	To          []string
	CC          []string
	Subject     string
	Headers     map[string]string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Sender hands a message to a mail transport.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
