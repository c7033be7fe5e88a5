package messaging

import (
	"context"
	"time"
)

// Channels used for realtime fan-out.
const (
	ChannelNotifications = "notifications"
	ChannelLetters       = "letters"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope every published payload is wrapped in.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload, Timestamp: time.Now().UTC()}
}

// NoopBroker drops every message. It stands in when Redis is not configured.
type NoopBroker struct{}

func (NoopBroker) Publish(context.Context, string, interface{}) error { return nil }

func (NoopBroker) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (NoopBroker) Close() error { return nil }
