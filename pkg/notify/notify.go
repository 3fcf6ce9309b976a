// Package notify delivers rendered broadcast messages through external providers.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Message is one rendered message for one recipient.
type Message struct {
	To      string
	Name    string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// Result identifies the provider's accepted message.
type Result struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers messages for one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// LogSender only logs messages. Used in development and for channels without a provider.
type LogSender struct {
	channel string
	logger  *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(channel string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{channel: channel, logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := time.Now().UTC()
	s.logger.Info("message delivered to log",
		zap.String("channel", s.channel),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return Result{MessageID: fmt.Sprintf("log-%d", now.UnixNano()), SentAt: now}, nil
}

// Router picks a Sender by channel name.
type Router struct {
	senders  map[string]Sender
	fallback Sender
}

// NewRouter builds a Router. fallback handles channels without a dedicated sender.
func NewRouter(fallback Sender) *Router {
	return &Router{senders: make(map[string]Sender), fallback: fallback}
}

// Handle registers sender for channel.
func (r *Router) Handle(channel string, sender Sender) *Router {
	r.senders[channel] = sender
	return r
}

// For returns the sender for channel.
func (r *Router) For(channel string) (Sender, error) {
	if s, ok := r.senders[channel]; ok {
		return s, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no sender for channel %q", channel)
}
