package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogSender(t *testing.T) {
	res, err := NewLogSender("sms", zap.NewNop()).Send(context.Background(), Message{To: "+440000", Subject: "Hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	assert.False(t, res.SentAt.IsZero())
}

func TestLogSenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLogSender("email", nil).Send(ctx, Message{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouter(t *testing.T) {
	email := NewLogSender("email", nil)
	fallback := NewLogSender("fallback", nil)
	r := NewRouter(fallback).Handle("email", email)

	s, err := r.For("email")
	require.NoError(t, err)
	assert.Same(t, email, s)

	s, err = r.For("push")
	require.NoError(t, err)
	assert.Same(t, fallback, s)

	_, err = NewRouter(nil).For("sms")
	assert.Error(t, err)
}

func TestSendgridPrepare(t *testing.T) {
	s := NewSendgridSender("key", "BookOn", "noreply@bookon.test", nil)
	m := s.prepare(Message{To: "parent@example.com", Name: "Pat", Subject: "Camp", HTML: "<p>x</p>", Text: "x"})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "Camp", m.Personalizations[0].Subject)
	assert.Equal(t, "parent@example.com", m.Personalizations[0].To[0].Address)
	assert.Len(t, m.Content, 2)
	assert.Equal(t, "noreply@bookon.test", m.From.Address)
}
