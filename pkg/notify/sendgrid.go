package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender sends email through the SendGrid v3 API.
type SendgridSender struct {
	key    string
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendgridSender builds a sender using apiKey and the from address.
func NewSendgridSender(apiKey, fromName, fromAddress string, logger *zap.Logger) *SendgridSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridSender{key: apiKey, from: sgmail.NewEmail(fromName, fromAddress), logger: logger}
}

func (s *SendgridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.Name, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	if msg.ReplyTo != "" {
		m.SetReplyTo(sgmail.NewEmail("", msg.ReplyTo))
	}
	return m
}

// Send implements Sender.
func (s *SendgridSender) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		s.logger.Warn("sendgrid send failed", zap.String("to", msg.To), zap.Error(err))
		return Result{}, fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return Result{}, fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	var id string
	if ids := res.Headers["X-Message-Id"]; len(ids) > 0 {
		id = ids[0]
	}
	return Result{MessageID: id, SentAt: time.Now().UTC()}, nil
}
