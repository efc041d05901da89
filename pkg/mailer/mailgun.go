package mailer

import (
	"context"
	"errors"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

const defaultSendTimeout = 10 * time.Second

// Mailgun sends through one Mailgun domain. The API client is built once and
// shared by every Send.
type Mailgun struct {
	Domain  string
	Sender  string
	Tag     string // optional Mailgun tag for analytics
	Timeout time.Duration
	client  *mg.MailgunImpl
}

func NewMailgun(domain, apiKey, sender string) *Mailgun {
	return &Mailgun{
		Domain:  domain,
		Sender:  sender,
		Timeout: defaultSendTimeout,
		client:  mg.NewMailgun(domain, apiKey),
	}
}

// Send sends one email. html is optional; when set it becomes the HTML part
// next to the text body.
func (m *Mailgun) Send(ctx context.Context, to, subject, text, html string) error {
	_, err := m.SendWithID(ctx, to, subject, text, html)
	return err
}

// SendWithID is Send returning the Mailgun message id.
func (m *Mailgun) SendWithID(ctx context.Context, to, subject, text, html string) (string, error) {
	if to == "" {
		return "", errors.New("mailgun: empty recipient")
	}
	msg := m.client.NewMessage(m.Sender, subject, text, to)
	if html != "" {
		msg.SetHtml(html)
	}
	if m.Tag != "" {
		if err := msg.AddTag(m.Tag); err != nil {
			return "", err
		}
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, id, err := m.client.Send(c, msg)
	return id, err
}
