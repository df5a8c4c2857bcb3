package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/mailgun/mailgun-go/v4"
)

const emailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h3 style="color: {{color}};">{{marker}} {{severity}}</h3>
  <p>{{message}}</p>
  <p style="color: #888; font-size: 12px;">ad-worker &middot; {{sentAt}}</p>
</body>
</html>`

var severityColors = map[Severity]string{
	SeverityInfo:    "#2563eb",
	SeveritySuccess: "#16a34a",
	SeverityWarning: "#d97706",
	SeverityError:   "#dc2626",
}

// MailgunSender emails notifications through the Mailgun API.
type MailgunSender struct {
	client *mailgun.MailgunImpl
	from   string
	to     []string
	tpl    *raymond.Template
	now    func() time.Time
}

// NewMailgunSender builds a sender. apiBase overrides the Mailgun endpoint,
// e.g. mailgun.APIBaseEU.
func NewMailgunSender(domain, apiKey, apiBase, from, to string) (*MailgunSender, error) {
	tpl, err := raymond.Parse(emailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}

	client := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		client.SetAPIBase(apiBase)
	}

	var recipients []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}

	return &MailgunSender{
		client: client,
		from:   from,
		to:     recipients,
		tpl:    tpl,
		now:    time.Now,
	}, nil
}

func (m *MailgunSender) Name() string { return "mailgun" }

func (m *MailgunSender) render(sev Severity, message string) (string, error) {
	return m.tpl.Exec(map[string]any{
		"severity": string(sev),
		"marker":   sev.marker(),
		"color":    severityColors[sev],
		"message":  message,
		"sentAt":   m.now().UTC().Format(time.RFC3339),
	})
}

func (m *MailgunSender) Send(ctx context.Context, sev Severity, message string) error {
	html, err := m.render(sev, message)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	subject := fmt.Sprintf("[%s] ad-worker", sev)
	msg := m.client.NewMessage(m.from, subject, message, m.to...)
	msg.SetHtml(html)

	if _, _, err := m.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}
