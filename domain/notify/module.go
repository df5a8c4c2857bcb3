package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var Module = fx.Module("notify",
	fx.Provide(NewSenderFromConfig),
	fx.Provide(NewFromConfig),
	fx.Provide(func(a *Async) Notifier { return a }),
)

// NewSenderFromConfig returns nil when the configured channel is none or
// incomplete.
func NewSenderFromConfig(cfg *config.Config, log *slog.Logger) (Sender, error) {
	log = log.With(logger.Scope("notify"))
	n := cfg.Notify

	if !n.IsConfigured() {
		if n.Channel != config.NotifyChannelNone {
			log.Warn("notification channel incomplete; notifications disabled",
				slog.String("channel", n.Channel))
		}
		return nil, nil
	}

	switch n.Channel {
	case config.NotifyChannelWebhook:
		log.Info("notifications via webhook", slog.String("format", n.WebhookFormat))
		return NewWebhookSender(n.WebhookURL, n.WebhookFormat, &http.Client{Timeout: n.Timeout}), nil
	case config.NotifyChannelMailgun:
		log.Info("notifications via mailgun", slog.String("domain", n.MailgunDomain))
		return NewMailgunSender(n.MailgunDomain, n.MailgunAPIKey, n.MailgunAPIBase, n.From, n.To)
	default:
		return nil, fmt.Errorf("unknown notify channel %q", n.Channel)
	}
}

// NewFromConfig wraps the sender and drains it on shutdown.
func NewFromConfig(lc fx.Lifecycle, cfg *config.Config, sender Sender, log *slog.Logger) *Async {
	a := NewAsync(sender, cfg.Notify.Timeout, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return a.Close(ctx)
		},
	})
	return a
}
