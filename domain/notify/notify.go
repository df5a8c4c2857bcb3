// Package notify sends short operator messages about job outcomes to one
// configured channel. Delivery is best effort and never affects a job.
package notify

import (
	"context"
)

// Severity tags a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// marker prefixes chat messages so severities stand out in a channel.
func (s Severity) marker() string {
	switch s {
	case SeveritySuccess:
		return "✅"
	case SeverityWarning:
		return "⚠️"
	case SeverityError:
		return "❌"
	default:
		return "ℹ️"
	}
}

// Notifier is what the pipeline calls. It never reports failures.
type Notifier interface {
	Notify(ctx context.Context, sev Severity, message string)
}

// Sender delivers a single message over one channel.
type Sender interface {
	Send(ctx context.Context, sev Severity, message string) error
	Name() string
}
