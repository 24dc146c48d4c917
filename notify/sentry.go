// Package notify provides core.Notifier implementations.
package notify

import (
	"context"

	"github.com/getsentry/sentry-go"

	"github.com/miladsoleymani/dlqmux/core"
)

// Func adapts a function to core.Notifier.
type Func = core.NotifierFunc

type sentryNotifier struct {
	hub *sentry.Hub
}

// Sentry reports failures to Sentry through hub. A nil hub means
// sentry.CurrentHub(). Every report runs on a clone of the hub so the
// severity and tags of concurrent reports do not mix.
func Sentry(hub *sentry.Hub) core.Notifier {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &sentryNotifier{hub: hub}
}

func (n *sentryNotifier) Notify(ctx context.Context, err error, severity core.Severity, fields map[string]string) {
	if err == nil {
		return
	}
	hub := n.hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}
	hub = hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(level(severity))
		scope.SetTags(fields)
	})
	hub.CaptureException(err)
}

func level(s core.Severity) sentry.Level {
	if s == core.SeverityWarning {
		return sentry.LevelWarning
	}
	return sentry.LevelError
}
