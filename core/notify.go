package core

import "context"

// Severity classifies a reported failure.
type Severity int

const (
	// SeverityWarning is used for recoverable consume errors.
	SeverityWarning Severity = iota
	// SeverityError is used for handler, requeue and commit failures.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier is an out-of-band exception sink (error tracker, pager, ...).
// Implementations must be safe for concurrent use and must not block for long.
type Notifier interface {
	Notify(ctx context.Context, err error, severity Severity, fields map[string]string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, err error, severity Severity, fields map[string]string)

func (f NotifierFunc) Notify(ctx context.Context, err error, severity Severity, fields map[string]string) {
	f(ctx, err, severity, fields)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, error, Severity, map[string]string) {}
