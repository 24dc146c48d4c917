package mock

import (
	"context"
	"sync"

	"github.com/miladsoleymani/dlqmux/core"
)

// Notification records one Notifier call.
type Notification struct {
	Err      error
	Severity core.Severity
	Fields   map[string]string
}

// Notifier is a core.Notifier recording every call.
type Notifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (n *Notifier) Notify(_ context.Context, err error, severity core.Severity, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notification{Err: err, Severity: severity, Fields: fields})
}

// Calls returns all recorded notifications.
func (n *Notifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.calls))
	copy(out, n.calls)
	return out
}

// Count returns the number of notifications at severity s.
func (n *Notifier) Count(s core.Severity) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, call := range n.calls {
		if call.Severity == s {
			c++
		}
	}
	return c
}
