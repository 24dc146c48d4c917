// Package dlqmux provides the top-level API for the dlqmux consumer.
// It re-exports core types for convenience, so users can write:
//
//	c := dlqmux.New(pool, dlqmux.WithLogger(logger))
//	c.OnMessageReceived(handler)
//	err := c.Initialize(ctx, dlqmux.Binding{
//	    Topic:           "orders",
//	    DeadLetterTopic: "orders.dlq",
//	    GroupID:         "billing",
//	})
//	defer c.Dispose()
package dlqmux

import (
	"github.com/miladsoleymani/dlqmux/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Message    = core.Message
	Handler    = core.Handler
	Middleware = core.Middleware
	Binding    = core.Binding
	Consumer   = core.Consumer
	Option     = core.Option
	Notifier   = core.Notifier
	Severity   = core.Severity
)

// Re-exported options.
var (
	WithLogger          = core.WithLogger
	WithNotifier        = core.WithNotifier
	WithRequeue         = core.WithRequeue
	WithRequeueAttempts = core.WithRequeueAttempts
	WithRetryBackoff    = core.WithRetryBackoff
	WithErrorBackoff    = core.WithErrorBackoff
	WithShutdownTimeout = core.WithShutdownTimeout
	WithTopicDefaults   = core.WithTopicDefaults
)

// PoolSet is implemented by a single value that lends every kind of handle,
// such as *broker.Pool.
type PoolSet interface {
	core.ConsumerPool
	core.ProducerPool
	core.AdminPool
}

// New creates a Consumer borrowing all of its handles from p.
func New(p PoolSet, opts ...Option) *Consumer {
	return core.NewConsumer(core.Pools{Consumers: p, Producers: p, Admins: p}, opts...)
}
