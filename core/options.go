package core

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Consumer.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	notifier Notifier

	requeue         bool
	requeueAttempts int
	retryBackoff    time.Duration

	errorBackoff    time.Duration
	shutdownTimeout time.Duration

	topicDefaults TopicDefaults
}

func defaults() options {
	return options{
		logger:          zap.NewNop(),
		notifier:        nopNotifier{},
		requeue:         true,
		requeueAttempts: 3,
		retryBackoff:    200 * time.Millisecond,
		errorBackoff:    500 * time.Millisecond,
		shutdownTimeout: 5 * time.Second,
		topicDefaults:   DefaultTopicDefaults,
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNotifier sets the exception notification sink.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithRequeue controls whether failed messages are published to the
// dead-letter topic. Enabled by default.
func WithRequeue(enabled bool) Option {
	return func(o *options) { o.requeue = enabled }
}

// WithRequeueAttempts sets how many times a dead-letter publish is tried
// before the failure is reported and the message committed anyway.
func WithRequeueAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.requeueAttempts = n
		}
	}
}

// WithRetryBackoff sets the pause between dead-letter publish attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) { o.retryBackoff = d }
}

// WithErrorBackoff sets the pause after a consume error or a loop panic.
func WithErrorBackoff(d time.Duration) Option {
	return func(o *options) { o.errorBackoff = d }
}

// WithShutdownTimeout bounds how long Dispose waits for the loop to stop
// before closing the consumer handle.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) { o.shutdownTimeout = d }
}

// WithTopicDefaults sets the partition count and replication factor used
// when provisioning topics.
func WithTopicDefaults(d TopicDefaults) Option {
	return func(o *options) { o.topicDefaults = d }
}
