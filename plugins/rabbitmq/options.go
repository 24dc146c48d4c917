package rabbitmq

import "time"

// Option configures the RabbitMQ driver.
type Option func(*options)

type options struct {
	// Exchange settings
	exchange     string
	exchangeType string

	// Queue settings
	durable    bool
	autoDelete bool

	// Consumer settings
	prefetchCount int
	pollTimeout   time.Duration
}

func defaults() options {
	return options{
		exchange:      "",       // default exchange
		exchangeType:  "direct", // direct, fanout, topic, headers
		durable:       true,
		prefetchCount: 10,
		pollTimeout:   5 * time.Second,
	}
}

// WithExchange routes publishes through the named exchange. Provisioned
// queues are bound to it with the topic as routing key.
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		o.exchangeType = kind
	}
}

// WithDurable controls whether queues survive broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithPrefetchCount sets how many messages are delivered before requiring ack.
func WithPrefetchCount(n int) Option {
	return func(o *options) { o.prefetchCount = n }
}

// WithAutoDelete causes the queue to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithPollTimeout sets how long Consume waits for a delivery before
// reporting end of partition. Zero blocks until a delivery arrives.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) { o.pollTimeout = d }
}
