package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka driver.
type Option func(*options)

type options struct {
	// Writer
	balancer  kafka.Balancer
	batchSize int
	writeWait time.Duration

	// Reader
	minBytes    int
	maxBytes    int
	maxWait     time.Duration
	startOffset int64
	pollTimeout time.Duration

	// General
	dialer   *kafka.Dialer
	clientID string
}

func defaults() options {
	return options{
		balancer:    &kafka.Hash{},
		batchSize:   1,
		writeWait:   10 * time.Millisecond,
		minBytes:    1,
		maxBytes:    10e6, // 10 MB
		maxWait:     500 * time.Millisecond,
		startOffset: kafka.FirstOffset,
		pollTimeout: 5 * time.Second,
		clientID:    "dlqmux",
	}
}

// WithBalancer sets the partition balancer for the writer. Defaults to key
// hashing, so dead-lettered messages keep per-key ordering.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithStartOffset sets where a group without committed offsets starts
// (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}

// WithPollTimeout sets how long Consume waits for a message before reporting
// end of partition. Zero blocks until a message arrives.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) { o.pollTimeout = d }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClientID sets the client id sent to the brokers.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}
