package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/dlqmux/core"
)

// reader abstracts the subset of kafka.Reader used by consumer.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// consumer is a core.ConsumerHandle over a consumer-group kafka.Reader.
// Offsets are committed explicitly; CommitInterval is left at zero.
type consumer struct {
	brokers []string
	group   string
	opts    options

	newReader func(kafka.ReaderConfig) reader

	mu     sync.Mutex
	topic  string
	r      reader
	closed bool
}

func newConsumer(brokers []string, group string, opts options) *consumer {
	return &consumer{
		brokers:   brokers,
		group:     group,
		opts:      opts,
		newReader: func(cfg kafka.ReaderConfig) reader { return kafka.NewReader(cfg) },
	}
}

func (c *consumer) Subscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrHandleClosed
	}
	if c.r != nil {
		return fmt.Errorf("dlqmux/kafka: already subscribed to %q", c.topic)
	}

	cfg := kafka.ReaderConfig{
		Brokers:     c.brokers,
		Topic:       topic,
		GroupID:     c.group,
		MinBytes:    c.opts.minBytes,
		MaxBytes:    c.opts.maxBytes,
		MaxWait:     c.opts.maxWait,
		StartOffset: c.opts.startOffset,
	}
	if c.opts.dialer != nil {
		cfg.Dialer = c.opts.dialer
	}

	c.topic = topic
	c.r = c.newReader(cfg)
	return nil
}

// Consume fetches the next message. A poll that sees nothing within the poll
// timeout reports end of partition.
func (c *consumer) Consume(ctx context.Context) (core.ConsumeResult, error) {
	c.mu.Lock()
	r, topic, closed := c.r, c.topic, c.closed
	c.mu.Unlock()
	if closed {
		return core.ConsumeResult{}, core.ErrHandleClosed
	}
	if r == nil {
		return core.ConsumeResult{}, errors.New("dlqmux/kafka: consume before subscribe")
	}

	pollCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.opts.pollTimeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, c.opts.pollTimeout)
	}
	defer cancel()

	raw, err := r.FetchMessage(pollCtx)
	if err != nil {
		return classify(ctx, topic, err)
	}
	return core.ConsumeResult{Message: &message{raw: raw}}, nil
}

// classify maps a fetch error to a consume outcome.
func classify(ctx context.Context, topic string, err error) (core.ConsumeResult, error) {
	switch {
	case ctx.Err() != nil:
		return core.ConsumeResult{}, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return core.ConsumeResult{EndOfPartition: true}, nil
	case errors.Is(err, io.EOF):
		return core.ConsumeResult{}, core.ErrHandleClosed
	default:
		return core.ConsumeResult{}, &core.ConsumeError{Topic: topic, Err: err}
	}
}

func (c *consumer) Commit(ctx context.Context, msg core.Message) error {
	m, ok := msg.(*message)
	if !ok {
		return fmt.Errorf("dlqmux/kafka: cannot commit foreign message %T", msg)
	}
	c.mu.Lock()
	r := c.r
	c.mu.Unlock()
	if r == nil {
		return errors.New("dlqmux/kafka: commit before subscribe")
	}
	if err := r.CommitMessages(ctx, m.raw); err != nil {
		return fmt.Errorf("dlqmux/kafka: commit offset %d/%d: %w", m.raw.Partition, m.raw.Offset, err)
	}
	return nil
}

// Close leaves the group and closes the reader.
func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.r == nil {
		return nil
	}
	if err := c.r.Close(); err != nil {
		return fmt.Errorf("dlqmux/kafka: close reader: %w", err)
	}
	return nil
}
