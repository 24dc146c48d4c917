package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/dlqmux/core"
)

// puller is the subset of jetstream.Consumer used by consumer.
type puller interface {
	Next(opts ...jetstream.FetchOpt) (jetstream.Msg, error)
}

// consumer is a core.ConsumerHandle over a durable JetStream pull consumer.
// The durable name is the group id, so instances in one group share work.
type consumer struct {
	js    jetstream.JetStream
	group string
	opts  options

	mu     sync.Mutex
	topic  string
	pull   puller
	closed bool
}

func (c *consumer) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrHandleClosed
	}
	if c.pull != nil {
		return fmt.Errorf("dlqmux/nats: already subscribed to %q", c.topic)
	}

	streamName := sanitizeName(topic)
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("dlqmux/nats: lookup stream %q: %w", streamName, err)
	}

	durable := sanitizeName(c.group)
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.ackWait,
		MaxDeliver:    c.opts.maxDeliver,
		FilterSubject: topic,
	})
	if err != nil {
		return fmt.Errorf("dlqmux/nats: create consumer %q: %w", durable, err)
	}

	c.topic = topic
	c.pull = cons
	return nil
}

// blockingPollInterval bounds each pull when the poll timeout is zero, so
// cancellation is still noticed between pulls.
const blockingPollInterval = time.Second

// Consume pulls one message. The pull is bounded by the poll timeout rather
// than ctx; an empty poll reports end of partition.
func (c *consumer) Consume(ctx context.Context) (core.ConsumeResult, error) {
	c.mu.Lock()
	pull, topic, closed := c.pull, c.topic, c.closed
	c.mu.Unlock()
	if closed {
		return core.ConsumeResult{}, core.ErrHandleClosed
	}
	if pull == nil {
		return core.ConsumeResult{}, errors.New("dlqmux/nats: consume before subscribe")
	}

	wait, block := c.opts.pollTimeout, c.opts.pollTimeout <= 0
	if block {
		wait = blockingPollInterval
	}
	for {
		msg, err := pull.Next(jetstream.FetchMaxWait(wait))
		if err == nil {
			return core.ConsumeResult{Message: &message{msg: msg}}, nil
		}
		res, err := classify(ctx, topic, err)
		if block && err == nil && res.EndOfPartition {
			continue
		}
		return res, err
	}
}

func classify(ctx context.Context, topic string, err error) (core.ConsumeResult, error) {
	switch {
	case ctx.Err() != nil:
		return core.ConsumeResult{}, ctx.Err()
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return core.ConsumeResult{EndOfPartition: true}, nil
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, jetstream.ErrMsgIteratorClosed):
		return core.ConsumeResult{}, core.ErrHandleClosed
	default:
		return core.ConsumeResult{}, &core.ConsumeError{Topic: topic, Err: err}
	}
}

// Commit acknowledges the message and waits for the server to confirm.
func (c *consumer) Commit(ctx context.Context, msg core.Message) error {
	m, ok := msg.(*message)
	if !ok {
		return fmt.Errorf("dlqmux/nats: cannot commit foreign message %T", msg)
	}
	if err := m.msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("dlqmux/nats: ack: %w", err)
	}
	return nil
}

// Close stops the handle. The durable consumer stays on the server so the
// group resumes where it left off.
func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
