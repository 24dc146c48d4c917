package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/dlqmux/core"
)

// channel is the subset of *amqp.Channel a consumer handle uses.
type channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// consumer is a core.ConsumerHandle that owns one AMQP channel. RabbitMQ
// has no consumer groups: every handle on a queue competes for deliveries,
// and the group id only names the consumer tag.
type consumer struct {
	open  func() (channel, error)
	group string
	opts  options

	mu         sync.Mutex
	ch         channel
	topic      string
	deliveries <-chan amqp.Delivery
	closed     bool
}

func (c *consumer) Subscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrHandleClosed
	}
	if c.deliveries != nil {
		return fmt.Errorf("dlqmux/rabbitmq: already subscribed to %q", c.topic)
	}

	ch, err := c.open()
	if err != nil {
		return fmt.Errorf("dlqmux/rabbitmq: open channel: %w", err)
	}
	if err := ch.Qos(c.opts.prefetchCount, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("dlqmux/rabbitmq: set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		topic,
		c.group, // consumer tag, unique per channel
		false,   // autoAck, manual ack mode
		false,   // exclusive
		false,   // noLocal
		false,   // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("dlqmux/rabbitmq: consume %q: %w", topic, err)
	}

	c.ch = ch
	c.topic = topic
	c.deliveries = deliveries
	return nil
}

func (c *consumer) Consume(ctx context.Context) (core.ConsumeResult, error) {
	c.mu.Lock()
	deliveries, topic, closed := c.deliveries, c.topic, c.closed
	c.mu.Unlock()
	if closed {
		return core.ConsumeResult{}, core.ErrHandleClosed
	}
	if deliveries == nil {
		return core.ConsumeResult{}, errors.New("dlqmux/rabbitmq: consume before subscribe")
	}

	// a nil channel never fires, so a zero poll timeout blocks
	var expired <-chan time.Time
	if c.opts.pollTimeout > 0 {
		timer := time.NewTimer(c.opts.pollTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return core.ConsumeResult{}, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return core.ConsumeResult{}, core.ErrHandleClosed
		}
		return core.ConsumeResult{Message: &message{topic: topic, delivery: d}}, nil
	case <-expired:
		return core.ConsumeResult{EndOfPartition: true}, nil
	}
}

func (c *consumer) Commit(_ context.Context, msg core.Message) error {
	m, ok := msg.(*message)
	if !ok {
		return fmt.Errorf("dlqmux/rabbitmq: cannot commit foreign message %T", msg)
	}
	if err := m.delivery.Ack(false); err != nil {
		return fmt.Errorf("dlqmux/rabbitmq: ack: %w", err)
	}
	return nil
}

// Close closes the handle's channel. Unacked deliveries return to the queue.
func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ch == nil {
		return nil
	}
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("dlqmux/rabbitmq: close channel: %w", err)
	}
	return nil
}
