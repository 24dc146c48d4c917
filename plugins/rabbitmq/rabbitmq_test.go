package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/core"
)

type fakeChannel struct {
	deliveries chan amqp.Delivery
	queue      string
	tag        string
	prefetch   int
	closed     bool
	consumeErr error
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(queue, tag string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	c.queue = queue
	c.tag = tag
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeAcker struct {
	acked []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}
func (a *fakeAcker) Nack(uint64, bool, bool) error { return nil }
func (a *fakeAcker) Reject(uint64, bool) error     { return nil }

func newTestConsumer(ch *fakeChannel) *consumer {
	opts := defaults()
	opts.pollTimeout = 20 * time.Millisecond
	return &consumer{
		open:  func() (channel, error) { return ch, nil },
		group: "billing",
		opts:  opts,
	}
}

func TestConsumer_DeliverCommitClose(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	c := newTestConsumer(ch)
	require.NoError(t, c.Subscribe(context.Background(), "orders"))
	assert.Equal(t, "orders", ch.queue)
	assert.Equal(t, "billing", ch.tag)
	assert.Equal(t, 10, ch.prefetch)

	acker := &fakeAcker{}
	ch.deliveries <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  7,
		Body:         []byte("payload"),
		Headers:      amqp.Table{core.KeyHeader: "k1", "attempt": int32(2)},
	}

	res, err := c.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "orders", res.Message.Topic())
	assert.Equal(t, []byte("k1"), res.Message.Key())
	assert.Equal(t, []byte("payload"), res.Message.Value())
	assert.Equal(t, map[string]string{"attempt": "2"}, res.Message.Headers())

	require.NoError(t, c.Commit(context.Background(), res.Message))
	assert.Equal(t, []uint64{7}, acker.acked)

	res, err = c.Consume(context.Background())
	require.NoError(t, err)
	assert.True(t, res.EndOfPartition)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, ch.closed)
	_, err = c.Consume(context.Background())
	assert.ErrorIs(t, err, core.ErrHandleClosed)
}

func TestConsumer_ZeroPollTimeoutBlocks(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	c := newTestConsumer(ch)
	c.opts.pollTimeout = 0
	require.NoError(t, c.Subscribe(context.Background(), "orders"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := c.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.EndOfPartition)

	go func() {
		time.Sleep(30 * time.Millisecond)
		ch.deliveries <- amqp.Delivery{Body: []byte("late")}
	}()
	res, err = c.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), res.Message.Value())
}

func TestConsumer_ClosedDeliveries(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	c := newTestConsumer(ch)
	require.NoError(t, c.Subscribe(context.Background(), "orders"))

	close(ch.deliveries)
	_, err := c.Consume(context.Background())
	assert.ErrorIs(t, err, core.ErrHandleClosed)
}

func TestConsumer_ContextCancelled(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	c := newTestConsumer(ch)
	c.opts.pollTimeout = time.Minute
	require.NoError(t, c.Subscribe(context.Background(), "orders"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Consume(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsumer_SubscribeErrors(t *testing.T) {
	ch := &fakeChannel{consumeErr: errors.New("no queue")}
	c := newTestConsumer(ch)
	assert.Error(t, c.Subscribe(context.Background(), "orders"))
	assert.True(t, ch.closed)

	_, err := newTestConsumer(&fakeChannel{}).Consume(context.Background())
	assert.Error(t, err)

	ok := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	c = newTestConsumer(ok)
	require.NoError(t, c.Subscribe(context.Background(), "orders"))
	assert.Error(t, c.Subscribe(context.Background(), "payments"))
}

func TestToPublishing(t *testing.T) {
	p := toPublishing(core.NewMessage("orders", []byte("k1"), []byte("v"), map[string]string{"trace": "abc"}))
	assert.Equal(t, []byte("v"), p.Body)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, "k1", p.Headers[core.KeyHeader])
	assert.Equal(t, "abc", p.Headers["trace"])

	p = toPublishing(core.NewMessage("orders", nil, []byte("v"), nil))
	_, ok := p.Headers[core.KeyHeader]
	assert.False(t, ok)
}

func TestQueueArgs(t *testing.T) {
	assert.Nil(t, queueArgs(core.TopicSpec{Name: "orders", Partitions: 1, ReplicationFactor: 1}))

	args := queueArgs(core.TopicSpec{
		Name:              "orders",
		ReplicationFactor: 3,
		Config:            map[string]string{"x-max-length": "1000", "x-overflow": "reject-publish"},
	})
	assert.Equal(t, "quorum", args["x-queue-type"])
	assert.Equal(t, int32(3), args["x-quorum-initial-group-size"])
	assert.Equal(t, int64(1000), args["x-max-length"])
	assert.Equal(t, "reject-publish", args["x-overflow"])
}

func TestMapQueueError(t *testing.T) {
	assert.NoError(t, mapQueueError(nil))

	exists := &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - inequivalent arg"}
	assert.ErrorIs(t, mapQueueError(exists), core.ErrTopicExists)

	denied := &amqp.Error{Code: amqp.AccessRefused, Reason: "ACCESS_REFUSED"}
	assert.Equal(t, error(denied), mapQueueError(denied))
}

func TestOptsFromConfig(t *testing.T) {
	o := defaults()
	for _, fn := range optsFromConfig(broker.Config{Extra: map[string]any{
		"exchange":       "events",
		"exchange_type":  "topic",
		"prefetch_count": 50,
		"poll_timeout":   time.Second,
	}}) {
		fn(&o)
	}
	assert.Equal(t, "events", o.exchange)
	assert.Equal(t, "topic", o.exchangeType)
	assert.Equal(t, 50, o.prefetchCount)
	assert.Equal(t, time.Second, o.pollTimeout)
}
