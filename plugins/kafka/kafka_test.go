package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/core"
)

type fakeReader struct {
	cfg       kafka.ReaderConfig
	fetch     []fetchResult
	committed []kafka.Message
	closed    bool
}

type fetchResult struct {
	msg kafka.Message
	err error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.closed {
		return kafka.Message{}, io.EOF
	}
	if len(r.fetch) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	f := r.fetch[0]
	r.fetch = r.fetch[1:]
	return f.msg, f.err
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func newTestConsumer(fr *fakeReader, fns ...Option) *consumer {
	opts := defaults()
	opts.pollTimeout = 20 * time.Millisecond
	for _, fn := range fns {
		fn(&opts)
	}
	c := newConsumer([]string{"localhost:9092"}, "grp1", opts)
	c.newReader = func(cfg kafka.ReaderConfig) reader {
		fr.cfg = cfg
		return fr
	}
	return c
}

func TestConsumer_FetchCommitClose(t *testing.T) {
	ctx := context.Background()
	raw := kafka.Message{Topic: "orders", Partition: 2, Offset: 41, Key: []byte("o-1"), Value: []byte("v"),
		Headers: []kafka.Header{{Key: "trace", Value: []byte("abc")}}}
	fr := &fakeReader{fetch: []fetchResult{
		{msg: raw},
		{err: kafka.NotLeaderForPartition},
	}}
	c := newTestConsumer(fr)

	require.NoError(t, c.Subscribe(ctx, "orders"))
	assert.Equal(t, "orders", fr.cfg.Topic)
	assert.Equal(t, "grp1", fr.cfg.GroupID)
	assert.Equal(t, kafka.FirstOffset, fr.cfg.StartOffset)
	assert.Error(t, c.Subscribe(ctx, "other"), "second subscribe")

	res, err := c.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "orders", res.Message.Topic())
	assert.Equal(t, []byte("o-1"), res.Message.Key())
	assert.Equal(t, map[string]string{"trace": "abc"}, res.Message.Headers())

	_, err = c.Consume(ctx)
	var cerr *core.ConsumeError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "orders", cerr.Topic)

	res, err = c.Consume(ctx)
	require.NoError(t, err)
	assert.True(t, res.EndOfPartition)

	require.NoError(t, c.Commit(ctx, &message{raw: raw}))
	require.Len(t, fr.committed, 1)
	assert.Equal(t, int64(41), fr.committed[0].Offset)
	assert.Error(t, c.Commit(ctx, core.NewMessage("orders", nil, nil, nil)))

	require.NoError(t, c.Close())
	assert.True(t, fr.closed)
	_, err = c.Consume(ctx)
	assert.ErrorIs(t, err, core.ErrHandleClosed)
	require.NoError(t, c.Close())
}

func TestConsumer_ConsumeBeforeSubscribe(t *testing.T) {
	c := newTestConsumer(&fakeReader{})
	_, err := c.Consume(context.Background())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := classify(live, "t", fmt.Errorf("fetch: %w", context.DeadlineExceeded))
	require.NoError(t, err)
	assert.True(t, res.EndOfPartition)

	_, err = classify(live, "t", io.EOF)
	assert.ErrorIs(t, err, core.ErrHandleClosed)

	_, err = classify(cancelled, "t", errors.New("whatever"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = classify(live, "t", kafka.BrokerNotAvailable)
	var cerr *core.ConsumeError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, kafka.BrokerNotAvailable)
}

func TestToKafka(t *testing.T) {
	msg := core.NewMessage("orders", []byte("o-1"), []byte{1, 2, 3}, map[string]string{"a": "1"})
	km := toKafka("orders.dlq", msg)

	assert.Equal(t, "orders.dlq", km.Topic)
	assert.Equal(t, []byte("o-1"), km.Key)
	assert.Equal(t, []byte{1, 2, 3}, km.Value)
	assert.Equal(t, []kafka.Header{{Key: "a", Value: []byte("1")}}, km.Headers)
	assert.Nil(t, toHeaders(nil))
}

func TestTopicConfig(t *testing.T) {
	tc := topicConfig(core.TopicSpec{Name: "orders.dlq", Partitions: 3, ReplicationFactor: 2,
		Config: map[string]string{"retention.ms": "1000"}})

	assert.Equal(t, "orders.dlq", tc.Topic)
	assert.Equal(t, 3, tc.NumPartitions)
	assert.Equal(t, 2, tc.ReplicationFactor)
	assert.Equal(t, []kafka.ConfigEntry{{ConfigName: "retention.ms", ConfigValue: "1000"}}, tc.ConfigEntries)
}

func TestMapTopicError(t *testing.T) {
	assert.NoError(t, mapTopicError(nil))
	assert.ErrorIs(t, mapTopicError(kafka.TopicAlreadyExists), core.ErrTopicExists)

	err := mapTopicError(kafka.InvalidReplicationFactor)
	assert.ErrorIs(t, err, kafka.InvalidReplicationFactor)
	assert.NotErrorIs(t, err, core.ErrTopicExists)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	d, err := broker.Create("kafka", broker.Config{
		Brokers: []string{"localhost:9092"},
		Extra:   map[string]any{"poll_timeout": time.Second, "start_offset": "last", "client_id": "billing"},
	})
	require.NoError(t, err)
	kd := d.(*Driver)
	assert.Equal(t, time.Second, kd.opts.pollTimeout)
	assert.Equal(t, kafka.LastOffset, kd.opts.startOffset)
	assert.Equal(t, "billing", kd.opts.clientID)

	require.NoError(t, d.Close())
	err = d.Producer().Produce(context.Background(), "t", core.NewMessage("t", nil, nil, nil))
	assert.ErrorIs(t, err, core.ErrHandleClosed)
	_, err = d.NewConsumer(context.Background(), "g")
	assert.ErrorIs(t, err, core.ErrHandleClosed)
}
