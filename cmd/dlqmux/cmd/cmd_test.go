package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/config"
	"github.com/miladsoleymani/dlqmux/core"
	"github.com/miladsoleymani/dlqmux/internal/mock"
)

type memDriver struct {
	consumer *mock.Consumer
	producer *mock.Producer
	admin    *mock.Admin
}

func (d *memDriver) NewConsumer(context.Context, string) (core.ConsumerHandle, error) {
	return d.consumer, nil
}
func (d *memDriver) Producer() core.ProducerHandle                      { return d.producer }
func (d *memDriver) NewAdmin(context.Context) (core.AdminHandle, error) { return d.admin, nil }
func (d *memDriver) Close() error                                       { return nil }

// newTestRuntime registers a driver under the test name and returns a
// runtime whose default connection uses it.
func newTestRuntime(t *testing.T, existing ...string) (*runtime, *memDriver) {
	t.Helper()
	d := &memDriver{
		consumer: mock.NewConsumer(),
		producer: &mock.Producer{},
		admin:    mock.NewAdmin(existing...),
	}
	broker.Register(t.Name(), func(broker.Config) (broker.Driver, error) { return d, nil })

	rt := &runtime{
		settings: &config.Settings{RequeueEnabled: true, LogLevel: "debug", LogFormat: "json"},
		log:      zaptest.NewLogger(t),
		pool: broker.NewPool(map[string]broker.Config{
			core.DefaultConnection: {Driver: t.Name(), Brokers: []string{"mem"}},
		}),
	}
	return rt, d
}

var binding = core.Binding{
	Topic:           "orders",
	DeadLetterTopic: "orders.dlq",
	GroupID:         "audit",
	Connection:      core.DefaultConnection,
}

func runConsume(t *testing.T, rt *runtime, out io.Writer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- consume(ctx, rt, binding, "", out) }()
	return cancel, errCh
}

func TestConsume_PrintsAndCommits(t *testing.T) {
	rt, d := newTestRuntime(t)
	var out bytes.Buffer

	cancel, errCh := runConsume(t, rt, &out)
	d.consumer.Deliver(&mock.Message{T: "orders", K: []byte("k1"), V: []byte("hello"), H: map[string]string{"trace": "abc"}})

	require.Eventually(t, func() bool { return len(d.consumer.Committed()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.JSONEq(t, `{"topic":"orders","key":"k1","value":"hello","headers":{"trace":"abc"}}`, out.String())
	assert.Empty(t, d.producer.Published())
	assert.True(t, d.consumer.IsClosed())
	assert.Len(t, d.admin.Created(), 2)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestConsume_WriteFailureGoesToDeadLetter(t *testing.T) {
	rt, d := newTestRuntime(t, "orders", "orders.dlq")

	cancel, errCh := runConsume(t, rt, failingWriter{})

	d.consumer.Deliver(&mock.Message{T: "orders", K: []byte("k1"), V: []byte("hello")})
	require.Eventually(t, func() bool { return len(d.consumer.Committed()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	published := d.producer.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "orders.dlq", published[0].Topic)
	assert.Equal(t, []byte("hello"), published[0].Message.Value())
	assert.Empty(t, d.admin.Created())
}

func TestConsume_InvalidBinding(t *testing.T) {
	rt, _ := newTestRuntime(t)
	b := binding
	b.DeadLetterTopic = b.Topic
	err := consume(context.Background(), rt, b, "", &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrSameTopic)
}

func TestProvisionCmd(t *testing.T) {
	rt, d := newTestRuntime(t, "orders")

	cmd := newProvisionCmd(func() (*runtime, error) { return rt, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--topic", "orders", "--dead-letter-topic", "orders.dlq", "--partitions", "3"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	created := d.admin.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "orders.dlq", created[0].Name)
	assert.Equal(t, 3, created[0].Partitions)
	assert.Contains(t, out.String(), "provisioned orders and orders.dlq on default")
}

func TestProvisionCmd_RequiredFlags(t *testing.T) {
	cmd := newProvisionCmd(func() (*runtime, error) { return nil, errors.New("not reached") })
	cmd.SetArgs([]string{"--topic", "orders"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestRoot_Commands(t *testing.T) {
	root := NewRoot()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "consume")
	assert.Contains(t, names, "provision")
}
