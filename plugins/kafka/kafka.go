package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (broker.Driver, error) {
		opts := optsFromConfig(cfg)
		return New(cfg.Brokers, opts...)
	})
}

// Driver implements broker.Driver for Apache Kafka using segmentio/kafka-go.
//
// Design decisions:
//   - One kafka.Writer shared by every producer borrow (thread-safe by library).
//   - One consumer-group kafka.Reader per consumer handle.
//   - Manual offset commit; CommitInterval stays zero.
//   - Topic creation goes through a kafka.Client on a transport that lives
//     only for the provisioning call.
type Driver struct {
	brokers []string
	opts    options

	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

var _ broker.Driver = (*Driver)(nil)

// New creates a Kafka Driver.
func New(brokers []string, fns ...Option) (*Driver, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("dlqmux/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		BatchTimeout: opts.writeWait,
		RequiredAcks: kafka.RequireAll,
		Transport:    newTransport(opts),
	}

	return &Driver{
		brokers: brokers,
		opts:    opts,
		writer:  w,
	}, nil
}

func newTransport(opts options) *kafka.Transport {
	t := &kafka.Transport{ClientID: opts.clientID}
	if opts.dialer != nil {
		t.TLS = opts.dialer.TLS
		t.SASL = opts.dialer.SASLMechanism
	}
	return t
}

// NewConsumer creates a consumer handle for groupID.
func (d *Driver) NewConsumer(_ context.Context, groupID string) (core.ConsumerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, core.ErrHandleClosed
	}
	return newConsumer(d.brokers, groupID, d.opts), nil
}

// Producer returns the shared producer.
func (d *Driver) Producer() core.ProducerHandle { return (*producer)(d) }

// NewAdmin opens an administrative handle with its own transport.
func (d *Driver) NewAdmin(context.Context) (core.AdminHandle, error) {
	t := newTransport(d.opts)
	return &admin{
		client: &kafka.Client{
			Addr:      kafka.TCP(d.brokers...),
			Timeout:   30 * time.Second,
			Transport: t,
		},
		transport: t,
	}, nil
}

// Close flushes and closes the shared writer.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.writer.Close(); err != nil {
		return fmt.Errorf("dlqmux/kafka: close writer: %w", err)
	}
	return nil
}

type producer Driver

// Produce writes msg to topic and waits for all in-sync replicas.
func (p *producer) Produce(ctx context.Context, topic string, msg core.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return core.ErrHandleClosed
	}
	p.mu.Unlock()

	if err := p.writer.WriteMessages(ctx, toKafka(topic, msg)); err != nil {
		return fmt.Errorf("dlqmux/kafka: publish to %q: %w", topic, err)
	}
	return nil
}

type admin struct {
	client    *kafka.Client
	transport *kafka.Transport
}

func (a *admin) CreateTopics(ctx context.Context, specs []core.TopicSpec) (map[string]error, error) {
	req := &kafka.CreateTopicsRequest{Topics: make([]kafka.TopicConfig, 0, len(specs))}
	for _, s := range specs {
		req.Topics = append(req.Topics, topicConfig(s))
	}

	res, err := a.client.CreateTopics(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dlqmux/kafka: create topics: %w", err)
	}

	out := make(map[string]error, len(specs))
	for _, s := range specs {
		out[s.Name] = mapTopicError(res.Errors[s.Name])
	}
	return out, nil
}

func (a *admin) Close() error {
	a.transport.CloseIdleConnections()
	return nil
}

func topicConfig(s core.TopicSpec) kafka.TopicConfig {
	tc := kafka.TopicConfig{
		Topic:             s.Name,
		NumPartitions:     s.Partitions,
		ReplicationFactor: s.ReplicationFactor,
	}
	for name, value := range s.Config {
		tc.ConfigEntries = append(tc.ConfigEntries, kafka.ConfigEntry{ConfigName: name, ConfigValue: value})
	}
	return tc
}

func mapTopicError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("%w: %v", core.ErrTopicExists, err)
	}
	return err
}

// optsFromConfig extracts options from the broker.Config.Extra map.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Extra["max_bytes"].(int); ok {
		opts = append(opts, WithMaxBytes(v))
	}
	if v, ok := cfg.Extra["poll_timeout"].(time.Duration); ok {
		opts = append(opts, WithPollTimeout(v))
	}
	if v, ok := cfg.Extra["client_id"].(string); ok {
		opts = append(opts, WithClientID(v))
	}
	if v, ok := cfg.Extra["start_offset"].(string); ok {
		switch v {
		case "first":
			opts = append(opts, WithStartOffset(kafka.FirstOffset))
		case "last":
			opts = append(opts, WithStartOffset(kafka.LastOffset))
		}
	}
	return opts
}
