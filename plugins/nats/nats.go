package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/dlqmux/broker"
	"github.com/miladsoleymani/dlqmux/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (broker.Driver, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("dlqmux/nats: at least one broker URL is required")
		}
		return New(cfg.Brokers[0], optsFromConfig(cfg)...)
	})
}

// Driver implements broker.Driver for NATS JetStream.
//
// A topic is a subject backed by a stream of the same (sanitized) name.
// Provisioning creates the stream; consumer handles bind a durable pull
// consumer named after the group.
type Driver struct {
	conn *nats.Conn
	js   jetstream.JetStream
	opts options

	mu     sync.Mutex
	closed bool
}

var _ broker.Driver = (*Driver)(nil)

// New connects to url (nats://host:port) and opens a JetStream context.
func New(url string, fns ...Option) (*Driver, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	nc, err := nats.Connect(url, nats.Name("dlqmux"))
	if err != nil {
		return nil, fmt.Errorf("dlqmux/nats: connect to %q: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("dlqmux/nats: init jetstream: %w", err)
	}

	return &Driver{conn: nc, js: js, opts: opts}, nil
}

func (d *Driver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// NewConsumer creates a consumer handle for groupID.
func (d *Driver) NewConsumer(_ context.Context, groupID string) (core.ConsumerHandle, error) {
	if d.isClosed() {
		return nil, core.ErrHandleClosed
	}
	return &consumer{js: d.js, group: groupID, opts: d.opts}, nil
}

// Producer returns the shared JetStream publisher.
func (d *Driver) Producer() core.ProducerHandle { return (*producer)(d) }

// NewAdmin returns a handle that creates streams.
func (d *Driver) NewAdmin(context.Context) (core.AdminHandle, error) {
	if d.isClosed() {
		return nil, core.ErrHandleClosed
	}
	return &admin{js: d.js, opts: d.opts}, nil
}

// Close closes the NATS connection.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.conn.Close()
	return nil
}

type producer Driver

// Produce publishes msg and waits for the stream to store it.
func (p *producer) Produce(ctx context.Context, topic string, msg core.Message) error {
	if (*Driver)(p).isClosed() {
		return core.ErrHandleClosed
	}
	if _, err := p.js.PublishMsg(ctx, toNats(topic, msg)); err != nil {
		return fmt.Errorf("dlqmux/nats: publish to %q: %w", topic, err)
	}
	return nil
}

type admin struct {
	js   jetstream.JetStream
	opts options
}

func (a *admin) CreateTopics(ctx context.Context, specs []core.TopicSpec) (map[string]error, error) {
	out := make(map[string]error, len(specs))
	for _, s := range specs {
		_, err := a.js.CreateStream(ctx, streamConfig(s, a.opts))
		out[s.Name] = mapStreamError(err)
	}
	return out, nil
}

func (a *admin) Close() error { return nil }

// streamConfig maps a topic spec onto a stream. Partitions and Config have
// no JetStream equivalent.
func streamConfig(s core.TopicSpec, opts options) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      sanitizeName(s.Name),
		Subjects:  []string{s.Name},
		MaxMsgs:   opts.maxMsgs,
		MaxBytes:  opts.maxBytes,
		MaxAge:    opts.maxAge,
		Replicas:  s.ReplicationFactor,
		Retention: opts.retention,
		Storage:   opts.storage,
	}
}

func mapStreamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("%w: %v", core.ErrTopicExists, err)
	}
	return err
}

// sanitizeName converts a subject to a valid stream or durable name.
func sanitizeName(subject string) string {
	buf := make([]byte, len(subject))
	for i := range len(subject) {
		switch c := subject[i]; c {
		case '.', '*', '>', ' ', '\t':
			buf[i] = '-'
		default:
			buf[i] = c
		}
	}
	return string(buf)
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["max_deliver"].(int); ok {
		opts = append(opts, WithMaxDeliver(v))
	}
	if v, ok := cfg.Extra["ack_wait"].(time.Duration); ok {
		opts = append(opts, WithAckWait(v))
	}
	if v, ok := cfg.Extra["poll_timeout"].(time.Duration); ok {
		opts = append(opts, WithPollTimeout(v))
	}
	if v, ok := cfg.Extra["storage"].(string); ok && v == "memory" {
		opts = append(opts, WithStorage(jetstream.MemoryStorage))
	}
	return opts
}
