package mock

import (
	"context"
	"sync"

	"github.com/miladsoleymani/dlqmux/core"
)

// Pool is a test double implementing core.ConsumerPool, core.ProducerPool and
// core.AdminPool around a single consumer, producer and admin.
type Pool struct {
	Reader  *Consumer
	Writer  *Producer
	Manager *Admin

	ConsumerErr error
	ProducerErr error
	AdminErr    error

	// Customize is called by CustomizeTopic when set.
	Customize func(connection string, spec *core.TopicSpec)

	mu          sync.Mutex
	borrowed    []Borrow
	adminOpened int
}

// Borrow records a consumer borrow.
type Borrow struct {
	GroupID    string
	Connection string
}

func NewPool() *Pool {
	return &Pool{
		Reader:  NewConsumer(),
		Writer:  &Producer{},
		Manager: NewAdmin(),
	}
}

func (p *Pool) Consumer(_ context.Context, groupID, connection string) (core.ConsumerHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConsumerErr != nil {
		return nil, p.ConsumerErr
	}
	p.borrowed = append(p.borrowed, Borrow{GroupID: groupID, Connection: connection})
	return p.Reader, nil
}

func (p *Pool) Producer(_ context.Context, connection string) (core.ProducerHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProducerErr != nil {
		return nil, p.ProducerErr
	}
	return p.Writer, nil
}

func (p *Pool) Admin(_ context.Context, connection string) (core.AdminHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AdminErr != nil {
		return nil, p.AdminErr
	}
	p.adminOpened++
	return p.Manager, nil
}

func (p *Pool) CustomizeTopic(connection string, spec *core.TopicSpec) {
	if p.Customize != nil {
		p.Customize(connection, spec)
	}
}

// Borrowed returns all consumer borrows.
func (p *Pool) Borrowed() []Borrow {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Borrow, len(p.borrowed))
	copy(out, p.borrowed)
	return out
}

// AdminOpened returns how many admin handles were opened.
func (p *Pool) AdminOpened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adminOpened
}

// Pools returns p as core.Pools.
func (p *Pool) Pools() core.Pools {
	return core.Pools{Consumers: p, Producers: p, Admins: p}
}

// Consumer is a scripted core.ConsumerHandle. Results queued with Deliver,
// Fail and EOF are returned by Consume in order; Consume blocks while the
// queue is empty.
type Consumer struct {
	mu        sync.Mutex
	queue     chan step
	topic     string
	committed []core.Message
	closed    bool
	closedCh  chan struct{}

	SubscribeErr error
	CommitErr    error
	// Panic, when set, is raised by the next Consume call and then cleared.
	Panic any
}

type step struct {
	res core.ConsumeResult
	err error
}

func NewConsumer() *Consumer {
	return &Consumer{
		queue:    make(chan step, 1024),
		closedCh: make(chan struct{}),
	}
}

// Deliver queues a message.
func (c *Consumer) Deliver(msg core.Message) { c.queue <- step{res: core.ConsumeResult{Message: msg}} }

// Fail queues a consume error.
func (c *Consumer) Fail(err error) { c.queue <- step{err: err} }

// EOF queues an end-of-partition marker.
func (c *Consumer) EOF() { c.queue <- step{res: core.ConsumeResult{EndOfPartition: true}} }

func (c *Consumer) Subscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.topic = topic
	return nil
}

func (c *Consumer) Consume(ctx context.Context) (core.ConsumeResult, error) {
	c.mu.Lock()
	if p := c.Panic; p != nil {
		c.Panic = nil
		c.mu.Unlock()
		panic(p)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return core.ConsumeResult{}, ctx.Err()
	case <-c.closedCh:
		return core.ConsumeResult{}, core.ErrHandleClosed
	case s := <-c.queue:
		return s.res, s.err
	}
}

func (c *Consumer) Commit(_ context.Context, msg core.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CommitErr != nil {
		return c.CommitErr
	}
	c.committed = append(c.committed, msg)
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

// Topic returns the subscribed topic.
func (c *Consumer) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// Committed returns all committed messages.
func (c *Consumer) Committed() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Message, len(c.committed))
	copy(out, c.committed)
	return out
}

// IsClosed reports whether Close was called.
func (c *Consumer) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Producer is a core.ProducerHandle recording published messages.
type Producer struct {
	mu        sync.Mutex
	published []PublishedMessage
	attempts  int

	// FailTimes makes the first FailTimes Produce calls return PublishErr.
	// A negative value fails every call.
	FailTimes  int
	PublishErr error
}

// PublishedMessage records a message sent through Produce.
type PublishedMessage struct {
	Topic   string
	Message core.Message
}

func (p *Producer) Produce(_ context.Context, topic string, msg core.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.PublishErr != nil && (p.FailTimes < 0 || p.attempts <= p.FailTimes) {
		return p.PublishErr
	}
	p.published = append(p.published, PublishedMessage{Topic: topic, Message: msg})
	return nil
}

// Published returns all messages sent via Produce.
func (p *Producer) Published() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedMessage, len(p.published))
	copy(out, p.published)
	return out
}

// Attempts returns the number of Produce calls.
func (p *Producer) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Admin is a core.AdminHandle backed by an in-memory topic set.
type Admin struct {
	mu       sync.Mutex
	topics   map[string]core.TopicSpec
	created  []core.TopicSpec
	closes   int
	TopicErr map[string]error
	Err      error
}

func NewAdmin(existing ...string) *Admin {
	a := &Admin{topics: make(map[string]core.TopicSpec)}
	for _, t := range existing {
		a.topics[t] = core.TopicSpec{Name: t}
	}
	return a
}

// AddTopic marks a topic as already existing.
func (a *Admin) AddTopic(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.topics[name] = core.TopicSpec{Name: name}
}

func (a *Admin) CreateTopics(_ context.Context, specs []core.TopicSpec) (map[string]error, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	results := make(map[string]error, len(specs))
	for _, s := range specs {
		if err := a.TopicErr[s.Name]; err != nil {
			results[s.Name] = err
			continue
		}
		if _, ok := a.topics[s.Name]; ok {
			results[s.Name] = core.ErrTopicExists
			continue
		}
		a.topics[s.Name] = s
		a.created = append(a.created, s)
		results[s.Name] = nil
	}
	return results, nil
}

func (a *Admin) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	return nil
}

// Created returns the specs of topics created through CreateTopics.
func (a *Admin) Created() []core.TopicSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.TopicSpec, len(a.created))
	copy(out, a.created)
	return out
}

// Closes returns how many times Close was called.
func (a *Admin) Closes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}
