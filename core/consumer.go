package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDisposed is returned by Initialize after Dispose.
var ErrDisposed = errors.New("dlqmux: consumer disposed")

// Binding is what a Consumer reads and where its failures go.
// It is fixed by Initialize for the lifetime of the Consumer.
type Binding struct {
	Topic           string
	DeadLetterTopic string
	GroupID         string
	// Connection names the broker connection; empty means DefaultConnection.
	Connection string
}

func (b Binding) validate() error {
	switch {
	case b.Topic == "":
		return fmt.Errorf("%w: topic", ErrEmptyArgument)
	case b.DeadLetterTopic == "":
		return fmt.Errorf("%w: dead-letter topic", ErrEmptyArgument)
	case b.GroupID == "":
		return fmt.Errorf("%w: group id", ErrEmptyArgument)
	case b.Topic == b.DeadLetterTopic:
		return ErrSameTopic
	}
	return nil
}

// Consumer subscribes to one topic, fans every message out to the registered
// handlers, routes failed messages to a dead-letter topic and commits each
// message once its dispatch has returned.
//
// Delivery is at-least-once: a crash between handling and commit redelivers
// the message, so handlers must tolerate duplicates.
type Consumer struct {
	pools    Pools
	opts     options
	handlers handlerSet
	log      *zap.Logger

	mu          sync.Mutex
	binding     Binding
	initialized bool
	disposed    bool
	handle      ConsumerHandle
	cancel      context.CancelFunc
	loopDone    chan struct{}
	err         error

	done     chan struct{}
	doneOnce sync.Once
}

// NewConsumer creates a Consumer borrowing handles from pools.
func NewConsumer(pools Pools, fns ...Option) *Consumer {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Consumer{
		pools: pools,
		opts:  opts,
		log:   opts.logger,
		done:  make(chan struct{}),
	}
}

// OnMessageReceived registers a handler. It may be called at any time, also
// while the loop is running; the handler sees every message pulled after the
// call returns.
func (c *Consumer) OnMessageReceived(h Handler) {
	if h == nil {
		return
	}
	c.handlers.add(h)
}

// Use registers middleware applied around every handler. Middleware is
// applied in registration order (first registered wraps outermost).
func (c *Consumer) Use(m Middleware) {
	if m == nil {
		return
	}
	c.handlers.use(m)
}

// Initialize validates b, provisions the topic and its dead-letter topic,
// borrows a consumer handle and starts the consumption loop in the
// background. It returns once the loop is scheduled.
//
// Initialize must be called once; further calls return ErrAlreadyInitialized.
// If it fails, nothing is left running and it may be called again.
func (c *Consumer) Initialize(ctx context.Context, b Binding) error {
	if b.Connection == "" {
		b.Connection = DefaultConnection
	}
	if err := b.validate(); err != nil {
		return err
	}
	if !c.pools.valid() {
		return ErrNoPools
	}

	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.initialized:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.binding = b
	c.log = c.opts.logger.With(
		zap.String("topic", b.Topic),
		zap.String("dead_letter_topic", b.DeadLetterTopic),
		zap.String("group", b.GroupID),
		zap.String("connection", b.Connection),
	)
	c.mu.Unlock()

	handle, err := c.start(ctx, b)
	if err != nil {
		c.mu.Lock()
		c.initialized = false
		c.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loopDone := make(chan struct{})

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		cancel()
		_ = handle.Close()
		return ErrDisposed
	}
	c.handle = handle
	c.cancel = cancel
	c.loopDone = loopDone
	c.mu.Unlock()

	go c.supervise(loopCtx, handle, loopDone)

	c.log.Info("consumer started")
	return nil
}

func (c *Consumer) start(ctx context.Context, b Binding) (ConsumerHandle, error) {
	if err := Provision(ctx, c.pools.Admins, b.Connection, b.Topic, b.DeadLetterTopic, c.opts.topicDefaults); err != nil {
		return nil, err
	}

	handle, err := c.pools.Consumers.Consumer(ctx, b.GroupID, b.Connection)
	if err != nil {
		return nil, fmt.Errorf("dlqmux: borrow consumer %q on %q: %w", b.GroupID, b.Connection, err)
	}
	if err := handle.Subscribe(ctx, b.Topic); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("dlqmux: subscribe %q: %w", b.Topic, err)
	}
	return handle, nil
}

// Dispose stops the loop and releases the consumer handle. It waits up to the
// shutdown timeout for the in-flight message to settle, then closes the
// handle regardless. Dispose before a successful Initialize is a no-op.
func (c *Consumer) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	handle, cancel, loopDone := c.handle, c.cancel, c.loopDone
	c.mu.Unlock()

	if handle == nil {
		c.closeDone()
		return nil
	}

	cancel()
	timer := time.NewTimer(c.opts.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-loopDone:
	case <-timer.C:
		c.log.Warn("consumption loop did not stop in time, closing handle",
			zap.Duration("timeout", c.opts.shutdownTimeout))
	}

	if err := handle.Close(); err != nil {
		return fmt.Errorf("dlqmux: close consumer: %w", err)
	}
	c.log.Info("consumer disposed")
	return nil
}

// Done is closed when the consumption loop has exited, or when Dispose is
// called on a consumer that never started.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the loop, or nil if it stopped because of
// Dispose.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Binding returns the binding fixed by Initialize.
func (c *Consumer) Binding() Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding
}

func (c *Consumer) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// supervise runs the loop, restarting it after a panic raised outside the
// handlers, until the loop returns.
func (c *Consumer) supervise(ctx context.Context, h ConsumerHandle, loopDone chan struct{}) {
	defer c.closeDone()
	defer close(loopDone)

	for {
		recovered, err := c.runLoop(ctx, h)
		if !recovered {
			if err != nil {
				c.log.Error("consumption loop stopped", zap.Error(err))
			}
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		if !sleep(ctx, c.opts.errorBackoff) {
			return
		}
		c.log.Info("consumption loop restarted")
	}
}

func (c *Consumer) runLoop(ctx context.Context, h ConsumerHandle) (recovered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("dlqmux: consumption loop panic: %v", r)
			c.log.Error("consumption loop panicked", zap.Error(err), zap.ByteString("stack", buf[:n]))
			c.opts.notifier.Notify(ctx, err, SeverityError, c.tags(nil))
			recovered = true
		}
	}()
	return false, c.loop(ctx, h)
}

func (c *Consumer) loop(ctx context.Context, h ConsumerHandle) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := h.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrHandleClosed) {
				return err
			}
			c.report(ctx, err, SeverityWarning, "consume failed", nil)
			if !sleep(ctx, c.opts.errorBackoff) {
				return nil
			}
			continue
		}
		if res.EndOfPartition || res.Message == nil {
			continue
		}

		c.process(ctx, h, res.Message)
	}
}

// process dispatches msg, routes a failure and commits. The route and commit
// steps run on a context detached from ctx so that a message being settled
// during Dispose still reaches the dead-letter topic and gets committed.
//
// A handler that gave up because Dispose cancelled ctx has not failed: the
// message is neither routed nor committed, and the broker redelivers it.
func (c *Consumer) process(ctx context.Context, h ConsumerHandle, msg Message) {
	derr := dispatch(ctx, c.handlers.snapshot(), msg)
	if derr != nil && interrupted(ctx, derr) {
		c.log.Info("dispatch interrupted by shutdown, message left for redelivery",
			zap.ByteString("key", msg.Key()), zap.Error(derr))
		return
	}

	settle, cancel := c.settleContext(ctx)
	defer cancel()

	if derr != nil {
		c.route(settle, msg, derr)
	}
	if err := h.Commit(settle, msg); err != nil {
		c.report(settle, fmt.Errorf("dlqmux: commit: %w", err), SeverityError, "commit failed", msg)
	}
}

func interrupted(ctx context.Context, err error) bool {
	cerr := ctx.Err()
	return cerr != nil && errors.Is(err, cerr)
}

func (c *Consumer) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.opts.shutdownTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, c.opts.shutdownTimeout)
}

// route reports a failed dispatch and, when requeue is enabled, republishes
// the original message to the dead-letter topic.
func (c *Consumer) route(ctx context.Context, msg Message, cause error) {
	var fields []zap.Field
	var herr *HandlerError
	if errors.As(cause, &herr) && herr.Stack != nil {
		fields = append(fields, zap.ByteString("stack", herr.Stack))
	}
	c.report(ctx, cause, SeverityError, "handler failed", msg, fields...)

	if !c.opts.requeue {
		return
	}
	if err := c.requeue(ctx, msg); err != nil {
		c.report(ctx, err, SeverityError, "dead-letter requeue failed", msg)
		return
	}
	c.log.Info("message requeued", zap.ByteString("key", msg.Key()))
}

func (c *Consumer) requeue(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= c.opts.requeueAttempts; attempt++ {
		if attempt > 1 && !sleep(ctx, c.opts.retryBackoff) {
			break
		}
		if err = c.produce(ctx, msg); err == nil {
			return nil
		}
		c.log.Warn("dead-letter publish attempt failed",
			zap.Int("attempt", attempt), zap.ByteString("key", msg.Key()), zap.Error(err))
	}
	return fmt.Errorf("dlqmux: requeue to %q: %w", c.binding.DeadLetterTopic, err)
}

func (c *Consumer) produce(ctx context.Context, msg Message) error {
	p, err := c.pools.Producers.Producer(ctx, c.binding.Connection)
	if err != nil {
		return fmt.Errorf("dlqmux: borrow producer on %q: %w", c.binding.Connection, err)
	}
	return p.Produce(ctx, c.binding.DeadLetterTopic, msg)
}

func (c *Consumer) report(ctx context.Context, err error, sev Severity, what string, msg Message, fields ...zap.Field) {
	if msg != nil {
		fields = append(fields, zap.ByteString("key", msg.Key()))
	}
	fields = append(fields, zap.Error(err))
	switch sev {
	case SeverityWarning:
		c.log.Warn(what, fields...)
	default:
		c.log.Error(what, fields...)
	}
	c.opts.notifier.Notify(ctx, err, sev, c.tags(msg))
}

func (c *Consumer) tags(msg Message) map[string]string {
	b := c.binding
	t := map[string]string{
		"topic":             b.Topic,
		"dead_letter_topic": b.DeadLetterTopic,
		"group":             b.GroupID,
		"connection":        b.Connection,
	}
	if msg != nil {
		t["key"] = string(msg.Key())
		t["value_size"] = strconv.Itoa(len(msg.Value()))
	}
	return t
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
