package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/miladsoleymani/dlqmux/core"
)

// ErrPoolClosed is returned by a Pool after Close.
var ErrPoolClosed = errors.New("dlqmux: pool is closed")

// Pool lends handles for a registry of named connections. It implements
// core.ConsumerPool, core.ProducerPool, core.AdminPool and core.TopicCustomizer.
//
// One Driver is created lazily per connection and shared by every borrower.
// Producers are shared per connection and stay owned by the pool; every
// consumer borrow gets its own handle, which the borrower closes.
type Pool struct {
	conns map[string]Config

	mu      sync.Mutex
	drivers map[string]*slot
	closed  bool
}

// slot holds a connection's driver. ready is closed once the dial finished;
// d and err are set under Pool.mu before that.
type slot struct {
	ready chan struct{}
	d     Driver
	err   error
}

var (
	_ core.ConsumerPool    = (*Pool)(nil)
	_ core.ProducerPool    = (*Pool)(nil)
	_ core.AdminPool       = (*Pool)(nil)
	_ core.TopicCustomizer = (*Pool)(nil)
)

// NewPool creates a Pool over the given connections, keyed by name.
func NewPool(conns map[string]Config) *Pool {
	cp := make(map[string]Config, len(conns))
	for name, cfg := range conns {
		cp[name] = cfg
	}
	return &Pool{conns: cp, drivers: make(map[string]*slot)}
}

// driver returns the connection's driver, dialing it on first use. The dial
// runs outside p.mu so a slow connection does not block the others; borrowers
// of the same connection wait for the one dial in flight.
func (p *Pool) driver(connection string) (Driver, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if s, ok := p.drivers[connection]; ok {
		p.mu.Unlock()
		<-s.ready
		return s.d, s.err
	}
	cfg, ok := p.conns[connection]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownConnection, connection)
	}
	s := &slot{ready: make(chan struct{})}
	p.drivers[connection] = s
	p.mu.Unlock()

	d, err := Create(cfg.Driver, cfg)
	if err != nil {
		err = fmt.Errorf("dlqmux: connect %q: %w", connection, err)
	}

	p.mu.Lock()
	closed := p.closed
	switch {
	case err != nil:
		// forget the failure so the next borrow dials again
		delete(p.drivers, connection)
	case closed:
		err = ErrPoolClosed
	default:
		s.d = d
	}
	s.err = err
	p.mu.Unlock()
	close(s.ready)

	if closed && d != nil {
		_ = d.Close()
	}
	return s.d, err
}

// Consumer creates a consumer handle for groupID on connection.
func (p *Pool) Consumer(ctx context.Context, groupID, connection string) (core.ConsumerHandle, error) {
	d, err := p.driver(connection)
	if err != nil {
		return nil, err
	}
	return d.NewConsumer(ctx, groupID)
}

// Producer returns the shared producer of connection.
func (p *Pool) Producer(_ context.Context, connection string) (core.ProducerHandle, error) {
	d, err := p.driver(connection)
	if err != nil {
		return nil, err
	}
	return d.Producer(), nil
}

// Admin opens an administrative handle on connection.
func (p *Pool) Admin(ctx context.Context, connection string) (core.AdminHandle, error) {
	d, err := p.driver(connection)
	if err != nil {
		return nil, err
	}
	return d.NewAdmin(ctx)
}

// CustomizeTopic applies the connection's ConfigureTopic hook.
func (p *Pool) CustomizeTopic(connection string, spec *core.TopicSpec) {
	if cfg, ok := p.conns[connection]; ok && cfg.ConfigureTopic != nil {
		cfg.ConfigureTopic(spec)
	}
}

// Close closes every driver created by the pool. Consumer handles already
// lent out should be closed by their borrowers first.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for name, s := range p.drivers {
		// a dial still in flight closes its own driver when it finishes
		if s.d == nil {
			continue
		}
		if err := s.d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dlqmux: close %q: %w", name, err))
		}
	}
	p.drivers = nil
	return errors.Join(errs...)
}
