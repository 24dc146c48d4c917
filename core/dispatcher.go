package core

import (
	"context"
	"fmt"
	"runtime"
)

// HandlerError reports which handler failed a dispatch.
type HandlerError struct {
	Index int
	Err   error
	Stack []byte // set when the handler panicked
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("dlqmux: handler %d: %v", e.Index, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// dispatch invokes every handler of c in registration order, stopping at the
// first failure.
func dispatch(ctx context.Context, c *chain, msg Message) error {
	for i, h := range c.handlers {
		if err := invoke(ctx, applyMiddleware(h, c.middlewares), msg); err != nil {
			err.Index = i
			return err
		}
	}
	return nil
}

func invoke(ctx context.Context, h Handler, msg Message) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			herr = &HandlerError{Err: fmt.Errorf("panic recovered: %v", r), Stack: buf[:n]}
		}
	}()
	if err := h(ctx, msg); err != nil {
		return &HandlerError{Err: err}
	}
	return nil
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
