package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_FailFast(t *testing.T) {
	var calls []int
	var s handlerSet
	s.add(func(ctx context.Context, m Message) error { calls = append(calls, 0); return nil })
	s.add(func(ctx context.Context, m Message) error { calls = append(calls, 1); return errors.New("nope") })
	s.add(func(ctx context.Context, m Message) error { calls = append(calls, 2); return nil })

	err := dispatch(context.Background(), s.snapshot(), NewMessage("t", []byte("k"), nil, nil))

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 1, herr.Index)
	assert.Nil(t, herr.Stack)
	assert.EqualError(t, herr.Err, "nope")
	assert.Equal(t, []int{0, 1}, calls)
}

func TestDispatch_NoHandlers(t *testing.T) {
	var s handlerSet
	assert.NoError(t, dispatch(context.Background(), s.snapshot(), NewMessage("t", nil, nil, nil)))
}

func TestDispatch_Panic(t *testing.T) {
	var s handlerSet
	s.add(func(ctx context.Context, m Message) error { panic(errors.New("kaput")) })

	err := dispatch(context.Background(), s.snapshot(), NewMessage("t", nil, nil, nil))

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.NotEmpty(t, herr.Stack)
	assert.Contains(t, herr.Error(), "panic recovered: kaput")
}

func TestHandlerSet_SnapshotIsStable(t *testing.T) {
	var s handlerSet
	noop := func(ctx context.Context, m Message) error { return nil }
	s.add(noop)
	snap := s.snapshot()
	s.add(noop)
	s.use(func(h Handler) Handler { return h })

	assert.Len(t, snap.handlers, 1)
	assert.Empty(t, snap.middlewares)
	assert.Len(t, s.snapshot().handlers, 2)
	assert.Len(t, s.snapshot().middlewares, 1)
}

func TestHandlerSet_ConcurrentAdd(t *testing.T) {
	var s handlerSet
	noop := func(ctx context.Context, m Message) error { return nil }

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.add(noop)
		}()
		go func() {
			defer wg.Done()
			_ = dispatch(context.Background(), s.snapshot(), NewMessage("t", nil, nil, nil))
		}()
	}
	wg.Wait()

	assert.Len(t, s.snapshot().handlers, 50)
}
