package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Completion is a single-assignment result slot. The first Resolve wins;
// later calls are counted and dropped.
type Completion[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
	extra atomic.Int64
}

func NewCompletion[T any]() *Completion[T] {
	return &Completion[T]{done: make(chan struct{})}
}

// Resolve reports whether this call set the result.
func (c *Completion[T]) Resolve(value T, err error) bool {
	resolved := false
	c.once.Do(func() {
		c.value = value
		c.err = err
		resolved = true
		close(c.done)
	})
	if !resolved {
		c.extra.Add(1)
	}
	return resolved
}

func (c *Completion[T]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the completion resolves or ctx ends.
func (c *Completion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Extra returns how many Resolve calls arrived after the first.
func (c *Completion[T]) Extra() int64 {
	return c.extra.Load()
}

func (c *Completion[T]) result() (T, error, bool) {
	select {
	case <-c.done:
		return c.value, c.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// callHook runs fn bounded by timeout and ctx. Errors returned by fn are
// passed through as is and a panic becomes a hook error. An unfinished call
// is a hook timeout when the deadline passed and a cancellation otherwise.
func callHook[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	hookCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		hookCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	completion := NewCompletion[T]()
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				completion.Resolve(zero, HookError(name, fmt.Errorf("panic: %v\n%s", recovered, debug.Stack())))
			}
		}()
		completion.Resolve(fn(hookCtx))
	}()

	if _, err := completion.Wait(hookCtx); err != nil {
		if value, hookErr, ok := completion.result(); ok {
			return value, hookErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, HookTimeoutError(name, err)
		}
		return zero, HookCanceledError(name, err)
	}
	value, err, _ := completion.result()
	return value, err
}
