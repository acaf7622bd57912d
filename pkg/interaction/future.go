package interaction

import "context"

// Future is the pending result of an asynchronous call.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine and returns its Future.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. Cancelling ctx
// stops the wait, not the call.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// CheckAliveAsync runs CheckAlive on its own goroutine.
func (c *Client) CheckAliveAsync(ctx context.Context) *Future[uint64] {
	return Go(func() (uint64, error) { return c.CheckAlive(ctx) })
}

// GetAsync runs Get on its own goroutine.
func (c *Client) GetAsync(ctx context.Context, objectID string, index int) *Future[any] {
	return Go(func() (any, error) { return c.Get(ctx, objectID, index) })
}

// SetAsync runs Set on its own goroutine.
func (c *Client) SetAsync(ctx context.Context, objectID string, index int, value any) *Future[struct{}] {
	return Go(func() (struct{}, error) { return struct{}{}, c.Set(ctx, objectID, index, value) })
}

// ExecuteAsync runs Execute on its own goroutine.
func (c *Client) ExecuteAsync(ctx context.Context, objectID string, index int, args ...any) *Future[any] {
	return Go(func() (any, error) { return c.Execute(ctx, objectID, index, args...) })
}

// EvalAsync runs Eval on its own goroutine.
func (c *Client) EvalAsync(ctx context.Context, expr string) *Future[any] {
	return Go(func() (any, error) { return c.Eval(ctx, expr) })
}

// CommandAsync runs Command on its own goroutine.
func (c *Client) CommandAsync(ctx context.Context, payload string, expectReply bool) *Future[string] {
	return Go(func() (string, error) { return c.Command(ctx, payload, expectReply) })
}
