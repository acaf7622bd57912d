package transport

import "context"

// Requester sends request frames and returns reply frames.
// Implemented by Transport.
type Requester interface {
	// Send sends frame and, when expectReply is set, returns the reply frame.
	Send(ctx context.Context, frame string, expectReply bool) (string, error)

	// SendAsync runs Send without blocking the caller.
	SendAsync(ctx context.Context, frame string, expectReply bool) <-chan Result
}

// Compile-time interface satisfaction check.
var _ Requester = (*Transport)(nil)
