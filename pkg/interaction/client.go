package interaction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rodis120/grenton-go/pkg/wire"
)

// Client errors.
var (
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Sender sends request frames to a CLU.
// Implemented by transport.Transport.
type Sender interface {
	// Send sends frame and, when expectReply is set, returns the reply frame.
	Send(ctx context.Context, frame string, expectReply bool) (string, error)
}

// Client provides a high-level API for making CLU requests.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	sender  Sender
	localIP string
}

// NewClient creates a client that frames requests with localIP.
func NewClient(sender Sender, localIP string) *Client {
	return &Client{
		sender:  sender,
		localIP: localIP,
	}
}

// LocalIP returns the address used in request frames.
func (c *Client) LocalIP() string {
	return c.localIP
}

// Command sends payload verbatim and, when expectReply is set, returns the
// reply payload.
func (c *Client) Command(ctx context.Context, payload string, expectReply bool) (string, error) {
	frame := wire.EncodeRequest(c.localIP, wire.NewRequestID(), payload)
	reply, err := c.sender.Send(ctx, frame, expectReply)
	if err != nil {
		return "", err
	}
	if !expectReply {
		return "", nil
	}
	return wire.ExtractPayload(reply), nil
}

// EvalRaw evaluates expr and returns the untyped reply payload.
func (c *Client) EvalRaw(ctx context.Context, expr string) (string, error) {
	return c.Command(ctx, expr, true)
}

// Eval evaluates expr and decodes the typed reply.
func (c *Client) Eval(ctx context.Context, expr string) (any, error) {
	reply, err := c.Command(ctx, wire.Typed(expr), true)
	if err != nil {
		return nil, err
	}
	return wire.DecodeTyped(reply)
}

// CheckAlive probes the CLU and returns its serial number.
func (c *Client) CheckAlive(ctx context.Context) (uint64, error) {
	reply, err := c.Command(ctx, wire.CheckAlive(), true)
	if err != nil {
		return 0, err
	}
	serial, err := strconv.ParseUint(strings.TrimSpace(reply), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: serial %q", ErrUnexpectedReply, reply)
	}
	return serial, nil
}

// Get reads feature index of objectID.
func (c *Client) Get(ctx context.Context, objectID string, index int) (any, error) {
	return c.Eval(ctx, wire.Get(objectID, index))
}

// Set writes value to feature index of objectID.
func (c *Client) Set(ctx context.Context, objectID string, index int, value any) error {
	_, err := c.Eval(ctx, wire.Set(objectID, index, value))
	return err
}

// Execute invokes method index of objectID and returns its result.
func (c *Client) Execute(ctx context.Context, objectID string, index int, args ...any) (any, error) {
	return c.Eval(ctx, wire.Execute(objectID, index, args...))
}

// CollectGarbage asks the CLU to run a full Lua garbage collection.
// The CLU does not answer it.
func (c *Client) CollectGarbage(ctx context.Context) error {
	_, err := c.Command(ctx, wire.CollectGarbage(), false)
	return err
}
