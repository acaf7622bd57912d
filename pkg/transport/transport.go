package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/metrics"
	"github.com/rodis120/grenton-go/pkg/wire"
)

// Transport defaults.
const (
	// DefaultTimeout bounds the wait for a reply.
	DefaultTimeout = time.Second

	// DefaultMaxConnections bounds the number of sockets in flight.
	DefaultMaxConnections = 4

	// DefaultReceiveBufferSize is the size of the reply buffer.
	DefaultReceiveBufferSize = 4096
)

// Transport errors.
var (
	// ErrTimeout is returned when no reply arrives within the timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrTransport is returned on socket-level failures.
	ErrTransport = errors.New("transport failure")

	// ErrNoCipher is returned by New when Config.Cipher is nil.
	ErrNoCipher = errors.New("cipher is required")
)

// Config configures a Transport.
type Config struct {
	// Address is the CLU address (host:port).
	Address string

	// Cipher encrypts requests and decrypts replies.
	Cipher *cipher.Cipher

	// Timeout bounds the wait for a reply (default: 1s).
	Timeout time.Duration

	// MaxConnections bounds concurrent sockets (default: 4).
	MaxConnections int

	// ReceiveBufferSize is the reply buffer size (default: 4096).
	ReceiveBufferSize int

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives request, reply and datagram events.
	ProtocolLogger log.Logger

	// SessionID is stamped on protocol log events.
	SessionID string

	// Metrics records request outcomes. May be nil.
	Metrics *metrics.Metrics
}

// Result is the outcome of an asynchronous send.
type Result struct {
	Reply string
	Err   error
}

// Transport sends encrypted frames to one CLU.
// It is safe for concurrent use.
type Transport struct {
	config   Config
	sem      *semaphore.Weighted
	inFlight atomic.Int32
	logger   *slog.Logger
	protoLog log.Logger
}

// New creates a Transport. Zero config fields take their defaults.
func New(config Config) (*Transport, error) {
	if config.Cipher == nil {
		return nil, ErrNoCipher
	}
	if _, _, err := net.SplitHostPort(config.Address); err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", config.Address, err)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultMaxConnections
	}
	if config.ReceiveBufferSize <= 0 {
		config.ReceiveBufferSize = DefaultReceiveBufferSize
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		config:   config,
		sem:      semaphore.NewWeighted(int64(config.MaxConnections)),
		logger:   logger.With("component", "transport", "clu", config.Address),
		protoLog: log.OrNoop(config.ProtocolLogger),
	}, nil
}

// Address returns the CLU address.
func (t *Transport) Address() string {
	return t.config.Address
}

// InFlight returns the number of requests currently holding a socket.
func (t *Transport) InFlight() int {
	return int(t.inFlight.Load())
}

// Send encrypts frame and sends it to the CLU. When expectReply is set it
// waits for one datagram and returns the decrypted reply frame; otherwise
// it returns "" as soon as the datagram is written.
//
// Send blocks while MaxConnections requests are in flight. Cancelling ctx
// aborts both the wait for a slot and the wait for a reply.
func (t *Transport) Send(ctx context.Context, frame string, expectReply bool) (string, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer t.sem.Release(1)

	t.inFlight.Add(1)
	defer t.inFlight.Add(-1)
	t.config.Metrics.RequestStarted()

	start := time.Now()
	reply, err := t.roundTrip(ctx, frame, expectReply)
	t.config.Metrics.RequestFinished(outcome(err), time.Since(start), expectReply && err == nil)

	if err != nil {
		t.logger.Debug("request failed", "request_id", wire.RequestIDOf(frame), "error", err)
		t.logError(err, frame)
	}
	return reply, err
}

// SendAsync runs Send on its own goroutine. The returned channel receives
// exactly one Result.
func (t *Transport) SendAsync(ctx context.Context, frame string, expectReply bool) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		reply, err := t.Send(ctx, frame, expectReply)
		ch <- Result{Reply: reply, Err: err}
	}()
	return ch
}

func (t *Transport) roundTrip(ctx context.Context, frame string, expectReply bool) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", t.config.Address)
	if err != nil {
		return "", fmt.Errorf("%w: dial: %w", ErrTransport, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.config.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}

	// Unblock the read as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	requestID := wire.RequestIDOf(frame)
	data := t.config.Cipher.Encrypt([]byte(frame))
	t.logMessage(log.DirectionOut, wire.KindRequest, requestID, wire.ExtractPayload(frame), nil)
	t.logDatagram(log.DirectionOut, data)

	start := time.Now()
	if _, err := conn.Write(data); err != nil {
		return "", t.ioError(ctx, "write", err)
	}
	if !expectReply {
		return "", nil
	}

	buf := make([]byte, t.config.ReceiveBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return "", t.ioError(ctx, "read", err)
	}
	latency := time.Since(start)
	t.logDatagram(log.DirectionIn, buf[:n])

	plain, err := t.config.Cipher.Decrypt(buf[:n])
	if err != nil {
		return "", fmt.Errorf("%w: reply: %w", wire.ErrDecode, err)
	}

	reply := string(plain)
	t.logMessage(log.DirectionIn, wire.KindReply, wire.RequestIDOf(reply), wire.ExtractPayload(reply), &latency)
	return reply, nil
}

func (t *Transport) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, t.config.Timeout)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrTimeout):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}

func (t *Transport) logMessage(dir log.Direction, kind wire.Kind, requestID, payload string, latency *time.Duration) {
	t.protoLog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  t.config.SessionID,
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: t.config.Address,
		Message: &log.MessageEvent{
			Kind:      kind,
			RequestID: requestID,
			Payload:   payload,
			Latency:   latency,
		},
	})
}

func (t *Transport) logDatagram(dir log.Direction, data []byte) {
	t.protoLog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  t.config.SessionID,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: t.config.Address,
		Datagram:   log.NewDatagramEvent(data),
	})
}

func (t *Transport) logError(err error, frame string) {
	layer := log.LayerTransport
	if errors.Is(err, wire.ErrDecode) {
		layer = log.LayerWire
	}
	t.protoLog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  t.config.SessionID,
		Direction:  log.DirectionIn,
		Layer:      layer,
		Category:   log.CategoryError,
		RemoteAddr: t.config.Address,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: "request " + wire.RequestIDOf(frame),
		},
	})
}
