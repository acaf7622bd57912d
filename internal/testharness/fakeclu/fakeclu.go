// Package fakeclu provides a simulated Grenton CLU for tests.
//
// The simulator listens on a loopback UDP port, decrypts request frames with
// the shared cipher, evaluates the small subset of Lua the client emits
// (checkAlive, get, set, execute, typed load() wrappers, clientRegister,
// clientDestroy, collectgarbage) against an in-memory feature table, and
// pushes client reports to registered pages when values change.
package fakeclu

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/wire"
)

// DefaultSerial is the serial number answered to checkAlive().
const DefaultSerial = 0x1a2b3c4d

// Request is a decrypted request received by the simulator.
type Request struct {
	// From is the sender's socket address.
	From *net.UDPAddr

	// Frame is the full decrypted frame.
	Frame string

	// RequestID is the correlation id of the frame.
	RequestID string

	// Payload is the text after the request id.
	Payload string
}

// Handlers holds callbacks overriding the built-in evaluator.
type Handlers struct {
	// OnRequest, when set, answers every request. Returning ok=false sends
	// no reply, which lets tests provoke timeouts.
	OnRequest func(req Request) (reply string, ok bool)
}

// CLU is a simulated device. Exported fields must be set before Start.
type CLU struct {
	// Serial is returned by checkAlive().
	Serial uint32

	// Delay is applied before answering each request.
	Delay time.Duration

	// Handlers are callbacks for request handling.
	Handlers Handlers

	cipher *cipher.Cipher
	conn   *net.UDPConn

	mu            sync.Mutex
	values        map[wire.FeatureRef]any
	pages         map[pageKey][]wire.FeatureRef
	received      []Request
	destroyed     []int
	gcRuns        int
	undecryptable int
	active        int
	peak          int

	wg        sync.WaitGroup
	serveDone chan struct{}
	closeOnce sync.Once
}

type pageKey struct {
	addr     string
	clientID int
}

// New creates a simulator bound to an ephemeral loopback port.
// Call Start to begin serving.
func New(c *cipher.Cipher) (*CLU, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	return &CLU{
		Serial:    DefaultSerial,
		cipher:    c,
		conn:      conn,
		values:    make(map[wire.FeatureRef]any),
		pages:     make(map[pageKey][]wire.FeatureRef),
		serveDone: make(chan struct{}),
	}, nil
}

// Start creates, configures and starts a simulator that is closed when the
// test ends.
func Start(tb testing.TB, c *cipher.Cipher, configure ...func(*CLU)) *CLU {
	tb.Helper()
	clu, err := New(c)
	if err != nil {
		tb.Fatalf("fakeclu: %v", err)
	}
	for _, fn := range configure {
		fn(clu)
	}
	clu.Start()
	tb.Cleanup(func() { clu.Close() })
	return clu
}

// Start begins serving requests in the background.
func (c *CLU) Start() {
	go c.serve()
}

// Addr returns the simulator's address (host:port).
func (c *CLU) Addr() string {
	return c.conn.LocalAddr().String()
}

// Close stops the simulator and waits for in-progress requests.
func (c *CLU) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		<-c.serveDone
		c.wg.Wait()
	})
	return err
}

// SetValue stores the value of a feature and pushes the page vector to every
// registered page that lists it.
func (c *CLU) SetValue(ref wire.FeatureRef, v any) {
	c.mu.Lock()
	c.values[ref] = v
	pushes := c.affectedPagesLocked(ref)
	c.mu.Unlock()

	for _, p := range pushes {
		c.Push(p.key.addr, p.key.clientID, p.values)
	}
}

// Value returns the stored value of a feature.
func (c *CLU) Value(ref wire.FeatureRef) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[ref]
}

// Push sends a client report for clientID to addr.
func (c *CLU) Push(addr string, clientID int, values []any) error {
	frame := fmt.Sprintf("req:%s:%s:clientReport:%d:%s",
		c.host(), wire.NewRequestID(), clientID, formatList(values))
	return c.SendRaw(addr, c.cipher.Encrypt([]byte(frame)))
}

// SendRaw sends data to addr without encryption.
func (c *CLU) SendRaw(addr string, data []byte) error {
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = c.conn.WriteToUDP(data, to)
	return err
}

// Requests returns a copy of all decrypted requests received so far.
func (c *CLU) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.received...)
}

// Page returns the features registered under clientID by any client.
func (c *CLU) Page(clientID int) ([]wire.FeatureRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, refs := range c.pages {
		if k.clientID == clientID {
			return append([]wire.FeatureRef(nil), refs...), true
		}
	}
	return nil, false
}

// PageCount returns the number of registered pages.
func (c *CLU) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Destroyed returns the client ids passed to clientDestroy.
func (c *CLU) Destroyed() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.destroyed...)
}

// GCRuns returns how many collectgarbage calls were received.
func (c *CLU) GCRuns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gcRuns
}

// Undecryptable returns how many datagrams failed to decrypt.
func (c *CLU) Undecryptable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undecryptable
}

// PeakConcurrent returns the highest number of requests handled at once.
func (c *CLU) PeakConcurrent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// WaitFor polls cond until it holds or ctx is done.
func (c *CLU) WaitFor(ctx context.Context, cond func(*CLU) bool) bool {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond(c) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (c *CLU) host() string {
	return c.conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func (c *CLU) serve() {
	defer close(c.serveDone)
	buf := make([]byte, 4096)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handle(data, from)
		}()
	}
}

func (c *CLU) handle(data []byte, from *net.UDPAddr) {
	plain, err := c.cipher.Decrypt(data)
	if err != nil {
		c.mu.Lock()
		c.undecryptable++
		c.mu.Unlock()
		return
	}

	frame := string(plain)
	req := Request{
		From:      from,
		Frame:     frame,
		RequestID: wire.RequestIDOf(frame),
		Payload:   wire.ExtractPayload(frame),
	}

	c.mu.Lock()
	c.received = append(c.received, req)
	c.active++
	c.peak = max(c.peak, c.active)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}

	var reply string
	var ok bool
	if c.Handlers.OnRequest != nil {
		reply, ok = c.Handlers.OnRequest(req)
	} else {
		reply, ok = c.evaluate(req.Payload)
	}
	if !ok {
		return
	}

	out := "resp:" + c.host() + ":" + req.RequestID + ":" + reply
	c.conn.WriteToUDP(c.cipher.Encrypt([]byte(out)), from)
}
