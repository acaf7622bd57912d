package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/metrics"
	"github.com/rodis120/grenton-go/pkg/wire"
)

// Engine errors.
var (
	ErrNotRegistered  = errors.New("feature not registered")
	ErrEngineClosed   = errors.New("subscription engine closed")
	ErrNotStarted     = errors.New("subscription engine not started")
	ErrAlreadyStarted = errors.New("subscription engine already started")
	ErrNilHandler     = errors.New("handler is nil")
)

// Engine defaults.
const (
	DefaultPageSize          = 16
	DefaultRefreshInterval   = 60 * time.Second
	DefaultPageRefreshDelay  = 100 * time.Millisecond
	DefaultReceiveBufferSize = 4096
	DefaultDestroyTimeout    = time.Second
)

// FeatureEntry identifies one subscribable feature of an object.
type FeatureEntry struct {
	ObjectID string
	Index    int
}

// String returns "object[index]".
func (f FeatureEntry) String() string {
	return fmt.Sprintf("%s[%d]", f.ObjectID, f.Index)
}

func (f FeatureEntry) ref() wire.FeatureRef {
	return wire.FeatureRef{ObjectID: f.ObjectID, Index: f.Index}
}

// UpdateContext is passed to a Handler.
type UpdateContext struct {
	// Entry is the feature whose value is reported.
	Entry FeatureEntry

	// Value is the reported value (float64, string, bool, nil or []any).
	Value any

	// ClientID is the page that carried the value.
	ClientID int

	// Timestamp is when the datagram carrying the value was received.
	Timestamp time.Time

	// Baseline is set when the value establishes a page baseline rather
	// than reporting a change.
	Baseline bool
}

// Handler receives value updates for one feature.
type Handler func(UpdateContext)

// Caller performs remote calls on the CLU.
// Implemented by interaction.Client.
type Caller interface {
	// Command sends payload and, when expectReply is set, returns the reply payload.
	Command(ctx context.Context, payload string, expectReply bool) (string, error)
}

// Config configures an Engine.
type Config struct {
	// LocalIP is the address the CLU pushes updates to.
	LocalIP string

	// ListenPort is the UDP port to receive pushes on (0 = ephemeral).
	ListenPort int

	// PageSize is the maximum number of features per page (default: 16).
	PageSize int

	// RefreshInterval is the period between page refreshes (default: 60s).
	RefreshInterval time.Duration

	// PageRefreshDelay is the pause between pages during a refresh (default: 100ms).
	PageRefreshDelay time.Duration

	// ReceiveBufferSize is the push datagram buffer size (default: 4096).
	ReceiveBufferSize int

	// Cipher decrypts pushed datagrams.
	Cipher *cipher.Cipher

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives push datagram and page state events.
	ProtocolLogger log.Logger

	// SessionID is stamped on protocol log events.
	SessionID string

	// Metrics records push outcomes and page counts. May be nil.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:          DefaultPageSize,
		RefreshInterval:   DefaultRefreshInterval,
		PageRefreshDelay:  DefaultPageRefreshDelay,
		ReceiveBufferSize: DefaultReceiveBufferSize,
	}
}

// clientPage is one device-side registration.
type clientPage struct {
	id               int
	features         []FeatureEntry
	states           []any
	modified         bool
	lastRegisteredAt time.Time
}

func (p *clientPage) refs() []wire.FeatureRef {
	refs := make([]wire.FeatureRef, len(p.features))
	for i, f := range p.features {
		refs[i] = f.ref()
	}
	return refs
}

// PageInfo is a snapshot of one page.
type PageInfo struct {
	ClientID         int
	Entries          []FeatureEntry
	States           []any
	Modified         bool
	LastRegisteredAt time.Time
}

// Engine manages subscriptions for one CLU.
type Engine struct {
	config   Config
	caller   Caller
	logger   *slog.Logger
	protoLog log.Logger
	now      func() time.Time

	// mu is the registration lock.
	mu       sync.Mutex
	pages    map[int]*clientPage
	index    map[FeatureEntry]*clientPage
	handlers map[FeatureEntry]Handler
	free     map[int]*clientPage

	conn      *net.UDPConn
	localPort int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
}

// NewEngine creates an engine that registers pages through caller.
// Zero config fields take their defaults.
func NewEngine(config Config, caller Caller) (*Engine, error) {
	if caller == nil {
		return nil, errors.New("caller is required")
	}
	if config.Cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if config.LocalIP == "" {
		return nil, errors.New("local IP is required")
	}

	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.PageRefreshDelay < 0 {
		config.PageRefreshDelay = 0
	}
	if config.ReceiveBufferSize <= 0 {
		config.ReceiveBufferSize = defaults.ReceiveBufferSize
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:   config,
		caller:   caller,
		logger:   logger.With("component", "subscription"),
		protoLog: log.OrNoop(config.ProtocolLogger),
		now:      time.Now,
		pages:    make(map[int]*clientPage),
		index:    make(map[FeatureEntry]*clientPage),
		handlers: make(map[FeatureEntry]Handler),
		free:     make(map[int]*clientPage),
	}, nil
}

// Start binds the push socket and starts the receiver and refresh loops.
// The loops run until Close is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: e.config.ListenPort})
	if err != nil {
		e.started.Store(false)
		return fmt.Errorf("listen for pushes: %w", err)
	}

	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		conn.Close()
		return ErrEngineClosed
	}
	e.conn = conn
	e.localPort = conn.LocalAddr().(*net.UDPAddr).Port
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.Info("subscription engine started", "local_ip", e.config.LocalIP, "port", e.localPort)

	e.wg.Add(2)
	go e.receiveLoop()
	go e.refreshLoop()
	return nil
}

// LocalPort returns the bound push port (0 before Start).
func (e *Engine) LocalPort() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localPort
}

// Close stops both loops, sends SYSTEM:clientDestroy for every live page
// (best effort) and closes the push socket. Handlers already dispatched keep
// running. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	conn, cancel := e.conn, e.cancel
	e.mu.Unlock()
	if conn == nil {
		return nil
	}

	cancel()
	err := conn.Close()
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.sortedPageIDsLocked() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultDestroyTimeout)
		payload := wire.ClientDestroy(e.config.LocalIP, e.localPort, id)
		if _, derr := e.caller.Command(ctx, payload, false); derr != nil {
			e.logger.Warn("client destroy failed", "client_id", id, "error", derr)
		}
		cancel()
		e.logPageState(e.pages[id], log.PageActive, log.PageDestroyed, "close")
	}

	clear(e.pages)
	clear(e.index)
	clear(e.handlers)
	clear(e.free)
	e.config.Metrics.SetPages(0)

	e.logger.Info("subscription engine stopped")
	return err
}

// Pages returns a snapshot of all live pages ordered by client id.
func (e *Engine) Pages() []PageInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]PageInfo, 0, len(e.pages))
	for _, id := range e.sortedPageIDsLocked() {
		p := e.pages[id]
		infos = append(infos, PageInfo{
			ClientID:         p.id,
			Entries:          slices.Clone(p.features),
			States:           slices.Clone(p.states),
			Modified:         p.modified,
			LastRegisteredAt: p.lastRegisteredAt,
		})
	}
	return infos
}

// Len returns the number of registered features.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

func (e *Engine) sortedPageIDsLocked() []int {
	ids := make([]int, 0, len(e.pages))
	for id := range e.pages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) logPageState(p *clientPage, oldState, newState, reason string) {
	e.protoLog.Log(log.Event{
		Timestamp: e.now(),
		SessionID: e.config.SessionID,
		Direction: log.DirectionOut,
		Layer:     log.LayerSubscription,
		Category:  log.CategoryState,
		ClientID:  p.id,
		PageState: &log.PageStateEvent{
			Entries:  len(p.features),
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (e *Engine) logError(layer log.Layer, clientID int, op string, err error) {
	e.protoLog.Log(log.Event{
		Timestamp: e.now(),
		SessionID: e.config.SessionID,
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		ClientID:  clientID,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}
