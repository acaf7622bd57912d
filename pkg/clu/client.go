package clu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/interaction"
	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/metrics"
	"github.com/rodis120/grenton-go/pkg/subscription"
	"github.com/rodis120/grenton-go/pkg/transport"
)

// Client is a connection to one CLU.
type Client struct {
	address   string
	localIP   string
	sessionID string
	logger    *slog.Logger

	transport *transport.Transport
	rpc       *interaction.Client
	engine    *subscription.Engine
	metrics   *metrics.Metrics
	fileLog   *log.FileLogger
}

// Dial builds a Client and starts its subscription engine. ctx bounds the
// engine's lifetime in addition to Close.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ci, err := cipher.NewFromBase64(cfg.Key, cfg.IV)
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	localIP := cfg.ClientIP
	if localIP == "" {
		localIP, err = DetectLocalIP(address)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		address:   address,
		localIP:   localIP,
		sessionID: uuid.NewString(),
		logger:    cfg.Logger.With("device", address),
	}

	var protoLoggers []log.Logger
	if cfg.ProtocolLogger != nil {
		protoLoggers = append(protoLoggers, cfg.ProtocolLogger)
	}
	if cfg.ProtocolLog != "" {
		c.fileLog, err = log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		protoLoggers = append(protoLoggers, c.fileLog)
	}
	var protoLog log.Logger
	switch len(protoLoggers) {
	case 0:
	case 1:
		protoLog = protoLoggers[0]
	default:
		protoLog = log.NewMultiLogger(protoLoggers...)
	}

	if cfg.Registerer != nil {
		c.metrics = metrics.New(prometheus.WrapRegistererWith(prometheus.Labels{"device": address}, cfg.Registerer))
	}

	c.transport, err = transport.New(transport.Config{
		Address:        address,
		Cipher:         ci,
		Timeout:        cfg.Timeout,
		MaxConnections: cfg.MaxConnections,
		Logger:         c.logger,
		ProtocolLogger: protoLog,
		SessionID:      c.sessionID,
		Metrics:        c.metrics,
	})
	if err != nil {
		c.closeFileLog()
		return nil, err
	}
	c.rpc = interaction.NewClient(c.transport, localIP)

	c.engine, err = subscription.NewEngine(subscription.Config{
		LocalIP:         localIP,
		ListenPort:      cfg.ClientPort,
		PageSize:        cfg.PageSize,
		RefreshInterval: cfg.RefreshInterval,
		Cipher:          ci,
		Logger:          c.logger,
		ProtocolLogger:  protoLog,
		SessionID:       c.sessionID,
		Metrics:         c.metrics,
	}, c.rpc)
	if err != nil {
		c.closeFileLog()
		return nil, err
	}
	if err := c.engine.Start(ctx); err != nil {
		c.closeFileLog()
		return nil, err
	}

	c.logger.Info("connected", "local_ip", localIP, "push_port", c.engine.LocalPort(), "session_id", c.sessionID)
	return c, nil
}

// RPC returns the request/response client.
func (c *Client) RPC() *interaction.Client {
	return c.rpc
}

// Subscriptions returns the subscription engine.
func (c *Client) Subscriptions() *subscription.Engine {
	return c.engine
}

// Address returns the CLU's host:port.
func (c *Client) Address() string {
	return c.address
}

// LocalIP returns the address advertised to the CLU.
func (c *Client) LocalIP() string {
	return c.localIP
}

// SessionID returns the id stamped on this client's protocol events.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Metrics returns the client's collectors (nil when metrics are disabled).
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// Close stops the subscription engine and closes the protocol log.
func (c *Client) Close() error {
	err := c.engine.Close()
	return errors.Join(err, c.closeFileLog())
}

func (c *Client) closeFileLog() error {
	if c.fileLog == nil {
		return nil
	}
	return c.fileLog.Close()
}

// DetectLocalIP returns the local address the OS would use to reach
// deviceAddr (host:port). No packet is sent.
func DetectLocalIP(deviceAddr string) (string, error) {
	conn, err := net.Dial("udp4", deviceAddr)
	if err != nil {
		return "", fmt.Errorf("detect local IP: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "", fmt.Errorf("detect local IP: no route to %s", deviceAddr)
	}
	return addr.IP.String(), nil
}
