package clu

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/subscription"
	"github.com/rodis120/grenton-go/pkg/transport"
)

// DefaultPort is the CLU's UDP port.
const DefaultPort = 1234

// Config configures a Client. The exported YAML fields can be loaded from a
// file with LoadConfig.
type Config struct {
	// Host is the CLU's IP address or host name.
	Host string `yaml:"host"`

	// Port is the CLU's UDP port (default: 1234).
	Port int `yaml:"port"`

	// Key and IV are the base64 encoded AES-128 key and IV of the device.
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`

	// ClientIP is the local address advertised to the CLU. Detected from the
	// route toward Host when empty.
	ClientIP string `yaml:"client_ip"`

	// ClientPort is the local UDP port pushes are received on (0 = ephemeral).
	ClientPort int `yaml:"client_port"`

	// Timeout bounds each request (default: 1s).
	Timeout time.Duration `yaml:"timeout"`

	// MaxConnections bounds concurrent requests (default: 4).
	MaxConnections int `yaml:"max_connections"`

	// PageSize is the number of features per subscription page (default: 16).
	PageSize int `yaml:"page_size"`

	// RefreshInterval is the subscription keep-alive period (default: 60s).
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ProtocolLog is a .glog file path that receives protocol events.
	ProtocolLog string `yaml:"protocol_log"`

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger receives protocol events in addition to ProtocolLog.
	ProtocolLogger log.Logger `yaml:"-"`

	// Registerer receives the client's metrics, labelled with the device
	// address. Nil disables metrics.
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig returns a configuration with all defaults set. Host, Key and
// IV must still be provided.
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		Timeout:         transport.DefaultTimeout,
		MaxConnections:  transport.DefaultMaxConnections,
		PageSize:        subscription.DefaultPageSize,
		RefreshInterval: subscription.DefaultRefreshInterval,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if c.IV == "" {
		errs = append(errs, errors.New("iv is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.ClientPort < 0 || c.ClientPort > 65535 {
		errs = append(errs, fmt.Errorf("client port out of range: %d", c.ClientPort))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative timeout: %s", c.Timeout))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("negative max connections: %d", c.MaxConnections))
	}
	if c.PageSize < 0 {
		errs = append(errs, fmt.Errorf("negative page size: %d", c.PageSize))
	}
	return errors.Join(errs...)
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.PageSize == 0 {
		c.PageSize = d.PageSize
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
