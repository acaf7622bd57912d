package clu

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodis120/grenton-go/internal/testharness/fakeclu"
	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/metrics"
	"github.com/rodis120/grenton-go/pkg/subscription"
	"github.com/rodis120/grenton-go/pkg/wire"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 192.168.1.10
key: MDEyMzQ1Njc4OWFiY2RlZg==
iv: ZmVkY2JhOTg3NjU0MzIxMA==
client_port: 7000
timeout: 500ms
refresh_interval: 2m
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 7000, cfg.ClientPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, subscription.DefaultPageSize, cfg.PageSize)
	assert.NoError(t, cfg.Validate())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [1"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
	assert.Contains(t, err.Error(), "key is required")
	assert.Contains(t, err.Error(), "iv is required")

	cfg := DefaultConfig()
	cfg.Host, cfg.Key, cfg.IV = "h", "k", "i"
	cfg.ClientPort = 70000
	assert.ErrorContains(t, cfg.Validate(), "client port out of range")
}

func TestDetectLocalIP(t *testing.T) {
	ip, err := DetectLocalIP("127.0.0.1:1234")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	_, err = DetectLocalIP("not an address")
	assert.Error(t, err)
}

func TestDialRejectsBadKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Key = base64.StdEncoding.EncodeToString([]byte("short"))
	cfg.IV = base64.StdEncoding.EncodeToString(testIV)

	_, err := Dial(context.Background(), cfg)
	assert.ErrorIs(t, err, cipher.ErrInvalidKeySize)
}

func TestDialAgainstSimulatedCLU(t *testing.T) {
	ci, err := cipher.New(testKey, testIV)
	require.NoError(t, err)
	clu := fakeclu.Start(t, ci)

	host, portText, err := net.SplitHostPort(clu.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	logPath := filepath.Join(t.TempDir(), "session.glog")

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Key = base64.StdEncoding.EncodeToString(testKey)
	cfg.IV = base64.StdEncoding.EncodeToString(testIV)
	cfg.ProtocolLog = logPath
	cfg.Registerer = reg
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := context.Background()
	client, err := Dial(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", client.LocalIP())
	assert.NotEmpty(t, client.SessionID())

	serial, err := client.RPC().CheckAlive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(fakeclu.DefaultSerial), serial)

	updates := make(chan subscription.UpdateContext, 4)
	require.NoError(t, client.Subscriptions().Register(ctx, "DOU1", 0, func(u subscription.UpdateContext) {
		updates <- u
	}))
	select {
	case u := <-updates:
		assert.True(t, u.Baseline)
	case <-time.After(2 * time.Second):
		t.Fatal("no baseline")
	}

	clu.SetValue(wire.FeatureRef{ObjectID: "DOU1", Index: 0}, true)
	select {
	case u := <-updates:
		assert.Equal(t, true, u.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no push")
	}

	m := client.Metrics()
	require.NotNil(t, m)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pages))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	r, err := log.NewFilteredReader(logPath, log.Filter{SessionID: client.SessionID()})
	require.NoError(t, err)
	defer r.Close()

	var pushes, states int
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if ev.Message != nil && ev.Message.Kind == wire.KindPush {
			pushes++
		}
		if ev.PageState != nil {
			states++
		}
	}
	assert.Equal(t, 1, pushes)
	assert.NotZero(t, states)
}
