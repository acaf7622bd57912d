package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodis120/grenton-go/internal/testharness/fakeclu"
	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/clu"
	"github.com/rodis120/grenton-go/pkg/wire"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"nil", nil},
		{"true", true},
		{"false", false},
		{"42", 42.0},
		{"-1.5", -1.5},
		{`"12"`, "12"},
		{"hello", "hello"},
		{`"`, `"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestParseWatchArgs(t *testing.T) {
	specs, err := parseWatchArgs([]string{"DOU1", "0", "DIN2", "0,1,3"})
	require.NoError(t, err)
	assert.Equal(t, []watchSpec{
		{objectID: "DOU1", indices: []int{0}},
		{objectID: "DIN2", indices: []int{0, 1, 3}},
	}, specs)

	_, err = parseWatchArgs([]string{"DOU1"})
	assert.ErrorIs(t, err, errUsage)

	_, err = parseWatchArgs([]string{"DOU1", "x"})
	assert.Error(t, err)

	_, err = parseWatchArgs([]string{"DOU1", "-1"})
	assert.Error(t, err)
}

func TestBuildConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 10.0.0.2\nkey: a2V5\niv: aXY=\nport: 4321\n"), 0644))

	var opts Options
	fs := newFlagSet(&opts)
	require.NoError(t, fs.Parse([]string{"-config", path, "-host", "10.0.0.3", "-timeout", "2s"}))
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := buildConfig(opts, set)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", cfg.Host)
	assert.Equal(t, 4321, cfg.Port)
	assert.Equal(t, "a2V5", cfg.Key)
	assert.Equal(t, 2*time.Second, cfg.Timeout)

	// Without a file every flag applies, including defaults.
	opts = Options{}
	fs = newFlagSet(&opts)
	require.NoError(t, fs.Parse([]string{"-host", "10.0.0.3", "-key", "k", "-iv", "i"}))
	cfg, err = buildConfig(opts, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, clu.DefaultPort, cfg.Port)
	assert.Equal(t, time.Second, cfg.Timeout)

	_, err = buildConfig(Options{}, map[string]bool{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestCommandsAgainstSimulatedCLU(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	ci, err := cipher.New(key, iv)
	require.NoError(t, err)
	sim := fakeclu.Start(t, ci)

	host, portText, err := net.SplitHostPort(sim.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	cfg := clu.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Key = base64.StdEncoding.EncodeToString(key)
	cfg.IV = base64.StdEncoding.EncodeToString(iv)
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := context.Background()
	client, err := clu.Dial(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	out := &syncBuffer{}
	cmd := newCommander(client, out)

	require.NoError(t, cmd.run(ctx, "alive", nil))
	assert.Contains(t, out.String(), "serial 1a2b3c4d")

	require.NoError(t, cmd.run(ctx, "set", []string{"DOU1", "0", "1"}))
	require.NoError(t, cmd.run(ctx, "get", []string{"DOU1", "0"}))
	assert.Contains(t, out.String(), "ok\n1\n")

	require.NoError(t, cmd.run(ctx, "lua", []string{"DOU1:get(0)"}))
	require.NoError(t, cmd.run(ctx, "raw", []string{wire.CheckAlive()}))
	assert.Contains(t, out.String(), "1a2b3c4d\n")

	assert.ErrorIs(t, cmd.run(ctx, "get", []string{"DOU1"}), errUsage)
	assert.Error(t, cmd.run(ctx, "bogus", nil))

	require.NoError(t, cmd.run(ctx, "watch", []string{"DOU1", "0", "DIN2", "0,1"}))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "DOU1[0] = 1 (initial)")
	}, 2*time.Second, 10*time.Millisecond)

	sim.SetValue(wire.FeatureRef{ObjectID: "DOU1", Index: 0}, 0)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "DOU1[0] = 0\n")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, cmd.run(ctx, "pages", nil))
	assert.Contains(t, out.String(), "client 1: 3 entries")

	require.NoError(t, cmd.run(ctx, "unwatch", []string{"DOU1", "0"}))
	assert.Equal(t, 2, client.Subscriptions().Len())
}
