package grenton_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"github.com/rodis120/grenton-go/internal/testharness/fakeclu"
	"github.com/rodis120/grenton-go/pkg/cipher"
	"github.com/rodis120/grenton-go/pkg/clu"
	"github.com/rodis120/grenton-go/pkg/subscription"
	"github.com/rodis120/grenton-go/pkg/transport"
	"github.com/rodis120/grenton-go/pkg/wire"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

func newSimulator(t *testing.T, configure ...func(*fakeclu.CLU)) *fakeclu.CLU {
	t.Helper()
	ci, err := cipher.New(testKey, testIV)
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}
	return fakeclu.Start(t, ci, configure...)
}

func configFor(t *testing.T, sim *fakeclu.CLU) clu.Config {
	t.Helper()
	host, portText, err := net.SplitHostPort(sim.Addr())
	if err != nil {
		t.Fatalf("Bad simulator address: %v", err)
	}
	port, _ := strconv.Atoi(portText)

	cfg := clu.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Key = base64.StdEncoding.EncodeToString(testKey)
	cfg.IV = base64.StdEncoding.EncodeToString(testIV)
	cfg.ClientIP = "127.0.0.1"
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func dial(t *testing.T, cfg clu.Config) *clu.Client {
	t.Helper()
	client, err := clu.Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func waitUpdate(t *testing.T, ch <-chan subscription.UpdateContext) subscription.UpdateContext {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for update")
		return subscription.UpdateContext{}
	}
}

// TestE2E_TwoDevicesSideBySide runs two clients in one process against two
// devices, sharing one metrics registry.
func TestE2E_TwoDevicesSideBySide(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	reg := prometheus.NewRegistry()
	simA := newSimulator(t)
	simB := newSimulator(t, func(c *fakeclu.CLU) { c.Serial = 0x0000beef })

	cfgA := configFor(t, simA)
	cfgA.Registerer = reg
	cfgB := configFor(t, simB)
	cfgB.Registerer = reg

	clientA := dial(t, cfgA)
	clientB := dial(t, cfgB)
	ctx := context.Background()

	serialA, err := clientA.RPC().CheckAlive(ctx)
	if err != nil {
		t.Fatalf("CheckAlive A failed: %v", err)
	}
	serialB, err := clientB.RPC().CheckAlive(ctx)
	if err != nil {
		t.Fatalf("CheckAlive B failed: %v", err)
	}
	if serialA != fakeclu.DefaultSerial || serialB != 0xbeef {
		t.Fatalf("Unexpected serials %x, %x", serialA, serialB)
	}

	updatesA := make(chan subscription.UpdateContext, 8)
	updatesB := make(chan subscription.UpdateContext, 8)
	ref := wire.FeatureRef{ObjectID: "DOU1", Index: 0}

	if err := clientA.Subscriptions().Register(ctx, "DOU1", 0, func(u subscription.UpdateContext) { updatesA <- u }); err != nil {
		t.Fatalf("Register A failed: %v", err)
	}
	if err := clientB.Subscriptions().Register(ctx, "DOU1", 0, func(u subscription.UpdateContext) { updatesB <- u }); err != nil {
		t.Fatalf("Register B failed: %v", err)
	}
	waitUpdate(t, updatesA)
	waitUpdate(t, updatesB)

	simA.SetValue(ref, 7)
	if u := waitUpdate(t, updatesA); u.Value != 7.0 || u.Baseline {
		t.Errorf("Unexpected update on A: %+v", u)
	}
	select {
	case u := <-updatesB:
		t.Errorf("B received A's push: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}

	if got := testutil.CollectAndCount(reg, "grenton_subscription_pages"); got != 2 {
		t.Errorf("Expected one pages gauge per device, got %d", got)
	}
}

// TestE2E_RefreshKeepsPagesAlive checks the keep-alive loop re-registers
// pages and runs garbage collection on the device.
func TestE2E_RefreshKeepsPagesAlive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sim := newSimulator(t)
	cfg := configFor(t, sim)
	cfg.RefreshInterval = 50 * time.Millisecond
	client := dial(t, cfg)

	ctx := context.Background()
	if err := client.Subscriptions().RegisterMany(ctx, "DIN3", []int{0, 1}, func(subscription.UpdateContext) {}); err != nil {
		t.Fatalf("RegisterMany failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ok := sim.WaitFor(waitCtx, func(c *fakeclu.CLU) bool {
		registrations := 0
		for _, r := range c.Requests() {
			if strings.HasPrefix(r.Payload, "SYSTEM:clientRegister") {
				registrations++
			}
		}
		return registrations >= 3 && c.GCRuns() >= 2
	})
	if !ok {
		t.Fatalf("Refresh loop did not run (gc runs: %d)", sim.GCRuns())
	}

	refs, found := sim.Page(1)
	if !found || len(refs) != 2 {
		t.Errorf("Expected page 1 with 2 features, got %v (found=%v)", refs, found)
	}
}

// TestE2E_ConcurrencyBound checks max_connections bounds requests in flight.
func TestE2E_ConcurrencyBound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sim := newSimulator(t, func(c *fakeclu.CLU) { c.Delay = 20 * time.Millisecond })
	cfg := configFor(t, sim)
	cfg.MaxConnections = 2
	client := dial(t, cfg)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			_, err := client.RPC().Get(ctx, "DOU1", i)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if peak := sim.PeakConcurrent(); peak > 2 {
		t.Errorf("Expected at most 2 concurrent requests, saw %d", peak)
	}
}

// TestE2E_SilentDevice checks a device that never answers yields a timeout
// and that nothing is retried.
func TestE2E_SilentDevice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sim := newSimulator(t, func(c *fakeclu.CLU) {
		c.Handlers.OnRequest = func(fakeclu.Request) (string, bool) { return "", false }
	})
	cfg := configFor(t, sim)
	cfg.Timeout = 100 * time.Millisecond
	client := dial(t, cfg)

	start := time.Now()
	_, err := client.RPC().CheckAlive(context.Background())
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timeout took %s", elapsed)
	}
	if n := len(sim.Requests()); n != 1 {
		t.Errorf("Expected a single request, device saw %d", n)
	}

	err = client.Subscriptions().Register(context.Background(), "DOU1", 0, func(subscription.UpdateContext) {})
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("Expected registration timeout, got %v", err)
	}
	if client.Subscriptions().Len() != 1 {
		t.Error("Failed registration should stay tracked for the next refresh")
	}
}
