// Command grenton-cli talks to a Grenton CLU over its encrypted UDP protocol.
//
// Usage:
//
//	grenton-cli [flags] <command> [args...]
//	grenton-cli [flags] -interactive
//
// Flags:
//
//	-config string        YAML configuration file
//	-host string          CLU address
//	-port int             CLU UDP port (default 1234)
//	-key string           Base64 AES key
//	-iv string            Base64 AES IV
//	-client-ip string     Address advertised to the CLU (detected if empty)
//	-client-port int      Local port for pushed updates (default ephemeral)
//	-timeout duration     Request timeout (default 1s)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to a .glog file
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-interactive          Start an interactive shell
//
// Flags override values from the configuration file.
//
// Commands:
//
//	alive                                Check the CLU is alive
//	get <object> <index>                 Read a feature value
//	set <object> <index> <value>         Write a feature value
//	exec <object> <index> [args...]      Execute a method
//	lua <expression>                     Evaluate a Lua expression
//	raw <payload>                        Send a raw payload
//	watch <object> <index>[,index...]... Print value changes until interrupted
//
// Examples:
//
//	# Read a digital output
//	grenton-cli -config clu.yaml get DOU1234 0
//
//	# Follow two objects with protocol capture
//	grenton-cli -config clu.yaml -protocol-log session.glog watch DOU1234 0 DIN5678 0,1
//
//	# Interactive shell with metrics
//	grenton-cli -config clu.yaml -metrics-addr :9100 -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rodis120/grenton-go/pkg/clu"
	"github.com/rodis120/grenton-go/pkg/log"
)

// Options holds the command line flags.
type Options struct {
	ConfigFile  string
	Host        string
	Port        int
	Key         string
	IV          string
	ClientIP    string
	ClientPort  int
	Timeout     time.Duration
	LogLevel    string
	ProtocolLog string
	MetricsAddr string
	Interactive bool
}

func newFlagSet(opts *Options) *flag.FlagSet {
	fs := flag.NewFlagSet("grenton-cli", flag.ContinueOnError)
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&opts.Host, "host", "", "CLU address")
	fs.IntVar(&opts.Port, "port", clu.DefaultPort, "CLU UDP port")
	fs.StringVar(&opts.Key, "key", "", "Base64 AES key")
	fs.StringVar(&opts.IV, "iv", "", "Base64 AES IV")
	fs.StringVar(&opts.ClientIP, "client-ip", "", "Address advertised to the CLU (detected if empty)")
	fs.IntVar(&opts.ClientPort, "client-port", 0, "Local port for pushed updates (0 = ephemeral)")
	fs.DurationVar(&opts.Timeout, "timeout", time.Second, "Request timeout")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write protocol events to a .glog file")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&opts.Interactive, "interactive", false, "Start an interactive shell")
	return fs
}

// buildConfig loads the config file (if any) and applies the flags that were
// set explicitly on top of it.
func buildConfig(opts Options, set map[string]bool) (clu.Config, error) {
	cfg := clu.DefaultConfig()
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = clu.LoadConfig(opts.ConfigFile); err != nil {
			return cfg, err
		}
	}

	override := func(name string, apply func()) {
		if set[name] || opts.ConfigFile == "" {
			apply()
		}
	}
	override("host", func() { cfg.Host = opts.Host })
	override("port", func() { cfg.Port = opts.Port })
	override("key", func() { cfg.Key = opts.Key })
	override("iv", func() { cfg.IV = opts.IV })
	override("client-ip", func() { cfg.ClientIP = opts.ClientIP })
	override("client-port", func() { cfg.ClientPort = opts.ClientPort })
	override("timeout", func() { cfg.Timeout = opts.Timeout })
	override("protocol-log", func() { cfg.ProtocolLog = opts.ProtocolLog })

	return cfg, cfg.Validate()
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts Options
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := buildConfig(opts, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 2
	}

	cmdArgs := fs.Args()
	if !opts.Interactive && (len(cmdArgs) == 0 || !isKnownCommand(cmdArgs[0])) {
		fmt.Fprintln(os.Stderr, "usage: grenton-cli [flags] <command> [args...] (see -h)")
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var out, logOut io.Writer = os.Stdout, os.Stderr
	var shell *Shell
	if opts.Interactive {
		if shell, err = NewShell(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, logOut = shell.Stdout(), shell.Stderr()
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	cfg.Logger = logger
	if level <= slog.LevelDebug {
		cfg.ProtocolLogger = log.NewSlogAdapter(logger)
	}

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		cfg.Registerer = reg
		go serveMetrics(ctx, opts.MetricsAddr, reg, logger)
	}

	client, err := clu.Dial(ctx, cfg)
	if err != nil {
		logger.Error("connect failed", "error", err)
		return 1
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	cmd := newCommander(client, out)

	if opts.Interactive {
		shell.Run(ctx, cmd, cancel)
		return 0
	}

	if err := cmd.run(ctx, cmdArgs[0], cmdArgs[1:]); err != nil {
		logger.Error("command failed", "command", cmdArgs[0], "error", err)
		return 1
	}
	if cmdArgs[0] == "watch" {
		<-ctx.Done()
	}
	return 0
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
