package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rodis120/grenton-go/pkg/clu"
	"github.com/rodis120/grenton-go/pkg/subscription"
	"github.com/rodis120/grenton-go/pkg/wire"
)

var errUsage = errors.New("usage")

// usage lines per command, shared by one-shot and interactive help.
var usage = map[string]string{
	"alive":   "alive                                - Check the CLU is alive and print its serial",
	"get":     "get <object> <index>                 - Read a feature value",
	"set":     "set <object> <index> <value>         - Write a feature value",
	"exec":    "exec <object> <index> [args...]      - Execute a method",
	"lua":     "lua <expression>                     - Evaluate a Lua expression",
	"raw":     "raw <payload>                        - Send a raw payload and print the reply",
	"watch":   "watch <object> <index>[,index...]... - Subscribe to value changes",
	"unwatch": "unwatch <object> <index>             - Cancel a subscription",
	"pages":   "pages                                - List subscription pages",
}

var commandOrder = []string{"alive", "get", "set", "exec", "lua", "raw", "watch", "unwatch", "pages"}

// commander runs CLI commands against one client.
type commander struct {
	client *clu.Client

	mu  sync.Mutex
	out io.Writer
}

func newCommander(client *clu.Client, out io.Writer) *commander {
	return &commander{client: client, out: out}
}

func (c *commander) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *commander) printHelp() {
	c.printf("Commands:\n")
	for _, name := range commandOrder {
		c.printf("  %s\n", usage[name])
	}
}

// run executes one command.
func (c *commander) run(ctx context.Context, cmd string, args []string) error {
	rpc := c.client.RPC()

	switch cmd {
	case "alive":
		serial, err := rpc.CheckAlive(ctx)
		if err != nil {
			return err
		}
		c.printf("alive, serial %08x\n", serial)

	case "get":
		if len(args) != 2 {
			return usageError(cmd)
		}
		idx, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		v, err := rpc.Get(ctx, args[0], idx)
		if err != nil {
			return err
		}
		c.printf("%s\n", wire.FormatValue(v))

	case "set":
		if len(args) < 3 {
			return usageError(cmd)
		}
		idx, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		if err := rpc.Set(ctx, args[0], idx, parseValue(strings.Join(args[2:], " "))); err != nil {
			return err
		}
		c.printf("ok\n")

	case "exec":
		if len(args) < 2 {
			return usageError(cmd)
		}
		idx, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		callArgs := make([]any, 0, len(args)-2)
		for _, a := range args[2:] {
			callArgs = append(callArgs, parseValue(a))
		}
		v, err := rpc.Execute(ctx, args[0], idx, callArgs...)
		if err != nil {
			return err
		}
		c.printf("%s\n", wire.FormatValue(v))

	case "lua":
		if len(args) == 0 {
			return usageError(cmd)
		}
		v, err := rpc.Eval(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		c.printf("%s\n", wire.FormatValue(v))

	case "raw":
		if len(args) == 0 {
			return usageError(cmd)
		}
		reply, err := rpc.Command(ctx, strings.Join(args, " "), true)
		if err != nil {
			return err
		}
		c.printf("%s\n", reply)

	case "watch":
		specs, err := parseWatchArgs(args)
		if err != nil {
			return err
		}
		return c.watch(ctx, specs)

	case "unwatch":
		if len(args) != 2 {
			return usageError(cmd)
		}
		idx, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		return c.client.Subscriptions().Remove(ctx, args[0], idx)

	case "pages":
		c.printPages()

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// watch registers every spec concurrently; the engine serializes the
// page bookkeeping.
func (c *commander) watch(ctx context.Context, specs []watchSpec) error {
	engine := c.client.Subscriptions()
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range specs {
		s := s
		g.Go(func() error {
			return engine.RegisterMany(gctx, s.objectID, s.indices, c.printUpdate)
		})
	}
	return g.Wait()
}

func (c *commander) printUpdate(u subscription.UpdateContext) {
	suffix := ""
	if u.Baseline {
		suffix = " (initial)"
	}
	c.printf("%s %s = %s%s\n", u.Timestamp.Format("15:04:05.000"), u.Entry, wire.FormatValue(u.Value), suffix)
}

func (c *commander) printPages() {
	pages := c.client.Subscriptions().Pages()
	if len(pages) == 0 {
		c.printf("no subscriptions\n")
		return
	}
	for _, p := range pages {
		entries := make([]string, len(p.Entries))
		for i, e := range p.Entries {
			entries[i] = e.String()
		}
		state := "active"
		if p.Modified {
			state = "modified"
		}
		registered := "never"
		if !p.LastRegisteredAt.IsZero() {
			registered = time.Since(p.LastRegisteredAt).Truncate(time.Second).String() + " ago"
		}
		c.printf("client %d: %d entries, %s, registered %s\n  %s\n",
			p.ClientID, len(p.Entries), state, registered, strings.Join(entries, " "))
	}
}

type watchSpec struct {
	objectID string
	indices  []int
}

// parseWatchArgs parses "<object> <index>[,index...]" pairs.
func parseWatchArgs(args []string) ([]watchSpec, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, usageError("watch")
	}
	specs := make([]watchSpec, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		s := watchSpec{objectID: args[i]}
		for _, part := range strings.Split(args[i+1], ",") {
			idx, err := parseIndex(part)
			if err != nil {
				return nil, err
			}
			s.indices = append(s.indices, idx)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return idx, nil
}

// parseValue converts a command line token to a Lua value: nil, booleans and
// numbers are recognized, double-quoted text is unquoted and anything else is
// a string.
func parseValue(s string) any {
	switch s {
	case "nil":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func usageError(cmd string) error {
	return fmt.Errorf("%w: %s", errUsage, strings.TrimSpace(strings.SplitN(usage[cmd], " - ", 2)[0]))
}

// isKnownCommand reports whether name is a one-shot or interactive command.
func isKnownCommand(name string) bool {
	_, ok := usage[name]
	return ok
}

// sortedCommands is used for readline completion.
func sortedCommands() []string {
	names := append([]string{"help", "quit"}, commandOrder...)
	sort.Strings(names)
	return names
}
