package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Shell is the interactive command loop.
type Shell struct {
	rl *readline.Instance
}

// NewShell creates a readline shell. Build the commander with Stdout so
// update lines do not break the prompt.
func NewShell() (*Shell, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(sortedCommands()))
	for _, name := range sortedCommands() {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "clu> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, cmd *commander, cancel context.CancelFunc) {
	defer s.rl.Close()

	cmd.printHelp()
	cmd.printf("  help                                 - Show this help\n")
	cmd.printf("  quit                                 - Exit\n")

	for {
		if ctx.Err() != nil {
			return
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			cancel()
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])

		switch name {
		case "help", "?":
			cmd.printHelp()
			continue
		case "quit", "exit", "q":
			cancel()
			return
		}

		if err := cmd.run(ctx, name, fields[1:]); err != nil {
			cmd.printf("error: %v\n", err)
		}
	}
}
