// Package commands implements the grenton-log CLI commands.
package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rodis120/grenton-go/pkg/log"
)

const timeFormat = "2006-01-02T15:04:05.000000Z"

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	ClientID  *int
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		ClientID:  f.ClientID,
	}
}

// eventLabel names the payload carried by an event.
func eventLabel(event log.Event) string {
	switch {
	case event.Datagram != nil:
		return "Datagram"
	case event.Message != nil:
		return event.Message.Kind.String()
	case event.PageState != nil:
		return "Page"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timeFormat)
	fmt.Fprintf(w, "%s [%s] %-3s %s %s", ts, shortenID(event.SessionID),
		event.Direction.String(), event.Layer.String(), eventLabel(event))
	if event.ClientID != 0 {
		fmt.Fprintf(w, " client=%d", event.ClientID)
	}
	fmt.Fprintln(w)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Datagram != nil:
		formatDatagramDetails(w, event.Datagram)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.PageState != nil:
		formatPageStateDetails(w, event.PageState)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatDatagramDetails(w io.Writer, d *log.DatagramEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", d.Size)
	if len(d.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(d.Data))
		if d.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.RequestID != "" {
		fmt.Fprintf(w, "  RequestID: %s\n", msg.RequestID)
	}
	if msg.Latency != nil {
		fmt.Fprintf(w, "  Latency: %s\n", formatDuration(*msg.Latency))
	}
	if msg.Payload != "" {
		fmt.Fprintf(w, "  Payload: %s\n", msg.Payload)
	}
}

func formatPageStateDetails(w io.Writer, ps *log.PageStateEvent) {
	if ps.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", ps.OldState, ps.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", ps.NewState)
	}
	fmt.Fprintf(w, "  Entries: %d\n", ps.Entries)
	if ps.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", ps.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "subscription":
		return log.LayerSubscription, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or subscription)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView prints every matching event of the log file.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return forEach(reader, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}

// forEach calls fn for every remaining event of reader.
func forEach(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
