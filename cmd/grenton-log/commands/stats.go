package commands

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByKind    map[wire.Kind]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one client session.
type SessionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Requests   int
	Pushes     int
	Clients    map[int]bool
	MaxLatency time.Duration
	latencySum time.Duration
	latencyN   int
}

// AvgLatency returns the mean reply latency.
func (s *SessionStats) AvgLatency() time.Duration {
	if s.latencyN == 0 {
		return 0
	}
	return s.latencySum / time.Duration(s.latencyN)
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByKind:    make(map[wire.Kind]int),
		Sessions:          make(map[string]*SessionStats),
	}

	err = forEach(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func (stats *Stats) add(event log.Event) {
	stats.TotalEvents++
	stats.EventsByLayer[event.Layer]++
	stats.EventsByCategory[event.Category]++
	stats.EventsByDirection[event.Direction]++

	if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
		stats.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(stats.TimeRange.End) {
		stats.TimeRange.End = event.Timestamp
	}

	s, ok := stats.Sessions[event.SessionID]
	if !ok {
		s = &SessionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Clients:   make(map[int]bool),
		}
		stats.Sessions[event.SessionID] = s
	}
	s.Events++
	if event.Timestamp.After(s.LastSeen) {
		s.LastSeen = event.Timestamp
	}
	if event.ClientID != 0 {
		s.Clients[event.ClientID] = true
	}

	if msg := event.Message; msg != nil {
		stats.MessagesByKind[msg.Kind]++
		switch msg.Kind {
		case wire.KindRequest:
			s.Requests++
		case wire.KindPush:
			s.Pushes++
		}
		if msg.Latency != nil {
			s.latencySum += *msg.Latency
			s.latencyN++
			s.MaxLatency = max(s.MaxLatency, *msg.Latency)
		}
	}

	if event.Error != nil {
		stats.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Grenton Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSubscription} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByKind) > 0 {
		fmt.Fprintln(w, "Messages by Kind:")
		for _, kind := range []wire.Kind{wire.KindRequest, wire.KindReply, wire.KindPush} {
			if count := stats.MessagesByKind[kind]; count > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", kind.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, s := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, s})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			fmt.Fprintf(w, "             Requests: %d  Pushes: %d\n", s.stats.Requests, s.stats.Pushes)
			if s.stats.latencyN > 0 {
				fmt.Fprintf(w, "             Latency: avg %s, max %s\n",
					formatDuration(s.stats.AvgLatency()), formatDuration(s.stats.MaxLatency))
			}
			if len(s.stats.Clients) > 0 {
				ids := make([]int, 0, len(s.stats.Clients))
				for id := range s.stats.Clients {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				fmt.Fprintf(w, "             Clients: %v\n", ids)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
