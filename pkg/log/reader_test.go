package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.glog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var read []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return read
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	now := time.Now()
	path := createTestLogFile(t, []Event{
		{Timestamp: now, SessionID: "s-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: now, SessionID: "s-2", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: now, SessionID: "s-3", Direction: DirectionIn, Layer: LayerSubscription, Category: CategoryState},
	})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].SessionID != "s-1" || read[2].SessionID != "s-3" {
		t.Errorf("events out of order: %q .. %q", read[0].SessionID, read[2].SessionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.glog")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []Event{
		{Timestamp: base, SessionID: "a", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: base.Add(time.Second), SessionID: "a", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage, ClientID: 1},
		{Timestamp: base.Add(2 * time.Second), SessionID: "b", Direction: DirectionIn, Layer: LayerSubscription, Category: CategoryState, ClientID: 2},
		{Timestamp: base.Add(3 * time.Second), SessionID: "b", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryError},
	})

	in := DirectionIn
	wireLayer := LayerWire
	stateCat := CategoryState
	client := 2
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "b"}, 2},
		{"direction", Filter{Direction: &in}, 3},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"category", Filter{Category: &stateCat}, 1},
		{"client", Filter{ClientID: &client}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{SessionID: "a", Direction: &in}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}
