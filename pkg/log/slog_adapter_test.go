package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/rodis120/grenton-go/pkg/wire"
)

func logOne(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterLogsDatagramEvent(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp:  time.Now(),
		SessionID:  "session-123",
		Direction:  DirectionIn,
		Layer:      LayerTransport,
		Category:   CategoryMessage,
		RemoteAddr: "10.0.0.5:1234",
		Datagram:   &DatagramEvent{Size: 48},
	})

	if entry["session_id"] != "session-123" {
		t.Errorf("session_id: got %v", entry["session_id"])
	}
	if entry["direction"] != "IN" {
		t.Errorf("direction: got %v", entry["direction"])
	}
	if entry["layer"] != "TRANSPORT" {
		t.Errorf("layer: got %v", entry["layer"])
	}
	if entry["remote"] != "10.0.0.5:1234" {
		t.Errorf("remote: got %v", entry["remote"])
	}
	if entry["datagram_size"] != float64(48) {
		t.Errorf("datagram_size: got %v", entry["datagram_size"])
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level: got %v", entry["level"])
	}
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	latency := 5 * time.Millisecond
	entry := logOne(t, Event{
		Timestamp: time.Now(),
		Direction: DirectionIn,
		Layer:     LayerWire,
		Message: &MessageEvent{
			Kind:      wire.KindReply,
			RequestID: "abcd1234",
			Payload:   "number:1",
			Latency:   &latency,
		},
	})

	if entry["kind"] != "REPLY" {
		t.Errorf("kind: got %v", entry["kind"])
	}
	if entry["request_id"] != "abcd1234" {
		t.Errorf("request_id: got %v", entry["request_id"])
	}
	if entry["payload"] != "number:1" {
		t.Errorf("payload: got %v", entry["payload"])
	}
	if _, ok := entry["latency"]; !ok {
		t.Error("latency missing")
	}
}

func TestSlogAdapterLogsPageStateEvent(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp: time.Now(),
		Layer:     LayerSubscription,
		Category:  CategoryState,
		ClientID:  4,
		PageState: &PageStateEvent{Entries: 2, OldState: PageModified, NewState: PageActive, Reason: "baseline"},
	})

	if entry["client_id"] != float64(4) {
		t.Errorf("client_id: got %v", entry["client_id"])
	}
	if entry["new_state"] != PageActive {
		t.Errorf("new_state: got %v", entry["new_state"])
	}
	if entry["reason"] != "baseline" {
		t.Errorf("reason: got %v", entry["reason"])
	}
}

func TestSlogAdapterLogsErrorEvent(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp: time.Now(),
		Category:  CategoryError,
		Error:     &ErrorEventData{Layer: LayerWire, Message: "bad frame", Context: "receive"},
	})

	if entry["error_layer"] != "WIRE" {
		t.Errorf("error_layer: got %v", entry["error_layer"])
	}
	if entry["error_msg"] != "bad frame" {
		t.Errorf("error_msg: got %v", entry["error_msg"])
	}
}

func TestSlogAdapterInterfaceSatisfaction(t *testing.T) {
	var _ Logger = (*SlogAdapter)(nil)
}
