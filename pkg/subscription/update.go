package subscription

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"time"

	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/metrics"
	"github.com/rodis120/grenton-go/pkg/wire"
)

// receiveLoop reads pushed datagrams until the socket is closed. Bad
// datagrams are logged and dropped.
func (e *Engine) receiveLoop() {
	defer e.wg.Done()

	buf := make([]byte, e.config.ReceiveBufferSize)
	backoff := newReceiveBackoff()

	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || e.ctx.Err() != nil {
				return
			}
			delay := backoff.Next()
			e.logger.Warn("push receive failed", "error", err, "retry_in", delay)
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		backoff.Reset()

		e.handleDatagram(buf[:n], from.String(), e.now())
	}
}

// handleDatagram decrypts and applies one push datagram received at ts.
func (e *Engine) handleDatagram(data []byte, remote string, ts time.Time) {
	e.protoLog.Log(log.Event{
		Timestamp:  ts,
		SessionID:  e.config.SessionID,
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: remote,
		Datagram:   log.NewDatagramEvent(data),
	})

	plain, err := e.config.Cipher.Decrypt(data)
	if err != nil {
		err = fmt.Errorf("%w: push: %w", wire.ErrDecode, err)
		e.logger.Warn("dropping undecryptable push", "remote", remote, "error", err)
		e.logError(log.LayerTransport, 0, "decrypt push", err)
		e.config.Metrics.PushReceived(metrics.PushUndecryptable)
		return
	}
	frame := string(plain)

	update, err := wire.ParseUpdate(frame)
	if err != nil {
		e.logger.Warn("dropping malformed push", "remote", remote, "error", err)
		e.logError(log.LayerWire, 0, "parse push", err)
		e.config.Metrics.PushReceived(metrics.PushMalformed)
		return
	}

	e.protoLog.Log(log.Event{
		Timestamp:  ts,
		SessionID:  e.config.SessionID,
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: remote,
		ClientID:   update.ClientID,
		Message: &log.MessageEvent{
			Kind:    wire.KindPush,
			Payload: frame,
		},
	})

	e.mu.Lock()
	outcome := e.handleUpdateLocked(update, ts)
	e.mu.Unlock()

	e.config.Metrics.PushReceived(outcome)
}

// handleUpdateLocked applies a value vector received at ts and dispatches
// handlers. Returns the push outcome for metrics.
func (e *Engine) handleUpdateLocked(update wire.Update, ts time.Time) string {
	page, ok := e.pages[update.ClientID]
	if !ok {
		e.logger.Debug("update for unknown client", "client_id", update.ClientID)
		return metrics.PushUnknownClient
	}

	if page.modified {
		page.states = update.Values
		page.modified = false
		e.logPageState(page, log.PageRegistered, log.PageActive, "baseline")

		if ts.Before(page.lastRegisteredAt) {
			e.logger.Debug("stale baseline adopted silently", "client_id", page.id)
			return metrics.PushStale
		}

		n := min(len(page.features), len(update.Values))
		for i := 0; i < n; i++ {
			e.dispatchLocked(page, page.features[i], update.Values[i], ts, true)
		}
		return metrics.PushAccepted
	}

	n := min(len(page.features), len(update.Values), len(page.states))
	for i := 0; i < n; i++ {
		if !reflect.DeepEqual(page.states[i], update.Values[i]) {
			e.dispatchLocked(page, page.features[i], update.Values[i], ts, false)
		}
	}
	page.states = update.Values
	return metrics.PushAccepted
}

// dispatchLocked runs the entry's handler on its own goroutine.
func (e *Engine) dispatchLocked(page *clientPage, entry FeatureEntry, value any, ts time.Time, baseline bool) {
	handler, ok := e.handlers[entry]
	if !ok {
		return
	}
	e.config.Metrics.Dispatched(1)

	uc := UpdateContext{
		Entry:     entry,
		Value:     value,
		ClientID:  page.id,
		Timestamp: ts,
		Baseline:  baseline,
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("handler panicked", "entry", entry.String(), "panic", r)
			}
		}()
		handler(uc)
	}()
}
