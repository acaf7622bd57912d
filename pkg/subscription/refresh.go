package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/rodis120/grenton-go/pkg/wire"
)

func (e *Engine) refreshLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.Refresh(e.ctx); err != nil && e.ctx.Err() == nil {
				e.logger.Warn("refresh incomplete", "error", err)
			}
		}
	}
}

// Refresh re-registers every live page in client id order, pausing
// PageRefreshDelay after each, then asks the CLU to collect garbage.
// A failing page does not stop the others; all failures are returned joined.
func (e *Engine) Refresh(ctx context.Context) error {
	var errs []error

	e.mu.Lock()
	if err := e.checkRunningLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	for _, id := range e.sortedPageIDsLocked() {
		if err := e.registerPageLocked(ctx, e.pages[id]); err != nil {
			e.config.Metrics.RefreshFailed()
			errs = append(errs, err)
		}
		if !sleepCtx(ctx, e.config.PageRefreshDelay) {
			e.mu.Unlock()
			return errors.Join(append(errs, ctx.Err())...)
		}
	}
	e.mu.Unlock()

	if _, err := e.caller.Command(ctx, wire.CollectGarbage(), false); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sleepCtx waits for d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
