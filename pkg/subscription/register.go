package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/rodis120/grenton-go/pkg/interaction"
	"github.com/rodis120/grenton-go/pkg/log"
	"github.com/rodis120/grenton-go/pkg/wire"
)

// Register subscribes handler to value changes of one feature.
//
// Registering an entry that is already registered only replaces its handler.
// Otherwise the entry is packed into a page and the page is re-registered on
// the CLU; the first value vector for the page calls handler with the current
// value. A registration error is returned but the entry stays tracked and is
// retried by the next refresh.
func (e *Engine) Register(ctx context.Context, objectID string, index int, handler Handler) error {
	return e.RegisterMany(ctx, objectID, []int{index}, handler)
}

// RegisterMany registers handler for several features of one object. Every
// touched page is re-registered once.
func (e *Engine) RegisterMany(ctx context.Context, objectID string, indices []int, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunningLocked(); err != nil {
		return err
	}

	var touched []*clientPage
	seen := make(map[int]bool)
	for _, idx := range indices {
		entry := FeatureEntry{ObjectID: objectID, Index: idx}
		if _, ok := e.index[entry]; ok {
			e.handlers[entry] = handler
			continue
		}

		page := e.allocateLocked()
		page.features = append(page.features, entry)
		page.modified = true
		if len(page.features) < e.config.PageSize {
			e.free[page.id] = page
		}
		e.index[entry] = page
		e.handlers[entry] = handler

		if !seen[page.id] {
			seen[page.id] = true
			touched = append(touched, page)
		}
	}

	e.config.Metrics.SetPages(len(e.pages))

	var errs []error
	for _, page := range touched {
		e.logPageState(page, log.PageActive, log.PageModified, "register")
		if err := e.registerPageLocked(ctx, page); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove unsubscribes one feature. The page that held it is re-registered
// with its remaining features; a page left empty is registered with an empty
// list and discarded. Returns ErrNotRegistered for unknown entries.
func (e *Engine) Remove(ctx context.Context, objectID string, index int) error {
	entry := FeatureEntry{ObjectID: objectID, Index: index}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunningLocked(); err != nil {
		return err
	}

	page, ok := e.index[entry]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, entry)
	}

	delete(e.handlers, entry)
	delete(e.index, entry)
	for i, f := range page.features {
		if f == entry {
			page.features = append(page.features[:i], page.features[i+1:]...)
			break
		}
	}
	page.modified = true

	if len(page.features) == 0 {
		delete(e.free, page.id)
		delete(e.pages, page.id)
		e.logPageState(page, log.PageActive, log.PageDiscarded, "last entry removed")
	} else {
		e.free[page.id] = page
		e.logPageState(page, log.PageActive, log.PageModified, "remove")
	}
	e.config.Metrics.SetPages(len(e.pages))

	return e.registerPageLocked(ctx, page)
}

// RegisterAsync runs Register on its own goroutine.
func (e *Engine) RegisterAsync(ctx context.Context, objectID string, index int, handler Handler) *interaction.Future[struct{}] {
	return interaction.Go(func() (struct{}, error) {
		return struct{}{}, e.Register(ctx, objectID, index, handler)
	})
}

// RemoveAsync runs Remove on its own goroutine.
func (e *Engine) RemoveAsync(ctx context.Context, objectID string, index int) *interaction.Future[struct{}] {
	return interaction.Go(func() (struct{}, error) {
		return struct{}{}, e.Remove(ctx, objectID, index)
	})
}

func (e *Engine) checkRunningLocked() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.conn == nil {
		return ErrNotStarted
	}
	return nil
}

// allocateLocked returns the free page with the lowest client id, removing it
// from the free set, or creates a page with the smallest unused client id.
func (e *Engine) allocateLocked() *clientPage {
	lowest := -1
	for id := range e.free {
		if lowest < 0 || id < lowest {
			lowest = id
		}
	}
	if lowest >= 0 {
		page := e.free[lowest]
		delete(e.free, lowest)
		return page
	}

	id := 1
	for e.pages[id] != nil {
		id++
	}
	page := &clientPage{id: id}
	e.pages[id] = page
	e.logPageState(page, "", log.PageAllocated, "")
	return page
}

// registerPageLocked sends SYSTEM:clientRegister for page and feeds the
// reply through the update path. lastRegisteredAt only moves on success.
func (e *Engine) registerPageLocked(ctx context.Context, page *clientPage) error {
	payload := wire.ClientRegister(e.config.LocalIP, e.localPort, page.id, page.refs())

	reply, err := e.caller.Command(ctx, payload, true)
	if err != nil {
		e.logger.Warn("page registration failed", "client_id", page.id, "error", err)
		e.logError(log.LayerSubscription, page.id, "register", err)
		return fmt.Errorf("register client %d: %w", page.id, err)
	}

	update, err := wire.ParseRegisterReply(reply)
	if err != nil {
		e.logger.Warn("bad registration reply", "client_id", page.id, "error", err)
		e.logError(log.LayerWire, page.id, "register", err)
		return fmt.Errorf("register client %d: %w", page.id, err)
	}

	e.handleUpdateLocked(update, e.now())
	page.lastRegisteredAt = e.now()

	e.logger.Debug("page registered", "client_id", page.id, "entries", len(page.features))
	e.logPageState(page, log.PageModified, log.PageRegistered, "")
	return nil
}
