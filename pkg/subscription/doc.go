// Package subscription implements value change subscriptions on a Grenton CLU.
//
// The CLU pushes value changes to registered clients. A client registration
// (a page) lists up to PageSize features under a small integer client id;
// the Engine packs independent subscriptions into as few pages as possible
// and keeps them registered.
//
// # Pages
//
// A new subscription joins the free page with the lowest client id, or a new
// page with the smallest unused client id. A page stops accepting entries
// once it holds PageSize features. Removing the last feature of a page
// discards it and its client id becomes reusable.
//
// Every change to a page re-sends SYSTEM:clientRegister with the full feature
// list. The reply carries the current value of every feature and is handled
// exactly like a push.
//
// # Updates
//
// A page whose feature list changed is "modified" until the next value
// vector arrives. That vector becomes the baseline: it is adopted as the
// page state and every handler of the page is called with its value, unless
// the vector was received before the last registration completed, in which
// case it is adopted silently. Afterwards vectors are diffed positionally and
// only changed values reach handlers.
//
// Handlers run on their own goroutines; a slow or panicking handler does not
// stall the receiver or other handlers.
//
// # Keep-Alive
//
// The CLU drops registrations that are not renewed. The Engine re-registers
// every page each RefreshInterval, pausing PageRefreshDelay between pages,
// and then asks the CLU to collect garbage.
//
// # Locking
//
// One registration lock serializes page bookkeeping, registration calls,
// refreshes and update handling, so the receiver never observes a
// half-updated page.
package subscription
