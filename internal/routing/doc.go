// Package routing derives routing keys and priorities from inbound bot
// updates and maps keys deterministically onto worker slots.
//
// Every update is reduced to a namespaced routing key so that all updates
// from the same sender (or, failing that, the same chat) land on the same
// worker while the worker count is stable. Updates with no usable identity
// get a fresh random key each time and spread across the pool.
//
// The core operations are:
//
//   - [Identify]: derive the routing key for an update
//   - [Classify]: assign a priority tier (commands outrank everything else)
//   - [Route]: map a key onto a slot index for a given slot count
//
// All functions are pure and safe for concurrent use.
package routing
