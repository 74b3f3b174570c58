// Package queue defines the overflow queue contract consumed by the
// dispatcher. Items are ordered by priority tier with FIFO ordering inside
// each tier, and the queue exposes pause/resume state so the dispatcher can
// honor system-wide backpressure.
//
// The in-memory implementation lives in the inmem subpackage.
package queue
