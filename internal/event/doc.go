// Package event provides a synchronous pub-sub event bus and the domain
// events published by the dispatch engine. The dispatcher, worker pool
// supervisor, health monitor, and telemetry reporter exchange state changes
// through the bus instead of calling each other directly.
package event
