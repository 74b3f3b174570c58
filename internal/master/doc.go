// Package master wires the dispatch engine together and owns its run loop.
//
// A Master builds the queue, worker pool, dispatcher, health monitor,
// control-plane bridge, and telemetry from a single Config, then runs
// their periodic loops as independent goroutines on a shared clock. A
// panic escaping any of those goroutines terminates the worker pool and
// surfaces as a nonzero exit; workers crashing is routine and handled by
// the pool, the master crashing is not.
package master
