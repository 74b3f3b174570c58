// Package dispatch decides, for every inbound update, whether to hand it
// to a worker immediately or queue it for later. Delivery requires both a
// slot below its load capacity and the absence of global backpressure;
// backpressure wins even when the target slot has room. Draining moves
// queued items to workers as capacity frees, preserving priority-then-FIFO
// order and stopping at the first item that cannot be placed.
package dispatch
