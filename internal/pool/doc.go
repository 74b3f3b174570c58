// Package pool owns the worker set. The Registry is the single
// mutex-guarded owner of all slot state (process handle, in-flight load,
// health score); every dispatch decision reads and writes through it. The
// Supervisor drives worker lifecycle on top of the Registry: initial
// bootstrap, crash detection with in-place replacement, and adaptive
// resizing driven by host CPU and queue occupancy.
//
// Slot indices are positions in the live slot list. Crash replacement
// preserves the dead worker's index; shrinking removes a slot outright and
// compacts the list, so indices above the victim shift down and the routing
// modulus changes with the slot count.
package pool
