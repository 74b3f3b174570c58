// Package worker implements the worker-process side of the control
// protocol. The runtime reads envelopes from stdin, hands updates to a
// Handler, acknowledges each one with a completion notice, answers health
// pings, and lets handlers reach back to the master for outbound sends and
// privileged calls.
package worker
