// Package ipc defines the wire protocol between the master process and its
// worker processes. Both directions speak JSONL (one JSON envelope per line)
// over the worker's stdin and stdout pipes.
//
// Master to worker traffic carries updates, outbound message requests,
// privileged TDLib invocations, and health pings. Worker to master traffic
// carries completion notices, TDLib responses, and pongs. Request/response
// pairs are matched by correlation ID.
package ipc
