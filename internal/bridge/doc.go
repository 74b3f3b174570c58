// Package bridge handles control-plane traffic from workers. Completions
// feed the load ledger and trigger a drain, outbound sends are forwarded to
// the messaging client, and privileged TDLib calls are invoked on the
// master and answered by correlation id. Replies carry exactly one of a
// result or an error and are not ordered relative to their requests.
package bridge
