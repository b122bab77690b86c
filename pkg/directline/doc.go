// Package directline implements the live session handle returned by the
// conversation backend: a DirectLine websocket stream for inbound activities
// and the DirectLine REST endpoint for outbound ones.
//
// Invariants:
// - A Conn is bound to exactly one conversation id for its lifetime.
// - End is idempotent; after End the Activities channel is closed and Post fails.
// - Conn never reconnects on its own. A dropped stream ends the handle.
package directline
