// Package webchat owns the lifecycle of the chat connection behind a web chat panel.
//
// A Manager creates a conversation against the conversation backend (Bootstrap),
// transfers it to the same or a freshly generated id (Restart), persists the chat
// record for resumption and publishes session events for its UI shell.
//
// Invariants:
// - At most one live DirectLine handle exists per Manager.
// - A handle is always ended before its reference is dropped.
// - During Restart the old handle is ended before ConversationUpdate is issued and
//   the new handle is requested only after the update resolves.
// - The local user is generated once and never changes.
//
// Usage:
//
//	mgr, _ := webchat.New(webchat.Config{Backend: client, Store: store})
//	sess, err := mgr.Bootstrap(ctx, "http://localhost:3978/api/messages")
//	sess, err = mgr.Restart(ctx, sess.ConversationID, true)
package webchat
