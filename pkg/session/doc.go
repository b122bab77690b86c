// Package session persists the last known chat record per conversation id.
//
// Invariants:
// - Conversation ids are validated and path-safe before any store touches them.
// - Put is last-write-wins; writes for the same id are serialized.
// - Stores never hold live connections, only the durable Record.
//
// Usage:
//
//	store, _ := session.Open(session.DriverFile, "/tmp/webchat/chats", log.Logger)
//	_ = store.Put(ctx, &session.Record{ConversationID: "c1", ChatMode: "conversation"})
//	rec, _ := store.Get(ctx, "c1")
//	_ = rec
package session
