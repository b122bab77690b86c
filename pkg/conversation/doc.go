// Package conversation is the client for the conversation/DirectLine
// provisioning service: it starts conversations, transfers a conversation to a
// new id, mints DirectLine handles and sends the initial greeting activity.
//
// Every response body is checked against a JSON schema and decoded into an
// explicit result type. Any failure, whether transport, status or shape, is a
// *BackendError that matches ErrBackendUnavailable. The client never retries.
package conversation
