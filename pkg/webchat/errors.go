package webchat

import (
	"errors"

	"github.com/harun/webchat/pkg/conversation"
)

var (
	// ErrInvalidInput is returned for an empty bot URL or a malformed conversation id
	ErrInvalidInput = errors.New("invalid input")
	// ErrRecordNotFound is returned when Restart names a conversation with no persisted record
	ErrRecordNotFound = errors.New("chat record not found")
	// ErrBackendUnavailable matches every failed conversation backend call
	ErrBackendUnavailable = conversation.ErrBackendUnavailable
	// ErrBusy is returned when Bootstrap or Restart overlaps another operation
	ErrBusy = errors.New("session operation already in progress")
	// ErrClosed is returned once the Manager has been closed
	ErrClosed = errors.New("session manager closed")
	// ErrNoSession is returned by operations that need an active session
	ErrNoSession = errors.New("no active session")
)
