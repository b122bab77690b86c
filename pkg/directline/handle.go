package directline

import (
	"context"
	"errors"
)

// ErrEnded is returned by operations on a handle that has been ended
var ErrEnded = errors.New("directline: handle ended")

// Handle is a live chat connection for one conversation
type Handle interface {
	// ConversationID returns the conversation the handle is bound to
	ConversationID() string
	// Activities streams inbound activities until the handle ends
	Activities() <-chan Activity
	// Post sends an activity and returns the id assigned by the service
	Post(ctx context.Context, activity Activity) (string, error)
	// End signals end-of-connection. Safe to call more than once.
	End() error
	// Done is closed once the handle has ended, for any reason
	Done() <-chan struct{}
}
