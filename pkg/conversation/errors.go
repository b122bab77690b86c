package conversation

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable matches every failed backend call
var ErrBackendUnavailable = errors.New("conversation backend unavailable")

// Backend operation names, used in errors, logs and metrics
const (
	OpStartConversation     = "start_conversation"
	OpConversationUpdate    = "conversation_update"
	OpFetchDirectLineObject = "fetch_directline_object"
	OpSendInitialActivity   = "send_initial_activity"
)

// BackendError reports a failed backend call
type BackendError struct {
	Op     string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *BackendError) Error() string {
	if e == nil {
		return ErrBackendUnavailable.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s failed with status %d: %v", ErrBackendUnavailable, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", ErrBackendUnavailable, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackendUnavailable }
