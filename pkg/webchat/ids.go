package webchat

import (
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// conversationIDSeparator joins the unique token and the chat mode
const conversationIDSeparator = "|"

// IDGenerator produces unique tokens for new conversation ids
type IDGenerator interface {
	NewID() string
}

// NanoIDGenerator generates URL-safe nanoid tokens
type NanoIDGenerator struct {
	// Size is the token length; zero uses the nanoid default of 21
	Size int
}

func (g NanoIDGenerator) NewID() string {
	var (
		id  string
		err error
	)
	if g.Size > 0 {
		id, err = gonanoid.New(g.Size)
	} else {
		id, err = gonanoid.New()
	}
	if err != nil {
		// crypto/rand failure; a uuid is still unique
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return id
}

// ComposeConversationID builds "<token>|<mode>"
func ComposeConversationID(token, chatMode string) string {
	return token + conversationIDSeparator + chatMode
}

// SplitConversationID recovers the token and chat mode from a generated id.
// ok is false for ids the backend minted, which carry no mode.
func SplitConversationID(conversationID string) (token, chatMode string, ok bool) {
	idx := strings.LastIndex(conversationID, conversationIDSeparator)
	if idx <= 0 || idx == len(conversationID)-1 {
		return conversationID, "", false
	}
	return conversationID[:idx], conversationID[idx+1:], true
}
