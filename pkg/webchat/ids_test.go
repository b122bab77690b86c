package webchat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNanoIDGenerator(t *testing.T) {
	gen := NanoIDGenerator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.NewID()
		assert.Len(t, id, 21)
		assert.False(t, strings.Contains(id, conversationIDSeparator))
		assert.False(t, seen[id])
		seen[id] = true
	}

	assert.Len(t, NanoIDGenerator{Size: 10}.NewID(), 10)
}

func TestComposeAndSplitConversationID(t *testing.T) {
	id := ComposeConversationID("abc", "conversation")
	assert.Equal(t, "abc|conversation", id)

	token, mode, ok := SplitConversationID(id)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
	assert.Equal(t, "conversation", mode)
}

func TestSplitConversationID_BackendIDs(t *testing.T) {
	for _, id := range []string{"c1", "|conversation", "abc|", ""} {
		token, mode, ok := SplitConversationID(id)
		assert.False(t, ok, id)
		assert.Equal(t, id, token)
		assert.Empty(t, mode)
	}
}
