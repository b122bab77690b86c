package directline

import "encoding/json"

// Activity types used by the session manager
const (
	ActivityTypeMessage            = "message"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeEvent              = "event"
)

// ChannelAccount identifies a participant in a conversation
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to
type ConversationAccount struct {
	ID string `json:"id"`
}

// Activity is a single chat message or event exchanged over a session
type Activity struct {
	Type           string               `json:"type"`
	ID             string               `json:"id,omitempty"`
	Timestamp      string               `json:"timestamp,omitempty"`
	ChannelID      string               `json:"channelId,omitempty"`
	From           *ChannelAccount      `json:"from,omitempty"`
	Recipient      *ChannelAccount      `json:"recipient,omitempty"`
	Conversation   *ConversationAccount `json:"conversation,omitempty"`
	Text           string               `json:"text,omitempty"`
	Name           string               `json:"name,omitempty"`
	Value          json.RawMessage      `json:"value,omitempty"`
	MembersAdded   []ChannelAccount     `json:"membersAdded,omitempty"`
	MembersRemoved []ChannelAccount     `json:"membersRemoved,omitempty"`
	ChannelData    json.RawMessage      `json:"channelData,omitempty"`
}

// ActivitySet is the frame format of the DirectLine stream
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark,omitempty"`
}

// ResourceResponse is returned when an activity is posted
type ResourceResponse struct {
	ID string `json:"id"`
}

// NewConversationUpdate builds the greeting activity that announces members joining
func NewConversationUpdate(conversationID string, members []ChannelAccount) Activity {
	added := make([]ChannelAccount, len(members))
	copy(added, members)

	act := Activity{
		Type:           ActivityTypeConversationUpdate,
		Conversation:   &ConversationAccount{ID: conversationID},
		MembersAdded:   added,
		MembersRemoved: []ChannelAccount{},
	}
	if len(members) > 0 {
		from := members[0]
		act.From = &from
	}
	return act
}
