package conversation

import (
	"context"

	"github.com/harun/webchat/pkg/directline"
)

// Channel service types accepted by startConversation
const (
	ChannelServicePublic     = "public"
	ChannelServiceGovernment = "azureusgovernment"
)

// ModeConversation is the chat mode used by the web chat panel
const ModeConversation = "conversation"

// StartRequest describes a new conversation with a bot
type StartRequest struct {
	BotURL             string                      `json:"botUrl"`
	ChannelServiceType string                      `json:"channelServiceType"`
	Members            []directline.ChannelAccount `json:"members"`
	Mode               string                      `json:"mode"`
	MsaAppID           string                      `json:"msaAppId"`
	MsaPassword        string                      `json:"msaPassword"`
}

// StartResult is returned by StartConversation
type StartResult struct {
	ConversationID string `json:"conversationId"`
	EndpointID     string `json:"endpointId"`
}

// UpdateResult is returned by ConversationUpdate
type UpdateResult struct {
	EndpointID string `json:"endpointId"`
}

// DirectLineOptions selects the endpoint and user a handle is minted for
type DirectLineOptions struct {
	Mode       string `json:"mode"`
	EndpointID string `json:"endpointId"`
	UserID     string `json:"userId"`
}

// tokenResponse is the payload of generatedirectlinetoken
type tokenResponse struct {
	Token          string `json:"token"`
	StreamURL      string `json:"streamUrl"`
	ConversationID string `json:"conversationId"`
}

// Backend is the remote conversation service consumed by the session manager
type Backend interface {
	StartConversation(ctx context.Context, req StartRequest) (StartResult, error)
	ConversationUpdate(ctx context.Context, oldConversationID, newConversationID, userID string) (UpdateResult, error)
	FetchDirectLineObject(ctx context.Context, conversationID string, opts DirectLineOptions) (directline.Handle, error)
	SendInitialActivity(ctx context.Context, conversationID string, members []directline.ChannelAccount) error
}
