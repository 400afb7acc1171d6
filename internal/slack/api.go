package slack

import (
	"context"

	slackapi "github.com/rusq/slack"
)

// API is the narrow slice of the Slack Web API the digest needs. WebAPI
// implements it over github.com/rusq/slack; tests substitute fakes.
type API interface {
	ListConversations(ctx context.Context, kinds []ConversationKind, cursor string) (ConversationPage, error)
	ConversationInfo(ctx context.Context, channelID string) (Conversation, error)
	History(ctx context.Context, req HistoryRequest) (MessagePage, error)
	Replies(ctx context.Context, req RepliesRequest) (MessagePage, error)
	UserInfo(ctx context.Context, userID string) (*User, error)
	TeamInfo(ctx context.Context) (*Team, error)
	Mark(ctx context.Context, channelID string, ts Timestamp) error
	OpenDM(ctx context.Context, userID string) (string, error)
	PostMessage(ctx context.Context, channelID string, msg OutgoingMessage) (Timestamp, error)
}

// ConversationPage is one page of conversations.list.
type ConversationPage struct {
	Conversations []Conversation
	NextCursor    string
}

// HistoryRequest pages conversations.history newest-first. Oldest is exclusive.
type HistoryRequest struct {
	ChannelID string
	Oldest    Timestamp
	Cursor    string
	Limit     int
}

// RepliesRequest pages conversations.replies for one thread, oldest-first.
// The thread root is always part of the first page.
type RepliesRequest struct {
	ChannelID string
	ThreadTS  Timestamp
	Oldest    Timestamp
	Cursor    string
	Limit     int
}

// MessagePage is one page of history or replies.
type MessagePage struct {
	Messages   []Message
	HasMore    bool
	NextCursor string
}

// OutgoingMessage is a chat.postMessage payload. Text is the notification
// fallback shown where blocks cannot render.
type OutgoingMessage struct {
	Text   string
	Blocks []slackapi.Block
}
