package slack

import (
	"context"
	"errors"

	slackapi "github.com/rusq/slack"
)

// WebAPI adapts github.com/rusq/slack to API.
type WebAPI struct {
	api *slackapi.Client
}

// NewWebAPI builds an SDK client for creds. Session credentials get the
// cookie-carrying HTTP client from slackdump's auth provider.
func NewWebAPI(creds *Credentials, opts ...slackapi.Option) (*WebAPI, error) {
	if creds == nil || creds.Token == "" {
		return nil, errors.New("slack token is required")
	}
	if len(creds.Cookies) > 0 {
		hc, err := creds.HTTPClient()
		if err != nil {
			return nil, err
		}
		opts = append([]slackapi.Option{slackapi.OptionHTTPClient(hc)}, opts...)
	}
	return &WebAPI{api: slackapi.New(creds.Token, opts...)}, nil
}

func (w *WebAPI) ListConversations(ctx context.Context, kinds []ConversationKind, cursor string) (ConversationPage, error) {
	types := make([]string, 0, len(kinds))
	for _, k := range kinds {
		types = append(types, k.String())
	}
	channels, next, err := w.api.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
		Types:           types,
		Cursor:          cursor,
		Limit:           200,
		ExcludeArchived: true,
	})
	if err != nil {
		return ConversationPage{}, err
	}
	page := ConversationPage{NextCursor: next, Conversations: make([]Conversation, 0, len(channels))}
	for i := range channels {
		page.Conversations = append(page.Conversations, conversationFromSDK(&channels[i]))
	}
	return page, nil
}

func (w *WebAPI) ConversationInfo(ctx context.Context, channelID string) (Conversation, error) {
	ch, err := w.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return Conversation{}, err
	}
	return conversationFromSDK(ch), nil
}

func (w *WebAPI) History(ctx context.Context, req HistoryRequest) (MessagePage, error) {
	resp, err := w.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: req.ChannelID,
		Cursor:    req.Cursor,
		Oldest:    string(req.Oldest),
		Limit:     req.Limit,
	})
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{
		Messages:   messagesFromSDK(req.ChannelID, resp.Messages),
		HasMore:    resp.HasMore,
		NextCursor: resp.ResponseMetaData.NextCursor,
	}, nil
}

func (w *WebAPI) Replies(ctx context.Context, req RepliesRequest) (MessagePage, error) {
	msgs, hasMore, next, err := w.api.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: req.ChannelID,
		Timestamp: string(req.ThreadTS),
		Cursor:    req.Cursor,
		Oldest:    string(req.Oldest),
		Limit:     req.Limit,
	})
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{
		Messages:   messagesFromSDK(req.ChannelID, msgs),
		HasMore:    hasMore,
		NextCursor: next,
	}, nil
}

func (w *WebAPI) UserInfo(ctx context.Context, userID string) (*User, error) {
	u, err := w.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:          u.ID,
		Name:        u.Name,
		RealName:    u.RealName,
		DisplayName: u.Profile.DisplayName,
		IsBot:       u.IsBot,
		Deleted:     u.Deleted,
	}, nil
}

func (w *WebAPI) TeamInfo(ctx context.Context) (*Team, error) {
	t, err := w.api.GetTeamInfoContext(ctx)
	if err != nil {
		return nil, err
	}
	return &Team{ID: t.ID, Name: t.Name, Domain: t.Domain}, nil
}

func (w *WebAPI) Mark(ctx context.Context, channelID string, ts Timestamp) error {
	return w.api.MarkConversationContext(ctx, channelID, string(ts))
}

func (w *WebAPI) OpenDM(ctx context.Context, userID string) (string, error) {
	ch, _, _, err := w.api.OpenConversationContext(ctx, &slackapi.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (w *WebAPI) PostMessage(ctx context.Context, channelID string, msg OutgoingMessage) (Timestamp, error) {
	opts := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slackapi.MsgOptionBlocks(msg.Blocks...))
	}
	_, ts, err := w.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", err
	}
	return Timestamp(ts), nil
}

func conversationFromSDK(ch *slackapi.Channel) Conversation {
	c := Conversation{
		ID:          ch.ID,
		Name:        ch.Name,
		UserID:      ch.User,
		LastRead:    Timestamp(ch.LastRead),
		UnreadCount: max(ch.UnreadCount, ch.UnreadCountDisplay),
		IsMember:    ch.IsMember,
	}
	if ch.Latest != nil {
		c.Latest = Timestamp(ch.Latest.Timestamp)
	}
	switch {
	case ch.IsIM:
		c.Kind = KindDirect
	case ch.IsMpIM:
		c.Kind = KindGroupDirect
	case ch.IsPrivate || ch.IsGroup:
		c.Kind = KindPrivate
	default:
		c.Kind = KindPublic
	}
	return c
}

// deletedSubtypes mark messages that exist only as tombstones.
var deletedSubtypes = map[string]bool{
	"message_deleted": true,
	"tombstone":       true,
}

func messagesFromSDK(channelID string, in []slackapi.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		msg := Message{
			ConversationID: channelID,
			UserID:         m.User,
			BotID:          m.BotID,
			Username:       m.Username,
			TS:             Timestamp(m.Timestamp),
			Text:           m.Text,
			ThreadTS:       Timestamp(m.ThreadTimestamp),
			ReplyCount:     m.ReplyCount,
			SubType:        m.SubType,
			Edited:         m.Edited != nil,
			Deleted:        deletedSubtypes[m.SubType],
			HasFiles:       len(m.Files) > 0,
		}
		if msg.ThreadTS != "" && msg.ThreadTS != msg.TS {
			msg.ParentTS = msg.ThreadTS
		}
		out = append(out, msg)
	}
	return out
}
