// Package fetch pulls the unread messages of one conversation, expanding
// threads, in chronological order.
package fetch

import (
	"context"
	"fmt"
	"slices"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

const maxPageSize = 200

// skippedSubtypes are system or automated messages that carry no content
// worth summarizing.
var skippedSubtypes = map[string]bool{
	"bot_message":       true,
	"channel_join":      true,
	"channel_leave":     true,
	"group_join":        true,
	"group_leave":       true,
	"channel_topic":     true,
	"channel_purpose":   true,
	"channel_name":      true,
	"channel_archive":   true,
	"channel_unarchive": true,
	"pinned_item":       true,
	"unpinned_item":     true,
}

// Limits caps how much of a conversation is read.
type Limits struct {
	MaxMessages      int // top-level messages, newest kept
	MaxThreadReplies int // per thread, newest kept
}

// Fetcher reads unread messages through the shared rate-limited client.
type Fetcher struct {
	client *slack.Client
	log    *logger.Logger
}

// NewFetcher returns a Fetcher that calls Slack through client.
func NewFetcher(client *slack.Client, log *logger.Logger) *Fetcher {
	return &Fetcher{client: client, log: logger.OrNop(log)}
}

// FetchUnread returns messages newer than since in ascending order, each
// thread root followed directly by its replies. Messages are unique by
// (conversation, ts); the first occurrence wins.
//
// A failed history call fails the conversation. A failed thread expansion
// only drops that thread's replies, unless it is an authentication failure.
func (f *Fetcher) FetchUnread(ctx context.Context, conv slack.Conversation, since slack.Timestamp, limits Limits) ([]slack.Message, error) {
	top, err := f.history(ctx, conv.ID, since, limits.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("fetching history of %s: %w", conv.ID, err)
	}

	ordered := make([]slack.Message, 0, len(top))
	for _, m := range top {
		ordered = append(ordered, m)
		if !m.IsThreadRoot() {
			continue
		}
		replies, err := f.replies(ctx, conv.ID, m.TS, since, limits.MaxThreadReplies)
		if err != nil {
			if slack.IsAuth(err) || ctx.Err() != nil {
				return nil, fmt.Errorf("fetching thread %s in %s: %w", m.TS, conv.ID, err)
			}
			f.log.Warn("skipping thread replies", "channel", conv.ID, "thread_ts", m.TS, "error", err)
			continue
		}
		ordered = append(ordered, replies...)
	}

	msgs := Dedup(ordered)
	f.log.Debug("fetched unread messages", "channel", conv.ID, "top_level", len(top), "total", len(msgs))
	return msgs, nil
}

// history pages newest-first until the cursor boundary or limit unique
// top-level messages, then returns them oldest-first. Pages may overlap; a
// repeated ts does not count toward the limit.
func (f *Fetcher) history(ctx context.Context, channelID string, since slack.Timestamp, limit int) ([]slack.Message, error) {
	var out []slack.Message
	seen := make(map[slack.Timestamp]bool)
	cursor := ""
	for {
		page, err := f.client.History(ctx, slack.HistoryRequest{
			ChannelID: channelID,
			Oldest:    since,
			Cursor:    cursor,
			Limit:     pageSize(limit - len(out)),
		})
		if err != nil {
			return nil, err
		}
		for _, m := range page.Messages {
			if skippedSubtypes[m.SubType] || !m.TS.After(since) || seen[m.TS] {
				continue
			}
			seen[m.TS] = true
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		if (limit > 0 && len(out) >= limit) || !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	SortChronological(out)
	return out, nil
}

// replies reads a whole thread past since and keeps the newest limit replies.
// The thread root that conversations.replies always returns first is dropped.
func (f *Fetcher) replies(ctx context.Context, channelID string, root, since slack.Timestamp, limit int) ([]slack.Message, error) {
	var out []slack.Message
	cursor := ""
	for {
		page, err := f.client.Replies(ctx, slack.RepliesRequest{
			ChannelID: channelID,
			ThreadTS:  root,
			Oldest:    since,
			Cursor:    cursor,
			Limit:     maxPageSize,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range page.Messages {
			if m.TS == root || skippedSubtypes[m.SubType] || !m.TS.After(since) {
				continue
			}
			if m.ParentTS == "" {
				m.ParentTS = root
			}
			out = append(out, m)
		}
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	SortChronological(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func pageSize(remaining int) int {
	if remaining <= 0 || remaining > maxPageSize {
		return maxPageSize
	}
	return remaining
}

// SortChronological orders messages by timestamp, oldest first.
func SortChronological(msgs []slack.Message) {
	slices.SortStableFunc(msgs, func(a, b slack.Message) int { return a.TS.Compare(b.TS) })
}

// Dedup removes repeated (conversation, ts) pairs, keeping the first.
func Dedup(msgs []slack.Message) []slack.Message {
	type key struct {
		conv string
		ts   slack.Timestamp
	}
	seen := make(map[key]bool, len(msgs))
	out := make([]slack.Message, 0, len(msgs))
	for _, m := range msgs {
		k := key{m.ConversationID, m.TS}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}
