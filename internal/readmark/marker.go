// Package readmark advances conversation read cursors after a digest has been
// delivered.
package readmark

import (
	"context"
	"fmt"
	"sync"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// Ack reports what MarkRead did for one conversation.
type Ack struct {
	ChannelID string
	Cursor    slack.Timestamp // read cursor after the call
	Marked    bool            // conversations.mark was called and succeeded
	Skipped   string          // platform code when the conversation cannot be marked
}

// skipCodes are conversations the user can no longer mark; they are not
// errors for the run.
var skipCodes = map[string]bool{
	"not_in_channel":    true,
	"channel_not_found": true,
}

// Marker owns the read cursor of every conversation in a run. Marking is
// idempotent: a cursor never moves backwards and marking the same position
// twice calls the platform once.
type Marker struct {
	client *slack.Client
	log    *logger.Logger

	mu      sync.Mutex
	cursors map[string]slack.Timestamp
}

// NewMarker returns a Marker with an empty cursor store.
func NewMarker(client *slack.Client, log *logger.Logger) *Marker {
	return &Marker{client: client, log: logger.OrNop(log), cursors: make(map[string]slack.Timestamp)}
}

// cursor returns the known cursor for conv, seeding it from enumeration.
func (m *Marker) cursor(conv slack.Conversation) slack.Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cursors[conv.ID]
	if !ok {
		cur = conv.LastRead
		m.cursors[conv.ID] = cur
	}
	return cur
}

func (m *Marker) advance(channelID string, ts slack.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts.After(m.cursors[channelID]) {
		m.cursors[channelID] = ts
	}
}

// Cursor returns the current read cursor of a conversation and whether the
// marker has seen it.
func (m *Marker) Cursor(channelID string) (slack.Timestamp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.cursors[channelID]
	return ts, ok
}

// MarkRead moves the read cursor of conv up to latest. A latest at or before
// the current cursor is a no-op.
func (m *Marker) MarkRead(ctx context.Context, conv slack.Conversation, latest slack.Timestamp) (Ack, error) {
	cur := m.cursor(conv)
	ack := Ack{ChannelID: conv.ID, Cursor: cur}
	if latest.IsZero() || !latest.After(cur) {
		m.log.Debug("read cursor already current", "channel", conv.ID, "cursor", cur, "latest", latest)
		return ack, nil
	}

	if err := m.client.Mark(ctx, conv.ID, latest); err != nil {
		if code := slack.ErrorCode(err); skipCodes[code] {
			m.log.Warn("cannot mark conversation read, skipping", "channel", conv.ID, "code", code)
			ack.Skipped = code
			return ack, nil
		}
		return ack, fmt.Errorf("marking %s read at %s: %w", conv.ID, latest, err)
	}

	m.advance(conv.ID, latest)
	ack.Cursor = latest
	ack.Marked = true
	m.log.Info("marked conversation read", "channel", conv.ID, "ts", latest)
	return ack, nil
}
