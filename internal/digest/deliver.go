package digest

import (
	"context"
	"fmt"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// DeliveryError means at least one chunk of the notification was not
// acknowledged. Conversations in failed chunks stay unread.
type DeliveryError struct {
	Failed []string // conversation ids
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering digest (%d conversations undelivered): %v", len(e.Failed), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Ack confirms delivery of one posted message.
type Ack struct {
	ChannelID     string
	TS            slack.Timestamp
	Conversations []string
}

// Deliverer posts notifications to a user's DM with the app.
type Deliverer struct {
	client      *slack.Client
	userID      string
	maxSections int
	log         *logger.Logger
	dmChannel   string
}

// NewDeliverer sends to userID through client. maxSections caps the digests
// per posted message.
func NewDeliverer(client *slack.Client, userID string, maxSections int, log *logger.Logger) *Deliverer {
	return &Deliverer{client: client, userID: userID, maxSections: maxSections, log: logger.OrNop(log)}
}

func (d *Deliverer) channel(ctx context.Context) (string, error) {
	if d.dmChannel != "" {
		return d.dmChannel, nil
	}
	ch, err := d.client.OpenDM(ctx, d.userID)
	if err != nil {
		return "", fmt.Errorf("opening DM with %s: %w", d.userID, err)
	}
	d.dmChannel = ch
	return ch, nil
}

// Deliver posts n in chunks. Each returned Ack confirms exactly the
// conversations rendered into its message; on partial failure the acks of the
// chunks that did go out are returned together with a *DeliveryError.
func (d *Deliverer) Deliver(ctx context.Context, n Notification) ([]Ack, error) {
	if len(n.Digests) == 0 {
		return nil, nil
	}
	ch, err := d.channel(ctx)
	if err != nil {
		return nil, &DeliveryError{Failed: conversationIDs(n.Digests), Err: err}
	}

	chunks := n.Chunks(d.maxSections)
	var (
		acks   []Ack
		failed []string
		last   error
	)
	for i, chunk := range chunks {
		ids := conversationIDs(chunk)
		ts, err := d.client.PostMessage(ctx, ch, n.Render(chunk, i+1, len(chunks)))
		if err != nil {
			d.log.Error("digest chunk not delivered", "part", i+1, "parts", len(chunks), "conversations", ids, "error", err)
			failed = append(failed, ids...)
			last = err
			continue
		}
		acks = append(acks, Ack{ChannelID: ch, TS: ts, Conversations: ids})
	}
	if len(failed) > 0 {
		return acks, &DeliveryError{Failed: failed, Err: last}
	}
	d.log.Info("digest delivered", "channel", ch, "messages", len(acks), "conversations", len(n.Digests))
	return acks, nil
}

// Send posts a single standalone message, such as the all-caught-up or error
// notice.
func (d *Deliverer) Send(ctx context.Context, msg slack.OutgoingMessage) error {
	ch, err := d.channel(ctx)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	if _, err := d.client.PostMessage(ctx, ch, msg); err != nil {
		return &DeliveryError{Err: err}
	}
	return nil
}

func conversationIDs(ds []Digest) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.Conversation.ID
	}
	return ids
}
