// Package digest assembles per-conversation digests into the notification a
// user receives, renders it as Block Kit and delivers it by DM.
package digest

import (
	"cmp"
	"slices"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// Digest is what the reader sees for one conversation.
type Digest struct {
	Conversation     slack.Conversation
	ConversationName string
	ConversationLink string
	Messages         []enrich.Message // chronological
	Summary          *string          // nil when summarization failed
	Dropped          int              // messages left out of the summary prompt
	MessageCount     int
	ParticipantCount int
}

// NewDigest builds a digest and counts its messages and distinct senders.
func NewDigest(conv slack.Conversation, name, link string, msgs []enrich.Message, summary *string, dropped int) Digest {
	senders := make(map[string]bool)
	for _, m := range msgs {
		senders[m.SenderName] = true
	}
	return Digest{
		Conversation:     conv,
		ConversationName: name,
		ConversationLink: link,
		Messages:         msgs,
		Summary:          summary,
		Dropped:          dropped,
		MessageCount:     len(msgs),
		ParticipantCount: len(senders),
	}
}

// Degraded reports whether the digest carries a preview instead of a summary.
func (d Digest) Degraded() bool { return d.Summary == nil }

// priority orders conversation kinds for the reader: DMs first, public
// channels last.
func priority(k slack.ConversationKind) int {
	switch k {
	case slack.KindDirect:
		return 0
	case slack.KindPrivate:
		return 1
	case slack.KindGroupDirect:
		return 2
	default:
		return 3
	}
}

// SortByPriority orders digests by kind priority, then busiest first, then
// conversation id.
func SortByPriority(ds []Digest) {
	slices.SortStableFunc(ds, func(a, b Digest) int {
		return cmp.Or(
			cmp.Compare(priority(a.Conversation.Kind), priority(b.Conversation.Kind)),
			cmp.Compare(b.MessageCount, a.MessageCount),
			cmp.Compare(a.Conversation.ID, b.Conversation.ID),
		)
	})
}

// Notification is the run's artifact: every successfully processed
// conversation plus aggregate counts.
type Notification struct {
	Date    string
	Digests []Digest
	Failed  int // conversations that could not be processed
}

// NewNotification sorts digests by priority.
func NewNotification(date string, digests []Digest, failed int) Notification {
	ds := slices.Clone(digests)
	SortByPriority(ds)
	return Notification{Date: date, Digests: ds, Failed: failed}
}

// TotalMessages sums the messages of every digest.
func (n Notification) TotalMessages() int {
	total := 0
	for _, d := range n.Digests {
		total += d.MessageCount
	}
	return total
}

// Degraded counts digests without an AI summary.
func (n Notification) Degraded() int {
	count := 0
	for _, d := range n.Digests {
		if d.Degraded() {
			count++
		}
	}
	return count
}

// Chunks splits the digests into groups of at most size, preserving order.
func (n Notification) Chunks(size int) [][]Digest {
	if size <= 0 {
		size = len(n.Digests)
	}
	var out [][]Digest
	for chunk := range slices.Chunk(n.Digests, max(size, 1)) {
		out = append(out, chunk)
	}
	return out
}
