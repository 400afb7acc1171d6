// Package channels discovers the conversations a user has unreads in and
// narrows them with include/exclude glob patterns.
package channels

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// EnumerationError means the conversation list could not be built. It is
// fatal for a run.
type EnumerationError struct {
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerating conversations: %v", e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// Enumerator lists conversations with unread messages.
type Enumerator struct {
	client *slack.Client
	edge   *slack.EdgeClient
	filter *Filter
	log    *logger.Logger
}

// EnumeratorOption configures an Enumerator.
type EnumeratorOption func(*Enumerator)

// WithEdge reads unread state from one client.userBoot and one client.counts
// call instead of conversations.list plus conversations.info per
// conversation. Requires session credentials.
func WithEdge(edge *slack.EdgeClient) EnumeratorOption {
	return func(e *Enumerator) { e.edge = edge }
}

// WithFilter applies include/exclude patterns before unread state is fetched.
func WithFilter(f *Filter) EnumeratorOption {
	return func(e *Enumerator) { e.filter = f }
}

// WithLogger sets the logger; nil discards.
func WithLogger(l *logger.Logger) EnumeratorOption {
	return func(e *Enumerator) { e.log = logger.OrNop(l) }
}

// NewEnumerator returns an Enumerator over the Web API unless WithEdge is given.
func NewEnumerator(client *slack.Client, opts ...EnumeratorOption) *Enumerator {
	e := &Enumerator{client: client, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListConversations returns every conversation with unreads, ordered by kind
// (public, private, DM, group DM) then ID.
func (e *Enumerator) ListConversations(ctx context.Context) ([]slack.Conversation, error) {
	var (
		convs []slack.Conversation
		err   error
	)
	if e.edge != nil {
		convs, err = e.listEdge(ctx)
	} else {
		convs, err = e.listWeb(ctx)
	}
	if err != nil {
		return nil, &EnumerationError{Err: err}
	}

	unread := make([]slack.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.HasUnreads() {
			unread = append(unread, c)
		}
	}
	slices.SortStableFunc(unread, func(a, b slack.Conversation) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.ID, b.ID))
	})

	e.log.Info("enumerated conversations", "scanned", len(convs), "unread", len(unread), "edge", e.edge != nil)
	return unread, nil
}

func (e *Enumerator) listWeb(ctx context.Context) ([]slack.Conversation, error) {
	all, err := e.client.ListConversations(ctx, slack.AllKinds)
	if err != nil {
		return nil, err
	}

	joined := make([]slack.Conversation, 0, len(all))
	for _, c := range all {
		// conversations.list returns every public channel, joined or not.
		if (c.Kind == slack.KindPublic || c.Kind == slack.KindPrivate) && !c.IsMember {
			continue
		}
		joined = append(joined, c)
	}
	joined = e.filter.Apply(joined)

	out := make([]slack.Conversation, 0, len(joined))
	for _, c := range joined {
		info, err := e.client.ConversationInfo(ctx, c.ID)
		if err != nil {
			// A conversation left out here would never be reported or retried.
			return nil, fmt.Errorf("unread state of %s: %w", c.ID, err)
		}
		c.LastRead = info.LastRead
		c.Latest = info.Latest
		c.UnreadCount = info.UnreadCount
		out = append(out, c)
	}
	return out, nil
}

func (e *Enumerator) listEdge(ctx context.Context) ([]slack.Conversation, error) {
	boot, err := slack.Call(ctx, e.client, "client.userBoot", func(ctx context.Context, _ slack.API) (*slack.UserBootResponse, error) {
		return e.edge.UserBoot(ctx)
	})
	if err != nil {
		return nil, err
	}
	counts, err := slack.Call(ctx, e.client, "client.counts", func(ctx context.Context, _ slack.API) (*slack.CountsResponse, error) {
		return e.edge.Counts(ctx)
	})
	if err != nil {
		return nil, err
	}

	convs := e.filter.Apply(boot.Conversations())
	snaps := counts.Snapshots()
	for i := range convs {
		if s, ok := snaps[convs[i].ID]; ok {
			s.ApplyTo(&convs[i])
		}
	}
	return convs, nil
}
