package slack

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
)

// Client serializes access to the Slack API for every worker in a run: one
// pacing limiter, one cool-down gate that a Retry-After from any call closes
// for everyone, and a retry policy around each call.
type Client struct {
	api     API
	limiter *rate.Limiter
	gate    *coolDown
	policy  RetryPolicy
	log     *logger.Logger
	onRetry func(RetryEvent)
}

// RetryEvent describes one scheduled retry.
type RetryEvent struct {
	Endpoint string
	Attempt  int // attempt that failed, starting at 1
	Wait     time.Duration
	Err      *APIError
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithPacing spaces calls at least interval apart. Zero disables pacing.
func WithPacing(interval time.Duration) Option {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithRetryObserver registers fn to be called before every retry wait.
func WithRetryObserver(fn func(RetryEvent)) Option {
	return func(c *Client) { c.onRetry = fn }
}

// NewClient wraps api. Without options calls are paced one per second and
// retried per DefaultRetryPolicy.
func NewClient(api API, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		gate:    newCoolDown(),
		policy:  DefaultRetryPolicy(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAPI returns a client for a different token that shares this client's
// pacing and cool-down state.
func (c *Client) WithAPI(api API) *Client {
	clone := *c
	clone.api = api
	return &clone
}

// retryAfterHint carries a platform delay to backoff.Retry while keeping the
// classified error reachable through errors.As.
type retryAfterHint struct {
	err   *APIError
	after *backoff.RetryAfterError
}

func (h *retryAfterHint) Error() string   { return h.err.Error() }
func (h *retryAfterHint) Unwrap() []error { return []error{h.err, h.after} }

// Call runs fn against the client's API under pacing, the shared cool-down
// and the retry policy. Errors come back as *APIError, or as the context error
// when ctx ends first.
func Call[T any](ctx context.Context, c *Client, endpoint string, fn func(context.Context, API) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		var zero T
		attempt++
		if err := c.gate.wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		res, err := fn(ctx, c.api)
		if err == nil {
			return res, nil
		}
		apiErr := Classify(endpoint, err)
		switch apiErr.Kind {
		case KindRateLimited:
			if apiErr.RetryAfter > 0 {
				c.gate.pause(apiErr.RetryAfter)
				return zero, &retryAfterHint{err: apiErr, after: &backoff.RetryAfterError{Duration: apiErr.RetryAfter}}
			}
			return zero, apiErr
		case KindTransient:
			return zero, apiErr
		default:
			return zero, backoff.Permanent(apiErr)
		}
	}

	notify := func(err error, wait time.Duration) {
		apiErr := Classify(endpoint, err)
		c.log.Warn("slack call failed, retrying",
			"endpoint", endpoint, "attempt", attempt, "kind", apiErr.Kind.String(), "wait", wait, "error", err)
		if c.onRetry != nil {
			c.onRetry(RetryEvent{Endpoint: endpoint, Attempt: attempt, Wait: wait, Err: apiErr})
		}
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.policy.newBackOff()),
		backoff.WithMaxTries(uint(max(c.policy.MaxRetries, 0)+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return res, apiErr
		}
		return res, err
	}
	return res, nil
}

// ListConversations pages through every conversation of the given kinds.
func (c *Client) ListConversations(ctx context.Context, kinds []ConversationKind) ([]Conversation, error) {
	var all []Conversation
	cursor := ""
	for {
		page, err := Call(ctx, c, "conversations.list", func(ctx context.Context, api API) (ConversationPage, error) {
			return api.ListConversations(ctx, kinds, cursor)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Conversations...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// ConversationInfo reads one conversation with its unread state.
func (c *Client) ConversationInfo(ctx context.Context, channelID string) (Conversation, error) {
	return Call(ctx, c, "conversations.info", func(ctx context.Context, api API) (Conversation, error) {
		return api.ConversationInfo(ctx, channelID)
	})
}

// History reads one page of conversations.history.
func (c *Client) History(ctx context.Context, req HistoryRequest) (MessagePage, error) {
	return Call(ctx, c, "conversations.history", func(ctx context.Context, api API) (MessagePage, error) {
		return api.History(ctx, req)
	})
}

// Replies reads one page of a thread.
func (c *Client) Replies(ctx context.Context, req RepliesRequest) (MessagePage, error) {
	return Call(ctx, c, "conversations.replies", func(ctx context.Context, api API) (MessagePage, error) {
		return api.Replies(ctx, req)
	})
}

// FetchUserInfo looks up one user; it satisfies UserFetcher.
func (c *Client) FetchUserInfo(ctx context.Context, userID string) (*User, error) {
	return Call(ctx, c, "users.info", func(ctx context.Context, api API) (*User, error) {
		return api.UserInfo(ctx, userID)
	})
}

// TeamInfo returns the workspace, including its domain.
func (c *Client) TeamInfo(ctx context.Context) (*Team, error) {
	return Call(ctx, c, "team.info", func(ctx context.Context, api API) (*Team, error) {
		return api.TeamInfo(ctx)
	})
}

// Mark moves the read cursor of a conversation to ts.
func (c *Client) Mark(ctx context.Context, channelID string, ts Timestamp) error {
	_, err := Call(ctx, c, "conversations.mark", func(ctx context.Context, api API) (struct{}, error) {
		return struct{}{}, api.Mark(ctx, channelID, ts)
	})
	return err
}

// OpenDM opens (or reuses) the DM with userID and returns its channel ID.
func (c *Client) OpenDM(ctx context.Context, userID string) (string, error) {
	return Call(ctx, c, "conversations.open", func(ctx context.Context, api API) (string, error) {
		return api.OpenDM(ctx, userID)
	})
}

// PostMessage sends msg and returns its ts.
func (c *Client) PostMessage(ctx context.Context, channelID string, msg OutgoingMessage) (Timestamp, error) {
	return Call(ctx, c, "chat.postMessage", func(ctx context.Context, api API) (Timestamp, error) {
		return api.PostMessage(ctx, channelID, msg)
	})
}

// coolDown blocks callers until a platform-advertised pause has elapsed.
type coolDown struct {
	mu    sync.Mutex
	until time.Time
}

func newCoolDown() *coolDown { return &coolDown{} }

func (g *coolDown) pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := time.Now().Add(d); t.After(g.until) {
		g.until = t
	}
}

func (g *coolDown) remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Until(g.until)
}

func (g *coolDown) wait(ctx context.Context) error {
	for {
		d := g.remaining()
		if d <= 0 {
			return ctx.Err()
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
