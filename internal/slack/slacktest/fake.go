// Package slacktest provides an in-memory slack.API for tests.
package slacktest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// Mark records one conversations.mark call.
type Mark struct {
	ChannelID string
	TS        slack.Timestamp
}

// Post records one chat.postMessage call.
type Post struct {
	ChannelID string
	Message   slack.OutgoingMessage
}

// Fake is a workspace held in memory. Populate the exported fields before use;
// calls are safe from multiple goroutines.
type Fake struct {
	Conversations []slack.Conversation
	Messages      map[string][]slack.Message                     // channel -> top-level messages
	Replies       map[string]map[slack.Timestamp][]slack.Message // channel -> root ts -> replies
	Users         map[string]*slack.User
	Team          slack.Team
	PageSize      int

	mu     sync.Mutex
	errs   map[string][]error
	calls  map[string]int
	marks  []Mark
	posts  []Post
	postTS int64
}

// New returns an empty fake workspace with domain "acme".
func New() *Fake {
	return &Fake{
		Messages: make(map[string][]slack.Message),
		Replies:  make(map[string]map[slack.Timestamp][]slack.Message),
		Users:    make(map[string]*slack.User),
		Team:     slack.Team{ID: "T1", Name: "Acme", Domain: "acme"},
		PageSize: 100,
	}
}

// NewClient wraps api in a slack.Client with no pacing and millisecond
// retries.
func NewClient(api slack.API, opts ...slack.Option) *slack.Client {
	base := []slack.Option{
		slack.WithPacing(0),
		slack.WithRetryPolicy(slack.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond}),
	}
	return slack.NewClient(api, append(base, opts...)...)
}

// AddConversation registers c.
func (f *Fake) AddConversation(c slack.Conversation) {
	f.Conversations = append(f.Conversations, c)
}

// AddMessages appends top-level messages to channel.
func (f *Fake) AddMessages(channel string, msgs ...slack.Message) {
	for i := range msgs {
		msgs[i].ConversationID = channel
	}
	f.Messages[channel] = append(f.Messages[channel], msgs...)
}

// AddReplies appends replies to the thread rooted at root.
func (f *Fake) AddReplies(channel string, root slack.Timestamp, msgs ...slack.Message) {
	if f.Replies[channel] == nil {
		f.Replies[channel] = make(map[slack.Timestamp][]slack.Message)
	}
	for i := range msgs {
		msgs[i].ConversationID = channel
		msgs[i].ThreadTS = root
		msgs[i].ParentTS = root
	}
	f.Replies[channel][root] = append(f.Replies[channel][root], msgs...)
}

// Fail queues errs to be returned, one per call, by endpoint for channel. An
// empty channel matches calls for any channel.
func (f *Fake) Fail(endpoint, channel string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string][]error)
	}
	key := endpoint + ":" + channel
	f.errs[key] = append(f.errs[key], errs...)
}

// Calls returns how many times endpoint was invoked.
func (f *Fake) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

// Marks returns the recorded conversations.mark calls.
func (f *Fake) Marks() []Mark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.marks)
}

// Posts returns the recorded chat.postMessage calls.
func (f *Fake) Posts() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.posts)
}

func (f *Fake) enter(endpoint, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[endpoint]++
	for _, key := range []string{endpoint + ":" + channel, endpoint + ":"} {
		if q := f.errs[key]; len(q) > 0 {
			f.errs[key] = q[1:]
			return q[0]
		}
	}
	return nil
}

func (f *Fake) pageSize(limit int) int {
	switch {
	case limit > 0 && (f.PageSize <= 0 || limit < f.PageSize):
		return limit
	case f.PageSize > 0:
		return f.PageSize
	default:
		return 100
	}
}

func page[T any](items []T, cursor string, size int) ([]T, string) {
	start, _ := strconv.Atoi(cursor)
	if start >= len(items) {
		return nil, ""
	}
	end := min(start+size, len(items))
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[start:end], next
}

func (f *Fake) ListConversations(ctx context.Context, kinds []slack.ConversationKind, cursor string) (slack.ConversationPage, error) {
	if err := f.enter("conversations.list", ""); err != nil {
		return slack.ConversationPage{}, err
	}
	var matched []slack.Conversation
	for _, c := range f.Conversations {
		if slices.Contains(kinds, c.Kind) {
			matched = append(matched, c)
		}
	}
	items, next := page(matched, cursor, f.pageSize(0))
	return slack.ConversationPage{Conversations: items, NextCursor: next}, nil
}

func (f *Fake) ConversationInfo(ctx context.Context, channelID string) (slack.Conversation, error) {
	if err := f.enter("conversations.info", channelID); err != nil {
		return slack.Conversation{}, err
	}
	for _, c := range f.Conversations {
		if c.ID == channelID {
			return c, nil
		}
	}
	return slack.Conversation{}, errors.New("channel_not_found")
}

func (f *Fake) History(ctx context.Context, req slack.HistoryRequest) (slack.MessagePage, error) {
	if err := f.enter("conversations.history", req.ChannelID); err != nil {
		return slack.MessagePage{}, err
	}
	var newer []slack.Message
	for _, m := range f.Messages[req.ChannelID] {
		if m.TS.After(req.Oldest) {
			newer = append(newer, m)
		}
	}
	slices.SortStableFunc(newer, func(a, b slack.Message) int { return b.TS.Compare(a.TS) })
	items, next := page(newer, req.Cursor, f.pageSize(req.Limit))
	return slack.MessagePage{Messages: items, HasMore: next != "", NextCursor: next}, nil
}

func (f *Fake) Replies(ctx context.Context, req slack.RepliesRequest) (slack.MessagePage, error) {
	if err := f.enter("conversations.replies", req.ChannelID); err != nil {
		return slack.MessagePage{}, err
	}
	var thread []slack.Message
	for _, m := range f.Messages[req.ChannelID] {
		if m.TS == req.ThreadTS {
			thread = append(thread, m)
			break
		}
	}
	var replies []slack.Message
	for _, m := range f.Replies[req.ChannelID][req.ThreadTS] {
		if m.TS.After(req.Oldest) {
			replies = append(replies, m)
		}
	}
	slices.SortStableFunc(replies, func(a, b slack.Message) int { return a.TS.Compare(b.TS) })
	thread = append(thread, replies...)
	items, next := page(thread, req.Cursor, f.pageSize(req.Limit))
	return slack.MessagePage{Messages: items, HasMore: next != "", NextCursor: next}, nil
}

func (f *Fake) UserInfo(ctx context.Context, userID string) (*slack.User, error) {
	if err := f.enter("users.info", userID); err != nil {
		return nil, err
	}
	if u, ok := f.Users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errors.New("user_not_found")
}

func (f *Fake) TeamInfo(ctx context.Context) (*slack.Team, error) {
	if err := f.enter("team.info", ""); err != nil {
		return nil, err
	}
	t := f.Team
	return &t, nil
}

func (f *Fake) Mark(ctx context.Context, channelID string, ts slack.Timestamp) error {
	if err := f.enter("conversations.mark", channelID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, Mark{ChannelID: channelID, TS: ts})
	return nil
}

func (f *Fake) OpenDM(ctx context.Context, userID string) (string, error) {
	if err := f.enter("conversations.open", userID); err != nil {
		return "", err
	}
	return "D" + userID, nil
}

func (f *Fake) PostMessage(ctx context.Context, channelID string, msg slack.OutgoingMessage) (slack.Timestamp, error) {
	if err := f.enter("chat.postMessage", channelID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, Post{ChannelID: channelID, Message: msg})
	f.postTS++
	return slack.Timestamp(fmt.Sprintf("%d.000000", 1800000000+f.postTS)), nil
}

var _ slack.API = (*Fake)(nil)
