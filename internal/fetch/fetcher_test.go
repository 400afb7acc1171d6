package fetch

import (
	"context"
	"fmt"
	"testing"

	slackapi "github.com/rusq/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack/slacktest"
)

func ts(sec int) slack.Timestamp {
	return slack.Timestamp(fmt.Sprintf("%d.000000", sec))
}

func tsList(msgs []slack.Message) []slack.Timestamp {
	out := make([]slack.Timestamp, len(msgs))
	for i, m := range msgs {
		out[i] = m.TS
	}
	return out
}

var general = slack.Conversation{ID: "C1", Kind: slack.KindPublic, Name: "general", LastRead: ts(100)}

func TestFetchUnread_ChronologicalWithThreads(t *testing.T) {
	f := slacktest.New()
	f.PageSize = 2
	f.AddMessages("C1",
		slack.Message{TS: ts(90), Text: "already read"},
		slack.Message{TS: ts(110), Text: "first", UserID: "U1"},
		slack.Message{TS: ts(120), Text: "question", UserID: "U2", ThreadTS: ts(120), ReplyCount: 2},
		slack.Message{TS: ts(130), Text: "joined", SubType: "channel_join"},
		slack.Message{TS: ts(140), Text: "last", UserID: "U1"},
	)
	f.AddReplies("C1", ts(120),
		slack.Message{TS: ts(125), Text: "answer", UserID: "U3"},
		slack.Message{TS: ts(150), Text: "thanks", UserID: "U2"},
	)

	msgs, err := NewFetcher(slacktest.NewClient(f), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: 50, MaxThreadReplies: 10})

	require.NoError(t, err)
	assert.Equal(t, []slack.Timestamp{ts(110), ts(120), ts(125), ts(150), ts(140)}, tsList(msgs))
	assert.Equal(t, ts(120), msgs[2].ParentTS)
	assert.True(t, msgs[2].IsReply())
	// Two per page: four unread top-level messages and a root plus two replies.
	assert.Equal(t, 2, f.Calls("conversations.history"))
	assert.Equal(t, 2, f.Calls("conversations.replies"))
}

func TestFetchUnread_KeepsNewestWhenCapped(t *testing.T) {
	f := slacktest.New()
	for i := 1; i <= 8; i++ {
		f.AddMessages("C1", slack.Message{TS: ts(100 + i), Text: "m"})
	}
	f.Messages["C1"][7].ThreadTS = ts(108)
	f.Messages["C1"][7].ReplyCount = 5
	for i := 1; i <= 5; i++ {
		f.AddReplies("C1", ts(108), slack.Message{TS: ts(200 + i), Text: "r"})
	}

	msgs, err := NewFetcher(slacktest.NewClient(f), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: 3, MaxThreadReplies: 2})

	require.NoError(t, err)
	assert.Equal(t, []slack.Timestamp{ts(106), ts(107), ts(108), ts(204), ts(205)}, tsList(msgs))
}

// overlappingHistory serves fixed newest-first pages whose edges repeat a
// message, the way history can shift while it is being paged.
type overlappingHistory struct {
	*slacktest.Fake
	pages [][]slack.Message
}

func (o *overlappingHistory) History(_ context.Context, req slack.HistoryRequest) (slack.MessagePage, error) {
	i := 0
	if req.Cursor != "" {
		fmt.Sscan(req.Cursor, &i)
	}
	page := slack.MessagePage{Messages: o.pages[i]}
	if i+1 < len(o.pages) {
		page.HasMore = true
		page.NextCursor = fmt.Sprint(i + 1)
	}
	return page, nil
}

func overlapping() *overlappingHistory {
	msg := func(sec int) slack.Message { return slack.Message{ConversationID: "C1", TS: ts(sec), Text: "m"} }
	return &overlappingHistory{
		Fake: slacktest.New(),
		pages: [][]slack.Message{
			{msg(105), msg(104), msg(103)},
			{msg(103), msg(102), msg(101)},
		},
	}
}

func TestFetchUnread_OverlappingPages(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  []slack.Timestamp
	}{
		{"uncapped", 50, []slack.Timestamp{ts(101), ts(102), ts(103), ts(104), ts(105)}},
		{"cap counts unique messages", 5, []slack.Timestamp{ts(101), ts(102), ts(103), ts(104), ts(105)}},
		{"cap keeps newest", 4, []slack.Timestamp{ts(102), ts(103), ts(104), ts(105)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := NewFetcher(slacktest.NewClient(overlapping()), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: tt.limit, MaxThreadReplies: 10})

			require.NoError(t, err)
			assert.Equal(t, tt.want, tsList(msgs))
		})
	}
}

func TestFetchUnread_DedupsBroadcastReplies(t *testing.T) {
	f := slacktest.New()
	f.AddMessages("C1",
		slack.Message{TS: ts(110), Text: "root", ThreadTS: ts(110), ReplyCount: 1},
		// thread_broadcast shows up both in history and in the thread
		slack.Message{TS: ts(115), Text: "broadcast", ThreadTS: ts(110), ParentTS: ts(110), SubType: "thread_broadcast"},
	)
	f.AddReplies("C1", ts(110), slack.Message{TS: ts(115), Text: "broadcast", SubType: "thread_broadcast"})

	msgs, err := NewFetcher(slacktest.NewClient(f), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: 50, MaxThreadReplies: 10})

	require.NoError(t, err)
	assert.Equal(t, []slack.Timestamp{ts(110), ts(115)}, tsList(msgs))
	assert.True(t, msgs[1].IsReply())
}

func TestFetchUnread_HistoryFailure(t *testing.T) {
	f := slacktest.New()
	f.AddMessages("C1", slack.Message{TS: ts(110)})
	f.Fail("conversations.history", "C1", slackapi.SlackErrorResponse{Err: "channel_not_found"})

	msgs, err := NewFetcher(slacktest.NewClient(f), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: 50})

	assert.Nil(t, msgs)
	require.Error(t, err)
	assert.Equal(t, "channel_not_found", slack.ErrorCode(err))
}

func TestFetchUnread_ThreadFailureDropsOnlyReplies(t *testing.T) {
	f := slacktest.New()
	f.AddMessages("C1",
		slack.Message{TS: ts(110), ThreadTS: ts(110), ReplyCount: 1},
		slack.Message{TS: ts(120)},
	)
	f.AddReplies("C1", ts(110), slack.Message{TS: ts(111)})
	f.Fail("conversations.replies", "C1", slackapi.SlackErrorResponse{Err: "thread_not_found"})

	msgs, err := NewFetcher(slacktest.NewClient(f), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: 50, MaxThreadReplies: 10})

	require.NoError(t, err)
	assert.Equal(t, []slack.Timestamp{ts(110), ts(120)}, tsList(msgs))
}

func TestFetchUnread_TransientFailureRetried(t *testing.T) {
	f := slacktest.New()
	f.AddMessages("C1", slack.Message{TS: ts(110)})
	f.Fail("conversations.history", "C1", slackapi.StatusCodeError{Code: 503})

	msgs, err := NewFetcher(slacktest.NewClient(f), nil).FetchUnread(context.Background(), general, general.LastRead, Limits{MaxMessages: 50})

	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 2, f.Calls("conversations.history"))
}

func TestDedup(t *testing.T) {
	msgs := []slack.Message{
		{ConversationID: "C1", TS: ts(1), Text: "first"},
		{ConversationID: "C1", TS: ts(1), Text: "second"},
		{ConversationID: "C2", TS: ts(1), Text: "other conversation"},
	}

	out := Dedup(msgs)

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Text)
	assert.Equal(t, "C2", out[1].ConversationID)
}
