package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	slackapi "github.com/rusq/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/channels"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/digest"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/fetch"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/readmark"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack/slacktest"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/summarize"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, req summarize.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + strings.SplitN(req.Prompt, "\n", 2)[0], nil
}

func ts(sec int) slack.Timestamp { return slack.Timestamp(fmt.Sprintf("%d.000000", sec)) }

// workspace has three joined public channels with unreads past ts(100).
func workspace() *slacktest.Fake {
	f := slacktest.New()
	f.Users["U1"] = &slack.User{ID: "U1", Name: "alice"}
	for _, id := range []string{"C1", "C2", "C3"} {
		f.AddConversation(slack.Conversation{
			ID: id, Kind: slack.KindPublic, Name: strings.ToLower(id), IsMember: true,
			LastRead: ts(100), Latest: ts(130), UnreadCount: 2,
		})
		f.AddMessages(id,
			slack.Message{TS: ts(90), UserID: "U1", Text: "old"},
			slack.Message{TS: ts(110), UserID: "U1", Text: "hello from " + id},
			slack.Message{TS: ts(130), UserID: "U1", Text: "bye from " + id},
		)
	}
	return f
}

type harness struct {
	fake      *slacktest.Fake
	completer *fakeCompleter
	marker    *readmark.Marker
	orch      *Orchestrator
}

func newHarness(t *testing.T, f *slacktest.Fake, opts Options) *harness {
	t.Helper()
	client := slacktest.NewClient(f)
	completer := &fakeCompleter{}
	marker := readmark.NewMarker(client, nil)
	if opts.Limits == (fetch.Limits{}) {
		opts.Limits = fetch.Limits{MaxMessages: 50, MaxThreadReplies: 10}
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 3
	}
	orch, err := NewOrchestrator(Components{
		Enumerator: channels.NewEnumerator(client),
		Fetcher:    fetch.NewFetcher(client, nil),
		Enricher:   enrich.NewEnricher(500, nil),
		Directory:  enrich.NewDirectory(client, nil, nil),
		Batcher:    summarize.NewBatcher(completer, summarize.Options{MaxPromptChars: 8000}, nil),
		Deliverer:  digest.NewDeliverer(client, "U1", 10, nil),
		Marker:     marker,
	}, opts, nil)
	require.NoError(t, err)
	orch.now = func() time.Time { return time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC) }
	return &harness{fake: f, completer: completer, marker: marker, orch: orch}
}

func sectionCount(t *testing.T, posts []slacktest.Post) int {
	t.Helper()
	n := 0
	for _, p := range posts {
		raw, err := json.Marshal(slackapi.Blocks{BlockSet: p.Message.Blocks})
		require.NoError(t, err)
		n += strings.Count(string(raw), "View Messages")
	}
	return n
}

func outcome(r *RunReport, id string) ConversationOutcome {
	for _, o := range r.Outcomes {
		if o.Conversation.ID == id {
			return o
		}
	}
	return ConversationOutcome{}
}

func TestRun_AllSucceed(t *testing.T) {
	h := newHarness(t, workspace(), Options{Timezone: "America/New_York"})

	report := h.orch.Run(context.Background())

	require.NoError(t, report.Fatal)
	assert.Equal(t, RunSucceeded, report.Status())
	assert.Equal(t, "Thursday, October 15, 2026", report.Date)
	assert.Equal(t, 3, report.Delivered())
	assert.Equal(t, 3, report.MarkedRead())
	assert.Equal(t, 6, report.Messages())
	for _, o := range report.Outcomes {
		assert.Equal(t, StateDone, o.State, o.Conversation.ID)
	}
	assert.ElementsMatch(t, []slacktest.Mark{
		{ChannelID: "C1", TS: ts(130)}, {ChannelID: "C2", TS: ts(130)}, {ChannelID: "C3", TS: ts(130)},
	}, h.fake.Marks())
	assert.Equal(t, 3, sectionCount(t, h.fake.Posts()))
	assert.Equal(t, 3, h.completer.calls)
}

func TestRun_FetchFailureIsolated(t *testing.T) {
	f := workspace()
	f.Fail("conversations.history", "C2", slackapi.SlackErrorResponse{Err: "channel_not_found"})
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	require.NoError(t, report.Fatal)
	assert.Equal(t, RunPartial, report.Status())
	assert.Equal(t, 2, sectionCount(t, f.Posts()))
	c2 := outcome(report, "C2")
	assert.Equal(t, StateFetchFailed, c2.State)
	assert.Equal(t, OutcomeFailed, c2.Outcome)
	for _, m := range f.Marks() {
		assert.NotEqual(t, "C2", m.ChannelID, "undelivered conversation must stay unread")
	}
	assert.Len(t, f.Marks(), 2)
	require.NotNil(t, report.Notification)
	assert.Equal(t, 1, report.Notification.Failed)
}

func TestRun_NoMarkWithoutDelivery(t *testing.T) {
	f := workspace()
	f.Fail("chat.postMessage", "", slackapi.SlackErrorResponse{Err: "channel_not_found"})
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	assert.Empty(t, f.Marks())
	assert.Equal(t, RunFailed, report.Status())
	for _, o := range report.Outcomes {
		assert.Equal(t, StateDeliveryFailed, o.State)
	}
	cur, _ := h.marker.Cursor("C1")
	assert.NotEqual(t, ts(130), cur)
}

func TestRun_SummaryDegradedStillMarked(t *testing.T) {
	h := newHarness(t, workspace(), Options{})
	h.completer.err = &summarize.CompletionError{Kind: summarize.KindServiceUnavailable}

	report := h.orch.Run(context.Background())

	assert.Equal(t, RunPartial, report.Status())
	assert.Equal(t, 3, report.Degraded())
	assert.Equal(t, 3, report.MarkedRead())
	require.NotNil(t, report.Notification)
	for _, d := range report.Notification.Digests {
		assert.Nil(t, d.Summary)
	}
	for _, o := range report.Outcomes {
		assert.Equal(t, OutcomePartial, o.Outcome)
		assert.Equal(t, StateDone, o.State)
	}
}

func TestRun_AllCaughtUp(t *testing.T) {
	f := slacktest.New()
	f.AddConversation(slack.Conversation{ID: "C1", Kind: slack.KindPublic, IsMember: true, LastRead: ts(100), Latest: ts(100)})
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	assert.Equal(t, RunSucceeded, report.Status())
	assert.Empty(t, report.Outcomes)
	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Message.Text, "All caught up")
	assert.Zero(t, h.completer.calls)
}

func TestRun_EmptyConversationMarkedWithoutSection(t *testing.T) {
	f := workspace()
	// C3's unread messages are only system events.
	f.Messages["C3"] = nil
	f.AddMessages("C3", slack.Message{TS: ts(120), SubType: "channel_join", Text: "joined"})
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	assert.Equal(t, RunSucceeded, report.Status())
	c3 := outcome(report, "C3")
	assert.Equal(t, StateEmpty, c3.State)
	assert.True(t, c3.Marked)
	assert.Equal(t, 2, sectionCount(t, f.Posts()))
	assert.Contains(t, f.Marks(), slacktest.Mark{ChannelID: "C3", TS: ts(130)})
	assert.Len(t, f.Marks(), 3)

	// The next run finds nothing new in C3.
	again := h.orch.Run(context.Background())
	assert.False(t, outcome(again, "C3").Marked)
	assert.Len(t, f.Marks(), 3)
}

func TestRun_OnlyEmptyConversations(t *testing.T) {
	f := workspace()
	for _, id := range []string{"C1", "C2", "C3"} {
		f.Messages[id] = []slack.Message{{TS: ts(120), SubType: "channel_join", Text: "joined"}}
	}
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	assert.Equal(t, RunSucceeded, report.Status())
	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Message.Text, "All caught up")
	assert.Len(t, f.Marks(), 3)
	assert.Zero(t, h.completer.calls)
}

func TestRun_EveryConversationFailedSendsNotice(t *testing.T) {
	f := workspace()
	for _, id := range []string{"C1", "C2", "C3"} {
		f.Fail("conversations.history", id, slackapi.SlackErrorResponse{Err: "channel_not_found"})
	}
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	require.NoError(t, report.Fatal)
	assert.Equal(t, RunFailed, report.Status())
	assert.Equal(t, 3, report.Failed())
	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Message.Text, "failed")
	assert.Equal(t, 0, sectionCount(t, posts))
	assert.Empty(t, f.Marks())
}

func TestRun_FatalEnumerationSendsErrorNotice(t *testing.T) {
	f := workspace()
	f.Fail("conversations.list", "", slackapi.SlackErrorResponse{Err: "invalid_auth"})
	h := newHarness(t, f, Options{})

	report := h.orch.Run(context.Background())

	var enumErr *channels.EnumerationError
	require.ErrorAs(t, report.Fatal, &enumErr)
	assert.Equal(t, RunFailed, report.Status())
	assert.Equal(t, 1, report.Status().ExitCode())
	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Message.Text, "failed")
	assert.Empty(t, f.Marks())
}

func TestRun_AuthFailureDuringFetchIsFatal(t *testing.T) {
	f := workspace()
	f.Fail("conversations.history", "C2", slackapi.SlackErrorResponse{Err: "token_revoked"})
	h := newHarness(t, f, Options{Concurrency: 1})

	report := h.orch.Run(context.Background())

	require.Error(t, report.Fatal)
	assert.True(t, slack.IsAuth(report.Fatal))
	assert.Equal(t, RunFailed, report.Status())
	assert.Empty(t, f.Marks())
	assert.Equal(t, 0, sectionCount(t, f.Posts()))
}

func TestRun_DryRunNeitherDeliversNorMarks(t *testing.T) {
	f := workspace()
	h := newHarness(t, f, Options{DryRun: true})

	report := h.orch.Run(context.Background())

	assert.Equal(t, RunSucceeded, report.Status())
	require.NotNil(t, report.Notification)
	assert.Len(t, report.Notification.Digests, 3)
	assert.Empty(t, f.Posts())
	assert.Empty(t, f.Marks())
}

func TestRun_SkipMarkRead(t *testing.T) {
	f := workspace()
	h := newHarness(t, f, Options{SkipMarkRead: true})

	report := h.orch.Run(context.Background())

	assert.Equal(t, RunSucceeded, report.Status())
	assert.Equal(t, 3, report.Delivered())
	assert.Empty(t, f.Marks())
}

func TestRun_MarkingIsIdempotentAcrossRuns(t *testing.T) {
	f := workspace()
	h := newHarness(t, f, Options{})

	first := h.orch.Run(context.Background())
	// Nothing new arrived, but the fake still reports the old cursor: the
	// marker's store keeps the second run from marking again.
	second := h.orch.Run(context.Background())

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 3, first.MarkedRead())
	assert.Zero(t, second.MarkedRead())
	assert.Len(t, f.Marks(), 3)
}

func TestNewOrchestrator_RequiresComponents(t *testing.T) {
	_, err := NewOrchestrator(Components{}, Options{}, nil)
	assert.Error(t, err)
}

func TestRunStatus_ExitCodes(t *testing.T) {
	assert.Equal(t, 0, RunSucceeded.ExitCode())
	assert.Equal(t, 1, RunFailed.ExitCode())
	assert.Equal(t, 2, RunPartial.ExitCode())
}
