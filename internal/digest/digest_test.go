package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	slackapi "github.com/rusq/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack/slacktest"
)

func messages(n int, senders ...string) []enrich.Message {
	out := make([]enrich.Message, n)
	for i := range out {
		out[i] = enrich.Message{
			Message:    slack.Message{TS: slack.Timestamp(fmt.Sprintf("%d.000000", 100+i))},
			SenderName: senders[i%len(senders)],
			Body:       fmt.Sprintf("message %d", i),
		}
	}
	return out
}

func summary(s string) *string { return &s }

func digestFor(id string, kind slack.ConversationKind, n int) Digest {
	conv := slack.Conversation{ID: id, Kind: kind, Name: strings.ToLower(id)}
	return NewDigest(conv, "#"+conv.Name, "https://acme.slack.com/archives/"+id, messages(n, "alice", "bob"), summary("s-"+id), 0)
}

// blockJSON flattens rendered blocks so assertions can look at the text.
func blockJSON(t *testing.T, msg slack.OutgoingMessage) string {
	t.Helper()
	raw, err := json.Marshal(slackapi.Blocks{BlockSet: msg.Blocks})
	require.NoError(t, err)
	return string(raw)
}

func TestNewDigest_Counts(t *testing.T) {
	d := NewDigest(slack.Conversation{ID: "C1"}, "#eng", "", messages(5, "alice", "bob", "carol"), nil, 2)

	assert.Equal(t, 5, d.MessageCount)
	assert.Equal(t, 3, d.ParticipantCount)
	assert.Equal(t, 2, d.Dropped)
	assert.True(t, d.Degraded())
}

func TestNewNotification_PriorityOrder(t *testing.T) {
	n := NewNotification("Monday, October 05, 2026", []Digest{
		digestFor("C1", slack.KindPublic, 9),
		digestFor("G1", slack.KindGroupDirect, 1),
		digestFor("C2", slack.KindPublic, 12),
		digestFor("P1", slack.KindPrivate, 2),
		digestFor("D1", slack.KindDirect, 1),
		digestFor("D2", slack.KindDirect, 4),
	}, 0)

	var got []string
	for _, d := range n.Digests {
		got = append(got, d.Conversation.ID)
	}
	assert.Equal(t, []string{"D2", "D1", "P1", "G1", "C2", "C1"}, got)
	assert.Equal(t, 29, n.TotalMessages())
}

func TestChunks(t *testing.T) {
	var ds []Digest
	for i := range 7 {
		ds = append(ds, digestFor(fmt.Sprintf("C%d", i), slack.KindPublic, 1))
	}
	n := Notification{Digests: ds}

	chunks := n.Chunks(3)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, Notification{}.Chunks(3))
}

func TestRender(t *testing.T) {
	degraded := NewDigest(slack.Conversation{ID: "D1", Kind: slack.KindDirect}, "DM with Bobby", "https://acme.slack.com/archives/D1",
		messages(5, "bob"), nil, 0)
	n := NewNotification("Monday, October 05, 2026", []Digest{digestFor("C1", slack.KindPublic, 2), degraded}, 1)

	msg := n.Render(n.Digests, 1, 1)
	out := blockJSON(t, msg)

	assert.Equal(t, "Slack digest for Monday, October 05, 2026: 2 conversations", msg.Text)
	assert.Contains(t, out, "Slack digest for Monday, October 05, 2026")
	assert.Contains(t, out, "*DM with Bobby* · 5 messages from 1 person")
	assert.Contains(t, out, "_Summary unavailable. First messages:_")
	assert.Contains(t, out, "…and 2 more messages")
	assert.NotContains(t, out, "message 3")
	assert.Contains(t, out, "s-C1")
	assert.Contains(t, out, `"url":"https://acme.slack.com/archives/C1"`)
	assert.Contains(t, out, "View Messages")
	assert.Contains(t, out, "7 messages in 2 conversations · 1 conversation without AI summary · 1 conversation could not be read")
}

func TestRender_LaterPartsHaveNoHeader(t *testing.T) {
	n := NewNotification("Monday, October 05, 2026", []Digest{digestFor("C1", slack.KindPublic, 1), digestFor("C2", slack.KindPublic, 1)}, 0)

	first := blockJSON(t, n.Render(n.Digests[:1], 1, 2))
	second := blockJSON(t, n.Render(n.Digests[1:], 2, 2))

	assert.Contains(t, first, `"type":"header"`)
	assert.NotContains(t, first, "messages in")
	assert.NotContains(t, second, `"type":"header"`)
	assert.Contains(t, second, "continued (2/2)")
	assert.Contains(t, second, "2 messages in 2 conversations")
}

func TestPreview_ShortensBodies(t *testing.T) {
	msgs := messages(1, "alice")
	msgs[0].Body = strings.Repeat("a", 250)

	out := Preview(msgs)

	assert.Contains(t, out, enrich.TruncationMarker)
	assert.NotContains(t, out, strings.Repeat("a", 101))
}

func TestDeliver_ChunksAndAcks(t *testing.T) {
	f := slacktest.New()
	var ds []Digest
	for i := range 5 {
		ds = append(ds, digestFor(fmt.Sprintf("C%d", i), slack.KindPublic, 1))
	}
	d := NewDeliverer(slacktest.NewClient(f), "U1", 2, nil)

	acks, err := d.Deliver(context.Background(), NewNotification("today", ds, 0))

	require.NoError(t, err)
	require.Len(t, acks, 3)
	assert.Equal(t, []string{"C0", "C1"}, acks[0].Conversations)
	assert.Equal(t, []string{"C4"}, acks[2].Conversations)
	assert.Equal(t, "DU1", acks[0].ChannelID)
	assert.Equal(t, 1, f.Calls("conversations.open"), "DM channel is opened once")
	assert.Len(t, f.Posts(), 3)
}

func TestDeliver_FailedChunkIsNotAcked(t *testing.T) {
	f := slacktest.New()
	f.Fail("chat.postMessage", "", nil, slackapi.SlackErrorResponse{Err: "msg_too_long"})
	ds := []Digest{
		digestFor("C1", slack.KindPublic, 1),
		digestFor("C2", slack.KindPublic, 1),
		digestFor("C3", slack.KindPublic, 1),
	}
	d := NewDeliverer(slacktest.NewClient(f), "U1", 1, nil)

	acks, err := d.Deliver(context.Background(), NewNotification("today", ds, 0))

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"C2"}, de.Failed)
	require.Len(t, acks, 2)
	assert.Equal(t, []string{"C1"}, acks[0].Conversations)
	assert.Equal(t, []string{"C3"}, acks[1].Conversations)
}

func TestDeliver_OpenFailureFailsEverything(t *testing.T) {
	f := slacktest.New()
	f.Fail("conversations.open", "", slackapi.SlackErrorResponse{Err: "invalid_auth"})
	d := NewDeliverer(slacktest.NewClient(f), "U1", 10, nil)

	acks, err := d.Deliver(context.Background(), NewNotification("today", []Digest{digestFor("C1", slack.KindPublic, 1)}, 0))

	assert.Empty(t, acks)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"C1"}, de.Failed)
	assert.True(t, slack.IsAuth(err))
}

func TestSend(t *testing.T) {
	f := slacktest.New()
	d := NewDeliverer(slacktest.NewClient(f), "U1", 10, nil)

	require.NoError(t, d.Send(context.Background(), AllCaughtUp("today")))

	posts := f.Posts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Message.Text, "All caught up")
}
