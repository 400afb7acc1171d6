package digest

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"
	slackapi "github.com/rusq/slack"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

const (
	previewMessages = 3
	previewLength   = 100
	// sectionTextLimit is Block Kit's cap on section text.
	sectionTextLimit = 3000
)

// Render builds message part of parts for one chunk of digests. The first
// part carries the header, the last the footer.
func (n Notification) Render(chunk []Digest, part, parts int) slack.OutgoingMessage {
	var blocks []slackapi.Block
	if part == 1 {
		blocks = append(blocks, slackapi.NewHeaderBlock(
			slackapi.NewTextBlockObject(slackapi.PlainTextType, "📬 Slack digest for "+n.Date, true, false)))
	} else {
		blocks = append(blocks, slackapi.NewContextBlock("",
			slackapi.NewTextBlockObject(slackapi.MarkdownType, fmt.Sprintf("_continued (%d/%d)_", part, parts), false, false)))
	}

	for i, d := range chunk {
		if i > 0 {
			blocks = append(blocks, slackapi.NewDividerBlock())
		}
		blocks = append(blocks, section(d))
	}

	if part == parts {
		blocks = append(blocks,
			slackapi.NewDividerBlock(),
			slackapi.NewContextBlock("footer",
				slackapi.NewTextBlockObject(slackapi.MarkdownType, n.footer(), false, false)),
		)
	}

	return slack.OutgoingMessage{
		Text:   fmt.Sprintf("Slack digest for %s: %s", n.Date, plural(len(n.Digests), "conversation")),
		Blocks: blocks,
	}
}

func section(d Digest) *slackapi.SectionBlock {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* · %s from %s\n", d.ConversationName, plural(d.MessageCount, "message"), plural(d.ParticipantCount, "person"))
	if d.Summary != nil {
		b.WriteString(*d.Summary)
	} else {
		b.WriteString(Preview(d.Messages))
	}
	text, _ := enrich.Truncate(b.String(), sectionTextLimit)

	var accessory *slackapi.Accessory
	if d.ConversationLink != "" {
		button := slackapi.NewButtonBlockElement("view_"+d.Conversation.ID, d.Conversation.ID,
			slackapi.NewTextBlockObject(slackapi.PlainTextType, "View Messages", false, false))
		button.URL = d.ConversationLink
		accessory = slackapi.NewAccessory(button)
	}
	return slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false), nil, accessory)
}

// Preview stands in for a missing summary: the first few messages, shortened.
func Preview(msgs []enrich.Message) string {
	var b strings.Builder
	b.WriteString("_Summary unavailable. First messages:_")
	for _, m := range msgs[:min(len(msgs), previewMessages)] {
		body, _ := enrich.Truncate(strings.ReplaceAll(m.Body, "\n", " "), previewLength)
		fmt.Fprintf(&b, "\n• *%s*: %s", m.SenderName, body)
	}
	if extra := len(msgs) - previewMessages; extra > 0 {
		fmt.Fprintf(&b, "\n_…and %s_", plural(extra, "more message"))
	}
	return b.String()
}

func (n Notification) footer() string {
	parts := []string{
		fmt.Sprintf("%s in %s", plural(n.TotalMessages(), "message"), plural(len(n.Digests), "conversation")),
	}
	if d := n.Degraded(); d > 0 {
		parts = append(parts, fmt.Sprintf("%s without AI summary", plural(d, "conversation")))
	}
	if n.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%s could not be read", plural(n.Failed, "conversation")))
	}
	return strings.Join(parts, " · ")
}

// AllCaughtUp is sent when no conversation has unread messages.
func AllCaughtUp(date string) slack.OutgoingMessage {
	text := fmt.Sprintf("🎉 All caught up! No unread messages for %s.", date)
	return slack.OutgoingMessage{
		Text: text,
		Blocks: []slackapi.Block{
			slackapi.NewSectionBlock(slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false), nil, nil),
		},
	}
}

// ErrorMessage tells the user a run failed before a digest could be built.
func ErrorMessage(date string, err error) slack.OutgoingMessage {
	text := fmt.Sprintf("⚠️ Your Slack digest for %s could not be generated.\n```%v```", date, err)
	return slack.OutgoingMessage{
		Text: fmt.Sprintf("Slack digest for %s failed", date),
		Blocks: []slackapi.Block{
			slackapi.NewSectionBlock(slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false), nil, nil),
		},
	}
}

func plural(n int, noun string) string {
	if noun == "person" {
		return english.Plural(n, noun, "people")
	}
	return english.Plural(n, noun, "")
}
