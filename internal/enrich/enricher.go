// Package enrich turns fetched messages into readable ones: sender and
// conversation names, rewritten mentions, bounded bodies and permalinks.
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// TruncationMarker ends every body that was cut to fit the length budget.
const TruncationMarker = "…[truncated]"

// Message is a fetched message prepared for summarization and display.
type Message struct {
	slack.Message

	SenderName       string
	ConversationName string
	Permalink        string
	Body             string // at most the configured rune budget
	Truncated        bool
}

var (
	userMention    = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`)
	channelMention = regexp.MustCompile(`<#([CGD][A-Z0-9]+)(?:\|([^>]*))?>`)
	specialMention = regexp.MustCompile(`<!(here|channel|everyone)(?:\|[^>]*)?>`)
	subteamMention = regexp.MustCompile(`<!subteam\^[A-Z0-9]+(?:\|([^>]*))?>`)
	labelledLink   = regexp.MustCompile(`<(https?://[^|>]+)\|([^>]+)>`)
	bareLink       = regexp.MustCompile(`<(https?://[^|>]+)>`)
)

// Enricher prepares messages of one conversation at a time.
type Enricher struct {
	maxLength int
	log       *logger.Logger
}

// NewEnricher bounds bodies to maxLength runes, marker included. Zero or less
// disables truncation.
func NewEnricher(maxLength int, log *logger.Logger) *Enricher {
	return &Enricher{maxLength: maxLength, log: logger.OrNop(log)}
}

// Enrich returns msgs in their input order with deleted and empty messages
// removed. Name lookups never fail the conversation; unresolved ids are shown
// as-is.
func (e *Enricher) Enrich(ctx context.Context, conv slack.Conversation, msgs []slack.Message, dir *Directory) []Message {
	convName := dir.ConversationName(ctx, conv)
	domain := dir.TeamDomain(ctx)

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Deleted {
			continue
		}
		text := strings.TrimSpace(e.rewriteMentions(ctx, m.Text, dir))
		if text == "" {
			if !m.HasFiles {
				continue
			}
			text = "[file attached]"
		}
		body, cut := Truncate(text, e.maxLength)
		out = append(out, Message{
			Message:          m,
			SenderName:       senderName(ctx, m, dir),
			ConversationName: convName,
			Permalink:        Permalink(domain, conv.ID, m),
			Body:             body,
			Truncated:        cut,
		})
	}
	if dropped := len(msgs) - len(out); dropped > 0 {
		e.log.Debug("dropped empty or deleted messages", "channel", conv.ID, "dropped", dropped)
	}
	return out
}

func senderName(ctx context.Context, m slack.Message, dir *Directory) string {
	switch {
	case m.UserID != "":
		return dir.UserName(ctx, m.UserID)
	case m.Username != "":
		return m.Username
	case m.BotID != "":
		return m.BotID
	default:
		return "unknown"
	}
}

func (e *Enricher) rewriteMentions(ctx context.Context, text string, dir *Directory) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}
	text = userMention.ReplaceAllStringFunc(text, func(s string) string {
		id := userMention.FindStringSubmatch(s)[1]
		return "@" + dir.UserName(ctx, id)
	})
	text = channelMention.ReplaceAllStringFunc(text, func(s string) string {
		sub := channelMention.FindStringSubmatch(s)
		if sub[2] != "" {
			return "#" + sub[2]
		}
		return "#" + dir.ChannelName(ctx, sub[1])
	})
	text = specialMention.ReplaceAllString(text, "@$1")
	text = subteamMention.ReplaceAllStringFunc(text, func(s string) string {
		if label := subteamMention.FindStringSubmatch(s)[1]; label != "" {
			return label
		}
		return "@team"
	})
	text = labelledLink.ReplaceAllString(text, "$2 ($1)")
	return bareLink.ReplaceAllString(text, "$1")
}

// Truncate cuts s to at most limit runes, marker included, and reports
// whether it did. A limit of zero or less leaves s unchanged.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	keep := limit - utf8.RuneCountInString(TruncationMarker)
	if keep <= 0 {
		return string([]rune(TruncationMarker)[:limit]), true
	}
	head := strings.TrimRightFunc(string([]rune(s)[:keep]), unicode.IsSpace)
	return head + TruncationMarker, true
}

// WorkspaceBase is the web address of the workspace with the given subdomain,
// or of slack.com when the domain is unknown.
func WorkspaceBase(domain string) string {
	if domain == "" {
		return "https://slack.com"
	}
	return slack.WorkspaceURL(domain)
}

// ConversationLink opens a conversation in the browser.
func ConversationLink(domain, channelID string) string {
	return fmt.Sprintf("%s/archives/%s", WorkspaceBase(domain), channelID)
}

// Permalink links to one message. Replies carry their thread so the link opens
// inside it.
func Permalink(domain, channelID string, m slack.Message) string {
	link := fmt.Sprintf("%s/%s", ConversationLink(domain, channelID), m.TS.PermalinkID())
	if m.IsReply() {
		link += fmt.Sprintf("?thread_ts=%s&cid=%s", m.ParentTS, channelID)
	}
	return link
}
