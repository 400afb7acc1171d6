// Package summarize builds one prompt per conversation and asks a completion
// service for a short digest of it.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
)

// SystemPrompt steers the model towards short, actionable digests.
const SystemPrompt = `You summarize unread Slack messages for a busy reader.
Highlight decisions, questions that need an answer, important updates and anything the reader is asked to do.
Be direct and skip pleasantries. Quote nobody at length.`

// Options bound one summarization.
type Options struct {
	MaxPromptChars  int
	MaxOutputTokens int
	Location        *time.Location // message times in the prompt; UTC when nil
}

// Result is the summary of one conversation.
type Result struct {
	Summary  string
	Included int // messages that made it into the prompt
	Omitted  int // oldest messages dropped to fit the prompt budget
}

// Batcher turns a conversation's messages into a single completion request.
type Batcher struct {
	completer Completer
	opts      Options
	log       *logger.Logger
}

// NewBatcher returns a Batcher that sends one prompt per conversation to completer.
func NewBatcher(completer Completer, opts Options, log *logger.Logger) *Batcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Batcher{completer: completer, opts: opts, log: logger.OrNop(log)}
}

// Summarize asks for a summary of msgs, which must be in chronological order.
// Failures are returned as *CompletionError.
func (b *Batcher) Summarize(ctx context.Context, conversationName string, msgs []enrich.Message) (Result, error) {
	if len(msgs) == 0 {
		return Result{}, nil
	}
	prompt, included := b.Prompt(conversationName, msgs)
	res := Result{Included: included, Omitted: len(msgs) - included}
	if res.Omitted > 0 {
		b.log.Info("prompt over budget, omitting oldest messages",
			"conversation", conversationName, "omitted", res.Omitted, "max_prompt_chars", b.opts.MaxPromptChars)
	}

	text, err := b.completer.Complete(ctx, Request{
		System:    SystemPrompt,
		Prompt:    prompt,
		MaxTokens: b.opts.MaxOutputTokens,
	})
	if err != nil {
		return res, ClassifyCompletion(err)
	}
	res.Summary = strings.TrimSpace(text)
	return res, nil
}

// Prompt renders msgs into a prompt of at most MaxPromptChars runes, dropping
// the oldest messages first. It returns the prompt and how many messages it
// holds.
func (b *Batcher) Prompt(conversationName string, msgs []enrich.Message) (string, int) {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = b.line(m)
	}
	header := fmt.Sprintf("Summarize these unread Slack messages from %s:\n\n", conversationName)
	footer := fmt.Sprintf("\n\nTotal unread messages: %d", len(msgs))

	size := utf8.RuneCountInString(header) + utf8.RuneCountInString(footer)
	for _, l := range lines {
		size += utf8.RuneCountInString(l) + 1
	}

	limit := b.opts.MaxPromptChars
	start := 0
	for limit > 0 && start < len(lines)-1 && size+omittedNoteLen(start) > limit {
		size -= utf8.RuneCountInString(lines[start]) + 1
		start++
	}

	var sb strings.Builder
	sb.WriteString(header)
	if start > 0 {
		sb.WriteString(omittedNote(start))
	}
	sb.WriteString(strings.Join(lines[start:], "\n"))
	sb.WriteString(footer)

	prompt := sb.String()
	if limit > 0 {
		// a single oversized message still has to fit
		prompt, _ = enrich.Truncate(prompt, limit)
	}
	return prompt, len(lines) - start
}

func (b *Batcher) line(m enrich.Message) string {
	body := strings.ReplaceAll(m.Body, "\n", " ")
	stamp := m.TS.Time().In(b.opts.Location).Format("15:04")
	if m.IsReply() {
		return fmt.Sprintf("    ↳ [%s] %s: %s", stamp, m.SenderName, body)
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, m.SenderName, body)
}

func omittedNote(n int) string {
	return fmt.Sprintf("(%d earlier messages omitted)\n", n)
}

func omittedNoteLen(n int) int {
	if n == 0 {
		return 0
	}
	return utf8.RuneCountInString(omittedNote(n))
}
