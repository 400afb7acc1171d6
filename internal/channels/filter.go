package channels

import (
	"path/filepath"
	"strings"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// Filter applies include/exclude glob patterns to conversations. Patterns
// match the raw conversation name, the conversation ID, or for DMs the peer's
// user ID.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter creates a Filter with the given include and exclude patterns.
func NewFilter(include, exclude []string) *Filter {
	return &Filter{
		include: include,
		exclude: exclude,
	}
}

// Apply returns the conversations that match an include pattern (or all, when
// there are none) and no exclude pattern, preserving order.
func (f *Filter) Apply(convs []slack.Conversation) []slack.Conversation {
	if f == nil {
		return convs
	}
	return FilterConversations(convs, f.include, f.exclude)
}

// FilterConversations is Apply without a Filter value.
func FilterConversations(convs []slack.Conversation, include, exclude []string) []slack.Conversation {
	out := make([]slack.Conversation, 0, len(convs))
	for _, c := range convs {
		keys := matchKeys(c)
		if len(include) > 0 && !matchAnyKey(include, keys) {
			continue
		}
		if matchAnyKey(exclude, keys) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchKeys(c slack.Conversation) []string {
	keys := []string{c.ID}
	if c.Name != "" {
		keys = append(keys, c.Name)
	}
	if c.UserID != "" {
		keys = append(keys, c.UserID)
	}
	return keys
}

func matchAnyKey(patterns, keys []string) bool {
	for _, k := range keys {
		if MatchAny(patterns, k) {
			return true
		}
	}
	return false
}

// MatchAny checks if a value matches any pattern in a list.
// Returns true if any pattern matches, false for empty pattern list.
func MatchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, value) {
			return true
		}
	}
	return false
}

// MatchPattern matches a value against a glob pattern (* and ?), ignoring
// case. Returns false for invalid patterns.
func MatchPattern(pattern, value string) bool {
	matched, err := filepath.Match(strings.ToLower(pattern), strings.ToLower(value))
	return err == nil && matched
}
