package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"general", "general", true},
		{"GENERAL", "general", true},
		{"eng-*", "eng-oncall", true},
		{"*-alerts", "prod-alerts", true},
		{"team-?", "team-a", true},
		{"team-?", "team-ab", false},
		{"C0*", "c0abc", true},
		{"[ab]-ops", "b-ops", true},
		{"[ab]-ops", "c-ops", false},
		{"", "", true},
		{"", "general", false},
		{"[", "general", false}, // malformed pattern never matches
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.value), "%q vs %q", tt.pattern, tt.value)
	}
}

func TestMatchAny(t *testing.T) {
	assert.False(t, MatchAny(nil, "general"))
	assert.False(t, MatchAny([]string{}, "general"))
	assert.True(t, MatchAny([]string{"random", "gen*"}, "general"))
	assert.False(t, MatchAny([]string{"random", "eng-*"}, "general"))
}

func workspaceConversations() []slack.Conversation {
	return []slack.Conversation{
		{ID: "C01", Kind: slack.KindPublic, Name: "general"},
		{ID: "C02", Kind: slack.KindPublic, Name: "eng-backend"},
		{ID: "C03", Kind: slack.KindPublic, Name: "eng-frontend"},
		{ID: "C04", Kind: slack.KindPublic, Name: "prod-alerts"},
		{ID: "G01", Kind: slack.KindPrivate, Name: "leads"},
		{ID: "G02", Kind: slack.KindGroupDirect, Name: "mpdm-alice--bob--carol-1"},
		{ID: "D01", Kind: slack.KindDirect, UserID: "U0ALICE"},
		{ID: "D02", Kind: slack.KindDirect, UserID: "USLACKBOT"},
	}
}

func ids(convs []slack.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestFilterConversations(t *testing.T) {
	all := []string{"C01", "C02", "C03", "C04", "G01", "G02", "D01", "D02"}
	tests := []struct {
		name             string
		include, exclude []string
		want             []string
	}{
		{"no patterns keeps everything", nil, nil, all},
		{"include by name glob", []string{"eng-*"}, nil, []string{"C02", "C03"}},
		{"exclude noisy channels", nil, []string{"*-alerts"}, []string{"C01", "C02", "C03", "G01", "G02", "D01", "D02"}},
		{"exclude wins over include", []string{"eng-*"}, []string{"*frontend"}, []string{"C02"}},
		{"DM matched by peer user ID", []string{"U0ALICE"}, nil, []string{"D01"}},
		{"exclude slackbot DM", nil, []string{"USLACKBOT"}, []string{"C01", "C02", "C03", "C04", "G01", "G02", "D01"}},
		{"group DM by raw name", []string{"mpdm-*"}, nil, []string{"G02"}},
		{"by conversation ID prefix", []string{"D*", "g01"}, nil, []string{"G01", "D01", "D02"}},
		{"exclude everything", nil, []string{"*"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterConversations(workspaceConversations(), tt.include, tt.exclude)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilter_Apply(t *testing.T) {
	convs := workspaceConversations()

	var none *Filter
	assert.Len(t, none.Apply(convs), len(convs), "nil filter passes everything")

	f := NewFilter([]string{"eng-*", "leads"}, []string{"eng-frontend"})
	assert.Equal(t, []string{"C02", "G01"}, ids(f.Apply(convs)))
}
