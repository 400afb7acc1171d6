package slack

import (
	"net/http"

	"github.com/rusq/slackdump/v3/auth"
)

// ConversationKind distinguishes the four conversation types a user can have
// unreads in. The declaration order is the enumeration sort order.
type ConversationKind int

const (
	KindPublic ConversationKind = iota
	KindPrivate
	KindDirect
	KindGroupDirect
)

func (k ConversationKind) String() string {
	switch k {
	case KindPublic:
		return "public_channel"
	case KindPrivate:
		return "private_channel"
	case KindDirect:
		return "im"
	case KindGroupDirect:
		return "mpim"
	default:
		return "unknown"
	}
}

// AllKinds lists every kind in enumeration order.
var AllKinds = []ConversationKind{KindPublic, KindPrivate, KindDirect, KindGroupDirect}

// Conversation is a channel, private channel, DM or group DM with its unread
// state at enumeration time.
type Conversation struct {
	ID           string
	Kind         ConversationKind
	Name         string    // raw platform name; empty for DMs
	UserID       string    // DM peer
	LastRead     Timestamp // read cursor
	Latest       Timestamp
	UnreadCount  int
	MentionCount int
	IsMember     bool
}

// HasUnreads reports whether anything newer than the read cursor exists.
func (c Conversation) HasUnreads() bool {
	if c.UnreadCount > 0 {
		return true
	}
	return !c.Latest.IsZero() && c.Latest.After(c.LastRead)
}

// Message is a top-level message or thread reply as fetched from Slack.
type Message struct {
	ConversationID string
	UserID         string
	BotID          string
	Username       string
	TS             Timestamp
	Text           string
	ThreadTS       Timestamp // thread root; empty when not threaded
	ParentTS       Timestamp // set on replies
	ReplyCount     int
	SubType        string
	Edited         bool
	Deleted        bool
	HasFiles       bool
}

// IsReply reports whether m was fetched as a thread reply.
func (m Message) IsReply() bool {
	return m.ParentTS != ""
}

// IsThreadRoot reports whether m starts a thread with replies.
func (m Message) IsThreadRoot() bool {
	return m.ReplyCount > 0 && (m.ThreadTS == "" || m.ThreadTS == m.TS)
}

// User is the subset of a Slack profile needed to render names.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RealName    string `json:"real_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// BestName returns the most human-friendly name available.
func (u *User) BestName() string {
	switch {
	case u == nil:
		return ""
	case u.DisplayName != "":
		return u.DisplayName
	case u.RealName != "":
		return u.RealName
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

// Credentials holds authentication data for Slack API access.
type Credentials struct {
	Token     string         // xoxp-... or xoxc-... token
	Cookies   []*http.Cookie // session cookies including 'd', only for xoxc tokens
	TeamID    string         // Workspace ID (T...)
	Workspace string         // workspace subdomain, filled from team.info

	provider auth.Provider
}
