package enrich

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// Directory resolves user, channel and workspace names for one run. Every id
// is looked up at most once; concurrent lookups of the same id share a single
// platform call. Failed lookups resolve to the raw id and are not retried.
type Directory struct {
	client *slack.Client
	users  *slack.UserResolver
	log    *logger.Logger

	group singleflight.Group
	mu    sync.Mutex
	names map[string]string
}

// NewDirectory builds a directory over client. cache, when non-nil, is read
// before users.info and receives every fetched profile. A nil client resolves
// everything to raw ids.
func NewDirectory(client *slack.Client, cache *slack.UserCache, log *logger.Logger) *Directory {
	var fetcher slack.UserFetcher
	if client != nil {
		fetcher = client
	}
	return &Directory{
		client: client,
		users:  slack.NewUserResolver(nil, cache, fetcher),
		log:    logger.OrNop(log),
		names:  make(map[string]string),
	}
}

func (d *Directory) memo(key string, resolve func() string) string {
	d.mu.Lock()
	name, ok := d.names[key]
	d.mu.Unlock()
	if ok {
		return name
	}
	v, _, _ := d.group.Do(key, func() (any, error) {
		d.mu.Lock()
		name, ok := d.names[key]
		d.mu.Unlock()
		if ok {
			return name, nil
		}
		name = resolve()
		d.mu.Lock()
		d.names[key] = name
		d.mu.Unlock()
		return name, nil
	})
	return v.(string)
}

// UserName returns the display name of a user, or id when it cannot be
// resolved.
func (d *Directory) UserName(ctx context.Context, id string) string {
	if id == "" {
		return "unknown"
	}
	return d.memo("user:"+id, func() string {
		name, err := d.users.Username(ctx, id)
		if err != nil || name == "" {
			d.log.Warn("user lookup failed, using id", "user", id, "error", err)
			return id
		}
		return name
	})
}

// ChannelName returns the raw platform name of a conversation, or id.
func (d *Directory) ChannelName(ctx context.Context, id string) string {
	return d.memo("channel:"+id, func() string {
		if d.client == nil {
			return id
		}
		info, err := d.client.ConversationInfo(ctx, id)
		if err != nil || info.Name == "" {
			if err != nil {
				d.log.Warn("channel lookup failed, using id", "channel", id, "error", err)
			}
			return id
		}
		return info.Name
	})
}

// TeamDomain returns the workspace subdomain, or "" when team.info fails.
func (d *Directory) TeamDomain(ctx context.Context) string {
	return d.memo("team:", func() string {
		if d.client == nil {
			return ""
		}
		team, err := d.client.TeamInfo(ctx)
		if err != nil {
			d.log.Warn("team lookup failed, links fall back to slack.com", "error", err)
			return ""
		}
		return team.Domain
	})
}

// ConversationName is the human label of conv: "#name" for public channels,
// "🔒 name" for private ones, "DM with X" and "Group: a, b" for direct
// conversations.
func (d *Directory) ConversationName(ctx context.Context, conv slack.Conversation) string {
	switch conv.Kind {
	case slack.KindDirect:
		if conv.UserID == "" {
			return "Direct Message"
		}
		return "DM with " + d.UserName(ctx, conv.UserID)
	case slack.KindGroupDirect:
		return "Group: " + groupMembers(d.rawName(ctx, conv))
	case slack.KindPrivate:
		return "🔒 " + d.rawName(ctx, conv)
	default:
		return "#" + d.rawName(ctx, conv)
	}
}

func (d *Directory) rawName(ctx context.Context, conv slack.Conversation) string {
	if conv.Name != "" {
		return conv.Name
	}
	return d.ChannelName(ctx, conv.ID)
}

// groupMembers turns "mpdm-alice--bob--carol-1" into "alice, bob, carol".
func groupMembers(name string) string {
	rest, ok := strings.CutPrefix(name, "mpdm-")
	if !ok {
		return name
	}
	if i := strings.LastIndexByte(rest, '-'); i > 0 && isDigits(rest[i+1:]) {
		rest = rest[:i]
	}
	members := strings.Split(rest, "--")
	return strings.Join(members, ", ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
