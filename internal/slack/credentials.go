// Package slack wraps the Slack Web API behind a rate-limited, retrying client
// and the Edge API used for fast unread snapshots.
package slack

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rusq/slackdump/v3/auth"
)

// NewCredentials validates a token through slackdump's value provider. Session
// tokens (xoxc-) require the "d" cookie; user tokens (xoxp-) and bot tokens
// (xoxb-) do not.
func NewCredentials(token, cookie string) (*Credentials, error) {
	prov, err := auth.NewValueAuth(token, cookie)
	if err != nil {
		return nil, fmt.Errorf("slack credentials: %w", err)
	}
	return &Credentials{
		Token:    prov.SlackToken(),
		Cookies:  prov.Cookies(),
		provider: prov,
	}, nil
}

// IsSession reports whether the credentials carry a browser session token.
func (c *Credentials) IsSession() bool {
	return strings.HasPrefix(c.Token, "xoxc-")
}

// HTTPClient returns a client that sends the session cookies with every
// request.
func (c *Credentials) HTTPClient() (*http.Client, error) {
	if c.provider == nil {
		return &http.Client{Timeout: DefaultHTTPTimeout}, nil
	}
	hc, err := c.provider.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("session http client: %w", err)
	}
	return hc, nil
}

// Cookie returns the named cookie, or nil.
func (c *Credentials) Cookie(name string) *http.Cookie {
	for _, ck := range c.Cookies {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}
