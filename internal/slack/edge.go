package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	slackapi "github.com/rusq/slack"
)

const (
	// DefaultEdgeBaseURL is the base URL for Slack's Edge API.
	DefaultEdgeBaseURL = "https://edgeapi.slack.com"

	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second
)

// EdgeClient calls the undocumented client.* endpoints the Slack web client
// uses. They only accept session (xoxc-) credentials.
type EdgeClient struct {
	creds      *Credentials
	httpClient *http.Client
	baseURL    string
}

// NewEdgeClient creates a new Edge API client with the given credentials.
func NewEdgeClient(creds *Credentials) *EdgeClient {
	return &EdgeClient{
		creds:      creds,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:    DefaultEdgeBaseURL,
	}
}

// WorkspaceURL is the per-workspace host that serves client.* methods.
func WorkspaceURL(domain string) string {
	return "https://" + domain + ".slack.com"
}

// WithBaseURL returns a new EdgeClient with the specified base URL.
func (c *EdgeClient) WithBaseURL(baseURL string) *EdgeClient {
	return &EdgeClient{
		creds:      c.creds,
		httpClient: c.httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithHTTPClient returns a new EdgeClient with the specified HTTP client.
func (c *EdgeClient) WithHTTPClient(client *http.Client) *EdgeClient {
	return &EdgeClient{
		creds:      c.creds,
		httpClient: client,
		baseURL:    c.baseURL,
	}
}

// Counts fetches the unread snapshot for every conversation in one request.
func (c *EdgeClient) Counts(ctx context.Context) (*CountsResponse, error) {
	var resp CountsResponse
	if err := c.post(ctx, "client.counts", url.Values{"thread_counts_by_channel": {"true"}}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, slackapi.SlackErrorResponse{Err: resp.Error}
	}
	return &resp, nil
}

// UserBoot fetches the workspace bootstrap payload: the caller, the team and
// every conversation the caller belongs to.
func (c *EdgeClient) UserBoot(ctx context.Context) (*UserBootResponse, error) {
	var resp UserBootResponse
	if err := c.post(ctx, "client.userBoot", url.Values{"only_self_subteams": {"true"}}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, slackapi.SlackErrorResponse{Err: resp.Error}
	}
	return &resp, nil
}

// Snapshots indexes every conversation in the counts response by id.
func (r *CountsResponse) Snapshots() map[string]ChannelSnapshot {
	out := make(map[string]ChannelSnapshot, len(r.Channels)+len(r.MPIMs)+len(r.IMs))
	for _, group := range [][]ChannelSnapshot{r.Channels, r.MPIMs, r.IMs} {
		for _, s := range group {
			out[s.ID] = s
		}
	}
	return out
}

func (c *EdgeClient) post(ctx context.Context, method string, form url.Values, out any) error {
	if c.creds == nil || c.creds.Token == "" {
		return fmt.Errorf("edge %s: missing credentials", method)
	}
	form.Set("token", c.creds.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("edge %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range c.creds.Cookies {
		req.AddCookie(ck)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("edge %s: %w", method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &slackapi.RateLimitedError{RetryAfter: time.Duration(secs) * time.Second}
	case resp.StatusCode != http.StatusOK:
		return slackapi.StatusCodeError{Code: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("edge %s: decoding response: %w", method, err)
	}
	return nil
}
