package slack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	slackapi "github.com/rusq/slack"
)

// ErrorKind classifies a failed platform call for the retry policy.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
	KindRateLimited
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	default:
		return "permanent"
	}
}

// APIError is a classified failure of one Slack endpoint.
type APIError struct {
	Endpoint   string
	Kind       ErrorKind
	Code       string        // platform error code, e.g. "channel_not_found"
	RetryAfter time.Duration // platform-advertised delay, rate limits only
	Err        error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("slack %s: %s (%s)", e.Endpoint, e.Code, e.Kind)
	}
	return fmt.Sprintf("slack %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err carries an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// IsAuth reports an authentication or authorization failure.
func IsAuth(err error) bool { return IsKind(err, KindAuth) }

// ErrorCode returns the platform error code carried by err, if any.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

var authCodes = map[string]bool{
	"invalid_auth":      true,
	"not_authed":        true,
	"token_revoked":     true,
	"token_expired":     true,
	"account_inactive":  true,
	"missing_scope":     true,
	"no_permission":     true,
	"ekm_access_denied": true,
}

var transientCodes = map[string]bool{
	"internal_error":      true,
	"fatal_error":         true,
	"service_unavailable": true,
	"request_timeout":     true,
}

// Classify maps an SDK or transport error to an APIError. It returns nil for
// a nil error and passes an existing APIError through unchanged.
func Classify(endpoint string, err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	e := &APIError{Endpoint: endpoint, Kind: KindPermanent, Err: err}

	var rateErr *slackapi.RateLimitedError
	var statusErr slackapi.StatusCodeError
	var respErr slackapi.SlackErrorResponse
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// the caller gave up; retrying cannot help
	case errors.As(err, &rateErr):
		e.Kind = KindRateLimited
		e.Code = "ratelimited"
		e.RetryAfter = rateErr.RetryAfter
	case errors.As(err, &statusErr):
		e.Kind = kindForStatus(statusErr.Code)
	case errors.As(err, &respErr):
		e.Code = respErr.Err
		e.Kind = kindForCode(respErr.Err)
	case errors.As(err, &netErr):
		e.Kind = KindTransient
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		e.Kind = KindTransient
	default:
		// Some SDK paths return the bare platform code as the message.
		if k := kindForCode(err.Error()); k != KindPermanent || isPlatformCode(err.Error()) {
			e.Code = err.Error()
			e.Kind = k
		}
	}
	return e
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

func kindForCode(code string) ErrorKind {
	switch {
	case code == "ratelimited" || code == "rate_limited":
		return KindRateLimited
	case authCodes[code]:
		return KindAuth
	case transientCodes[code]:
		return KindTransient
	default:
		return KindPermanent
	}
}

// isPlatformCode reports whether s looks like a snake_case Slack error code.
func isPlatformCode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return true
}
