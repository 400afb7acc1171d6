package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

// Request is one completion: a system instruction, the conversation prompt
// and an output budget.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completer produces summary text for a prompt. Implementations should return
// errors that ClassifyCompletion understands.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompletionErrorKind says why no summary was produced.
type CompletionErrorKind int

const (
	KindRateLimited CompletionErrorKind = iota
	KindServiceUnavailable
	KindContentPolicy
)

func (k CompletionErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindContentPolicy:
		return "content_policy_rejection"
	default:
		return "unknown"
	}
}

// CompletionError means a conversation gets no AI summary this run. The
// digest for it is still delivered.
type CompletionError struct {
	Kind CompletionErrorKind
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ErrContentFiltered is returned when the model stops on a content filter.
var ErrContentFiltered = errors.New("response withheld by content filter")

var contentPolicyCodes = map[string]bool{
	"content_policy_violation": true,
	"content_filter":           true,
}

// ClassifyCompletion maps a completer error onto a CompletionError. Anything
// unrecognized counts as the service being unavailable.
func ClassifyCompletion(err error) *CompletionError {
	if err == nil {
		return nil
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, ErrContentFiltered) {
		return &CompletionError{Kind: KindContentPolicy, Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &CompletionError{Kind: KindRateLimited, Err: err}
		case contentPolicyCodes[apiErr.Code]:
			return &CompletionError{Kind: KindContentPolicy, Err: err}
		}
	}
	return &CompletionError{Kind: KindServiceUnavailable, Err: err}
}
