package pipeline

import (
	"time"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/digest"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

// State is where a conversation is in the run.
type State int

const (
	StateEnumerated State = iota
	StateFetching
	StateFetched
	StateFetchFailed
	StateEmpty
	StateEnriching
	StateEnriched
	StateSummarizing
	StateSummarized
	StateSummaryDegraded
	StateDelivering
	StateDelivered
	StateDeliveryFailed
	StateMarkingRead
	StateDone
)

var stateNames = [...]string{
	StateEnumerated:      "enumerated",
	StateFetching:        "fetching",
	StateFetched:         "fetched",
	StateFetchFailed:     "fetch_failed",
	StateEmpty:           "empty",
	StateEnriching:       "enriching",
	StateEnriched:        "enriched",
	StateSummarizing:     "summarizing",
	StateSummarized:      "summarized",
	StateSummaryDegraded: "summary_degraded",
	StateDelivering:      "delivering",
	StateDelivered:       "delivered",
	StateDeliveryFailed:  "delivery_failed",
	StateMarkingRead:     "marking_read",
	StateDone:            "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome is the verdict on one conversation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartial
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	default:
		return "failed"
	}
}

// ConversationOutcome records what happened to one conversation.
type ConversationOutcome struct {
	Conversation slack.Conversation
	Name         string
	State        State
	Outcome      Outcome
	Messages     int
	Latest       slack.Timestamp // newest top-level message; the mark-read target
	Degraded     bool            // delivered with a preview instead of a summary
	Marked       bool
	Err          error
	Warnings     []string
}

func (o *ConversationOutcome) fail(state State, err error) {
	o.State = state
	o.Outcome = OutcomeFailed
	o.Err = err
}

func (o *ConversationOutcome) warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
	if o.Outcome == OutcomeSuccess {
		o.Outcome = OutcomePartial
	}
}

// RunStatus is the overall result, mapped to the process exit code.
type RunStatus int

const (
	RunSucceeded RunStatus = iota
	RunFailed
	RunPartial
)

func (s RunStatus) String() string {
	switch s {
	case RunSucceeded:
		return "succeeded"
	case RunPartial:
		return "partial"
	default:
		return "failed"
	}
}

// ExitCode is 0 on success, 1 on failure and 2 on partial success.
func (s RunStatus) ExitCode() int { return int(s) }

// RunReport describes one run.
type RunReport struct {
	ID           string // correlates log lines of one run
	StartedAt    time.Time
	FinishedAt   time.Time
	Date         string
	DryRun       bool
	Outcomes     []ConversationOutcome
	Notification *digest.Notification // nil when nothing was built
	Fatal        error
}

// Status folds the outcomes into one verdict. A fatal error, or every
// conversation failing, fails the run.
func (r *RunReport) Status() RunStatus {
	if r.Fatal != nil {
		return RunFailed
	}
	failed, partial := 0, 0
	for _, o := range r.Outcomes {
		switch o.Outcome {
		case OutcomeFailed:
			failed++
		case OutcomePartial:
			partial++
		}
	}
	switch {
	case failed > 0 && failed == len(r.Outcomes):
		return RunFailed
	case failed > 0 || partial > 0:
		return RunPartial
	default:
		return RunSucceeded
	}
}

func (r *RunReport) count(pred func(ConversationOutcome) bool) int {
	n := 0
	for _, o := range r.Outcomes {
		if pred(o) {
			n++
		}
	}
	return n
}

// Delivered counts conversations whose digest reached the user.
func (r *RunReport) Delivered() int {
	return r.count(func(o ConversationOutcome) bool {
		return o.State == StateDelivered || o.State == StateMarkingRead || o.State == StateDone
	})
}

// MarkedRead counts conversations whose read cursor moved this run.
func (r *RunReport) MarkedRead() int {
	return r.count(func(o ConversationOutcome) bool { return o.Marked })
}

// Failed counts conversations that produced no digest or were not delivered.
func (r *RunReport) Failed() int {
	return r.count(func(o ConversationOutcome) bool { return o.Outcome == OutcomeFailed })
}

// Degraded counts conversations delivered without an AI summary.
func (r *RunReport) Degraded() int {
	return r.count(func(o ConversationOutcome) bool { return o.Degraded })
}

// Messages sums fetched messages over all conversations.
func (r *RunReport) Messages() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Messages
	}
	return n
}

// Duration is how long the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
