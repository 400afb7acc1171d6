// Package pipeline runs one digest: enumerate, fetch, enrich and summarize
// every unread conversation, deliver the notification, then mark what was
// delivered as read.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/channels"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/digest"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/fetch"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/readmark"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/summarize"
)

const warnNoSummary = "summary unavailable, preview delivered instead"

// Components are the stages a run is wired from.
type Components struct {
	Enumerator *channels.Enumerator
	Fetcher    *fetch.Fetcher
	Enricher   *enrich.Enricher
	Directory  *enrich.Directory
	Batcher    *summarize.Batcher
	Deliverer  *digest.Deliverer
	Marker     *readmark.Marker
}

// Options are the run-level switches.
type Options struct {
	Limits       fetch.Limits
	Concurrency  int
	Timezone     string
	SkipMarkRead bool
	DryRun       bool // build the notification but neither deliver nor mark
}

// Orchestrator drives conversations through the pipeline on a bounded pool.
type Orchestrator struct {
	c    Components
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

// NewOrchestrator checks that the components a run needs are present.
func NewOrchestrator(c Components, opts Options, log *logger.Logger) (*Orchestrator, error) {
	switch {
	case c.Enumerator == nil || c.Fetcher == nil || c.Enricher == nil || c.Directory == nil || c.Batcher == nil:
		return nil, errors.New("pipeline: enumerator, fetcher, enricher, directory and batcher are required")
	case !opts.DryRun && c.Deliverer == nil:
		return nil, errors.New("pipeline: deliverer is required unless dry-running")
	case !opts.DryRun && !opts.SkipMarkRead && c.Marker == nil:
		return nil, errors.New("pipeline: marker is required unless marking is skipped")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	return &Orchestrator{c: c, opts: opts, log: logger.OrNop(log), now: time.Now}, nil
}

// Run processes every unread conversation once. It never returns nil; a
// fatal failure is reported in RunReport.Fatal.
func (o *Orchestrator) Run(ctx context.Context) *RunReport {
	report := &RunReport{ID: uuid.NewString(), StartedAt: o.now(), DryRun: o.opts.DryRun}
	run := *o
	run.log = o.log.With("run", report.ID)
	run.run(ctx, report)
	report.FinishedAt = o.now()
	run.log.Info("run finished", "status", report.Status(), "delivered", report.Delivered(), "failed", report.Failed())
	return report
}

func (o *Orchestrator) run(ctx context.Context, report *RunReport) {
	date, err := digest.RunDate(report.StartedAt, o.opts.Timezone)
	if err != nil {
		report.Fatal = err
		return
	}
	report.Date = digest.FormatDate(date)

	convs, err := o.c.Enumerator.ListConversations(ctx)
	if err != nil {
		o.fatal(ctx, report, err)
		return
	}
	if len(convs) == 0 {
		o.log.Info("no unread conversations")
		o.allCaughtUp(ctx, report)
		return
	}

	report.Outcomes = make([]ConversationOutcome, len(convs))
	digests := make([]*digest.Digest, len(convs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, conv := range convs {
		report.Outcomes[i] = ConversationOutcome{Conversation: conv, State: StateEnumerated}
		g.Go(func() error {
			d, err := o.process(gctx, &report.Outcomes[i])
			digests[i] = d
			return err
		})
	}
	if err := g.Wait(); err != nil {
		o.fatal(ctx, report, err)
		return
	}

	var ready []digest.Digest
	for _, d := range digests {
		if d != nil {
			ready = append(ready, *d)
		}
	}
	n := digest.NewNotification(report.Date, ready, report.Failed())
	report.Notification = &n

	if o.opts.DryRun {
		o.log.Info("dry run, notification not delivered", "conversations", len(ready))
		return
	}
	switch {
	case len(ready) > 0:
		o.deliver(ctx, report, n)
	case report.Failed() == 0:
		o.allCaughtUp(ctx, report)
	default:
		o.notifyFailures(ctx, report)
	}
	if o.opts.SkipMarkRead {
		for i := range report.Outcomes {
			if report.Outcomes[i].State == StateDelivered {
				report.Outcomes[i].State = StateDone
			}
		}
		return
	}
	o.markRead(ctx, report)
	return
}

// process takes one conversation from Enumerated to Summarized or a terminal
// state. Only errors that must stop the whole run are returned.
func (o *Orchestrator) process(ctx context.Context, out *ConversationOutcome) (*digest.Digest, error) {
	conv := out.Conversation
	log := o.log.With("channel", conv.ID)

	out.State = StateFetching
	msgs, err := o.c.Fetcher.FetchUnread(ctx, conv, conv.LastRead, o.opts.Limits)
	if err != nil {
		out.fail(StateFetchFailed, err)
		if slack.IsAuth(err) {
			return nil, fmt.Errorf("fetching %s: %w", conv.ID, err)
		}
		log.Warn("fetch failed, conversation left out", "error", err)
		return nil, nil
	}
	out.State = StateFetched
	out.Messages = len(msgs)
	out.Latest = latestTopLevel(msgs)

	out.State = StateEnriching
	out.Name = o.c.Directory.ConversationName(ctx, conv)
	enriched := o.c.Enricher.Enrich(ctx, conv, msgs, o.c.Directory)
	if len(enriched) == 0 {
		out.State = StateEmpty
		// Only system events or removed messages: safe to mark up to the
		// newest message seen at enumeration.
		out.Latest = slack.MaxTimestamp(out.Latest, conv.Latest)
		log.Debug("nothing to summarize")
		return nil, nil
	}
	out.State = StateEnriched

	out.State = StateSummarizing
	res, err := o.c.Batcher.Summarize(ctx, out.Name, enriched)
	var summary *string
	if err != nil {
		out.State = StateSummaryDegraded
		out.Degraded = true
		out.warn(warnNoSummary)
		log.Warn("summarization failed, delivering preview", "error", err)
	} else {
		out.State = StateSummarized
		summary = &res.Summary
	}
	if res.Omitted > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d earlier messages left out of the summary", res.Omitted))
	}

	link := enrich.ConversationLink(o.c.Directory.TeamDomain(ctx), conv.ID)
	d := digest.NewDigest(conv, out.Name, link, enriched, summary, res.Omitted)
	return &d, nil
}

// latestTopLevel is the mark-read target: replies live in threads and do not
// move the conversation cursor.
func latestTopLevel(msgs []slack.Message) slack.Timestamp {
	var ts []slack.Timestamp
	for _, m := range msgs {
		if !m.IsReply() {
			ts = append(ts, m.TS)
		}
	}
	return slack.MaxTimestamp(ts...)
}

func (o *Orchestrator) deliver(ctx context.Context, report *RunReport, n digest.Notification) {
	index := make(map[string]*ConversationOutcome, len(report.Outcomes))
	for i := range report.Outcomes {
		out := &report.Outcomes[i]
		index[out.Conversation.ID] = out
	}
	for _, d := range n.Digests {
		index[d.Conversation.ID].State = StateDelivering
	}

	acks, err := o.c.Deliverer.Deliver(ctx, n)
	for _, ack := range acks {
		for _, id := range ack.Conversations {
			index[id].State = StateDelivered
		}
	}
	if err == nil {
		return
	}
	var de *digest.DeliveryError
	if !errors.As(err, &de) {
		de = &digest.DeliveryError{Err: err}
	}
	for _, d := range n.Digests {
		if out := index[d.Conversation.ID]; out.State == StateDelivering {
			out.fail(StateDeliveryFailed, err)
		}
	}
	o.log.Error("digest delivery failed", "undelivered", len(de.Failed), "error", err)
}

// markRead advances cursors of delivered conversations, and of empty ones
// that had nothing to deliver, bounded like the processing pool. Failures
// leave the conversation unread and are warnings.
func (o *Orchestrator) markRead(ctx context.Context, report *RunReport) {
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i := range report.Outcomes {
		out := &report.Outcomes[i]
		final := StateDone
		switch out.State {
		case StateDelivered:
			out.State = StateMarkingRead
		case StateEmpty:
			final = StateEmpty
		default:
			continue
		}
		g.Go(func() error {
			ack, err := o.c.Marker.MarkRead(ctx, out.Conversation, out.Latest)
			out.State = final
			switch {
			case err != nil:
				out.warn(fmt.Sprintf("not marked read: %v", err))
				o.log.Warn("mark read failed", "channel", out.Conversation.ID, "error", err)
			case ack.Skipped != "":
				out.warn("not marked read: " + ack.Skipped)
			default:
				out.Marked = ack.Marked
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) allCaughtUp(ctx context.Context, report *RunReport) {
	if o.opts.DryRun {
		return
	}
	if err := o.c.Deliverer.Send(ctx, digest.AllCaughtUp(report.Date)); err != nil {
		o.log.Warn("all-caught-up notice not delivered", "error", err)
	}
}

// notifyFailures tells the user that no conversation could be summarized.
func (o *Orchestrator) notifyFailures(ctx context.Context, report *RunReport) {
	err := fmt.Errorf("%d unread conversations could not be read", report.Failed())
	if sendErr := o.c.Deliverer.Send(ctx, digest.ErrorMessage(report.Date, err)); sendErr != nil {
		o.log.Warn("failure notice not delivered", "error", sendErr)
	}
}

// fatal records err and tries to tell the user. The notice is best effort.
func (o *Orchestrator) fatal(ctx context.Context, report *RunReport, err error) {
	report.Fatal = err
	o.log.Error("run failed", "error", err)
	if o.opts.DryRun || o.c.Deliverer == nil {
		return
	}
	if sendErr := o.c.Deliverer.Send(context.WithoutCancel(ctx), digest.ErrorMessage(report.Date, err)); sendErr != nil {
		o.log.Warn("error notice not delivered", "error", sendErr)
	}
}
