package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/digest"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/pipeline"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Summarize unread conversations and DM the digest",
	Long: `Run reads every conversation with unread messages, summarizes each one
with the configured model and sends the digest to slack.user_id by DM.
Conversations that made it into a delivered message are then marked read,
unless skip_mark_read is set.

Exit status is 0 when every conversation succeeded, 2 when some failed or were
delivered without a summary, and 1 when the run failed.

Use --dry-run to print the digest instead of sending it. Nothing is marked
read in a dry run.`,
	Args: cobra.NoArgs,
	RunE: runDigest,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of delivering it")
	rootCmd.AddCommand(runCmd)
}

func runDigest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := newWorkspace(cfg, log)
	if err != nil {
		return err
	}
	defer ws.saveCache(log)

	orch, err := newOrchestrator(ctx, cfg, ws, dryRun, log)
	if err != nil {
		return err
	}
	report := orch.Run(ctx)

	out := cmd.OutOrStdout()
	if report.DryRun && report.Notification != nil {
		printNotification(out, *report.Notification)
	}
	printReport(out, report)

	if code := report.Status().ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// printReport writes the end-of-run summary.
func printReport(w io.Writer, r *pipeline.RunReport) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	status := r.Status()
	label := green
	switch status {
	case pipeline.RunPartial:
		label = yellow
	case pipeline.RunFailed:
		label = red
	}
	fmt.Fprintf(w, "%s %s in %s\n", bold.Sprintf("Digest for %s:", r.Date), label.Sprint(status), r.Duration().Round(10*time.Millisecond))

	if r.ID != "" {
		fmt.Fprintf(w, "  run %s\n", color.New(color.Faint).Sprint(r.ID))
	}
	if r.Fatal != nil {
		fmt.Fprintf(w, "  %s %v\n", red.Sprint("error:"), r.Fatal)
	}
	if len(r.Outcomes) == 0 {
		if r.Fatal == nil {
			fmt.Fprintln(w, "  all caught up")
		}
		return
	}

	fmt.Fprintf(w, "  %s unread %s in %s\n",
		humanize.Comma(int64(r.Messages())), english.PluralWord(r.Messages(), "message", ""),
		plural(len(r.Outcomes), "conversation"))
	if !r.DryRun {
		fmt.Fprintf(w, "  %d delivered, %d marked read\n", r.Delivered(), r.MarkedRead())
	}
	if n := r.Degraded(); n > 0 {
		yellow.Fprintf(w, "  %s without AI summary\n", plural(n, "conversation"))
	}
	for _, o := range r.Outcomes {
		if o.Outcome == pipeline.OutcomeSuccess {
			continue
		}
		c := yellow
		if o.Outcome == pipeline.OutcomeFailed {
			c = red
		}
		name := o.Name
		if name == "" {
			name = o.Conversation.ID
		}
		detail := strings.Join(o.Warnings, "; ")
		if o.Err != nil {
			detail = o.Err.Error()
		}
		fmt.Fprintf(w, "  %s %s (%s): %s\n", c.Sprint(o.Outcome), name, o.State, detail)
	}
}

// printNotification renders the digest as plain text for dry runs.
func printNotification(w io.Writer, n digest.Notification) {
	color.New(color.Bold).Fprintf(w, "Slack digest for %s\n\n", n.Date)
	for _, d := range n.Digests {
		fmt.Fprintf(w, "%s · %s from %s\n", d.ConversationName,
			plural(d.MessageCount, "message"), plural(d.ParticipantCount, "person"))
		body := digest.Preview(d.Messages)
		if d.Summary != nil {
			body = *d.Summary
		}
		for line := range strings.Lines(body) {
			fmt.Fprintf(w, "  %s", line)
		}
		fmt.Fprintf(w, "\n  %s\n\n", color.New(color.Faint).Sprint(d.ConversationLink))
	}
}

func plural(n int, noun string) string {
	if noun == "person" {
		return english.Plural(n, noun, "people")
	}
	return english.Plural(n, noun, "")
}
