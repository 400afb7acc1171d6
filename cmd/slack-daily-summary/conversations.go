package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations with unread messages",
	Long: `List every conversation the next run would summarize, after include and
exclude patterns are applied. Nothing is summarized, sent or marked read.`,
	Args: cobra.NoArgs,
	RunE: listConversations,
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
}

func listConversations(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ws, err := newWorkspace(cfg, log)
	if err != nil {
		return err
	}
	defer ws.saveCache(log)

	ctx := cmd.Context()
	enumerator, err := newEnumerator(ctx, cfg, ws, log)
	if err != nil {
		return err
	}
	convs, err := enumerator.ListConversations(ctx)
	if err != nil {
		return err
	}

	names := make([]string, len(convs))
	for i, c := range convs {
		names[i] = ws.directory.ConversationName(ctx, c)
	}
	printConversations(cmd.OutOrStdout(), convs, names)
	return nil
}

func printConversations(w io.Writer, convs []slack.Conversation, names []string) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No unread conversations.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tUNREAD\tLATEST")
	for i, c := range convs {
		unread := "?"
		if c.UnreadCount > 0 {
			unread = humanize.Comma(int64(c.UnreadCount))
		}
		latest := "-"
		if !c.Latest.IsZero() {
			latest = humanize.Time(c.Latest.Time())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Kind, names[i], unread, latest)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s\n", plural(len(convs), "conversation"))
}
