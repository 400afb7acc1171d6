package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, injected at build time via ldflags.
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "slack-daily-summary",
	Short: "DM yourself an AI digest of your unread Slack messages",
	Long: `slack-daily-summary reads every conversation you have unread messages in,
summarizes each one, sends you a single digest by DM and then marks what it
delivered as read.

Run it once a day from cron or CI. Configuration is a YAML file plus
SLACK_DIGEST_* environment variables; a .env file in the working directory is
loaded first.`,
	Version:       fmt.Sprintf("%s (build %s, %s)", Version, Build, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ~/.config/slack-daily-summary/slack-daily-summary.yaml)")
}

// exitError carries a non-zero exit status without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
