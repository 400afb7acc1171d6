package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/config"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printConfig(cmd.OutOrStdout(), cfg)
		if err := cfg.Validate(); err != nil {
			color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "\nConfiguration is incomplete:\n%v\n", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func printConfig(w io.Writer, cfg *config.Config) {
	file := cfg.ConfigFile()
	if file == "" {
		file = "(none, defaults and environment)"
	}
	l := cfg.Limits
	fmt.Fprintf(w, "Config file:      %s\n", file)
	fmt.Fprintf(w, "Slack user token: %s\n", maskSecret(cfg.Slack.UserToken))
	fmt.Fprintf(w, "Slack bot token:  %s\n", maskSecret(cfg.Slack.BotToken))
	fmt.Fprintf(w, "Slack cookie:     %s\n", maskSecret(cfg.Slack.Cookie))
	fmt.Fprintf(w, "Slack user ID:    %s\n", cfg.Slack.UserID)
	fmt.Fprintf(w, "Edge counts:      %t\n", cfg.Slack.EdgeCounts)
	fmt.Fprintf(w, "OpenAI key:       %s\n", maskSecret(cfg.OpenAI.APIKey))
	fmt.Fprintf(w, "OpenAI model:     %s\n", cfg.OpenAI.Model)
	fmt.Fprintf(w, "Timezone:         %s\n", cfg.Timezone)
	fmt.Fprintf(w, "Include:          %s\n", formatPatterns(cfg.Include))
	fmt.Fprintf(w, "Exclude:          %s\n", formatPatterns(cfg.Exclude))
	fmt.Fprintf(w, "Skip mark read:   %t\n", cfg.SkipMarkRead)
	fmt.Fprintf(w, "User cache:       %s\n", cfg.UserCachePath)
	fmt.Fprintf(w, "Limits:           %d messages, %d replies, %d chars/message, %d chars/prompt, %d output tokens\n",
		l.MaxMessagesPerChannel, l.MaxThreadReplies, l.MaxMessageLength, l.MaxPromptChars, l.MaxOutputTokens)
	fmt.Fprintf(w, "                  %d retries, %s pacing, %d workers, %d sections/message\n",
		l.MaxRetries, l.RateLimitDelay, l.Concurrency, l.MaxSectionsPerMessage)
}

// formatPatterns formats a slice of patterns for display.
func formatPatterns(patterns []string) string {
	if len(patterns) == 0 {
		return "(none)"
	}
	return "[" + strings.Join(patterns, ", ") + "]"
}

// maskSecret keeps a token's prefix and last four characters.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 12:
		return "****"
	}
	prefix := ""
	if i := strings.IndexByte(s, '-'); i > 0 && i < 5 {
		prefix = s[:i+1]
	}
	return prefix + "****" + s[len(s)-4:]
}
