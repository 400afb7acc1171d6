// Package config loads and validates the digest configuration from YAML, the
// environment, and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName   = "slack-daily-summary"
	envPrefix = "SLACK_DIGEST"
)

// Config holds application configuration loaded from YAML.
type Config struct {
	Slack         SlackConfig  `yaml:"slack" mapstructure:"slack"`
	OpenAI        OpenAIConfig `yaml:"openai" mapstructure:"openai"`
	Limits        Limits       `yaml:"limits" mapstructure:"limits"`
	Timezone      string       `yaml:"timezone" mapstructure:"timezone"`
	Include       []string     `yaml:"include" mapstructure:"include"`
	Exclude       []string     `yaml:"exclude" mapstructure:"exclude"`
	SkipMarkRead  bool         `yaml:"skip_mark_read" mapstructure:"skip_mark_read"`
	UserCachePath string       `yaml:"user_cache_path" mapstructure:"user_cache_path"`
	LogLevel      string       `yaml:"log_level" mapstructure:"log_level"`
	LogMode       string       `yaml:"log_mode" mapstructure:"log_mode"`

	configFile string
}

// SlackConfig holds workspace credentials. UserToken reads and marks; BotToken,
// when set, is used to deliver the notification.
type SlackConfig struct {
	UserToken  string `yaml:"user_token" mapstructure:"user_token"`
	BotToken   string `yaml:"bot_token" mapstructure:"bot_token"`
	Cookie     string `yaml:"cookie" mapstructure:"cookie"`
	UserID     string `yaml:"user_id" mapstructure:"user_id"`
	EdgeCounts bool   `yaml:"edge_counts" mapstructure:"edge_counts"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// Limits are the numeric knobs of the pipeline.
type Limits struct {
	MaxMessagesPerChannel int           `yaml:"max_messages_per_channel" mapstructure:"max_messages_per_channel"`
	MaxThreadReplies      int           `yaml:"max_thread_replies" mapstructure:"max_thread_replies"`
	MaxMessageLength      int           `yaml:"max_message_length" mapstructure:"max_message_length"`
	MaxPromptChars        int           `yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
	MaxOutputTokens       int           `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxRetries            int           `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimitDelay        time.Duration `yaml:"rate_limit_delay" mapstructure:"rate_limit_delay"`
	Concurrency           int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxSectionsPerMessage int           `yaml:"max_sections_per_message" mapstructure:"max_sections_per_message"`
}

// MinMessageLength is the smallest accepted MaxMessageLength; anything shorter
// leaves no room for text next to the truncation marker.
const MinMessageLength = 20

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxMessagesPerChannel: 50,
		MaxThreadReplies:      10,
		MaxMessageLength:      500,
		MaxPromptChars:        8000,
		MaxOutputTokens:       500,
		MaxRetries:            3,
		RateLimitDelay:        time.Second,
		Concurrency:           3,
		MaxSectionsPerMessage: 10,
	}
}

func setDefaults(v *viper.Viper) {
	l := DefaultLimits()
	v.SetDefault("slack.user_token", "")
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.cookie", "")
	v.SetDefault("slack.user_id", "")
	v.SetDefault("slack.edge_counts", false)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("limits.max_messages_per_channel", l.MaxMessagesPerChannel)
	v.SetDefault("limits.max_thread_replies", l.MaxThreadReplies)
	v.SetDefault("limits.max_message_length", l.MaxMessageLength)
	v.SetDefault("limits.max_prompt_chars", l.MaxPromptChars)
	v.SetDefault("limits.max_output_tokens", l.MaxOutputTokens)
	v.SetDefault("limits.max_retries", l.MaxRetries)
	v.SetDefault("limits.rate_limit_delay", l.RateLimitDelay)
	v.SetDefault("limits.concurrency", l.Concurrency)
	v.SetDefault("limits.max_sections_per_message", l.MaxSectionsPerMessage)
	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("include", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("skip_mark_read", false)
	v.SetDefault("user_cache_path", defaultUserCachePath())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_mode", "dev")
}

// bindLegacyEnv lets the plain variable names used by existing deployments
// (SLACK_USER_TOKEN, OPENAI_API_KEY, ...) fill the same keys as the prefixed ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"slack.user_token": {"SLACK_DIGEST_SLACK_USER_TOKEN", "SLACK_USER_TOKEN"},
		"slack.bot_token":  {"SLACK_DIGEST_SLACK_BOT_TOKEN", "SLACK_BOT_TOKEN"},
		"slack.user_id":    {"SLACK_DIGEST_SLACK_USER_ID", "SLACK_USER_ID"},
		"openai.api_key":   {"SLACK_DIGEST_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"openai.model":     {"SLACK_DIGEST_OPENAI_MODEL", "OPENAI_MODEL"},
		"skip_mark_read":   {"SLACK_DIGEST_SKIP_MARK_READ", "SKIP_MARK_AS_READ"},
		"log_level":        {"SLACK_DIGEST_LOG_LEVEL", "LOG_LEVEL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// DefaultConfigPath returns ~/.config/slack-daily-summary/slack-daily-summary.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), appName+".yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir, _ := filepath.Abs(filepath.Join(home, ".config", appName))
	return dir
}

func defaultUserCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "users.json")
}

// Load reads configuration. An explicit path must exist; with an empty path the
// default location is tried and silently skipped when absent. Environment
// variables prefixed SLACK_DIGEST_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(appName)
		v.AddConfigPath(configDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.configFile = v.ConfigFileUsed()
	return &cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ConfigFile returns the config file that was read, or "" when only defaults
// and the environment were used.
func (c *Config) ConfigFile() string {
	return c.configFile
}

// Save writes the configuration as YAML with 0600 permissions.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0600)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

// DeliveryToken is the token used to post the notification.
func (c *Config) DeliveryToken() string {
	if c.Slack.BotToken != "" {
		return c.Slack.BotToken
	}
	return c.Slack.UserToken
}

// IsSessionToken reports whether the user token is a browser session token,
// which needs the d cookie and unlocks the Edge counts endpoint.
func (c *Config) IsSessionToken() bool {
	return strings.HasPrefix(c.Slack.UserToken, "xoxc-")
}

// Validate checks every named field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	fieldErr := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	switch {
	case c.Slack.UserToken == "":
		fieldErr("slack.user_token", "required")
	case strings.HasPrefix(c.Slack.UserToken, "xoxp-"):
	case strings.HasPrefix(c.Slack.UserToken, "xoxc-"):
		if c.Slack.Cookie == "" {
			fieldErr("slack.cookie", "required with an xoxc- session token")
		}
	default:
		fieldErr("slack.user_token", "must start with xoxp- or xoxc-")
	}
	if c.Slack.BotToken != "" && !strings.HasPrefix(c.Slack.BotToken, "xoxb-") {
		fieldErr("slack.bot_token", "must start with xoxb-")
	}
	if c.Slack.EdgeCounts && !c.IsSessionToken() {
		fieldErr("slack.edge_counts", "requires an xoxc- session token")
	}
	if c.Slack.UserID == "" {
		fieldErr("slack.user_id", "required")
	}
	if c.OpenAI.APIKey == "" {
		fieldErr("openai.api_key", "required")
	}
	if c.OpenAI.Model == "" {
		fieldErr("openai.model", "required")
	}
	if _, err := c.Location(); err != nil {
		fieldErr("timezone", "%v", err)
	}

	l := c.Limits
	positive := map[string]int{
		"limits.max_messages_per_channel": l.MaxMessagesPerChannel,
		"limits.max_thread_replies":       l.MaxThreadReplies,
		"limits.max_prompt_chars":         l.MaxPromptChars,
		"limits.max_output_tokens":        l.MaxOutputTokens,
		"limits.concurrency":              l.Concurrency,
		"limits.max_sections_per_message": l.MaxSectionsPerMessage,
	}
	for _, field := range slices.Sorted(maps.Keys(positive)) {
		if positive[field] <= 0 {
			fieldErr(field, "must be positive, got %d", positive[field])
		}
	}
	if l.MaxMessageLength < MinMessageLength {
		fieldErr("limits.max_message_length", "must be at least %d, got %d", MinMessageLength, l.MaxMessageLength)
	}
	if l.MaxRetries < 0 {
		fieldErr("limits.max_retries", "must not be negative, got %d", l.MaxRetries)
	}
	if l.RateLimitDelay < 0 {
		fieldErr("limits.rate_limit_delay", "must not be negative, got %s", l.RateLimitDelay)
	}

	return errors.Join(errs...)
}
