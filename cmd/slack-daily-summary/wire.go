package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/channels"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/config"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/digest"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/enrich"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/fetch"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/pipeline"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/readmark"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/slack"
	"github.com/iamabhishekmathur/slack-daily-summary/internal/summarize"
)

const dotEnvFile = ".env"

// loadConfig reads .env, then the config file and environment.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}
	return config.Load(cfgFile)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}

// workspace is the Slack side of a run: the user's client, the client that
// delivers, and the name directory.
type workspace struct {
	creds     *slack.Credentials
	client    *slack.Client
	delivery  *slack.Client
	cache     *slack.UserCache
	directory *enrich.Directory
}

func newWorkspace(cfg *config.Config, log *logger.Logger) (*workspace, error) {
	creds, err := slack.NewCredentials(cfg.Slack.UserToken, cfg.Slack.Cookie)
	if err != nil {
		return nil, fmt.Errorf("slack credentials: %w", err)
	}
	api, err := slack.NewWebAPI(creds)
	if err != nil {
		return nil, err
	}

	l := cfg.Limits
	policy := slack.DefaultRetryPolicy()
	policy.MaxRetries = l.MaxRetries
	client := slack.NewClient(api,
		slack.WithLogger(log),
		slack.WithPacing(l.RateLimitDelay),
		slack.WithRetryPolicy(policy),
	)

	delivery := client
	if token := cfg.DeliveryToken(); token != cfg.Slack.UserToken {
		botCreds, err := slack.NewCredentials(token, "")
		if err != nil {
			return nil, fmt.Errorf("slack bot credentials: %w", err)
		}
		botAPI, err := slack.NewWebAPI(botCreds)
		if err != nil {
			return nil, err
		}
		delivery = client.WithAPI(botAPI)
	}

	cache := slack.NewUserCache(cfg.UserCachePath)
	if err := cache.Load(); err != nil {
		log.Warn("user cache unreadable, starting empty", "path", cfg.UserCachePath, "error", err)
	}

	return &workspace{
		creds:     creds,
		client:    client,
		delivery:  delivery,
		cache:     cache,
		directory: enrich.NewDirectory(client, cache, log),
	}, nil
}

// saveCache persists names learned during the run.
func (w *workspace) saveCache(log *logger.Logger) {
	if err := w.cache.Save(); err != nil {
		log.Warn("user cache not saved", "error", err)
	}
}

func newEnumerator(ctx context.Context, cfg *config.Config, w *workspace, log *logger.Logger) (*channels.Enumerator, error) {
	opts := []channels.EnumeratorOption{
		channels.WithLogger(log),
		channels.WithFilter(channels.NewFilter(cfg.Include, cfg.Exclude)),
	}
	if cfg.Slack.EdgeCounts {
		domain := w.directory.TeamDomain(ctx)
		if domain == "" {
			return nil, errors.New("edge counts need the workspace domain, and team.info failed")
		}
		w.creds.Workspace = domain
		opts = append(opts, channels.WithEdge(slack.NewEdgeClient(w.creds).WithBaseURL(slack.WorkspaceURL(domain))))
	}
	return channels.NewEnumerator(w.client, opts...), nil
}

func newOrchestrator(ctx context.Context, cfg *config.Config, w *workspace, dryRun bool, log *logger.Logger) (*pipeline.Orchestrator, error) {
	enumerator, err := newEnumerator(ctx, cfg, w, log)
	if err != nil {
		return nil, err
	}

	completer, err := summarize.NewOpenAICompleter(summarize.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.Model,
		BaseURL:    cfg.OpenAI.BaseURL,
		MaxRetries: cfg.Limits.MaxRetries,
	}, log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	l := cfg.Limits
	return pipeline.NewOrchestrator(pipeline.Components{
		Enumerator: enumerator,
		Fetcher:    fetch.NewFetcher(w.client, log),
		Enricher:   enrich.NewEnricher(l.MaxMessageLength, log),
		Directory:  w.directory,
		Batcher: summarize.NewBatcher(completer, summarize.Options{
			MaxPromptChars:  l.MaxPromptChars,
			MaxOutputTokens: l.MaxOutputTokens,
			Location:        loc,
		}, log),
		Deliverer: digest.NewDeliverer(w.delivery, cfg.Slack.UserID, l.MaxSectionsPerMessage, log),
		Marker:    readmark.NewMarker(w.client, log),
	}, pipeline.Options{
		Limits:       fetch.Limits{MaxMessages: l.MaxMessagesPerChannel, MaxThreadReplies: l.MaxThreadReplies},
		Concurrency:  l.Concurrency,
		Timezone:     cfg.Timezone,
		SkipMarkRead: cfg.SkipMarkRead,
		DryRun:       dryRun,
	}, log)
}
