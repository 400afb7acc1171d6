package summarize

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/iamabhishekmathur/slack-daily-summary/internal/logger"
)

const defaultModel = "gpt-4o-mini"

// structuredSummary is the shape the model must answer in.
type structuredSummary struct {
	Overview    string   `json:"overview" jsonschema:"description=One or two sentences on what happened"`
	KeyPoints   []string `json:"key_points" jsonschema:"description=Decisions and updates and open questions"`
	ActionItems []string `json:"action_items" jsonschema:"description=Things the reader is asked to do; empty when none"`
}

// mrkdwn renders the summary for a Slack section block.
func (s structuredSummary) mrkdwn() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.Overview))
	for _, p := range s.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteString("\n• " + p)
		}
	}
	var actions []string
	for _, a := range s.ActionItems {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	if len(actions) > 0 {
		b.WriteString("\n*Action items*")
		for _, a := range actions {
			b.WriteString("\n☐ " + a)
		}
	}
	return strings.TrimSpace(b.String())
}

// summarySchema reflects structuredSummary into a strict-mode schema.
func summarySchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(&structuredSummary{}))
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}

// OpenAIConfig configures OpenAICompleter.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// OpenAICompleter summarizes with OpenAI chat completions and structured
// output.
type OpenAICompleter struct {
	client openai.Client
	model  string
	schema map[string]any
	log    *logger.Logger
}

// NewOpenAICompleter returns a Completer backed by chat completions. An API key is required.
func NewOpenAICompleter(cfg OpenAIConfig, log *logger.Logger) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	schema, err := summarySchema()
	if err != nil {
		return nil, fmt.Errorf("building summary schema: %w", err)
	}
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  cmp.Or(cfg.Model, defaultModel),
		schema: schema,
		log:    logger.OrNop(log),
	}, nil
}

// Model is the model requests are sent to.
func (c *OpenAICompleter) Model() string { return c.model }

// Complete asks for a structured summary and renders it as Slack mrkdwn.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(0.3),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "conversation_summary",
					Schema: c.schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ClassifyCompletion(fmt.Errorf("openai chat: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", ClassifyCompletion(errors.New("no choices in response"))
	}
	choice := resp.Choices[0]
	c.log.Debug("summary completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason)

	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		return "", ClassifyCompletion(ErrContentFiltered)
	}
	var out structuredSummary
	if err := json.Unmarshal([]byte(choice.Message.Content), &out); err != nil {
		return "", ClassifyCompletion(fmt.Errorf("decoding summary: %w", err))
	}
	text := out.mrkdwn()
	if text == "" {
		return "", ClassifyCompletion(errors.New("empty summary"))
	}
	return text, nil
}
