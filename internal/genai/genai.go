// Package genai provides GenAI-enhanced intent classification using the
// OpenAI API. It backs the router when the keyword heuristic cannot place
// a message into a flow.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/labflowhq/labflow/internal/models"
)

const classifierSystemPrompt = `You classify WhatsApp messages sent to a diagnostic lab into exactly one label.
Labels: BOOK_TEST (book a diagnostic test), UPLOAD_DOCUMENT (send/store a report),
RETRIEVE_DOCUMENT (fetch a previously uploaded report), ANALYZE_REPORT (questions about report contents).
Reply with the label only.`

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API for intent classification.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a GenAI client, falling back to the OPENAI_API_KEY
// environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}

	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// ClassifyIntent asks the model which flow a message starts.
func (c *Client) ClassifyIntent(ctx context.Context, message string) (models.IntentKind, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierSystemPrompt),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		slog.Error("GenAI ClassifyIntent request failed", "error", err)
		return "", fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	label := models.IntentKind(strings.TrimSpace(strings.ToUpper(resp.Choices[0].Message.Content)))
	if !models.IsValidIntentKind(label) {
		slog.Warn("GenAI ClassifyIntent returned unknown label", "label", label)
		return "", fmt.Errorf("unknown intent label %q: %w", label, models.ErrUnknownIntent)
	}

	slog.Debug("GenAI ClassifyIntent succeeded", "label", label)
	return label, nil
}
