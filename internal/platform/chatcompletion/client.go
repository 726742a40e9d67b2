// Package chatcompletion talks to any OpenAI-compatible chat completions
// endpoint (Mistral, local gateways) through go-openai.
package chatcompletion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yungbote/mensa-backend/internal/observability"
	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Client interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	Provider() string
	Model() string
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ConfigFromEnv reads CHAT_API_KEY, CHAT_BASE_URL and CHAT_MODEL. The
// defaults target Mistral's hosted API.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:      strings.TrimSpace(os.Getenv("CHAT_API_KEY")),
		BaseURL:     strings.TrimSpace(os.Getenv("CHAT_BASE_URL")),
		Model:       strings.TrimSpace(os.Getenv("CHAT_MODEL")),
		Temperature: 0.3,
		MaxTokens:   10,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-small-latest"
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_MAX_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	return cfg
}

type client struct {
	log   *logger.Logger
	api   *openai.Client
	cfg   Config
	label string
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing CHAT_API_KEY")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &client{
		log:   log.With("service", "ChatCompletionClient"),
		api:   openai.NewClientWithConfig(oc),
		cfg:   cfg,
		label: "chat",
	}, nil
}

func (c *client) Provider() string { return c.label }
func (c *client) Model() string    { return c.cfg.Model }

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveAICall(c.label, c.cfg.Model, outcomeOf(err), time.Since(start))
	}
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return text, nil
}

// StatusError exposes the upstream HTTP status so shared retry logic can
// classify go-openai failures.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string       { return fmt.Sprintf("chat completion http %d: %v", e.StatusCode, e.Err) }
func (e *StatusError) Unwrap() error       { return e.Err }
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var se *StatusError
	if errors.As(wrapError(err), &se) {
		return strconv.Itoa(se.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
