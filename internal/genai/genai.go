// Package genai provides the Model Gateway over the OpenAI chat completions API.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default configuration values.
const (
	DefaultModel          = "gpt-4o-mini"
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 1000
	DefaultImageMaxTokens = 300
	DefaultRequestTimeout = 60 * time.Second
	imageDataURLPrefix    = "data:image/jpeg;base64,"
)

// ErrNoChoicesReturned is wrapped when the API answers without any choice.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Message is one role-tagged entry of a model request.
type Message struct {
	Role    models.Role
	Content string
}

// Gateway is the Model Gateway used by the handlers. Every method returns either text or an *Error.
type Gateway interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	CompleteSingle(ctx context.Context, userMessage, systemPrompt string) (string, error)
	CaptionImage(ctx context.Context, image []byte, prompt string) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts openai.ChatCompletionService to chatService.
type completionsAdapter struct {
	svc openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI ChatCompletion service.
type Client struct {
	chat           chatService
	model          string
	temperature    float64
	maxTokens      int
	imageMaxTokens int
	timeout        time.Duration
	debugMode      bool
	stateDir       string
}

// Compile-time check that Client implements Gateway.
var _ Gateway = (*Client)(nil)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	DebugMode   bool
	StateDir    string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// WithMaxTokens sets the completion token limit for text requests.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebugMode writes every request and response as JSON under stateDir/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// NewClient initializes a new GenAI client using the provided options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	slog.Debug("GenAI NewClient", "model", cfg.Model, "temperature", cfg.Temperature, "max_tokens", cfg.MaxTokens, "debug", cfg.DebugMode)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:           completionsAdapter{svc: cli.Chat.Completions},
		model:          cfg.Model,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		imageMaxTokens: DefaultImageMaxTokens,
		timeout:        cfg.Timeout,
		debugMode:      cfg.DebugMode,
		stateDir:       cfg.StateDir,
	}, nil
}

// Complete sends an ordered message sequence verbatim and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		case models.RoleUser:
			params = append(params, openai.UserMessage(m.Content))
		default:
			return "", &Error{Kind: Unknown, Err: fmt.Errorf("%w: %q", models.ErrInvalidRole, m.Role)}
		}
	}
	return c.create(ctx, "Complete", params, c.maxTokens)
}

// CompleteSingle is Complete with an optional system prompt and one user message.
func (c *Client) CompleteSingle(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	var msgs []Message
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, Message{Role: models.RoleUser, Content: userMessage})
	return c.Complete(ctx, msgs)
}

// CaptionImage describes a JPEG/PNG image using the vision-capable model.
func (c *Client) CaptionImage(ctx context.Context, image []byte, prompt string) (string, error) {
	url := imageDataURLPrefix + base64.StdEncoding.EncodeToString(image)
	msg := openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
	})
	slog.Debug("GenAI CaptionImage", "bytes", len(image))
	return c.create(ctx, "CaptionImage", []openai.ChatCompletionMessageParamUnion{msg}, c.imageMaxTokens)
}

func (c *Client) create(ctx context.Context, method string, messages []openai.ChatCompletionMessageParamUnion, maxTokens int) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
	slog.Debug("GenAI "+method+" sending request", "model", c.model, "messages", len(messages))

	resp, err := c.chat.Create(ctx, params)
	c.writeDebugLog(method, params, resp, err)
	if err != nil {
		gerr := classify(err)
		slog.Error("GenAI "+method+" failed", "kind", gerr.Kind, "error", err)
		return "", gerr
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI " + method + " returned no choices")
		return "", &Error{Kind: Unknown, Err: ErrNoChoicesReturned}
	}
	slog.Info("GenAI "+method+" response received", "tokens_used", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
