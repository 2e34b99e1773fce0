package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"call-insights/internal/llm"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
	systemPrompt     = "You are an expert sales conversation analyst. Reply with one JSON object and nothing else."
)

// TokenSource yields the API key; *paramstore.Token satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the Claude fallback provider.
type Client struct {
	tokens     TokenSource
	model      string
	maxTokens  int64
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func NewClient(tokens TokenSource, model string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("anthropic: token source must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("anthropic: model must not be empty")
	}
	c := &Client{
		tokens:     tokens,
		model:      model,
		maxTokens:  defaultMaxTokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return providerName }

// Analyze sends one user turn. SDK retries are disabled; the chain owns retry
// policy.
func (c *Client) Analyze(ctx context.Context, prompt string) (llm.Completion, error) {
	apiKey, err := c.tokens.Token(ctx)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("anthropic: resolve API key: %w", err)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(c.httpClient),
	}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return llm.Completion{}, wrapError(err)
	}

	tokens := int(message.Usage.InputTokens + message.Usage.OutputTokens)
	model := string(message.Model)
	if model == "" {
		model = c.model
	}
	for _, block := range message.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return llm.Completion{
				Content:    block.Text,
				TokensUsed: tokens,
				Provider:   providerName,
				Model:      model,
			}, nil
		}
	}
	return llm.Completion{}, fmt.Errorf("anthropic: no text content in response: %w", llm.ErrEmptyCompletion)
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Provider: providerName, StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("anthropic: create message: %w", err)
}
