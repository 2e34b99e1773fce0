package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"call-insights/internal/llm"
)

const (
	providerName = "gemini"
	systemPrompt = "You are an expert sales conversation analyst. Reply with one JSON object and nothing else."
)

// TokenSource yields the API key; *paramstore.Token satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the Gemini fallback provider backed by the genai SDK. The SDK
// client is built lazily because the API key lives in SSM.
type Client struct {
	tokens     TokenSource
	model      string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
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

func NewClient(tokens TokenSource, model string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("gemini: token source must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	c := &Client{
		tokens:     tokens,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return providerName }

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	apiKey, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve API key: %w", err)
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.client = client
	return client, nil
}

// Analyze requests a JSON response constrained by AnalysisSchema.
func (c *Client) Analyze(ctx context.Context, prompt string) (llm.Completion, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return llm.Completion{}, err
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    AnalysisSchema,
	})
	if err != nil {
		return llm.Completion{}, wrapError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return llm.Completion{}, fmt.Errorf("gemini: %w", llm.ErrEmptyCompletion)
	}

	comp := llm.Completion{
		Content:  text,
		Provider: providerName,
		Model:    c.model,
	}
	if resp.ModelVersion != "" {
		comp.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		comp.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return comp, nil
}

// wrapError lifts the SDK's API error into llm.StatusError so the chain can
// classify it like any HTTP provider.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Provider: providerName, StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &llm.StatusError{Provider: providerName, StatusCode: apiErrPtr.Code, Err: err}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
