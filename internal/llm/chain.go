package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"call-insights/internal/telemetry"
)

const (
	defaultMaxRetries     = 2
	defaultBackoff        = 2 * time.Second
	defaultAttemptTimeout = 60 * time.Second
)

// Completion is the raw result of one successful provider call.
type Completion struct {
	Content    string
	TokensUsed int
	Cost       float64
	Provider   string
	Model      string
}

// Provider is a single language-model backend. Implementations carry no
// per-call session and must be safe for concurrent use.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, prompt string) (Completion, error)
}

// Chain tries providers strictly in order. Transient failures are retried on
// the same provider; anything else advances to the next one.
type Chain struct {
	providers        []Provider
	logger           *logrus.Logger
	metrics          *telemetry.Metrics
	maxRetries       int
	backoff          time.Duration
	attemptTimeout   time.Duration
	providerTimeouts map[string]time.Duration
	pricing          map[string]float64
	limiters         map[string]*rate.Limiter
	sleep            func(ctx context.Context, d time.Duration) error
}

type Option func(*Chain)

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

// WithRetry sets how many extra attempts a transient failure gets on the same
// provider and the base delay, doubled per retry.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Chain) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithProviderTimeout overrides the attempt timeout for one provider.
func WithProviderTimeout(name string, d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.providerTimeouts[name] = d
		}
	}
}

// WithPricing sets the USD price per 1000 tokens for a provider.
func WithPricing(name string, per1KTokens float64) Option {
	return func(c *Chain) {
		c.pricing[name] = per1KTokens
	}
}

// WithRateLimit gives every provider its own token bucket.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Chain) {
		if rps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		for _, p := range c.providers {
			c.limiters[p.Name()] = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func NewChain(providers []Provider, opts ...Option) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("llm: provider must not be nil")
		}
	}
	c := &Chain{
		providers:        providers,
		logger:           logrus.StandardLogger(),
		maxRetries:       defaultMaxRetries,
		backoff:          defaultBackoff,
		attemptTimeout:   defaultAttemptTimeout,
		providerTimeouts: make(map[string]time.Duration),
		pricing:          make(map[string]float64),
		limiters:         make(map[string]*rate.Limiter),
		sleep:            sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Providers lists provider names in attempt order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Analyze returns the first successful completion. It fails with
// *ExhaustedError once every provider is used up, or with a KindCanceled
// *ProviderError when ctx ends first.
func (c *Chain) Analyze(ctx context.Context, prompt string) (Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return Completion{}, errors.New("llm: prompt must not be empty")
	}

	var failures []*ProviderError
	for _, p := range c.providers {
		for attempt := 1; ; attempt++ {
			comp, err := c.attempt(ctx, p, prompt)
			if err == nil {
				return comp, nil
			}

			kind, status := Classify(err)
			if ctx.Err() != nil {
				kind = KindCanceled
			}
			perr := &ProviderError{Provider: p.Name(), Attempt: attempt, Kind: kind, StatusCode: status, Err: err}
			failures = append(failures, perr)
			c.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"attempt":  attempt,
				"kind":     kind.String(),
				"status":   status,
			}).WithError(err).Warn("Provider attempt failed")

			if kind == KindCanceled {
				return Completion{}, perr
			}
			if kind != KindTransient || attempt > c.maxRetries {
				break
			}
			if err := c.sleep(ctx, c.backoff*time.Duration(1<<(attempt-1))); err != nil {
				return Completion{}, &ProviderError{Provider: p.Name(), Attempt: attempt, Kind: KindCanceled, Err: err}
			}
		}
	}
	return Completion{}, &ExhaustedError{Failures: failures}
}

func (c *Chain) attempt(ctx context.Context, p Provider, prompt string) (Completion, error) {
	name := p.Name()
	if lim, ok := c.limiters[name]; ok {
		if err := lim.Wait(ctx); err != nil {
			return Completion{}, err
		}
	}

	timeout := c.attemptTimeout
	if d, ok := c.providerTimeouts[name]; ok {
		timeout = d
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	comp, err := p.Analyze(attemptCtx, prompt)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(comp.Content) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		kind, _ := Classify(err)
		c.metrics.ObserveAttempt(name, kind.String(), elapsed)
		return Completion{}, err
	}

	if comp.Provider == "" {
		comp.Provider = name
	}
	if price, ok := c.pricing[name]; ok && comp.TokensUsed > 0 {
		comp.Cost = float64(comp.TokensUsed) / 1000 * price
	}
	c.metrics.ObserveAttempt(name, "success", elapsed)
	c.metrics.AddTokens(name, comp.TokensUsed)
	c.logger.WithFields(logrus.Fields{
		"provider":    name,
		"model":       comp.Model,
		"tokens":      comp.TokensUsed,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("Provider analysis completed")
	return comp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
