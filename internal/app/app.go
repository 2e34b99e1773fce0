package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"call-insights/handler"
	"call-insights/internal/actions"
	"call-insights/internal/cache"
	"call-insights/internal/config"
	"call-insights/internal/integrations/anthropic"
	"call-insights/internal/integrations/gemini"
	"call-insights/internal/integrations/openai"
	"call-insights/internal/integrations/paramstore"
	"call-insights/internal/llm"
	"call-insights/internal/logger"
	"call-insights/internal/repository"
	"call-insights/internal/telemetry"
	"call-insights/internal/usecase"
)

const redisPingTimeout = 2 * time.Second

// App is the wired object graph shared by the Lambda and HTTP entry points.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Handler  *handler.Handler

	closers []func() error
}

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// New builds every dependency from cfg. AWS is only contacted when a
// provider key lives in Parameter Store or an analysis table is configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.New(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	var awsCfg aws.Config
	if cfg.NeedsSSM() || cfg.AWS.AnalysisTable != "" {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWS.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWS.Region))
		}
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
	}

	var params paramstore.Getter
	if cfg.NeedsSSM() {
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
	}

	providers, err := buildProviders(cfg, params, http.DefaultClient)
	if err != nil {
		return nil, err
	}
	chain, err := llm.NewChain(providers, chainOptions(cfg, log, metrics)...)
	if err != nil {
		return nil, err
	}

	engine, err := actions.NewEngine(
		actions.WithMaxActions(cfg.Analysis.MaxActions),
		actions.WithDedupMode(actions.DedupMode(cfg.Analysis.DedupMode)),
	)
	if err != nil {
		return nil, err
	}

	svcOpts := []usecase.ServiceOption{
		usecase.WithLogger(log),
		usecase.WithMetrics(metrics),
		usecase.WithChainID(cfg.ChainID()),
		usecase.WithPromptOptions(usecase.PromptOptions{
			Language:                 cfg.Analysis.Language,
			EnableEmotionDetection:   cfg.Analysis.EnableEmotionDetection,
			EnableTopicExtraction:    cfg.Analysis.EnableTopicExtraction,
			EnableCompetitorAnalysis: cfg.Analysis.EnableCompetitorAnalysis,
		}),
	}
	var handlerOpts []handler.Option

	if cfg.Redis.Addr != "" {
		memo, err := a.redisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, usecase.WithCache(memo))
	}

	if cfg.AWS.AnalysisTable != "" {
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.AWS.AnalysisTable, repository.WithTTL(cfg.AWS.RecordTTL))
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, usecase.WithStore(store))
		handlerOpts = append(handlerOpts, handler.WithReader(store))
	}

	svc, err := usecase.NewAnalyzeService(chain, engine, svcOpts...)
	if err != nil {
		return nil, err
	}
	a.Handler, err = handler.NewHandler(svc, engine, append(handlerOpts, handler.WithLogger(log))...)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"chain":     cfg.ChainID(),
		"persist":   cfg.AWS.AnalysisTable != "",
		"cache":     cfg.Redis.Addr != "",
		"language":  cfg.Analysis.Language,
		"max_retry": cfg.Retry.MaxRetries,
	}).Info("Call insights initialized")
	return a, nil
}

func (a *App) redisCache(ctx context.Context, rc config.RedisConfig) (*cache.AnalysisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	a.closers = append(a.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Cache failures degrade to misses, so an unreachable Redis is not fatal.
		a.Logger.WithError(err).WithField("addr", rc.Addr).Warn("Redis unreachable at startup")
	}
	return cache.NewAnalysisCache(rdb, rc.TTL)
}

// Close releases network clients opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func chainOptions(cfg *config.Config, log *logrus.Logger, metrics *telemetry.Metrics) []llm.Option {
	opts := []llm.Option{
		llm.WithLogger(log),
		llm.WithMetrics(metrics),
		llm.WithRetry(cfg.Retry.MaxRetries, cfg.Retry.Backoff),
		llm.WithAttemptTimeout(cfg.Retry.AttemptTimeout),
		llm.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
	for _, p := range cfg.Providers {
		opts = append(opts, llm.WithPricing(p.Name, p.PricePer1KTokens))
		if p.Timeout > 0 {
			opts = append(opts, llm.WithProviderTimeout(p.Name, p.Timeout))
		}
	}
	return opts
}

// buildProviders creates one client per configured provider, in chain order.
// params may be nil when every provider has an inline API key.
func buildProviders(cfg *config.Config, params paramstore.Getter, httpClient *http.Client) ([]llm.Provider, error) {
	providers := make([]llm.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		tokens, err := providerToken(cfg, p, params)
		if err != nil {
			return nil, err
		}

		var provider llm.Provider
		switch p.Name {
		case config.ProviderOpenAI:
			provider, err = openai.NewClient(tokens, p.Model, openai.WithBaseURL(p.BaseURL), openai.WithHTTPClient(httpClient))
		case config.ProviderGemini:
			provider, err = gemini.NewClient(tokens, p.Model, gemini.WithBaseURL(p.BaseURL), gemini.WithHTTPClient(httpClient))
		case config.ProviderAnthropic:
			provider, err = anthropic.NewClient(tokens, p.Model, anthropic.WithBaseURL(p.BaseURL), anthropic.WithHTTPClient(httpClient))
		default:
			err = fmt.Errorf("app: unknown provider %q", p.Name)
		}
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, nil
}

func providerToken(cfg *config.Config, p config.ProviderConfig, params paramstore.Getter) (tokenSource, error) {
	if p.APIKey != "" {
		return paramstore.Static(p.APIKey), nil
	}
	if params == nil {
		return nil, fmt.Errorf("app: provider %s has no API key and no parameter store", p.Name)
	}
	return paramstore.NewToken(params, cfg.TokenParameter(p))
}
