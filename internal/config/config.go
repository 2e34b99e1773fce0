package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CALL_INSIGHTS_"

// Provider names understood by the wiring layer.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Providers []ProviderConfig `yaml:"providers"`
	Retry     RetryConfig      `yaml:"retry"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	AWS       AWSConfig        `yaml:"aws"`
	Redis     RedisConfig      `yaml:"redis"`
	Server    ServerConfig     `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AnalysisConfig struct {
	Language                 string `yaml:"language"`
	EnableEmotionDetection   bool   `yaml:"enable_emotion_detection"`
	EnableTopicExtraction    bool   `yaml:"enable_topic_extraction"`
	EnableCompetitorAnalysis bool   `yaml:"enable_competitor_analysis"`
	MaxActions               int    `yaml:"max_actions"`
	DedupMode                string `yaml:"dedup_mode"`
}

// ProviderConfig describes one entry of the ordered fallback chain. APIKey is
// only read from the environment; TokenParam names the SSM parameter holding
// {"token": "..."} and is relative to AWS.ParamPrefix unless it starts with "/".
type ProviderConfig struct {
	Name             string        `yaml:"name"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	TokenParam       string        `yaml:"token_param"`
	APIKey           string        `yaml:"-"`
	PricePer1KTokens float64       `yaml:"price_per_1k_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
}

type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	Backoff        time.Duration `yaml:"backoff"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AWSConfig struct {
	Region        string        `yaml:"region"`
	ParamPrefix   string        `yaml:"param_prefix"`
	AnalysisTable string        `yaml:"analysis_table"`
	RecordTTL     time.Duration `yaml:"record_ttl"`
}

// RedisConfig enables the analysis memo cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"-"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Analysis: AnalysisConfig{
			Language:                 "es",
			EnableEmotionDetection:   true,
			EnableTopicExtraction:    true,
			EnableCompetitorAnalysis: true,
			MaxActions:               6,
			DedupMode:                "append_high",
		},
		Providers: []ProviderConfig{
			defaultProvider(ProviderOpenAI),
			defaultProvider(ProviderGemini),
			defaultProvider(ProviderAnthropic),
		},
		Retry:     RetryConfig{MaxRetries: 2, Backoff: 2 * time.Second, AttemptTimeout: 60 * time.Second},
		RateLimit: RateLimitConfig{RPS: 0, Burst: 1},
		AWS:       AWSConfig{RecordTTL: 90 * 24 * time.Hour},
		Redis:     RedisConfig{TTL: 24 * time.Hour},
		Server:    ServerConfig{Addr: ":8080"},
	}
}

func defaultProvider(name string) ProviderConfig {
	switch name {
	case ProviderOpenAI:
		return ProviderConfig{Name: name, Model: "gpt-4o-mini", TokenParam: "open-ai-token", PricePer1KTokens: 0.0003}
	case ProviderGemini:
		return ProviderConfig{Name: name, Model: "gemini-2.0-flash", TokenParam: "gemini-token", PricePer1KTokens: 0.0002}
	case ProviderAnthropic:
		return ProviderConfig{Name: name, Model: "claude-3-5-haiku-latest", TokenParam: "anthropic-token", PricePer1KTokens: 0.002}
	default:
		return ProviderConfig{Name: name}
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// an optional .env file and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str(envPrefix+"LOG_LEVEL", &c.Log.Level)
	e.str(envPrefix+"LOG_FORMAT", &c.Log.Format)

	e.str(envPrefix+"LANGUAGE", &c.Analysis.Language)
	e.boolean(envPrefix+"ENABLE_EMOTION_DETECTION", &c.Analysis.EnableEmotionDetection)
	e.boolean(envPrefix+"ENABLE_TOPIC_EXTRACTION", &c.Analysis.EnableTopicExtraction)
	e.boolean(envPrefix+"ENABLE_COMPETITOR_ANALYSIS", &c.Analysis.EnableCompetitorAnalysis)
	e.integer(envPrefix+"MAX_ACTIONS", &c.Analysis.MaxActions)
	e.str(envPrefix+"DEDUP_MODE", &c.Analysis.DedupMode)

	if v, ok := e.value(envPrefix + "PROVIDERS"); ok {
		c.Providers = c.reorderProviders(strings.Split(v, ","))
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		key := envPrefix + strings.ToUpper(p.Name) + "_"
		e.str(key+"MODEL", &p.Model)
		e.str(key+"BASE_URL", &p.BaseURL)
		e.str(key+"TOKEN_PARAM", &p.TokenParam)
		e.str(key+"API_KEY", &p.APIKey)
		e.float(key+"PRICE_PER_1K_TOKENS", &p.PricePer1KTokens)
		e.duration(key+"TIMEOUT", &p.Timeout)
	}

	e.integer(envPrefix+"MAX_RETRIES", &c.Retry.MaxRetries)
	e.duration(envPrefix+"RETRY_BACKOFF", &c.Retry.Backoff)
	e.duration(envPrefix+"ATTEMPT_TIMEOUT", &c.Retry.AttemptTimeout)
	e.float(envPrefix+"RATE_LIMIT_RPS", &c.RateLimit.RPS)
	e.integer(envPrefix+"RATE_LIMIT_BURST", &c.RateLimit.Burst)

	e.str("AWS_REGION", &c.AWS.Region)
	e.str("PARAM_PREFIX", &c.AWS.ParamPrefix)
	e.str("ANALYSIS_TABLE", &c.AWS.AnalysisTable)
	e.duration(envPrefix+"RECORD_TTL", &c.AWS.RecordTTL)

	e.str(envPrefix+"REDIS_ADDR", &c.Redis.Addr)
	e.str(envPrefix+"REDIS_PASSWORD", &c.Redis.Password)
	e.integer(envPrefix+"REDIS_DB", &c.Redis.DB)
	e.duration(envPrefix+"REDIS_TTL", &c.Redis.TTL)

	e.str(envPrefix+"SERVER_ADDR", &c.Server.Addr)

	return errors.Join(e.errs...)
}

// reorderProviders keeps the named providers in the given order, reusing any
// settings already configured for them.
func (c *Config) reorderProviders(names []string) []ProviderConfig {
	byName := make(map[string]ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		byName[p.Name] = p
	}
	out := make([]ProviderConfig, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if p, ok := byName[n]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, defaultProvider(n))
	}
	return out
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.value(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.value(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.value(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.value(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = d
	}
}

// Validate rejects configurations the wiring layer cannot build.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log format %q", c.Log.Format))
	}
	if strings.TrimSpace(c.Analysis.Language) == "" {
		errs = append(errs, errors.New("config: analysis language must not be empty"))
	}
	if c.Analysis.MaxActions <= 0 {
		errs = append(errs, fmt.Errorf("config: max actions must be positive, got %d", c.Analysis.MaxActions))
	}
	switch c.Analysis.DedupMode {
	case "append_high", "replace_high":
	default:
		errs = append(errs, fmt.Errorf("config: unknown dedup mode %q", c.Analysis.DedupMode))
	}

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("config: at least one provider is required"))
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		switch p.Name {
		case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		default:
			errs = append(errs, fmt.Errorf("config: unknown provider %q", p.Name))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("config: provider %q listed twice", p.Name))
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.Model) == "" {
			errs = append(errs, fmt.Errorf("config: provider %q has no model", p.Name))
		}
		if p.APIKey == "" && c.TokenParameter(p) == "" {
			errs = append(errs, fmt.Errorf("config: provider %q needs an API key or a token parameter", p.Name))
		}
		if p.PricePer1KTokens < 0 {
			errs = append(errs, fmt.Errorf("config: provider %q has a negative price", p.Name))
		}
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("config: max retries must not be negative"))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("config: retry backoff must not be negative"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("config: rate limit rps must not be negative"))
	}
	return errors.Join(errs...)
}

// TokenParameter resolves the full SSM name for a provider's token, or "" when
// none can be built.
func (c *Config) TokenParameter(p ProviderConfig) string {
	param := strings.TrimSpace(p.TokenParam)
	if param == "" {
		return ""
	}
	if strings.HasPrefix(param, "/") {
		return param
	}
	prefix := strings.TrimRight(strings.TrimSpace(c.AWS.ParamPrefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/" + param
}

// ChainID identifies the provider chain, e.g. "openai:gpt-4o-mini>gemini:gemini-2.0-flash".
func (c *Config) ChainID() string {
	parts := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		parts = append(parts, p.Name+":"+p.Model)
	}
	return strings.Join(parts, ">")
}

// NeedsSSM reports whether any provider reads its key from Parameter Store.
func (c *Config) NeedsSSM() bool {
	for _, p := range c.Providers {
		if p.APIKey == "" {
			return true
		}
	}
	return false
}
