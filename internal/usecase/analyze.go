package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"call-insights/internal/domain"
	"call-insights/internal/llm"
	"call-insights/internal/telemetry"
)

const maxConversationIDLength = 128

// LLM is the provider chain as seen by the pipeline.
type LLM interface {
	Analyze(ctx context.Context, prompt string) (llm.Completion, error)
}

type ActionRecommender interface {
	Recommend(a domain.ConversationAnalysis) []domain.IntelligentAction
}

// AnalysisStore persists finished analyses keyed by conversation ID.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, rec domain.AnalysisRecord) error
}

// AnalysisCache memoizes normalized analyses by transcript fingerprint.
type AnalysisCache interface {
	Get(ctx context.Context, key string) (domain.ConversationAnalysis, bool, error)
	Set(ctx context.Context, key string, a domain.ConversationAnalysis) error
}

type AnalyzeInput struct {
	ConversationID string                        `json:"conversationId"`
	Transcript     domain.ConversationTranscript `json:"transcript"`
}

// Result is the discriminated outcome of one pipeline run. Exactly one of
// Analysis and Error is set.
type Result struct {
	Success        bool
	Analysis       *domain.ConversationAnalysis
	Actions        []domain.IntelligentAction
	Error          *Error
	ProcessingTime int64
	Persisted      bool
	Cached         bool
}

type AnalyzeService struct {
	llm         LLM
	recommender ActionRecommender
	store       AnalysisStore
	cache       AnalysisCache
	prompt      PromptOptions
	chainID     string
	logger      *logrus.Logger
	metrics     *telemetry.Metrics
	now         func() time.Time
}

type ServiceOption func(*AnalyzeService)

func WithStore(store AnalysisStore) ServiceOption {
	return func(s *AnalyzeService) {
		s.store = store
	}
}

func WithCache(cache AnalysisCache) ServiceOption {
	return func(s *AnalyzeService) {
		s.cache = cache
	}
}

func WithPromptOptions(opts PromptOptions) ServiceOption {
	return func(s *AnalyzeService) {
		s.prompt = opts
	}
}

// WithChainID names the provider/model chain; it is part of the cache key so
// switching models never serves stale analyses.
func WithChainID(id string) ServiceOption {
	return func(s *AnalyzeService) {
		s.chainID = id
	}
}

func WithLogger(logger *logrus.Logger) ServiceOption {
	return func(s *AnalyzeService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *AnalyzeService) {
		s.metrics = m
	}
}

func NewAnalyzeService(model LLM, recommender ActionRecommender, opts ...ServiceOption) (*AnalyzeService, error) {
	if model == nil {
		return nil, errors.New("usecase: llm must not be nil")
	}
	if recommender == nil {
		return nil, errors.New("usecase: action recommender must not be nil")
	}
	s := &AnalyzeService{
		llm:         model,
		recommender: recommender,
		prompt: PromptOptions{
			Language:                 defaultLanguage,
			EnableEmotionDetection:   true,
			EnableTopicExtraction:    true,
			EnableCompetitorAnalysis: true,
		},
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze runs metrics, prompt, provider chain and normalization, then ranks
// follow-up actions. Failures are reported in Result, never returned.
func (s *AnalyzeService) Analyze(ctx context.Context, in AnalyzeInput) Result {
	start := s.now()
	log := s.logger.WithField("conversation_id", in.ConversationID)

	fail := func(e *Error) Result {
		s.metrics.ObserveAnalysis(strings.ToLower(string(e.Code)))
		log.WithFields(logrus.Fields{
			"code":   e.Code,
			"reason": e.Reason,
		}).WithError(e.Err).Warn("Analysis failed")
		return Result{Error: e, ProcessingTime: s.elapsedMS(start)}
	}

	if e := validateInput(in); e != nil {
		return fail(e)
	}

	metrics := CalculateTranscriptMetrics(in.Transcript)
	key := s.fingerprint(in.Transcript)

	analysis, cached := s.cached(ctx, log, key)
	if cached {
		// No provider was called for this run.
		analysis.TokensUsed = 0
		analysis.Cost = 0
	} else {
		prompt := BuildAnalysisPrompt(in.Transcript, s.prompt)
		log.WithField("prompt_length", len(prompt)).Debug(prompt)

		comp, err := s.llm.Analyze(ctx, prompt)
		if err != nil {
			return fail(classifyLLMError(err))
		}

		analysis, err = NormalizeAnalysis(NormalizeInput{
			Metrics:    metrics,
			RawJSON:    comp.Content,
			Model:      comp.Model,
			Provider:   comp.Provider,
			TokensUsed: comp.TokensUsed,
			Cost:       comp.Cost,
			Options:    s.prompt,
		})
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				return fail(newError(ErrorMalformedResponse, perr.Reason, err))
			}
			return fail(newError(ErrorInternal, "normalize_failed", err))
		}
		s.remember(ctx, log, key, analysis)
	}

	analysis.ConversationID = in.ConversationID
	analysis.ProcessingTime = s.elapsedMS(start)

	actions := s.recommender.Recommend(analysis)
	types := make([]string, 0, len(actions))
	for _, a := range actions {
		types = append(types, string(a.Type))
	}
	s.metrics.ObserveActions(types)

	persisted := s.persist(ctx, log, analysis, actions)
	s.metrics.ObserveAnalysis("success")

	log.WithFields(logrus.Fields{
		"provider":    analysis.ProviderUsed,
		"model":       analysis.AnalysisModel,
		"tokens":      analysis.TokensUsed,
		"actions":     len(actions),
		"cached":      cached,
		"persisted":   persisted,
		"duration_ms": analysis.ProcessingTime,
	}).Info("Analysis completed")

	return Result{
		Success:        true,
		Analysis:       &analysis,
		Actions:        actions,
		ProcessingTime: analysis.ProcessingTime,
		Persisted:      persisted,
		Cached:         cached,
	}
}

func (s *AnalyzeService) elapsedMS(start time.Time) int64 {
	return normalizeProcessingTime(s.now().Sub(start).Milliseconds())
}

func (s *AnalyzeService) cached(ctx context.Context, log *logrus.Entry, key string) (domain.ConversationAnalysis, bool) {
	if s.cache == nil {
		return domain.ConversationAnalysis{}, false
	}
	a, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Analysis cache lookup failed")
		return domain.ConversationAnalysis{}, false
	}
	return a, ok
}

func (s *AnalyzeService) remember(ctx context.Context, log *logrus.Entry, key string, a domain.ConversationAnalysis) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, a); err != nil {
		log.WithError(err).Warn("Analysis cache write failed")
	}
}

func (s *AnalyzeService) persist(ctx context.Context, log *logrus.Entry, a domain.ConversationAnalysis, actions []domain.IntelligentAction) bool {
	if s.store == nil {
		return false
	}
	err := s.store.SaveAnalysis(ctx, domain.AnalysisRecord{
		ConversationID: a.ConversationID,
		Analysis:       a,
		Actions:        actions,
		Provider:       a.ProviderUsed,
		Model:          a.AnalysisModel,
		TokensUsed:     a.TokensUsed,
		Cost:           a.Cost,
		ProcessingTime: a.ProcessingTime,
		UpdatedAt:      s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.WithError(err).Error("Failed to persist analysis")
		return false
	}
	return true
}

// fingerprint identifies a transcript under the current chain and prompt
// options.
func (s *AnalyzeService) fingerprint(t domain.ConversationTranscript) string {
	h := sha256.New()
	_ = json.NewEncoder(h).Encode(struct {
		Chain      string                        `json:"chain"`
		Prompt     PromptOptions                 `json:"prompt"`
		Transcript domain.ConversationTranscript `json:"transcript"`
	}{s.chainID, s.prompt, t})
	return hex.EncodeToString(h.Sum(nil))
}

func validateInput(in AnalyzeInput) *Error {
	id := strings.TrimSpace(in.ConversationID)
	if id == "" {
		return newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	if len(id) > maxConversationIDLength {
		return newError(ErrorInvalidInput, "conversation_id_too_long", nil)
	}
	if len(in.Transcript.Messages) == 0 {
		return newError(ErrorInvalidInput, "empty_transcript", nil)
	}
	for _, m := range in.Transcript.Messages {
		switch m.Role {
		case domain.RoleAgent, domain.RoleLead, domain.RoleSystem:
		default:
			return newError(ErrorInvalidInput, "invalid_role", nil)
		}
	}
	return nil
}

// classifyLLMError turns a chain failure into the user-facing code. The last
// provider failure decides the title.
func classifyLLMError(err error) *Error {
	var exhausted *llm.ExhaustedError
	if errors.As(err, &exhausted) {
		last := exhausted.Last()
		if last == nil {
			return newError(ErrorAnalysisFailed, "providers_exhausted", err)
		}
		return fromProviderFailure(last, err)
	}
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		return fromProviderFailure(perr, err)
	}
	return newError(ErrorInternal, "llm_call_failed", err)
}

func fromProviderFailure(p *llm.ProviderError, err error) *Error {
	switch {
	case p.Kind == llm.KindCanceled:
		return newError(ErrorAnalysisFailed, "canceled", err)
	case p.StatusCode == http.StatusTooManyRequests:
		return newError(ErrorRateLimited, "rate_limited", err)
	case p.StatusCode == http.StatusPaymentRequired:
		return newError(ErrorInsufficientCredits, "insufficient_credits", err)
	case p.StatusCode == http.StatusUnauthorized, p.StatusCode == http.StatusForbidden:
		return newError(ErrorInvalidAPIKey, "invalid_api_key", err)
	case p.Kind == llm.KindTimeout:
		return newError(ErrorAnalysisFailed, "timeout", err)
	default:
		return newError(ErrorAnalysisFailed, "providers_exhausted", err)
	}
}
