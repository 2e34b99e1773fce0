package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"call-insights/internal/domain"
	"call-insights/internal/llm"
)

type fakeLLM struct {
	comp    llm.Completion
	err     error
	prompts []string
}

func (f *fakeLLM) Analyze(_ context.Context, prompt string) (llm.Completion, error) {
	f.prompts = append(f.prompts, prompt)
	return f.comp, f.err
}

type fakeRecommender struct {
	seen []domain.ConversationAnalysis
}

func (f *fakeRecommender) Recommend(a domain.ConversationAnalysis) []domain.IntelligentAction {
	f.seen = append(f.seen, a)
	return []domain.IntelligentAction{{ID: "a1", Type: domain.ActionScheduleMeeting, Priority: domain.PriorityHigh, Urgency: domain.UrgencyImmediate}}
}

type fakeStore struct {
	records []domain.AnalysisRecord
	err     error
}

func (f *fakeStore) SaveAnalysis(_ context.Context, rec domain.AnalysisRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeCache struct {
	items  map[string]domain.ConversationAnalysis
	getErr error
}

func (f *fakeCache) Get(_ context.Context, key string) (domain.ConversationAnalysis, bool, error) {
	if f.getErr != nil {
		return domain.ConversationAnalysis{}, false, f.getErr
	}
	a, ok := f.items[key]
	return a, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, a domain.ConversationAnalysis) error {
	if f.items == nil {
		f.items = make(map[string]domain.ConversationAnalysis)
	}
	f.items[key] = a
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func validInput() AnalyzeInput {
	return AnalyzeInput{
		ConversationID: "conv-1",
		Transcript: transcriptOf(
			agent("Hola, ¿le interesa una demo del producto?"),
			lead("Sí, podemos agendar una reunión la próxima semana."),
		),
	}
}

func newService(t *testing.T, model LLM, opts ...ServiceOption) (*AnalyzeService, *fakeRecommender) {
	t.Helper()
	rec := &fakeRecommender{}
	opts = append([]ServiceOption{WithLogger(quietLogger()), WithPromptOptions(allToggles())}, opts...)
	s, err := NewAnalyzeService(model, rec, opts...)
	require.NoError(t, err)
	return s, rec
}

func okCompletion() llm.Completion {
	return llm.Completion{Content: fullResponse, TokensUsed: 1200, Cost: 0.6, Provider: "openai", Model: "gpt-4o-mini"}
}

func TestNewAnalyzeService_Validation(t *testing.T) {
	_, err := NewAnalyzeService(nil, &fakeRecommender{})
	require.Error(t, err)
	_, err = NewAnalyzeService(&fakeLLM{}, nil)
	require.Error(t, err)
}

func TestAnalyze_HappyPath(t *testing.T) {
	model := &fakeLLM{comp: okCompletion()}
	store := &fakeStore{}
	s, rec := newService(t, model, WithStore(store))

	res := s.Analyze(context.Background(), validInput())
	require.True(t, res.Success)
	require.Nil(t, res.Error)
	require.True(t, res.Persisted)
	require.False(t, res.Cached)
	require.Len(t, res.Actions, 1)

	a := res.Analysis
	require.NotNil(t, a)
	require.Equal(t, "conv-1", a.ConversationID)
	require.Equal(t, "openai", a.ProviderUsed)
	require.Equal(t, "gpt-4o-mini", a.AnalysisModel)
	require.Equal(t, 1200, a.TokensUsed)
	require.Equal(t, 1, a.QuestionsAsked)
	require.InDelta(t, 1.0, a.TalkTimeRatio.Agent+a.TalkTimeRatio.Client, 1e-9)
	require.GreaterOrEqual(t, a.ProcessingTime, int64(0))
	require.LessOrEqual(t, a.ProcessingTime, int64(maxProcessingTimeMS))

	require.Len(t, model.prompts, 1)
	require.Contains(t, model.prompts[0], "LEAD: Sí, podemos agendar")
	require.Len(t, rec.seen, 1)

	require.Len(t, store.records, 1)
	require.Equal(t, "conv-1", store.records[0].ConversationID)
	require.Equal(t, "openai", store.records[0].Provider)
	require.Len(t, store.records[0].Actions, 1)
}

func TestAnalyze_ProcessingTimeIsClamped(t *testing.T) {
	s, _ := newService(t, &fakeLLM{comp: okCompletion()})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(15 * time.Minute)
	}

	res := s.Analyze(context.Background(), validInput())
	require.True(t, res.Success)
	require.Equal(t, int64(maxProcessingTimeMS), res.ProcessingTime)
	require.Equal(t, int64(maxProcessingTimeMS), res.Analysis.ProcessingTime)
}

func TestAnalyze_InvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AnalyzeInput)
		reason string
	}{
		{name: "missing id", mutate: func(in *AnalyzeInput) { in.ConversationID = "  " }, reason: "missing_conversation_id"},
		{name: "empty transcript", mutate: func(in *AnalyzeInput) { in.Transcript.Messages = nil }, reason: "empty_transcript"},
		{name: "unknown role", mutate: func(in *AnalyzeInput) {
			in.Transcript.Messages[0].Role = "customer"
		}, reason: "invalid_role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := &fakeLLM{comp: okCompletion()}
			s, _ := newService(t, model)
			in := validInput()
			tc.mutate(&in)

			res := s.Analyze(context.Background(), in)
			require.False(t, res.Success)
			require.Nil(t, res.Analysis)
			require.Equal(t, ErrorInvalidInput, res.Error.Code)
			require.Equal(t, tc.reason, res.Error.Reason)
			require.Empty(t, model.prompts)
		})
	}
}

func exhausted(failures ...*llm.ProviderError) error {
	return &llm.ExhaustedError{Failures: failures}
}

func TestAnalyze_ProviderFailuresAreClassified(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		code     ErrorCode
		title    string
		retry    bool
		operator bool
	}{
		{
			name:  "rate limited",
			err:   exhausted(&llm.ProviderError{Provider: "openai", Kind: llm.KindTransient, StatusCode: http.StatusTooManyRequests}),
			code:  ErrorRateLimited,
			title: TitleRateLimited,
			retry: true,
		},
		{
			name: "rate limit then billing",
			err: exhausted(
				&llm.ProviderError{Provider: "openai", Kind: llm.KindProviderFatal, StatusCode: http.StatusTooManyRequests},
				&llm.ProviderError{Provider: "gemini", Kind: llm.KindProviderFatal, StatusCode: http.StatusPaymentRequired},
			),
			code:     ErrorInsufficientCredits,
			title:    TitleInsufficientCredits,
			operator: true,
		},
		{
			name:     "invalid key",
			err:      exhausted(&llm.ProviderError{Provider: "anthropic", Kind: llm.KindProviderFatal, StatusCode: http.StatusUnauthorized}),
			code:     ErrorInvalidAPIKey,
			title:    TitleInvalidAPIKey,
			operator: true,
		},
		{
			name:  "timeout",
			err:   exhausted(&llm.ProviderError{Provider: "openai", Kind: llm.KindTimeout}),
			code:  ErrorAnalysisFailed,
			title: TitleAnalysisFailed,
			retry: true,
		},
		{
			name:  "canceled",
			err:   &llm.ProviderError{Provider: "openai", Kind: llm.KindCanceled, Err: context.Canceled},
			code:  ErrorAnalysisFailed,
			title: TitleAnalysisFailed,
			retry: true,
		},
		{
			name:  "opaque",
			err:   errors.New("boom"),
			code:  ErrorInternal,
			title: TitleAnalysisFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			s, rec := newService(t, &fakeLLM{err: tc.err}, WithStore(store))

			res := s.Analyze(context.Background(), validInput())
			require.False(t, res.Success)
			require.Nil(t, res.Analysis)
			require.Equal(t, tc.code, res.Error.Code)
			require.Equal(t, tc.title, res.Error.Title)
			require.Equal(t, tc.retry, res.Error.Retryable())
			require.Equal(t, tc.operator, res.Error.RequiresOperator())
			require.ErrorIs(t, res.Error, tc.err)
			require.Empty(t, rec.seen)
			require.Empty(t, store.records)
		})
	}
}

func TestAnalyze_MalformedModelOutput(t *testing.T) {
	s, rec := newService(t, &fakeLLM{comp: llm.Completion{Content: `{"sentiment":{}}`, Provider: "openai"}})

	res := s.Analyze(context.Background(), validInput())
	require.False(t, res.Success)
	require.Equal(t, ErrorMalformedResponse, res.Error.Code)
	require.Equal(t, "missing_group_quality", res.Error.Reason)
	var perr *ParseError
	require.ErrorAs(t, res.Error, &perr)
	require.Empty(t, rec.seen)
}

func TestAnalyze_PersistenceFailureKeepsSuccess(t *testing.T) {
	s, _ := newService(t, &fakeLLM{comp: okCompletion()}, WithStore(&fakeStore{err: errors.New("throttled")}))

	res := s.Analyze(context.Background(), validInput())
	require.True(t, res.Success)
	require.False(t, res.Persisted)
	require.NotNil(t, res.Analysis)
}

func TestAnalyze_CacheHitSkipsProviders(t *testing.T) {
	model := &fakeLLM{comp: okCompletion()}
	cache := &fakeCache{}
	s, rec := newService(t, model, WithCache(cache), WithChainID("openai:gpt-4o-mini"))

	first := s.Analyze(context.Background(), validInput())
	require.True(t, first.Success)
	require.False(t, first.Cached)

	in := validInput()
	in.ConversationID = "conv-2"
	second := s.Analyze(context.Background(), in)
	require.True(t, second.Success)
	require.True(t, second.Cached)
	require.Equal(t, "conv-2", second.Analysis.ConversationID)
	require.Len(t, model.prompts, 1)
	require.Len(t, rec.seen, 2)

	// A memoized run reports no new spend.
	require.Zero(t, second.Analysis.TokensUsed)
	require.Zero(t, second.Analysis.Cost)
	require.Equal(t, first.Analysis.ProviderUsed, second.Analysis.ProviderUsed)
}

func TestAnalyze_CacheHitPersistsNoSpend(t *testing.T) {
	model := &fakeLLM{comp: okCompletion()}
	store := &fakeStore{}
	s, _ := newService(t, model, WithCache(&fakeCache{}), WithStore(store))

	require.True(t, s.Analyze(context.Background(), validInput()).Success)
	in := validInput()
	in.ConversationID = "conv-2"
	require.True(t, s.Analyze(context.Background(), in).Success)

	require.Len(t, store.records, 2)
	require.Equal(t, okCompletion().TokensUsed, store.records[0].TokensUsed)
	require.Positive(t, store.records[0].Cost)
	require.Equal(t, "conv-2", store.records[1].ConversationID)
	require.Zero(t, store.records[1].TokensUsed)
	require.Zero(t, store.records[1].Cost)
	require.Zero(t, store.records[1].Analysis.TokensUsed)
}

func TestAnalyze_CacheErrorFallsThrough(t *testing.T) {
	model := &fakeLLM{comp: okCompletion()}
	s, _ := newService(t, model, WithCache(&fakeCache{getErr: errors.New("redis down")}))

	res := s.Analyze(context.Background(), validInput())
	require.True(t, res.Success)
	require.False(t, res.Cached)
	require.Len(t, model.prompts, 1)
}

func TestFingerprint_DependsOnChainAndTranscript(t *testing.T) {
	a, _ := newService(t, &fakeLLM{}, WithChainID("openai:a"))
	b, _ := newService(t, &fakeLLM{}, WithChainID("openai:b"))
	tr := validInput().Transcript

	require.Equal(t, a.fingerprint(tr), a.fingerprint(tr))
	require.NotEqual(t, a.fingerprint(tr), b.fingerprint(tr))
	require.NotEqual(t, a.fingerprint(tr), a.fingerprint(transcriptOf(agent("otra"))))
	require.Len(t, a.fingerprint(tr), 64)
}
