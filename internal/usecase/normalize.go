package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"call-insights/internal/domain"
)

const (
	maxProcessingTimeMS = 600000
	maxQualityScore     = 100
	maxInterestLevel    = 10
)

// ParseError reports a model response that cannot be coerced into a
// ConversationAnalysis at all. Missing optional leaves never produce one.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "usecase: parse analysis: " + e.Reason
	}
	return fmt.Sprintf("usecase: parse analysis: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NormalizeInput carries everything the normalizer merges into one record.
type NormalizeInput struct {
	Metrics    TranscriptMetrics
	RawJSON    string
	Model      string
	Provider   string
	TokensUsed int
	Cost       float64
	Options    PromptOptions
}

// NormalizeAnalysis validates the raw model payload and clamps every bounded
// field into its storage domain. Talk-time always comes from Metrics.
func NormalizeAnalysis(in NormalizeInput) (domain.ConversationAnalysis, error) {
	groups, err := parseRawAnalysis(in.RawJSON)
	if err != nil {
		return domain.ConversationAnalysis{}, err
	}
	sentiment := groups["sentiment"]
	quality := groups["quality"]
	insights := groups["insights"]
	engagement := groups["engagement"]
	predictions := groups["predictions"]

	asked := in.Metrics.TotalQuestions
	out := domain.ConversationAnalysis{
		OverallSentiment:    normalizeSentiment(stringField(sentiment, "overall")),
		SentimentScore:      normalizeSignedBounded(numberField(sentiment, "score"), 1),
		SentimentConfidence: normalizeBounded(numberField(sentiment, "confidence"), 1),
		Emotions:            stringList(sentiment, "emotions"),

		CallQualityScore:      normalizeQualityScore(numberField(quality, "callQualityScore")),
		AgentPerformanceScore: normalizeQualityScore(numberField(quality, "agentPerformanceScore")),
		ConversationFlow:      normalizeFlow(stringField(quality, "conversationFlow")),

		KeyTopics:           stringList(insights, "keyTopics"),
		MainPainPoints:      stringList(insights, "mainPainPoints"),
		BuyingSignals:       stringList(insights, "buyingSignals"),
		Objections:          stringList(insights, "objections"),
		CompetitorMentions:  stringList(insights, "competitorMentions"),
		ActionItems:         stringList(insights, "actionItems"),
		FollowUpSuggestions: stringList(insights, "followUpSuggestions"),
		DecisionMakers:      stringList(insights, "decisionMakers"),

		LeadInterestLevel:    normalizeInterestLevel(numberField(engagement, "leadInterestLevel")),
		EngagementScore:      normalizeBounded(numberField(engagement, "engagementScore"), 1),
		ConversionLikelihood: normalizeBounded(numberField(predictions, "conversionLikelihood"), 1),
		RecommendedAction:    stringField(predictions, "recommendedAction"),
		UrgencyLevel:         normalizeUrgencyLevel(stringField(predictions, "urgencyLevel")),
		FollowUpTimeline:     stringField(predictions, "followUpTimeline"),
		SuggestedApproach:    stringField(predictions, "suggestedApproach"),

		QuestionsAsked:    asked,
		QuestionsAnswered: clampInt(intOrZero(numberField(quality, "questionsAnswered")), 0, asked),
		TalkTimeRatio:     in.Metrics.TalkTimeRatio(),
		AnalysisModel:     in.Model,
		ProviderUsed:      in.Provider,
		ConfidenceScore:   normalizeBounded(numberField(predictions, "confidenceScore"), 1),
		TokensUsed:        max(in.TokensUsed, 0),
		Cost:              math.Max(in.Cost, 0),
	}

	if !in.Options.EnableTopicExtraction {
		out.KeyTopics = []string{}
	}
	if !in.Options.EnableCompetitorAnalysis {
		out.CompetitorMentions = []string{}
	}
	if !in.Options.EnableEmotionDetection {
		out.Emotions = []string{}
	}
	return out, nil
}

// SanitizeAnalysis re-applies the normalizer's bounds and enum defaults to an
// analysis received from outside the pipeline.
func SanitizeAnalysis(a domain.ConversationAnalysis) domain.ConversationAnalysis {
	a.OverallSentiment = normalizeSentiment(string(a.OverallSentiment))
	a.SentimentScore = normalizeSignedBounded(a.SentimentScore, 1)
	a.SentimentConfidence = normalizeBounded(a.SentimentConfidence, 1)
	a.CallQualityScore = normalizeQualityScore(intAsFloat(a.CallQualityScore))
	a.AgentPerformanceScore = normalizeQualityScore(intAsFloat(a.AgentPerformanceScore))
	a.ConversationFlow = normalizeFlow(string(a.ConversationFlow))
	a.LeadInterestLevel = normalizeInterestLevel(intAsFloat(a.LeadInterestLevel))
	a.EngagementScore = normalizeBounded(a.EngagementScore, 1)
	a.ConversionLikelihood = normalizeBounded(a.ConversionLikelihood, 1)
	a.ConfidenceScore = normalizeBounded(a.ConfidenceScore, 1)
	a.UrgencyLevel = normalizeUrgencyLevel(string(a.UrgencyLevel))
	a.QuestionsAsked = max(a.QuestionsAsked, 0)
	a.QuestionsAnswered = max(a.QuestionsAnswered, 0)
	a.TokensUsed = max(a.TokensUsed, 0)
	a.Cost = math.Max(a.Cost, 0)
	a.ProcessingTime = normalizeProcessingTime(a.ProcessingTime)
	return a
}

func intAsFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// normalizeBounded maps value into [0, limit]. Values above limit are assumed to be
// on a 0-100 scale and divided by 100 before clamping. nil stays nil.
func normalizeBounded(value *float64, limit float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	if v > limit {
		v = v / 100
	}
	v = math.Min(math.Max(v, 0), limit)
	return &v
}

// normalizeSignedBounded is normalizeBounded for symmetric domains such as
// the sentiment score, clamping into [-limit, limit].
func normalizeSignedBounded(value *float64, limit float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	if math.Abs(v) > limit {
		v = v / 100
	}
	v = math.Min(math.Max(v, -limit), limit)
	return &v
}

func normalizeQualityScore(value *float64) *int {
	if value == nil {
		return nil
	}
	n := clampInt(int(math.Round(*value)), 0, maxQualityScore)
	return &n
}

// normalizeInterestLevel keeps the 0-10 interest scale, rescaling values that
// arrive on a 0-100 scale.
func normalizeInterestLevel(value *float64) *int {
	if value == nil {
		return nil
	}
	v := *value
	if v > maxInterestLevel {
		v = v / 10
	}
	n := clampInt(int(math.Round(v)), 0, maxInterestLevel)
	return &n
}

func normalizeProcessingTime(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > maxProcessingTimeMS {
		return maxProcessingTimeMS
	}
	return ms
}

var sentimentAliases = map[string]domain.Sentiment{
	"positive": domain.SentimentPositive,
	"positivo": domain.SentimentPositive,
	"negative": domain.SentimentNegative,
	"negativo": domain.SentimentNegative,
	"neutral":  domain.SentimentNeutral,
	"mixed":    domain.SentimentMixed,
	"mixto":    domain.SentimentMixed,
}

func normalizeSentiment(s string) domain.Sentiment {
	if v, ok := sentimentAliases[strings.ToLower(s)]; ok {
		return v
	}
	return domain.SentimentNeutral
}

func normalizeFlow(s string) domain.ConversationFlow {
	switch f := domain.ConversationFlow(strings.ToLower(s)); f {
	case domain.FlowExcellent, domain.FlowGood, domain.FlowFair, domain.FlowPoor:
		return f
	}
	return domain.FlowFair
}

func normalizeUrgencyLevel(s string) domain.UrgencyLevel {
	switch u := domain.UrgencyLevel(strings.ToLower(s)); u {
	case domain.UrgencyLevelLow, domain.UrgencyLevelMedium, domain.UrgencyLevelHigh, domain.UrgencyLevelCritical:
		return u
	}
	return domain.UrgencyLevelMedium
}

// parseRawAnalysis decodes the model payload into its top-level groups. This
// is the only place untyped model JSON is accepted.
func parseRawAnalysis(raw string) (map[string]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewBufferString(stripCodeFence(raw)))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, &ParseError{Reason: "invalid_json", Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "trailing_data", Err: err}
	}
	if payload == nil {
		return nil, &ParseError{Reason: "not_an_object"}
	}

	groups := make(map[string]map[string]any, len(requiredGroups))
	for _, name := range requiredGroups {
		v, ok := payload[name]
		if !ok {
			return nil, &ParseError{Reason: "missing_group_" + name}
		}
		g, ok := v.(map[string]any)
		if !ok {
			return nil, &ParseError{Reason: "invalid_group_" + name}
		}
		groups[name] = g
	}
	return groups, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func numberField(group map[string]any, key string) *float64 {
	var (
		f   float64
		err error
	)
	switch v := group[key].(type) {
	case json.Number:
		f, err = v.Float64()
	case float64:
		f = v
	case string:
		f, err = strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64)
	default:
		return nil
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func stringField(group map[string]any, key string) string {
	s, _ := group[key].(string)
	return strings.TrimSpace(s)
}

// stringList coerces a list-ish value into an ordered, non-nil slice. Non
// string items are dropped; duplicates are kept as emitted.
func stringList(group map[string]any, key string) []string {
	out := []string{}
	switch v := group[key].(type) {
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intOrZero(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Round(*v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
