package actions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"call-insights/internal/domain"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	return e
}

func find(actions []domain.IntelligentAction, typ domain.ActionType) []domain.IntelligentAction {
	var out []domain.IntelligentAction
	for _, a := range actions {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func richAnalysis() domain.ConversationAnalysis {
	return domain.ConversationAnalysis{
		OverallSentiment:     domain.SentimentPositive,
		SentimentScore:       f64(0.7),
		ConversionLikelihood: f64(0.82),
		BuyingSignals:        []string{"Podemos agendar una reunión la próxima semana", "Queremos ver una demo"},
		Objections:           []string{"Es muy caro para nuestro presupuesto", "Lo tengo que consultar con mi jefe"},
		CompetitorMentions:   []string{"CompetitorX"},
		MainPainPoints:       []string{"Procesos manuales lentos", "Errores en la facturación"},
	}
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(WithMaxActions(0))
	require.Error(t, err)

	_, err = NewEngine(WithDedupMode("keep_all"))
	require.ErrorContains(t, err, "unknown dedup mode")
}

func TestRecommend_BuyingSignalMeeting(t *testing.T) {
	e := newEngine(t)
	out := e.Recommend(domain.ConversationAnalysis{
		BuyingSignals: []string{"Podemos agendar una reunión la próxima semana"},
	})

	meetings := find(out, domain.ActionScheduleMeeting)
	require.Len(t, meetings, 1)
	require.Equal(t, domain.UrgencyImmediate, meetings[0].Urgency)
	require.Equal(t, domain.PriorityHigh, meetings[0].Priority)
	require.Contains(t, meetings[0].Reasoning, "Podemos agendar una reunión la próxima semana")
}

func TestRecommend_PriceObjection(t *testing.T) {
	e := newEngine(t)
	out := e.Recommend(domain.ConversationAnalysis{
		Objections: []string{"Es muy caro para nuestro presupuesto"},
	})

	roi := find(out, domain.ActionSendROICalculator)
	require.Len(t, roi, 1)
	require.Equal(t, domain.PriorityHigh, roi[0].Priority)
	require.Contains(t, roi[0].Reasoning, "Es muy caro")
}

func TestRecommend_CompetitorMentions(t *testing.T) {
	e := newEngine(t)
	out := e.Recommend(domain.ConversationAnalysis{CompetitorMentions: []string{"CompetitorX"}})

	require.Len(t, find(out, domain.ActionSendComparison), 1)
	require.Len(t, find(out, domain.ActionSendReferences), 1)
	require.Contains(t, out[0].Reasoning, "CompetitorX")
}

func TestRecommend_EmptyInputYieldsEmptyList(t *testing.T) {
	e := newEngine(t)
	out := e.Recommend(domain.ConversationAnalysis{})
	require.NotNil(t, out)
	require.Empty(t, out)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.Equal(t, "[]", string(raw))
}

func TestRecommend_BlankEntriesAreIgnored(t *testing.T) {
	e := newEngine(t)
	out := e.Recommend(domain.ConversationAnalysis{
		BuyingSignals:      []string{"", "   "},
		CompetitorMentions: []string{" "},
		MainPainPoints:     []string{""},
	})
	require.Empty(t, out)
}

func TestRecommend_BoundedAndSorted(t *testing.T) {
	e := newEngine(t)
	out := e.Recommend(richAnalysis())

	require.Len(t, out, DefaultMaxActions)
	for i := 1; i < len(out); i++ {
		require.GreaterOrEqual(t, Score(out[i-1]), Score(out[i]), "position %d", i)
	}
	require.Equal(t, domain.ActionScheduleMeeting, out[0].Type)
	require.Equal(t, domain.UrgencyImmediate, out[0].Urgency)
}

func TestRecommend_MaxActionsOption(t *testing.T) {
	e := newEngine(t, WithMaxActions(2))
	require.Len(t, e.Recommend(richAnalysis()), 2)
}

func TestRecommend_Deterministic(t *testing.T) {
	e := newEngine(t)
	first, err := json.Marshal(e.Recommend(richAnalysis()))
	require.NoError(t, err)
	second, err := json.Marshal(e.Recommend(richAnalysis()))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))

	ids := map[string]bool{}
	for _, a := range e.Recommend(richAnalysis()) {
		require.NotEmpty(t, a.ID)
		require.False(t, ids[a.ID], "duplicate id %s", a.ID)
		ids[a.ID] = true
	}
}

func TestRecommend_InterestTiers(t *testing.T) {
	cases := []struct {
		name     string
		analysis domain.ConversationAnalysis
		want     []domain.ActionType
		absent   []domain.ActionType
	}{
		{
			name:     "high from sentiment score",
			analysis: domain.ConversationAnalysis{SentimentScore: f64(0.8)},
			want:     []domain.ActionType{domain.ActionSendContract, domain.ActionScheduleTrial},
		},
		{
			name:     "medium from sentiment score",
			analysis: domain.ConversationAnalysis{SentimentScore: f64(0.1)},
			want:     []domain.ActionType{domain.ActionSendCaseStudy},
			absent:   []domain.ActionType{domain.ActionSendContract},
		},
		{
			name:     "low from sentiment score",
			analysis: domain.ConversationAnalysis{SentimentScore: f64(-0.6)},
			want:     []domain.ActionType{domain.ActionMakeFollowUpCall},
		},
		{
			name:     "falls back to interest level",
			analysis: domain.ConversationAnalysis{LeadInterestLevel: intp(9)},
			want:     []domain.ActionType{domain.ActionSendContract, domain.ActionScheduleTrial},
		},
		{
			name:     "sentiment score wins over interest level",
			analysis: domain.ConversationAnalysis{SentimentScore: f64(-1), LeadInterestLevel: intp(10)},
			want:     []domain.ActionType{domain.ActionMakeFollowUpCall},
			absent:   []domain.ActionType{domain.ActionSendContract},
		},
	}
	e := newEngine(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := e.Recommend(tc.analysis)
			for _, typ := range tc.want {
				require.NotEmpty(t, find(out, typ), "want %s", typ)
			}
			for _, typ := range tc.absent {
				require.Empty(t, find(out, typ), "unexpected %s", typ)
			}
		})
	}
}

func TestInterestScore(t *testing.T) {
	s, ok := interestScore(domain.ConversationAnalysis{SentimentScore: f64(0.5)})
	require.True(t, ok)
	require.Equal(t, 8, s)

	s, ok = interestScore(domain.ConversationAnalysis{SentimentScore: f64(3)})
	require.True(t, ok)
	require.Equal(t, 10, s)

	_, ok = interestScore(domain.ConversationAnalysis{})
	require.False(t, ok)
}

func TestRecommend_SentimentMapping(t *testing.T) {
	cases := []struct {
		sentiment domain.Sentiment
		typ       domain.ActionType
		urgency   domain.Urgency
	}{
		{domain.SentimentPositive, domain.ActionScheduleMeeting, domain.UrgencyImmediate},
		{domain.SentimentNegative, domain.ActionAddressObjection, domain.UrgencyImmediate},
		{domain.SentimentNeutral, domain.ActionSendDemoLink, domain.UrgencyThisWeek},
		{domain.SentimentMixed, domain.ActionMakeFollowUpCall, domain.UrgencyToday},
	}
	e := newEngine(t)
	for _, tc := range cases {
		out := e.Recommend(domain.ConversationAnalysis{OverallSentiment: tc.sentiment})
		require.Len(t, out, 1, "sentiment=%s", tc.sentiment)
		require.Equal(t, tc.typ, out[0].Type)
		require.Equal(t, tc.urgency, out[0].Urgency)
	}
}

func TestRecommend_ConversionTiers(t *testing.T) {
	cases := []struct {
		likelihood float64
		typ        domain.ActionType
		priority   domain.Priority
	}{
		{0.7, domain.ActionSendContract, domain.PriorityHigh},
		{0.95, domain.ActionSendContract, domain.PriorityHigh},
		{0.4, domain.ActionSendProposal, domain.PriorityMedium},
		{0.69, domain.ActionSendProposal, domain.PriorityMedium},
		{0.695, domain.ActionSendProposal, domain.PriorityMedium},
		{0.3999, domain.ActionNurtureSequence, domain.PriorityLow},
		{0.1, domain.ActionNurtureSequence, domain.PriorityLow},
	}
	e := newEngine(t)
	for _, tc := range cases {
		out := e.Recommend(domain.ConversationAnalysis{ConversionLikelihood: f64(tc.likelihood)})
		require.Len(t, out, 1, "likelihood=%v", tc.likelihood)
		require.Equal(t, tc.typ, out[0].Type)
		require.Equal(t, tc.priority, out[0].Priority)
	}
}

func TestRecommend_PainPointsOnePerEntry(t *testing.T) {
	e := newEngine(t, WithDedupMode(DedupAppendHigh))
	out := e.Recommend(domain.ConversationAnalysis{MainPainPoints: []string{"Procesos lentos", "Errores manuales"}})

	// Pain-point candidates are medium, so only the first survives dedup.
	cases := find(out, domain.ActionSendCaseStudy)
	require.Len(t, cases, 1)
	require.Contains(t, cases[0].Reasoning, "Procesos lentos")
	require.Equal(t, "Procesos lentos", cases[0].Metadata["painPoint"])

	all := painPointGenerator(domain.ConversationAnalysis{MainPainPoints: []string{"Procesos lentos", "Errores manuales"}})
	require.Len(t, all, 2)
	require.Contains(t, all[1].Reasoning, "Errores manuales")
}

func TestDedupe_Modes(t *testing.T) {
	candidates := []domain.IntelligentAction{
		{Type: domain.ActionScheduleMeeting, Priority: domain.PriorityMedium, Urgency: domain.UrgencyThisWeek, Title: "first"},
		{Type: domain.ActionScheduleMeeting, Priority: domain.PriorityLow, Urgency: domain.UrgencyToday, Title: "low dup"},
		{Type: domain.ActionScheduleMeeting, Priority: domain.PriorityHigh, Urgency: domain.UrgencyImmediate, Title: "high dup"},
		{Type: domain.ActionSendDemoLink, Priority: domain.PriorityHigh, Urgency: domain.UrgencyToday, Title: "demo"},
	}

	appended := dedupe(candidates, DedupAppendHigh)
	require.Len(t, appended, 3)
	require.Equal(t, "first", appended[0].Title)
	require.Equal(t, "high dup", appended[1].Title)
	require.Equal(t, "demo", appended[2].Title)

	replaced := dedupe(candidates, DedupReplaceHigh)
	require.Len(t, replaced, 2)
	require.Equal(t, "high dup", replaced[0].Title)
	require.Equal(t, "demo", replaced[1].Title)
}

func TestRecommend_AppendHighCanRepeatType(t *testing.T) {
	a := domain.ConversationAnalysis{
		BuyingSignals: []string{"Quieren agendar una reunión"},
		Objections:    []string{"Debo consultar con mi jefe"},
	}
	require.Len(t, find(newEngine(t).Recommend(a), domain.ActionScheduleMeeting), 2)
	require.Len(t, find(newEngine(t, WithDedupMode(DedupReplaceHigh)).Recommend(a), domain.ActionScheduleMeeting), 1)
}

func TestRecommend_CustomRulebook(t *testing.T) {
	rules := Rulebook{
		BuyingSignals: []Rule{{
			Name:     "pilot",
			Matcher:  MustRegex(`\bpilot(o)?\b`),
			Type:     domain.ActionScheduleTrial,
			Title:    "Schedule pilot",
			Priority: domain.PriorityHigh,
			Urgency:  domain.UrgencyToday,
		}},
	}
	e := newEngine(t, WithRulebook(rules))
	out := e.Recommend(domain.ConversationAnalysis{BuyingSignals: []string{"Hagamos un PILOTO en marzo", "reunión"}})
	require.Len(t, out, 1)
	require.Equal(t, domain.ActionScheduleTrial, out[0].Type)
	require.Equal(t, "pilot", out[0].Metadata["rule"])
}

func TestScore(t *testing.T) {
	require.Equal(t, 34, Score(domain.IntelligentAction{Priority: domain.PriorityHigh, Urgency: domain.UrgencyImmediate}))
	require.Equal(t, 11, Score(domain.IntelligentAction{Priority: domain.PriorityLow, Urgency: domain.UrgencyNextWeek}))
	require.Equal(t, 0, Score(domain.IntelligentAction{}))
}

func TestRecommend_RuleCuesRespectWordBoundaries(t *testing.T) {
	e := newEngine(t)

	out := e.Recommend(domain.ConversationAnalysis{
		BuyingSignals: []string{"Hubo demora en la respuesta del soporte actual", "Aprecio mucho la atención"},
		Objections:    []string{"Aprecio la llamada pero no hay prisa"},
	})
	for _, a := range out {
		require.NotContains(t, []string{"demo", "budget", "price"}, a.Metadata["rule"], "type=%s", a.Type)
	}

	out = e.Recommend(domain.ConversationAnalysis{
		BuyingSignals: []string{"¿Nos envían los precios?", "Queremos una DEMO"},
		Objections:    []string{"Nos parece caro"},
	})
	rules := map[string]bool{}
	for _, a := range out {
		rules[a.Metadata["rule"]] = true
	}
	require.True(t, rules["demo"])
	require.True(t, rules["budget"])
	require.True(t, rules["price"])
}
