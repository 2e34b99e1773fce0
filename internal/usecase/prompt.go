package usecase

import (
	"fmt"
	"strings"

	"call-insights/internal/domain"
)

const defaultLanguage = "es"

// Top-level groups the model must return. A response missing any of them is a
// structural failure.
var requiredGroups = []string{"sentiment", "quality", "insights", "engagement", "predictions"}

// PromptOptions are the per-deployment toggles that shape the analysis prompt.
type PromptOptions struct {
	Language                 string
	EnableEmotionDetection   bool
	EnableTopicExtraction    bool
	EnableCompetitorAnalysis bool
}

// BuildAnalysisPrompt renders the transcript and the response contract into a
// single instruction string.
func BuildAnalysisPrompt(t domain.ConversationTranscript, opts PromptOptions) string {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = defaultLanguage
	}
	return strings.Join([]string{
		"Role:",
		"You are a sales conversation analyst reviewing a recorded sales or collection call.",
		"",
		"Task:",
		"Analyze the transcript below and report sentiment, call quality, insights, engagement and predictions.",
		fmt.Sprintf("Write every free-text value in language %q.", language),
		"",
		"Transcript:",
		formatTranscript(t),
		"",
		"Extraction Rules:",
		extractionRules(opts),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func formatTranscript(t domain.ConversationTranscript) string {
	lines := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Role)), m.Content))
	}
	return strings.Join(lines, "\n")
}

func extractionRules(opts PromptOptions) string {
	rules := []string{
		"1) Base every judgement only on the transcript.",
		"2) Quote buying signals, objections and pain points close to the lead's own words.",
		"3) sentiment.score is between -1 and 1; confidence values and probabilities are between 0 and 1.",
		"4) quality scores are integers between 0 and 100; engagement.leadInterestLevel is an integer between 0 and 10.",
	}
	if opts.EnableTopicExtraction {
		rules = append(rules, "5) List the main topics discussed in insights.keyTopics.")
	} else {
		rules = append(rules, "5) Topic extraction is disabled: return insights.keyTopics as [].")
	}
	if opts.EnableCompetitorAnalysis {
		rules = append(rules, "6) List every competitor or alternative vendor named in insights.competitorMentions.")
	} else {
		rules = append(rules, "6) Competitor analysis is disabled: return insights.competitorMentions as [].")
	}
	if opts.EnableEmotionDetection {
		rules = append(rules, "7) List the dominant emotions of the lead in sentiment.emotions.")
	} else {
		rules = append(rules, "7) Emotion detection is disabled: return sentiment.emotions as [].")
	}
	return strings.Join(rules, "\n")
}

func outputContract() string {
	return "Return JSON only, without markdown, with exactly these top-level keys: " +
		strings.Join(requiredGroups, ", ") + ".\n" +
		`{
  "sentiment": {"overall": "positive|negative|neutral|mixed", "score": 0.0, "confidence": 0.0, "emotions": []},
  "quality": {"callQualityScore": 0, "agentPerformanceScore": 0, "conversationFlow": "excellent|good|fair|poor", "questionsAnswered": 0},
  "insights": {"keyTopics": [], "mainPainPoints": [], "buyingSignals": [], "objections": [], "competitorMentions": [], "actionItems": [], "followUpSuggestions": [], "decisionMakers": []},
  "engagement": {"leadInterestLevel": 0, "engagementScore": 0.0},
  "predictions": {"conversionLikelihood": 0.0, "recommendedAction": "", "urgencyLevel": "low|medium|high|critical", "followUpTimeline": "", "suggestedApproach": "", "confidenceScore": 0.0}
}`
}
