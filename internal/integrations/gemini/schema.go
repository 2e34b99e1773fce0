package gemini

import "google.golang.org/genai"

func stringList() *genai.Schema {
	return &genai.Schema{Type: "ARRAY", Items: &genai.Schema{Type: "STRING"}}
}

func enum(values ...string) *genai.Schema {
	return &genai.Schema{Type: "STRING", Enum: values}
}

// AnalysisSchema mirrors the JSON contract in the analysis prompt. Leaves are
// left optional; the normalizer fills defaults for missing ones.
var AnalysisSchema = &genai.Schema{
	Type: "OBJECT",
	Properties: map[string]*genai.Schema{
		"sentiment": {
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"overall":    enum("positive", "negative", "neutral", "mixed"),
				"score":      {Type: "NUMBER"},
				"confidence": {Type: "NUMBER"},
				"emotions":   stringList(),
			},
		},
		"quality": {
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"callQualityScore":      {Type: "INTEGER"},
				"agentPerformanceScore": {Type: "INTEGER"},
				"conversationFlow":      enum("excellent", "good", "fair", "poor"),
				"questionsAnswered":     {Type: "INTEGER"},
			},
		},
		"insights": {
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"keyTopics":           stringList(),
				"mainPainPoints":      stringList(),
				"buyingSignals":       stringList(),
				"objections":          stringList(),
				"competitorMentions":  stringList(),
				"actionItems":         stringList(),
				"followUpSuggestions": stringList(),
				"decisionMakers":      stringList(),
			},
		},
		"engagement": {
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"leadInterestLevel": {Type: "INTEGER"},
				"engagementScore":   {Type: "NUMBER"},
			},
		},
		"predictions": {
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"conversionLikelihood": {Type: "NUMBER"},
				"recommendedAction":    {Type: "STRING"},
				"urgencyLevel":         enum("low", "medium", "high", "critical"),
				"followUpTimeline":     {Type: "STRING"},
				"suggestedApproach":    {Type: "STRING"},
				"confidenceScore":      {Type: "NUMBER"},
			},
		},
	},
	Required: []string{"sentiment", "quality", "insights", "engagement", "predictions"},
}
