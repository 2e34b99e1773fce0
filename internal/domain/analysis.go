package domain

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

type ConversationFlow string

const (
	FlowExcellent ConversationFlow = "excellent"
	FlowGood      ConversationFlow = "good"
	FlowFair      ConversationFlow = "fair"
	FlowPoor      ConversationFlow = "poor"
)

type UrgencyLevel string

const (
	UrgencyLevelLow      UrgencyLevel = "low"
	UrgencyLevelMedium   UrgencyLevel = "medium"
	UrgencyLevelHigh     UrgencyLevel = "high"
	UrgencyLevelCritical UrgencyLevel = "critical"
)

// TalkTimeRatio is the word-count partition between agent and client. The two
// fields always sum to 1.
type TalkTimeRatio struct {
	Agent  float64 `json:"agent"`
	Client float64 `json:"client"`
}

// ConversationAnalysis is the normalized, storage-safe result of analyzing one
// transcript. Optional bounded fields are nil when the model omitted them.
type ConversationAnalysis struct {
	ConversationID string `json:"conversationId,omitempty"`

	// Sentiment
	OverallSentiment    Sentiment `json:"overallSentiment"`
	SentimentScore      *float64  `json:"sentimentScore,omitempty"`
	SentimentConfidence *float64  `json:"sentimentConfidence,omitempty"`
	Emotions            []string  `json:"emotions"`

	// Quality
	CallQualityScore      *int             `json:"callQualityScore,omitempty"`
	AgentPerformanceScore *int             `json:"agentPerformanceScore,omitempty"`
	ConversationFlow      ConversationFlow `json:"conversationFlow"`

	// Insights
	KeyTopics           []string `json:"keyTopics"`
	MainPainPoints      []string `json:"mainPainPoints"`
	BuyingSignals       []string `json:"buyingSignals"`
	Objections          []string `json:"objections"`
	CompetitorMentions  []string `json:"competitorMentions"`
	ActionItems         []string `json:"actionItems"`
	FollowUpSuggestions []string `json:"followUpSuggestions"`
	DecisionMakers      []string `json:"decisionMakers"`

	// Engagement and predictions
	LeadInterestLevel    *int         `json:"leadInterestLevel,omitempty"`
	EngagementScore      *float64     `json:"engagementScore,omitempty"`
	ConversionLikelihood *float64     `json:"conversionLikelihood,omitempty"`
	RecommendedAction    string       `json:"recommendedAction"`
	UrgencyLevel         UrgencyLevel `json:"urgencyLevel"`
	FollowUpTimeline     string       `json:"followUpTimeline"`
	SuggestedApproach    string       `json:"suggestedApproach"`

	// Metrics and metadata
	QuestionsAsked    int           `json:"questionsAsked"`
	QuestionsAnswered int           `json:"questionsAnswered"`
	TalkTimeRatio     TalkTimeRatio `json:"talkTimeRatio"`
	AnalysisModel     string        `json:"analysisModel"`
	ProviderUsed      string        `json:"providerUsed"`
	ConfidenceScore   *float64      `json:"confidenceScore,omitempty"`
	ProcessingTime    int64         `json:"processingTime"`
	TokensUsed        int           `json:"tokensUsed"`
	Cost              float64       `json:"cost"`
}
