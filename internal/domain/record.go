package domain

// AnalysisRecord is the persisted shape of a completed analysis run.
type AnalysisRecord struct {
	PK             string
	SK             string
	ConversationID string
	Analysis       ConversationAnalysis
	Actions        []IntelligentAction
	Provider       string
	Model          string
	TokensUsed     int
	Cost           float64
	ProcessingTime int64
	UpdatedAt      string
	TTL            int64
}
