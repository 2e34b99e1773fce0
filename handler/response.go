package handler

import "call-insights/internal/domain"

type errorResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	Title            string `json:"title,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Retryable        bool   `json:"retryable"`
	RequiresOperator bool   `json:"requiresOperator"`
	ProcessingTime   int64  `json:"processingTime"`
}

func plainError(code, reason string) errorResponse {
	return errorResponse{Error: code, Reason: reason}
}

type analyzeResponse struct {
	Success        bool                         `json:"success"`
	Analysis       *domain.ConversationAnalysis `json:"analysis"`
	Actions        []domain.IntelligentAction   `json:"actions"`
	ProcessingTime int64                        `json:"processingTime"`
	Persisted      bool                         `json:"persisted"`
	Cached         bool                         `json:"cached"`
}

type actionsResponse struct {
	Actions []domain.IntelligentAction `json:"actions"`
}

type recordResponse struct {
	ConversationID string                      `json:"conversationId"`
	Analysis       domain.ConversationAnalysis `json:"analysis"`
	Actions        []domain.IntelligentAction  `json:"actions"`
	Provider       string                      `json:"provider"`
	Model          string                      `json:"model"`
	TokensUsed     int                         `json:"tokensUsed"`
	Cost           float64                     `json:"cost"`
	ProcessingTime int64                       `json:"processingTime"`
	UpdatedAt      string                      `json:"updatedAt"`
}

type runsResponse struct {
	ConversationID string           `json:"conversationId"`
	Runs           []recordResponse `json:"runs"`
}

func toRecordResponse(rec domain.AnalysisRecord) recordResponse {
	return recordResponse{
		ConversationID: rec.ConversationID,
		Analysis:       rec.Analysis,
		Actions:        nonNilActions(rec.Actions),
		Provider:       rec.Provider,
		Model:          rec.Model,
		TokensUsed:     rec.TokensUsed,
		Cost:           rec.Cost,
		ProcessingTime: rec.ProcessingTime,
		UpdatedAt:      rec.UpdatedAt,
	}
}
