package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrorRateLimited         ErrorCode = "RATE_LIMITED"
	ErrorInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrorInvalidAPIKey       ErrorCode = "INVALID_API_KEY"
	ErrorAnalysisFailed      ErrorCode = "ANALYSIS_FAILED"
	ErrorMalformedResponse   ErrorCode = "MALFORMED_RESPONSE"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

// Titles shown to operators and end users for each failure class.
const (
	TitleRateLimited         = "Rate limit exceeded"
	TitleInsufficientCredits = "Insufficient credits"
	TitleInvalidAPIKey       = "Invalid API key"
	TitleAnalysisFailed      = "Analysis failed"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Title  string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the caller may simply try again later.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Code == ErrorRateLimited || e.Code == ErrorAnalysisFailed
}

// RequiresOperator reports billing and credential failures that no retry fixes.
func (e *Error) RequiresOperator() bool {
	if e == nil {
		return false
	}
	return e.Code == ErrorInsufficientCredits || e.Code == ErrorInvalidAPIKey
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Title: titleFor(code), Err: err}
}

func titleFor(code ErrorCode) string {
	switch code {
	case ErrorRateLimited:
		return TitleRateLimited
	case ErrorInsufficientCredits:
		return TitleInsufficientCredits
	case ErrorInvalidAPIKey:
		return TitleInvalidAPIKey
	default:
		return TitleAnalysisFailed
	}
}
