package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed provider attempt and decides what the chain does
// next.
type Kind int

const (
	// KindTransient is retried on the same provider with backoff.
	KindTransient Kind = iota + 1
	// KindProviderFatal (billing, credentials) advances to the next provider
	// immediately.
	KindProviderFatal
	// KindTimeout means the per-attempt deadline fired; the chain advances.
	KindTimeout
	// KindPersistent covers other rejections and unusable responses.
	KindPersistent
	// KindCanceled means the caller gave up; the chain stops.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindProviderFatal:
		return "provider_fatal"
	case KindTimeout:
		return "timeout"
	case KindPersistent:
		return "persistent"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var (
	ErrNoProviders     = errors.New("llm: no providers configured")
	ErrEmptyCompletion = errors.New("llm: provider returned empty content")
)

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError is the status-aware error SDK-backed adapters return so every
// provider is classified the same way.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// ProviderError is one classified failed attempt.
type ProviderError struct {
	Provider   string
	Attempt    int
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s attempt %d failed (%s, status %d): %v", e.Provider, e.Attempt, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %s attempt %d failed (%s): %v", e.Provider, e.Attempt, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every provider in the chain failed.
type ExhaustedError struct {
	Failures []*ProviderError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return "llm: all providers failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

// Last returns the final failure, which decides how the caller reports it.
func (e *ExhaustedError) Last() *ProviderError {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1]
}

// StatusCode extracts an upstream HTTP status from err, if any.
func StatusCode(err error) (int, bool) {
	var sc httpStatusCoder
	if !errors.As(err, &sc) {
		return 0, false
	}
	return sc.HTTPStatusCode(), true
}

// Classify maps a provider failure to a Kind plus the upstream status when
// one is known.
func Classify(err error) (Kind, int) {
	if err == nil {
		return 0, 0
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled, 0
	}
	if status, ok := StatusCode(err); ok {
		return classifyStatus(status), status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout, 0
		}
		return KindTransient, 0
	}
	return KindPersistent, 0
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindTransient
	case status == http.StatusUnauthorized, status == http.StatusPaymentRequired, status == http.StatusForbidden:
		return KindProviderFatal
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= 500:
		return KindTransient
	default:
		return KindPersistent
	}
}
