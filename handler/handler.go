package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"call-insights/internal/domain"
	"call-insights/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
	defaultRunsLimit  = 20
	maxRunsLimit      = 100
)

// Codes the transport emits on its own, next to usecase.ErrorCode values.
const (
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type Analyzer interface {
	Analyze(ctx context.Context, in usecase.AnalyzeInput) usecase.Result
}

type Recommender interface {
	Recommend(a domain.ConversationAnalysis) []domain.IntelligentAction
}

// AnalysisReader serves stored analyses. Lookup routes exist only when one is
// configured.
type AnalysisReader interface {
	GetAnalysis(ctx context.Context, conversationID string) (domain.AnalysisRecord, bool, error)
	ListRuns(ctx context.Context, conversationID string, limit int) ([]domain.AnalysisRecord, error)
}

type Handler struct {
	analyzer    Analyzer
	recommender Recommender
	reader      AnalysisReader
	logger      *logrus.Logger
	router      *mux.Router
	endpoints   map[string]endpoint
	newID       func() string
}

type Option func(*Handler)

func WithReader(r AnalysisReader) Option {
	return func(h *Handler) {
		h.reader = r
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// input is the transport-neutral view of a request.
type input struct {
	vars  map[string]string
	query url.Values
	body  []byte
}

type endpoint func(ctx context.Context, in input) (int, any)

func NewHandler(analyzer Analyzer, recommender Recommender, opts ...Option) (*Handler, error) {
	if analyzer == nil {
		return nil, errors.New("handler: analyzer must not be nil")
	}
	if recommender == nil {
		return nil, errors.New("handler: recommender must not be nil")
	}
	h := &Handler{
		analyzer:    analyzer,
		recommender: recommender,
		logger:      logrus.StandardLogger(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	return h, nil
}

func (h *Handler) routes() {
	h.router = mux.NewRouter()
	h.endpoints = map[string]endpoint{}

	add := func(name, path, method string, ep endpoint) {
		h.endpoints[name] = ep
		h.router.Handle(path, h.serveHTTP(ep)).Methods(method).Name(name)
	}
	add("analyze", "/analyze", http.MethodPost, h.analyze)
	add("actions", "/actions", http.MethodPost, h.actions)
	if h.reader != nil {
		add("get-analysis", "/analyses/{conversationId}", http.MethodGet, h.getAnalysis)
		add("list-runs", "/analyses/{conversationId}/runs", http.MethodGet, h.listRuns)
	}

	h.router.NotFoundHandler = h.serveHTTP(notFound)
	h.router.MethodNotAllowedHandler = h.serveHTTP(methodNotAllowed)
}

// Router exposes the route table so a server can mount extra endpoints.
func (h *Handler) Router() *mux.Router {
	return h.router
}

// Handle serves API Gateway proxy events through the same route table as
// the HTTP server.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	query := url.Values{}
	for k, v := range req.QueryStringParameters {
		query.Set(k, v)
	}
	for k, vs := range req.MultiValueQueryStringParameters {
		query[k] = vs
	}

	ep, vars := h.match(ctx, req.HTTPMethod, req.Path)
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			ep = badEncoding
		}
		body = decoded
	}

	in := input{vars: vars, query: query, body: body}
	status, headers, payload := h.dispatch(ctx, req.HTTPMethod, req.Path, headerValue(req.Headers, correlationHeader), in, ep)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(payload),
	}, nil
}

func (h *Handler) match(ctx context.Context, method, path string) (endpoint, map[string]string) {
	r, err := http.NewRequestWithContext(ctx, method, (&url.URL{Path: path}).String(), nil)
	if err != nil {
		return notFound, nil
	}
	var m mux.RouteMatch
	h.router.Match(r, &m)
	switch {
	case errors.Is(m.MatchErr, mux.ErrMethodMismatch):
		return methodNotAllowed, nil
	case m.Route == nil:
		return notFound, nil
	}
	ep, ok := h.endpoints[m.Route.GetName()]
	if !ok {
		return notFound, nil
	}
	return ep, m.Vars
}

func notFound(context.Context, input) (int, any) {
	return http.StatusNotFound, plainError(codeNotFound, "route_not_found")
}

func methodNotAllowed(context.Context, input) (int, any) {
	return http.StatusMethodNotAllowed, plainError(codeMethodNotAllowed, "method_not_allowed")
}

func badEncoding(context.Context, input) (int, any) {
	return http.StatusBadRequest, plainError(string(usecase.ErrorInvalidInput), "invalid_body_encoding")
}

func (h *Handler) serveHTTP(ep endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := ep
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			run = badEncoding
		}
		in := input{vars: mux.Vars(r), query: r.URL.Query(), body: body}
		status, headers, payload := h.dispatch(r.Context(), r.Method, r.URL.Path, r.Header.Get(correlationHeader), in, run)
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}
}

// dispatch runs one endpoint with correlation, size limits and request logging.
func (h *Handler) dispatch(ctx context.Context, method, path, correlationID string, in input, ep endpoint) (int, map[string]string, []byte) {
	start := time.Now()
	if strings.TrimSpace(correlationID) == "" {
		correlationID = h.newID()
	}

	var (
		status int
		body   any
	)
	if len(in.body) > maxBodyBytes {
		status, body = http.StatusRequestEntityTooLarge, plainError(string(usecase.ErrorInvalidInput), "body_too_large")
	} else {
		status, body = ep(ctx, in)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload, _ = json.Marshal(plainError(string(usecase.ErrorInternal), "encode_response"))
	}

	entry := h.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"method":         method,
		"path":           path,
		"status":         status,
		"duration_ms":    time.Since(start).Milliseconds(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request handled")
	}

	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: correlationID,
	}
	return status, headers, payload
}

func (h *Handler) analyze(ctx context.Context, in input) (int, any) {
	var req usecase.AnalyzeInput
	if err := decodeBody(in.body, &req); err != nil {
		return http.StatusBadRequest, plainError(string(usecase.ErrorInvalidInput), "invalid_json")
	}

	res := h.analyzer.Analyze(ctx, req)
	if !res.Success {
		e := res.Error
		if e == nil {
			e = &usecase.Error{Code: usecase.ErrorInternal, Reason: "missing_error"}
		}
		return statusFor(e.Code), errorResponse{
			Success:          false,
			Error:            string(e.Code),
			Title:            e.Title,
			Reason:           e.Reason,
			Retryable:        e.Retryable(),
			RequiresOperator: e.RequiresOperator(),
			ProcessingTime:   res.ProcessingTime,
		}
	}
	return http.StatusOK, analyzeResponse{
		Success:        true,
		Analysis:       res.Analysis,
		Actions:        nonNilActions(res.Actions),
		ProcessingTime: res.ProcessingTime,
		Persisted:      res.Persisted,
		Cached:         res.Cached,
	}
}

// actions ranks follow-ups for an analysis produced elsewhere.
func (h *Handler) actions(_ context.Context, in input) (int, any) {
	var analysis domain.ConversationAnalysis
	if err := decodeBody(in.body, &analysis); err != nil {
		return http.StatusBadRequest, plainError(string(usecase.ErrorInvalidInput), "invalid_json")
	}
	analysis = usecase.SanitizeAnalysis(analysis)
	return http.StatusOK, actionsResponse{Actions: nonNilActions(h.recommender.Recommend(analysis))}
}

func (h *Handler) getAnalysis(ctx context.Context, in input) (int, any) {
	id := in.vars["conversationId"]
	rec, found, err := h.reader.GetAnalysis(ctx, id)
	if err != nil {
		h.logger.WithError(err).WithField("conversation_id", id).Error("Failed to load analysis")
		return http.StatusInternalServerError, plainError(string(usecase.ErrorInternal), "storage_read_failed")
	}
	if !found {
		return http.StatusNotFound, plainError(codeNotFound, "analysis_not_found")
	}
	return http.StatusOK, toRecordResponse(rec)
}

func (h *Handler) listRuns(ctx context.Context, in input) (int, any) {
	id := in.vars["conversationId"]
	limit := defaultRunsLimit
	if raw := in.query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return http.StatusBadRequest, plainError(string(usecase.ErrorInvalidInput), "invalid_limit")
		}
		limit = min(n, maxRunsLimit)
	}

	recs, err := h.reader.ListRuns(ctx, id, limit)
	if err != nil {
		h.logger.WithError(err).WithField("conversation_id", id).Error("Failed to list analysis runs")
		return http.StatusInternalServerError, plainError(string(usecase.ErrorInternal), "storage_read_failed")
	}
	runs := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, toRecordResponse(rec))
	}
	return http.StatusOK, runsResponse{ConversationID: id, Runs: runs}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorInsufficientCredits, usecase.ErrorInvalidAPIKey,
		usecase.ErrorAnalysisFailed, usecase.ErrorMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, v)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func nonNilActions(a []domain.IntelligentAction) []domain.IntelligentAction {
	if a == nil {
		return []domain.IntelligentAction{}
	}
	return a
}
