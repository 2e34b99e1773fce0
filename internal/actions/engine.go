package actions

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"call-insights/internal/domain"
)

const DefaultMaxActions = 6

// DedupMode decides what happens to a later candidate whose type was already
// emitted.
type DedupMode string

const (
	// DedupAppendHigh keeps the first candidate of each type and still appends
	// later high-priority ones, so a type can appear twice.
	DedupAppendHigh DedupMode = "append_high"
	// DedupReplaceHigh lets a later high-priority candidate replace an earlier
	// lower-priority one in place.
	DedupReplaceHigh DedupMode = "replace_high"
)

var actionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("call-insights/actions"))

var priorityWeight = map[domain.Priority]int{
	domain.PriorityHigh:   3,
	domain.PriorityMedium: 2,
	domain.PriorityLow:    1,
}

var urgencyWeight = map[domain.Urgency]int{
	domain.UrgencyImmediate: 4,
	domain.UrgencyToday:     3,
	domain.UrgencyThisWeek:  2,
	domain.UrgencyNextWeek:  1,
}

// Score ranks an action; higher goes first.
func Score(a domain.IntelligentAction) int {
	return priorityWeight[a.Priority]*10 + urgencyWeight[a.Urgency]
}

// Engine maps one analysis into a bounded, ranked action list. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	rules      Rulebook
	maxActions int
	dedup      DedupMode
	generators []generator
}

type Option func(*Engine)

func WithRulebook(r Rulebook) Option {
	return func(e *Engine) {
		e.rules = r
	}
}

func WithMaxActions(n int) Option {
	return func(e *Engine) {
		e.maxActions = n
	}
}

func WithDedupMode(mode DedupMode) Option {
	return func(e *Engine) {
		e.dedup = mode
	}
}

func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		rules:      DefaultRulebook(),
		maxActions: DefaultMaxActions,
		dedup:      DedupAppendHigh,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxActions <= 0 {
		return nil, fmt.Errorf("actions: max actions must be positive, got %d", e.maxActions)
	}
	if err := e.dedup.Validate(); err != nil {
		return nil, err
	}
	e.generators = []generator{
		buyingSignalGenerator(e.rules.BuyingSignals),
		objectionGenerator(e.rules.Objections),
		interestGenerator,
		sentimentGenerator,
		conversionGenerator,
		competitorGenerator,
		painPointGenerator,
	}
	return e, nil
}

func (m DedupMode) Validate() error {
	switch m {
	case DedupAppendHigh, DedupReplaceHigh:
		return nil
	default:
		return fmt.Errorf("actions: unknown dedup mode %q", m)
	}
}

// Recommend never fails; with no usable signals it returns an empty list.
// Identical input yields identical output, IDs included.
func (e *Engine) Recommend(a domain.ConversationAnalysis) []domain.IntelligentAction {
	var candidates []domain.IntelligentAction
	for _, gen := range e.generators {
		candidates = append(candidates, gen(a)...)
	}

	out := dedupe(candidates, e.dedup)
	slices.SortStableFunc(out, func(x, y domain.IntelligentAction) int {
		return Score(y) - Score(x)
	})
	if len(out) > e.maxActions {
		out = out[:e.maxActions]
	}
	for i := range out {
		out[i].ID = actionID(out[i], i)
	}
	return out
}

func dedupe(candidates []domain.IntelligentAction, mode DedupMode) []domain.IntelligentAction {
	out := make([]domain.IntelligentAction, 0, len(candidates))
	first := make(map[domain.ActionType]int, len(candidates))
	for _, c := range candidates {
		idx, seen := first[c.Type]
		switch {
		case !seen:
			first[c.Type] = len(out)
			out = append(out, c)
		case c.Priority != domain.PriorityHigh:
			// dropped
		case mode == DedupReplaceHigh:
			if out[idx].Priority != domain.PriorityHigh {
				out[idx] = c
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

func actionID(a domain.IntelligentAction, position int) string {
	name := string(a.Type) + "\x00" + a.Title + "\x00" + a.Reasoning + "\x00" + strconv.Itoa(position)
	return uuid.NewSHA1(actionNamespace, []byte(name)).String()
}
