package classify

import (
	"strings"

	"github.com/focusflow/splitd/internal/models"
)

// Duration buckets for scope classification, in minutes.
const (
	simpleMaxMinutes = 15
	multiMaxMinutes  = 60
)

// ScopeResult is the outcome of a scope classification pass.
type ScopeResult struct {
	Scope models.Scope
	// SuggestedStepCount is a fan-out hint for the decomposition engine,
	// not a hard constraint.
	SuggestedStepCount int
}

// conjunctions that imply multiple actions in a single description.
var conjunctionMarkers = []string{" and ", " then ", " after ", " before ", "; "}

// leading verbs that imply a multi-step undertaking even when the text is a
// single short sentence ("Plan mom's 60th birthday party").
var projectVerbs = map[string]struct{}{
	"plan": {}, "organize": {}, "organise": {}, "arrange": {},
	"prepare": {}, "host": {}, "launch": {}, "build": {},
	"renovate": {}, "move": {}, "research": {}, "migrate": {},
	"redesign": {}, "overhaul": {},
}

// ClassifyScope assigns a coarse size class to raw task text. If the author
// supplied a duration estimate (in minutes, 0 means absent) it buckets by
// minutes; otherwise it falls back to a heuristic over text structure. The
// function is pure: identical inputs always produce identical results.
func ClassifyScope(text string, durationMinutes int) (ScopeResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ScopeResult{}, models.NewError(models.ErrCodeInvalidInput, "task text is empty")
	}

	if durationMinutes > 0 {
		return scopeFromDuration(durationMinutes), nil
	}
	return scopeFromText(trimmed), nil
}

func scopeFromDuration(minutes int) ScopeResult {
	switch {
	case minutes < simpleMaxMinutes:
		steps := 1
		if minutes >= 8 {
			steps = 2
		}
		return ScopeResult{Scope: models.ScopeSimple, SuggestedStepCount: steps}
	case minutes <= multiMaxMinutes:
		return ScopeResult{Scope: models.ScopeMulti, SuggestedStepCount: clampSteps(minutes/15 + 2)}
	default:
		return ScopeResult{Scope: models.ScopeProject, SuggestedStepCount: 7}
	}
}

func scopeFromText(text string) ScopeResult {
	lower := strings.ToLower(text)

	sentences := countSentences(lower)
	conjunctions := 0
	for _, m := range conjunctionMarkers {
		conjunctions += strings.Count(lower, m)
	}
	words := len(strings.Fields(lower))

	score := (sentences - 1) + conjunctions

	firstWord := strings.Fields(lower)[0]
	_, undertaking := projectVerbs[firstWord]

	switch {
	case undertaking && score >= 2:
		return ScopeResult{Scope: models.ScopeProject, SuggestedStepCount: 7}
	case undertaking:
		return ScopeResult{Scope: models.ScopeMulti, SuggestedStepCount: clampSteps(4 + conjunctions)}
	case score >= 4 || words > 60:
		return ScopeResult{Scope: models.ScopeProject, SuggestedStepCount: 7}
	case score >= 1 || words > 15:
		return ScopeResult{Scope: models.ScopeMulti, SuggestedStepCount: clampSteps(3 + conjunctions)}
	default:
		return ScopeResult{Scope: models.ScopeSimple, SuggestedStepCount: 1}
	}
}

func countSentences(text string) int {
	n := 0
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

func clampSteps(n int) int {
	if n < 3 {
		return 3
	}
	if n > 7 {
		return 7
	}
	return n
}
