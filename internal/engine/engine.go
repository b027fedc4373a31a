package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/classify"
	"github.com/focusflow/splitd/internal/models"
	"github.com/focusflow/splitd/internal/reasoning"
)

// Policy bounds the size and fan-out of decomposition output.
type Policy struct {
	// AtomicMinMinutes..AtomicMaxMinutes is the micro-step range; atomic
	// nodes must estimate inside it.
	AtomicMinMinutes int
	AtomicMaxMinutes int
	// MaxEstimateMinutes is the sanity ceiling for service-provided
	// estimates; anything outside [1, MaxEstimateMinutes] is replaced.
	MaxEstimateMinutes int
	// SimpleMaxFanout caps children for SIMPLE scope (usually 1-2).
	SimpleMaxFanout int
	// MaxFanout caps children for MULTI/PROJECT scope.
	MaxFanout int
	// StubDefaultMinutes is the top-down estimate given to non-atomic
	// candidates the service did not size.
	StubDefaultMinutes int
}

// DefaultPolicy matches the 2-5 minute micro-step contract with 3-7 fan-out.
func DefaultPolicy() Policy {
	return Policy{
		AtomicMinMinutes:   2,
		AtomicMaxMinutes:   5,
		MaxEstimateMinutes: 480,
		SimpleMaxFanout:    2,
		MaxFanout:          7,
		StubDefaultMinutes: 15,
	}
}

// Result is one validated, properly-sized, properly-classified batch of
// child drafts for a stub node.
type Result struct {
	Drafts []models.Draft
	Scope  models.Scope
}

// Engine turns one stub node into child drafts by calling the reasoning
// service and normalizing its output. It performs no retries and touches no
// tree state; both belong to the coordinator.
type Engine struct {
	reasoner reasoning.Client
	leaves   classify.LeafClassifier
	policy   Policy
	logger   *zap.Logger
}

func New(reasoner reasoning.Client, leaves classify.LeafClassifier, policy Policy, logger *zap.Logger) *Engine {
	return &Engine{reasoner: reasoner, leaves: leaves, policy: policy, logger: logger}
}

// Expand builds the reasoning request from the node's context, invokes the
// service and normalizes every candidate into a draft. countHint comes from
// scope classification when available; 0 lets scope decide the target.
func (e *Engine) Expand(ctx context.Context, node *models.TaskNode, ancestors []string, scope models.Scope, countHint int) (*Result, error) {
	if strings.TrimSpace(node.Description) == "" {
		return nil, models.NewError(models.ErrCodeInvalidInput, "node %s has no description", node.ID)
	}

	target := e.targetCount(scope, countHint)
	candidates, err := e.reasoner.Propose(ctx, reasoning.Request{
		NodeText:        node.Description,
		AncestorChain:   ancestors,
		Scope:           scope,
		TargetCountHint: target,
	})
	if err != nil {
		return nil, err
	}

	limit := e.fanoutCap(scope)
	if len(candidates) > limit {
		e.logger.Debug("Truncating oversized reasoning response",
			zap.String("node_id", node.ID),
			zap.Int("returned", len(candidates)),
			zap.Int("limit", limit),
		)
		candidates = candidates[:limit]
	}

	drafts := make([]models.Draft, 0, len(candidates))
	for _, c := range candidates {
		drafts = append(drafts, e.normalize(c))
	}
	return &Result{Drafts: drafts, Scope: scope}, nil
}

// normalize sizes and classifies a single candidate. Estimates from the
// service are trusted inside [1, MaxEstimateMinutes]; otherwise the size
// heuristic decides. Only atomic drafts get a leaf classification: interior
// stubs are not directly actionable, so delegation does not apply to them.
func (e *Engine) normalize(c reasoning.Candidate) models.Draft {
	single := readsAsSingleAction(c.Text)

	minutes := 0
	if c.EstimatedMinutes != nil && *c.EstimatedMinutes >= 1 && *c.EstimatedMinutes <= e.policy.MaxEstimateMinutes {
		minutes = *c.EstimatedMinutes
	} else if single || boolVal(c.IsDirectlyActionable) {
		minutes = (e.policy.AtomicMinMinutes + e.policy.AtomicMaxMinutes) / 2
	} else {
		minutes = e.policy.StubDefaultMinutes
	}

	draft := models.Draft{
		Description:      strings.TrimSpace(c.Text),
		EstimatedMinutes: minutes,
		State:            models.StateStub,
	}
	if single && minutes >= e.policy.AtomicMinMinutes && minutes <= e.policy.AtomicMaxMinutes {
		draft.State = models.StateAtomic
		draft.LeafType, draft.DelegationMode = e.leaves.ClassifyLeaf(draft.Description)
	}
	return draft
}

func (e *Engine) targetCount(scope models.Scope, hint int) int {
	if scope == models.ScopeSimple {
		if hint >= 1 && hint <= e.policy.SimpleMaxFanout {
			return hint
		}
		return 1
	}
	if hint >= 3 && hint <= e.policy.MaxFanout {
		return hint
	}
	return (3 + e.policy.MaxFanout) / 2
}

func (e *Engine) fanoutCap(scope models.Scope) int {
	if scope == models.ScopeSimple {
		return e.policy.SimpleMaxFanout
	}
	return e.policy.MaxFanout
}

// readsAsSingleAction is the size heuristic for atomicity: one sentence, no
// chained actions.
func readsAsSingleAction(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, marker := range []string{" and ", " then ", "; ", " after ", " before "} {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	terminals := 0
	for _, r := range lower {
		if r == '.' || r == '!' || r == '?' {
			terminals++
		}
	}
	// a trailing period still reads as one sentence
	if terminals > 1 || (terminals == 1 && !strings.HasSuffix(lower, ".") && !strings.HasSuffix(lower, "!") && !strings.HasSuffix(lower, "?")) {
		return false
	}
	return len(strings.Fields(lower)) <= 16
}

func boolVal(b *bool) bool { return b != nil && *b }
