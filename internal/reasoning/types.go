package reasoning

import (
	"strings"

	"github.com/focusflow/splitd/internal/models"
)

// Request is the prompt-shaped input for one decomposition call.
type Request struct {
	NodeText        string       `json:"node_text"`
	AncestorChain   []string     `json:"ancestor_chain"`
	Scope           models.Scope `json:"scope"`
	TargetCountHint int          `json:"target_count_hint"`
}

// Candidate is one proposed child step. EstimatedMinutes and
// IsDirectlyActionable are optional; absence is distinct from zero.
type Candidate struct {
	Text                 string `json:"text"`
	EstimatedMinutes     *int   `json:"estimated_minutes,omitempty"`
	IsDirectlyActionable *bool  `json:"is_directly_actionable,omitempty"`
}

// validate is the parse-or-reject boundary for reasoning output: nothing
// partially valid crosses into the engine. An empty list when expansion was
// requested, a candidate without text, or a non-positive estimate all reject
// the whole response.
func validate(candidates []Candidate) error {
	if len(candidates) == 0 {
		return models.NewError(models.ErrCodeMalformedResponse, "reasoning service returned no candidates")
	}
	for i, c := range candidates {
		if strings.TrimSpace(c.Text) == "" {
			return models.NewError(models.ErrCodeMalformedResponse, "candidate %d has no text", i)
		}
		if c.EstimatedMinutes != nil && *c.EstimatedMinutes <= 0 {
			return models.NewError(models.ErrCodeMalformedResponse, "candidate %d has non-positive estimate %d", i, *c.EstimatedMinutes)
		}
	}
	return nil
}
