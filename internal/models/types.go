package models

import "time"

// DecompositionState tracks how far a node has been broken down.
type DecompositionState string

const (
	// StateStub marks a node known to need further breakdown, not yet expanded.
	StateStub DecompositionState = "stub"
	// StateExpanding marks a node with an expansion job in flight. Exclusive.
	StateExpanding DecompositionState = "expanding"
	// StateExpanded marks an interior node whose children carry the work.
	StateExpanded DecompositionState = "expanded"
	// StateAtomic marks a leaf sized for one short focused effort.
	StateAtomic DecompositionState = "atomic"
)

// LeafType classifies an atomic step as machine-executable or human-only.
type LeafType string

const (
	LeafDigital LeafType = "digital"
	LeafHuman   LeafType = "human"
)

// DelegationMode is the handling policy for an atomic step.
type DelegationMode string

const (
	DelegationDo       DelegationMode = "do"
	DelegationDoWithMe DelegationMode = "do_with_me"
	DelegationDelegate DelegationMode = "delegate"
	// DelegationDelete is only ever set by explicit user action, never by
	// classification.
	DelegationDelete DelegationMode = "delete"
)

// Scope is the coarse size class assigned to the root of a decomposition pass.
type Scope string

const (
	ScopeSimple  Scope = "simple"
	ScopeMulti   Scope = "multi"
	ScopeProject Scope = "project"
)

// TaskNode is one node of a decomposition tree.
type TaskNode struct {
	ID               string             `json:"id"`
	ParentID         string             `json:"parent_id,omitempty"`
	Description      string             `json:"description"`
	Level            int                `json:"level"`
	State            DecompositionState `json:"decomposition_state"`
	LeafType         LeafType           `json:"leaf_type,omitempty"`
	DelegationMode   DelegationMode     `json:"delegation_mode,omitempty"`
	EstimatedMinutes int                `json:"estimated_minutes"`
	Children         []string           `json:"children,omitempty"`
	// Scope is set only on the root of a decomposition pass.
	Scope     Scope     `json:"scope,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy safe to hand to callers outside the tree lock.
func (n *TaskNode) Clone() *TaskNode {
	cp := *n
	if n.Children != nil {
		cp.Children = make([]string, len(n.Children))
		copy(cp.Children, n.Children)
	}
	return &cp
}

// Draft is a fully-formed child candidate produced by the decomposition
// engine. IDs, parent links and levels are assigned by the tree at attach
// time, never by the engine.
type Draft struct {
	Description      string             `json:"description"`
	State            DecompositionState `json:"decomposition_state"`
	LeafType         LeafType           `json:"leaf_type,omitempty"`
	DelegationMode   DelegationMode     `json:"delegation_mode,omitempty"`
	EstimatedMinutes int                `json:"estimated_minutes"`
}

// TreeSnapshot is the stable, order-preserving encoding of one task's tree
// used by the persistence repository. Nodes are listed in depth-first order
// from the root so a round trip reproduces an identical tree.
type TreeSnapshot struct {
	TaskID string      `json:"task_id"`
	RootID string      `json:"root_id"`
	Nodes  []*TaskNode `json:"nodes"`
}
