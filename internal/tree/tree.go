package tree

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/focusflow/splitd/internal/models"
)

// Tree is the authoritative, mutation-safe view of one task's decomposition
// tree. All mutation flows through the named operations below; every write is
// a fast in-memory critical section so the lock is never held across a
// reasoning call. Node ids are write-once, so readers outside the lock can
// hold snapshots without observing a half-written child list.
type Tree struct {
	mu     sync.RWMutex
	taskID string
	rootID string
	nodes  map[string]*models.TaskNode
}

// New creates a tree holding a single root node in state stub. The task id
// doubles as the root node id. An optional author duration hint seeds the
// root estimate (0 means absent).
func New(description string, estimatedMinutes int) (*Tree, error) {
	if strings.TrimSpace(description) == "" {
		return nil, models.NewError(models.ErrCodeInvalidInput, "task description is empty")
	}
	if estimatedMinutes < 0 {
		return nil, models.NewError(models.ErrCodeInvalidInput, "duration hint must be positive")
	}
	id := uuid.New().String()
	root := &models.TaskNode{
		ID:               id,
		Description:      description,
		Level:            0,
		State:            models.StateStub,
		EstimatedMinutes: estimatedMinutes,
		CreatedAt:        time.Now().UTC(),
	}
	return &Tree{
		taskID: id,
		rootID: id,
		nodes:  map[string]*models.TaskNode{id: root},
	}, nil
}

// FromSnapshot rebuilds a tree from its persisted encoding. Any node found
// in state expanding is demoted to stub: no in-process job can still own it
// after a reload.
func FromSnapshot(snap *models.TreeSnapshot) (*Tree, error) {
	if snap == nil || snap.RootID == "" || len(snap.Nodes) == 0 {
		return nil, models.NewError(models.ErrCodeInvalidInput, "snapshot is empty")
	}
	nodes := make(map[string]*models.TaskNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.ID == "" {
			return nil, models.NewError(models.ErrCodeInvalidInput, "snapshot node without id")
		}
		if _, dup := nodes[n.ID]; dup {
			return nil, models.NewError(models.ErrCodeInvalidInput, "duplicate node id %s", n.ID)
		}
		cp := n.Clone()
		if cp.State == models.StateExpanding {
			cp.State = models.StateStub
		}
		nodes[n.ID] = cp
	}
	root, ok := nodes[snap.RootID]
	if !ok {
		return nil, models.NewError(models.ErrCodeInvalidInput, "snapshot root %s missing", snap.RootID)
	}
	for _, n := range nodes {
		if n.ID != root.ID {
			parent, ok := nodes[n.ParentID]
			if !ok {
				return nil, models.NewError(models.ErrCodeInvalidInput, "node %s has unknown parent", n.ID)
			}
			if n.Level != parent.Level+1 {
				return nil, models.NewError(models.ErrCodeInvalidInput, "node %s level %d does not follow parent level %d", n.ID, n.Level, parent.Level)
			}
		}
		// leaf/interior exclusivity: only expanded nodes carry children
		if n.State == models.StateExpanded {
			if len(n.Children) == 0 {
				return nil, models.NewError(models.ErrCodeInvalidInput, "expanded node %s has no children", n.ID)
			}
		} else if len(n.Children) > 0 {
			return nil, models.NewError(models.ErrCodeInvalidInput, "%s node %s has children", n.State, n.ID)
		}
		for _, childID := range n.Children {
			child, ok := nodes[childID]
			if !ok {
				return nil, models.NewError(models.ErrCodeInvalidInput, "node %s references missing child %s", n.ID, childID)
			}
			if child.ParentID != n.ID {
				return nil, models.NewError(models.ErrCodeInvalidInput, "child %s does not point back to %s", childID, n.ID)
			}
		}
	}
	return &Tree{taskID: snap.TaskID, rootID: snap.RootID, nodes: nodes}, nil
}

func (t *Tree) TaskID() string { return t.taskID }
func (t *Tree) RootID() string { return t.rootID }

// Node returns a copy of the node, or NotFound.
func (t *Tree) Node(id string) (*models.TaskNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, models.NewError(models.ErrCodeNotFound, "node %s not found", id)
	}
	return n.Clone(), nil
}

// Path returns the descriptions of the node's ancestors, root first, not
// including the node itself. Used as reasoning context.
func (t *Tree) Path(id string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, models.NewError(models.ErrCodeNotFound, "node %s not found", id)
	}
	var chain []string
	for n.ParentID != "" {
		parent, ok := t.nodes[n.ParentID]
		if !ok {
			break
		}
		chain = append(chain, parent.Description)
		n = parent
	}
	// reverse into root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Scope returns the scope recorded on the root of the decomposition pass.
func (t *Tree) Scope() models.Scope {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.rootID].Scope
}

// SetScope records the scope decision on the root.
func (t *Tree) SetScope(scope models.Scope) {
	t.mu.Lock()
	t.nodes[t.rootID].Scope = scope
	t.mu.Unlock()
}

// BeginExpansion is the atomic check-and-set guarding expansion exclusivity:
// stub -> expanding. Of two racing callers exactly one wins; the loser gets
// AlreadyInProgress synchronously. Atomic and expanded nodes are rejected
// with NotExpandable.
func (t *Tree) BeginExpansion(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return models.NewError(models.ErrCodeNotFound, "node %s not found", id)
	}
	switch n.State {
	case models.StateStub:
		n.State = models.StateExpanding
		return nil
	case models.StateExpanding:
		return models.NewError(models.ErrCodeAlreadyInProgress, "expansion already in flight for node %s", id)
	default:
		return models.NewError(models.ErrCodeNotExpandable, "node %s is %s", id, n.State)
	}
}

// RevertExpansion rolls an expanding node back to stub after a failed job.
func (t *Tree) RevertExpansion(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return models.NewError(models.ErrCodeNotFound, "node %s not found", id)
	}
	if n.State != models.StateExpanding {
		return models.NewError(models.ErrCodeInvalidTransition, "node %s is %s, not expanding", id, n.State)
	}
	n.State = models.StateStub
	return nil
}

// AttachChildren assigns fresh ids to the drafts, appends them in order under
// the parent and transitions the parent expanding -> expanded, all under one
// critical section. Children appear all-or-nothing: an illegal call (parent
// not expanding, or parent already has children) mutates nothing. Interior
// estimates are recomputed bottom-up as the sum of child estimates.
func (t *Tree) AttachChildren(parentID string, drafts []models.Draft) ([]string, error) {
	if len(drafts) == 0 {
		return nil, models.NewError(models.ErrCodeInvalidTransition, "no children to attach")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, models.NewError(models.ErrCodeNotFound, "node %s not found", parentID)
	}
	if parent.State != models.StateExpanding {
		return nil, models.NewError(models.ErrCodeInvalidTransition, "node %s is %s, expected expanding", parentID, parent.State)
	}
	if len(parent.Children) > 0 {
		return nil, models.NewError(models.ErrCodeInvalidTransition, "node %s already has children", parentID)
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		child := &models.TaskNode{
			ID:               uuid.New().String(),
			ParentID:         parentID,
			Description:      d.Description,
			Level:            parent.Level + 1,
			State:            d.State,
			LeafType:         d.LeafType,
			DelegationMode:   d.DelegationMode,
			EstimatedMinutes: d.EstimatedMinutes,
			CreatedAt:        now,
		}
		t.nodes[child.ID] = child
		ids = append(ids, child.ID)
	}
	parent.Children = ids
	parent.State = models.StateExpanded
	t.rollUpEstimates(parent)
	return append([]string(nil), ids...), nil
}

// ResetNode deletes the node's entire subtree and returns it to stub. Legal
// only for expanded nodes; expanding nodes are owned by a job and atomic or
// stub nodes have nothing to reset. Returns the removed node ids.
func (t *Tree) ResetNode(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, models.NewError(models.ErrCodeNotFound, "node %s not found", id)
	}
	switch n.State {
	case models.StateExpanded:
	case models.StateExpanding:
		return nil, models.NewError(models.ErrCodeAlreadyInProgress, "expansion in flight for node %s", id)
	default:
		return nil, models.NewError(models.ErrCodeInvalidTransition, "node %s is %s, only expanded nodes can be reset", id, n.State)
	}

	var removed []string
	var cascade func(parent *models.TaskNode)
	cascade = func(parent *models.TaskNode) {
		for _, childID := range parent.Children {
			if child, ok := t.nodes[childID]; ok {
				cascade(child)
				delete(t.nodes, childID)
				removed = append(removed, childID)
			}
		}
	}
	cascade(n)
	n.Children = nil
	n.State = models.StateStub
	// the node keeps its rolled-up estimate as a top-down figure for the
	// next expansion pass
	t.rollUpEstimates(n)
	return removed, nil
}

// rollUpEstimates recomputes interior estimates as the sum of child
// estimates, from the given node up to the root.
func (t *Tree) rollUpEstimates(from *models.TaskNode) {
	for n := from; n != nil; {
		if len(n.Children) > 0 {
			sum := 0
			for _, id := range n.Children {
				if c, ok := t.nodes[id]; ok {
					sum += c.EstimatedMinutes
				}
			}
			n.EstimatedMinutes = sum
		}
		if n.ParentID == "" {
			break
		}
		n = t.nodes[n.ParentID]
	}
}

// Snapshot produces the order-preserving persisted encoding: nodes in
// depth-first order from the root, child order intact.
func (t *Tree) Snapshot() *models.TreeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes := make([]*models.TaskNode, 0, len(t.nodes))
	var walk func(id string)
	walk = func(id string) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		nodes = append(nodes, n.Clone())
		for _, childID := range n.Children {
			walk(childID)
		}
	}
	walk(t.rootID)
	return &models.TreeSnapshot{TaskID: t.taskID, RootID: t.rootID, Nodes: nodes}
}

// NodeIDs returns every node id currently in the tree.
func (t *Tree) NodeIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	return ids
}
