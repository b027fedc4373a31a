package tree

import "sync"

// Registry tracks the trees currently held in memory and maps node ids back
// to their owning tree, so the coordinator can resolve a bare node id from
// the caller-facing API.
type Registry struct {
	mu    sync.RWMutex
	trees map[string]*Tree // by task id
	owner map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		trees: make(map[string]*Tree),
		owner: make(map[string]string),
	}
}

// Add registers a tree and indexes all of its current nodes.
func (r *Registry) Add(t *Tree) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees[t.TaskID()] = t
	for _, id := range t.NodeIDs() {
		r.owner[id] = t.TaskID()
	}
}

// Get returns the tree for a task id.
func (r *Registry) Get(taskID string) (*Tree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trees[taskID]
	return t, ok
}

// ByNode resolves the tree owning the given node id.
func (r *Registry) ByNode(nodeID string) (*Tree, bool) {
	r.mu.RLock()
	taskID, ok := r.owner[nodeID]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	t, ok := r.trees[taskID]
	r.mu.RUnlock()
	return t, ok
}

// IndexNodes records freshly attached node ids for an already-registered
// tree.
func (r *Registry) IndexNodes(t *Tree, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.owner[id] = t.TaskID()
	}
}

// RemoveNodes drops node ids deleted by a reset cascade.
func (r *Registry) RemoveNodes(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.owner, id)
	}
}
