package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/classify"
	"github.com/focusflow/splitd/internal/engine"
	"github.com/focusflow/splitd/internal/metrics"
	"github.com/focusflow/splitd/internal/models"
	"github.com/focusflow/splitd/internal/store"
	"github.com/focusflow/splitd/internal/streaming"
	"github.com/focusflow/splitd/internal/tree"
)

// Coordinator is the concurrency gatekeeper for expansions: at most one job
// in flight per node, no queuing, no automatic retries. The tree's
// stub->expanding check-and-set decides races, so of two simultaneous
// requests for the same node exactly one proceeds and the loser fails
// synchronously with AlreadyInProgress. The tree lock is never held across
// the reasoning call.
type Coordinator struct {
	registry *tree.Registry
	engine   *engine.Engine
	repo     store.Repository
	events   *streaming.Manager
	logger   *zap.Logger

	// jobTimeout bounds one expansion end to end, reasoning call included.
	jobTimeout time.Duration
	// jobRetention keeps terminal jobs queryable for polling callers before
	// they are evicted from the map.
	jobRetention time.Duration

	mu   sync.Mutex
	jobs map[string]*Job
}

// New wires a coordinator. A zero jobTimeout defaults to 60s.
func New(registry *tree.Registry, eng *engine.Engine, repo store.Repository, events *streaming.Manager, jobTimeout time.Duration, logger *zap.Logger) *Coordinator {
	if jobTimeout <= 0 {
		jobTimeout = 60 * time.Second
	}
	return &Coordinator{
		registry:     registry,
		engine:       eng,
		repo:         repo,
		events:       events,
		logger:       logger,
		jobTimeout:   jobTimeout,
		jobRetention: 10 * time.Minute,
		jobs:         make(map[string]*Job),
	}
}

// CreateTask is the capture-flow boundary: it creates a tree holding a
// single root stub node and persists it. durationMinutes is the author's
// optional estimate (0 means absent).
func (c *Coordinator) CreateTask(ctx context.Context, description string, durationMinutes int) (*models.TreeSnapshot, error) {
	t, err := tree.New(description, durationMinutes)
	if err != nil {
		return nil, err
	}
	snap := t.Snapshot()
	if err := c.repo.Save(ctx, snap); err != nil {
		return nil, err
	}
	c.registry.Add(t)
	metrics.TreesCreated.Inc()
	c.logger.Info("Task tree created",
		zap.String("task_id", t.TaskID()),
		zap.Int("duration_hint_minutes", durationMinutes),
	)
	return snap, nil
}

// GetTree returns the current snapshot for a task, loading it from the
// repository if it is not already live in memory.
func (c *Coordinator) GetTree(ctx context.Context, taskID string) (*models.TreeSnapshot, error) {
	t, err := c.liveTree(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return t.Snapshot(), nil
}

// RequestExpansion starts one asynchronous expansion for a stub node.
// Rejections (NotFound, NotExpandable, AlreadyInProgress) are synchronous
// and change no state; every asynchronous failure reverts the node to stub
// with no children retained.
func (c *Coordinator) RequestExpansion(nodeID string) (*Job, error) {
	t, ok := c.registry.ByNode(nodeID)
	if !ok {
		return nil, models.NewError(models.ErrCodeNotFound, "node %s not found in any loaded tree", nodeID)
	}

	// Atomic Idle -> Running; the loser of a race gets AlreadyInProgress.
	if err := t.BeginExpansion(nodeID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.jobTimeout)
	job := newJob(uuid.New().String(), nodeID, t.TaskID(), cancel)

	c.mu.Lock()
	c.jobs[job.ID] = job
	c.mu.Unlock()

	metrics.ExpansionsStarted.Inc()
	metrics.ActiveExpansions.Inc()
	go c.run(ctx, job, t)
	return job, nil
}

// Job resolves a job handle by id.
func (c *Coordinator) Job(jobID string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	return j, ok
}

// ResetNode cascades a subtree delete and returns the node to stub, then
// persists. This is the only path that re-opens an expanded node for
// decomposition.
func (c *Coordinator) ResetNode(ctx context.Context, nodeID string) (*models.TreeSnapshot, error) {
	t, ok := c.registry.ByNode(nodeID)
	if !ok {
		return nil, models.NewError(models.ErrCodeNotFound, "node %s not found in any loaded tree", nodeID)
	}
	removed, err := t.ResetNode(nodeID)
	if err != nil {
		return nil, err
	}
	c.registry.RemoveNodes(removed)
	snap := t.Snapshot()
	if err := c.repo.Save(ctx, snap); err != nil {
		return nil, err
	}
	metrics.NodesReset.Inc()
	c.logger.Info("Node reset to stub",
		zap.String("node_id", nodeID),
		zap.Int("descendants_removed", len(removed)),
	)
	return snap, nil
}

// run executes one expansion job. Phase events are observational only and
// never gate correctness.
func (c *Coordinator) run(ctx context.Context, job *Job, t *tree.Tree) {
	start := time.Now()
	defer func() {
		job.cancel()
		metrics.ActiveExpansions.Dec()
		metrics.ExpansionDuration.Observe(time.Since(start).Seconds())
		// terminal jobs stay queryable for a polling window, then drop so
		// the map does not grow one entry per expansion forever
		time.AfterFunc(c.jobRetention, func() {
			c.mu.Lock()
			delete(c.jobs, job.ID)
			c.mu.Unlock()
		})
	}()

	node, err := t.Node(job.NodeID)
	if err != nil {
		c.fail(ctx, job, t, err)
		return
	}

	// Scope is decided once per tree, on the first pass over the root.
	c.publish(job, streaming.PhaseAnalyzing, "")
	scope := t.Scope()
	countHint := 0
	if scope == "" {
		root, err := t.Node(t.RootID())
		if err != nil {
			c.fail(ctx, job, t, err)
			return
		}
		res, err := classify.ClassifyScope(root.Description, root.EstimatedMinutes)
		if err != nil {
			c.fail(ctx, job, t, err)
			return
		}
		scope = res.Scope
		countHint = res.SuggestedStepCount
	}

	ancestors, err := t.Path(job.NodeID)
	if err != nil {
		c.fail(ctx, job, t, err)
		return
	}

	// The slow external call runs without any tree lock held.
	c.publish(job, streaming.PhaseDecomposing, "")
	result, err := c.engine.Expand(ctx, node, ancestors, scope, countHint)
	if err != nil {
		c.fail(ctx, job, t, err)
		return
	}
	c.publish(job, streaming.PhaseClassifying, "")

	childIDs, err := t.AttachChildren(job.NodeID, result.Drafts)
	if err != nil {
		// the tree changed incompatibly between job start and merge;
		// children are discarded, never left dangling
		c.fail(ctx, job, t, models.WrapError(models.ErrCodeMergeConflict, err, "merge rejected for node %s", job.NodeID))
		return
	}
	c.registry.IndexNodes(t, childIDs)
	// scope is recorded only once the pass actually lands, so a failed
	// first expansion leaves the tree exactly as it was
	scopeRecorded := false
	if t.Scope() == "" {
		t.SetScope(scope)
		scopeRecorded = true
	}

	c.publish(job, streaming.PhaseSaving, "")
	if err := c.repo.Save(ctx, t.Snapshot()); err != nil {
		// undo the merge so the caller never sees a half-persisted node
		if removed, resetErr := t.ResetNode(job.NodeID); resetErr == nil {
			c.registry.RemoveNodes(removed)
		} else {
			c.logger.Error("Rollback after failed save also failed",
				zap.String("node_id", job.NodeID),
				zap.Error(resetErr),
			)
		}
		if scopeRecorded {
			t.SetScope("")
		}
		c.finishFailed(job, err)
		return
	}

	updated, err := t.Node(job.NodeID)
	if err != nil {
		c.finishFailed(job, err)
		return
	}
	children := make([]*models.TaskNode, 0, len(childIDs))
	for _, id := range childIDs {
		if child, err := t.Node(id); err == nil {
			children = append(children, child)
		}
	}

	metrics.ExpansionsCompleted.WithLabelValues("success").Inc()
	metrics.NodesAttached.Observe(float64(len(children)))
	c.publish(job, streaming.PhaseCompleted, "")
	c.logger.Info("Expansion completed",
		zap.String("job_id", job.ID),
		zap.String("node_id", job.NodeID),
		zap.String("scope", string(scope)),
		zap.Int("children", len(children)),
	)
	job.finish(&Result{Node: updated, Children: children}, nil)
}

// fail reverts the node to stub, persists the revert best-effort and
// resolves the job with the typed error. The tree ends byte-for-byte
// identical to its pre-call state.
func (c *Coordinator) fail(ctx context.Context, job *Job, t *tree.Tree, cause error) {
	if err := t.RevertExpansion(job.NodeID); err == nil {
		// persist the revert so a crash cannot resurrect the expanding
		// state; detached context because the job ctx may be done
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if saveErr := c.repo.Save(saveCtx, t.Snapshot()); saveErr != nil {
			c.logger.Warn("Failed to persist revert",
				zap.String("node_id", job.NodeID),
				zap.Error(saveErr),
			)
		}
	}
	c.finishFailed(job, cause)
}

func (c *Coordinator) finishFailed(job *Job, cause error) {
	metrics.ExpansionsCompleted.WithLabelValues("failure").Inc()
	c.publish(job, streaming.PhaseFailed, cause.Error())
	c.logger.Warn("Expansion failed",
		zap.String("job_id", job.ID),
		zap.String("node_id", job.NodeID),
		zap.String("code", string(models.CodeOf(cause))),
		zap.Error(cause),
	)
	job.finish(nil, cause)
}

func (c *Coordinator) publish(job *Job, phase, message string) {
	c.events.Publish(job.NodeID, streaming.Event{
		NodeID:    job.NodeID,
		JobID:     job.ID,
		Phase:     phase,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// liveTree returns the in-memory tree for a task, loading and registering it
// from the repository on first touch.
func (c *Coordinator) liveTree(ctx context.Context, taskID string) (*tree.Tree, error) {
	if t, ok := c.registry.Get(taskID); ok {
		return t, nil
	}
	snap, err := c.repo.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t, err := tree.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	c.registry.Add(t)
	return t, nil
}
