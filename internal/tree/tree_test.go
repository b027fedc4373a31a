package tree

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusflow/splitd/internal/models"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := New("Plan mom's 60th birthday party", 0)
	require.NoError(t, err)
	return tr
}

func drafts(n int) []models.Draft {
	out := make([]models.Draft, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Draft{
			Description:      "step",
			State:            models.StateAtomic,
			LeafType:         models.LeafHuman,
			DelegationMode:   models.DelegationDo,
			EstimatedMinutes: 3,
		})
	}
	return out
}

func expand(t *testing.T, tr *Tree, nodeID string, ds []models.Draft) []string {
	t.Helper()
	require.NoError(t, tr.BeginExpansion(nodeID))
	ids, err := tr.AttachChildren(nodeID, ds)
	require.NoError(t, err)
	return ids
}

func TestNew_RejectsBlankDescription(t *testing.T) {
	for _, desc := range []string{"", "   "} {
		_, err := New(desc, 0)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))
	}
}

func TestBeginExpansion_Transitions(t *testing.T) {
	tr := newTestTree(t)
	root := tr.RootID()

	require.NoError(t, tr.BeginExpansion(root))
	node, err := tr.Node(root)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpanding, node.State)

	// second caller loses the race
	err = tr.BeginExpansion(root)
	assert.True(t, models.IsCode(err, models.ErrCodeAlreadyInProgress))

	// rollback restores stub
	require.NoError(t, tr.RevertExpansion(root))
	node, err = tr.Node(root)
	require.NoError(t, err)
	assert.Equal(t, models.StateStub, node.State)
}

func TestBeginExpansion_RaceHasOneWinner(t *testing.T) {
	tr := newTestTree(t)
	root := tr.RootID()

	const callers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)
	losses := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.BeginExpansion(root); err == nil {
				wins <- struct{}{}
			} else {
				losses <- err
			}
		}()
	}
	wg.Wait()
	close(wins)
	close(losses)

	assert.Len(t, wins, 1)
	assert.Len(t, losses, callers-1)
	for err := range losses {
		assert.True(t, models.IsCode(err, models.ErrCodeAlreadyInProgress))
	}
}

func TestBeginExpansion_NotExpandable(t *testing.T) {
	tr := newTestTree(t)
	ids := expand(t, tr, tr.RootID(), drafts(2))

	// expanded parent
	err := tr.BeginExpansion(tr.RootID())
	assert.True(t, models.IsCode(err, models.ErrCodeNotExpandable))

	// atomic child
	err = tr.BeginExpansion(ids[0])
	assert.True(t, models.IsCode(err, models.ErrCodeNotExpandable))
}

func TestAttachChildren_RequiresExpanding(t *testing.T) {
	tr := newTestTree(t)

	_, err := tr.AttachChildren(tr.RootID(), drafts(2))
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidTransition))

	// nothing mutated
	node, err := tr.Node(tr.RootID())
	require.NoError(t, err)
	assert.Equal(t, models.StateStub, node.State)
	assert.Empty(t, node.Children)
}

func TestAttachChildren_SetsLevelsOrderAndState(t *testing.T) {
	tr := newTestTree(t)
	ds := []models.Draft{
		{Description: "first", State: models.StateAtomic, EstimatedMinutes: 3},
		{Description: "second", State: models.StateStub, EstimatedMinutes: 15},
		{Description: "third", State: models.StateAtomic, EstimatedMinutes: 4},
	}
	ids := expand(t, tr, tr.RootID(), ds)
	require.Len(t, ids, 3)

	root, err := tr.Node(tr.RootID())
	require.NoError(t, err)
	assert.Equal(t, models.StateExpanded, root.State)
	assert.Equal(t, ids, root.Children)

	for i, id := range ids {
		child, err := tr.Node(id)
		require.NoError(t, err)
		assert.Equal(t, ds[i].Description, child.Description)
		assert.Equal(t, root.Level+1, child.Level)
		assert.Equal(t, tr.RootID(), child.ParentID)
	}
}

func TestAttachChildren_RollsUpEstimates(t *testing.T) {
	tr := newTestTree(t)
	ids := expand(t, tr, tr.RootID(), []models.Draft{
		{Description: "a", State: models.StateStub, EstimatedMinutes: 15},
		{Description: "b", State: models.StateAtomic, EstimatedMinutes: 4},
	})

	// expand the stub child; parent and root estimates follow the leaves
	expand(t, tr, ids[0], []models.Draft{
		{Description: "a1", State: models.StateAtomic, EstimatedMinutes: 2},
		{Description: "a2", State: models.StateAtomic, EstimatedMinutes: 5},
	})

	mid, err := tr.Node(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 7, mid.EstimatedMinutes)

	root, err := tr.Node(tr.RootID())
	require.NoError(t, err)
	assert.Equal(t, 11, root.EstimatedMinutes)
}

func TestInvariants_LeafOrInterior(t *testing.T) {
	tr := newTestTree(t)
	ids := expand(t, tr, tr.RootID(), []models.Draft{
		{Description: "a", State: models.StateStub, EstimatedMinutes: 15},
		{Description: "b", State: models.StateAtomic, EstimatedMinutes: 3},
	})
	expand(t, tr, ids[0], drafts(3))

	snap := tr.Snapshot()
	byID := make(map[string]*models.TaskNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byID[n.ID] = n
	}
	for _, n := range snap.Nodes {
		switch n.State {
		case models.StateExpanded:
			assert.NotEmpty(t, n.Children, "expanded node %s must have children", n.ID)
		default:
			assert.Empty(t, n.Children, "%s node %s must have no children", n.State, n.ID)
		}
		// level arithmetic and acyclicity via parent walk
		seen := map[string]bool{n.ID: true}
		for cur := n; cur.ParentID != ""; {
			parent, ok := byID[cur.ParentID]
			require.True(t, ok)
			require.Equal(t, parent.Level+1, cur.Level)
			require.False(t, seen[parent.ID], "cycle through %s", parent.ID)
			seen[parent.ID] = true
			cur = parent
		}
	}
}

func TestResetNode_CascadesDelete(t *testing.T) {
	tr := newTestTree(t)
	ids := expand(t, tr, tr.RootID(), []models.Draft{
		{Description: "a", State: models.StateStub, EstimatedMinutes: 15},
		{Description: "b", State: models.StateAtomic, EstimatedMinutes: 3},
	})
	grandIDs := expand(t, tr, ids[0], drafts(2))

	removed, err := tr.ResetNode(tr.RootID())
	require.NoError(t, err)
	assert.Len(t, removed, 4)

	root, err := tr.Node(tr.RootID())
	require.NoError(t, err)
	assert.Equal(t, models.StateStub, root.State)
	assert.Empty(t, root.Children)

	for _, id := range append(append([]string{}, ids...), grandIDs...) {
		_, err := tr.Node(id)
		assert.True(t, models.IsCode(err, models.ErrCodeNotFound))
	}
}

func TestResetNode_OnlyExpandedNodes(t *testing.T) {
	tr := newTestTree(t)

	_, err := tr.ResetNode(tr.RootID())
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidTransition))

	require.NoError(t, tr.BeginExpansion(tr.RootID()))
	_, err = tr.ResetNode(tr.RootID())
	assert.True(t, models.IsCode(err, models.ErrCodeAlreadyInProgress))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	tr := newTestTree(t)
	tr.SetScope(models.ScopeMulti)
	ids := expand(t, tr, tr.RootID(), []models.Draft{
		{Description: "a", State: models.StateStub, EstimatedMinutes: 15},
		{Description: "b", State: models.StateAtomic, LeafType: models.LeafDigital, DelegationMode: models.DelegationDelegate, EstimatedMinutes: 3},
		{Description: "c", State: models.StateStub, EstimatedMinutes: 20},
	})
	expand(t, tr, ids[0], drafts(2))

	snap := tr.Snapshot()
	rebuilt, err := FromSnapshot(snap)
	require.NoError(t, err)

	// identical trees: same ids, states, order
	want, err := json.Marshal(snap)
	require.NoError(t, err)
	got, err := json.Marshal(rebuilt.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestFromSnapshot_ExpandingBecomesStub(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.BeginExpansion(tr.RootID()))

	rebuilt, err := FromSnapshot(tr.Snapshot())
	require.NoError(t, err)
	root, err := rebuilt.Node(rebuilt.RootID())
	require.NoError(t, err)
	assert.Equal(t, models.StateStub, root.State)
}

func TestFromSnapshot_RejectsCorruptInput(t *testing.T) {
	_, err := FromSnapshot(nil)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))

	tr := newTestTree(t)
	snap := tr.Snapshot()
	snap.RootID = "missing"
	_, err = FromSnapshot(snap)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))
}

func TestFromSnapshot_RejectsLeafInteriorViolations(t *testing.T) {
	build := func() *models.TreeSnapshot {
		tr := newTestTree(t)
		expand(t, tr, tr.RootID(), drafts(2))
		return tr.Snapshot()
	}

	// a stub claiming children
	snap := build()
	snap.Nodes[0].State = models.StateStub
	_, err := FromSnapshot(snap)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))

	// an atomic node claiming children
	snap = build()
	snap.Nodes[0].State = models.StateAtomic
	_, err = FromSnapshot(snap)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))

	// an expanded node without children
	snap = build()
	snap.Nodes = append(snap.Nodes, &models.TaskNode{
		ID:       "childless",
		ParentID: snap.RootID,
		Level:    1,
		State:    models.StateExpanded,
	})
	snap.Nodes[0].Children = append(snap.Nodes[0].Children, "childless")
	_, err = FromSnapshot(snap)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))

	// a child list entry that does not exist
	snap = build()
	snap.Nodes[0].Children = append(snap.Nodes[0].Children, "ghost")
	_, err = FromSnapshot(snap)
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))
}

func TestPath_ReturnsAncestorChainRootFirst(t *testing.T) {
	tr := newTestTree(t)
	ids := expand(t, tr, tr.RootID(), []models.Draft{
		{Description: "book the venue", State: models.StateStub, EstimatedMinutes: 20},
	})
	grandIDs := expand(t, tr, ids[0], []models.Draft{
		{Description: "shortlist three venues", State: models.StateAtomic, EstimatedMinutes: 4},
	})

	chain, err := tr.Path(grandIDs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"Plan mom's 60th birthday party", "book the venue"}, chain)
}
