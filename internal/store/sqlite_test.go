package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "splitd.db")
	s, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	want := sampleSnapshot("task-1")
	require.NoError(t, s.Save(context.Background(), want))

	got, err := s.Load(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, want.TaskID, got.TaskID)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, want.Nodes[0].Description, got.Nodes[0].Description)
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	s := newTestSQLiteStore(t)

	snap := sampleSnapshot("task-1")
	require.NoError(t, s.Save(context.Background(), snap))

	snap.Nodes[0].State = models.StateExpanded
	require.NoError(t, s.Save(context.Background(), snap))

	got, err := s.Load(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateExpanded, got.Nodes[0].State)
}

func TestSQLiteStore_LoadMissingIsNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeNotFound))
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestSQLiteStore(t)

	require.NoError(t, s.Save(context.Background(), sampleSnapshot("task-1")))
	require.NoError(t, s.Delete(context.Background(), "task-1"))

	_, err := s.Load(context.Background(), "task-1")
	assert.True(t, models.IsCode(err, models.ErrCodeNotFound))
}
