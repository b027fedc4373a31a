package store

import (
	"context"

	"github.com/focusflow/splitd/internal/models"
)

// Repository persists tree snapshots by task id. The coordinator calls Save
// after every successful attach, state change and reset so a crash
// mid-expansion never leaves a node stuck in expanding on reload.
type Repository interface {
	Save(ctx context.Context, snap *models.TreeSnapshot) error
	Load(ctx context.Context, taskID string) (*models.TreeSnapshot, error)
	Delete(ctx context.Context, taskID string) error
}
