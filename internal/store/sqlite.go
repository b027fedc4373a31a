package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/metrics"
	"github.com/focusflow/splitd/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS task_trees (
    task_id    TEXT PRIMARY KEY,
    snapshot   TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// SQLiteStore is the local single-node backend, used for development and
// small deployments.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database file and ensures the schema.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection avoids lock contention
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *models.TreeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_trees (task_id, snapshot, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT (task_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = datetime('now')`,
		snap.TaskID, string(data),
	)
	s.record("save", err)
	if err != nil {
		return models.WrapError(models.ErrCodeServiceUnavailable, err, "save snapshot %s", snap.TaskID)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, taskID string) (*models.TreeSnapshot, error) {
	var data string
	err := s.db.QueryRowxContext(ctx, `SELECT snapshot FROM task_trees WHERE task_id = ?`, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		s.record("load", nil)
		return nil, models.NewError(models.ErrCodeNotFound, "task %s not found", taskID)
	}
	s.record("load", err)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeServiceUnavailable, err, "load snapshot %s", taskID)
	}
	var snap models.TreeSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", taskID, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_trees WHERE task_id = ?`, taskID)
	s.record("delete", err)
	if err != nil {
		return models.WrapError(models.ErrCodeServiceUnavailable, err, "delete snapshot %s", taskID)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) record(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues("sqlite", op, status).Inc()
}
