package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/metrics"
	"github.com/focusflow/splitd/internal/models"
)

// PostgresConfig holds connection settings for the Postgres backend.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS task_trees (
    task_id    TEXT PRIMARY KEY,
    snapshot   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps one snapshot row per task, upserted on every save.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool and ensures the schema exists.
func NewPostgresStore(cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreWithDB wraps an existing connection, used by tests.
func NewPostgresStoreWithDB(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Save(ctx context.Context, snap *models.TreeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_trees (task_id, snapshot, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (task_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`,
		snap.TaskID, data,
	)
	s.record("save", err)
	if err != nil {
		return models.WrapError(models.ErrCodeServiceUnavailable, err, "save snapshot %s", snap.TaskID)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, taskID string) (*models.TreeSnapshot, error) {
	var data []byte
	err := s.db.QueryRowxContext(ctx, `SELECT snapshot FROM task_trees WHERE task_id = $1`, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		s.record("load", nil)
		return nil, models.NewError(models.ErrCodeNotFound, "task %s not found", taskID)
	}
	s.record("load", err)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeServiceUnavailable, err, "load snapshot %s", taskID)
	}
	var snap models.TreeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", taskID, err)
	}
	return &snap, nil
}

func (s *PostgresStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_trees WHERE task_id = $1`, taskID)
	s.record("delete", err)
	if err != nil {
		return models.WrapError(models.ErrCodeServiceUnavailable, err, "delete snapshot %s", taskID)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) record(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues("postgres", op, status).Inc()
}
