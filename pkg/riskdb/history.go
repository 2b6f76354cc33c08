// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package riskdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
)

// OpenSQLite opens a SQLite database. ":memory:" is supported; the pool is
// limited to one connection so every query sees the same database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// History persists overall score snapshots per project in SQLite.
type History struct {
	db *sql.DB
}

// NewHistory creates a SQLite-backed score history and ensures the schema.
func NewHistory(db *sql.DB) (*History, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureHistorySchema(db); err != nil {
		return nil, err
	}
	return &History{db: db}, nil
}

// Record stores one score snapshot.
func (h *History) Record(ctx context.Context, projectID string, score int, level string, at time.Time) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO risk_score_history (project_id, score, level, recorded_at)
		VALUES (?, ?, ?, ?)
	`, projectID, score, level, at.UTC().UnixMilli())
	if err != nil {
		return errors.New(errors.CodeStorage, "record score", err).WithContext("project_id", projectID)
	}
	return nil
}

// Points returns the snapshots of a project recorded at or after since,
// oldest first.
func (h *History) Points(ctx context.Context, projectID string, since time.Time) ([]risk.TrendPoint, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT score, recorded_at
		FROM risk_score_history
		WHERE project_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC, id ASC
	`, projectID, since.UTC().UnixMilli())
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query score history", err)
	}
	defer rows.Close()

	var out []risk.TrendPoint
	for rows.Next() {
		var (
			score int
			ms    int64
		)
		if err := rows.Scan(&score, &ms); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan score history", err)
		}
		out = append(out, risk.TrendPoint{Date: time.UnixMilli(ms).UTC(), Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "read score history", err)
	}
	return out, nil
}

// Prune removes snapshots older than before and returns how many were removed.
func (h *History) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM risk_score_history WHERE recorded_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, errors.New(errors.CodeStorage, "prune score history", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Ping checks the database connection.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func ensureHistorySchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS risk_score_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			level TEXT,
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_risk_score_history_project ON risk_score_history(project_id, recorded_at);
	`)
	return err
}
