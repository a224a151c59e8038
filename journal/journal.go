// Package journal persists every write run and its scored iterations.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"newsroom_writer/generator"
)

// ErrRunNotFound is returned by Get for an unknown id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	source_ref    TEXT,
	success       INTEGER NOT NULL,
	score         REAL NOT NULL,
	iterations    INTEGER NOT NULL,
	final_article TEXT NOT NULL,
	message       TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS iterations (
	run_id     TEXT NOT NULL,
	iteration  INTEGER NOT NULL,
	article    TEXT NOT NULL,
	score      REAL NOT NULL,
	feedback   TEXT NOT NULL,
	passes     INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (run_id, iteration),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// 定宽时间格式，保证按文本排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is a stored write run.
type Run struct {
	ID        string                `json:"id"`
	SourceRef string                `json:"source_ref,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	Result    generator.WriteResult `json:"result"`
}

// Journal is a SQLite-backed run store.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and migrates it.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite 单写者；":memory:" 也必须共用同一连接
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores res and its history in one transaction and returns the new
// run id.
func (j *Journal) Record(ctx context.Context, sourceRef string, res generator.WriteResult) (string, error) {
	id := uuid.New().String()
	now := j.now()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, source_ref, success, score, iterations, final_article, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullIfEmpty(sourceRef), res.Success, res.Score, res.Iterations,
		res.FinalArticle, nullIfEmpty(res.Message), now.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for _, rec := range res.History {
		created := rec.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO iterations (run_id, iteration, article, score, feedback, passes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, rec.Iteration, rec.Article, rec.Score, rec.Feedback, rec.Passes,
			created.UTC().Format(timeLayout),
		)
		if err != nil {
			return "", fmt.Errorf("insert iteration %d: %w", rec.Iteration, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Get loads one run with its full history.
func (j *Journal) Get(ctx context.Context, id string) (Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT run_id, source_ref, success, score, iterations, final_article, message, created_at
		 FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT iteration, article, score, feedback, passes, created_at
		 FROM iterations WHERE run_id = ? ORDER BY iteration`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec generator.IterationRecord
		var created string
		if err := rows.Scan(&rec.Iteration, &rec.Article, &rec.Score, &rec.Feedback, &rec.Passes, &created); err != nil {
			return Run{}, fmt.Errorf("scan iteration: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return Run{}, fmt.Errorf("parse iteration time: %w", err)
		}
		run.Result.History = append(run.Result.History, rec)
	}
	return run, rows.Err()
}

// Recent lists the newest runs first, without their history.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, source_ref, success, score, iterations, final_article, message, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run       Run
		sourceRef sql.NullString
		message   sql.NullString
		created   string
	)
	err := s.Scan(&run.ID, &sourceRef, &run.Result.Success, &run.Result.Score,
		&run.Result.Iterations, &run.Result.FinalArticle, &message, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.SourceRef = sourceRef.String
	run.Result.Message = message.String
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Run{}, fmt.Errorf("parse run time: %w", err)
	}
	return run, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
