package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/pipeline"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	state         TEXT    NOT NULL,
	last_state    TEXT    NOT NULL,
	reason        TEXT    NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	degraded      INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Run 一条运行记录
type Run struct {
	ID           int64
	State        pipeline.State
	LastState    pipeline.State
	Reason       string
	MessageCount int
	Degraded     bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Journal 将每次运行的结果写入本地 sqlite，只写不读回流程
type Journal struct {
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=rwc&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record 写入一次运行结果
func (j *Journal) Record(ctx context.Context, result *pipeline.Result) error {
	if result == nil {
		return errors.New("result is nil")
	}
	// 运行被取消时仍然落盘
	ctx = context.WithoutCancel(ctx)

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (state, last_state, reason, message_count, degraded, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(result.State),
		string(result.LastState),
		result.Reason,
		result.MessageCount,
		result.Degraded,
		result.StartedAt.UTC(),
		result.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent 按开始时间倒序返回最近 limit 条记录
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, state, last_state, reason, message_count, degraded, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                Run
			state, lastState string
		)
		if err := rows.Scan(&r.ID, &state, &lastState, &r.Reason, &r.MessageCount, &r.Degraded, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.State = pipeline.State(state)
		r.LastState = pipeline.State(lastState)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
