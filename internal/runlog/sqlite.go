package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的运行记录
// SQLiteStore keeps run records in SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id               TEXT PRIMARY KEY,
		run_date         TEXT NOT NULL,
		started_at       TEXT NOT NULL,
		finished_at      TEXT NOT NULL,
		outcome          TEXT NOT NULL,
		action           TEXT NOT NULL DEFAULT '',
		block_id         TEXT NOT NULL DEFAULT '',
		attempts         INTEGER NOT NULL DEFAULT 0,
		fallback_parts   TEXT NOT NULL DEFAULT '[]',
		degraded_signals TEXT NOT NULL DEFAULT '[]',
		body             TEXT NOT NULL DEFAULT '',
		error            TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = NewRunID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = rec.StartedAt
	}
	fallbacks, err := marshalList(rec.FallbackParts)
	if err != nil {
		return err
	}
	degraded, err := marshalList(rec.DegradedSignals)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, run_date, started_at, finished_at, outcome, action, block_id, attempts, fallback_parts, degraded_signals, body, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunDate, formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
		rec.Outcome, rec.Action, rec.BlockID, rec.Attempts, fallbacks, degraded, rec.Body, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent 返回最近的记录，新的在前
// Recent returns the latest records, newest first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, started_at, finished_at, outcome, action, block_id, attempts, fallback_parts, degraded_signals, body, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                 Record
			started, finished   string
			fallbacks, degraded string
		)
		if err := rows.Scan(&rec.ID, &rec.RunDate, &started, &finished, &rec.Outcome, &rec.Action,
			&rec.BlockID, &rec.Attempts, &fallbacks, &degraded, &rec.Body, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = parseTime(started)
		rec.FinishedAt = parseTime(finished)
		if err := json.Unmarshal([]byte(fallbacks), &rec.FallbackParts); err != nil {
			return nil, fmt.Errorf("decode fallback_parts of run %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(degraded), &rec.DegradedSignals); err != nil {
			return nil, fmt.Errorf("decode degraded_signals of run %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(data), nil
}

// timeLayout 定宽，保证按文本排序即按时间排序
// timeLayout is fixed width so text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
