// Package runlog 记录每次运行的结果，仅供审计与 history 命令查看；流水线从不读取它
// Package runlog records the outcome of every run for auditing and the history command; the pipeline never reads it back.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record 是一次运行的审计记录
// Record is the audit entry of one run
type Record struct {
	ID              string
	RunDate         string
	StartedAt       time.Time
	FinishedAt      time.Time
	Outcome         string
	Action          string
	BlockID         string
	Attempts        int
	FallbackParts   []string
	DegradedSignals []string
	Body            string
	Error           string
}

// Duration is how long the run took.
func (r Record) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// NewRunID 生成新的运行 ID / Generates a new run ID
func NewRunID() string {
	return uuid.NewString()
}

// Discard 丢弃全部记录（run_log 关闭时使用）
// Discard drops every record (used when the run log is disabled)
type Discard struct{}

func (Discard) Append(context.Context, Record) error { return nil }
func (Discard) Recent(context.Context, int) ([]Record, error) { return nil, nil }
func (Discard) Close() error { return nil }
