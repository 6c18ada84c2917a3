package orchestrator

import (
	"time"

	"insight/internal/derive"
	"insight/internal/runlog"
)

type Outcome string

const (
	OutcomeUpdated     Outcome = "updated"
	OutcomeCreated     Outcome = "created"
	OutcomeDryRun      Outcome = "dry_run"
	OutcomeWriteFailed Outcome = "write_failed"
)

// PartSummary 记录单个部分的生成与拼装情况
// PartSummary records how one part was generated and assembled
type PartSummary struct {
	Label     string
	Words     int
	Generated bool
	Fallback  bool
	Kept      bool
	Truncated bool
}

// Report 是一次运行的结果。Outcome 只反映写入；生成兜底与信号降级分别记录
// Report is the result of one run. Outcome reflects the write only; generation fallbacks and degraded signals are recorded separately
type Report struct {
	RunID         string
	RunDate       string
	StartedAt     time.Time
	FinishedAt    time.Time
	DryRun        bool
	Outcome       Outcome
	BlockID       string
	WouldUpdate   bool
	Attempts      int
	Body          string
	Parts         []PartSummary
	FallbackParts []string
	Degraded      []string
	Derived       derive.Context
	Err           error
}

// Succeeded reports whether the run wrote (or would write) the block.
func (r Report) Succeeded() bool {
	return r.Outcome != OutcomeWriteFailed
}

func (r Report) Record() runlog.Record {
	rec := runlog.Record{
		ID:              r.RunID,
		RunDate:         r.RunDate,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Outcome:         string(r.Outcome),
		BlockID:         r.BlockID,
		Attempts:        r.Attempts,
		FallbackParts:   r.FallbackParts,
		DegradedSignals: r.Degraded,
		Body:            r.Body,
	}
	switch r.Outcome {
	case OutcomeUpdated, OutcomeCreated:
		rec.Action = string(r.Outcome)
	case OutcomeDryRun:
		rec.Action = "none"
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
