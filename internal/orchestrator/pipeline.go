package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"insight/internal/compose"
	"insight/internal/config"
	"insight/internal/derive"
	"insight/internal/notion"
	"insight/internal/runlog"
	"insight/internal/sanitize"
	"insight/internal/signals"
	"insight/internal/upsert"
)

// ErrWriteFailed 表示生成完成但写入页面失败，与生成阶段的兜底不同
// ErrWriteFailed means generation finished but writing the page failed, unlike a generation fallback
var ErrWriteFailed = errors.New("insight block write failed")

type Gatherer interface {
	Gather(ctx context.Context, ref time.Time) signals.Signals
}

type Composer interface {
	Compose(ctx context.Context, in compose.Input) []compose.Part
}

type Writer interface {
	Upsert(ctx context.Context, t upsert.Target) (upsert.Result, error)
	Find(ctx context.Context, pageID, marker, icon string) (notion.Block, bool, int, error)
}

type Options struct {
	PageID   string
	Block    config.BlockConfig
	Rule     derive.Rule
	Location *time.Location
	DryRun   bool
	Ledger   runlog.Store
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

// Orchestrator 串联一次运行：采集 → 推导 → 生成 → 清洗拼装 → 写入
// Orchestrator chains one run: gather → derive → compose → sanitize/assemble → write
type Orchestrator struct {
	gatherer Gatherer
	composer Composer
	writer   Writer
	opts     Options
	logger   logrus.FieldLogger
}

func New(g Gatherer, c Composer, w Writer, opts Options) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Ledger == nil {
		opts.Ledger = runlog.Discard{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Block.MaxChars <= 0 {
		opts.Block.MaxChars = config.DefaultBlockMaxChars
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{gatherer: g, composer: c, writer: w, opts: opts, logger: logger}
}

// Run 对参考日执行一次完整流水线。只有写入失败会返回错误（包装 ErrWriteFailed）
// Run executes the pipeline once for the reference day. Only a write failure returns an error (wrapping ErrWriteFailed)
func (o *Orchestrator) Run(ctx context.Context, ref time.Time) (Report, error) {
	ref = ref.In(o.opts.Location)
	report := Report{
		RunID:     runlog.NewRunID(),
		RunDate:   ref.Format("2006-01-02"),
		StartedAt: o.opts.Now(),
		DryRun:    o.opts.DryRun,
	}
	log := o.logger.WithFields(logrus.Fields{"run": report.RunID, "date": report.RunDate})
	log.Info("insight run started")

	sig := o.gatherer.Gather(ctx, ref)
	report.Degraded = sig.DegradedSources()

	dc := derive.Derive(sig, o.opts.Rule)
	report.Derived = dc
	log.WithFields(logrus.Fields{
		"workday": dc.IsWorkday,
		"special": dc.SpecialEvent != "",
		"slots":   len(dc.VacantSlots),
	}).Info("context derived")

	parts := o.composer.Compose(ctx, compose.Input{Signals: sig, Context: dc})
	parts = append([]compose.Part{compose.HeaderPart(o.opts.Block.Marker, ref)}, parts...)
	report.FallbackParts = compose.FallbackLabels(parts)

	body, outcomes := sanitize.Assemble(compose.Sections(parts), o.opts.Block.MaxChars)
	report.Body = body
	report.Parts = summarize(parts, outcomes)

	if o.opts.DryRun {
		o.preview(ctx, &report, log)
		return o.finish(ctx, report, log), nil
	}

	res, err := o.writer.Upsert(ctx, upsert.Target{
		PageID: o.opts.PageID,
		Marker: o.opts.Block.Marker,
		Icon:   o.opts.Block.Icon,
		Color:  o.opts.Block.Color,
		Body:   body,
	})
	report.Attempts = res.Attempts
	if err != nil {
		report.Outcome = OutcomeWriteFailed
		report.Err = err
		log.WithError(err).Error("insight block write failed")
		report = o.finish(ctx, report, log)
		return report, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	report.BlockID = res.BlockID
	report.Outcome = OutcomeUpdated
	if res.Action == upsert.ActionCreated {
		report.Outcome = OutcomeCreated
	}
	return o.finish(ctx, report, log), nil
}

// preview 只读地查找现有块，报告写入时会更新还是新建
// preview looks up the existing block read-only and reports whether a write would update or create
func (o *Orchestrator) preview(ctx context.Context, report *Report, log logrus.FieldLogger) {
	report.Outcome = OutcomeDryRun
	if o.writer == nil {
		return
	}
	existing, found, _, err := o.writer.Find(ctx, o.opts.PageID, o.opts.Block.Marker, o.opts.Block.Icon)
	if err != nil {
		log.WithError(err).Warn("dry run could not look up the existing block")
		return
	}
	if found {
		report.BlockID = existing.ID
		report.WouldUpdate = true
	}
}

func (o *Orchestrator) finish(ctx context.Context, report Report, log logrus.FieldLogger) Report {
	report.FinishedAt = o.opts.Now()
	if err := o.opts.Ledger.Append(ctx, report.Record()); err != nil {
		log.WithError(err).Warn("run log append failed")
	}
	log.WithFields(logrus.Fields{
		"outcome":   report.Outcome,
		"fallbacks": len(report.FallbackParts),
		"degraded":  len(report.Degraded),
		"chars":     len([]rune(report.Body)),
	}).Info("insight run finished")
	return report
}

func summarize(parts []compose.Part, outcomes []sanitize.Outcome) []PartSummary {
	out := make([]PartSummary, 0, len(parts))
	for i, p := range parts {
		s := PartSummary{
			Label:     p.Label,
			Words:     compose.WordCount(p.Text),
			Fallback:  p.Fallback,
			Generated: p.Generated,
		}
		if i < len(outcomes) {
			s.Kept = outcomes[i].Kept
			s.Truncated = outcomes[i].Truncated
		}
		out = append(out, s)
	}
	return out
}
