package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"insight/internal/calendar"
	"insight/internal/compose"
	"insight/internal/config"
	"insight/internal/derive"
	"insight/internal/notion"
	"insight/internal/orchestrator"
	"insight/internal/provider"
	"insight/internal/runlog"
	"insight/internal/signals"
	"insight/internal/upsert"
)

// Options 是单次运行的命令行选项
// Options holds per-invocation command line choices
type Options struct {
	DryRun bool
}

// BuildResult 汇总装配好的组件；调用方负责 defer result.Close()
// BuildResult carries the wired components; caller must defer result.Close()
type BuildResult struct {
	Orch     *orchestrator.Orchestrator
	Ledger   runlog.Store
	Location *time.Location
	Model    string
	Encoding string
	Degraded []string
}

func (r *BuildResult) Close() error {
	if r == nil || r.Ledger == nil {
		return nil
	}
	return r.Ledger.Close()
}

// Build 校验配置并按依赖顺序初始化各组件；配置错误在任何外部调用之前返回
// Build validates config and initializes components in dependency order; config errors return before any external call
func Build(cfg config.Config, logger logrus.FieldLogger, opts Options) (*BuildResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd, err := cfg.WorkingHours()
	if err != nil {
		return nil, err
	}

	result := &BuildResult{Location: loc, Model: cfg.Provider.Model}

	events, err := buildEventSource(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	if events == nil {
		logger.Warn("calendar credentials not configured; calendar signal will be degraded")
		result.Degraded = append(result.Degraded, signals.SourceCalendar)
	}

	ledger, err := OpenLedger(cfg.Storage)
	if err != nil {
		return nil, err
	}
	result.Ledger = ledger

	notionClient := notion.NewClient(cfg.Notion)
	gatherer := signals.NewGatherer(events, notionClient, sourcesFrom(cfg), loc,
		signals.WithTimeout(time.Duration(cfg.Notion.TimeoutMS)*time.Millisecond),
		signals.WithLogger(logger.WithField("component", "signals")),
	)

	generator := provider.NewOpenAIProvider(provider.ConfigFrom(cfg.Provider))
	tokenizer := compose.NewTokenizerForModel(cfg.Provider.Model)
	result.Encoding = tokenizer.EncodingName()
	composer := compose.New(generator,
		compose.WithTokenizer(tokenizer),
		compose.WithPartTimeout(time.Duration(cfg.Generation.PartTimeoutMS)*time.Millisecond),
		compose.WithJournalBudget(cfg.Generation.JournalTokenBudget),
		compose.WithLogger(logger.WithField("component", "compose")),
	)

	retrier := upsert.NewRetrier(PolicyFrom(cfg.Retry), logger.WithField("component", "retry"))
	engine := upsert.NewEngine(notionClient, retrier, logger.WithField("component", "upsert"))

	result.Orch = orchestrator.New(gatherer, composer, engine, orchestrator.Options{
		PageID: cfg.Notion.PageID,
		Block:  cfg.Block,
		Rule: derive.Rule{
			WorkKeywords:    cfg.Derive.WorkKeywords,
			WorkThreshold:   cfg.WorkThreshold(),
			SpecialKeywords: cfg.Derive.SpecialKeywords,
			DayStart:        dayStart,
			DayEnd:          dayEnd,
			MinSlot:         cfg.MinSlot(),
		},
		Location: loc,
		DryRun:   opts.DryRun,
		Ledger:   ledger,
		Logger:   logger,
	})
	return result, nil
}

// OpenLedger 打开运行记录库；run_log 关闭时返回空实现
// OpenLedger opens the run ledger; returns a no-op store when run_log is off
func OpenLedger(cfg config.StorageConfig) (runlog.Store, error) {
	if !cfg.RunLog {
		return runlog.Discard{}, nil
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	store, err := runlog.NewSQLiteStore(filepath.Join(cfg.BaseDir, "runs.db"))
	if err != nil {
		return nil, fmt.Errorf("init run log: %w", err)
	}
	return store, nil
}

// PolicyFrom converts retry settings, keeping defaults for unset delays.
func PolicyFrom(cfg config.RetryConfig) upsert.Policy {
	p := upsert.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelayMS > 0 {
		p.BaseDelay = time.Duration(cfg.BaseDelayMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}
	return p
}

// buildEventSource 返回接口类型，避免 nil *Client 被包装成非 nil 接口
// buildEventSource returns the interface type so a nil *Client never becomes a non-nil interface
func buildEventSource(cfg config.CalendarConfig) (signals.EventSource, error) {
	if strings.TrimSpace(cfg.CalendarID) == "" {
		return nil, nil
	}
	client, err := calendar.NewFromConfig(cfg)
	if errors.Is(err, calendar.ErrNoCredentials) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	return client, nil
}

func sourcesFrom(cfg config.Config) signals.Sources {
	return signals.Sources{
		CalendarID:            cfg.Calendar.CalendarID,
		JournalDatabaseID:     cfg.Notion.JournalDatabaseID,
		CaptureDatabaseID:     cfg.Notion.CaptureDatabaseID,
		CaptureStatusProperty: cfg.Notion.CaptureStatusProperty,
		CaptureStatusValue:    cfg.Notion.CaptureStatusValue,
		GoalsDatabaseID:       cfg.Notion.GoalsDatabaseID,
		GoalsStatusProperty:   cfg.Notion.GoalsStatusProperty,
		GoalsStatusValue:      cfg.Notion.GoalsStatusValue,
	}
}
