package signals

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"insight/internal/calendar"
	"insight/internal/notion"
)

const (
	journalLimit   = 3
	checklistLimit = 5
	goalsLimit     = 3
)

type EventSource interface {
	ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Event, error)
}

type RecordStore interface {
	QueryDatabase(ctx context.Context, databaseID string, query notion.Query) ([]notion.Record, error)
	PageText(ctx context.Context, pageID string) ([]string, error)
}

// Sources 描述各信号源的位置；空 ID 表示未配置
// Sources locates each signal source; an empty ID means unconfigured
type Sources struct {
	CalendarID            string
	JournalDatabaseID     string
	CaptureDatabaseID     string
	CaptureStatusProperty string
	CaptureStatusValue    string
	GoalsDatabaseID       string
	GoalsStatusProperty   string
	GoalsStatusValue      string
}

type Gatherer struct {
	events   EventSource
	records  RecordStore
	sources  Sources
	location *time.Location
	timeout  time.Duration
	logger   logrus.FieldLogger
}

type Option func(*Gatherer)

// WithTimeout bounds each source fetch.
func WithTimeout(d time.Duration) Option {
	return func(g *Gatherer) { g.timeout = d }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Gatherer) { g.logger = logger }
}

// NewGatherer 创建采集器。events/records 可为 nil，对应信号视为降级
// NewGatherer builds a gatherer. events or records may be nil, which degrades their signals
func NewGatherer(events EventSource, records RecordStore, sources Sources, loc *time.Location, opts ...Option) *Gatherer {
	if loc == nil {
		loc = time.Local
	}
	g := &Gatherer{
		events:   events,
		records:  records,
		sources:  sources,
		location: loc,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gather 采集参考日的全部信号，从不因单个源失败而中止
// Gather collects every signal for the reference day; a failing source never aborts the run
func (g *Gatherer) Gather(ctx context.Context, ref time.Time) Signals {
	ref = ref.In(g.location)
	out := Signals{Reference: ref}
	var degraded *multierror.Error

	fail := func(source string, err error) {
		g.logger.WithField("source", source).WithError(err).Warn("signal degraded")
		degraded = multierror.Append(degraded, &SourceError{Source: source, Err: err})
	}

	events, err := g.gatherEvents(ctx, ref)
	if err != nil {
		fail(SourceCalendar, err)
	} else {
		out.Events = events
		out.CalendarOK = true
	}

	if out.Journal, err = g.gatherJournal(ctx); err != nil {
		fail(SourceJournal, err)
	}
	if out.Checklist, err = g.gatherChecklist(ctx); err != nil {
		fail(SourceChecklist, err)
	}
	if out.Goals, err = g.gatherGoals(ctx); err != nil {
		fail(SourceGoals, err)
	}

	out.Degraded = degraded
	return out
}

func (g *Gatherer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gatherer) gatherEvents(ctx context.Context, ref time.Time) ([]calendar.Event, error) {
	if g.events == nil || strings.TrimSpace(g.sources.CalendarID) == "" {
		return nil, ErrNotConfigured
	}
	start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, g.location)
	end := start.AddDate(0, 0, 1)

	callCtx, cancel := g.callContext(ctx)
	defer cancel()
	return g.events.ListEvents(callCtx, g.sources.CalendarID, start, end)
}

func (g *Gatherer) query(ctx context.Context, databaseID string, q notion.Query) ([]notion.Record, error) {
	if g.records == nil || strings.TrimSpace(databaseID) == "" {
		return nil, ErrNotConfigured
	}
	callCtx, cancel := g.callContext(ctx)
	defer cancel()
	return g.records.QueryDatabase(callCtx, databaseID, q)
}

func (g *Gatherer) gatherJournal(ctx context.Context) ([]JournalEntry, error) {
	records, err := g.query(ctx, g.sources.JournalDatabaseID, notion.Query{
		Sorts:    []notion.Sort{notion.NewestFirst()},
		PageSize: journalLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(records) > journalLimit {
		records = records[:journalLimit]
	}

	entries := make([]JournalEntry, 0, len(records))
	for _, rec := range records {
		entry := JournalEntry{ID: rec.ID, CreatedTime: rec.CreatedTime, Title: rec.Title()}
		callCtx, cancel := g.callContext(ctx)
		body, err := g.records.PageText(callCtx, rec.ID)
		cancel()
		if err != nil {
			// 单条正文失败只清空该条
			g.logger.WithField("record", rec.ID).WithError(err).Warn("journal entry body unavailable")
		} else {
			entry.Body = body
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (g *Gatherer) gatherChecklist(ctx context.Context) ([]ChecklistItem, error) {
	q := notion.Query{PageSize: checklistLimit}
	if g.sources.CaptureStatusProperty != "" {
		q.Filter = notion.SelectEquals(g.sources.CaptureStatusProperty, g.sources.CaptureStatusValue)
	}
	records, err := g.query(ctx, g.sources.CaptureDatabaseID, q)
	if err != nil {
		return nil, err
	}
	if len(records) > checklistLimit {
		records = records[:checklistLimit]
	}
	items := make([]ChecklistItem, 0, len(records))
	for _, rec := range records {
		items = append(items, ChecklistItem{
			ID:    rec.ID,
			Title: firstNonEmpty(rec.Text("Title"), rec.Title(), "Untitled"),
			Type:  firstNonEmpty(rec.Text("Type"), "Unknown"),
		})
	}
	return items, nil
}

func (g *Gatherer) gatherGoals(ctx context.Context) ([]GoalRecord, error) {
	q := notion.Query{PageSize: goalsLimit}
	if g.sources.GoalsStatusProperty != "" {
		q.Filter = notion.SelectEquals(g.sources.GoalsStatusProperty, g.sources.GoalsStatusValue)
	}
	records, err := g.query(ctx, g.sources.GoalsDatabaseID, q)
	if err != nil {
		return nil, err
	}
	if len(records) > goalsLimit {
		records = records[:goalsLimit]
	}
	goals := make([]GoalRecord, 0, len(records))
	for _, rec := range records {
		progress, _ := rec.Number("Progress")
		goals = append(goals, GoalRecord{
			ID:       rec.ID,
			Title:    firstNonEmpty(rec.Text("Goal"), rec.Title(), "Untitled Goal"),
			Level:    firstNonEmpty(rec.Text("Level"), "Goal"),
			Progress: clampUnit(progress),
		})
	}
	return goals, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
