package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight/internal/calendar"
	"insight/internal/compose"
	"insight/internal/config"
	"insight/internal/derive"
	"insight/internal/logging"
	"insight/internal/notion"
	"insight/internal/notion/notiontest"
	"insight/internal/provider"
	"insight/internal/runlog"
	"insight/internal/signals"
	"insight/internal/upsert"
)

const testPage = "page-1"

type fakeEvents struct {
	events []calendar.Event
	err    error
}

func (f *fakeEvents) ListEvents(context.Context, string, time.Time, time.Time) ([]calendar.Event, error) {
	return f.events, f.err
}

// stubGenerator 按温度区分部分
// stubGenerator tells parts apart by temperature
type stubGenerator struct {
	replies map[float32]string
	calls   int
}

func (s *stubGenerator) Complete(_ context.Context, req provider.CompletionRequest) (string, error) {
	s.calls++
	if reply, ok := s.replies[req.Temperature]; ok {
		return reply, nil
	}
	return "", provider.ErrEmptyCompletion
}

func (s *stubGenerator) CurrentModel() string { return "stub" }

func newStubGenerator() *stubGenerator {
	return &stubGenerator{replies: map[float32]string{
		compose.WisdomSpec.Temperature:     "Small steps compound into big change",
		compose.InsightSpec.Temperature:    "Protect the quiet hour before the work block begins",
		compose.ReflectionSpec.Temperature: "Your recent entries keep returning to rest",
		compose.BriefingSpec.Temperature:   "Inbox has two captures waiting",
	}}
}

type fixture struct {
	server *notiontest.Server
	gen    *stubGenerator
	events *fakeEvents
	ledger *runlog.SQLiteStore
	ref    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := notiontest.NewServer(t)
	ref := time.Date(2025, 3, 10, 6, 30, 0, 0, time.UTC)

	for i, title := range []string{"Slow morning", "Long walk", "Quiet evening"} {
		id := fmt.Sprintf("journal-%d", i+1)
		srv.AddRecord("journal", notion.Record{
			ID:          id,
			CreatedTime: ref.Add(-time.Duration(i+1) * 24 * time.Hour),
			Properties: map[string]notion.Property{
				"Name": {Type: "title", Title: []notion.RichText{{Type: "text", PlainText: title}}},
			},
		})
		srv.AddParagraphs(id, "Wrote about "+strings.ToLower(title))
	}
	srv.AddRecord("captures", notion.Record{Properties: map[string]notion.Property{
		"Title":             {Type: "title", Title: []notion.RichText{{Type: "text", PlainText: "Call the bank"}}},
		"Processing_Status": {Type: "select", Select: &notion.Option{Name: "📥 Captured"}},
	}})

	ledger, err := runlog.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	return &fixture{
		server: srv,
		gen:    newStubGenerator(),
		events: &fakeEvents{events: []calendar.Event{{
			ID:    "ev-1",
			Title: "Work Block",
			Start: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC),
		}}},
		ledger: ledger,
		ref:    ref,
	}
}

func (f *fixture) orchestrator(dryRun bool) *Orchestrator {
	client := f.server.NotionClient()
	logger := logging.Discard()
	gatherer := signals.NewGatherer(f.events, client, signals.Sources{
		CalendarID:            "primary",
		JournalDatabaseID:     "journal",
		CaptureDatabaseID:     "captures",
		CaptureStatusProperty: "Processing_Status",
		CaptureStatusValue:    "📥 Captured",
	}, time.UTC, signals.WithLogger(logger))
	composer := compose.New(f.gen, compose.WithLogger(logger))
	retrier := upsert.NewRetrier(upsert.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, logger).
		WithSleep(func(context.Context, time.Duration) error { return nil })
	engine := upsert.NewEngine(client, retrier, logger)

	return New(gatherer, composer, engine, Options{
		PageID:   testPage,
		Block:    config.Default().Block,
		Rule:     derive.DefaultRule(),
		Location: time.UTC,
		DryRun:   dryRun,
		Ledger:   f.ledger,
		Logger:   logger,
	})
}

func labelsOf(parts []PartSummary) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Kept {
			out = append(out, p.Label)
		}
	}
	return out
}

func TestRunEndToEndUpdatesExistingBlock(t *testing.T) {
	f := newFixture(t)

	first, err := f.orchestrator(false).Run(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, first.Outcome)

	second, err := f.orchestrator(false).Run(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, first.BlockID, second.BlockID)

	// one append from the first run, one in-place update from the second
	assert.Equal(t, 1, f.server.Count(http.MethodPatch, "/blocks/"+testPage+"/children"))
	assert.Equal(t, 1, f.server.Count(http.MethodPatch, "/blocks/"+second.BlockID))

	blocks := f.server.Blocks(testPage)
	require.Len(t, blocks, 1)
	assert.Equal(t, second.Body, blocks[0].PlainText())

	assert.True(t, second.Derived.IsWorkday)
	assert.Empty(t, second.Derived.SpecialEvent)
	assert.Empty(t, second.FallbackParts)
	assert.Equal(t,
		[]string{compose.LabelHeader, compose.LabelWisdom, compose.LabelInsight, compose.LabelReflection, compose.LabelBriefing},
		labelsOf(second.Parts))

	body := second.Body
	assert.True(t, strings.HasPrefix(body, "Morning Insight · Monday, March 10, 2025"))
	assert.NotContains(t, body, "🎂")
	order := []string{"Day 69 of 2025.", "Protect the quiet hour", "Your recent entries", "Inbox has two captures"}
	last := -1
	for _, fragment := range order {
		idx := strings.Index(body, fragment)
		require.GreaterOrEqual(t, idx, 0, fragment)
		assert.Greater(t, idx, last, fragment)
		last = idx
	}

	recent, err := f.ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "updated", recent[0].Outcome)
	assert.Equal(t, "created", recent[1].Outcome)
	assert.Equal(t, "2025-03-10", recent[0].RunDate)
	assert.Contains(t, recent[0].DegradedSignals, signals.SourceGoals)
}

func TestRunIncludesSpecialEventLine(t *testing.T) {
	f := newFixture(t)
	f.events.events = append(f.events.events, calendar.Event{
		ID:     "ev-2",
		Title:  "Sarah's Birthday",
		Start:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		AllDay: true,
	})

	report, err := f.orchestrator(false).Run(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Contains(t, report.Body, "🎂 Sarah's Birthday")
	assert.Less(t, strings.Index(report.Body, "🎂"), strings.Index(report.Body, "Protect the quiet hour"))
}

func TestRunFallsBackWhenGenerationFails(t *testing.T) {
	f := newFixture(t)
	f.gen.replies = nil

	report, err := f.orchestrator(false).Run(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, report.Outcome)
	assert.Contains(t, report.FallbackParts, compose.LabelWisdom)
	assert.Contains(t, report.FallbackParts, compose.LabelInsight)
	assert.Contains(t, report.Body, "Day 69 of 2025.")
}

func TestRunDegradesWithoutCalendar(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("calendar down")

	report, err := f.orchestrator(false).Run(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Contains(t, report.Degraded, signals.SourceCalendar)
	assert.True(t, report.Derived.IsWorkday)
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	existing := f.server.AddBlock(testPage, notion.NewCallout("Morning Insight · yesterday", "✨", "default"))

	report, err := f.orchestrator(true).Run(context.Background(), f.ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, report.Outcome)
	assert.True(t, report.WouldUpdate)
	assert.Equal(t, existing, report.BlockID)
	assert.Zero(t, f.server.Count(http.MethodPatch, "/blocks/"))
	assert.NotEmpty(t, report.Body)

	recent, err := f.ledger.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "dry_run", recent[0].Outcome)
}

func TestRunReportsWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.server.AddBlock(testPage, notion.NewCallout("Morning Insight · yesterday", "✨", "default"))
	f.server.FailNext(http.MethodPatch, "/blocks/", http.StatusBadRequest, "")

	report, err := f.orchestrator(false).Run(context.Background(), f.ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailed)
	var we *upsert.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, upsert.StageUpdate, we.Stage)
	assert.Equal(t, OutcomeWriteFailed, report.Outcome)
	assert.False(t, report.Succeeded())

	recent, err := f.ledger.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "write_failed", recent[0].Outcome)
	assert.NotEmpty(t, recent[0].Error)
}
