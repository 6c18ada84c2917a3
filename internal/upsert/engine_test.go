package upsert

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight/internal/logging"
	"insight/internal/notion"
	"insight/internal/notion/notiontest"
)

const (
	pageID = "page-1"
	marker = "Morning Insight"
	icon   = "✨"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newEngine(srv *notiontest.Server, policy Policy) (*Engine, *recordedSleeps) {
	sleeps := &recordedSleeps{}
	retrier := NewRetrier(policy, logging.Discard()).WithSleep(sleeps.sleep)
	return NewEngine(srv.NotionClient(), retrier, logging.Discard()), sleeps
}

func target(body string) Target {
	return Target{PageID: pageID, Marker: marker, Icon: icon, Color: "orange_background", Body: body}
}

func markedCallouts(blocks []notion.Block) []notion.Block {
	var out []notion.Block
	for _, b := range blocks {
		if Matches(b, marker, icon) {
			out = append(out, b)
		}
	}
	return out
}

func TestUpsertIsIdempotentAcrossRuns(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.AddParagraphs(pageID, "Welcome to my dashboard")
	engine, _ := newEngine(srv, DefaultPolicy())

	first, err := engine.Upsert(context.Background(), target(marker+" · Monday\n\nfirst run"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, first.Action)
	assert.Equal(t, []State{StateSearch, StateNotFound, StateCreate, StateDone}, first.Transitions)

	second, err := engine.Upsert(context.Background(), target(marker+" · Monday\n\nsecond run"))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, second.Action)
	assert.Equal(t, first.BlockID, second.BlockID)
	assert.Equal(t, []State{StateSearch, StateFound, StateUpdate, StateDone}, second.Transitions)

	marked := markedCallouts(srv.Blocks(pageID))
	require.Len(t, marked, 1)
	assert.True(t, strings.HasSuffix(marked[0].PlainText(), "second run"))
	assert.Equal(t, "orange_background", marked[0].Content.Color)
	assert.Len(t, srv.Blocks(pageID), 2)
}

func TestUpsertFirstMatchWins(t *testing.T) {
	srv := notiontest.NewServer(t)
	firstID := srv.AddBlock(pageID, notion.NewCallout(marker+" old A", icon, "gray_background"))
	srv.AddBlock(pageID, notion.NewCallout(marker+" old B", icon, "gray_background"))
	engine, _ := newEngine(srv, DefaultPolicy())

	res, err := engine.Upsert(context.Background(), target(marker+" new"))
	require.NoError(t, err)
	assert.Equal(t, firstID, res.BlockID)
	assert.Equal(t, marker+" old B", srv.Blocks(pageID)[1].PlainText())
}

func TestUpsertIgnoresLookalikes(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.AddBlock(pageID, notion.NewCallout(marker+" wrong icon", "💡", ""))
	srv.AddBlock(pageID, notion.NewCallout("Notes about "+marker, icon, ""))
	srv.AddParagraphs(pageID, marker+" as a paragraph")
	engine, _ := newEngine(srv, DefaultPolicy())

	res, err := engine.Upsert(context.Background(), target(marker+" body"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
}

func TestUpsertSearchFollowsCursor(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.PageSize = 2
	for i := 0; i < 5; i++ {
		srv.AddParagraphs(pageID, "filler")
	}
	id := srv.AddBlock(pageID, notion.NewCallout(marker+" old", icon, ""))
	engine, _ := newEngine(srv, DefaultPolicy())

	res, err := engine.Upsert(context.Background(), target(marker+" new"))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.Equal(t, id, res.BlockID)
	assert.Equal(t, 3, srv.Count(http.MethodGet, "/blocks/"+pageID+"/children"))
}

func TestUpsertRetriesTransientFailures(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.AddBlock(pageID, notion.NewCallout(marker+" old", icon, ""))
	srv.FailNext(http.MethodPatch, "/blocks/", http.StatusServiceUnavailable, "")
	srv.FailNext(http.MethodPatch, "/blocks/", http.StatusServiceUnavailable, "")
	engine, sleeps := newEngine(srv, Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	res, err := engine.Upsert(context.Background(), target(marker+" new"))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.Equal(t, 3, srv.Count(http.MethodPatch, "/blocks/"))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps.delays)
	assert.Equal(t, 4, res.Attempts, "one search plus three update attempts")
}

func TestUpsertHonorsRetryAfter(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.FailNext(http.MethodGet, "/blocks/", http.StatusTooManyRequests, "5")
	engine, sleeps := newEngine(srv, Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	_, err := engine.Upsert(context.Background(), target(marker+" body"))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeps.delays)
}

func TestUpsertDoesNotRetryClientErrors(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.FailNext(http.MethodPatch, "/blocks/"+pageID+"/children", http.StatusBadRequest, "")
	engine, sleeps := newEngine(srv, DefaultPolicy())

	res, err := engine.Upsert(context.Background(), target(marker+" body"))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, StageCreate, writeErr.Stage)
	assert.Equal(t, 1, writeErr.Attempts)
	assert.Empty(t, sleeps.delays)
	assert.Equal(t, StateFailed, res.Transitions[len(res.Transitions)-1])

	var apiErr *notion.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestUpsertExhaustsRetries(t *testing.T) {
	srv := notiontest.NewServer(t)
	for i := 0; i < 4; i++ {
		srv.FailNext(http.MethodGet, "/blocks/", http.StatusBadGateway, "")
	}
	engine, sleeps := newEngine(srv, Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second})

	_, err := engine.Upsert(context.Background(), target(marker+" body"))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, StageSearch, writeErr.Stage)
	assert.Equal(t, 4, writeErr.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, sleeps.delays)
	assert.Equal(t, 0, srv.Count(http.MethodPatch, "/blocks/"), "nothing is written after a failed search")
}

// lossyAppend 让第一次追加在服务端生效但向调用方报告 504
// lossyAppend lets the first append land server-side but reports a 504 to the caller
type lossyAppend struct {
	*notion.Client
	lost bool
}

func (l *lossyAppend) AppendBlock(ctx context.Context, parentID string, b notion.Block) (notion.Block, error) {
	created, err := l.Client.AppendBlock(ctx, parentID, b)
	if err == nil && !l.lost {
		l.lost = true
		return notion.Block{}, &notion.APIError{Op: "append block", StatusCode: http.StatusGatewayTimeout}
	}
	return created, err
}

func TestUpsertCreateRetryDoesNotDuplicate(t *testing.T) {
	srv := notiontest.NewServer(t)
	store := &lossyAppend{Client: srv.NotionClient()}
	retrier := NewRetrier(DefaultPolicy(), logging.Discard()).WithSleep(func(context.Context, time.Duration) error { return nil })
	engine := NewEngine(store, retrier, logging.Discard())

	res, err := engine.Upsert(context.Background(), target(marker+" body"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)

	marked := markedCallouts(srv.Blocks(pageID))
	require.Len(t, marked, 1)
	assert.Equal(t, marked[0].ID, res.BlockID)
	assert.Equal(t, 1, srv.Count(http.MethodPatch, "/blocks/"+pageID+"/children"))
}

func TestUpsertRejectsBodyWithoutMarker(t *testing.T) {
	srv := notiontest.NewServer(t)
	engine, _ := newEngine(srv, DefaultPolicy())
	_, err := engine.Upsert(context.Background(), target("no marker here"))
	require.ErrorIs(t, err, ErrMarkerMismatch)
	assert.Empty(t, srv.Requests())
}

func TestUpsertStopsOnCancelledContext(t *testing.T) {
	srv := notiontest.NewServer(t)
	srv.FailNext(http.MethodGet, "/blocks/", http.StatusServiceUnavailable, "")
	ctx, cancel := context.WithCancel(context.Background())
	retrier := NewRetrier(DefaultPolicy(), logging.Discard()).WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	engine := NewEngine(srv.NotionClient(), retrier, logging.Discard())

	_, err := engine.Upsert(ctx, target(marker+" body"))
	require.ErrorIs(t, err, context.Canceled)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 1, writeErr.Attempts)
}
