// Package upsert 把块正文幂等地写入页面中带标记的 callout：找到则原地更新，否则追加
// Package upsert idempotently writes the block body into the page's marked callout: update in place when found, append otherwise.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"insight/internal/notion"
)

const (
	StageSearch = "search"
	StageUpdate = "update"
	StageCreate = "create"
)

type State string

const (
	StateSearch   State = "SEARCH"
	StateFound    State = "FOUND"
	StateNotFound State = "NOT_FOUND"
	StateUpdate   State = "UPDATE"
	StateCreate   State = "CREATE"
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
)

type Action string

const (
	ActionUpdated Action = "updated"
	ActionCreated Action = "created"
)

// ErrMarkerMismatch 表示正文不以标记开头，写入后下次将无法再找到
// ErrMarkerMismatch means the body does not start with the marker and could not be found again after writing
var ErrMarkerMismatch = errors.New("block body must begin with the marker")

type BlockStore interface {
	ListChildren(ctx context.Context, parentID, cursor string) (notion.BlockList, error)
	AppendBlock(ctx context.Context, parentID string, block notion.Block) (notion.Block, error)
	UpdateBlock(ctx context.Context, block notion.Block) (notion.Block, error)
}

// Target 描述要写入的 callout。身份 = 图标等于 Icon 且纯文本以 Marker 开头
// Target describes the callout to write. Identity = icon equals Icon and plain text begins with Marker
type Target struct {
	PageID string
	Marker string
	Icon   string
	Color  string
	Body   string
}

type Result struct {
	Action      Action
	BlockID     string
	Attempts    int
	Transitions []State
}

type Engine struct {
	store   BlockStore
	retrier *Retrier
	logger  logrus.FieldLogger
}

func NewEngine(store BlockStore, retrier *Retrier, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if retrier == nil {
		retrier = NewRetrier(DefaultPolicy(), logger)
	}
	return &Engine{store: store, retrier: retrier, logger: logger}
}

// Matches reports whether b is the marked callout.
func Matches(b notion.Block, marker, icon string) bool {
	if b.Type != notion.BlockTypeCallout || b.IconEmoji() != icon {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(b.PlainText()), marker)
}

// Find 遍历页面顶层子块，返回第一个匹配的 callout；每页请求单独重试
// Find walks the page's top-level children and returns the first matching callout; every page request is retried on its own
func (e *Engine) Find(ctx context.Context, pageID, marker, icon string) (notion.Block, bool, int, error) {
	cursor := ""
	total := 0
	for {
		var page notion.BlockList
		attempts, err := e.retrier.Do(ctx, StageSearch, func(ctx context.Context) error {
			var err error
			page, err = e.store.ListChildren(ctx, pageID, cursor)
			return err
		})
		total += attempts
		if err != nil {
			return notion.Block{}, false, total, err
		}
		for _, b := range page.Results {
			if Matches(b, marker, icon) {
				return b, true, total, nil
			}
		}
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			return notion.Block{}, false, total, nil
		}
		cursor = *page.NextCursor
	}
}

// scan 不重试地查找标记块，出错视为未找到
// scan looks for the marked block without retrying; errors count as not found
func (e *Engine) scan(ctx context.Context, pageID, marker, icon string) (notion.Block, bool) {
	cursor := ""
	for {
		page, err := e.store.ListChildren(ctx, pageID, cursor)
		if err != nil {
			return notion.Block{}, false
		}
		for _, b := range page.Results {
			if Matches(b, marker, icon) {
				return b, true
			}
		}
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			return notion.Block{}, false
		}
		cursor = *page.NextCursor
	}
}

// Upsert 执行 SEARCH → FOUND/UPDATE 或 NOT_FOUND/CREATE → DONE；任何阶段失败进入 FAILED 并返回 *WriteError
// Upsert runs SEARCH → FOUND/UPDATE or NOT_FOUND/CREATE → DONE; a failing stage ends in FAILED with a *WriteError
func (e *Engine) Upsert(ctx context.Context, t Target) (Result, error) {
	res := Result{}
	transition := func(s State) {
		res.Transitions = append(res.Transitions, s)
		e.logger.WithField("state", s).Debug("upsert transition")
	}
	fail := func(err error) (Result, error) {
		transition(StateFailed)
		return res, err
	}

	if strings.TrimSpace(t.Marker) == "" || !strings.HasPrefix(strings.TrimSpace(t.Body), t.Marker) {
		return fail(&WriteError{Stage: StageSearch, Err: ErrMarkerMismatch})
	}

	transition(StateSearch)
	existing, found, attempts, err := e.Find(ctx, t.PageID, t.Marker, t.Icon)
	res.Attempts += attempts
	if err != nil {
		return fail(err)
	}

	block := notion.NewCallout(t.Body, t.Icon, t.Color)
	if found {
		transition(StateFound)
		transition(StateUpdate)
		block.ID = existing.ID
		n, err := e.retrier.Do(ctx, StageUpdate, func(ctx context.Context) error {
			_, err := e.store.UpdateBlock(ctx, block)
			return err
		})
		res.Attempts += n
		if err != nil {
			return fail(err)
		}
		res.Action = ActionUpdated
		res.BlockID = existing.ID
	} else {
		transition(StateNotFound)
		transition(StateCreate)
		var created notion.Block
		tries := 0
		n, err := e.retrier.Do(ctx, StageCreate, func(ctx context.Context) error {
			tries++
			// 上一次追加可能已在服务端生效，重试前先确认
			// an earlier append may have landed server-side; check before appending again
			if tries > 1 {
				if b, ok := e.scan(ctx, t.PageID, t.Marker, t.Icon); ok {
					created = b
					return nil
				}
			}
			var err error
			created, err = e.store.AppendBlock(ctx, t.PageID, block)
			return err
		})
		res.Attempts += n
		if err != nil {
			return fail(err)
		}
		res.Action = ActionCreated
		res.BlockID = created.ID
	}

	transition(StateDone)
	e.logger.WithFields(logrus.Fields{
		"action":   res.Action,
		"block":    res.BlockID,
		"attempts": res.Attempts,
	}).Info("insight block written")
	return res, nil
}

func (r Result) String() string {
	return fmt.Sprintf("%s %s", r.Action, r.BlockID)
}
