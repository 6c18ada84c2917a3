package signals

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"insight/internal/calendar"
)

const (
	SourceCalendar  = "calendar"
	SourceJournal   = "journal"
	SourceChecklist = "checklist"
	SourceGoals     = "goals"
)

// ErrNotConfigured 表示信号源未配置（缺少客户端或数据库 ID）
// ErrNotConfigured marks a signal source with no client or database ID
var ErrNotConfigured = errors.New("source not configured")

// SourceError 记录某个信号源的失败
// SourceError records the failure of one signal source
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s signal: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

type JournalEntry struct {
	ID          string
	CreatedTime time.Time
	Title       string
	Body        []string
}

type ChecklistItem struct {
	ID    string
	Title string
	Type  string
}

type GoalRecord struct {
	ID       string
	Title    string
	Level    string
	Progress float64
}

// Signals 是一次运行采集到的原始输入，失败的源为空值并记录在 Degraded
// Signals is the raw input of one run; failed sources are empty and recorded in Degraded
type Signals struct {
	Reference  time.Time
	Events     []calendar.Event
	CalendarOK bool
	Journal    []JournalEntry
	Checklist  []ChecklistItem
	Goals      []GoalRecord
	Degraded   *multierror.Error
}

// Err returns the aggregated degraded-source error, or nil.
func (s Signals) Err() error {
	return s.Degraded.ErrorOrNil()
}

// DegradedSources 返回失败信号源的名称，顺序与采集顺序一致
// DegradedSources lists the failed sources in gathering order
func (s Signals) DegradedSources() []string {
	if s.Degraded == nil {
		return nil
	}
	out := make([]string, 0, len(s.Degraded.Errors))
	for _, err := range s.Degraded.Errors {
		var se *SourceError
		if errors.As(err, &se) {
			out = append(out, se.Source)
			continue
		}
		out = append(out, err.Error())
	}
	return out
}
