// Package derive 把原始信号变成确定性的事实，不做任何 I/O
// Package derive turns raw signals into deterministic facts without any I/O.
package derive

import (
	"sort"
	"strings"
	"time"

	"insight/internal/calendar"
	"insight/internal/signals"
)

// Rule 汇总推导所需的可配置参数
// Rule gathers the tunables used by derivation
type Rule struct {
	WorkKeywords    []string
	WorkThreshold   time.Duration
	SpecialKeywords []string
	// DayStart/DayEnd 是相对本地午夜的偏移
	// DayStart and DayEnd are offsets from local midnight
	DayStart time.Duration
	DayEnd   time.Duration
	MinSlot  time.Duration
}

func DefaultRule() Rule {
	return Rule{
		WorkKeywords:    []string{"work", "💼"},
		WorkThreshold:   2 * time.Hour,
		SpecialKeywords: []string{"birthday", "anniversary"},
		DayStart:        9 * time.Hour,
		DayEnd:          21 * time.Hour,
		MinSlot:         30 * time.Minute,
	}
}

type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Context 是一次运行的推导结果，只计算一次
// Context is the derived state of one run, computed once
type Context struct {
	IsWorkday    bool
	SpecialEvent string
	VacantSlots  []Interval
	DayIndex     int
	Year         int
}

// Derive 从信号计算 Context
// Derive computes the run Context from signals
func Derive(sig signals.Signals, rule Rule) Context {
	day, year := DayIndex(sig.Reference)
	ref := sig.Reference
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	bounds := Interval{Start: midnight.Add(rule.DayStart), End: midnight.Add(rule.DayEnd)}

	var slots []Interval
	if sig.CalendarOK {
		slots = VacantSlots(BusyIntervals(sig.Events), bounds, rule.MinSlot)
	}

	return Context{
		IsWorkday:    IsWorkday(sig.Events, sig.CalendarOK, rule),
		SpecialEvent: SpecialEvent(sig.Events, rule.SpecialKeywords),
		VacantSlots:  slots,
		DayIndex:     day,
		Year:         year,
	}
}

// IsWorkday 在日历不可用或当天无事件时返回 true；否则要求存在标题含关键字且时长达标的定时事件
// IsWorkday is true when the calendar is unavailable or empty; otherwise a timed event whose title contains a work keyword and lasts at least the threshold is required
func IsWorkday(events []calendar.Event, calendarOK bool, rule Rule) bool {
	if !calendarOK || len(events) == 0 {
		return true
	}
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		if containsAny(ev.Title, rule.WorkKeywords) && ev.Duration() >= rule.WorkThreshold {
			return true
		}
	}
	return false
}

// SpecialEvent 返回第一个标题含特殊关键字的事件标题，没有则为 ""
// SpecialEvent returns the title of the first event matching a special keyword, or ""
func SpecialEvent(events []calendar.Event, keywords []string) string {
	for _, ev := range events {
		if containsAny(ev.Title, keywords) {
			return ev.Title
		}
	}
	return ""
}

// BusyIntervals 返回定时事件占用的时间段；全天事件不占用
// BusyIntervals returns the spans occupied by timed events; all-day events occupy nothing
func BusyIntervals(events []calendar.Event) []Interval {
	out := make([]Interval, 0, len(events))
	for _, ev := range events {
		if ev.AllDay || !ev.End.After(ev.Start) {
			continue
		}
		out = append(out, Interval{Start: ev.Start, End: ev.End})
	}
	return out
}

// VacantSlots 规范化忙碌区间（排序、合并、裁剪到 bounds），返回 bounds 内的补集，丢弃短于 min 的空档
// VacantSlots normalizes busy intervals (sort, merge, clip to bounds) and returns the complement within bounds, dropping gaps shorter than min
func VacantSlots(busy []Interval, bounds Interval, min time.Duration) []Interval {
	if !bounds.End.After(bounds.Start) {
		return nil
	}
	merged := Normalize(busy, bounds)

	var slots []Interval
	cursor := bounds.Start
	for _, b := range merged {
		if b.Start.After(cursor) {
			slots = appendSlot(slots, Interval{Start: cursor, End: b.Start}, min)
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if bounds.End.After(cursor) {
		slots = appendSlot(slots, Interval{Start: cursor, End: bounds.End}, min)
	}
	return slots
}

// Normalize 裁剪到 bounds 后按开始时间排序并合并重叠或相接的区间
// Normalize clips intervals to bounds, sorts them by start and merges overlapping or touching ones
func Normalize(busy []Interval, bounds Interval) []Interval {
	clipped := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.Start.Before(bounds.Start) {
			b.Start = bounds.Start
		}
		if b.End.After(bounds.End) {
			b.End = bounds.End
		}
		if b.End.After(b.Start) {
			clipped = append(clipped, b)
		}
	}
	sort.Slice(clipped, func(i, j int) bool {
		return clipped[i].Start.Before(clipped[j].Start)
	})

	var merged []Interval
	for _, b := range clipped {
		n := len(merged)
		if n > 0 && !b.Start.After(merged[n-1].End) {
			if b.End.After(merged[n-1].End) {
				merged[n-1].End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

func appendSlot(slots []Interval, slot Interval, min time.Duration) []Interval {
	if slot.Duration() <= 0 || slot.Duration() < min {
		return slots
	}
	return append(slots, slot)
}

// DayIndex returns the 1-based day of the year and the year.
func DayIndex(ref time.Time) (int, int) {
	return ref.YearDay(), ref.Year()
}

func containsAny(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
