package compose

import (
	"fmt"
	"strings"
	"time"

	"insight/internal/defaults"
	"insight/internal/derive"
	"insight/internal/signals"
)

const (
	noneListed          = "(none)"
	clockLayout         = "15:04"
	headerDateLayout    = "Monday, January 2, 2006"
	journalEntryMinimum = 40
)

func wisdomPrompt(day, year, words int) string {
	prefix := dayPrefix(day, year)
	return fmt.Sprintf(`Write ONE short stoic line about the passage of time and taking action.

Today is Day %d of %d.

Rules:
- One line, at most %d words
- Begin exactly with: "%s"
- Finish on an action, not a full stop
- Style examples: "%s Time compounds. Act now" / "%s Small actions today, large results tomorrow"

Reply with the line only.`, day, year, words, prefix, prefix, prefix)
}

func insightPrompt(workday bool, weekday time.Weekday, words int) string {
	var b strings.Builder
	if workday {
		b.WriteString("Today is a WORKDAY. Write an energizing but grounded insight for someone stepping into their work day.\n")
		b.WriteString("Themes: one breakthrough project, focus, growth.\n")
	} else {
		b.WriteString("Today is a REST DAY (weekend or holiday). Write a warm, introspective insight for someone with a free day.\n")
		b.WriteString("Themes: connection, creation, presence, joy, rest.\n")
		switch weekday {
		case time.Saturday:
			b.WriteString("It is Saturday: lean toward energy, creativity and relationships.\n")
		case time.Sunday:
			b.WriteString("It is Sunday: lean toward reflection and preparing for the week.\n")
		}
	}
	fmt.Fprintf(&b, "\nRules:\n- 2 or 3 sentences, at most %d words\n- Open with an observation about the day\n- End with ONE personal, actionable question\n\nReply with the insight only.", words)
	return b.String()
}

func reflectionPrompt(entries []string, words int) string {
	return fmt.Sprintf(`Here are my most recent journal entries, newest first:

%s

Write a gentle reflection connecting a pattern across these entries to today, at most %d words. Speak to me directly. Do not summarize each entry.

Reply with the reflection only.`, strings.Join(entries, "\n\n"), words)
}

func briefingPrompt(in Input, tok *Tokenizer, budget int, words int) string {
	sig := in.Signals
	events := make([]string, 0, len(sig.Events))
	for _, ev := range sig.Events {
		if ev.AllDay {
			events = append(events, "• All day: "+ev.Title)
			continue
		}
		events = append(events, fmt.Sprintf("• %s-%s: %s", ev.Start.Format(clockLayout), ev.End.Format(clockLayout), ev.Title))
	}
	slots := make([]string, 0, len(in.Context.VacantSlots))
	for _, s := range in.Context.VacantSlots {
		slots = append(slots, fmt.Sprintf("• %s-%s", s.Start.Format(clockLayout), s.End.Format(clockLayout)))
	}
	captures := make([]string, 0, len(sig.Checklist))
	for _, item := range sig.Checklist {
		captures = append(captures, fmt.Sprintf("• %s: %s", item.Type, item.Title))
	}
	goals := make([]string, 0, len(sig.Goals))
	for _, g := range sig.Goals {
		goals = append(goals, fmt.Sprintf("• %s: %s (%d%%)", g.Level, g.Title, int(g.Progress*100)))
	}

	dayKind := "rest day"
	if in.Context.IsWorkday {
		dayKind = "workday"
	}
	body := fmt.Sprintf(`Today is a %s.

CALENDAR:
%s

FREE TIME:
%s

UNPROCESSED CAPTURES:
%s

ACTIVE GOALS:
%s`, dayKind, listOrNone(events), listOrNone(slots), listOrNone(captures), listOrNone(goals))

	return fmt.Sprintf(`%s

Write today's focus in at most %d words: the single most important priority, when to do deep work given the free time, and one capture or goal to move forward. Plain sentences, no bullet points.`, tok.Clip(body, budget), words)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return noneListed
	}
	return strings.Join(items, "\n")
}

// journalExcerpts 在 token 预算内为每条日记生成摘录
// journalExcerpts renders one excerpt per journal entry within a token budget
func journalExcerpts(entries []signals.JournalEntry, tok *Tokenizer, budget int) []string {
	if len(entries) == 0 {
		return nil
	}
	per := budget / len(entries)
	if per < journalEntryMinimum {
		per = journalEntryMinimum
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.CreatedTime.Format("2006-01-02")
		}
		body := strings.Join(e.Body, "\n")
		if strings.TrimSpace(body) == "" {
			body = noneListed
		}
		out = append(out, "## "+title+"\n"+tok.Clip(body, per))
	}
	return out
}

// Header 返回块的首行：标记标题加日期
// Header returns the first line of the block: the marker title and the date
func Header(marker string, ref time.Time) string {
	return marker + " · " + ref.Format(headerDateLayout)
}

func insightFallback(ctx derive.Context) string {
	if ctx.IsWorkday {
		return defaults.FallbackWorkday
	}
	return defaults.FallbackRestDay
}
