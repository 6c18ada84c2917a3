// Package preview 在终端渲染块正文、运行报告和运行历史
// Package preview renders the block body, run reports and run history in the terminal.
package preview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"insight/internal/orchestrator"
	"insight/internal/runlog"
)

const defaultWidth = 80

// RenderBody 把块正文渲染成带图标的引用块，Glamour 失败时退回纯文本
// RenderBody renders the block body as a quote headed by the icon, falling back to plain text if Glamour fails
func RenderBody(body, icon string, width int) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	plain := icon + " " + body

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plain
	}
	rendered, err := r.Render(quote(plain))
	if err != nil {
		return plain
	}
	return strings.TrimRight(rendered, "\n")
}

// quote 将每段转为 markdown 引用，保留段落间空行
// quote turns every paragraph into a markdown quote, keeping blank lines between paragraphs
func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + escapeMarkdown(line)
	}
	return strings.Join(lines, "\n")
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"#", `\#`,
	"[", `\[`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// RenderReport 渲染一次运行的摘要
// RenderReport renders the summary of one run
func RenderReport(t Theme, r orchestrator.Report) string {
	var b strings.Builder
	b.WriteString(t.TitleStyle.Render("Morning Insight run "+r.RunDate) + "\n")

	row := func(label, value string) {
		b.WriteString(t.LabelStyle.Render(label) + t.ValueStyle.Render(value) + "\n")
	}
	row("outcome", outcomeStyle(t, string(r.Outcome)).Render(string(r.Outcome)))
	if r.DryRun {
		action := "create"
		if r.WouldUpdate {
			action = "update " + r.BlockID
		}
		row("would", action)
	} else if r.BlockID != "" {
		row("block", r.BlockID)
	}
	if r.Attempts > 0 {
		row("attempts", fmt.Sprintf("%d", r.Attempts))
	}

	workday := "rest day"
	if r.Derived.IsWorkday {
		workday = "workday"
	}
	row("day", fmt.Sprintf("%s, day %d of %d", workday, r.Derived.DayIndex, r.Derived.Year))
	if r.Derived.SpecialEvent != "" {
		row("special", r.Derived.SpecialEvent)
	}
	row("free slots", fmt.Sprintf("%d", len(r.Derived.VacantSlots)))

	var parts []string
	for _, p := range r.Parts {
		switch {
		case !p.Kept:
			if p.Generated || p.Fallback {
				parts = append(parts, t.MutedStyle.Render(p.Label+" (dropped)"))
			}
		case p.Fallback:
			parts = append(parts, t.WarningStyle.Render(p.Label+" (fallback)"))
		case p.Truncated:
			parts = append(parts, t.WarningStyle.Render(p.Label+" (truncated)"))
		default:
			parts = append(parts, p.Label)
		}
	}
	row("parts", strings.Join(parts, ", "))
	if len(r.Degraded) > 0 {
		row("degraded", t.WarningStyle.Render(strings.Join(r.Degraded, ", ")))
	}
	if r.Err != nil {
		row("error", t.ErrorStyle.Render(r.Err.Error()))
	}
	return t.PanelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderHistory 渲染最近的运行记录，最新在前
// RenderHistory renders recent runs, newest first
func RenderHistory(t Theme, records []runlog.Record) string {
	if len(records) == 0 {
		return t.MutedStyle.Render("no runs recorded yet")
	}
	rows := make([]string, 0, len(records)+1)
	rows = append(rows, t.TitleStyle.Render(fmt.Sprintf("%-10s  %-12s  %-8s  %s", "date", "outcome", "took", "notes")))
	for _, rec := range records {
		var notes []string
		if len(rec.FallbackParts) > 0 {
			notes = append(notes, "fallback: "+strings.Join(rec.FallbackParts, ","))
		}
		if len(rec.DegradedSignals) > 0 {
			notes = append(notes, "degraded: "+strings.Join(rec.DegradedSignals, ","))
		}
		if rec.Error != "" {
			notes = append(notes, rec.Error)
		}
		outcome := fmt.Sprintf("%-12s", rec.Outcome)
		line := fmt.Sprintf("%-10s  %s  %-8s  %s",
			rec.RunDate,
			outcomeStyle(t, rec.Outcome).Render(outcome),
			rec.Duration().Round(10 * time.Millisecond).String(),
			t.MutedStyle.Render(strings.Join(notes, "; ")),
		)
		rows = append(rows, strings.TrimRight(line, " "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func outcomeStyle(t Theme, outcome string) lipgloss.Style {
	switch orchestrator.Outcome(outcome) {
	case orchestrator.OutcomeUpdated, orchestrator.OutcomeCreated:
		return t.SuccessStyle
	case orchestrator.OutcomeWriteFailed:
		return t.ErrorStyle
	default:
		return t.ValueStyle
	}
}
