// Package sanitize 负责清洗生成文本并在长度上限内拼装块正文
// Package sanitize cleans generated text and assembles the block body within a length ceiling.
package sanitize

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Separator 是各部分之间的空行
// Separator is the blank line between parts
const Separator = "\n\n"

const zeroWidthJoiner = '\u200d'

// minUsefulRunes 是截断后仍值得保留的最短长度
// minUsefulRunes is the shortest truncated part worth keeping
const minUsefulRunes = 24

// Clean 移除控制与格式字符（保留换行与 ZWJ），统一换行，合并多余空白与空行并去除首尾空白。幂等
// Clean drops control and format characters (keeping newlines and ZWJ), normalizes line endings, collapses extra spaces and blank lines, and trims. Idempotent
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var filtered strings.Builder
	filtered.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
			continue
		case r == '\n':
			filtered.WriteRune(r)
		case r == '\t' || unicode.IsSpace(r):
			filtered.WriteRune(' ')
		case unicode.IsControl(r):
			continue
		case unicode.Is(unicode.Cf, r) && r != zeroWidthJoiner:
			continue
		default:
			filtered.WriteRune(r)
		}
	}

	lines := strings.Split(filtered.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Truncate 将文本在恰好 max 个字符处截断，只去掉截断点前的尾随空白。幂等
// Truncate cuts text at exactly max runes, dropping only whitespace left trailing at the cut. Idempotent
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimRightFunc(string([]rune(s)[:max]), unicode.IsSpace)
}

// Sanitize cleans then truncates.
func Sanitize(s string, max int) string {
	return Truncate(Clean(s), max)
}

// Section 是待拼装的一段正文。Priority 越小越重要
// Section is one part of the body. Lower Priority is more important
type Section struct {
	Label    string
	Text     string
	Priority int
	Optional bool
}

// Outcome 记录拼装时各部分的去留
// Outcome records what happened to each section during assembly
type Outcome struct {
	Label     string
	Kept      bool
	Truncated bool
}

// Assemble 按优先级分配 limit，按输入顺序渲染，部分之间空一行；空的可选部分整体省略。输出长度不超过 limit
// Assemble allocates limit by priority and renders in input order with a blank line between parts; empty optional parts are omitted entirely. Output never exceeds limit
func Assemble(sections []Section, limit int) (string, []Outcome) {
	texts := make([]string, len(sections))
	outcomes := make([]Outcome, len(sections))
	order := make([]int, 0, len(sections))
	for i, s := range sections {
		texts[i] = Clean(s.Text)
		outcomes[i] = Outcome{Label: s.Label}
		if texts[i] != "" {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sections[order[a]].Priority < sections[order[b]].Priority
	})

	sepLen := utf8.RuneCountInString(Separator)
	remaining := limit
	allocated := 0
	for _, idx := range order {
		cost := 0
		if allocated > 0 {
			cost = sepLen
		}
		n := utf8.RuneCountInString(texts[idx])
		if cost+n <= remaining {
			remaining -= cost + n
			outcomes[idx].Kept = true
			allocated++
			continue
		}
		// 超出预算：截断当前部分后停止，优先级更低的部分全部丢弃
		// over budget: truncate this part and stop, dropping everything of lower priority
		if avail := remaining - cost; avail >= minUsefulRunes {
			texts[idx] = Truncate(texts[idx], avail)
			outcomes[idx].Kept = true
			outcomes[idx].Truncated = true
		}
		break
	}

	rendered := make([]string, 0, len(sections))
	for i := range sections {
		if outcomes[i].Kept {
			rendered = append(rendered, texts[i])
		}
	}
	return Truncate(strings.Join(rendered, Separator), limit), outcomes
}
