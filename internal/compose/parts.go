package compose

import (
	"fmt"
	"strings"
	"time"

	"insight/internal/sanitize"
)

const (
	LabelHeader     = "header"
	LabelWisdom     = "wisdom"
	LabelSpecial    = "special"
	LabelInsight    = "insight"
	LabelReflection = "reflection"
	LabelBriefing   = "briefing"
)

// 优先级：数值越小越先分配长度
// priorities: lower values are allotted length first
const (
	priorityHeader = iota
	priorityWisdom
	priorityInsight
	prioritySpecial
	priorityReflection
	priorityBriefing
)

// Part 是块正文的一段。生成失败时 Text 为兜底文本，Fallback 为 true，Err 记录原因
// Part is one section of the block body. On generation failure Text holds the fallback, Fallback is true and Err keeps the cause
type Part struct {
	Label       string
	Text        string
	MaxWords    int
	Temperature float32
	Priority    int
	Optional    bool
	Generated   bool
	Fallback    bool
	Err         error
}

// Section 转换为拼装用的只读副本
// Section converts the part into a read-only copy for assembly
func (p Part) Section() sanitize.Section {
	return sanitize.Section{
		Label:    p.Label,
		Text:     p.Text,
		Priority: p.Priority,
		Optional: p.Optional,
	}
}

// Sections converts parts in display order.
func Sections(parts []Part) []sanitize.Section {
	out := make([]sanitize.Section, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.Section())
	}
	return out
}

// FallbackLabels 返回使用兜底文本的部分
// FallbackLabels returns the labels of parts that fell back
func FallbackLabels(parts []Part) []string {
	var out []string
	for _, p := range parts {
		if p.Fallback {
			out = append(out, p.Label)
		}
	}
	return out
}

// maxTokensFor 由字数上限推导 max_tokens（约 4/3 token 每词，外加标点余量）
// maxTokensFor derives max_tokens from a word ceiling (about 4/3 tokens per word plus punctuation slack)
func maxTokensFor(words int) int {
	return (words*4+2)/3 + 14
}

// clipWords 将文本限制在 max 个词以内
// clipWords limits text to max words
func clipWords(text string, max int) string {
	fields := strings.Fields(text)
	if max <= 0 || len(fields) <= max {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:max], " ")
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func stripQuotes(text string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "\"'“”‘’`"))
}

func dayPrefix(day, year int) string {
	return fmt.Sprintf("Day %d of %d.", day, year)
}

// withDayPrefix 保证文本以 "Day N of YYYY." 开头
// withDayPrefix makes sure text begins with "Day N of YYYY."
func withDayPrefix(text, prefix string) string {
	bare := strings.TrimSuffix(prefix, ".")
	if strings.HasPrefix(text, bare) {
		rest := strings.TrimLeft(text[len(bare):], ".,:;- ")
		return strings.TrimSpace(prefix + " " + rest)
	}
	return prefix + " " + text
}

// HeaderPart 是块的首行，标记标题加日期，优先级最高
// HeaderPart is the first line of the block, marker title plus date, allotted length first
func HeaderPart(marker string, ref time.Time) Part {
	return Part{
		Label:    LabelHeader,
		Text:     Header(marker, ref),
		Priority: priorityHeader,
	}
}
