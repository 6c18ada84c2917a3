package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"insight/internal/sanitize"
)

var notionIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

var blockColors = map[string]struct{}{
	"default": {}, "gray_background": {}, "brown_background": {}, "orange_background": {},
	"yellow_background": {}, "green_background": {}, "blue_background": {},
	"purple_background": {}, "pink_background": {}, "red_background": {},
}

// ValidationError 汇总所有致命配置问题，在任何外部调用之前返回
// ValidationError collects every fatal configuration problem; returned before any external call
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate 检查凭据与标识符；日历与数据库为可选信号源，缺失时只会降级
// Validate checks credentials and identifiers; calendar and databases are optional signal sources
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		problems = append(problems, "provider api key is missing (OPENAI_API_KEY)")
	}
	if strings.TrimSpace(c.Notion.Token) == "" {
		problems = append(problems, "notion token is missing (NOTION_API_KEY)")
	}
	if strings.TrimSpace(c.Notion.PageID) == "" {
		problems = append(problems, "notion page id is missing (NOTION_PAGE_ID)")
	} else if !ValidNotionID(c.Notion.PageID) {
		problems = append(problems, fmt.Sprintf("notion page id %q is malformed", c.Notion.PageID))
	}
	for name, id := range map[string]string{
		"journal_database_id": c.Notion.JournalDatabaseID,
		"capture_database_id": c.Notion.CaptureDatabaseID,
		"goals_database_id":   c.Notion.GoalsDatabaseID,
	} {
		if id != "" && !ValidNotionID(id) {
			problems = append(problems, fmt.Sprintf("%s %q is malformed", name, id))
		}
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, _, err := c.WorkingHours(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, ok := blockColors[c.Block.Color]; !ok {
		problems = append(problems, fmt.Sprintf("block color %q is not a notion color", c.Block.Color))
	}
	if c.Block.MaxChars < MinBlockMaxChars || c.Block.MaxChars > DefaultBlockMaxChars {
		problems = append(problems, fmt.Sprintf("block max_chars %d must be within %d..%d", c.Block.MaxChars, MinBlockMaxChars, DefaultBlockMaxChars))
	}
	// 清洗后会改变的标记写入后无法再匹配
	// a marker that cleaning would rewrite can never be matched after writing
	if marker := c.Block.Marker; strings.TrimSpace(marker) == "" || sanitize.Clean(marker) != marker || strings.Contains(marker, "\n") {
		problems = append(problems, fmt.Sprintf("block marker %q must be a single line without control characters or repeated spaces", marker))
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > MaxRetryAttempts {
		problems = append(problems, fmt.Sprintf("retry max_attempts must be within 1..%d", MaxRetryAttempts))
	}
	if len(problems) == 0 {
		return nil
	}
	// map 迭代顺序不确定 / map iteration order is random
	sort.Strings(problems)
	return &ValidationError{Problems: problems}
}

// ValidNotionID 接受 32 位十六进制或带连字符的 UUID 形式
// ValidNotionID accepts 32 hex characters with or without UUID dashes
func ValidNotionID(id string) bool {
	return notionIDPattern.MatchString(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}
