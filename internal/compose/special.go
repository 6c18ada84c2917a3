package compose

import (
	"regexp"
	"strings"
)

var (
	anniversaryWord = regexp.MustCompile(`(?i)\banniversary\b`)
	birthdayWord    = regexp.MustCompile(`(?i)\bbirthday\b`)
	trailingPoss    = regexp.MustCompile(`(?i)['’]s$`)
)

// FormatSpecialEvent 把生日/纪念日事件标题格式化为提醒行；其它关键词得到中性提醒；空标题返回 ""
// FormatSpecialEvent turns a birthday or anniversary title into a reminder line; other keywords get a neutral reminder; an empty title yields ""
func FormatSpecialEvent(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return ""
	}

	var emoji, kind string
	var word *regexp.Regexp
	switch {
	case anniversaryWord.MatchString(title):
		emoji, kind, word = "💍", "Anniversary", anniversaryWord
	case birthdayWord.MatchString(title):
		emoji, kind, word = "🎂", "Birthday", birthdayWord
	default:
		return "📅 " + title + " today - Reach out and celebrate"
	}

	name := word.ReplaceAllString(title, "")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " -:·,")
	name = trailingPoss.ReplaceAllString(name, "")
	if name == "" {
		return emoji + " " + kind + " today - Reach out and celebrate"
	}
	return emoji + " " + name + "'s " + kind + " - Reach out and celebrate"
}
