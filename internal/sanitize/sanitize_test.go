package sanitize

import (
	"math/rand"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"control chars", "Day 1\x00 of\x07 2025.", "Day 1 of 2025."},
		{"crlf and tabs", "line one\r\n\tline  two\r", "line one\nline two"},
		{"blank runs", "a\n\n\n\nb\n \n\nc", "a\n\nb\n\nc"},
		{"leading and trailing", "\n\n  hello  \n\n", "hello"},
		{"format chars", "zero\u200bwidth\u202eflip", "zerowidthflip"},
		{"keeps emoji sequences", "\U0001F468\u200d\U0001F469 family", "\U0001F468\u200d\U0001F469 family"},
		{"invalid utf8", "ok\xffok", "okok"},
		{"nbsp collapses", "a\u00a0 b", "a b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Clean(tc.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "", Truncate("anything", 0))
	assert.Equal(t, "The quick brown fox ju", Truncate("The quick brown fox jumps", 22))
	assert.Equal(t, "The quick brown fox", Truncate("The quick brown fox jumps", 19))
	// a cut landing on a space drops it
	assert.Equal(t, "The quick brown fox", Truncate("The quick brown fox jumps", 20))
	assert.Equal(t, "abcdefghij", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo wörl", Truncate("héllo wörldwide", 10))

	spaced := strings.Repeat("lorem ipsum dolor sit amet ", 10)
	cut := Truncate(spaced, 100)
	assert.Equal(t, 100, utf8.RuneCountInString(cut), "text with spaces is cut at the ceiling, not at an earlier word")
	assert.Equal(t, cut, Truncate(cut, 100))
}

func TestSanitizeCeilingAndIdempotence(t *testing.T) {
	in := strings.Repeat("x\x01y\x1b", 1500)
	out := Sanitize(in, 2000)
	assert.Equal(t, 2000, utf8.RuneCountInString(out), "control-free text without spaces is cut exactly at the ceiling")
	for _, r := range out {
		require.False(t, unicode.IsControl(r), "control char %U survived", r)
	}
	assert.Equal(t, out, Sanitize(out, 2000))
}

func TestSanitizeIdempotentOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("ab c\n\t\r\x00\x07\u200b é🎂 .?")
	for i := 0; i < 1000; i++ {
		n := rng.Intn(200)
		runes := make([]rune, n)
		for j := range runes {
			runes[j] = alphabet[rng.Intn(len(alphabet))]
		}
		max := rng.Intn(120)
		once := Sanitize(string(runes), max)
		require.LessOrEqual(t, utf8.RuneCountInString(once), max)
		require.Equal(t, once, Sanitize(once, max), "input %q", string(runes))
		require.Equal(t, Clean(once), once)
	}
}

func TestAssembleOmitsEmptyOptionalParts(t *testing.T) {
	body, outcomes := Assemble([]Section{
		{Label: "wisdom", Text: "Day 69 of 2025. Act now", Priority: 1},
		{Label: "special", Text: "", Priority: 3, Optional: true},
		{Label: "insight", Text: "Focus on one project. What is the first step?", Priority: 2},
	}, 2000)

	assert.Equal(t, "Day 69 of 2025. Act now\n\nFocus on one project. What is the first step?", body)
	assert.False(t, outcomes[1].Kept)
	assert.True(t, outcomes[0].Kept && outcomes[2].Kept)
}

func TestAssembleDropsLowerPriorityFirst(t *testing.T) {
	long := strings.Repeat("word ", 100)
	sections := []Section{
		{Label: "header", Text: "Morning Insight", Priority: 0},
		{Label: "special", Text: "🎂 Sarah's Birthday - Reach out and celebrate", Priority: 3, Optional: true},
		{Label: "insight", Text: long, Priority: 2},
		{Label: "briefing", Text: long, Priority: 5},
	}
	body, outcomes := Assemble(sections, 300)

	require.LessOrEqual(t, utf8.RuneCountInString(body), 300)
	assert.True(t, strings.HasPrefix(body, "Morning Insight\n\n"))
	assert.True(t, outcomes[2].Kept && outcomes[2].Truncated, "insight is truncated to fit")
	assert.False(t, outcomes[1].Kept, "special has lower priority than insight")
	assert.False(t, outcomes[3].Kept, "briefing is dropped")
}

func TestAssembleNeverExceedsLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 300; i++ {
		var sections []Section
		for j := 0; j < 5; j++ {
			sections = append(sections, Section{
				Label:    "p",
				Text:     strings.Repeat("lorem ipsum ", rng.Intn(60)),
				Priority: rng.Intn(5),
				Optional: rng.Intn(2) == 0,
			})
		}
		limit := rng.Intn(400)
		body, _ := Assemble(sections, limit)
		require.LessOrEqual(t, utf8.RuneCountInString(body), limit)
		require.False(t, strings.Contains(body, "\n\n\n"))
	}
}
