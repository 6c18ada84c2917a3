// Package defaults 保存生成用的系统提示词和各部分的静态兜底文本
// Package defaults holds the generation system prompt and the static fallback text of each part.
package defaults

// DefaultSystemPrompt is sent with every part; the per-part prompt carries the task.
const DefaultSystemPrompt = `You write short, grounded morning notes for one person.
Plain text only: no markdown, no headers, no lists, no quotes around the answer.
Never invent events, people or plans that are not in the prompt.`

// 生成失败时使用的兜底文本
// Fallback text used when generation fails
const (
	FallbackWisdomTail = "Every moment matters"
	FallbackWorkday    = "Focus on one meaningful project today. What's the smallest step forward you can take right now?"
	FallbackRestDay    = "Today is yours to create with. What will bring you joy and connection today?"
	FallbackReflection = "Your recent notes hold a thread worth following. Which one thought from this week deserves more of your attention today?"
	FallbackBriefing   = "Focus on your calendar events and process your captures today."
)
