// Package compose 为块正文的每个部分构建提示词并调用生成后端，失败的部分各自回退到静态文本
// Package compose builds a prompt per block section and calls the generation backend; each failed section falls back to static text on its own.
package compose

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"insight/internal/defaults"
	"insight/internal/derive"
	"insight/internal/provider"
	"insight/internal/signals"
)

// Input 是一次组合所需的全部只读输入
// Input is everything a composition reads
type Input struct {
	Signals signals.Signals
	Context derive.Context
}

// Spec 描述一个生成部分的参数
// Spec describes the generation parameters of one part
type Spec struct {
	MaxWords    int
	Temperature float32
}

var (
	WisdomSpec     = Spec{MaxWords: 12, Temperature: 0.8}
	InsightSpec    = Spec{MaxWords: 70, Temperature: 0.9}
	ReflectionSpec = Spec{MaxWords: 40, Temperature: 0.7}
	BriefingSpec   = Spec{MaxWords: 60, Temperature: 0.4}
)

type Composer struct {
	gen           provider.Generator
	tok           *Tokenizer
	partTimeout   time.Duration
	journalBudget int
	briefing      bool
	logger        logrus.FieldLogger
}

type Option func(*Composer)

func WithTokenizer(tok *Tokenizer) Option {
	return func(c *Composer) { c.tok = tok }
}

// WithPartTimeout bounds each generation call.
func WithPartTimeout(d time.Duration) Option {
	return func(c *Composer) { c.partTimeout = d }
}

// WithJournalBudget 设置日记摘录的总 token 预算
// WithJournalBudget sets the total token budget of journal excerpts
func WithJournalBudget(tokens int) Option {
	return func(c *Composer) { c.journalBudget = tokens }
}

// WithBriefing toggles the briefing part.
func WithBriefing(enabled bool) Option {
	return func(c *Composer) { c.briefing = enabled }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Composer) { c.logger = logger }
}

func New(gen provider.Generator, opts ...Option) *Composer {
	c := &Composer{
		gen:           gen,
		partTimeout:   30 * time.Second,
		journalBudget: 600,
		briefing:      true,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tok == nil {
		c.tok = HeuristicTokenizer()
	}
	return c
}

// Compose 按展示顺序返回全部部分；从不因单个部分失败而返回错误
// Compose returns every part in display order; a failing part never fails the composition
func (c *Composer) Compose(ctx context.Context, in Input) []Part {
	dc := in.Context
	parts := []Part{
		c.wisdom(ctx, dc),
		special(dc),
		c.insight(ctx, in),
		c.reflection(ctx, in),
	}
	if c.briefing {
		parts = append(parts, c.briefingPart(ctx, in))
	}
	return parts
}

func (c *Composer) wisdom(ctx context.Context, dc derive.Context) Part {
	prefix := dayPrefix(dc.DayIndex, dc.Year)
	part := Part{
		Label:       LabelWisdom,
		MaxWords:    WisdomSpec.MaxWords,
		Temperature: WisdomSpec.Temperature,
		Priority:    priorityWisdom,
	}
	text, err := c.generate(ctx, part, wisdomPrompt(dc.DayIndex, dc.Year, part.MaxWords))
	if err != nil {
		return c.fallback(part, prefix+" "+defaults.FallbackWisdomTail, err)
	}
	part.Text = clipWords(withDayPrefix(stripQuotes(text), prefix), part.MaxWords)
	part.Generated = true
	return part
}

func special(dc derive.Context) Part {
	return Part{
		Label:    LabelSpecial,
		Text:     FormatSpecialEvent(dc.SpecialEvent),
		Priority: prioritySpecial,
		Optional: true,
	}
}

func (c *Composer) insight(ctx context.Context, in Input) Part {
	part := Part{
		Label:       LabelInsight,
		MaxWords:    InsightSpec.MaxWords,
		Temperature: InsightSpec.Temperature,
		Priority:    priorityInsight,
	}
	prompt := insightPrompt(in.Context.IsWorkday, in.Signals.Reference.Weekday(), part.MaxWords)
	text, err := c.generate(ctx, part, prompt)
	if err != nil {
		return c.fallback(part, insightFallback(in.Context), err)
	}
	part.Text = clipWords(text, part.MaxWords)
	part.Generated = true
	return part
}

func (c *Composer) reflection(ctx context.Context, in Input) Part {
	part := Part{
		Label:       LabelReflection,
		MaxWords:    ReflectionSpec.MaxWords,
		Temperature: ReflectionSpec.Temperature,
		Priority:    priorityReflection,
		Optional:    true,
	}
	if len(in.Signals.Journal) == 0 {
		return part
	}
	excerpts := journalExcerpts(in.Signals.Journal, c.tok, c.journalBudget)
	text, err := c.generate(ctx, part, reflectionPrompt(excerpts, part.MaxWords))
	if err != nil {
		return c.fallback(part, defaults.FallbackReflection, err)
	}
	part.Text = clipWords(text, part.MaxWords)
	part.Generated = true
	return part
}

func (c *Composer) briefingPart(ctx context.Context, in Input) Part {
	part := Part{
		Label:       LabelBriefing,
		MaxWords:    BriefingSpec.MaxWords,
		Temperature: BriefingSpec.Temperature,
		Priority:    priorityBriefing,
		Optional:    true,
	}
	text, err := c.generate(ctx, part, briefingPrompt(in, c.tok, c.journalBudget, part.MaxWords))
	if err != nil {
		return c.fallback(part, defaults.FallbackBriefing, err)
	}
	part.Text = clipWords(text, part.MaxWords)
	part.Generated = true
	return part
}

func (c *Composer) generate(ctx context.Context, part Part, prompt string) (string, error) {
	if c.gen == nil {
		return "", provider.ErrEmptyCompletion
	}
	callCtx := ctx
	if c.partTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.partTimeout)
		defer cancel()
	}
	start := time.Now()
	text, err := c.gen.Complete(callCtx, provider.CompletionRequest{
		System:      defaults.DefaultSystemPrompt,
		Prompt:      prompt,
		Temperature: part.Temperature,
		MaxTokens:   maxTokensFor(part.MaxWords),
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", provider.ErrEmptyCompletion
	}
	c.logger.WithFields(logrus.Fields{
		"part":  part.Label,
		"words": WordCount(text),
		"took":  time.Since(start).Round(time.Millisecond),
	}).Debug("part generated")
	return text, nil
}

func (c *Composer) fallback(part Part, text string, err error) Part {
	c.logger.WithField("part", part.Label).WithError(err).Warn("generation failed, using fallback")
	part.Text = text
	part.Fallback = true
	part.Err = err
	return part
}
