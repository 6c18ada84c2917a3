package provider

import (
	"context"
	"errors"
)

// ErrEmptyCompletion 表示后端返回了空文本
// ErrEmptyCompletion means the backend returned no text
var ErrEmptyCompletion = errors.New("completion is empty")

// CompletionRequest 封装一次单轮生成请求
// CompletionRequest wraps a single-turn generation call
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Usage token 用量统计
// Usage reports token consumption
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator 文本生成后端接口；调用方负责失败时的兜底
// Generator is the text generation backend; callers own the fallback on failure
type Generator interface {
	// Complete 同步生成一段文本
	// Complete generates one piece of text synchronously
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// CurrentModel 返回当前活跃模型
	// CurrentModel returns the current active model
	CurrentModel() string
}
