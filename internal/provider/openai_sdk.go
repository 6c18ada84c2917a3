package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"insight/internal/config"
)

// OpenAIProvider 使用 go-openai SDK 的 Generator 实现（非流式）
// OpenAIProvider implements Generator using the go-openai SDK (non-streaming)
type OpenAIProvider struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	mu         sync.RWMutex

	usageMu sync.Mutex
	usage   Usage
}

// OpenAIConfig SDK provider 配置
// OpenAIConfig is the SDK provider configuration
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	TimeoutMS int
}

func ConfigFrom(cfg config.ProviderConfig) OpenAIConfig {
	return OpenAIConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		TimeoutMS: cfg.TimeoutMS,
	}
}

// NewOpenAIProvider 创建基于 SDK 的 provider
// NewOpenAIProvider creates an SDK-based provider
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		sdkCfg.BaseURL = base
	}

	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	sdkCfg.HTTPClient = httpClient

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(sdkCfg),
		httpClient: httpClient,
		model:      cfg.Model,
	}
}

func (p *OpenAIProvider) CurrentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model is empty")
	}
	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

// Usage 返回本进程累计的 token 用量
// Usage returns the tokens consumed so far by this process
func (p *OpenAIProvider) Usage() Usage {
	p.usageMu.Lock()
	defer p.usageMu.Unlock()
	return p.usage
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.CurrentModel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, buildSDKRequest(model, req))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	p.addUsage(resp.Usage)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion has no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func buildSDKRequest(model string, req CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	out := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            messages,
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxTokens,
	}
	// 推理模型只接受默认温度，且推理 token 计入上限
	// Reasoning models only accept the default temperature and count reasoning tokens against the cap
	if isReasoningModel(model) {
		if out.Temperature != 1 {
			out.Temperature = 0
		}
		if out.MaxCompletionTokens > 0 {
			out.MaxCompletionTokens += reasoningHeadroom
		}
	}
	return out
}

// reasoningHeadroom 为推理模型额外预留的 token 数
// reasoningHeadroom is the extra token allowance for reasoning models
const reasoningHeadroom = 512

// isReasoningModel 判断是否为 o 系列或 gpt-5 系列模型
// isReasoningModel reports whether model is an o-series or gpt-5 family model
func isReasoningModel(model string) bool {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) addUsage(u openai.Usage) {
	p.usageMu.Lock()
	p.usage.PromptTokens += u.PromptTokens
	p.usage.CompletionTokens += u.CompletionTokens
	p.usage.TotalTokens += u.TotalTokens
	p.usageMu.Unlock()
}
