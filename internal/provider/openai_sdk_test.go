package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildSDKRequest(t *testing.T) {
	req := buildSDKRequest("gpt-4o-mini", CompletionRequest{
		System:      "You are terse.",
		Prompt:      "Say hi",
		Temperature: 0.8,
		MaxTokens:   30,
	})
	if req.Model != "gpt-4o-mini" || req.Temperature != 0.8 || req.MaxCompletionTokens != 30 || req.MaxTokens != 0 || req.Stream {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "Say hi" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}

	noSystem := buildSDKRequest("m", CompletionRequest{Prompt: "x"})
	if len(noSystem.Messages) != 1 || noSystem.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", noSystem.Messages)
	}
}

func TestCompleteAgainstCompatServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization=%q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["model"] != "test-model" || body["max_completion_tokens"] != float64(40) {
			t.Fatalf("unexpected body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Day 1 of 2025. Begin.  "},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "test-model", TimeoutMS: 5000})
	text, err := p.Complete(context.Background(), CompletionRequest{Prompt: "go", Temperature: 0.7, MaxTokens: 40})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Day 1 of 2025. Begin." {
		t.Fatalf("text=%q", text)
	}
	if u := p.Usage(); u.TotalTokens != 15 {
		t.Fatalf("usage=%+v", u)
	}
}

func TestCompleteReasoningModels(t *testing.T) {
	for _, model := range []string{"gpt-5-mini", "o3-mini", "openai/o4-mini"} {
		t.Run(model, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Begin."}}]}`)
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: model})
			text, err := p.Complete(context.Background(), CompletionRequest{System: "s", Prompt: "x", Temperature: 0.8, MaxTokens: 30})
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if text != "Begin." {
				t.Fatalf("text=%q", text)
			}
			if body["max_completion_tokens"] != float64(30+reasoningHeadroom) {
				t.Fatalf("max_completion_tokens missing: %+v", body)
			}
			if _, ok := body["max_tokens"]; ok {
				t.Fatalf("max_tokens must not be sent: %+v", body)
			}
			if _, ok := body["temperature"]; ok {
				t.Fatalf("temperature must not be sent: %+v", body)
			}
		})
	}
}

func TestIsReasoningModel(t *testing.T) {
	cases := map[string]bool{
		"gpt-5-mini":     true,
		"o1":             true,
		"O3-mini":        true,
		"openai/o4-mini": true,
		"gpt-4o-mini":    false,
		"deepseek-chat":  false,
		"":               false,
	}
	for model, want := range cases {
		if got := isReasoningModel(model); got != want {
			t.Errorf("isReasoningModel(%q)=%v want %v", model, got, want)
		}
	}
}

func TestCompleteEmptyAndErrors(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"   "}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}

	status = http.StatusServiceUnavailable
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
		t.Fatalf("expected error for 503")
	}
}

func TestSetModel(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{Model: "a"})
	if err := p.SetModel("  "); err == nil {
		t.Fatalf("expected error for empty model")
	}
	if err := p.SetModel("b"); err != nil || p.CurrentModel() != "b" {
		t.Fatalf("SetModel: err=%v model=%q", err, p.CurrentModel())
	}
}
