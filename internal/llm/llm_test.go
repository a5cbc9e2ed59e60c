package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
)

var fastPolicy = Policy{Attempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
	}{
		{"bare", `{"description": "x"}`, "description"},
		{"fenced json", "```json\n{\"modality\": \"代码\"}\n```", "modality"},
		{"fenced plain", "```\n{\"domain\": \"基础通用\"}\n```", "domain"},
		{"prose", "Here you go:\n{\"use_case\": \"模型评测\"}\nThanks!", "use_case"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if _, ok := obj[tt.key]; !ok {
				t.Errorf("missing key %q in %v", tt.key, obj)
			}
		})
	}

	for _, bad := range []string{"", "not json", "[1,2,3]", "{broken"} {
		if _, err := ExtractJSON(bad); !errors.Is(err, ErrParse) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrParse", bad, err)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls int
	got, err := Retry(context.Background(), fastPolicy, zap.NewNop(), "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	var calls int
	sentinel := errors.New("always")
	_, err := Retry(context.Background(), fastPolicy, zap.NewNop(), "analyze", func(ctx context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped sentinel", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err = %q, want attempt count", err)
	}
}

func TestRetryAppliesPerAttemptTimeout(t *testing.T) {
	p := Policy{Attempts: 1, Timeout: 10 * time.Millisecond}
	_, err := Retry(context.Background(), p, zap.NewNop(), "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, BaseDelay: time.Hour}
	var calls int
	_, err := Retry(ctx, p, zap.NewNop(), "cancel", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCompleteJSONRequiredFields(t *testing.T) {
	var n int32
	m := &Mock{Respond: func(ctx context.Context, req Request) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return `{"description": "only this"}`, nil
		}
		return `{"description": "d", "modality": "代码"}`, nil
	}}

	obj, err := CompleteJSON(context.Background(), m, Request{Prompt: "p"}, fastPolicy, []string{"description", "modality"}, zap.NewNop(), "analyze")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if obj["modality"] != "代码" {
		t.Errorf("modality = %v", obj["modality"])
	}
	if len(m.Calls()) != 2 {
		t.Errorf("calls = %d, want 2 (first answer incomplete)", len(m.Calls()))
	}
}

func TestCompleteJSONExhausted(t *testing.T) {
	m := &Mock{Respond: func(ctx context.Context, req Request) (string, error) {
		return "I cannot answer that", nil
	}}
	_, err := CompleteJSON(context.Background(), m, Request{}, fastPolicy, nil, zap.NewNop(), "analyze")
	if !errors.Is(err, ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestMockOffline(t *testing.T) {
	m := &Mock{}
	if !IsOffline(m) {
		t.Error("unscripted mock should be offline")
	}
	if _, err := m.Complete(context.Background(), Request{}); !errors.Is(err, ErrOffline) {
		t.Errorf("err = %v, want ErrOffline", err)
	}
	scripted := &Mock{Respond: func(context.Context, Request) (string, error) { return "{}", nil }}
	if IsOffline(scripted) {
		t.Error("scripted mock should not be offline")
	}
}

func TestOpenAIComplete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"ok\": true}  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "glm"}, zap.NewNop())
	out, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello", Temperature: 0.1, MaxTokens: 100, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok": true}` {
		t.Errorf("out = %q", out)
	}
	if got.Model != "glm" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", got.ResponseFormat)
	}
}

func TestOpenAIErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	if _, err := c.Complete(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("429 err = %v, want ErrRateLimited", err)
	}

	status = http.StatusInternalServerError
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("500 err = %v", err)
	}

	noKey := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, zap.NewNop())
	if _, err := noKey.Complete(context.Background(), Request{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestNewProviders(t *testing.T) {
	c, err := New(context.Background(), config.LLM{Provider: "mock"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New(mock): %v", err)
	}
	if !IsOffline(c) {
		t.Error("mock provider should be offline")
	}

	c, err = New(context.Background(), config.LLM{Provider: "openai", APIKey: "k", BaseURL: "http://localhost"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New(openai): %v", err)
	}
	if _, ok := c.(*OpenAIClient); !ok {
		t.Errorf("New(openai) = %T", c)
	}

	if _, err := New(context.Background(), config.LLM{Provider: "gemini"}, zap.NewNop()); err == nil {
		t.Error("gemini without key should fail")
	}
	if _, err := New(context.Background(), config.LLM{Provider: "llama"}, zap.NewNop()); err == nil {
		t.Error("unknown provider should fail")
	}
}
