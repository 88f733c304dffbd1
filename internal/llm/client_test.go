// ABOUTME: Tests for the admission-limited, retrying model client
// ABOUTME: Uses a scripted fake transport; delays are kept in milliseconds
package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
)

type scriptedReply struct {
	text      string
	err       error
	noChoices bool
	block     bool
}

type fakeChat struct {
	mu       sync.Mutex
	script   []scriptedReply
	calls    int
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	requests []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	var r scriptedReply
	if len(f.script) > 0 {
		if idx >= len(f.script) {
			idx = len(f.script) - 1
		}
		r = f.script[idx]
	}
	f.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return openai.ChatCompletionResponse{}, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	if r.noChoices {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: r.text}}},
	}, nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *ClientConfig {
	cfg := DefaultConfig("test-key")
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.Timeout = 2 * time.Second
	cfg.AttemptTimeout = time.Second
	return cfg
}

func throttled() error {
	return &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached. Please try again in 10ms."}
}

func newTestClient(f *fakeChat, cfg *ClientConfig) *ModelClient {
	return NewModelClient(f, cfg, log.New(io.Discard))
}

var prompt = []Message{System("be brief"), User("hello")}

func TestModelClient_ReturnsFirstChoice(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{text: "hi there"}}}
	c := newTestClient(f, testConfig())

	if got := c.Generate(context.Background(), prompt); got != "hi there" {
		t.Errorf("Generate() = %q, want %q", got, "hi there")
	}
	if len(f.requests) != 1 || len(f.requests[0].Messages) != 2 {
		t.Fatalf("unexpected requests: %+v", f.requests)
	}
	if f.requests[0].Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %s, want system", f.requests[0].Messages[0].Role)
	}
}

func TestModelClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{err: throttled()}, {text: "ok"}}}
	c := newTestClient(f, testConfig())

	if got := c.Generate(context.Background(), prompt); got != "ok" {
		t.Errorf("Generate() = %q, want ok", got)
	}
	if f.callCount() != 2 {
		t.Errorf("expected 2 calls, got %d", f.callCount())
	}
}

func TestModelClient_RetryBudgetIsBounded(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{err: throttled()}}}
	cfg := testConfig()
	cfg.MaxRetries = 2
	c := newTestClient(f, cfg)

	if got := c.Generate(context.Background(), prompt); got != "" {
		t.Errorf("Generate() = %q, want empty", got)
	}
	if f.callCount() != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", f.callCount())
	}
}

func TestModelClient_DoesNotRetryClientErrors(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{err: &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}}}}
	c := newTestClient(f, testConfig())

	if got := c.Generate(context.Background(), prompt); got != "" {
		t.Errorf("Generate() = %q, want empty", got)
	}
	if f.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", f.callCount())
	}
}

func TestModelClient_DoesNotRetryServerErrorsMentioningTimeout(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{
		{err: &openai.APIError{HTTPStatusCode: 500, Message: "upstream timeout while loading model"}},
		{text: "should not be reached"},
	}}
	c := newTestClient(f, testConfig())

	if got := c.Generate(context.Background(), prompt); got != "" {
		t.Errorf("Generate() = %q, want empty", got)
	}
	if f.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", f.callCount())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttled", throttled(), true},
		{"deadline", context.DeadlineExceeded, true},
		{"transport timeout text", errors.New("dial tcp: i/o timeout"), true},
		{"server error mentioning timeout", &openai.APIError{HTTPStatusCode: 500, Message: "timeout"}, false},
		{"request error mentioning timeout", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("gateway timeout")}, false},
		{"bad request", &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestModelClient_RetriesTimeout(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{err: context.DeadlineExceeded}, {text: "late but fine"}}}
	c := newTestClient(f, testConfig())

	if got := c.Generate(context.Background(), prompt); got != "late but fine" {
		t.Errorf("Generate() = %q", got)
	}
}

func TestModelClient_NoChoicesYieldsEmpty(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{noChoices: true}}}
	c := newTestClient(f, testConfig())

	if got := c.Generate(context.Background(), prompt); got != "" {
		t.Errorf("Generate() = %q, want empty", got)
	}
	if f.callCount() != 1 {
		t.Errorf("malformed success should not be retried, got %d calls", f.callCount())
	}
}

func TestModelClient_HardTimeout(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{block: true}}}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.AttemptTimeout = 0
	c := newTestClient(f, cfg)

	start := time.Now()
	got := c.Generate(context.Background(), prompt)
	if got != "" {
		t.Errorf("Generate() = %q, want empty", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("hard timeout not enforced, took %v", elapsed)
	}
}

func TestModelClient_AdmissionLimit(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{text: "x"}}, delay: 20 * time.Millisecond}
	cfg := testConfig()
	cfg.MaxConcurrent = 2
	c := newTestClient(f, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Generate(context.Background(), prompt)
		}()
	}
	wg.Wait()

	if peak := f.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight calls = %d, want <= 2", peak)
	}
	if c.Calls() != 8 {
		t.Errorf("Calls() = %d, want 8", c.Calls())
	}
}

func TestModelClient_Offline(t *testing.T) {
	c := NewModelClient(nil, testConfig(), log.New(io.Discard))
	if !c.Offline() {
		t.Error("nil transport should be offline")
	}
	if got := c.Generate(context.Background(), prompt); got != "" {
		t.Errorf("offline Generate() = %q", got)
	}
}

func TestModelClient_JSONMode(t *testing.T) {
	f := &fakeChat{script: []scriptedReply{{text: "{}"}}}
	c := newTestClient(f, testConfig())
	c.Generate(context.Background(), prompt, WithJSON(), WithTemperature(0.2), WithMaxTokens(64))

	req := f.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Error("expected JSON response format")
	}
	if req.Temperature != 0.2 || req.MaxTokens != 64 {
		t.Errorf("options not applied: temperature=%v max_tokens=%d", req.Temperature, req.MaxTokens)
	}
}

func TestStatusCode(t *testing.T) {
	if statusCode(throttled()) != 429 {
		t.Error("APIError status not extracted")
	}
	if statusCode(&openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}) != 503 {
		t.Error("RequestError status not extracted")
	}
	if statusCode(errors.New("plain")) != 0 {
		t.Error("plain errors carry no status")
	}
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(&ClientConfig{}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := NewOpenAIClient(&ClientConfig{APIKey: "k", BaseURL: "https://api.groq.com/openai/v1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
