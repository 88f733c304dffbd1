// ABOUTME: Concurrency-limited, retrying client for an OpenAI-compatible chat endpoint
// ABOUTME: Ordinary remote failures yield an empty string instead of an error
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/util"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
)

// ClientConfig holds configuration for the model client and embedder
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel openai.EmbeddingModel
	EmbeddingBatch int
	Dimension      int
	Timeout        time.Duration
	AttemptTimeout time.Duration
	MaxConcurrent  int
	MaxRetries     int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:         apiKey,
		ChatModel:      DefaultChatModel,
		EmbeddingModel: DefaultEmbeddingModel,
		EmbeddingBatch: 32,
		Dimension:      models.EmbeddingDimension,
		Timeout:        90 * time.Second,
		AttemptTimeout: 30 * time.Second,
		MaxConcurrent:  2,
		MaxRetries:     1,
		RetryDelay:     2 * time.Second,
		MaxRetryDelay:  20 * time.Second,
	}
}

// NewOpenAIClient builds the go-openai client both transports run on.
// BaseURL points it at any OpenAI-compatible endpoint.
func NewOpenAIClient(config *ClientConfig) (*openai.Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}
	return openai.NewClientWithConfig(oc), nil
}

// ChatTransport is the remote generation endpoint
type ChatTransport interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Message is one (role, content) pair of a prompt
type Message struct {
	Role    models.Role
	Content string
}

// System builds a system message
func System(content string) Message { return Message{Role: models.RoleSystem, Content: content} }

// User builds a user message
func User(content string) Message { return Message{Role: models.RoleUser, Content: content} }

// Assistant builds an assistant message
func Assistant(content string) Message { return Message{Role: models.RoleAssistant, Content: content} }

type generateOptions struct {
	temperature float32
	maxTokens   int
	jsonMode    bool
}

// GenerateOption tunes a single Generate call
type GenerateOption func(*generateOptions)

// WithTemperature sets the sampling temperature
func WithTemperature(t float32) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithMaxTokens caps the completion length
func WithMaxTokens(n int) GenerateOption {
	return func(o *generateOptions) { o.maxTokens = n }
}

// WithJSON asks the endpoint for a JSON object reply
func WithJSON() GenerateOption {
	return func(o *generateOptions) { o.jsonMode = true }
}

// ModelClient admits at most MaxConcurrent generation calls at once and
// retries throttled or timed-out calls. A nil transport runs offline and
// always returns "".
type ModelClient struct {
	transport      ChatTransport
	model          string
	sem            *semaphore.Weighted
	policy         util.Policy
	timeout        time.Duration
	attemptTimeout time.Duration
	logger         *log.Logger
	calls          atomic.Int64
}

// NewModelClient wraps transport with admission control and retries
func NewModelClient(transport ChatTransport, config *ClientConfig, logger *log.Logger) *ModelClient {
	if logger == nil {
		logger = log.Default()
	}
	limit := config.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	c := &ModelClient{
		transport:      transport,
		model:          config.ChatModel,
		sem:            semaphore.NewWeighted(int64(limit)),
		timeout:        config.Timeout,
		attemptTimeout: config.AttemptTimeout,
		logger:         logger,
	}
	c.policy = util.Policy{
		MaxRetries: config.MaxRetries,
		BaseDelay:  config.RetryDelay,
		MaxDelay:   config.MaxRetryDelay,
		Retryable:  isRetryable,
		Hint:       retryHint,
	}
	return c
}

// Offline reports whether the client has no transport
func (c *ModelClient) Offline() bool {
	return c == nil || c.transport == nil
}

// Calls returns how many transport requests have been issued
func (c *ModelClient) Calls() int64 {
	return c.calls.Load()
}

// Generate sends msgs and returns the first completion's text, or "" when
// the call fails for any remote reason.
func (c *ModelClient) Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) string {
	if c.Offline() || len(msgs) == 0 {
		return ""
	}

	o := generateOptions{temperature: 0.7}
	for _, opt := range opts {
		opt(&o)
	}
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(msgs),
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
	if o.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.logger.Warn("generation not admitted", "err", err, "waited", time.Since(start))
		return ""
	}
	defer c.sem.Release(1)

	var text string
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		actx := ctx
		if c.attemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
			defer cancel()
		}

		c.calls.Add(1)
		resp, err := c.transport.CreateChatCompletion(actx, req)
		if err != nil {
			c.logger.Debug("generation attempt failed", "attempt", attempt+1, "status", statusCode(err), "err", err)
			return err
		}
		if len(resp.Choices) == 0 {
			c.logger.Warn("generation returned no choices", "model", c.model)
			return nil
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		c.logger.Warn("generation failed", "status", statusCode(err), "elapsed", time.Since(start), "err", err)
		return ""
	}
	return text
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// statusCode returns the HTTP status carried by a go-openai error, or 0
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isRetryable accepts throttling (429) and transport timeouts only
func isRetryable(err error) bool {
	if statusCode(err) == http.StatusTooManyRequests {
		return true
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// A server answer is judged by its status, not its wording
	if code := statusCode(err); code != 0 && code != http.StatusTooManyRequests {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func retryHint(err error) (time.Duration, bool) {
	if statusCode(err) != http.StatusTooManyRequests {
		return 0, false
	}
	return util.ParseRetryHint(err.Error())
}
