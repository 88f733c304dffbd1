// ABOUTME: Shared fakes and fixtures for core tests
// ABOUTME: Scripted replies are chosen by recognizable phrases in each prompt

package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/harper/distill/internal/llm"
)

const sampleDocument = `Docker Basics

Docker packages applications into containers. Containers share the host kernel but isolate processes and filesystems.

Images are read-only templates used to create containers. An image is built from a Dockerfile, which lists instructions such as FROM, RUN and COPY.

Volumes persist data outside the container lifecycle. Networks connect containers to each other and to the outside world.

Compose describes multi-container applications in a YAML file. Registries store and distribute images between machines.`

const studySetReply = "Here you go:\n```json\n" + `{
  "flashcards": [
    {"front": "What does Docker package applications into?", "back": "Containers"},
    {"front": "What is a Docker image?", "back": "A read-only template used to create containers."},
    {"front": "What file is used to build an image?", "back": "A Dockerfile"},
    {"front": "What do volumes provide?", "back": "Data that persists outside the container lifecycle."},
    {"front": "What does Compose describe?", "back": "Multi-container applications in a YAML file."}
  ],
  "quiz": [
    {"question": "What do containers share with the host?", "options": ["The kernel", "The BIOS", "The GPU driver only", "Nothing"], "answer": "a"},
    {"question": "Which instruction starts a Dockerfile?", "options": ["RUN", "FROM", "COPY", "EXPOSE"], "answer": "b"},
    {"question": "Where are images stored and distributed?", "options": ["Volumes", "Networks", "Registries", "Compose"], "answer": "c"},
    {"question": "What keeps data beyond a container's life?", "options": ["Images", "Networks", "Layers", "Volumes"], "answer": "d"},
    {"question": "What connects containers to each other?", "options": ["Networks", "Volumes", "Images", "Registries"], "answer": "a"}
  ]
}` + "\n```"

// scriptedReply answers each prompt type with a fixed, well-formed reply
func scriptedReply(prompt string) string {
	switch {
	case strings.Contains(prompt, "Summarize the text into 3 concise bullets"):
		return "• Containers isolate processes\n• Images are templates for containers\n• Volumes persist data"
	case strings.Contains(prompt, "Merge these bullet groups"):
		return "• Docker packages apps into containers\n• Images build containers\n• Volumes keep data"
	case strings.Contains(prompt, "identify the primary framework"):
		return "Docker"
	case strings.Contains(prompt, "Create study material"):
		return studySetReply
	case strings.Contains(prompt, "Create a concept map"):
		return `{"nodes":[{"id":"1","label":"Docker","level":1},{"id":"2","title":"Images"}],"edges":[{"from":"1","to":"2","label":"uses"},{"source":"1","target":"9"}]}`
	case strings.Contains(prompt, "step-by-step workflow"):
		return `{"steps":["Write a Dockerfile","Build the image","Run the container"]}`
	case strings.Contains(prompt, "Summarize what the material says about"):
		return "• Volumes persist data\n• Volumes outlive containers"
	default:
		return "Happy to help with that."
	}
}

func joinPrompt(contents []string) string {
	return strings.Join(contents, "\n")
}

// scriptedGenerator implements Generator in-process
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) string
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{reply: scriptedReply}
}

func (g *scriptedGenerator) Generate(_ context.Context, msgs []llm.Message, _ ...llm.GenerateOption) string {
	contents := make([]string, len(msgs))
	for i, m := range msgs {
		contents[i] = m.Content
	}
	p := joinPrompt(contents)
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	return g.reply(p)
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// countingTransport is a chat transport that counts requests
type countingTransport struct {
	calls atomic.Int64
}

func (t *countingTransport) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	t.calls.Add(1)
	contents := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		contents[i] = m.Content
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: scriptedReply(joinPrompt(contents))},
		}},
	}, nil
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

// syntheticDocument builds a document of exactly n words in paragraphs of 50
func syntheticDocument(n int) string {
	vocab := []string{"kernel", "scheduler", "process", "memory", "paging", "interrupt", "thread", "mutex", "syscall", "driver", "cache", "filesystem"}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		switch {
		case i == 0:
		case i%50 == 0:
			sb.WriteString(".\n\n")
		case i%10 == 0:
			sb.WriteString(". ")
		default:
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("%s%d", vocab[i%len(vocab)], i%7))
	}
	sb.WriteString(".")
	return sb.String()
}
