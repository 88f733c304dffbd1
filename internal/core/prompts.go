// ABOUTME: PromptBuilder assembles generation prompts from retrieval context and hints
// ABOUTME: Enforces a context token budget so long documents never overflow a request
package core

import (
	"fmt"
	"strings"

	"github.com/harper/distill/internal/llm"
	"github.com/harper/distill/internal/models"
)

// DefaultContextTokens bounds retrieval context per prompt (4 chars ≈ 1 token)
const DefaultContextTokens = 3000

const tutorPersona = "You are Distill, a patient technical tutor who turns documents into study material."

// studySet is the structured reply for flashcard and quiz generation
type studySet struct {
	Flashcards []models.Flashcard `json:"flashcards"`
	Quiz       []models.QuizItem  `json:"quiz"`
}

// workflowReply is the structured reply for workflow generation
type workflowReply struct {
	Steps []string `json:"steps"`
}

// PromptBuilder builds the message sequences sent to the model client
type PromptBuilder struct {
	maxContextTokens int
}

// NewPromptBuilder creates a builder with the given context budget
func NewPromptBuilder(maxContextTokens int) *PromptBuilder {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultContextTokens
	}
	return &PromptBuilder{maxContextTokens: maxContextTokens}
}

// ChunkSummary asks for three bullets about one chunk
func (pb *PromptBuilder) ChunkSummary(chunk string, level models.ExplanationLevel) []llm.Message {
	return []llm.Message{
		llm.System("Summarize the text into 3 concise bullets. " + level.Hint()),
		llm.User(pb.limitTokens(chunk)),
	}
}

// ReduceSummary merges mapped bullet groups into a cheat sheet
func (pb *PromptBuilder) ReduceSummary(mapped []string, level models.ExplanationLevel) []llm.Message {
	return []llm.Message{
		llm.User(fmt.Sprintf(
			"You are creating a training cheat-sheet. %s Merge these bullet groups into at most 10 key bullets, one per line, each starting with \"• \":\n%s",
			level.Hint(), pb.limitTokens(strings.Join(mapped, "\n")))),
	}
}

// Framework asks for a single framework tag
func (pb *PromptBuilder) Framework(text string) []llm.Message {
	names := make([]string, len(models.Frameworks))
	for i, f := range models.Frameworks {
		names[i] = "- " + string(f)
	}
	return []llm.Message{
		llm.User(fmt.Sprintf(
			"Analyze this text and identify the primary framework, tool, or technology category.\nReturn only one of these exact values:\n%s\n\nText: %s",
			strings.Join(names, "\n"), truncateRunes(text, 1000))),
	}
}

// StudySet asks for five flashcards and five quiz questions
func (pb *PromptBuilder) StudySet(summary, retrieval, topic string, level models.ExplanationLevel) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Create study material. " + level.Hint() + "\n")
	sb.WriteString("1. 5 flashcards as objects with \"front\" (10-200 characters) and \"back\" (5-200 characters).\n")
	sb.WriteString("2. 5 multiple-choice questions with \"question\", exactly 4 \"options\", and \"answer\" as the letter a, b, c or d.\n")
	if topic != "" {
		sb.WriteString("Focus on: " + topic + "\n")
	}
	sb.WriteString("Return only JSON matching this schema: " + llm.SchemaFor[studySet]() + "\n\n")
	sb.WriteString(pb.sections(summary, retrieval))
	return []llm.Message{llm.System(tutorPersona), llm.User(sb.String())}
}

// ConceptMap asks for a small concept graph
func (pb *PromptBuilder) ConceptMap(summary string) []llm.Message {
	return []llm.Message{
		llm.User(fmt.Sprintf(
			"Create a concept map from this summary. Use short ids, level 1 for core concepts and 2 for supporting ones. Return only JSON matching this schema: %s\n\nSummary: %s",
			llm.SchemaFor[models.ConceptMap](), pb.limitTokens(summary))),
	}
}

// Workflow asks for an ordered list of steps
func (pb *PromptBuilder) Workflow(summary, retrieval, topic string, level models.ExplanationLevel) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Turn the material into a step-by-step workflow of 4 to 8 steps. " + level.Hint() + "\n")
	if topic != "" {
		sb.WriteString("The workflow should accomplish: " + topic + "\n")
	}
	sb.WriteString("Return only JSON matching this schema: " + llm.SchemaFor[workflowReply]() + "\n\n")
	sb.WriteString(pb.sections(summary, retrieval))
	return []llm.Message{llm.System(tutorPersona), llm.User(sb.String())}
}

// Summary asks for topic-focused bullets over retrieved context
func (pb *PromptBuilder) Summary(retrieval, topic string, level models.ExplanationLevel) []llm.Message {
	return []llm.Message{
		llm.System(tutorPersona + " " + level.Hint()),
		llm.User(fmt.Sprintf("Summarize what the material says about %q in at most 8 bullets, one per line, each starting with \"• \".\n\n%s",
			topic, pb.sections("", retrieval))),
	}
}

// Explanation asks for a grounded explanation of a topic
func (pb *PromptBuilder) Explanation(topic, summary, retrieval string, level models.ExplanationLevel) []llm.Message {
	return []llm.Message{
		llm.System(tutorPersona + " " + level.Hint() + " Answer using the provided material and say so when it does not cover the question."),
		llm.User(pb.sections(summary, retrieval) + "QUESTION:\n" + topic),
	}
}

// Chat builds a conversational prompt from history and optional document context
func (pb *PromptBuilder) Chat(history []models.Message, doc *models.DocumentContext, retrieval string, level models.ExplanationLevel) []llm.Message {
	msgs := []llm.Message{llm.System(tutorPersona + " " + level.Hint() +
		" Help the user learn and understand concepts. Be encouraging and educational.")}
	if doc != nil {
		msgs = append(msgs, llm.System("Document context:\n"+pb.sections(doc.Summary, retrieval)+
			"Use this information to give specific and relevant answers."))
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// Attached asks for an overview reply after a document upload
func (pb *PromptBuilder) Attached(summary string, level models.ExplanationLevel) []llm.Message {
	return []llm.Message{
		llm.System(fmt.Sprintf("%s %s\n\nA document has been uploaded and processed. Here's a summary of its content:\n\n%s\n\nDescribe what the document covers and how you can help the user learn from it.",
			tutorPersona, level.Hint(), pb.limitTokens(summary))),
		llm.User("I've uploaded a document. What can you tell me about it and how can you help me learn from it?"),
	}
}

func (pb *PromptBuilder) sections(summary, retrieval string) string {
	var sb strings.Builder
	if summary != "" {
		sb.WriteString("SUMMARY:\n" + summary + "\n\n")
	}
	if retrieval != "" {
		budget := pb.maxContextTokens - len(summary)/4
		sb.WriteString("RELEVANT EXCERPTS:\n" + limitTokens(retrieval, budget) + "\n\n")
	}
	return sb.String()
}

func (pb *PromptBuilder) limitTokens(text string) string {
	return limitTokens(text, pb.maxContextTokens)
}

// limitTokens trims text to roughly maxTokens tokens (4 chars ≈ 1 token),
// cutting at a word boundary
func limitTokens(text string, maxTokens int) string {
	if maxTokens < 50 {
		maxTokens = 50
	}
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if i := strings.LastIndexAny(cut, " \n\t"); i > maxChars/2 {
		cut = cut[:i]
	}
	return cut + "... [truncated]"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
