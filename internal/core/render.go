// ABOUTME: Plain-text rendering of generated content for chat replies and the CLI
// ABOUTME: Also builds the canned replies used when the model is unavailable
package core

import (
	"fmt"
	"strings"

	"github.com/harper/distill/internal/models"
)

// RenderText formats content as readable plain text
func RenderText(c *models.GeneratedContent) string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	switch c.Kind {
	case models.KindSummary:
		sb.WriteString("Here are the key points:\n\n")
		sb.WriteString(JoinBullets(c.Bullets))
	case models.KindFlashcards:
		sb.WriteString("Flashcards:\n")
		for i, f := range c.Flashcards {
			fmt.Fprintf(&sb, "\n%d. Q: %s\n   A: %s\n", i+1, f.Front, f.Back)
		}
	case models.KindQuiz:
		sb.WriteString("Quiz:\n")
		for i, q := range c.Quiz {
			fmt.Fprintf(&sb, "\n%d. %s\n", i+1, q.Question)
			for j, o := range q.Options {
				fmt.Fprintf(&sb, "   %s) %s\n", answerLetters[j%len(answerLetters)], o)
			}
		}
		sb.WriteString("\nReply with your answers and I'll check them.")
	case models.KindConceptMap:
		sb.WriteString(RenderConceptMap(c.ConceptMap))
	case models.KindWorkflow:
		sb.WriteString("Workflow:\n")
		for i, s := range c.Workflow {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, s)
		}
	default:
		sb.WriteString(c.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderConceptMap lists each concept with its outgoing links
func RenderConceptMap(cm *models.ConceptMap) string {
	if cm.IsEmpty() {
		return "No concepts found."
	}
	labels := make(map[string]string, len(cm.Nodes))
	for _, n := range cm.Nodes {
		labels[n.ID] = n.Label
	}
	var sb strings.Builder
	sb.WriteString("Concept map:\n")
	for _, n := range cm.Nodes {
		indent := "  "
		if n.Level > 1 {
			indent = strings.Repeat("  ", n.Level)
		}
		fmt.Fprintf(&sb, "%s- %s\n", indent, n.Label)
		for _, e := range cm.Edges {
			if e.From == n.ID {
				fmt.Fprintf(&sb, "%s    %s -> %s\n", indent, e.Label, labels[e.To])
			}
		}
	}
	return sb.String()
}

func clarifyReply(cls models.IntentClassification) string {
	var sb strings.Builder
	sb.WriteString("I'm not sure what you'd like to do. You could try:\n")
	for _, s := range cls.Suggestions {
		sb.WriteString("\n• " + s)
	}
	return sb.String()
}

func attachedReply(filename string, rec *models.LessonRecord) string {
	name := filename
	if name == "" {
		name = rec.Title
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "I've processed %q (about %d min of reading). Key points:\n\n", name, rec.ReadingMinutes)
	sb.WriteString(JoinBullets(rec.Bullets))
	sb.WriteString("\n\nAsk me for a summary, flashcards, a quiz, a workflow, or to explain any concept.")
	return sb.String()
}
