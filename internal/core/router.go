// ABOUTME: IntentRouter maps free-text chat messages to content generation intents
// ABOUTME: Deterministic phrase scoring with a confidence threshold and clarify fallback
package core

import (
	"strings"

	"github.com/harper/distill/internal/models"
)

// DefaultIntentThreshold is the minimum normalized score for a confident intent
const DefaultIntentThreshold = 0.15

type intentPhrases struct {
	label   models.IntentLabel
	phrases []string
}

// intentTable is ordered; on equal scores the earlier label wins.
var intentTable = []intentPhrases{
	{models.IntentSummary, []string{"summary", "summarize", "tl;dr", "overview", "key points"}},
	{models.IntentDiagnostic, []string{"diagnostic", "test", "quiz", "practice", "assessment", "evaluate"}},
	{models.IntentFlashcards, []string{"flashcards", "cards", "study cards", "memorize"}},
	{models.IntentExplanation, []string{"explain", "clarify", "help me understand", "what is"}},
	{models.IntentWorkflow, []string{"workflow", "process", "steps", "how to", "procedure"}},
}

var requestVerbs = []string{"want", "need", "get", "create"}

var clarifySuggestions = []string{
	"What would you like me to help you with?",
	"I can create summaries, quizzes, flashcards, or explain concepts.",
	"Try asking for a 'summary', 'quiz', or 'flashcards'.",
	"Or ask me to explain something specific.",
}

var routePlans = map[models.IntentLabel]models.RoutePlan{
	models.IntentSummary:     {Intent: models.IntentSummary, Action: "generate_summary", Description: "Generate a summary with key points and a concept map"},
	models.IntentDiagnostic:  {Intent: models.IntentDiagnostic, Action: "run_diagnostic", Description: "Run a multiple choice diagnostic quiz"},
	models.IntentFlashcards:  {Intent: models.IntentFlashcards, Action: "generate_flashcards", Description: "Create study flashcards for the topic"},
	models.IntentExplanation: {Intent: models.IntentExplanation, Action: "explain_concept", Description: "Provide a detailed explanation of a concept"},
	models.IntentWorkflow:    {Intent: models.IntentWorkflow, Action: "create_workflow", Description: "Generate a step-by-step workflow"},
	models.IntentClarify:     {Intent: models.IntentClarify, Action: "clarify", Description: "Ask the user what they would like to do"},
}

// IntentRouter classifies chat messages without calling a model
type IntentRouter struct {
	threshold float64
}

// NewIntentRouter creates a router. A threshold outside (0, 1] uses the default.
func NewIntentRouter(threshold float64) *IntentRouter {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultIntentThreshold
	}
	return &IntentRouter{threshold: threshold}
}

// Classify scores message against every intent. Exact phrase hits weigh 1,
// "<verb> <phrase>" variants add 0.5, the sum is normalized by the phrase
// count and earns a 0.2 bonus at 2 or more. The best label wins if it meets
// the threshold; otherwise the result is clarify with suggestions. An empty
// message right after a document upload defaults to a diagnostic quiz.
func (r *IntentRouter) Classify(message string, rc models.RouteContext) models.IntentClassification {
	msg := strings.ToLower(strings.TrimSpace(message))

	best := models.IntentClassification{Label: models.IntentClarify}
	for _, entry := range intentTable {
		score := scorePhrases(msg, entry.phrases)
		if score > best.Confidence {
			best = models.IntentClassification{Label: entry.label, Confidence: score}
		}
	}

	if best.Label != models.IntentClarify && best.Confidence >= r.threshold {
		return best
	}

	if msg == "" && rc.DocumentAttached {
		return models.IntentClassification{Label: models.IntentDiagnostic, Confidence: 0.8}
	}

	return models.IntentClassification{
		Label:       models.IntentClarify,
		Confidence:  0,
		Suggestions: append([]string(nil), clarifySuggestions...),
	}
}

// Plan returns the concrete action for an intent
func (r *IntentRouter) Plan(label models.IntentLabel) models.RoutePlan {
	if plan, ok := routePlans[label]; ok {
		return plan
	}
	return routePlans[models.IntentClarify]
}

func scorePhrases(msg string, phrases []string) float64 {
	if msg == "" {
		return 0
	}
	score := 0.0
	for _, phrase := range phrases {
		if strings.Contains(msg, phrase) {
			score++
		}
		for _, verb := range requestVerbs {
			if strings.Contains(msg, verb+" "+phrase) {
				score += 0.5
				break
			}
		}
	}
	if score == 0 {
		return 0
	}
	normalized := score / float64(len(phrases))
	if score >= 2 {
		normalized += 0.2
	}
	if normalized > 1 {
		normalized = 1
	}
	return normalized
}
