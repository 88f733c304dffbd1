// ABOUTME: Intent classification results and route plans for chat messages
// ABOUTME: Labels form a closed set; clarify carries follow-up suggestions
package models

// IntentLabel is the generation action a chat message asks for
type IntentLabel string

const (
	IntentSummary     IntentLabel = "summary"
	IntentDiagnostic  IntentLabel = "diagnostic"
	IntentFlashcards  IntentLabel = "flashcards"
	IntentExplanation IntentLabel = "explanation"
	IntentWorkflow    IntentLabel = "workflow"
	IntentClarify     IntentLabel = "clarify"
)

// IsValid reports whether the label is known
func (l IntentLabel) IsValid() bool {
	switch l {
	case IntentSummary, IntentDiagnostic, IntentFlashcards, IntentExplanation, IntentWorkflow, IntentClarify:
		return true
	}
	return false
}

// RouteContext carries the conversation state the router may consult
type RouteContext struct {
	DocumentAttached bool `json:"document_attached"`
}

// IntentClassification is the router's verdict for one message
type IntentClassification struct {
	Label       IntentLabel `json:"label"`
	Confidence  float64     `json:"confidence"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// RoutePlan is the concrete action an intent maps to
type RoutePlan struct {
	Intent      IntentLabel `json:"intent"`
	Action      string      `json:"action"`
	Description string      `json:"description"`
}
