// ABOUTME: Lesson records and generated study content
// ABOUTME: A LessonRecord is the cached and persisted result of one ingestion
package models

import "time"

// ContentKind names the kind of content a generation produced
type ContentKind string

const (
	KindSummary     ContentKind = "summary"
	KindFlashcards  ContentKind = "flashcards"
	KindQuiz        ContentKind = "quiz"
	KindConceptMap  ContentKind = "concept_map"
	KindWorkflow    ContentKind = "workflow"
	KindExplanation ContentKind = "explanation"
	KindChat        ContentKind = "chat"
)

// Flashcard is a question/answer study card
type Flashcard struct {
	Front string `json:"front" yaml:"front"`
	Back  string `json:"back" yaml:"back"`
}

// QuizItem is a four-option multiple choice question. Answer is a letter a-d.
type QuizItem struct {
	Question string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Answer   string   `json:"answer" yaml:"answer"`
}

// ConceptNode is a concept in a concept map
type ConceptNode struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Level int    `json:"level,omitempty" yaml:"level,omitempty"`
}

// ConceptEdge links two concepts
type ConceptEdge struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ConceptMap is a small graph of related concepts
type ConceptMap struct {
	Nodes []ConceptNode `json:"nodes" yaml:"nodes"`
	Edges []ConceptEdge `json:"edges" yaml:"edges"`
}

// IsEmpty reports whether the map has no nodes
func (m *ConceptMap) IsEmpty() bool {
	return m == nil || len(m.Nodes) == 0
}

// GeneratedContent is the result of one retrieval-grounded generation
type GeneratedContent struct {
	Kind       ContentKind   `json:"kind"`
	Summary    string        `json:"summary,omitempty"`
	Bullets    []string      `json:"bullets,omitempty"`
	Flashcards []Flashcard   `json:"flashcards,omitempty"`
	Quiz       []QuizItem    `json:"quiz,omitempty"`
	ConceptMap *ConceptMap   `json:"concept_map,omitempty"`
	Workflow   []string      `json:"workflow,omitempty"`
	Text       string        `json:"text,omitempty"`
	Sources    []ScoredChunk `json:"sources,omitempty"`
	// Fallback is set when templated content replaced model output
	Fallback bool `json:"fallback"`
}

// LessonRecord is everything derived from one ingested document
type LessonRecord struct {
	ID             string           `json:"id" yaml:"id"`
	UserID         string           `json:"user_id" yaml:"user_id"`
	Title          string           `json:"title" yaml:"title"`
	Framework      Framework        `json:"framework" yaml:"framework"`
	Level          ExplanationLevel `json:"level" yaml:"level"`
	ContentHash    string           `json:"content_hash" yaml:"content_hash"`
	Summary        string           `json:"summary" yaml:"summary"`
	Bullets        []string         `json:"bullets" yaml:"bullets"`
	Flashcards     []Flashcard      `json:"flashcards" yaml:"flashcards"`
	Quiz           []QuizItem       `json:"quiz" yaml:"quiz"`
	ConceptMap     *ConceptMap      `json:"concept_map,omitempty" yaml:"concept_map,omitempty"`
	Chunks         []Chunk          `json:"chunks" yaml:"-"`
	Embeddings     [][]float64      `json:"embeddings,omitempty" yaml:"-"`
	ReadingMinutes int              `json:"reading_minutes" yaml:"reading_minutes"`
	Fallback       bool             `json:"fallback" yaml:"fallback"`
	CreatedAt      time.Time        `json:"created_at" yaml:"created_at"`
}

// Content returns the lesson's derived content as a GeneratedContent
func (r *LessonRecord) Content() *GeneratedContent {
	return &GeneratedContent{
		Kind:       KindSummary,
		Summary:    r.Summary,
		Bullets:    r.Bullets,
		Flashcards: r.Flashcards,
		Quiz:       r.Quiz,
		ConceptMap: r.ConceptMap,
		Fallback:   r.Fallback,
	}
}
