// ABOUTME: Tests for document-derived fallback content
// ABOUTME: Fallbacks must be deterministic and always pass the content validators

package core

import (
	"reflect"
	"strings"
	"testing"
)

func TestKeyTerms(t *testing.T) {
	text := "Docker containers isolate processes. Docker images build containers. Kubernetes schedules containers."
	got := KeyTerms(text, 3)
	want := []string{"containers", "Docker", "isolate"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KeyTerms() = %v, want %v", got, want)
	}
	if len(KeyTerms("the and of a", 5)) != 0 {
		t.Error("stopwords and short words should not be key terms")
	}
}

func TestFallbackBullets(t *testing.T) {
	got := FallbackBullets(sampleDocument)
	if len(got) < 3 || len(got) > maxSummaryBullets {
		t.Fatalf("got %d bullets", len(got))
	}
	if got[0] != "Docker Basics" && !strings.HasPrefix(got[0], "Docker packages") {
		t.Errorf("first bullet = %q", got[0])
	}

	short := FallbackBullets("Tiny note about caching.")
	if len(short) != 3 {
		t.Fatalf("short text: got %d bullets, want 3", len(short))
	}
	if short[0] != "Tiny note about caching." || short[1] != templateBullets[0] {
		t.Errorf("short text bullets = %v", short)
	}
}

func TestFallbackStudySetIsValid(t *testing.T) {
	for _, text := range []string{sampleDocument, syntheticDocument(600), "too short"} {
		cards := FallbackFlashcards(text)
		if len(cards) != StudySetSize {
			t.Errorf("flashcards: got %d, want %d", len(cards), StudySetSize)
		}
		if issues := FlashcardIssues(cards); len(issues) > 0 {
			t.Errorf("flashcards invalid: %v", issues)
		}

		quiz := FallbackQuiz(text)
		if len(quiz) != StudySetSize {
			t.Errorf("quiz: got %d, want %d", len(quiz), StudySetSize)
		}
		if issues := QuizIssues(quiz); len(issues) > 0 {
			t.Errorf("quiz invalid: %v", issues)
		}
	}
}

func TestFallbackQuizRotatesAnswers(t *testing.T) {
	quiz := FallbackQuiz(sampleDocument)
	seen := make(map[string]bool)
	for _, q := range quiz {
		seen[q.Answer] = true
	}
	if len(seen) < 2 {
		t.Errorf("answers should rotate, got %v", quiz)
	}
	if !reflect.DeepEqual(quiz, FallbackQuiz(sampleDocument)) {
		t.Error("fallback quiz is not deterministic")
	}
}

func TestFallbackConceptMap(t *testing.T) {
	cm := FallbackConceptMap(sampleDocument)
	if len(cm.Nodes) < 2 || len(cm.Nodes) > 6 {
		t.Fatalf("got %d nodes", len(cm.Nodes))
	}
	if cm.Nodes[0].Level != 1 {
		t.Errorf("root level = %d", cm.Nodes[0].Level)
	}
	for _, e := range cm.Edges {
		if e.From != "1" {
			t.Errorf("edge %+v should start at the root", e)
		}
	}

	tmpl := FallbackConceptMap("")
	if len(tmpl.Nodes) != 5 || tmpl.Nodes[0].Label != "API Design" {
		t.Errorf("template map = %+v", tmpl)
	}
	tmpl.Nodes[0].Label = "mutated"
	if templateConceptMap.Nodes[0].Label != "API Design" {
		t.Error("fallback map shares storage with the template")
	}
}

func TestFallbackWorkflow(t *testing.T) {
	if got := FallbackWorkflow(nil); len(got) != len(templateWorkflow) {
		t.Errorf("nil map: got %d steps", len(got))
	}
	cm := FallbackConceptMap(sampleDocument)
	steps := FallbackWorkflow(cm)
	if len(steps) != len(cm.Nodes) {
		t.Fatalf("got %d steps for %d nodes", len(steps), len(cm.Nodes))
	}
	if !strings.HasPrefix(steps[0], "Understand ") {
		t.Errorf("first step = %q", steps[0])
	}
}

func TestReadingMinutes(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{0, 1}, {200, 1}, {201, 2}, {1000, 5},
	}
	for _, tt := range tests {
		if got := ReadingMinutes(strings.Repeat("word ", tt.words)); got != tt.want {
			t.Errorf("ReadingMinutes(%d words) = %d, want %d", tt.words, got, tt.want)
		}
	}
}
