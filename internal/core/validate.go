// ABOUTME: ContentScrubber validates generated flashcards and quizzes and repairs them
// ABOUTME: Fills missing fields, fixes lengths, drops duplicates and tops up from fallbacks
package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harper/distill/internal/models"
)

// Length bounds for generated study content, in characters
const (
	MinFrontLen    = 10
	MaxFrontLen    = 200
	MinBackLen     = 5
	MaxBackLen     = 200
	MinQuestionLen = 15
	MaxQuestionLen = 300
	QuizOptions    = 4
	// StudySetSize is how many flashcards and quiz items a lesson carries
	StudySetSize = 5
)

var answerLetters = []string{"a", "b", "c", "d"}

var paddingDistractors = []string{
	"None of the above",
	"All of the above",
	"It is not covered by the material",
	"It depends entirely on the environment",
}

// FlashcardIssues lists every rule violation in a flashcard set
func FlashcardIssues(cards []models.Flashcard) []string {
	var issues []string
	seen := make(map[string]bool)
	for i, c := range cards {
		front, back := strings.TrimSpace(c.Front), strings.TrimSpace(c.Back)
		if n := utf8.RuneCountInString(front); n < MinFrontLen || n > MaxFrontLen {
			issues = append(issues, fmt.Sprintf("flashcard %d: front length %d outside %d-%d", i, n, MinFrontLen, MaxFrontLen))
		}
		if n := utf8.RuneCountInString(back); n < MinBackLen || n > MaxBackLen {
			issues = append(issues, fmt.Sprintf("flashcard %d: back length %d outside %d-%d", i, n, MinBackLen, MaxBackLen))
		}
		key := strings.ToLower(front)
		if seen[key] {
			issues = append(issues, fmt.Sprintf("flashcard %d: duplicate front", i))
		}
		seen[key] = true
	}
	return issues
}

// QuizIssues lists every rule violation in a quiz
func QuizIssues(items []models.QuizItem) []string {
	var issues []string
	for i, q := range items {
		if n := utf8.RuneCountInString(strings.TrimSpace(q.Question)); n < MinQuestionLen || n > MaxQuestionLen {
			issues = append(issues, fmt.Sprintf("quiz %d: question length %d outside %d-%d", i, n, MinQuestionLen, MaxQuestionLen))
		}
		if len(q.Options) != QuizOptions {
			issues = append(issues, fmt.Sprintf("quiz %d: %d options, want %d", i, len(q.Options), QuizOptions))
		}
		seen := make(map[string]bool)
		for _, o := range q.Options {
			key := strings.ToLower(strings.TrimSpace(o))
			if key == "" || seen[key] {
				issues = append(issues, fmt.Sprintf("quiz %d: empty or duplicate option", i))
				break
			}
			seen[key] = true
		}
		if idx := letterIndex(q.Answer); idx < 0 || idx >= len(q.Options) {
			issues = append(issues, fmt.Sprintf("quiz %d: answer %q does not name an option", i, q.Answer))
		}
	}
	return issues
}

// RepairFlashcards fixes what it can, drops what it cannot, and tops up from
// spares until count cards exist. The result always passes FlashcardIssues
// when spares are valid.
func RepairFlashcards(cards, spares []models.Flashcard, count int) []models.Flashcard {
	out := make([]models.Flashcard, 0, count)
	seen := make(map[string]bool)
	add := func(c models.Flashcard) {
		if len(out) >= count {
			return
		}
		fixed, ok := repairFlashcard(c)
		if !ok {
			return
		}
		key := strings.ToLower(fixed.Front)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, fixed)
	}
	for _, c := range cards {
		add(c)
	}
	for _, c := range spares {
		add(c)
	}
	return out
}

func repairFlashcard(c models.Flashcard) (models.Flashcard, bool) {
	front := collapse(c.Front)
	back := collapse(c.Back)
	switch {
	case front == "" && back == "":
		return c, false
	case front == "":
		front = "What does this describe: " + truncate(back, 60) + "?"
	case back == "":
		back = "Review the lesson notes on: " + strings.TrimSuffix(front, "?")
	}
	if utf8.RuneCountInString(front) < MinFrontLen {
		front = "What is " + strings.TrimSuffix(front, "?") + "?"
	}
	if utf8.RuneCountInString(back) < MinBackLen {
		back = "Answer: " + back
	}
	front = truncate(front, MaxFrontLen)
	back = truncate(back, MaxBackLen)
	if utf8.RuneCountInString(front) < MinFrontLen || utf8.RuneCountInString(back) < MinBackLen {
		return c, false
	}
	return models.Flashcard{Front: front, Back: back}, true
}

// RepairQuiz normalizes options and answers, drops items whose answer cannot
// be resolved, and tops up from spares until count items exist
func RepairQuiz(items, spares []models.QuizItem, count int) []models.QuizItem {
	out := make([]models.QuizItem, 0, count)
	seen := make(map[string]bool)
	add := func(q models.QuizItem) {
		if len(out) >= count {
			return
		}
		fixed, ok := repairQuizItem(q)
		if !ok {
			return
		}
		key := strings.ToLower(fixed.Question)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, fixed)
	}
	for _, q := range items {
		add(q)
	}
	for _, q := range spares {
		add(q)
	}
	return out
}

func repairQuizItem(q models.QuizItem) (models.QuizItem, bool) {
	question := collapse(q.Question)
	if question == "" {
		return q, false
	}
	if utf8.RuneCountInString(question) < MinQuestionLen {
		question = "Which is true about " + strings.TrimSuffix(question, "?") + "?"
	}
	question = truncate(question, MaxQuestionLen)

	var options []string
	seen := make(map[string]bool)
	for _, o := range q.Options {
		o = stripOptionLabel(collapse(o))
		key := strings.ToLower(o)
		if o == "" || seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, o)
	}

	correct := resolveAnswer(q.Answer, q.Options, options)
	if correct < 0 {
		return q, false
	}

	// keep the correct option while trimming to four
	if len(options) > QuizOptions {
		kept := make([]string, 0, QuizOptions)
		moved := -1
		for i, o := range options {
			if QuizOptions-len(kept) == 1 && moved < 0 && i != correct {
				continue
			}
			if i == correct {
				moved = len(kept)
			}
			kept = append(kept, o)
			if len(kept) == QuizOptions {
				break
			}
		}
		options, correct = kept, moved
	}
	for _, d := range paddingDistractors {
		if len(options) >= QuizOptions {
			break
		}
		if !seen[strings.ToLower(d)] {
			seen[strings.ToLower(d)] = true
			options = append(options, d)
		}
	}
	return models.QuizItem{Question: question, Options: options, Answer: answerLetters[correct]}, true
}

// resolveAnswer maps an answer given as a letter, label or option text to an
// index into cleaned. raw is the option list before cleaning.
func resolveAnswer(answer string, raw, cleaned []string) int {
	answer = strings.TrimSpace(answer)
	if answer == "" || len(cleaned) == 0 {
		return -1
	}
	find := func(text string) int {
		text = strings.ToLower(stripOptionLabel(collapse(text)))
		for i, o := range cleaned {
			if strings.ToLower(o) == text {
				return i
			}
		}
		return -1
	}
	if idx := letterIndex(answer); idx >= 0 {
		if idx < len(raw) {
			return find(raw[idx])
		}
		return -1
	}
	return find(answer)
}

// letterIndex maps "a", "B", "(c)", "d)", "Option A" or "b. text" to 0-3, else -1
func letterIndex(answer string) int {
	s := strings.ToLower(strings.TrimSpace(answer))
	s = strings.TrimPrefix(s, "option ")
	s = strings.TrimPrefix(s, "answer:")
	s = strings.TrimSpace(strings.TrimPrefix(s, "("))
	if s == "" {
		return -1
	}
	if len(s) > 1 && !strings.ContainsRune(").:", rune(s[1])) {
		return -1
	}
	if s[0] >= 'a' && s[0] <= 'd' {
		return int(s[0] - 'a')
	}
	return -1
}

// stripOptionLabel removes a leading "a) ", "B. " or "(c) " label
func stripOptionLabel(o string) string {
	if len(o) >= 3 {
		s := strings.TrimPrefix(o, "(")
		c := s[0] | 0x20
		if c >= 'a' && c <= 'd' && len(s) >= 3 && (s[1] == ')' || s[1] == '.') && s[2] == ' ' {
			return strings.TrimSpace(s[3:])
		}
	}
	return o
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps s at max runes, marking the cut with "..."
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}
