// ABOUTME: Deterministic study content derived from the document text alone
// ABOUTME: Used whenever the model is offline or its reply cannot be repaired
package core

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/harper/distill/internal/models"
)

const maxSummaryBullets = 10

var stopwords = func() map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(`about above after again against also another because been before being
		below between both but can cannot could does doing down during each either every from further
		have having here hers herself himself into itself just like made make many more most much must
		myself need only other ought ours over same shall should some such than that their theirs them
		themselves then there these they this those through under until upon very want what when where
		which while whom will with within without would your yours yourself used using uses even well
		onto`) {
		m[w] = true
	}
	return m
}()

var templateBullets = []string{
	"API Design Principles: understand RESTful architecture, HTTP methods, and resource modeling",
	"Error Handling: implement robust error paths, proper status codes, and meaningful error messages",
	"Security Best Practices: use authentication, authorization, input validation, and HTTPS",
	"Data Validation: validate requests and responses, check types, and sanitize input",
	"Performance Optimization: use caching, pagination, compression, and efficient queries",
	"Testing Strategies: unit tests, integration tests, API testing, and automated pipelines",
	"Documentation: write API docs with examples, schemas, and usage guidelines",
	"Versioning: version the API to keep backward compatibility",
}

var templateFlashcards = []models.Flashcard{
	{Front: "What is an API?", Back: "A set of rules and protocols that allows different software applications to communicate with each other."},
	{Front: "What is the difference between GET and POST?", Back: "GET retrieves data and is idempotent, while POST submits data and may change server state."},
	{Front: "What is error handling?", Back: "The process of anticipating, detecting, and resolving programming, application, or communication errors."},
	{Front: "What is middleware?", Back: "Software that sits between a request and the main handler and can inspect or transform it."},
	{Front: "What is a RESTful API?", Back: "An API that uses HTTP methods to perform operations on resources in a stateless manner."},
}

var templateQuiz = []models.QuizItem{
	{Question: "What is the primary purpose of API design?", Options: []string{"To make code run faster", "To provide a clear interface for data exchange", "To reduce file sizes", "To add more colors to the UI"}, Answer: "b"},
	{Question: "Which of the following is a best practice for error handling?", Options: []string{"Ignore all errors", "Handle errors where they can be acted on", "Always use global error handlers", "Never handle errors"}, Answer: "b"},
	{Question: "What does REST stand for in RESTful APIs?", Options: []string{"Remote Execution System Transfer", "Representational State Transfer", "Real-time Event Streaming Technology", "Rapid Endpoint Service Transfer"}, Answer: "b"},
	{Question: "Which HTTP method is typically used for creating new resources?", Options: []string{"GET", "POST", "PUT", "DELETE"}, Answer: "b"},
	{Question: "What is the purpose of middleware in web applications?", Options: []string{"To make the app slower", "To process requests before they reach the main handler", "To only handle database operations", "To replace the main application logic"}, Answer: "b"},
}

var templateWorkflow = []string{
	"Planning and Design: define requirements, endpoints, and data models",
	"Architecture Setup: choose the framework, database, and deployment strategy",
	"Core Development: implement endpoints, validation, and business logic",
	"Security: add authentication, authorization, and input validation",
	"Testing and Quality: write unit and integration tests plus documentation",
	"Performance: add caching, pagination, and monitoring",
	"Deployment: set up automated deployment and continuous integration",
	"Maintenance: monitor, handle errors, and iterate",
}

var templateConceptMap = models.ConceptMap{
	Nodes: []models.ConceptNode{
		{ID: "1", Label: "API Design", Level: 1},
		{ID: "2", Label: "Security", Level: 2},
		{ID: "3", Label: "Performance", Level: 2},
		{ID: "4", Label: "Testing", Level: 2},
		{ID: "5", Label: "Deployment", Level: 2},
	},
	Edges: []models.ConceptEdge{
		{From: "1", To: "2", Label: "requires"},
		{From: "1", To: "3", Label: "affects"},
		{From: "2", To: "4", Label: "validated by"},
		{From: "3", To: "5", Label: "optimized for"},
		{From: "4", To: "5", Label: "ensures quality"},
	},
}

// KeyTerms returns up to n frequent content words of at least four letters,
// most frequent first, ties broken by first appearance
func KeyTerms(text string, n int) []string {
	type term struct {
		display string
		count   int
		first   int
	}
	terms := make(map[string]*term)
	for i, raw := range strings.Fields(text) {
		w := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		key := strings.ToLower(w)
		if len([]rune(key)) < 4 || stopwords[key] || !unicode.IsLetter([]rune(key)[0]) {
			continue
		}
		if t, ok := terms[key]; ok {
			t.count++
			continue
		}
		terms[key] = &term{display: w, count: 1, first: i}
	}
	list := make([]*term, 0, len(terms))
	for _, t := range terms {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].first < list[j].first
	})
	if n > len(list) {
		n = len(list)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = list[i].display
	}
	return out
}

// FallbackBullets takes the lead sentence of each paragraph, then further
// sentences, and tops up from templates to at least three bullets
func FallbackBullets(text string) []string {
	var bullets []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = truncate(collapse(s), 200)
		if len(s) < 12 || seen[strings.ToLower(s)] || len(bullets) >= maxSummaryBullets {
			return
		}
		seen[strings.ToLower(s)] = true
		bullets = append(bullets, s)
	}
	paras := splitParagraphs(text)
	for _, p := range paras {
		if s := splitSentences(p); len(s) > 0 {
			add(s[0])
		}
	}
	if len(bullets) < 3 {
		for _, s := range splitSentences(text) {
			add(s)
		}
	}
	for _, t := range templateBullets {
		if len(bullets) >= 3 {
			break
		}
		add(t)
	}
	return bullets
}

// FallbackFlashcards pairs key terms with the first sentence that mentions them
func FallbackFlashcards(text string) []models.Flashcard {
	sentences := splitSentences(text)
	var cards []models.Flashcard
	for _, term := range KeyTerms(text, 12) {
		if s := sentenceWith(sentences, term); s != "" {
			cards = append(cards, models.Flashcard{
				Front: fmt.Sprintf("What does the material say about %s?", term),
				Back:  truncate(s, MaxBackLen),
			})
		}
		if len(cards) == StudySetSize {
			break
		}
	}
	return RepairFlashcards(cards, templateFlashcards, StudySetSize)
}

// FallbackQuiz blanks a key term out of a sentence and offers other key terms
// as distractors. The correct letter rotates so answers are not all the same.
func FallbackQuiz(text string) []models.QuizItem {
	sentences := splitSentences(text)
	terms := KeyTerms(text, 12)
	var items []models.QuizItem
	if len(terms) >= QuizOptions {
		for i, term := range terms {
			s := sentenceWith(sentences, term)
			if s == "" {
				continue
			}
			blanked := replaceFold(s, term, "_____")
			question := truncate("Which term completes the statement: "+blanked, MaxQuestionLen)
			options := make([]string, 0, QuizOptions)
			for j := 1; len(options) < QuizOptions-1; j++ {
				options = append(options, terms[(i+j)%len(terms)])
			}
			pos := len(items) % QuizOptions
			options = append(options[:pos], append([]string{term}, options[pos:]...)...)
			items = append(items, models.QuizItem{Question: question, Options: options, Answer: answerLetters[pos]})
			if len(items) == StudySetSize {
				break
			}
		}
	}
	return RepairQuiz(items, templateQuiz, StudySetSize)
}

// FallbackConceptMap links the leading key term to the next few
func FallbackConceptMap(text string) *models.ConceptMap {
	terms := KeyTerms(text, 6)
	if len(terms) < 2 {
		cm := templateConceptMap
		cm.Nodes = append([]models.ConceptNode(nil), templateConceptMap.Nodes...)
		cm.Edges = append([]models.ConceptEdge(nil), templateConceptMap.Edges...)
		return &cm
	}
	cm := &models.ConceptMap{}
	for i, t := range terms {
		level := 2
		if i == 0 {
			level = 1
		}
		id := fmt.Sprintf("%d", i+1)
		cm.Nodes = append(cm.Nodes, models.ConceptNode{ID: id, Label: titleCase(t), Level: level})
		if i > 0 {
			cm.Edges = append(cm.Edges, models.ConceptEdge{From: "1", To: id, Label: "relates to"})
		}
	}
	return cm
}

// FallbackWorkflow derives steps from concept map nodes, or templates
func FallbackWorkflow(cm *models.ConceptMap) []string {
	if cm.IsEmpty() {
		return append([]string(nil), templateWorkflow...)
	}
	verbs := []string{"Understand", "Explore", "Apply", "Practice", "Review", "Extend"}
	steps := make([]string, 0, len(cm.Nodes))
	for i, n := range cm.Nodes {
		steps = append(steps, fmt.Sprintf("%s %s", verbs[i%len(verbs)], n.Label))
	}
	return steps
}

// ExplainFallback answers from the best retrieved excerpts
func ExplainFallback(topic string, hits []models.ScoredChunk) string {
	if len(hits) == 0 {
		return fmt.Sprintf("I can't reach the model right now and have no material on %q yet. Attach a document and ask again.", topic)
	}
	var sb strings.Builder
	sb.WriteString("The model is unavailable, so here are the most relevant passages")
	if topic != "" {
		sb.WriteString(" for " + fmt.Sprintf("%q", topic))
	}
	sb.WriteString(":\n")
	for i, h := range hits {
		if i == 2 {
			break
		}
		sb.WriteString("\n> " + truncate(collapse(h.Chunk.Text), 400) + "\n")
	}
	return sb.String()
}

// ReadingMinutes estimates reading time at 200 words per minute, minimum one
func ReadingMinutes(text string) int {
	m := (len(strings.Fields(text)) + 199) / 200
	if m < 1 {
		m = 1
	}
	return m
}

func sentenceWith(sentences []string, term string) string {
	lower := strings.ToLower(term)
	for _, s := range sentences {
		if strings.Contains(strings.ToLower(s), lower) && len(s) >= MinBackLen {
			return s
		}
	}
	return ""
}

// replaceFold replaces the first case-insensitive occurrence of old
func replaceFold(s, old, repl string) string {
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		return strings.Replace(s, old, repl, 1)
	}
	i := strings.Index(lower, strings.ToLower(old))
	if i < 0 {
		return s
	}
	return s[:i] + repl + s[i+len(old):]
}

func titleCase(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
