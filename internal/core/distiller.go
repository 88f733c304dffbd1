// ABOUTME: Distiller turns document chunks into summaries, study sets, concept maps and workflows
// ABOUTME: Every method reports ok=false instead of failing so callers can substitute fallbacks
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harper/distill/internal/llm"
	"github.com/harper/distill/internal/models"
	"golang.org/x/sync/errgroup"
)

// mapParallelism caps how many chunk summaries are queued at once; the model
// client's admission limit still bounds in-flight calls
const mapParallelism = 8

// Generator produces a completion for a message sequence, "" on failure
type Generator interface {
	Generate(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) string
}

// Distiller runs the generation steps of the learning pipeline
type Distiller struct {
	gen     Generator
	prompts *PromptBuilder
	logger  *log.Logger
}

// NewDistiller creates a Distiller
func NewDistiller(gen Generator, prompts *PromptBuilder, logger *log.Logger) *Distiller {
	if prompts == nil {
		prompts = NewPromptBuilder(DefaultContextTokens)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Distiller{gen: gen, prompts: prompts, logger: logger}
}

// Summarize maps each chunk to three bullets concurrently, then reduces them
// into at most ten. ok is false when no chunk produced anything.
func (d *Distiller) Summarize(ctx context.Context, chunks []models.Chunk, level models.ExplanationLevel) ([]string, bool) {
	if len(chunks) == 0 {
		return nil, false
	}

	mapped := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mapParallelism)
	for i, c := range chunks {
		g.Go(func() error {
			mapped[i] = strings.TrimSpace(d.gen.Generate(gctx, d.prompts.ChunkSummary(c.Text, level), llm.WithTemperature(0.3)))
			return nil
		})
	}
	_ = g.Wait()

	groups := mapped[:0:0]
	for _, m := range mapped {
		if m != "" {
			groups = append(groups, m)
		}
	}
	if len(groups) == 0 {
		d.logger.Debug("chunk summaries empty", "chunks", len(chunks))
		return nil, false
	}
	if len(groups) == 1 {
		return capBullets(SplitBullets(groups[0])), true
	}

	reduced := d.gen.Generate(ctx, d.prompts.ReduceSummary(groups, level), llm.WithTemperature(0.3))
	if bullets := SplitBullets(reduced); len(bullets) > 0 {
		return capBullets(bullets), true
	}
	d.logger.Debug("reduce step empty, keeping mapped bullets", "groups", len(groups))
	return capBullets(SplitBullets(strings.Join(groups, "\n"))), true
}

// TopicSummary summarizes what retrieved excerpts say about one topic
func (d *Distiller) TopicSummary(ctx context.Context, retrieval, topic string, level models.ExplanationLevel) ([]string, bool) {
	bullets := SplitBullets(d.gen.Generate(ctx, d.prompts.Summary(retrieval, topic, level), llm.WithTemperature(0.3)))
	return capBullets(bullets), len(bullets) > 0
}

// DetectFramework asks the model for a framework tag and falls back to a
// keyword vote when the reply is empty or unknown
func (d *Distiller) DetectFramework(ctx context.Context, text string) models.Framework {
	reply := d.gen.Generate(ctx, d.prompts.Framework(text), llm.WithTemperature(0), llm.WithMaxTokens(10))
	if f, ok := models.ParseFramework(reply); ok {
		return f
	}
	if reply != "" {
		d.logger.Debug("unknown framework reply", "reply", reply)
	}
	return KeywordFramework(text)
}

// StudySet generates flashcards and a quiz. Items are returned unrepaired.
func (d *Distiller) StudySet(ctx context.Context, summary, retrieval, topic string, level models.ExplanationLevel) ([]models.Flashcard, []models.QuizItem, bool) {
	reply := d.gen.Generate(ctx, d.prompts.StudySet(summary, retrieval, topic, level), llm.WithJSON(), llm.WithTemperature(0.3))
	if reply == "" {
		return nil, nil, false
	}
	set, res := llm.Decode[studySet](reply)
	if !res.OK() {
		d.logger.Warn("study set reply unparseable", "len", len(reply))
		return nil, nil, false
	}
	d.logger.Debug("study set parsed", "stage", res.Stage, "flashcards", len(set.Flashcards), "quiz", len(set.Quiz))
	return set.Flashcards, set.Quiz, len(set.Flashcards)+len(set.Quiz) > 0
}

// ConceptMap generates a concept graph. Nodes may use "label" or "title" and
// edges "from/to" or "source/target"; edges to unknown nodes are dropped.
func (d *Distiller) ConceptMap(ctx context.Context, summary string) (*models.ConceptMap, bool) {
	reply := d.gen.Generate(ctx, d.prompts.ConceptMap(summary), llm.WithJSON(), llm.WithTemperature(0.3))
	if reply == "" {
		return nil, false
	}
	res := llm.ParseReply(reply)
	if !res.OK() {
		d.logger.Warn("concept map reply unparseable", "len", len(reply))
		return nil, false
	}

	cm := &models.ConceptMap{}
	known := make(map[string]bool)
	for i, n := range res.Get("nodes").Array() {
		label := firstString(n.Get("label").String(), n.Get("title").String(), n.Get("name").String())
		if label == "" {
			continue
		}
		id := firstString(n.Get("id").String(), fmt.Sprintf("%d", i+1))
		if known[id] {
			continue
		}
		known[id] = true
		level := int(n.Get("level").Int())
		if level == 0 {
			level = 2
		}
		cm.Nodes = append(cm.Nodes, models.ConceptNode{ID: id, Label: label, Level: level})
	}
	for _, e := range res.Get("edges").Array() {
		from := firstString(e.Get("from").String(), e.Get("source").String())
		to := firstString(e.Get("to").String(), e.Get("target").String())
		if !known[from] || !known[to] || from == to {
			continue
		}
		cm.Edges = append(cm.Edges, models.ConceptEdge{From: from, To: to, Label: e.Get("label").String()})
	}
	return cm, !cm.IsEmpty()
}

// Workflow generates ordered steps. A plain list reply is accepted too.
func (d *Distiller) Workflow(ctx context.Context, summary, retrieval, topic string, level models.ExplanationLevel) ([]string, bool) {
	reply := d.gen.Generate(ctx, d.prompts.Workflow(summary, retrieval, topic, level), llm.WithJSON(), llm.WithTemperature(0.3))
	if reply == "" {
		return nil, false
	}
	if wf, res := llm.Decode[workflowReply](reply); res.OK() {
		var steps []string
		for _, s := range wf.Steps {
			if s = collapse(s); s != "" {
				steps = append(steps, s)
			}
		}
		return steps, len(steps) > 0
	}
	steps := SplitBullets(reply)
	return steps, len(steps) > 0
}

// Explain answers a question grounded in the summary and retrieved excerpts
func (d *Distiller) Explain(ctx context.Context, topic, summary, retrieval string, level models.ExplanationLevel) (string, bool) {
	text := strings.TrimSpace(d.gen.Generate(ctx, d.prompts.Explanation(topic, summary, retrieval, level)))
	return text, text != ""
}

// Chat produces a conversational reply from recent history
func (d *Distiller) Chat(ctx context.Context, history []models.Message, doc *models.DocumentContext, retrieval string, level models.ExplanationLevel) (string, bool) {
	text := strings.TrimSpace(d.gen.Generate(ctx, d.prompts.Chat(history, doc, retrieval, level), llm.WithMaxTokens(1000)))
	return text, text != ""
}

// Overview describes a freshly attached document
func (d *Distiller) Overview(ctx context.Context, summary string, level models.ExplanationLevel) (string, bool) {
	text := strings.TrimSpace(d.gen.Generate(ctx, d.prompts.Attached(summary, level), llm.WithMaxTokens(500)))
	return text, text != ""
}

// SplitBullets splits model output on newlines and "•", stripping list
// markers such as "-", "*", "•" and "1."
func SplitBullets(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, part := range strings.Split(line, "•") {
			part = strings.TrimSpace(part)
			part = strings.TrimLeft(part, "-*• \t")
			part = trimNumbering(part)
			part = strings.TrimSpace(strings.ReplaceAll(part, "**", ""))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var frameworkKeywords = []struct {
	framework models.Framework
	keywords  []string
}{
	{models.FrameworkFastAPI, []string{"fastapi", "pydantic", "uvicorn"}},
	{models.FrameworkDocker, []string{"docker", "dockerfile", "container", "kubernetes"}},
	{models.FrameworkPython, []string{"python", "pip ", "def ", "django", "flask"}},
	{models.FrameworkMachineLearning, []string{"machine learning", "neural network", "training data", "model training", "scikit"}},
	{models.FrameworkAI, []string{"artificial intelligence", "llm", "gpt", "openai", "prompt"}},
	{models.FrameworkLangChain, []string{"langchain", "agent executor"}},
	{models.FrameworkReact, []string{"react", "jsx", "usestate", "component"}},
	{models.FrameworkNextJS, []string{"next.js", "nextjs", "getserversideprops"}},
	{models.FrameworkTypeScript, []string{"typescript", "interface ", "tsconfig"}},
	{models.FrameworkNodeJS, []string{"node.js", "nodejs", "npm", "express"}},
	{models.FrameworkDatabase, []string{"database", "sql", "postgres", "mysql", "mongodb", "query"}},
	{models.FrameworkCloud, []string{"aws", "azure", "gcp", "cloud", "s3 "}},
	{models.FrameworkDevOps, []string{"devops", "ci/cd", "pipeline", "terraform", "ansible"}},
	{models.FrameworkFrontend, []string{"frontend", "css", "html", "browser"}},
	{models.FrameworkBackend, []string{"backend", "api", "server", "endpoint"}},
}

// KeywordFramework picks the framework whose keywords occur most often.
// Ties go to the earlier framework; no hits yields generic.
func KeywordFramework(text string) models.Framework {
	lower := strings.ToLower(text)
	best, bestCount := models.FrameworkGeneric, 0
	for _, fk := range frameworkKeywords {
		count := 0
		for _, kw := range fk.keywords {
			count += strings.Count(lower, kw)
		}
		if count > bestCount {
			best, bestCount = fk.framework, count
		}
	}
	return best
}

func capBullets(bullets []string) []string {
	if len(bullets) > maxSummaryBullets {
		return bullets[:maxSummaryBullets]
	}
	return bullets
}

func trimNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
