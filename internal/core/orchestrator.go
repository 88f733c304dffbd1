// ABOUTME: Orchestrator composes chunking, embedding, retrieval and generation into lessons
// ABOUTME: Exposes ingest, query, intent classification and document-grounded chat
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harper/distill/internal/extract"
	"github.com/harper/distill/internal/llm"
	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

// HistoryWindow is how many recent messages a chat prompt carries
const HistoryWindow = 10

var (
	// ErrEmptyDocument is returned when ingest input has no usable text
	ErrEmptyDocument = extract.ErrNoText
	// ErrLessonNotFound is returned when a query names no known lesson or document
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrUnknownAction is returned for a content kind the orchestrator cannot produce
	ErrUnknownAction = errors.New("unknown action")
)

// Deps are the collaborators an Orchestrator is built from. Nil fields get
// in-memory, offline defaults.
type Deps struct {
	Chunker       *ChunkEngine
	Embedder      Embedder
	Generator     Generator
	Prompts       *PromptBuilder
	Router        *IntentRouter
	Cache         *storage.ContentCache
	Lessons       *storage.ResilientStore
	Conversations *storage.ConversationStore
	TopK          int
	Logger        *log.Logger
}

// Orchestrator runs the learning pipeline
type Orchestrator struct {
	chunker   *ChunkEngine
	embedder  Embedder
	retriever *Retriever
	distiller *Distiller
	router    *IntentRouter
	cache     *storage.ContentCache
	lessons   *storage.ResilientStore
	convs     *storage.ConversationStore
	inflight  singleflight.Group
	logger    *log.Logger
	now       func() time.Time
}

// NewOrchestrator wires an Orchestrator from deps
func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if deps.Chunker == nil {
		deps.Chunker = NewChunkEngine(DefaultChunkWords, DefaultChunkOverlap)
	}
	if deps.Embedder == nil {
		deps.Embedder = fallbackEmbedder{}
	}
	if deps.Generator == nil {
		deps.Generator = offlineGenerator{}
	}
	if deps.Router == nil {
		deps.Router = NewIntentRouter(DefaultIntentThreshold)
	}
	if deps.Cache == nil {
		deps.Cache = storage.NewContentCache(storage.WithCacheLogger(logger))
	}
	if deps.Lessons == nil {
		deps.Lessons = storage.NewResilientStore(nil, 0, logger)
	}
	if deps.Conversations == nil {
		deps.Conversations = storage.NewConversationStore()
	}
	return &Orchestrator{
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		retriever: NewRetriever(deps.Embedder, deps.TopK),
		distiller: NewDistiller(deps.Generator, deps.Prompts, logger),
		router:    deps.Router,
		cache:     deps.Cache,
		lessons:   deps.Lessons,
		convs:     deps.Conversations,
		logger:    logger,
		now:       time.Now,
	}
}

// IngestRequest is a new source document
type IngestRequest struct {
	Text   string
	UserID string
	Title  string
	// Source names where the text came from, such as a file name
	Source string
	Level  models.ExplanationLevel
}

// IngestResult identifies the lesson produced for a document
type IngestResult struct {
	ID     string
	Lesson *models.LessonRecord
	// Deduplicated is set when identical content had already been ingested
	Deduplicated bool
}

// ContentHash is the stable digest used for deduplication
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ingest runs the full pipeline for a document. Identical content returns
// the earlier lesson without generating again, including when identical
// requests race.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := extract.CheckText(req.Source, req.Text); err != nil {
		return nil, err
	}
	hash := ContentHash(req.Text)
	if res, ok := o.lookupDuplicate(ctx, hash); ok {
		return res, nil
	}

	v, err, _ := o.inflight.Do(hash, func() (any, error) {
		// Shared by every waiter, so one caller leaving must not cut it short
		ctx := context.WithoutCancel(ctx)
		if res, ok := o.lookupDuplicate(ctx, hash); ok {
			return res, nil
		}
		start := o.now()
		rec := o.buildLesson(ctx, req, hash)
		rec.ID = o.lessons.Save(ctx, rec)
		o.cache.Put(rec.ID, rec)
		o.cache.DedupRegister(hash, rec.ID)
		o.logger.Info("lesson ingested",
			"id", rec.ID, "chunks", len(rec.Chunks), "framework", rec.Framework,
			"fallback", rec.Fallback, "elapsed", o.now().Sub(start))
		return &IngestResult{ID: rec.ID, Lesson: rec}, nil
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*IngestResult)
	return &res, nil
}

func (o *Orchestrator) lookupDuplicate(ctx context.Context, hash string) (*IngestResult, bool) {
	if id, ok := o.cache.DedupLookup(hash); ok {
		if rec, ok := o.cache.Get(id); ok {
			return &IngestResult{ID: id, Lesson: rec, Deduplicated: true}, true
		}
		if rec, ok := o.lessons.Fetch(ctx, id); ok {
			rec.ID = id
			o.cache.Put(id, rec)
			return &IngestResult{ID: id, Lesson: rec, Deduplicated: true}, true
		}
		o.logger.Debug("dedup target gone, regenerating", "id", id)
	}
	if rec, ok := o.lessons.FetchByHash(ctx, hash); ok && rec.ID != "" {
		o.cache.Put(rec.ID, rec)
		o.cache.DedupRegister(hash, rec.ID)
		return &IngestResult{ID: rec.ID, Lesson: rec, Deduplicated: true}, true
	}
	return nil, false
}

func (o *Orchestrator) buildLesson(ctx context.Context, req IngestRequest, hash string) *models.LessonRecord {
	level := normalizeLevel(req.Level)
	chunks := o.chunker.Chunk(req.Text)

	var (
		vectors    [][]float64
		bullets    []string
		summarized bool
		framework  models.Framework
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectors = o.embedder.Embed(gctx, models.ChunkTexts(chunks))
		return nil
	})
	g.Go(func() error {
		bullets, summarized = o.distiller.Summarize(gctx, chunks, level)
		return nil
	})
	g.Go(func() error {
		framework = o.distiller.DetectFramework(gctx, req.Text)
		return nil
	})
	_ = g.Wait()

	fallback := !summarized
	if !summarized {
		bullets = FallbackBullets(req.Text)
	}
	summary := JoinBullets(bullets)
	retrieval := JoinContext(o.retriever.Retrieve(ctx, summary, chunks, vectors))

	var (
		cards   []models.Flashcard
		quiz    []models.QuizItem
		studyOK bool
		cmap    *models.ConceptMap
		cmapOK  bool
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		cards, quiz, studyOK = o.distiller.StudySet(gctx, summary, retrieval, "", level)
		return nil
	})
	g.Go(func() error {
		cmap, cmapOK = o.distiller.ConceptMap(gctx, summary)
		return nil
	})
	_ = g.Wait()

	if !studyOK {
		fallback = true
	}
	cards = RepairFlashcards(cards, FallbackFlashcards(req.Text), StudySetSize)
	quiz = RepairQuiz(quiz, FallbackQuiz(req.Text), StudySetSize)
	if !cmapOK {
		cmap = FallbackConceptMap(req.Text)
		fallback = true
	}

	return &models.LessonRecord{
		UserID:         req.UserID,
		Title:          deriveTitle(req),
		Framework:      framework,
		Level:          level,
		ContentHash:    hash,
		Summary:        summary,
		Bullets:        bullets,
		Flashcards:     cards,
		Quiz:           quiz,
		ConceptMap:     cmap,
		Chunks:         chunks,
		Embeddings:     vectors,
		ReadingMinutes: ReadingMinutes(req.Text),
		Fallback:       fallback,
		CreatedAt:      o.now(),
	}
}

// QueryRequest asks for content about a lesson or a conversation's document.
// Kind may be empty, in which case it is routed from Topic.
type QueryRequest struct {
	LessonID       string
	ConversationID string
	Topic          string
	Kind           models.ContentKind
	Level          models.ExplanationLevel
}

// source is the document material a query runs against
type source struct {
	record  *models.LessonRecord
	summary string
	bullets []string
	chunks  []models.Chunk
	vectors [][]float64
	cmap    *models.ConceptMap
	level   models.ExplanationLevel
}

// Query generates retrieval-grounded content. Unknown lessons and
// conversations without a document return ErrLessonNotFound.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*models.GeneratedContent, error) {
	src, err := o.resolveSource(ctx, req)
	if err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(req.Topic)
	kind := req.Kind
	if kind == "" {
		kind = o.routeKind(topic)
	}
	if !queryable(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
	level := src.level
	if req.Level.IsValid() {
		level = req.Level
	}

	out := o.generate(ctx, src, kind, topic, level)
	if src.record != nil && topic == "" && !out.Fallback {
		o.writeBack(src.record, out)
	}
	return out, nil
}

func (o *Orchestrator) resolveSource(ctx context.Context, req QueryRequest) (*source, error) {
	switch {
	case req.LessonID != "":
		rec, err := o.Lesson(ctx, req.LessonID)
		if err != nil {
			return nil, err
		}
		return o.sourceFromLesson(ctx, rec), nil
	case req.ConversationID != "":
		conv, err := o.convs.Get(req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: conversation %s", ErrLessonNotFound, req.ConversationID)
		}
		if conv.Document == nil {
			return nil, fmt.Errorf("%w: conversation %s has no attached document", ErrLessonNotFound, conv.ID)
		}
		return o.sourceFromDocument(ctx, conv.Document, conv.Level), nil
	default:
		return nil, fmt.Errorf("%w: no lesson or conversation given", ErrLessonNotFound)
	}
}

// Lesson returns a lesson from the cache, falling back to durable storage
func (o *Orchestrator) Lesson(ctx context.Context, id string) (*models.LessonRecord, error) {
	if rec, ok := o.cache.Get(id); ok {
		return rec, nil
	}
	if rec, ok := o.lessons.Fetch(ctx, id); ok {
		rec.ID = id
		o.cache.Put(id, rec)
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
}

func (o *Orchestrator) sourceFromLesson(ctx context.Context, rec *models.LessonRecord) *source {
	return &source{
		record:  rec,
		summary: rec.Summary,
		bullets: rec.Bullets,
		chunks:  rec.Chunks,
		vectors: o.ensureVectors(ctx, rec.Chunks, rec.Embeddings),
		cmap:    rec.ConceptMap,
		level:   normalizeLevel(rec.Level),
	}
}

func (o *Orchestrator) sourceFromDocument(ctx context.Context, doc *models.DocumentContext, level models.ExplanationLevel) *source {
	src := &source{
		summary: doc.Summary,
		bullets: SplitBullets(doc.Summary),
		chunks:  doc.Chunks,
		level:   normalizeLevel(level),
	}
	if len(src.chunks) == 0 && doc.Text != "" {
		src.chunks = o.chunker.Chunk(doc.Text)
	}
	src.vectors = o.ensureVectors(ctx, src.chunks, doc.Embeddings)
	return src
}

// ensureVectors re-embeds chunks when stored vectors are missing or stale
func (o *Orchestrator) ensureVectors(ctx context.Context, chunks []models.Chunk, vectors [][]float64) [][]float64 {
	if len(vectors) == len(chunks) {
		return vectors
	}
	return o.embedder.Embed(ctx, models.ChunkTexts(chunks))
}

func (o *Orchestrator) routeKind(topic string) models.ContentKind {
	if topic == "" {
		return models.KindSummary
	}
	cls := o.router.Classify(topic, models.RouteContext{DocumentAttached: true})
	if kind, ok := kindForIntent(cls.Label); ok {
		return kind
	}
	return models.KindExplanation
}

func (o *Orchestrator) generate(ctx context.Context, src *source, kind models.ContentKind, topic string, level models.ExplanationLevel) *models.GeneratedContent {
	query := topic
	if query == "" {
		query = src.summary
	}
	hits := o.retriever.Retrieve(ctx, query, src.chunks, src.vectors)
	retrieval := JoinContext(hits)
	basis := retrieval
	if basis == "" {
		basis = src.summary
	}

	out := &models.GeneratedContent{Kind: kind, Sources: hits}
	switch kind {
	case models.KindSummary:
		if topic == "" && len(src.bullets) > 0 {
			out.Bullets = src.bullets
			break
		}
		bullets, ok := o.distiller.TopicSummary(ctx, retrieval, topic, level)
		if !ok {
			bullets, out.Fallback = FallbackBullets(basis), true
		}
		out.Bullets = bullets
	case models.KindFlashcards, models.KindQuiz:
		cards, quiz, ok := o.distiller.StudySet(ctx, src.summary, retrieval, topic, level)
		out.Fallback = !ok
		if kind == models.KindFlashcards {
			out.Flashcards = RepairFlashcards(cards, FallbackFlashcards(basis), StudySetSize)
		} else {
			out.Quiz = RepairQuiz(quiz, FallbackQuiz(basis), StudySetSize)
		}
	case models.KindConceptMap:
		input := src.summary
		if topic != "" {
			input = "Focus: " + topic + "\n" + basis
		}
		cm, ok := o.distiller.ConceptMap(ctx, input)
		if !ok {
			cm, out.Fallback = FallbackConceptMap(basis), true
		}
		out.ConceptMap = cm
	case models.KindWorkflow:
		steps, ok := o.distiller.Workflow(ctx, src.summary, retrieval, topic, level)
		if !ok {
			cm := src.cmap
			if cm.IsEmpty() {
				cm = FallbackConceptMap(basis)
			}
			steps, out.Fallback = FallbackWorkflow(cm), true
		}
		out.Workflow = steps
	case models.KindExplanation:
		question := topic
		if question == "" {
			question = "the main ideas of this material"
		}
		text, ok := o.distiller.Explain(ctx, question, src.summary, retrieval, level)
		if !ok {
			text, out.Fallback = ExplainFallback(topic, hits), true
		}
		out.Text = text
	}
	if len(out.Bullets) > 0 {
		out.Summary = JoinBullets(out.Bullets)
	}
	return out
}

// writeBack replaces regenerated whole-lesson content in the cached record
func (o *Orchestrator) writeBack(rec *models.LessonRecord, out *models.GeneratedContent) {
	updated := *rec
	switch out.Kind {
	case models.KindFlashcards:
		updated.Flashcards = out.Flashcards
	case models.KindQuiz:
		updated.Quiz = out.Quiz
	case models.KindConceptMap:
		updated.ConceptMap = out.ConceptMap
	default:
		return
	}
	o.cache.Put(rec.ID, &updated)
	o.logger.Debug("cached regenerated content", "id", rec.ID, "kind", out.Kind)
}

// ClassifyIntent routes a chat message to an intent
func (o *Orchestrator) ClassifyIntent(message string, rc models.RouteContext) models.IntentClassification {
	return o.router.Classify(message, rc)
}

// Plan returns the route plan for an intent
func (o *Orchestrator) Plan(label models.IntentLabel) models.RoutePlan {
	return o.router.Plan(label)
}

// ChatRequest is one user turn. An empty or unknown ConversationID starts a
// new conversation.
type ChatRequest struct {
	ConversationID string
	UserID         string
	Message        string
	Level          models.ExplanationLevel
}

// AttachRequest attaches a document to a conversation
type AttachRequest struct {
	ConversationID string
	UserID         string
	Text           string
	Filename       string
	Level          models.ExplanationLevel
}

// ChatResponse is the assistant's turn
type ChatResponse struct {
	ConversationID string                      `json:"conversation_id"`
	MessageID      string                      `json:"message_id"`
	Reply          string                      `json:"reply"`
	Intent         models.IntentClassification `json:"intent"`
	Plan           models.RoutePlan            `json:"plan"`
	Content        *models.GeneratedContent    `json:"content,omitempty"`
	LessonID       string                      `json:"lesson_id,omitempty"`
	Fallback       bool                        `json:"fallback"`
	Timestamp      time.Time                   `json:"timestamp"`
}

// Chat records the user message, routes it, and answers either by running
// the routed action on the attached document or with a free reply grounded
// in retrieval over it
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	conv, err := o.prepareConversation(req.ConversationID, req.UserID, req.Level)
	if err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(req.Message)
	if msg != "" {
		if _, err := o.convs.Append(conv.ID, models.RoleUser, msg); err != nil {
			return nil, err
		}
	}

	doc := conv.Document
	cls := o.router.Classify(msg, models.RouteContext{DocumentAttached: doc != nil})
	resp := &ChatResponse{ConversationID: conv.ID, Intent: cls, Plan: o.router.Plan(cls.Label)}
	if doc != nil {
		resp.LessonID = doc.LessonID
	}

	kind, routed := kindForIntent(cls.Label)
	switch {
	case doc != nil && routed && kind != models.KindExplanation:
		content := o.generate(ctx, o.sourceFromDocument(ctx, doc, conv.Level), kind, "", conv.Level)
		resp.Content, resp.Fallback = content, content.Fallback
		resp.Reply = RenderText(content)
	case msg == "":
		resp.Reply = clarifyReply(cls)
	default:
		var hits []models.ScoredChunk
		if doc != nil {
			hits = o.retriever.Retrieve(ctx, msg, doc.Chunks, o.ensureVectors(ctx, doc.Chunks, doc.Embeddings))
		}
		current, err := o.convs.Get(conv.ID)
		if err != nil {
			return nil, err
		}
		reply, ok := o.distiller.Chat(ctx, current.Recent(HistoryWindow), doc, JoinContext(hits), conv.Level)
		if !ok {
			resp.Fallback = true
			if cls.Label == models.IntentClarify && doc == nil {
				reply = clarifyReply(cls)
			} else {
				reply = ExplainFallback(msg, hits)
			}
		}
		resp.Reply = reply
	}

	return o.finishTurn(conv.ID, resp)
}

// AttachDocument ingests text and makes it the conversation's document
func (o *Orchestrator) AttachDocument(ctx context.Context, req AttachRequest) (*ChatResponse, error) {
	conv, err := o.prepareConversation(req.ConversationID, req.UserID, req.Level)
	if err != nil {
		return nil, err
	}
	res, err := o.Ingest(ctx, IngestRequest{
		Text:   req.Text,
		UserID: conv.UserID,
		Title:  req.Filename,
		Source: req.Filename,
		Level:  conv.Level,
	})
	if err != nil {
		return nil, err
	}
	rec := res.Lesson
	doc := &models.DocumentContext{
		LessonID:   res.ID,
		Filename:   req.Filename,
		Text:       req.Text,
		Chunks:     rec.Chunks,
		Embeddings: rec.Embeddings,
		Summary:    rec.Summary,
		Framework:  rec.Framework,
	}
	if err := o.convs.SetDocument(conv.ID, doc); err != nil {
		return nil, err
	}

	cls := o.router.Classify("", models.RouteContext{DocumentAttached: true})
	resp := &ChatResponse{
		ConversationID: conv.ID,
		Intent:         cls,
		Plan:           o.router.Plan(cls.Label),
		Content:        rec.Content(),
		LessonID:       res.ID,
		Fallback:       rec.Fallback,
	}
	reply, ok := o.distiller.Overview(ctx, rec.Summary, conv.Level)
	if !ok {
		reply = attachedReply(req.Filename, rec)
	}
	resp.Reply = reply
	return o.finishTurn(conv.ID, resp)
}

// Conversation returns a copy of a conversation's state
func (o *Orchestrator) Conversation(id string) (models.Conversation, error) {
	conv, err := o.convs.Get(id)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

// Conversations lists a user's conversations, most recent first
func (o *Orchestrator) Conversations(userID string) []models.Conversation {
	return o.convs.ListByUser(userID)
}

func (o *Orchestrator) prepareConversation(id, userID string, level models.ExplanationLevel) (models.Conversation, error) {
	conv, created := o.convs.Ensure(id, userID)
	if created {
		o.logger.Debug("conversation started", "id", conv.ID, "user", userID)
	}
	if level.IsValid() && level != conv.Level {
		if err := o.convs.SetLevel(conv.ID, level); err != nil {
			return conv, err
		}
		conv.Level = level
	}
	return conv, nil
}

func (o *Orchestrator) finishTurn(convID string, resp *ChatResponse) (*ChatResponse, error) {
	msg, err := o.convs.Append(convID, models.RoleAssistant, resp.Reply)
	if err != nil {
		return nil, err
	}
	resp.MessageID = uuid.New().String()
	resp.Timestamp = msg.Timestamp
	return resp, nil
}

// KindForAction maps a content kind name or a route plan action to a kind
func KindForAction(action string) (models.ContentKind, bool) {
	a := strings.ToLower(strings.TrimSpace(action))
	for _, plan := range routePlans {
		if plan.Action == a {
			return kindForIntent(plan.Intent)
		}
	}
	switch a {
	case "diagnostic", "test":
		return models.KindQuiz, true
	case "cards", "flashcard":
		return models.KindFlashcards, true
	case "map", "concepts", "concept-map":
		return models.KindConceptMap, true
	}
	kind := models.ContentKind(a)
	return kind, queryable(kind)
}

func kindForIntent(label models.IntentLabel) (models.ContentKind, bool) {
	switch label {
	case models.IntentSummary:
		return models.KindSummary, true
	case models.IntentDiagnostic:
		return models.KindQuiz, true
	case models.IntentFlashcards:
		return models.KindFlashcards, true
	case models.IntentExplanation:
		return models.KindExplanation, true
	case models.IntentWorkflow:
		return models.KindWorkflow, true
	}
	return "", false
}

func queryable(kind models.ContentKind) bool {
	switch kind {
	case models.KindSummary, models.KindFlashcards, models.KindQuiz,
		models.KindConceptMap, models.KindWorkflow, models.KindExplanation:
		return true
	}
	return false
}

func normalizeLevel(level models.ExplanationLevel) models.ExplanationLevel {
	if level.IsValid() {
		return level
	}
	return models.DefaultLevel
}

// deriveTitle uses the given title, else the first heading or line of text
func deriveTitle(req IngestRequest) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	for _, line := range strings.Split(req.Text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return truncate(line, 80)
		}
	}
	return "Untitled lesson"
}

// JoinBullets renders bullets as "• " lines
func JoinBullets(bullets []string) string {
	if len(bullets) == 0 {
		return ""
	}
	return "• " + strings.Join(bullets, "\n• ")
}

// offlineGenerator never produces text
type offlineGenerator struct{}

func (offlineGenerator) Generate(context.Context, []llm.Message, ...llm.GenerateOption) string {
	return ""
}

// fallbackEmbedder embeds with the deterministic lexical fallback only
type fallbackEmbedder struct{}

func (fallbackEmbedder) Embed(_ context.Context, texts []string) [][]float64 {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = llm.FallbackEmbedding(t)
	}
	return out
}

func (fallbackEmbedder) EmbedOne(_ context.Context, text string) []float64 {
	return llm.FallbackEmbedding(text)
}
