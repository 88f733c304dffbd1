// ABOUTME: Tests for the Orchestrator pipeline: ingest, dedup, query and chat
// ABOUTME: Runs offline and against a counting fake transport behind a real ModelClient

package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/distill/internal/extract"
	"github.com/harper/distill/internal/llm"
	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

func newOfflineOrchestrator() *Orchestrator {
	return NewOrchestrator(Deps{Logger: quietLogger()})
}

func newScriptedOrchestrator() (*Orchestrator, *scriptedGenerator) {
	gen := newScriptedGenerator()
	o := NewOrchestrator(Deps{Generator: gen, Logger: quietLogger()})
	return o, gen
}

func newTransportOrchestrator(transport *countingTransport, lessons storage.LessonStore) *Orchestrator {
	cfg := llm.DefaultConfig("test-key")
	cfg.MaxConcurrent = 2
	client := llm.NewModelClient(transport, cfg, quietLogger())
	return NewOrchestrator(Deps{
		Generator: client,
		Lessons:   storage.NewResilientStore(lessons, 0, quietLogger()),
		Logger:    quietLogger(),
	})
}

func TestOrchestrator_IngestOffline(t *testing.T) {
	o := newOfflineOrchestrator()
	res, err := o.Ingest(context.Background(), IngestRequest{Text: sampleDocument, UserID: "u1"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	rec := res.Lesson
	if res.ID != "local-1" || rec.ID != res.ID {
		t.Errorf("ID = %q / %q, want local-1", res.ID, rec.ID)
	}
	if !rec.Fallback {
		t.Error("offline lesson should be marked fallback")
	}
	if rec.Title != "Docker Basics" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Framework != models.FrameworkDocker {
		t.Errorf("Framework = %s, want docker from keyword vote", rec.Framework)
	}
	if len(rec.Flashcards) != StudySetSize || len(rec.Quiz) != StudySetSize {
		t.Errorf("study set = %d cards, %d quiz", len(rec.Flashcards), len(rec.Quiz))
	}
	if len(rec.Chunks) == 0 || len(rec.Embeddings) != len(rec.Chunks) {
		t.Fatalf("chunks = %d, embeddings = %d", len(rec.Chunks), len(rec.Embeddings))
	}
	for _, v := range rec.Embeddings {
		if len(v) != models.EmbeddingDimension {
			t.Fatalf("embedding dimension = %d", len(v))
		}
	}
	if rec.Summary == "" || rec.ConceptMap.IsEmpty() {
		t.Error("summary and concept map should be filled by fallbacks")
	}
}

func TestOrchestrator_IngestRejectsEmpty(t *testing.T) {
	o := newOfflineOrchestrator()
	_, err := o.Ingest(context.Background(), IngestRequest{Text: "   \n ", Source: "scan.txt"})
	if !errors.Is(err, ErrEmptyDocument) || !errors.Is(err, extract.ErrNoText) {
		t.Fatalf("Ingest() error = %v, want ErrEmptyDocument", err)
	}
	var ee *extract.ExtractionError
	if !errors.As(err, &ee) || ee.Source != "scan.txt" {
		t.Errorf("expected ExtractionError for scan.txt, got %v", err)
	}
}

func TestOrchestrator_IngestWithModel(t *testing.T) {
	o, _ := newScriptedOrchestrator()
	res, err := o.Ingest(context.Background(), IngestRequest{Text: sampleDocument, Title: "Containers 101", Level: models.LevelSenior})
	if err != nil {
		t.Fatal(err)
	}
	rec := res.Lesson
	if rec.Fallback {
		t.Error("lesson built from model output should not be fallback")
	}
	if rec.Title != "Containers 101" || rec.Level != models.LevelSenior {
		t.Errorf("Title/Level = %q/%s", rec.Title, rec.Level)
	}
	if rec.Flashcards[0].Front != "What does Docker package applications into?" {
		t.Errorf("first card = %+v", rec.Flashcards[0])
	}
	if len(rec.ConceptMap.Nodes) != 2 {
		t.Errorf("concept map = %+v", rec.ConceptMap)
	}
	if !strings.HasPrefix(rec.Summary, "• ") {
		t.Errorf("Summary = %q", rec.Summary)
	}
}

func TestOrchestrator_DedupDoesNotRegenerate(t *testing.T) {
	transport := &countingTransport{}
	o := newTransportOrchestrator(transport, nil)
	ctx := context.Background()

	first, err := o.Ingest(ctx, IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := transport.calls.Load()
	if callsAfterFirst == 0 {
		t.Fatal("first ingest should call the transport")
	}

	second, err := o.Ingest(ctx, IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || !second.Deduplicated {
		t.Errorf("second ingest = %s (dedup=%v), want %s", second.ID, second.Deduplicated, first.ID)
	}
	if got := transport.calls.Load(); got != callsAfterFirst {
		t.Errorf("transport calls = %d after duplicate ingest, want %d", got, callsAfterFirst)
	}
}

func TestOrchestrator_ConcurrentIdenticalIngests(t *testing.T) {
	single := &countingTransport{}
	if _, err := newTransportOrchestrator(single, nil).Ingest(context.Background(), IngestRequest{Text: sampleDocument}); err != nil {
		t.Fatal(err)
	}

	transport := &countingTransport{}
	o := newTransportOrchestrator(transport, nil)
	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Ingest(context.Background(), IngestRequest{Text: sampleDocument})
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = res.ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("ids differ: %v", ids)
		}
	}
	if got, want := transport.calls.Load(), single.calls.Load(); got != want {
		t.Errorf("transport calls = %d, want %d (one generation)", got, want)
	}
}

type cancelAwareGenerator struct {
	*scriptedGenerator
}

func (g cancelAwareGenerator) Generate(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) string {
	if ctx.Err() != nil {
		return ""
	}
	return g.scriptedGenerator.Generate(ctx, msgs, opts...)
}

func TestOrchestrator_SharedIngestOutlivesCanceledCaller(t *testing.T) {
	o := NewOrchestrator(Deps{Generator: cancelAwareGenerator{newScriptedGenerator()}, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Ingest(ctx, IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	if res.Lesson.Fallback {
		t.Error("canceled caller should not leave a fallback lesson for later callers")
	}

	again, err := o.Ingest(context.Background(), IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != res.ID || again.Lesson.Fallback {
		t.Errorf("later ingest = %s (fallback=%v), want %s generated", again.ID, again.Lesson.Fallback, res.ID)
	}
}

func TestOrchestrator_DedupAcrossProcessesViaStore(t *testing.T) {
	mem := storage.NewMemoryLessonStore()
	first, err := newTransportOrchestrator(&countingTransport{}, mem).Ingest(context.Background(), IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}

	transport := &countingTransport{}
	fresh := newTransportOrchestrator(transport, mem)
	again, err := fresh.Ingest(context.Background(), IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || !again.Deduplicated {
		t.Errorf("fresh process ingest = %s (dedup=%v), want %s", again.ID, again.Deduplicated, first.ID)
	}
	if transport.calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0", transport.calls.Load())
	}
}

type downStore struct{}

func (downStore) SaveLesson(context.Context, *models.LessonRecord) (string, error) {
	return "", errors.New("connection refused")
}

func (downStore) GetLesson(context.Context, string) (*models.LessonRecord, error) {
	return nil, errors.New("connection refused")
}

func TestOrchestrator_LocalLessonSurvivesEviction(t *testing.T) {
	o := NewOrchestrator(Deps{
		Cache:   storage.NewContentCache(storage.WithCapacity(1), storage.WithCacheLogger(quietLogger())),
		Lessons: storage.NewResilientStore(downStore{}, 0, quietLogger()),
		Logger:  quietLogger(),
	})
	ctx := context.Background()

	first, err := o.Ingest(ctx, IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != "local-1" {
		t.Fatalf("first ID = %s, want local-1", first.ID)
	}
	other, err := o.Ingest(ctx, IngestRequest{Text: syntheticDocument(300)})
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Fatalf("distinct documents share id %s", other.ID)
	}

	again, err := o.Ingest(ctx, IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || !again.Deduplicated {
		t.Errorf("re-ingest after eviction = %s (dedup=%v), want %s", again.ID, again.Deduplicated, first.ID)
	}

	_, _ = o.Ingest(ctx, IngestRequest{Text: syntheticDocument(300)})
	if _, err := o.Query(ctx, QueryRequest{LessonID: first.ID}); err != nil {
		t.Errorf("Query(%s) after eviction error = %v", first.ID, err)
	}
}

func TestOrchestrator_EndToEndLargeDocument(t *testing.T) {
	o, _ := newScriptedOrchestrator()
	doc := syntheticDocument(5000)

	res, err := o.Ingest(context.Background(), IngestRequest{Text: doc, UserID: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Lesson.Chunks) < 1 {
		t.Fatal("expected at least one chunk")
	}
	if res.Lesson.Summary == "" {
		t.Error("expected a summary")
	}
	if res.Lesson.ReadingMinutes != 25 {
		t.Errorf("ReadingMinutes = %d, want 25", res.Lesson.ReadingMinutes)
	}

	cached, err := o.Lesson(context.Background(), res.ID)
	if err != nil || cached.ID != res.ID {
		t.Fatalf("Lesson(%s) = %v, %v", res.ID, cached, err)
	}

	again, err := o.Ingest(context.Background(), IngestRequest{Text: doc, UserID: "u"})
	if err != nil || again.ID != res.ID {
		t.Errorf("re-ingest = %v, %v; want id %s", again, err, res.ID)
	}
}

func TestOrchestrator_LessonExpiresFromCache(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := storage.NewContentCache(storage.WithTTL(time.Hour), storage.WithClock(func() time.Time { return now }))
	o := NewOrchestrator(Deps{Cache: cache, Logger: quietLogger()})

	res, err := o.Ingest(context.Background(), IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(59 * time.Minute)
	if _, err := o.Lesson(context.Background(), res.ID); err != nil {
		t.Fatalf("lesson should be live within the TTL: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := o.Lesson(context.Background(), res.ID); !errors.Is(err, ErrLessonNotFound) {
		t.Errorf("expired lesson error = %v, want ErrLessonNotFound", err)
	}
}

func TestOrchestrator_Query(t *testing.T) {
	o, gen := newScriptedOrchestrator()
	ctx := context.Background()
	res, err := o.Ingest(ctx, IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("summary without topic reuses lesson bullets", func(t *testing.T) {
		before := gen.Calls()
		out, err := o.Query(ctx, QueryRequest{LessonID: res.ID, Kind: models.KindSummary})
		if err != nil {
			t.Fatal(err)
		}
		if gen.Calls() != before {
			t.Error("cached summary should not call the model")
		}
		if out.Summary != res.Lesson.Summary {
			t.Errorf("Summary = %q", out.Summary)
		}
	})

	t.Run("routed topic summary", func(t *testing.T) {
		out, err := o.Query(ctx, QueryRequest{LessonID: res.ID, Topic: "summarize volumes"})
		if err != nil {
			t.Fatal(err)
		}
		if out.Kind != models.KindSummary || len(out.Bullets) != 2 || out.Fallback {
			t.Errorf("Query() = %+v", out)
		}
		if len(out.Sources) == 0 {
			t.Error("expected retrieval sources")
		}
	})

	t.Run("flashcards", func(t *testing.T) {
		out, err := o.Query(ctx, QueryRequest{LessonID: res.ID, Kind: models.KindFlashcards})
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Flashcards) != StudySetSize || len(out.Quiz) != 0 {
			t.Errorf("got %d cards and %d quiz items", len(out.Flashcards), len(out.Quiz))
		}
	})

	t.Run("workflow", func(t *testing.T) {
		out, err := o.Query(ctx, QueryRequest{LessonID: res.ID, Topic: "steps to ship an image"})
		if err != nil {
			t.Fatal(err)
		}
		if out.Kind != models.KindWorkflow || len(out.Workflow) != 3 {
			t.Errorf("Query() = %+v", out)
		}
	})

	t.Run("unrouted topic becomes explanation", func(t *testing.T) {
		out, err := o.Query(ctx, QueryRequest{LessonID: res.ID, Topic: "volumes"})
		if err != nil {
			t.Fatal(err)
		}
		if out.Kind != models.KindExplanation || out.Text != "Happy to help with that." {
			t.Errorf("Query() = %+v", out)
		}
	})

	t.Run("unknown lesson", func(t *testing.T) {
		if _, err := o.Query(ctx, QueryRequest{LessonID: "nope"}); !errors.Is(err, ErrLessonNotFound) {
			t.Errorf("error = %v, want ErrLessonNotFound", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := o.Query(ctx, QueryRequest{LessonID: res.ID, Kind: models.KindChat}); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("error = %v, want ErrUnknownAction", err)
		}
	})
}

func TestOrchestrator_QueryOfflineFallsBack(t *testing.T) {
	o := newOfflineOrchestrator()
	res, err := o.Ingest(context.Background(), IngestRequest{Text: sampleDocument})
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range []models.ContentKind{models.KindQuiz, models.KindConceptMap, models.KindWorkflow, models.KindExplanation} {
		out, err := o.Query(context.Background(), QueryRequest{LessonID: res.ID, Kind: kind, Topic: "images"})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if !out.Fallback {
			t.Errorf("%s: expected fallback content", kind)
		}
		if RenderText(out) == "" {
			t.Errorf("%s: fallback rendered empty", kind)
		}
	}
}

func TestOrchestrator_ChatWithoutDocument(t *testing.T) {
	o := newOfflineOrchestrator()
	resp, err := o.Chat(context.Background(), ChatRequest{UserID: "u", Message: "hello there"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Intent.Label != models.IntentClarify || !resp.Fallback {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Reply, "not sure") {
		t.Errorf("Reply = %q", resp.Reply)
	}

	conv, err := o.Conversation(resp.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 2 || conv.Messages[0].Role != models.RoleUser || conv.Messages[1].Role != models.RoleAssistant {
		t.Errorf("messages = %+v", conv.Messages)
	}
}

func TestOrchestrator_ChatWithAttachedDocument(t *testing.T) {
	o, _ := newScriptedOrchestrator()
	ctx := context.Background()

	attached, err := o.AttachDocument(ctx, AttachRequest{UserID: "u", Text: sampleDocument, Filename: "docker.md", Level: models.LevelFiveYearOld})
	if err != nil {
		t.Fatal(err)
	}
	if attached.LessonID == "" || attached.Intent.Label != models.IntentDiagnostic {
		t.Errorf("attach resp = %+v", attached)
	}
	convID := attached.ConversationID

	cards, err := o.Chat(ctx, ChatRequest{ConversationID: convID, Message: "make flashcards please"})
	if err != nil {
		t.Fatal(err)
	}
	if cards.ConversationID != convID || cards.Intent.Label != models.IntentFlashcards {
		t.Errorf("flashcards resp = %+v", cards)
	}
	if cards.Content == nil || len(cards.Content.Flashcards) != StudySetSize {
		t.Fatalf("content = %+v", cards.Content)
	}
	if !strings.Contains(cards.Reply, "Q: ") {
		t.Errorf("Reply = %q", cards.Reply)
	}

	quiz, err := o.Chat(ctx, ChatRequest{ConversationID: convID})
	if err != nil {
		t.Fatal(err)
	}
	if quiz.Intent.Label != models.IntentDiagnostic || quiz.Content == nil || len(quiz.Content.Quiz) != StudySetSize {
		t.Errorf("empty message after upload should run a quiz, got %+v", quiz)
	}

	free, err := o.Chat(ctx, ChatRequest{ConversationID: convID, Message: "explain volumes to me"})
	if err != nil {
		t.Fatal(err)
	}
	if free.Content != nil || free.Reply != "Happy to help with that." {
		t.Errorf("explanation should be a free reply, got %+v", free)
	}

	conv, err := o.Conversation(convID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Level != models.LevelFiveYearOld || conv.Document == nil || conv.Metadata["framework"] != "docker" {
		t.Errorf("conversation state = level %s, doc %v, meta %v", conv.Level, conv.Document != nil, conv.Metadata)
	}
	// attach reply, flashcards turn (2), quiz turn (1), explanation turn (2)
	if len(conv.Messages) != 6 {
		t.Errorf("got %d messages, want 6", len(conv.Messages))
	}

	out, err := o.Query(ctx, QueryRequest{ConversationID: convID, Topic: "volumes"})
	if err != nil || out.Kind != models.KindExplanation {
		t.Errorf("conversation query = %+v, %v", out, err)
	}
}

func TestOrchestrator_QueryConversationWithoutDocument(t *testing.T) {
	o := newOfflineOrchestrator()
	resp, err := o.Chat(context.Background(), ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Query(context.Background(), QueryRequest{ConversationID: resp.ConversationID}); !errors.Is(err, ErrLessonNotFound) {
		t.Errorf("error = %v, want ErrLessonNotFound", err)
	}
}

func TestKindForAction(t *testing.T) {
	tests := []struct {
		in   string
		want models.ContentKind
		ok   bool
	}{
		{"generate_flashcards", models.KindFlashcards, true},
		{"run_diagnostic", models.KindQuiz, true},
		{"quiz", models.KindQuiz, true},
		{"concept_map", models.KindConceptMap, true},
		{"Workflow", models.KindWorkflow, true},
		{"clarify", "", false},
		{"dance", "dance", false},
	}
	for _, tt := range tests {
		got, ok := KindForAction(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("KindForAction(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
