// ABOUTME: End-to-end tests for the pipeline commands against a temp SQLite store
// ABOUTME: Runs offline so summaries and embeddings come from the fallbacks

package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

const dockerDoc = `# Docker Basics

Docker packages applications into containers. A container bundles code with its dependencies.
Images are built from a Dockerfile. Each instruction in the Dockerfile creates a layer.
Volumes persist data outside the container filesystem. Networks let containers talk to each other.
Compose describes multi-container applications in a single YAML file.`

// setupCLI points the CLI at a fresh database and disables the model
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DISTILL_STORE", "sqlite")
	t.Setenv("DISTILL_DB_PATH", filepath.Join(dir, "distill.db"))
	t.Setenv("DISTILL_LOG_LEVEL", "info")
	return dir
}

func writeDoc(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--user", "tester"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

type ingestOutput struct {
	ID           string             `json:"id"`
	Deduplicated bool               `json:"deduplicated"`
	Lesson       storage.LessonInfo `json:"lesson"`
	Bullets      []string           `json:"bullets"`
}

func ingestDoc(t *testing.T, path string) ingestOutput {
	t.Helper()
	out, err := runCLI(t, "", "--format", "json", "ingest", path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var res []ingestOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("ingest output is not JSON: %v\n%s", err, out)
	}
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	return res[0]
}

func TestIngest_PersistsAndDeduplicates(t *testing.T) {
	dir := setupCLI(t)
	path := writeDoc(t, dir, "docker.md", dockerDoc)

	first := ingestDoc(t, path)
	if first.ID == "" {
		t.Fatal("empty lesson id")
	}
	if first.Deduplicated {
		t.Error("first ingest should not be deduplicated")
	}
	if first.Lesson.Title != "Docker Basics" {
		t.Errorf("Title = %q, want Docker Basics", first.Lesson.Title)
	}
	if !first.Lesson.Fallback {
		t.Error("offline lesson should be marked fallback")
	}
	if len(first.Bullets) == 0 {
		t.Error("expected summary bullets")
	}

	// A second process finds the lesson through the store's hash index
	second := ingestDoc(t, path)
	if !second.Deduplicated || second.ID != first.ID {
		t.Errorf("second ingest = %+v, want deduplicated %s", second, first.ID)
	}
}

func TestIngest_Table(t *testing.T) {
	dir := setupCLI(t)
	path := writeDoc(t, dir, "docker.md", dockerDoc)

	out, err := runCLI(t, "", "ingest", "--title", "Containers 101", path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	for _, want := range []string{"ID", "TITLE", "Containers 101", "new (offline)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIngest_Stdin(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, dockerDoc, "--quiet", "ingest", "-")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "Docker Basics") {
		t.Errorf("output missing title:\n%s", out)
	}
}

func TestIngest_Errors(t *testing.T) {
	dir := setupCLI(t)
	empty := writeDoc(t, dir, "empty.md", "   \n\n")
	pdf := writeDoc(t, dir, "paper.pdf", "%PDF")
	doc := writeDoc(t, dir, "a.md", dockerDoc)

	tests := []struct {
		name string
		args []string
	}{
		{"no args", []string{"ingest"}},
		{"empty document", []string{"ingest", empty}},
		{"unsupported extension", []string{"ingest", pdf}},
		{"missing file", []string{"ingest", filepath.Join(dir, "missing.md")}},
		{"title with several files", []string{"ingest", "--title", "x", doc, doc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, "", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestQuery(t *testing.T) {
	dir := setupCLI(t)
	lesson := ingestDoc(t, writeDoc(t, dir, "docker.md", dockerDoc))

	tests := []struct {
		name string
		args []string
		want models.ContentKind
	}{
		{"explicit flashcards", []string{"query", lesson.ID, "--kind", "flashcards"}, models.KindFlashcards},
		{"action alias", []string{"query", lesson.ID, "--kind", "run_diagnostic"}, models.KindQuiz},
		{"routed topic", []string{"query", lesson.ID, "summarize", "volumes"}, models.KindSummary},
		{"unrouted topic", []string{"query", lesson.ID, "volumes"}, models.KindExplanation},
		{"no topic", []string{"query", lesson.ID}, models.KindSummary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "", append([]string{"--format", "json"}, tt.args...)...)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			var content models.GeneratedContent
			if err := json.Unmarshal([]byte(out), &content); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if content.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", content.Kind, tt.want)
			}
		})
	}
}

func TestQuery_Errors(t *testing.T) {
	dir := setupCLI(t)
	lesson := ingestDoc(t, writeDoc(t, dir, "docker.md", dockerDoc))

	if _, err := runCLI(t, "", "query", "no-such-lesson"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("unknown lesson err = %v", err)
	}
	if _, err := runCLI(t, "", "query", lesson.ID, "--kind", "poem"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestClassify(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		args []string
		want models.IntentLabel
	}{
		{[]string{"classify", "make me some flashcards"}, models.IntentFlashcards},
		{[]string{"classify", "summarize", "this"}, models.IntentSummary},
		{[]string{"classify", "hello there"}, models.IntentClarify},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			out, err := runCLI(t, "", append([]string{"--format", "json"}, tt.args...)...)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			var got struct {
				Intent models.IntentClassification `json:"intent"`
				Plan   models.RoutePlan            `json:"plan"`
			}
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if got.Intent.Label != tt.want || got.Plan.Intent != tt.want {
				t.Errorf("got %+v, want %s", got, tt.want)
			}
		})
	}

	out, err := runCLI(t, "", "classify", "hello there")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out, "Intent:     clarify") || !strings.Contains(out, "Try:") {
		t.Errorf("table output:\n%s", out)
	}
}

func TestLessons_ListShowDelete(t *testing.T) {
	dir := setupCLI(t)
	lesson := ingestDoc(t, writeDoc(t, dir, "docker.md", dockerDoc))

	out, err := runCLI(t, "", "--format", "json", "lessons", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var infos []storage.LessonInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(infos) != 1 || infos[0].ID != lesson.ID {
		t.Fatalf("list = %+v", infos)
	}

	out, err = runCLI(t, "", "lessons", "show", lesson.ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Docker Basics") || !strings.Contains(out, "Flashcards:") {
		t.Errorf("show output:\n%s", out)
	}

	if _, err := runCLI(t, "", "lessons", "delete", lesson.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := runCLI(t, "", "lessons", "delete", lesson.ID); err == nil {
		t.Error("deleting twice should fail")
	}

	out, err = runCLI(t, "", "lessons", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No lessons found") {
		t.Errorf("list after delete:\n%s", out)
	}
}

func TestLessons_SyncNeedsCharm(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "lessons", "sync")
	if err == nil || !strings.Contains(err.Error(), "charm") {
		t.Errorf("sync err = %v, want charm store error", err)
	}
}

func TestExport(t *testing.T) {
	dir := setupCLI(t)
	lesson := ingestDoc(t, writeDoc(t, dir, "docker.md", dockerDoc))

	out, err := runCLI(t, "", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{"# Distill Export", "## Docker Basics", "### Key Points"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown export missing %q", want)
		}
	}

	yamlPath := filepath.Join(dir, "out", "lessons.yaml")
	if _, err := runCLI(t, "", "export", "--type", "yml", "--output", yamlPath); err != nil {
		t.Fatalf("export yaml: %v", err)
	}
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "lesson_id:") || !strings.Contains(string(data), lesson.ID) {
		t.Errorf("yaml export missing lesson id:\n%s", data)
	}

	chunksPath := filepath.Join(dir, "chunks.json")
	if _, err := runCLI(t, "", "export", "--chunks", lesson.ID, "--output", chunksPath); err != nil {
		t.Fatalf("export chunks: %v", err)
	}
	if _, err := os.Stat(chunksPath); err != nil {
		t.Errorf("chunks file not written: %v", err)
	}

	if _, err := runCLI(t, "", "export", "--type", "pdf"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := runCLI(t, "", "export", "--chunks", lesson.ID); err == nil {
		t.Error("expected error for --chunks without --output")
	}
}

func TestExport_RequiresSQLite(t *testing.T) {
	setupCLI(t)
	t.Setenv("DISTILL_STORE", "none")

	if _, err := runCLI(t, "", "export"); err == nil {
		t.Error("expected error without sqlite store")
	}
}

func TestChat_AttachAndAsk(t *testing.T) {
	dir := setupCLI(t)
	path := writeDoc(t, dir, "docker.md", dockerDoc)

	out, err := runCLI(t, "", "chat", "--attach", path, "summarize this")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, `I've processed "docker.md"`) {
		t.Errorf("missing attach reply:\n%s", out)
	}
	if !strings.Contains(out, "Here are the key points:") {
		t.Errorf("missing summary reply:\n%s", out)
	}
}

func TestChat_REPL(t *testing.T) {
	dir := setupCLI(t)
	path := writeDoc(t, dir, "docker.md", dockerDoc)

	session := strings.Join([]string{
		"hello there",
		"/attach " + path,
		"/level senior",
		"make me some flashcards",
		"/quit",
		"this line is never read",
	}, "\n")

	out, err := runCLI(t, session, "--quiet", "chat")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	for _, want := range []string{
		"I'm not sure what you'd like to do",
		`I've processed "docker.md"`,
		"Explanation level set to senior",
		"Flashcards:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("session output missing %q:\n%s", want, out)
		}
	}
}

func TestChat_REPLReportsErrors(t *testing.T) {
	dir := setupCLI(t)

	session := "/attach " + filepath.Join(dir, "missing.md") + "\n/quit\n"
	out, err := runCLI(t, session, "--quiet", "chat")
	if err != nil {
		t.Fatalf("chat should keep running after a failed attach: %v", err)
	}
	if !strings.Contains(out, "Error: failed to read document") {
		t.Errorf("output:\n%s", out)
	}
}
