// ABOUTME: Tests for export functionality
// ABOUTME: Verifies YAML, Markdown, and JSON export formats
package sqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func seedExport(t *testing.T) (*Storage, string) {
	t.Helper()
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.SaveLesson(ctx, sampleLesson("alice", "Docker basics", "h1", base))
	if err != nil {
		t.Fatalf("SaveLesson() error = %v", err)
	}
	if _, err := s.SaveLesson(ctx, sampleLesson("bob", "Bob's lesson", "h2", base.Add(time.Hour))); err != nil {
		t.Fatalf("SaveLesson() error = %v", err)
	}
	return s, id
}

func TestExport(t *testing.T) {
	s, id := seedExport(t)
	ctx := context.Background()

	data, err := s.Export(ctx, "alice")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if data.Version != "1.0" {
		t.Errorf("Version = %v, want 1.0", data.Version)
	}
	if data.Tool != "distill" {
		t.Errorf("Tool = %v, want distill", data.Tool)
	}
	if len(data.Lessons) != 1 || data.Lessons[0].LessonID != id {
		t.Fatalf("Lessons = %+v", data.Lessons)
	}
	l := data.Lessons[0]
	if l.Framework != "docker" || l.Level != "intern" || len(l.Flashcards) != 2 || len(l.Quiz) != 1 {
		t.Errorf("lesson = %+v", l)
	}

	all, err := s.Export(ctx, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(all.Lessons) != 2 {
		t.Errorf("Export(all) = %d lessons, want 2", len(all.Lessons))
	}

	only, err := s.Export(ctx, "", id)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(only.Lessons) != 1 || only.Lessons[0].Title != "Docker basics" {
		t.Errorf("Export(id) = %+v", only.Lessons)
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"Markdown", FormatMarkdown, false},
		{"yml", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"JSON", FormatJSON, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrite_Formats(t *testing.T) {
	s, _ := seedExport(t)
	data, err := s.Export(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, data, "yaml"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var parsed ExportData
		if err := yaml.Unmarshal(buf.Bytes(), &parsed); err != nil {
			t.Fatalf("exported YAML does not parse: %v", err)
		}
		if len(parsed.Lessons) != 1 || parsed.Lessons[0].Title != "Docker basics" {
			t.Errorf("parsed = %+v", parsed.Lessons)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, data, "json"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var parsed ExportData
		if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
			t.Fatalf("exported JSON does not parse: %v", err)
		}
		if parsed.Lessons[0].ConceptMap == nil || len(parsed.Lessons[0].ConceptMap.Edges) != 1 {
			t.Errorf("concept map lost in JSON export: %+v", parsed.Lessons[0].ConceptMap)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, data, "md"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"# Distill Export",
			"## Docker basics",
			"### Key Points",
			"- Containers package apps",
			"| What is a container image? | A layered filesystem snapshot |",
			"1. Which command builds an image?",
			"   b) docker build",
			"**Answer:** b",
			"- Docker -> Images (builds)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("markdown missing %q", want)
			}
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, data, "csv"); err == nil {
			t.Error("Write() should reject unknown formats")
		}
	})
}

func TestExportToFile(t *testing.T) {
	s, _ := seedExport(t)
	path := filepath.Join(t.TempDir(), "out", "lessons.yaml")

	if err := s.ExportToFile(context.Background(), "", "yaml", path); err != nil {
		t.Fatalf("ExportToFile() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(raw), "tool: distill") {
		t.Errorf("export file missing tool header:\n%s", raw)
	}
}

func TestExportChunksToJSON(t *testing.T) {
	s, id := seedExport(t)
	path := filepath.Join(t.TempDir(), "chunks.json")

	if err := s.ExportChunksToJSON(context.Background(), id, path); err != nil {
		t.Fatalf("ExportChunksToJSON() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var chunks []ChunkVector
	if err := json.Unmarshal(raw, &chunks); err != nil {
		t.Fatalf("chunk export does not parse: %v", err)
	}
	if len(chunks) != 2 || len(chunks[0].Vector) != 3 {
		t.Errorf("chunks = %+v", chunks)
	}
}
