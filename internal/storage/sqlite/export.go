// ABOUTME: Export functionality for stored lessons
// ABOUTME: Supports YAML, Markdown and JSON export formats plus a chunk vector dump
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/distill/internal/models"
)

// Export formats
const (
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version    string         `yaml:"version" json:"version"`
	ExportedAt string         `yaml:"exported_at" json:"exported_at"`
	Tool       string         `yaml:"tool" json:"tool"`
	Lessons    []ExportLesson `yaml:"lessons" json:"lessons"`
}

// ExportLesson represents a lesson and its study content for export
type ExportLesson struct {
	LessonID       string             `yaml:"lesson_id" json:"lesson_id"`
	UserID         string             `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	Title          string             `yaml:"title" json:"title"`
	Framework      string             `yaml:"framework" json:"framework"`
	Level          string             `yaml:"level" json:"level"`
	ReadingMinutes int                `yaml:"reading_minutes" json:"reading_minutes"`
	CreatedAt      string             `yaml:"created_at" json:"created_at"`
	Bullets        []string           `yaml:"bullets,omitempty" json:"bullets,omitempty"`
	Flashcards     []models.Flashcard `yaml:"flashcards,omitempty" json:"flashcards,omitempty"`
	Quiz           []models.QuizItem  `yaml:"quiz,omitempty" json:"quiz,omitempty"`
	ConceptMap     *models.ConceptMap `yaml:"concept_map,omitempty" json:"concept_map,omitempty"`
}

// NormalizeFormat maps user input ("md", "yml", ...) to an export format
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (use markdown, yaml or json)", format)
	}
}

// Export collects lessons for export. An empty userID exports every owner;
// lessonIDs, when given, restrict the export to those lessons.
func (s *Storage) Export(ctx context.Context, userID string, lessonIDs ...string) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "distill",
		Lessons:    []ExportLesson{},
	}

	infos, err := s.ListLessons(ctx, userID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(lessonIDs))
	for _, id := range lessonIDs {
		wanted[id] = true
	}

	for _, info := range infos {
		if len(wanted) > 0 && !wanted[info.ID] {
			continue
		}
		rec, err := s.GetLesson(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load lesson %s: %w", info.ID, err)
		}
		data.Lessons = append(data.Lessons, exportLesson(rec))
	}
	return data, nil
}

func exportLesson(rec *models.LessonRecord) ExportLesson {
	return ExportLesson{
		LessonID:       rec.ID,
		UserID:         rec.UserID,
		Title:          rec.Title,
		Framework:      string(rec.Framework),
		Level:          string(rec.Level),
		ReadingMinutes: rec.ReadingMinutes,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
		Bullets:        rec.Bullets,
		Flashcards:     rec.Flashcards,
		Quiz:           rec.Quiz,
		ConceptMap:     rec.ConceptMap,
	}
}

// Write encodes data to w in the given format
func Write(w io.Writer, data *ExportData, format string) error {
	format, err := NormalizeFormat(format)
	if err != nil {
		return err
	}
	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	default:
		return writeMarkdown(w, data)
	}
}

// ExportToFile exports lessons to outputPath in the given format
func (s *Storage) ExportToFile(ctx context.Context, userID, format, outputPath string, lessonIDs ...string) error {
	if _, err := NormalizeFormat(format); err != nil {
		return err
	}
	data, err := s.Export(ctx, userID, lessonIDs...)
	if err != nil {
		return err
	}

	file, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	return Write(file, data, format)
}

func writeMarkdown(w io.Writer, data *ExportData) error {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "# Distill Export - %s\n\n", time.Now().Format("2006-01-02"))
	_, _ = fmt.Fprintf(&b, "Generated: %s\n\n", data.ExportedAt)

	for _, l := range data.Lessons {
		_, _ = fmt.Fprintf(&b, "## %s\n\n", l.Title)
		_, _ = fmt.Fprintf(&b, "*Framework: %s | Level: %s | ~%d min read*\n\n", l.Framework, l.Level, l.ReadingMinutes)

		if len(l.Bullets) > 0 {
			b.WriteString("### Key Points\n\n")
			for _, bullet := range l.Bullets {
				_, _ = fmt.Fprintf(&b, "- %s\n", bullet)
			}
			b.WriteString("\n")
		}

		if len(l.Flashcards) > 0 {
			b.WriteString("### Flashcards\n\n")
			b.WriteString("| Front | Back |\n")
			b.WriteString("|-------|------|\n")
			for _, c := range l.Flashcards {
				_, _ = fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(c.Front), escapeCell(c.Back))
			}
			b.WriteString("\n")
		}

		if len(l.Quiz) > 0 {
			b.WriteString("### Quiz\n\n")
			for i, q := range l.Quiz {
				_, _ = fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
				for j, opt := range q.Options {
					_, _ = fmt.Fprintf(&b, "   %c) %s\n", 'a'+rune(j), opt)
				}
				_, _ = fmt.Fprintf(&b, "   **Answer:** %s\n", q.Answer)
			}
			b.WriteString("\n")
		}

		if !l.ConceptMap.IsEmpty() {
			b.WriteString("### Concept Map\n\n")
			labels := make(map[string]string, len(l.ConceptMap.Nodes))
			for _, n := range l.ConceptMap.Nodes {
				labels[n.ID] = n.Label
			}
			for _, e := range l.ConceptMap.Edges {
				line := fmt.Sprintf("- %s -> %s", labels[e.From], labels[e.To])
				if e.Label != "" {
					line += fmt.Sprintf(" (%s)", e.Label)
				}
				b.WriteString(line + "\n")
			}
			b.WriteString("\n")
		}

		b.WriteString("---\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// ExportChunksToJSON writes a lesson's chunks and embedding vectors to a
// separate JSON file
func (s *Storage) ExportChunksToJSON(ctx context.Context, lessonID, outputPath string) error {
	chunks, err := s.loadChunks(ctx, lessonID)
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}
	if chunks == nil {
		chunks = []ChunkVector{}
	}

	file, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(chunks); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func createOutput(outputPath string) (*os.File, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, nil
}
