// ABOUTME: Study content persistence: flashcards, quiz items and concept maps
// ABOUTME: Rows are replaced wholesale each time a lesson is saved
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harper/distill/internal/models"
)

func saveStudySet(ctx context.Context, tx *sql.Tx, lessonID string, cards []models.Flashcard, quiz []models.QuizItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM flashcards WHERE lesson_id = ?`, lessonID); err != nil {
		return fmt.Errorf("failed to clear flashcards: %w", err)
	}
	for i, c := range cards {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flashcards (lesson_id, position, front, back)
			VALUES (?, ?, ?, ?)
		`, lessonID, i, c.Front, c.Back); err != nil {
			return fmt.Errorf("failed to save flashcard: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_items WHERE lesson_id = ?`, lessonID); err != nil {
		return fmt.Errorf("failed to clear quiz: %w", err)
	}
	for i, q := range quiz {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_items (lesson_id, position, question, options, answer)
			VALUES (?, ?, ?, ?, ?)
		`, lessonID, i, q.Question, string(options), q.Answer); err != nil {
			return fmt.Errorf("failed to save quiz item: %w", err)
		}
	}
	return nil
}

func saveConceptMap(ctx context.Context, tx *sql.Tx, lessonID string, m *models.ConceptMap) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM concept_maps WHERE lesson_id = ?`, lessonID); err != nil {
		return fmt.Errorf("failed to clear concept map: %w", err)
	}
	if m.IsEmpty() {
		return nil
	}
	nodes, err := json.Marshal(m.Nodes)
	if err != nil {
		return err
	}
	edges, err := json.Marshal(m.Edges)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO concept_maps (lesson_id, nodes, edges)
		VALUES (?, ?, ?)
	`, lessonID, string(nodes), string(edges))
	if err != nil {
		return fmt.Errorf("failed to save concept map: %w", err)
	}
	return nil
}

func (s *Storage) loadFlashcards(ctx context.Context, lessonID string) ([]models.Flashcard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT front, back FROM flashcards
		WHERE lesson_id = ?
		ORDER BY position
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cards []models.Flashcard
	for rows.Next() {
		var c models.Flashcard
		if err := rows.Scan(&c.Front, &c.Back); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *Storage) loadQuiz(ctx context.Context, lessonID string) ([]models.QuizItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question, options, answer FROM quiz_items
		WHERE lesson_id = ?
		ORDER BY position
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var quiz []models.QuizItem
	for rows.Next() {
		var (
			q       models.QuizItem
			options string
		)
		if err := rows.Scan(&q.Question, &options, &q.Answer); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("corrupt quiz options: %w", err)
		}
		quiz = append(quiz, q)
	}
	return quiz, rows.Err()
}

func (s *Storage) loadConceptMap(ctx context.Context, lessonID string) (*models.ConceptMap, error) {
	var nodes, edges string
	err := s.db.QueryRowContext(ctx, `
		SELECT nodes, edges FROM concept_maps WHERE lesson_id = ?
	`, lessonID).Scan(&nodes, &edges)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m := &models.ConceptMap{}
	if err := json.Unmarshal([]byte(nodes), &m.Nodes); err != nil {
		return nil, fmt.Errorf("corrupt concept map nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edges), &m.Edges); err != nil {
		return nil, fmt.Errorf("corrupt concept map edges: %w", err)
	}
	return m, nil
}
