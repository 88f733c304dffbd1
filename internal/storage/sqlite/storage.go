// ABOUTME: Durable lesson storage on SQLite
// ABOUTME: Implements storage.LessonStore and storage.HashIndex with listing and deletion
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

var (
	_ storage.LessonStore   = (*Storage)(nil)
	_ storage.HashIndex     = (*Storage)(nil)
	_ storage.LessonCatalog = (*Storage)(nil)
)

// Storage persists lessons, their study content and chunk vectors
type Storage struct {
	db *DB
	mu sync.Mutex
}

// NewStorage initializes storage at the default database path
func NewStorage() (*Storage, error) {
	return NewStorageWithPath(DefaultDBPath())
}

// NewStorageWithPath initializes storage with a custom database path
func NewStorageWithPath(dbPath string) (*Storage, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Storage{db: db}, nil
}

// NewStorageInMemory creates an in-memory storage (for testing)
func NewStorageInMemory() (*Storage, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveLesson writes the record and all of its content in one transaction.
// Records without an id get a fresh uuid; saving an existing id replaces it.
func (s *Storage) SaveLesson(ctx context.Context, record *models.LessonRecord) (string, error) {
	if record == nil {
		return "", errors.New("lesson record is nil")
	}
	id := record.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	bulletsJSON, err := json.Marshal(record.Bullets)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lessons (id, user_id, title, framework, level, content_hash, summary, bullets, reading_minutes, fallback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			framework = excluded.framework,
			level = excluded.level,
			content_hash = excluded.content_hash,
			summary = excluded.summary,
			bullets = excluded.bullets,
			reading_minutes = excluded.reading_minutes,
			fallback = excluded.fallback
	`, id, record.UserID, record.Title, string(record.Framework), string(record.Level),
		record.ContentHash, record.Summary, string(bulletsJSON), record.ReadingMinutes,
		record.Fallback, createdAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save lesson: %w", err)
	}

	if err := saveStudySet(ctx, tx, id, record.Flashcards, record.Quiz); err != nil {
		return "", err
	}
	if err := saveConceptMap(ctx, tx, id, record.ConceptMap); err != nil {
		return "", err
	}
	if err := saveChunks(ctx, tx, id, record.Chunks, record.Embeddings); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit lesson: %w", err)
	}
	return id, nil
}

// GetLesson loads a lesson with all of its content, or storage.ErrNotFound
func (s *Storage) GetLesson(ctx context.Context, id string) (*models.LessonRecord, error) {
	var (
		rec         models.LessonRecord
		framework   sql.NullString
		level       sql.NullString
		summary     sql.NullString
		bulletsJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, framework, level, content_hash, summary, bullets, reading_minutes, fallback, created_at
		FROM lessons
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.UserID, &rec.Title, &framework, &level, &rec.ContentHash,
		&summary, &bulletsJSON, &rec.ReadingMinutes, &rec.Fallback, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson: %w", err)
	}

	rec.Framework = models.Framework(framework.String)
	rec.Level = models.ExplanationLevel(level.String)
	rec.Summary = summary.String
	if bulletsJSON.Valid && bulletsJSON.String != "" {
		if err := json.Unmarshal([]byte(bulletsJSON.String), &rec.Bullets); err != nil {
			rec.Bullets = nil
		}
	}

	if rec.Flashcards, err = s.loadFlashcards(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to load flashcards: %w", err)
	}
	if rec.Quiz, err = s.loadQuiz(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to load quiz: %w", err)
	}
	if rec.ConceptMap, err = s.loadConceptMap(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to load concept map: %w", err)
	}
	cvs, err := s.loadChunks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	rec.Chunks, rec.Embeddings = splitChunkVectors(cvs)

	return &rec, nil
}

// FindLessonByHash returns the oldest lesson ingested from the same content
func (s *Storage) FindLessonByHash(ctx context.Context, contentHash string) (*models.LessonRecord, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM lessons
		WHERE content_hash = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, contentHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up content hash: %w", err)
	}
	return s.GetLesson(ctx, id)
}

// ListLessons returns lesson summaries, newest first. An empty userID lists
// every owner.
func (s *Storage) ListLessons(ctx context.Context, userID string) ([]storage.LessonInfo, error) {
	query := `
		SELECT id, user_id, title, framework, level, reading_minutes, fallback, created_at
		FROM lessons`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lessons []storage.LessonInfo
	for rows.Next() {
		var (
			info      storage.LessonInfo
			framework sql.NullString
			level     sql.NullString
		)
		if err := rows.Scan(&info.ID, &info.UserID, &info.Title, &framework, &level,
			&info.ReadingMinutes, &info.Fallback, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.Framework = models.Framework(framework.String)
		info.Level = models.ExplanationLevel(level.String)
		lessons = append(lessons, info)
	}
	return lessons, rows.Err()
}

// DeleteLesson removes a lesson and, by cascade, all of its content
func (s *Storage) DeleteLesson(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
