// ABOUTME: Cloud-synced LessonStore over Charm KV
// ABOUTME: Lessons are JSON values keyed by uuid, with a first-wins content-hash index
package charm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

var (
	_ storage.LessonStore   = (*LessonStore)(nil)
	_ storage.HashIndex     = (*LessonStore)(nil)
	_ storage.LessonCatalog = (*LessonStore)(nil)
)

// LessonStore persists lessons in charm KV
type LessonStore struct {
	client *Client
	now    func() time.Time
}

// NewLessonStore creates a lesson store on an open client
func NewLessonStore(client *Client) *LessonStore {
	return &LessonStore{client: client, now: time.Now}
}

// SaveLesson stores the record under its id, assigning a uuid when empty
func (s *LessonStore) SaveLesson(ctx context.Context, record *models.LessonRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stored := *record
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	if err := s.client.SetJSON(LessonKey(stored.ID), &stored); err != nil {
		return "", fmt.Errorf("failed to save lesson: %w", err)
	}

	if stored.ContentHash != "" {
		_, err := s.client.Get(HashKey(stored.ContentHash))
		switch {
		case errors.Is(err, ErrKeyNotFound):
			if err := s.client.Set(HashKey(stored.ContentHash), []byte(stored.ID)); err != nil {
				return "", fmt.Errorf("failed to index lesson hash: %w", err)
			}
		case err != nil:
			return "", err
		}
	}
	return stored.ID, nil
}

// GetLesson loads a lesson or returns storage.ErrNotFound
func (s *LessonStore) GetLesson(ctx context.Context, id string) (*models.LessonRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec models.LessonRecord
	if err := s.client.GetJSON(LessonKey(id), &rec); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load lesson %s: %w", id, err)
	}
	return &rec, nil
}

// FindLessonByHash follows the hash index to the first lesson saved for it
func (s *LessonStore) FindLessonByHash(ctx context.Context, contentHash string) (*models.LessonRecord, error) {
	id, err := s.client.Get(HashKey(contentHash))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetLesson(ctx, string(id))
}

// ListLessons returns lesson summaries, newest first. An empty userID lists
// every owner.
func (s *LessonStore) ListLessons(ctx context.Context, userID string) ([]storage.LessonInfo, error) {
	keys, err := s.client.ListKeys(LessonPrefix)
	if err != nil {
		return nil, err
	}

	var infos []storage.LessonInfo
	for _, key := range keys {
		rec, err := s.GetLesson(ctx, strings.TrimPrefix(key, LessonPrefix))
		if err != nil {
			continue
		}
		if userID == "" || rec.UserID == userID {
			infos = append(infos, storage.InfoFor(rec))
		}
	}
	storage.SortLessonInfos(infos)
	return infos, nil
}

// DeleteLesson removes a lesson and its hash index entry when it points here
func (s *LessonStore) DeleteLesson(ctx context.Context, id string) error {
	rec, err := s.GetLesson(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Delete(LessonKey(id)); err != nil {
		return err
	}
	if rec.ContentHash != "" {
		if owner, err := s.client.Get(HashKey(rec.ContentHash)); err == nil && string(owner) == id {
			return s.client.Delete(HashKey(rec.ContentHash))
		}
	}
	return nil
}
