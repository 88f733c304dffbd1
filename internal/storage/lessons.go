// ABOUTME: Durable lesson storage contract and a fault-tolerant wrapper
// ABOUTME: Store failures are retried, then replaced by local sequential ids
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/util"
)

// LessonStore persists lesson records and hands back their ids
type LessonStore interface {
	SaveLesson(ctx context.Context, record *models.LessonRecord) (string, error)
	GetLesson(ctx context.Context, id string) (*models.LessonRecord, error)
}

// HashIndex is implemented by stores that can find a lesson by the content
// hash of its source document
type HashIndex interface {
	FindLessonByHash(ctx context.Context, contentHash string) (*models.LessonRecord, error)
}

// LessonCatalog is implemented by stores that can enumerate and remove lessons
type LessonCatalog interface {
	ListLessons(ctx context.Context, userID string) ([]LessonInfo, error)
	DeleteLesson(ctx context.Context, id string) error
}

// LessonInfo contains summary information about a stored lesson
type LessonInfo struct {
	ID             string                  `json:"id" yaml:"id"`
	UserID         string                  `json:"user_id" yaml:"user_id"`
	Title          string                  `json:"title" yaml:"title"`
	Framework      models.Framework        `json:"framework" yaml:"framework"`
	Level          models.ExplanationLevel `json:"level" yaml:"level"`
	ReadingMinutes int                     `json:"reading_minutes" yaml:"reading_minutes"`
	Fallback       bool                    `json:"fallback" yaml:"fallback"`
	CreatedAt      time.Time               `json:"created_at" yaml:"created_at"`
}

// InfoFor summarizes a lesson record
func InfoFor(rec *models.LessonRecord) LessonInfo {
	return LessonInfo{
		ID:             rec.ID,
		UserID:         rec.UserID,
		Title:          rec.Title,
		Framework:      rec.Framework,
		Level:          rec.Level,
		ReadingMinutes: rec.ReadingMinutes,
		Fallback:       rec.Fallback,
		CreatedAt:      rec.CreatedAt,
	}
}

// SortLessonInfos orders lessons newest first, then by id
func SortLessonInfos(infos []LessonInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}

// IDSequence issues process-local lesson ids ("local-1", "local-2", ...)
type IDSequence struct {
	n atomic.Int64
}

// Next returns the next local id
func (s *IDSequence) Next() string {
	return fmt.Sprintf("local-%d", s.n.Add(1))
}

// MemoryLessonStore keeps lessons in a map. Used when no durable backend is
// configured and in tests.
type MemoryLessonStore struct {
	mu      sync.RWMutex
	lessons map[string]*models.LessonRecord
	seq     IDSequence
}

// NewMemoryLessonStore creates an empty in-memory store
func NewMemoryLessonStore() *MemoryLessonStore {
	return &MemoryLessonStore{lessons: make(map[string]*models.LessonRecord)}
}

// SaveLesson stores the record, assigning an id when it has none
func (m *MemoryLessonStore) SaveLesson(_ context.Context, record *models.LessonRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := record.ID
	if id == "" {
		id = m.seq.Next()
	}
	stored := *record
	stored.ID = id
	m.lessons[id] = &stored
	return id, nil
}

// GetLesson returns the stored record or ErrNotFound
func (m *MemoryLessonStore) GetLesson(_ context.Context, id string) (*models.LessonRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.lessons[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// FindLessonByHash returns the first stored lesson with the content hash
func (m *MemoryLessonStore) FindLessonByHash(_ context.Context, contentHash string) (*models.LessonRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.lessons {
		if rec.ContentHash == contentHash {
			out := *rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// ListLessons returns summaries of the stored lessons, newest first. An
// empty userID lists every owner.
func (m *MemoryLessonStore) ListLessons(_ context.Context, userID string) ([]LessonInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []LessonInfo
	for _, rec := range m.lessons {
		if userID == "" || rec.UserID == userID {
			infos = append(infos, InfoFor(rec))
		}
	}
	SortLessonInfos(infos)
	return infos, nil
}

// DeleteLesson removes a lesson or returns ErrNotFound
func (m *MemoryLessonStore) DeleteLesson(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lessons[id]; !ok {
		return ErrNotFound
	}
	delete(m.lessons, id)
	return nil
}

// ResilientStore wraps a LessonStore so that persistence never fails the
// pipeline. A nil inner store always yields local ids and leaves the
// lesson to the cache. When a configured store fails, the record is kept in
// process under its local id so it stays fetchable after the cache drops it.
type ResilientStore struct {
	inner  LessonStore
	local  *MemoryLessonStore
	policy util.Policy
	seq    IDSequence
	logger *log.Logger
}

// NewResilientStore wraps inner with up to retries extra attempts per call
func NewResilientStore(inner LessonStore, retries int, logger *log.Logger) *ResilientStore {
	if logger == nil {
		logger = log.Default()
	}
	return &ResilientStore{
		inner: inner,
		local: NewMemoryLessonStore(),
		policy: util.Policy{
			MaxRetries: retries,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   2 * time.Second,
			Jitter:     true,
		},
		logger: logger,
	}
}

// Save persists the record and returns its id. On persistent failure a
// local sequential id is returned instead.
func (r *ResilientStore) Save(ctx context.Context, record *models.LessonRecord) string {
	if r.inner == nil {
		return r.seq.Next()
	}

	var id string
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		id, err = r.inner.SaveLesson(ctx, record)
		if err != nil {
			r.logger.Debug("lesson save attempt failed", "attempt", attempt+1, "err", err)
		}
		return err
	})
	if err != nil || id == "" {
		local := r.keepLocal(ctx, record)
		r.logger.Warn("durable lesson storage unavailable, using local id", "id", local, "err", err)
		return local
	}
	return id
}

// keepLocal stores a copy of record under the next local id
func (r *ResilientStore) keepLocal(ctx context.Context, record *models.LessonRecord) string {
	id := r.seq.Next()
	stored := *record
	stored.ID = id
	_, _ = r.local.SaveLesson(ctx, &stored)
	return id
}

// Fetch loads a lesson from the durable store, then from the local
// copies. Any failure reports absent.
func (r *ResilientStore) Fetch(ctx context.Context, id string) (*models.LessonRecord, bool) {
	if r.inner != nil {
		rec, err := r.inner.GetLesson(ctx, id)
		if err == nil {
			return rec, true
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("lesson fetch failed", "id", id, "err", err)
		}
	}
	if rec, err := r.local.GetLesson(ctx, id); err == nil {
		return rec, true
	}
	return nil, false
}

// FetchByHash asks a HashIndex-capable store for a lesson with the content
// hash, then the local copies. Failures report absent.
func (r *ResilientStore) FetchByHash(ctx context.Context, contentHash string) (*models.LessonRecord, bool) {
	if idx, ok := r.inner.(HashIndex); ok {
		rec, err := idx.FindLessonByHash(ctx, contentHash)
		if err == nil {
			return rec, true
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("lesson hash lookup failed", "err", err)
		}
	}
	if rec, err := r.local.FindLessonByHash(ctx, contentHash); err == nil {
		return rec, true
	}
	return nil, false
}

// Inner returns the wrapped store, or nil
func (r *ResilientStore) Inner() LessonStore {
	return r.inner
}
