// ABOUTME: Chunk and embedding vector persistence for lessons
// ABOUTME: Vectors are stored as little-endian float64 blobs next to their chunk text
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/harper/distill/internal/models"
)

// ChunkVector is one stored chunk and its embedding, if any
type ChunkVector struct {
	Index  int       `json:"index"`
	Text   string    `json:"text"`
	Vector []float64 `json:"vector,omitempty"`
}

// saveChunks replaces a lesson's chunks inside tx. vectors align with chunks
// by position; missing vectors are stored as NULL.
func saveChunks(ctx context.Context, tx *sql.Tx, lessonID string, chunks []models.Chunk, vectors [][]float64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE lesson_id = ?`, lessonID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (lesson_id, chunk_index, text, vector)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, ch := range chunks {
		var blob []byte
		if i < len(vectors) && len(vectors[i]) > 0 {
			blob = vectorToBlob(vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, lessonID, ch.Index, ch.Text, blob); err != nil {
			return fmt.Errorf("failed to save chunk %d: %w", ch.Index, err)
		}
	}
	return nil
}

// loadChunks returns a lesson's chunks in order
func (s *Storage) loadChunks(ctx context.Context, lessonID string) ([]ChunkVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, text, vector
		FROM chunks
		WHERE lesson_id = ?
		ORDER BY chunk_index
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ChunkVector
	for rows.Next() {
		var (
			cv   ChunkVector
			blob []byte
		)
		if err := rows.Scan(&cv.Index, &cv.Text, &blob); err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			cv.Vector = blobToVector(blob)
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}

// splitChunkVectors rebuilds the record fields. Embeddings are returned only
// when every chunk has a vector, so callers never see a misaligned slice.
func splitChunkVectors(cvs []ChunkVector) ([]models.Chunk, [][]float64) {
	chunks := make([]models.Chunk, len(cvs))
	vectors := make([][]float64, len(cvs))
	complete := len(cvs) > 0
	for i, cv := range cvs {
		chunks[i] = models.Chunk{Index: cv.Index, Text: cv.Text}
		vectors[i] = cv.Vector
		if len(cv.Vector) == 0 {
			complete = false
		}
	}
	if !complete {
		vectors = nil
	}
	return chunks, vectors
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}
