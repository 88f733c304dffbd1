// ABOUTME: Batched embedding generation with a deterministic local fallback
// ABOUTME: Failed or malformed batches degrade per text instead of failing
package llm

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/harper/distill/internal/models"
)

// EmbeddingTransport is the remote embedding endpoint
type EmbeddingTransport interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// maxParallelBatches bounds concurrent embedding requests
const maxParallelBatches = 4

// Embedder turns text into fixed-length vectors clamped to [-1, 1]
type Embedder struct {
	transport EmbeddingTransport
	model     openai.EmbeddingModel
	dim       int
	batchSize int
	timeout   time.Duration
	logger    *log.Logger
}

// NewEmbedder creates an embedder. A nil transport always uses the fallback.
func NewEmbedder(transport EmbeddingTransport, config *ClientConfig, logger *log.Logger) *Embedder {
	if logger == nil {
		logger = log.Default()
	}
	dim := config.Dimension
	if dim <= 0 {
		dim = models.EmbeddingDimension
	}
	batch := config.EmbeddingBatch
	if batch <= 0 {
		batch = 32
	}
	return &Embedder{
		transport: transport,
		model:     config.EmbeddingModel,
		dim:       dim,
		batchSize: batch,
		timeout:   config.AttemptTimeout,
		logger:    logger,
	}
}

// Dimension returns the vector length the embedder produces
func (e *Embedder) Dimension() int {
	return e.dim
}

// Embed returns one vector per text, in order
func (e *Embedder) Embed(ctx context.Context, texts []string) [][]float64 {
	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBatches)
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start := start
		g.Go(func() error {
			copy(out[start:end], e.embedBatch(gctx, texts[start:end]))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// EmbedOne embeds a single text
func (e *Embedder) EmbedOne(ctx context.Context, text string) []float64 {
	return e.Embed(ctx, []string{text})[0]
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) [][]float64 {
	vectors := make([][]float64, len(batch))

	if e.transport != nil {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		resp, err := e.transport.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      batch,
			Model:      e.model,
			Dimensions: e.dim,
		})
		if err != nil {
			e.logger.Warn("embedding request failed, using fallback vectors", "batch", len(batch), "err", err)
		} else {
			for pos, d := range resp.Data {
				idx := d.Index
				if len(resp.Data) == len(batch) && (idx < 0 || idx >= len(batch)) {
					idx = pos
				}
				if idx < 0 || idx >= len(batch) || len(d.Embedding) != e.dim {
					continue
				}
				vec := make([]float64, e.dim)
				for i, v := range d.Embedding {
					vec[i] = float64(v)
				}
				vectors[idx] = models.Clamp(vec)
			}
		}
	}

	missing := 0
	for i, v := range vectors {
		if v == nil {
			vectors[i] = fallbackEmbedding(batch[i], e.dim)
			missing++
		}
	}
	if missing > 0 && e.transport != nil {
		e.logger.Debug("fallback embeddings used", "count", missing, "batch", len(batch))
	}
	return vectors
}
