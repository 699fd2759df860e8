// Package embed groups chunks into fixed-size batches, requests vectors
// from the embedding provider and persists chunk+vector rows.
package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/metrics"
	"github.com/docsmith-ai/docsmith/internal/models"
)

// DefaultBatchSize is the number of chunks embedded per provider call.
const DefaultBatchSize = 5

// DefaultBatchDelay spaces provider calls to stay under rate limits. The
// delay is fixed, not exponential.
const DefaultBatchDelay = time.Second

// ChunkStore is the subset of persistence the batcher needs.
type ChunkStore interface {
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
}

// Batcher embeds chunk contents batch by batch, strictly in index order, and
// writes each batch as a single insert. Any batch failure aborts the run;
// rows written by earlier batches are left in place.
type Batcher struct {
	provider  core.EmbeddingProvider
	store     ChunkStore
	batchSize int
	limiter   *rate.Limiter
	timeout   time.Duration
	log       *zap.Logger
}

func NewBatcher(provider core.EmbeddingProvider, store ChunkStore, batchSize int, delay, callTimeout time.Duration, log *zap.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay <= 0 {
		delay = DefaultBatchDelay
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Batcher{
		provider:  provider,
		store:     store,
		batchSize: batchSize,
		// burst 1 with a fixed refill interval: the first batch runs
		// immediately, every following one waits out the delay.
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		timeout: callTimeout,
		log:     log,
	}
}

// EmbedAndStore embeds every chunk of a document and persists the rows.
// Progress is reported as the fraction of batches completed. Returns the
// number of chunks written.
func (b *Batcher) EmbedAndStore(ctx context.Context, documentID string, chunks []string, sink core.ProgressSink) (int, error) {
	if sink == nil {
		sink = core.NopProgress
	}
	if len(chunks) == 0 {
		sink.Report(1.0)
		return 0, nil
	}

	total := len(chunks)
	batches := (total + b.batchSize - 1) / b.batchSize

	for bi := 0; bi < batches; bi++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return 0, &core.EmbeddingError{Batch: bi, Err: err}
		}

		start := bi * b.batchSize
		end := start + b.batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		vecs, err := b.embedBatch(ctx, batch)
		if err != nil {
			metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
			return 0, &core.EmbeddingError{Batch: bi, Err: err}
		}
		metrics.EmbeddingBatchesTotal.WithLabelValues("ok").Inc()
		if len(vecs) != len(batch) {
			return 0, &core.EmbeddingError{Batch: bi, Err: fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))}
		}

		rows := make([]models.DocumentChunk, len(batch))
		for k := range batch {
			rows[k] = models.DocumentChunk{
				ID:          uuid.NewString(),
				DocumentID:  documentID,
				Content:     batch[k],
				Embedding:   vecs[k],
				ChunkIndex:  start + k,
				TotalChunks: total,
			}
		}
		if err := b.store.InsertDocumentChunks(ctx, rows); err != nil {
			return 0, &core.EmbeddingError{Batch: bi, Err: fmt.Errorf("insert chunks: %w", err)}
		}

		b.log.Debug("embedded batch",
			zap.String("document_id", documentID),
			zap.Int("batch", bi+1),
			zap.Int("batches", batches))
		sink.Report(float64(bi+1) / float64(batches))
	}
	return total, nil
}

func (b *Batcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.provider.EmbedTexts(callCtx, texts)
}
