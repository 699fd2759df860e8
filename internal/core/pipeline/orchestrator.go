// Package pipeline sequences extraction, chunking and embedding for one
// document, owns the processing state machine, and decides where each run
// executes (server path, isolated worker, synchronous fallback).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/core/chunker"
	"github.com/docsmith-ai/docsmith/internal/core/embed"
	"github.com/docsmith-ai/docsmith/internal/core/extract"
	"github.com/docsmith-ai/docsmith/internal/core/objectstore"
	"github.com/docsmith-ai/docsmith/internal/metrics"
	"github.com/docsmith-ai/docsmith/internal/models"
)

// Progress milestone weighting: extraction 0 -> 0.3, embedding 0.3 -> 0.9,
// finalize 0.9 -> 1.0.
const (
	milestoneExtracted = 0.3
	milestoneEmbedded  = 0.9
)

// DocumentProcessor runs the full pipeline for one document. The sink, when
// non-nil, receives run-level progress in addition to the durable state
// writes (the worker path uses it to emit status frames).
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID string, sink core.ProgressSink) error
}

// Config tunes one Processor.
type Config struct {
	ChunkSize   int
	Overlap     int
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = chunker.DefaultOverlap
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// Processor is the orchestrator: it claims the document, runs
// extract -> chunk -> embed, and durably persists every state transition
// before returning so status pollers always see a consistent view.
type Processor struct {
	db         core.DbClient
	obj        core.ObjectClient
	dispatcher *extract.Dispatcher
	batcher    *embed.Batcher
	cfg        Config
	log        *zap.Logger
}

func NewProcessor(db core.DbClient, obj core.ObjectClient, dispatcher *extract.Dispatcher, batcher *embed.Batcher, cfg Config, log *zap.Logger) *Processor {
	return &Processor{
		db:         db,
		obj:        obj,
		dispatcher: dispatcher,
		batcher:    batcher,
		cfg:        cfg.withDefaults(),
		log:        log,
	}
}

var _ DocumentProcessor = (*Processor)(nil)

func (p *Processor) ProcessDocument(ctx context.Context, documentID string, sink core.ProgressSink) error {
	started := time.Now()

	doc, err := p.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", documentID)
	}

	// Extraction and embedding already performed by a trusted upstream:
	// short-circuit straight to completed.
	if doc.State.PreProcessed {
		return p.db.UpdateDocumentState(ctx, documentID, map[string]any{
			"status":       models.StatusCompleted,
			"progress":     1.0,
			"processed_at": time.Now().UTC(),
		})
	}

	claimed, err := p.db.ClaimDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		return core.ErrAlreadyProcessing
	}

	if err := p.run(ctx, doc, sink); err != nil {
		p.fail(documentID, err)
		metrics.DocumentsProcessedTotal.WithLabelValues(models.StatusError).Inc()
		metrics.ProcessingDurationSeconds.Observe(time.Since(started).Seconds())
		return err
	}

	metrics.DocumentsProcessedTotal.WithLabelValues(models.StatusCompleted).Inc()
	metrics.ProcessingDurationSeconds.Observe(time.Since(started).Seconds())
	return nil
}

func (p *Processor) run(ctx context.Context, doc *models.Document, sink core.ProgressSink) error {
	absolute := Fanout(p.stateSink(doc.ID), sink)

	data, err := p.download(ctx, doc)
	if err != nil {
		return err
	}
	if err := p.checkpoint(ctx); err != nil {
		return err
	}

	extracted, err := p.dispatcher.Dispatch(ctx, data, doc.ContentType, doc.FileName, Band(absolute, 0, milestoneExtracted))
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues("dispatch", "error").Inc()
		return err
	}
	metrics.ExtractionTotal.WithLabelValues(extracted.ExtractionMethod, "ok").Inc()
	absolute.Report(milestoneExtracted)
	if err := p.checkpoint(ctx); err != nil {
		return err
	}

	chunks, err := chunker.Chunk(extracted.Text, p.cfg.ChunkSize, p.cfg.Overlap)
	if err != nil {
		return err
	}

	count, err := p.batcher.EmbedAndStore(ctx, doc.ID, chunks, Band(absolute, milestoneExtracted, milestoneEmbedded))
	if err != nil {
		return err
	}
	if err := p.checkpoint(ctx); err != nil {
		return err
	}

	if err := p.db.UpdateDocumentState(ctx, doc.ID, map[string]any{
		"status":       models.StatusCompleted,
		"progress":     1.0,
		"chunks_count": count,
		"processed_at": time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("finalize state: %w", err)
	}

	p.log.Info("document processed",
		zap.String("document_id", doc.ID),
		zap.String("method", extracted.ExtractionMethod),
		zap.Int("chunks", count))
	if sink != nil {
		sink.Report(1.0)
	}
	return nil
}

func (p *Processor) download(ctx context.Context, doc *models.Document) ([]byte, error) {
	bucket, key := objectstore.ParseURL(doc.StorageURL)
	getCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	rc, err := p.obj.GetObjectReader(getCtx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", doc.StorageURL, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", doc.StorageURL, err)
	}
	return data, nil
}

// checkpoint is the cooperative cancellation check between stages; the
// pipeline never interrupts a provider call mid-flight.
func (p *Processor) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCancelled, err)
	}
	return nil
}

// stateSink persists progress updates as they happen. Failures to write a
// non-terminal progress value are logged, not escalated.
func (p *Processor) stateSink(documentID string) core.ProgressSink {
	return core.ProgressFunc(func(fraction float64) {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CallTimeout)
		defer cancel()
		if err := p.db.UpdateDocumentState(ctx, documentID, map[string]any{"progress": fraction}); err != nil {
			p.log.Warn("progress write failed",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
	})
}

// fail records the terminal error state. It uses a fresh context so the
// write still lands when the run context was cancelled.
func (p *Processor) fail(documentID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CallTimeout)
	defer cancel()

	if err := p.db.UpdateDocumentState(ctx, documentID, map[string]any{
		"status":        models.StatusError,
		"error_message": errorMessage(cause),
		"processed_at":  time.Now().UTC(),
	}); err != nil {
		p.log.Error("failed to record error state",
			zap.String("document_id", documentID),
			zap.Error(err))
	}
}

func errorMessage(err error) string {
	if errors.Is(err, core.ErrCancelled) || errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}
