package core

import (
	"errors"
	"fmt"
)

// Sentinel causes surfaced by the pipeline.
var (
	// ErrUnsupportedType is returned when no extractor matches the declared
	// or inferred document type after all fallbacks.
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrPasswordProtected is returned for encrypted PDFs instead of
	// silently yielding empty text.
	ErrPasswordProtected = errors.New("document is password protected")
	// ErrAlreadyProcessing rejects a second concurrent run for a document.
	ErrAlreadyProcessing = errors.New("document is already being processed")
	// ErrCancelled marks a run terminated by an explicit cancel request.
	ErrCancelled = errors.New("processing cancelled")
)

// ExtractionError wraps failures of the dispatcher or an extractor.
type ExtractionError struct {
	MIMEType string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %v", e.MIMEType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ChunkingError reports malformed chunker configuration; the splitting
// itself cannot fail.
type ChunkingError struct {
	Reason string
}

func (e *ChunkingError) Error() string { return "chunking: " + e.Reason }

// EmbeddingError wraps a provider or persistence failure during one batch.
// Batch is the zero-based index of the failed batch.
type EmbeddingError struct {
	Batch int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding batch %d: %v", e.Batch, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// CoordinationError reports an execution-path failure (worker spawn,
// credential token, handshake). Retryable errors let the coordinator fall
// through to the next strategy.
type CoordinationError struct {
	Strategy  string
	Retryable bool
	Err       error
}

func (e *CoordinationError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *CoordinationError) Unwrap() error { return e.Err }
