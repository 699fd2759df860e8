package core

import "context"

// ExtractedText is the result of format-aware text extraction. It is
// ephemeral: only the derived chunks are persisted.
type ExtractedText struct {
	Text             string
	ExtractionMethod string
	SourceMIMEType   string
}

// Extractor turns raw document bytes into plain text. Implementations that
// run long (OCR) report coarse progress through the sink; the rest may
// ignore it.
type Extractor interface {
	Extract(ctx context.Context, data []byte, sink ProgressSink) (string, error)
	Method() string
}
