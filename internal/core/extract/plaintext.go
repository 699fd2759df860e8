package extract

import (
	"bytes"
	"context"

	"github.com/docsmith-ai/docsmith/internal/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainTextExtractor returns the decoded content directly, no transformation
// beyond stripping a UTF-8 BOM.
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Method() string { return "plaintext" }

func (e *PlainTextExtractor) Extract(_ context.Context, data []byte, _ core.ProgressSink) (string, error) {
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}
