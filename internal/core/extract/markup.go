package extract

import (
	"bytes"
	"context"
	"strings"

	"code.sajari.com/docconv"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// MarkupExtractor converts word-processing formats (DOCX, legacy DOC) to raw
// text via docconv, trimming surrounding whitespace.
type MarkupExtractor struct {
	mimeType string
}

func NewMarkupExtractor(mimeType string) *MarkupExtractor {
	return &MarkupExtractor{mimeType: mimeType}
}

func (e *MarkupExtractor) Method() string { return "docconv" }

func (e *MarkupExtractor) Extract(_ context.Context, data []byte, _ core.ProgressSink) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), e.mimeType, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Body), nil
}
