// Package extract turns raw document bytes into plain text. A Dispatcher
// routes by MIME type to format-specific extractors; new formats are added
// by registering an extractor, not by editing dispatch logic.
package extract

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// MIME types with dedicated extractors.
const (
	MIMEPDF         = "application/pdf"
	MIMEDOCX        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDOC         = "application/msword"
	MIMEXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEXLS         = "application/vnd.ms-excel"
	MIMEOctetStream = "application/octet-stream"
)

// extensionMIME infers a type when the declared one is absent or generic.
var extensionMIME = map[string]string{
	".pdf":  MIMEPDF,
	".docx": MIMEDOCX,
	".doc":  MIMEDOC,
	".xlsx": MIMEXLSX,
	".xls":  MIMEXLS,
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".log":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

type prefixRule struct {
	prefix    string
	extractor core.Extractor
}

// Dispatcher is the single entry point for bytes -> text. It holds a
// registry of MIME type -> extractor plus prefix rules for type families
// (text/*, image/*).
type Dispatcher struct {
	byType   map[string]core.Extractor
	prefixes []prefixRule
	log      *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{byType: make(map[string]core.Extractor), log: log}
}

// NewDefaultDispatcher wires the full extractor set: PDF, word-processing
// markup, spreadsheets, plain text and OCR for images.
func NewDefaultDispatcher(ocrLanguages []string, log *zap.Logger) *Dispatcher {
	d := NewDispatcher(log)
	d.Register(MIMEPDF, NewPDFExtractor(log))
	d.Register(MIMEDOCX, NewMarkupExtractor(MIMEDOCX))
	d.Register(MIMEDOC, NewMarkupExtractor(MIMEDOC))
	d.Register(MIMEXLSX, NewSpreadsheetExtractor())
	d.Register(MIMEXLS, NewSpreadsheetExtractor())
	d.RegisterPrefix("text/", NewPlainTextExtractor())
	d.RegisterPrefix("image/", NewOCRExtractor(NewGosseractEngine, ocrLanguages, log))
	return d
}

// Register binds a concrete MIME type to an extractor.
func (d *Dispatcher) Register(mimeType string, e core.Extractor) {
	d.byType[normalizeMIME(mimeType)] = e
}

// RegisterPrefix binds a type family ("text/", "image/") to an extractor.
// Exact registrations win over prefix rules.
func (d *Dispatcher) RegisterPrefix(prefix string, e core.Extractor) {
	d.prefixes = append(d.prefixes, prefixRule{prefix: prefix, extractor: e})
}

// Dispatch resolves the document type and runs the matching extractor.
// Resolution prefers the declared MIME type; when it is absent or generic
// the filename extension decides; a plain-text decode is the last resort.
// The dispatcher performs no text transformation of its own.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte, declaredType, filename string, sink core.ProgressSink) (*core.ExtractedText, error) {
	declared := normalizeMIME(declaredType)

	if declared != "" && declared != MIMEOctetStream {
		e := d.lookup(declared)
		if e == nil {
			return nil, &core.ExtractionError{MIMEType: declared, Err: core.ErrUnsupportedType}
		}
		return d.run(ctx, e, data, declared, sink)
	}

	inferred := extensionMIME[strings.ToLower(filepath.Ext(filename))]
	if inferred != "" {
		if e := d.lookup(inferred); e != nil {
			return d.run(ctx, e, data, inferred, sink)
		}
		return nil, &core.ExtractionError{MIMEType: inferred, Err: core.ErrUnsupportedType}
	}

	// Type could not be resolved at all: attempt a plain-text decode.
	if looksLikeText(data) {
		d.log.Debug("dispatch: unresolved type, decoding as plain text",
			zap.String("file_name", filename))
		return d.run(ctx, NewPlainTextExtractor(), data, "text/plain", sink)
	}

	return nil, &core.ExtractionError{MIMEType: declaredType, Err: core.ErrUnsupportedType}
}

func (d *Dispatcher) run(ctx context.Context, e core.Extractor, data []byte, mimeType string, sink core.ProgressSink) (*core.ExtractedText, error) {
	if sink == nil {
		sink = core.NopProgress
	}
	text, err := e.Extract(ctx, data, sink)
	if err != nil {
		return nil, &core.ExtractionError{MIMEType: mimeType, Err: err}
	}
	return &core.ExtractedText{
		Text:             text,
		ExtractionMethod: e.Method(),
		SourceMIMEType:   mimeType,
	}, nil
}

func (d *Dispatcher) lookup(mimeType string) core.Extractor {
	if e, ok := d.byType[mimeType]; ok {
		return e
	}
	for _, r := range d.prefixes {
		if strings.HasPrefix(mimeType, r.prefix) {
			return r.extractor
		}
	}
	return nil
}

// normalizeMIME lowercases and strips parameters ("; charset=utf-8").
func normalizeMIME(t string) string {
	t = strings.TrimSpace(strings.ToLower(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// looksLikeText reports whether data can plausibly be decoded as text.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	return utf8.Valid(data) && !bytes.ContainsRune(data, 0)
}
