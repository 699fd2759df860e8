package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// NoTextPlaceholder is returned by the degraded stream scan when nothing is
// recoverable, so callers always get a string rather than an error.
const NoTextPlaceholder = "[PDF text could not be extracted: document contains no recoverable text]"

// PDFExtractor extracts page-ordered text from PDF documents. Per-page text
// items are joined with a space, pages with a double newline. Encrypted
// documents fail with core.ErrPasswordProtected instead of yielding empty
// text. When the renderer cannot parse the file, a degraded scan of the raw
// content streams for text-show operators (Tj/TJ) is used instead.
type PDFExtractor struct {
	log *zap.Logger
}

func NewPDFExtractor(log *zap.Logger) *PDFExtractor {
	return &PDFExtractor{log: log}
}

func (e *PDFExtractor) Method() string { return "pdf" }

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, _ core.ProgressSink) (string, error) {
	text, err := e.extractPages(ctx, data)
	if err != nil {
		if isEncryptedErr(err) {
			return "", fmt.Errorf("%w: %v", core.ErrPasswordProtected, err)
		}
		e.log.Warn("pdf renderer failed, scanning content streams", zap.Error(err))
		return scanContentStreams(data), nil
	}
	if strings.TrimSpace(text) == "" {
		return scanContentStreams(data), nil
	}
	return text, nil
}

// extractPages walks pages in order through the pdf reader. The underlying
// parser panics on malformed input, so the whole walk runs under recover.
func (e *PDFExtractor) extractPages(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content := p.Content()
		parts := make([]string, 0, len(content.Text))
		for _, t := range content.Text {
			if t.S != "" {
				parts = append(parts, t.S)
			}
		}
		pages = append(pages, strings.Join(parts, " "))
	}
	return strings.Join(pages, "\n\n"), nil
}

func isEncryptedErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}

var (
	// (string) Tj  and  [ (str) n (str) ... ] TJ
	showTextRe  = regexp.MustCompile(`\((?:\\.|[^\\()])*\)\s*Tj`)
	showArrayRe = regexp.MustCompile(`\[(?:\\.|[^\]])*\]\s*TJ`)
	literalRe   = regexp.MustCompile(`\((?:\\.|[^\\()])*\)`)
)

// scanContentStreams is the degraded fallback for environments or files the
// renderer cannot handle: it scans each content stream for text-show
// operators and collects their literal strings. Only uncompressed streams
// yield text; when nothing is recoverable a placeholder is returned.
func scanContentStreams(data []byte) string {
	segments := bytes.Split(data, []byte("endstream"))
	var pages []string
	for _, seg := range segments {
		var parts []string
		for _, m := range showTextRe.FindAll(seg, -1) {
			parts = append(parts, decodePDFLiterals(m)...)
		}
		for _, m := range showArrayRe.FindAll(seg, -1) {
			parts = append(parts, decodePDFLiterals(m)...)
		}
		if page := strings.TrimSpace(strings.Join(parts, " ")); page != "" {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return NoTextPlaceholder
	}
	return strings.Join(pages, "\n\n")
}

// decodePDFLiterals pulls every parenthesised literal out of an operator
// match and unescapes it.
func decodePDFLiterals(op []byte) []string {
	var out []string
	for _, lit := range literalRe.FindAll(op, -1) {
		if s := unescapePDFString(lit[1 : len(lit)-1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func unescapePDFString(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' || i+1 >= len(b) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch b[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '(', ')', '\\':
			sb.WriteByte(b[i])
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// octal escape, up to three digits
			v := int(b[i] - '0')
			for n := 0; n < 2 && i+1 < len(b) && b[i+1] >= '0' && b[i+1] <= '7'; n++ {
				i++
				v = v*8 + int(b[i]-'0')
			}
			sb.WriteByte(byte(v))
		default:
			sb.WriteByte(b[i])
		}
	}
	return sb.String()
}
