// Package chunker splits extracted text into overlapping, size-bounded
// segments using a paragraph -> sentence -> word fallback, so chunk
// boundaries land on the largest natural unit that fits.
package chunker

import (
	"regexp"
	"strings"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// Defaults used by the pipeline when no explicit configuration is given.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

var paragraphRe = regexp.MustCompile(`\n[ \t]*\n+`)

// Chunk splits text into ordered segments of at most chunkSize characters,
// then prepends the trailing overlap characters of each chunk's predecessor
// (pre-overlap content) to the chunk after it. The first chunk is left
// unmodified. Text no longer than chunkSize is returned as-is in a
// single-element slice; splitting is deterministic.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, &core.ChunkingError{Reason: "chunk size must be positive"}
	}
	if overlap < 0 {
		return nil, &core.ChunkingError{Reason: "overlap must not be negative"}
	}

	// Short inputs (and empty input) pass through untouched.
	if len(text) <= chunkSize {
		return []string{text}, nil
	}

	base := accumulate(units(text, chunkSize), chunkSize)
	if overlap == 0 || len(base) <= 1 {
		return base, nil
	}

	out := make([]string, len(base))
	out[0] = base[0]
	for i := 1; i < len(base); i++ {
		tail := base[i-1]
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
		}
		out[i] = tail + base[i]
	}
	return out, nil
}

// units flattens the text into ordered pieces that each fit chunkSize:
// whitespace-normalized paragraphs, oversized paragraphs broken into
// sentences, oversized sentences broken into words. A single word longer
// than chunkSize is hard-split.
func units(text string, chunkSize int) []string {
	var out []string
	for _, para := range paragraphRe.Split(text, -1) {
		para = normalizeWhitespace(para)
		if para == "" {
			continue
		}
		if len(para) <= chunkSize {
			out = append(out, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= chunkSize {
				out = append(out, sent)
				continue
			}
			for _, word := range strings.Fields(sent) {
				for len(word) > chunkSize {
					out = append(out, word[:chunkSize])
					word = word[chunkSize:]
				}
				if word != "" {
					out = append(out, word)
				}
			}
		}
	}
	return out
}

// accumulate packs units into chunks, flushing whenever appending the next
// unit (with its joining space) would exceed chunkSize.
func accumulate(units []string, chunkSize int) []string {
	var out []string
	var buf strings.Builder
	for _, u := range units {
		if buf.Len() > 0 && buf.Len()+1+len(u) > chunkSize {
			out = append(out, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(u)
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

// normalizeWhitespace collapses runs of whitespace to single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitSentences cuts on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if !isSentenceEnd(s[i]) {
			continue
		}
		// consume the full punctuation run ("?!", "...")
		j := i
		for j+1 < len(s) && isSentenceEnd(s[j+1]) {
			j++
		}
		if j+1 < len(s) && s[j+1] == ' ' {
			if sent := strings.TrimSpace(s[start : j+1]); sent != "" {
				out = append(out, sent)
			}
			start = j + 2
		}
		i = j
	}
	if sent := strings.TrimSpace(s[start:]); sent != "" {
		out = append(out, sent)
	}
	return out
}

func isSentenceEnd(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}
