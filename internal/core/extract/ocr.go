package extract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// OCR phase milestones, mapped into a single extraction-level progress
// scale: engine load, image load, language load, recognition.
const (
	ocrProgressEngine     = 0.10
	ocrProgressImage      = 0.25
	ocrProgressLanguage   = 0.40
	ocrProgressRecognized = 0.90
)

// Engine abstracts the OCR backend so recognition can be faked in tests.
type Engine interface {
	SetImage(data []byte) error
	Configure(languages []string) error
	// Recognize returns recognized text and a mean word confidence in
	// [0,100]. Low-confidence text is still returned; confidence is
	// reported separately.
	Recognize(ctx context.Context) (text string, confidence float64, err error)
	Close() error
}

// EngineFactory builds a fresh engine per extraction; tesseract clients are
// not safe to share across runs.
type EngineFactory func() Engine

// OCRExtractor recognizes text in images, reporting coarse phase progress
// through the sink.
type OCRExtractor struct {
	newEngine EngineFactory
	languages []string
	log       *zap.Logger
}

func NewOCRExtractor(factory EngineFactory, languages []string, log *zap.Logger) *OCRExtractor {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &OCRExtractor{newEngine: factory, languages: languages, log: log}
}

func (e *OCRExtractor) Method() string { return "ocr" }

func (e *OCRExtractor) Extract(ctx context.Context, data []byte, sink core.ProgressSink) (string, error) {
	eng := e.newEngine()
	defer eng.Close()
	sink.Report(ocrProgressEngine)

	if err := eng.SetImage(data); err != nil {
		return "", fmt.Errorf("ocr set image: %w", err)
	}
	sink.Report(ocrProgressImage)

	if err := eng.Configure(e.languages); err != nil {
		return "", fmt.Errorf("ocr configure languages: %w", err)
	}
	sink.Report(ocrProgressLanguage)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, confidence, err := eng.Recognize(ctx)
	if err != nil {
		return "", fmt.Errorf("ocr recognize: %w", err)
	}
	sink.Report(ocrProgressRecognized)

	// Low confidence is logged, never used to reject text at this stage.
	e.log.Debug("ocr recognition finished",
		zap.Float64("mean_confidence", confidence),
		zap.Int("text_len", len(text)))

	sink.Report(1.0)
	return text, nil
}

type gosseractEngine struct {
	client *gosseract.Client
}

// NewGosseractEngine is the production EngineFactory backed by tesseract.
func NewGosseractEngine() Engine {
	return &gosseractEngine{client: gosseract.NewClient()}
}

func (g *gosseractEngine) SetImage(data []byte) error {
	return g.client.SetImageFromBytes(data)
}

func (g *gosseractEngine) Configure(languages []string) error {
	return g.client.SetLanguage(languages...)
}

func (g *gosseractEngine) Recognize(_ context.Context) (string, float64, error) {
	text, err := g.client.Text()
	if err != nil {
		return "", 0, err
	}
	var confidence float64
	if boxes, err := g.client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		confidence = sum / float64(len(boxes))
	}
	return text, confidence, nil
}

func (g *gosseractEngine) Close() error {
	return g.client.Close()
}
