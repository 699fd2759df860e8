package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/core/embed"
	"github.com/docsmith-ai/docsmith/internal/core/extract"
	"github.com/docsmith-ai/docsmith/internal/models"
)

const testStorageKey = "users/u1/documents/doc-1/file.txt"

func newTestProcessor(db *fakeDB, obj *fakeObjects, embedder *fakeEmbedder) *Processor {
	dispatcher := extract.NewDispatcher(testLogger())
	dispatcher.RegisterPrefix("text/", extract.NewPlainTextExtractor())

	batcher := embed.NewBatcher(embedder, db, 5, time.Millisecond, time.Second, testLogger())

	return NewProcessor(db, obj, dispatcher, batcher, Config{
		ChunkSize:   50,
		Overlap:     10,
		CallTimeout: time.Second,
	}, testLogger())
}

func seedDocument(db *fakeDB, obj *fakeObjects, status string, content string) *models.Document {
	doc := &models.Document{
		ID:          "doc-1",
		UserID:      "u1",
		FileName:    "file.txt",
		StorageURL:  "https://test-bucket.s3.us-east-1.amazonaws.com/" + testStorageKey,
		ContentType: "text/plain",
		State:       models.ProcessingState{Status: status},
	}
	db.put(doc)
	if obj != nil {
		obj.files[testStorageKey] = []byte(content)
	}
	return doc
}

func TestProcessDocumentHappyPath(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	embedder := &fakeEmbedder{}
	p := newTestProcessor(db, obj, embedder)

	content := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10)
	seedDocument(db, obj, models.StatusPending, content)

	require.NoError(t, p.ProcessDocument(context.Background(), "doc-1", nil))

	state := db.state("doc-1")
	assert.Equal(t, models.StatusCompleted, state.Status)
	assert.Equal(t, 1.0, state.Progress)
	require.NotNil(t, state.ChunkCount)
	assert.Greater(t, *state.ChunkCount, 1)
	assert.NotNil(t, state.ProcessedAt)
	assert.Empty(t, state.ErrorMessage)

	chunks, err := db.GetChunksByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, chunks, *state.ChunkCount)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, len(chunks), ch.TotalChunks)
		assert.NotEmpty(t, ch.Embedding)
	}
}

func TestProcessDocumentProgressIsMonotonic(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	p := newTestProcessor(db, obj, &fakeEmbedder{})

	content := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta. ", 20)
	seedDocument(db, obj, models.StatusPending, content)

	require.NoError(t, p.ProcessDocument(context.Background(), "doc-1", nil))

	require.NotEmpty(t, db.progress)
	for i := 1; i < len(db.progress); i++ {
		assert.GreaterOrEqual(t, db.progress[i], db.progress[i-1],
			"persisted progress regressed at write %d", i)
	}
	assert.Contains(t, db.progress, 0.3, "extraction milestone must be persisted")
	assert.Equal(t, 1.0, db.progress[len(db.progress)-1])
}

func TestProcessDocumentPreProcessedShortCircuits(t *testing.T) {
	db := newFakeDB()
	embedder := &fakeEmbedder{}
	p := newTestProcessor(db, newFakeObjects(), embedder)

	doc := seedDocument(db, nil, models.StatusPending, "")
	doc.State.PreProcessed = true
	db.put(doc)

	require.NoError(t, p.ProcessDocument(context.Background(), "doc-1", nil))

	state := db.state("doc-1")
	assert.Equal(t, models.StatusCompleted, state.Status)
	assert.Equal(t, 1.0, state.Progress)
	assert.NotNil(t, state.ProcessedAt)
	assert.Zero(t, embedder.calls, "no extraction or embedding for pre-processed docs")
}

func TestProcessDocumentRejectsConcurrentRun(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	p := newTestProcessor(db, obj, &fakeEmbedder{})

	seedDocument(db, obj, models.StatusProcessing, "text")

	err := p.ProcessDocument(context.Background(), "doc-1", nil)
	require.ErrorIs(t, err, core.ErrAlreadyProcessing)
}

func TestProcessDocumentReclaimsAfterError(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	p := newTestProcessor(db, obj, &fakeEmbedder{})

	seedDocument(db, obj, models.StatusError, "short enough text to process fine")

	require.NoError(t, p.ProcessDocument(context.Background(), "doc-1", nil))
	assert.Equal(t, models.StatusCompleted, db.state("doc-1").Status)
}

func TestProcessDocumentUnknownDocument(t *testing.T) {
	p := newTestProcessor(newFakeDB(), newFakeObjects(), &fakeEmbedder{})
	err := p.ProcessDocument(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestProcessDocumentDownloadFailureIsTerminal(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	obj.getErr = errors.New("storage unavailable")
	p := newTestProcessor(db, obj, &fakeEmbedder{})

	seedDocument(db, obj, models.StatusPending, "never served")

	err := p.ProcessDocument(context.Background(), "doc-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unavailable")

	state := db.state("doc-1")
	assert.Equal(t, models.StatusError, state.Status)
	assert.NotEmpty(t, state.ErrorMessage)
}

func TestProcessDocumentExtractionFailureIsTerminal(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	p := newTestProcessor(db, obj, &fakeEmbedder{})

	doc := seedDocument(db, obj, models.StatusPending, "binary payload")
	doc.ContentType = "application/zip" // nothing registered for it
	db.put(doc)

	err := p.ProcessDocument(context.Background(), "doc-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupportedType))

	state := db.state("doc-1")
	assert.Equal(t, models.StatusError, state.Status)
	assert.NotEmpty(t, state.ErrorMessage)
	assert.NotNil(t, state.ProcessedAt)
}

func TestProcessDocumentEmbeddingFailureIsTerminal(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	embedder := &fakeEmbedder{fail: true}
	p := newTestProcessor(db, obj, embedder)

	content := strings.Repeat("words and more words in a sentence. ", 10)
	seedDocument(db, obj, models.StatusPending, content)

	err := p.ProcessDocument(context.Background(), "doc-1", nil)
	require.Error(t, err)

	var embErr *core.EmbeddingError
	assert.ErrorAs(t, err, &embErr)
	assert.Equal(t, models.StatusError, db.state("doc-1").Status)
}

func TestProcessDocumentCancellationRecordedAsCancelled(t *testing.T) {
	db := newFakeDB()
	obj := newFakeObjects()
	p := newTestProcessor(db, obj, &fakeEmbedder{})

	content := strings.Repeat("cancellable content right here. ", 20)
	seedDocument(db, obj, models.StatusPending, content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.ProcessDocument(ctx, "doc-1", nil)
	require.Error(t, err)

	state := db.state("doc-1")
	assert.Equal(t, models.StatusError, state.Status)
	assert.Equal(t, "cancelled", state.ErrorMessage)
}
