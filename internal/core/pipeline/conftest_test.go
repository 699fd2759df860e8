package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/models"
)

// fakeDB is an in-memory core.DbClient with the same metadata-merge
// semantics as the Postgres client.
type fakeDB struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	chunks    map[string][]models.DocumentChunk
	patches   []map[string]any
	progress  []float64
	updateErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]models.DocumentChunk),
	}
}

func (f *fakeDB) put(doc *models.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeDB) state(id string) models.ProcessingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].State
}

func (f *fakeDB) CreateUser(context.Context, *models.User) error { return nil }

func (f *fakeDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, nil
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.put(doc)
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByUser(context.Context, string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDB) UpdateDocumentState(_ context.Context, id string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	f.patches = append(f.patches, patch)
	for k, v := range patch {
		switch k {
		case "status":
			doc.State.Status = v.(string)
		case "progress":
			p := v.(float64)
			doc.State.Progress = p
			f.progress = append(f.progress, p)
		case "error_message":
			doc.State.ErrorMessage = v.(string)
		case "chunks_count":
			n := v.(int)
			doc.State.ChunkCount = &n
		case "processed_at":
			ts := v.(time.Time)
			doc.State.ProcessedAt = &ts
		}
	}
	return nil
}

func (f *fakeDB) ClaimDocument(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return false, nil
	}
	if doc.State.Status != models.StatusPending && doc.State.Status != models.StatusError {
		return false, nil
	}
	doc.State.Status = models.StatusProcessing
	doc.State.Progress = 0
	doc.State.ErrorMessage = ""
	doc.State.ProcessedAt = nil
	return true, nil
}

func (f *fakeDB) ResetDocumentState(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.State = models.ProcessingState{Status: models.StatusPending}
	return nil
}

func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range chunks {
		f.chunks[ch.DocumentID] = append(f.chunks[ch.DocumentID], ch)
	}
	return nil
}

func (f *fakeDB) DeleteDocumentChunks(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, documentID)
	return nil
}

func (f *fakeDB) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[documentID], nil
}

func (f *fakeDB) SearchDocumentChunks(context.Context, string, []float32, int) ([]models.DocumentChunk, error) {
	return nil, nil
}

var _ core.DbClient = (*fakeDB)(nil)

// fakeObjects serves stored blobs by key.
type fakeObjects struct {
	files  map[string][]byte
	getErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{files: make(map[string][]byte)}
}

func (f *fakeObjects) UploadFile(context.Context, string, string, io.Reader, string) (string, error) {
	return "", nil
}

func (f *fakeObjects) DeleteFile(context.Context, string, string) error { return nil }

func (f *fakeObjects) GetObjectReader(_ context.Context, _ string, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

var _ core.ObjectClient = (*fakeObjects)(nil)

// fakeEmbedder returns a deterministic vector per text.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("embedder down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

var _ core.EmbeddingProvider = (*fakeEmbedder)(nil)

// stubProcessor lets coordinator and worker tests script run outcomes.
type stubProcessor struct {
	mu    sync.Mutex
	runs  []string
	err   error
	block bool // when set, wait for ctx cancellation
	sinks []core.ProgressSink
}

func (s *stubProcessor) ProcessDocument(ctx context.Context, documentID string, sink core.ProgressSink) error {
	s.mu.Lock()
	s.runs = append(s.runs, documentID)
	s.sinks = append(s.sinks, sink)
	block, err := s.block, s.err
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return fmt.Errorf("%w: %v", core.ErrCancelled, ctx.Err())
	}
	if sink != nil {
		sink.Report(0.5)
		sink.Report(1.0)
	}
	return err
}

func (s *stubProcessor) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func testLogger() *zap.Logger { return zap.NewNop() }
