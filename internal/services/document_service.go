package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/models"
)

type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
	log     *zap.Logger
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string, log *zap.Logger) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket, log: log}
}

// UploadAndCreate stores the raw bytes in object storage, then records the
// document in pending state. When the metadata insert fails the uploaded
// object is removed best-effort so no orphan bytes accumulate.
func (s *DocumentService) UploadAndCreate(ctx context.Context, userID, filename, contentType string, data []byte) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		Title:       strings.TrimSuffix(filename, path.Ext(filename)),
		FileName:    filename,
		StorageURL:  url,
		ContentType: contentType,
		FileSize:    int64(len(data)),
		State: models.ProcessingState{
			Status:   models.StatusPending,
			Progress: 0,
		},
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if delErr := s.storage.DeleteFile(ctx, s.bucket, key); delErr != nil {
			s.log.Warn("orphan cleanup failed",
				zap.String("bucket", s.bucket),
				zap.String("key", key),
				zap.Error(delErr))
		}
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Reprocess clears any previously stored chunks and returns the document to
// pending, so a fresh run starts from a clean slate.
func (s *DocumentService) Reprocess(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if doc.State.Status == models.StatusProcessing {
		return nil, core.ErrAlreadyProcessing
	}
	if err := s.db.DeleteDocumentChunks(ctx, id); err != nil {
		return nil, err
	}
	if err := s.db.ResetDocumentState(ctx, id); err != nil {
		return nil, err
	}
	return s.db.GetDocumentByID(ctx, id)
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
