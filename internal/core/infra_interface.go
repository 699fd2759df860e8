package core

import (
	"context"
	"io"

	"github.com/docsmith-ai/docsmith/internal/models"
)

// DbClient defines all persistence operations the pipeline and services
// need. It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)

	// UpdateDocumentState merges the given keys into the document's metadata
	// JSONB in a single atomic expression; concurrent pollers never observe
	// a partially applied transition.
	UpdateDocumentState(ctx context.Context, id string, patch map[string]any) error
	// ClaimDocument flips pending|error -> processing as a compare-and-swap.
	// Returns false when the document is already processing (or completed),
	// enforcing at most one active run per document.
	ClaimDocument(ctx context.Context, id string) (bool, error)
	// ResetDocumentState returns a document to pending for re-processing.
	ResetDocumentState(ctx context.Context, id string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteDocumentChunks(ctx context.Context, documentID string) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error

	// GetObjectReader streams the object body. The reader stays valid until
	// Close, which also releases the underlying request.
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
