package models

import (
	"time"
)

// Processing statuses recorded in Document metadata.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessingState is the mutable pipeline state stored in the document's
// metadata JSONB column. Progress is in [0,1] and only moves forward while
// the document is processing.
type ProcessingState struct {
	Status       string     `json:"status"`
	Progress     float64    `json:"progress"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ChunkCount   *int       `json:"chunks_count,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	// PreProcessed marks documents whose text was already extracted and
	// embedded by a trusted upstream; the pipeline short-circuits these
	// straight to completed.
	PreProcessed bool `json:"pre_processed,omitempty"`
}

// Document represents a user-uploaded file tracked through the pipeline.
type Document struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Title       string          `db:"title" json:"title"`
	FileName    string          `db:"file_name" json:"file_name"`
	StorageURL  string          `db:"storage_url" json:"storage_url"`
	ContentType string          `db:"content_type" json:"content_type"`
	FileSize    int64           `db:"file_size" json:"file_size"`
	State       ProcessingState `db:"metadata" json:"metadata"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one embedded slice of a document's extracted text.
// ChunkIndex is unique and contiguous per document (0..TotalChunks-1) and
// encodes reading order.
type DocumentChunk struct {
	ID          string    `db:"id" json:"id"`
	DocumentID  string    `db:"document_id" json:"document_id"`
	Content     string    `db:"content" json:"content"`
	Embedding   []float32 `db:"embedding" json:"embedding"` // pgvector column
	ChunkIndex  int       `db:"chunk_index" json:"chunk_index"`
	TotalChunks int       `db:"total_chunks" json:"total_chunks"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
