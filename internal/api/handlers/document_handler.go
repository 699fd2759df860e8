package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/docsmith-ai/docsmith/internal/api/middlewares"
	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/core/pipeline"
	"github.com/docsmith-ai/docsmith/internal/models"
	"github.com/docsmith-ai/docsmith/internal/services"
)

const maxUploadBytes = 52 << 20 // 52 MB

type DocumentHandler struct {
	docs        *services.DocumentService
	coordinator *pipeline.Coordinator
	log         *zap.Logger
}

func NewDocumentHandler(docs *services.DocumentService, coordinator *pipeline.Coordinator, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, coordinator: coordinator, log: log}
}

// UploadDocument handles file upload, DB insert, and background processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters
	cleanFilename := filepath.Base(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.docs.UploadAndCreate(r.Context(), userID, cleanFilename, contentType, data)
	if err != nil {
		h.log.Error("upload failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	h.enqueue(doc.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetDocumentStatus returns the latest persisted processing state; pollers
// read whatever the pipeline last committed.
func (h *DocumentHandler) GetDocumentStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":       doc.ID,
		"status":   doc.State.Status,
		"progress": doc.State.Progress,
		"error":    doc.State.ErrorMessage,
		"metadata": doc.State,
	})
}

// ReprocessDocument resets the document and runs the pipeline again.
func (h *DocumentHandler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	reset, err := h.docs.Reprocess(r.Context(), doc.ID)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyProcessing) {
			http.Error(w, "document is already processing", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.enqueue(reset.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(reset)
}

// CancelDocument requests cooperative cancellation of an active run.
func (h *DocumentHandler) CancelDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if !h.coordinator.Cancel(doc.ID) {
		http.Error(w, "no active run for document", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// enqueue starts a background ingestion run through the coordinator.
func (h *DocumentHandler) enqueue(documentID string) {
	go func() {
		if err := h.coordinator.Ingest(context.Background(), documentID); err != nil {
			h.log.Warn("ingestion run ended with error",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
	}()
}

// ownedDocument loads the document in the URL and enforces ownership.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return nil, false
	}

	id := chi.URLParam(r, "id")
	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}
