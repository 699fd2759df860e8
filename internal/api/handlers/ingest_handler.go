package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/core/pipeline"
)

// IngestHandler is the privileged server-side executor behind the server
// execution path. Callers authenticate with a short-lived ingest-scoped
// token, never user credentials.
type IngestHandler struct {
	proc   pipeline.DocumentProcessor
	issuer *pipeline.TokenIssuer
	log    *zap.Logger
}

func NewIngestHandler(proc pipeline.DocumentProcessor, issuer *pipeline.TokenIssuer, log *zap.Logger) *IngestHandler {
	return &IngestHandler{proc: proc, issuer: issuer, log: log}
}

type ingestRequest struct {
	DocumentID string `json:"document_id"`
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	authorizedDoc, err := h.issuer.Verify(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.DocumentID != authorizedDoc {
		http.Error(w, "token not valid for document", http.StatusForbidden)
		return
	}

	if err := h.proc.ProcessDocument(r.Context(), req.DocumentID, nil); err != nil {
		if errors.Is(err, core.ErrAlreadyProcessing) {
			http.Error(w, "document is already processing", http.StatusConflict)
			return
		}
		h.log.Warn("server-path run failed",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
		http.Error(w, "processing failed", http.StatusUnprocessableEntity)
		return
	}

	w.WriteHeader(http.StatusOK)
}
