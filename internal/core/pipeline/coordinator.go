package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// Strategy is one execution path for a document run. A retryable failure
// (wrapped in core.CoordinationError with Retryable set) hands the run to the
// next strategy; anything else is terminal.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, documentID string) error
}

// Coordinator walks an ordered strategy list until one path succeeds or
// fails terminally, and tracks active runs so they can be cancelled.
type Coordinator struct {
	strategies []Strategy
	log        *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewCoordinator(log *zap.Logger, strategies ...Strategy) *Coordinator {
	return &Coordinator{
		strategies: strategies,
		log:        log,
		active:     make(map[string]context.CancelFunc),
	}
}

// Ingest runs the document through the strategy list. It returns the first
// terminal error, or the last retryable one when every path is exhausted.
func (c *Coordinator) Ingest(ctx context.Context, documentID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.register(documentID, cancel)
	defer c.unregister(documentID)

	var lastErr error
	for _, s := range c.strategies {
		err := s.Attempt(runCtx, documentID)
		if err == nil {
			return nil
		}

		var coordErr *core.CoordinationError
		if errors.As(err, &coordErr) && coordErr.Retryable {
			c.log.Warn("execution path failed, trying next",
				zap.String("document_id", documentID),
				zap.String("strategy", s.Name()),
				zap.Error(err))
			lastErr = err
			continue
		}
		return err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no execution strategies configured")
	}
	return fmt.Errorf("all execution paths exhausted: %w", lastErr)
}

// Cancel requests cooperative cancellation of an active run. It reports
// whether a run for the document was found.
func (c *Coordinator) Cancel(documentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.active[documentID]
	if ok {
		cancel()
	}
	return ok
}

func (c *Coordinator) register(documentID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[documentID] = cancel
}

func (c *Coordinator) unregister(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, documentID)
}

// retryable wraps err so the coordinator moves on to the next path.
func retryable(strategy string, err error) error {
	return &core.CoordinationError{Strategy: strategy, Retryable: true, Err: err}
}

// RemoteIngestor hands a document run to a privileged server-side executor.
type RemoteIngestor interface {
	Ingest(ctx context.Context, documentID string) error
}

// ServerStrategy delegates to a privileged server-side run when one is
// configured. An unconfigured or unreachable server is retryable; a run the
// server accepted and failed is terminal.
type ServerStrategy struct {
	remote RemoteIngestor
}

func NewServerStrategy(remote RemoteIngestor) *ServerStrategy {
	return &ServerStrategy{remote: remote}
}

func (s *ServerStrategy) Name() string { return "server" }

func (s *ServerStrategy) Attempt(ctx context.Context, documentID string) error {
	if s.remote == nil {
		return retryable(s.Name(), fmt.Errorf("server path not configured"))
	}
	if err := s.remote.Ingest(ctx, documentID); err != nil {
		var reject *ServerRejectedError
		if errors.As(err, &reject) {
			return err
		}
		return retryable(s.Name(), err)
	}
	return nil
}

// ServerRejectedError marks a run the server accepted and then failed; it is
// not retried on another path.
type ServerRejectedError struct {
	Status  int
	Message string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("server run failed (status %d): %s", e.Status, e.Message)
}

// HTTPServerProcessor implements RemoteIngestor over a privileged ingest
// endpoint, authenticating with a short-lived token.
type HTTPServerProcessor struct {
	endpoint string
	issuer   *TokenIssuer
	client   *http.Client
}

func NewHTTPServerProcessor(endpoint string, issuer *TokenIssuer, timeout time.Duration) *HTTPServerProcessor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPServerProcessor{
		endpoint: endpoint,
		issuer:   issuer,
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HTTPServerProcessor) Ingest(ctx context.Context, documentID string) error {
	token, err := h.issuer.Issue(documentID)
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{"document_id": documentID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("server ingest unavailable: status %d", resp.StatusCode)
	default:
		return &ServerRejectedError{Status: resp.StatusCode, Message: "ingest rejected"}
	}
}

// WorkerStrategy runs the document inside an isolated pool goroutine,
// driving the worker message protocol end to end.
type WorkerStrategy struct {
	proc             DocumentProcessor
	issuer           *TokenIssuer
	pool             *ants.Pool
	handshakeTimeout time.Duration
	log              *zap.Logger
}

func NewWorkerStrategy(proc DocumentProcessor, issuer *TokenIssuer, pool *ants.Pool, handshakeTimeout time.Duration, log *zap.Logger) *WorkerStrategy {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WorkerStrategy{
		proc:             proc,
		issuer:           issuer,
		pool:             pool,
		handshakeTimeout: handshakeTimeout,
		log:              log,
	}
}

func (s *WorkerStrategy) Name() string { return "worker" }

func (s *WorkerStrategy) Attempt(ctx context.Context, documentID string) error {
	token, err := s.issuer.Issue(documentID)
	if err != nil {
		return retryable(s.Name(), err)
	}

	w := NewWorker(s.proc, s.issuer, s.log)
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.pool.Submit(func() { w.Run(workerCtx) }); err != nil {
		return retryable(s.Name(), fmt.Errorf("worker pool rejected run: %w", err))
	}

	if err := w.Send(workerCtx, newMessage(MsgInit, InitPayload{Token: token})); err != nil {
		return retryable(s.Name(), err)
	}
	if err := s.awaitInitialized(workerCtx, w); err != nil {
		return retryable(s.Name(), err)
	}
	if err := w.Send(workerCtx, newMessage(MsgProcess, ProcessPayload{DocumentID: documentID})); err != nil {
		return retryable(s.Name(), err)
	}

	return s.drive(workerCtx, w, documentID)
}

// awaitInitialized bounds the handshake; a worker that never answers is a
// path failure, not a document failure.
func (s *WorkerStrategy) awaitInitialized(ctx context.Context, w *Worker) error {
	handshakeCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	select {
	case msg, ok := <-w.Messages():
		if !ok {
			return fmt.Errorf("worker exited during handshake")
		}
		if msg.Type == MsgError {
			var payload ErrorPayload
			_ = json.Unmarshal(msg.Data, &payload)
			return fmt.Errorf("worker handshake failed: %s", payload.Message)
		}
		if msg.Type != MsgInitialized {
			return fmt.Errorf("unexpected handshake frame %s", msg.Type)
		}
		return nil
	case <-handshakeCtx.Done():
		return fmt.Errorf("worker handshake timed out")
	}
}

// drive consumes status frames until the run completes or errors. Errors
// reported after the handshake are document failures and therefore terminal.
func (s *WorkerStrategy) drive(ctx context.Context, w *Worker, documentID string) error {
	for {
		select {
		case msg, ok := <-w.Messages():
			if !ok {
				return fmt.Errorf("worker exited without a result")
			}
			switch msg.Type {
			case MsgStatus:
				var payload StatusPayload
				if err := json.Unmarshal(msg.Data, &payload); err == nil {
					s.log.Debug("worker progress",
						zap.String("document_id", documentID),
						zap.Float64("progress", payload.Progress))
				}
			case MsgComplete:
				return nil
			case MsgError:
				var payload ErrorPayload
				_ = json.Unmarshal(msg.Data, &payload)
				return fmt.Errorf("worker run failed: %s", payload.Message)
			}
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", core.ErrCancelled, ctx.Err())
		}
	}
}

// SyncStrategy runs the pipeline in the caller's goroutine. It is the last
// resort, so every failure is terminal.
type SyncStrategy struct {
	proc DocumentProcessor
}

func NewSyncStrategy(proc DocumentProcessor) *SyncStrategy {
	return &SyncStrategy{proc: proc}
}

func (s *SyncStrategy) Name() string { return "sync" }

func (s *SyncStrategy) Attempt(ctx context.Context, documentID string) error {
	return s.proc.ProcessDocument(ctx, documentID, nil)
}
