package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/core"
)

// Worker message types. The handshake is init -> initialized; the run is
// process -> status* -> (complete | error).
const (
	MsgInit        = "init"
	MsgInitialized = "initialized"
	MsgProcess     = "process"
	MsgStatus      = "status"
	MsgComplete    = "complete"
	MsgError       = "error"
)

// Message is one frame of the worker protocol.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type InitPayload struct {
	Token string `json:"token"`
}

type ProcessPayload struct {
	DocumentID string `json:"document_id"`
}

type StatusPayload struct {
	Progress float64 `json:"progress"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessage(msgType string, payload any) Message {
	if payload == nil {
		return Message{Type: msgType}
	}
	data, _ := json.Marshal(payload)
	return Message{Type: msgType, Data: data}
}

// Worker executes pipeline runs inside an isolated goroutine, speaking the
// message protocol over in/out channels. It never sees raw credentials:
// authorization arrives as a short-lived token in the init frame.
type Worker struct {
	proc   DocumentProcessor
	issuer *TokenIssuer
	in     chan Message
	out    chan Message
	log    *zap.Logger
}

func NewWorker(proc DocumentProcessor, issuer *TokenIssuer, log *zap.Logger) *Worker {
	return &Worker{
		proc:   proc,
		issuer: issuer,
		in:     make(chan Message, 4),
		out:    make(chan Message, 16),
		log:    log,
	}
}

// Send delivers a frame to the worker. It fails instead of blocking when the
// worker has stopped reading.
func (w *Worker) Send(ctx context.Context, msg Message) error {
	select {
	case w.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages is the stream of frames emitted by the worker. It is closed when
// Run returns.
func (w *Worker) Messages() <-chan Message {
	return w.out
}

// Run drives the protocol until the document run finishes or ctx is
// cancelled. The first frame must be a valid init; the process frame must
// name the same document the token was issued for.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.out)

	authorizedDoc, err := w.handshake(ctx)
	if err != nil {
		w.emit(ctx, newMessage(MsgError, ErrorPayload{Message: err.Error()}))
		return
	}
	w.emit(ctx, newMessage(MsgInitialized, nil))

	documentID, err := w.awaitProcess(ctx, authorizedDoc)
	if err != nil {
		w.emit(ctx, newMessage(MsgError, ErrorPayload{Message: err.Error()}))
		return
	}

	sink := core.ProgressFunc(func(fraction float64) {
		w.emit(ctx, newMessage(MsgStatus, StatusPayload{Progress: fraction}))
	})

	if err := w.proc.ProcessDocument(ctx, documentID, sink); err != nil {
		w.log.Warn("worker run failed",
			zap.String("document_id", documentID),
			zap.Error(err))
		w.emit(ctx, newMessage(MsgError, ErrorPayload{Message: errorMessage(err)}))
		return
	}
	w.emit(ctx, newMessage(MsgComplete, nil))
}

func (w *Worker) handshake(ctx context.Context) (string, error) {
	msg, err := w.recv(ctx)
	if err != nil {
		return "", err
	}
	if msg.Type != MsgInit {
		return "", fmt.Errorf("expected %s frame, got %s", MsgInit, msg.Type)
	}
	var payload InitPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return "", fmt.Errorf("malformed init frame: %w", err)
	}
	documentID, err := w.issuer.Verify(payload.Token)
	if err != nil {
		return "", err
	}
	return documentID, nil
}

func (w *Worker) awaitProcess(ctx context.Context, authorizedDoc string) (string, error) {
	msg, err := w.recv(ctx)
	if err != nil {
		return "", err
	}
	if msg.Type != MsgProcess {
		return "", fmt.Errorf("expected %s frame, got %s", MsgProcess, msg.Type)
	}
	var payload ProcessPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return "", fmt.Errorf("malformed process frame: %w", err)
	}
	if payload.DocumentID != authorizedDoc {
		return "", fmt.Errorf("token not valid for document %s", payload.DocumentID)
	}
	return payload.DocumentID, nil
}

func (w *Worker) recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-w.in:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (w *Worker) emit(ctx context.Context, msg Message) {
	select {
	case w.out <- msg:
	case <-ctx.Done():
	}
}
