package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmith-ai/docsmith/internal/core"
)

type scriptedStrategy struct {
	name string
	err  error

	mu       sync.Mutex
	attempts int
	block    bool
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Attempt(ctx context.Context, _ string) error {
	s.mu.Lock()
	s.attempts++
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *scriptedStrategy) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func TestCoordinatorFirstSuccessWins(t *testing.T) {
	first := &scriptedStrategy{name: "server"}
	second := &scriptedStrategy{name: "worker"}
	c := NewCoordinator(testLogger(), first, second)

	require.NoError(t, c.Ingest(context.Background(), "doc-1"))
	assert.Equal(t, 1, first.attemptCount())
	assert.Zero(t, second.attemptCount())
}

func TestCoordinatorRetryableFailureFallsThrough(t *testing.T) {
	first := &scriptedStrategy{name: "server", err: retryable("server", errors.New("not configured"))}
	second := &scriptedStrategy{name: "worker"}
	c := NewCoordinator(testLogger(), first, second)

	require.NoError(t, c.Ingest(context.Background(), "doc-1"))
	assert.Equal(t, 1, first.attemptCount())
	assert.Equal(t, 1, second.attemptCount())
}

func TestCoordinatorTerminalFailureStops(t *testing.T) {
	terminal := errors.New("document is broken")
	first := &scriptedStrategy{name: "server", err: terminal}
	second := &scriptedStrategy{name: "worker"}
	c := NewCoordinator(testLogger(), first, second)

	err := c.Ingest(context.Background(), "doc-1")
	require.ErrorIs(t, err, terminal)
	assert.Zero(t, second.attemptCount(), "terminal failures must not fall through")
}

func TestCoordinatorExhaustionIsTerminal(t *testing.T) {
	first := &scriptedStrategy{name: "server", err: retryable("server", errors.New("down"))}
	second := &scriptedStrategy{name: "worker", err: retryable("worker", errors.New("pool full"))}
	c := NewCoordinator(testLogger(), first, second)

	err := c.Ingest(context.Background(), "doc-1")
	require.Error(t, err)

	var coordErr *core.CoordinationError
	assert.ErrorAs(t, err, &coordErr)
	assert.Equal(t, "worker", coordErr.Strategy)
}

func TestCoordinatorCancelStopsActiveRun(t *testing.T) {
	blocking := &scriptedStrategy{name: "sync", block: true}
	c := NewCoordinator(testLogger(), blocking)

	done := make(chan error, 1)
	go func() { done <- c.Ingest(context.Background(), "doc-1") }()

	require.Eventually(t, func() bool { return blocking.attemptCount() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.True(t, c.Cancel("doc-1"))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not return")
	}

	assert.False(t, c.Cancel("doc-1"), "finished run is no longer cancellable")
}

func TestServerStrategyUnconfiguredIsRetryable(t *testing.T) {
	s := NewServerStrategy(nil)
	err := s.Attempt(context.Background(), "doc-1")
	require.Error(t, err)

	var coordErr *core.CoordinationError
	require.ErrorAs(t, err, &coordErr)
	assert.True(t, coordErr.Retryable)
}

type scriptedRemote struct{ err error }

func (r *scriptedRemote) Ingest(context.Context, string) error { return r.err }

func TestServerStrategyClassifiesRemoteFailures(t *testing.T) {
	// Transport-level failure: try the next path.
	s := NewServerStrategy(&scriptedRemote{err: errors.New("connection refused")})
	err := s.Attempt(context.Background(), "doc-1")
	var coordErr *core.CoordinationError
	require.ErrorAs(t, err, &coordErr)
	assert.True(t, coordErr.Retryable)

	// The server accepted and failed the run: terminal.
	rejected := &ServerRejectedError{Status: 422, Message: "bad document"}
	s = NewServerStrategy(&scriptedRemote{err: rejected})
	err = s.Attempt(context.Background(), "doc-1")
	assert.False(t, errors.As(err, &coordErr))
	var gotRejected *ServerRejectedError
	assert.ErrorAs(t, err, &gotRejected)
}

func TestWorkerStrategyRunsThroughPool(t *testing.T) {
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	defer pool.Release()

	proc := &stubProcessor{}
	issuer := NewTokenIssuer("secret", time.Minute)
	s := NewWorkerStrategy(proc, issuer, pool, time.Second, testLogger())

	require.NoError(t, s.Attempt(context.Background(), "doc-7"))
	assert.Equal(t, []string{"doc-7"}, proc.runs)
}

func TestWorkerStrategyRunFailureIsTerminal(t *testing.T) {
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	defer pool.Release()

	proc := &stubProcessor{err: errors.New("extraction blew up")}
	issuer := NewTokenIssuer("secret", time.Minute)
	s := NewWorkerStrategy(proc, issuer, pool, time.Second, testLogger())

	err = s.Attempt(context.Background(), "doc-7")
	require.Error(t, err)

	var coordErr *core.CoordinationError
	assert.False(t, errors.As(err, &coordErr), "post-handshake failures are document failures")
}

func TestSyncStrategyDelegates(t *testing.T) {
	proc := &stubProcessor{}
	s := NewSyncStrategy(proc)

	require.NoError(t, s.Attempt(context.Background(), "doc-3"))
	assert.Equal(t, 1, proc.runCount())

	boom := errors.New("boom")
	s = NewSyncStrategy(&stubProcessor{err: boom})
	assert.ErrorIs(t, s.Attempt(context.Background(), "doc-3"), boom)
}

func TestCoordinatorEndToEndFallbackToSync(t *testing.T) {
	pool, err := ants.NewPool(1)
	require.NoError(t, err)
	defer pool.Release()

	proc := &stubProcessor{}
	issuer := NewTokenIssuer("secret", time.Minute)

	c := NewCoordinator(testLogger(),
		NewServerStrategy(nil), // unconfigured, skipped
		NewWorkerStrategy(proc, issuer, pool, time.Second, testLogger()),
		NewSyncStrategy(proc),
	)

	require.NoError(t, c.Ingest(context.Background(), "doc-5"))
	assert.Equal(t, 1, proc.runCount(), "worker path handles the run, sync never fires")
}
