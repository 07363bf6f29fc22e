package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskscope/taskscope/internal/config"
	"github.com/taskscope/taskscope/internal/connfsm"
	"github.com/taskscope/taskscope/internal/store"
	"github.com/taskscope/taskscope/internal/viewmodel"
	"github.com/taskscope/taskscope/internal/wire"
)

// fakeTransport is a hand-driven stand-in for internal/transport.Client,
// letting the tests push updates and errors without a live gRPC server.
type fakeTransport struct {
	mu      sync.Mutex
	updates chan *wire.Update
	errs    chan error

	pauseCalls  int
	resumeCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		updates: make(chan *wire.Update, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeTransport) WatchUpdates(ctx context.Context) (<-chan *wire.Update, <-chan error) {
	return f.updates, f.errs
}

func (f *fakeTransport) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	return nil
}

func (f *fakeTransport) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Target:                  config.DefaultTarget,
		RetainFor:               6 * time.Second,
		WarnSelfWakePct:         50,
		WarnNeverYieldMS:        1000,
		HistogramMaxValue:       uint64((time.Hour).Nanoseconds()),
		PausedBufferCap:         256,
		ReconnectInitialBackoff: 5 * time.Millisecond,
		ReconnectMaxBackoff:     20 * time.Millisecond,
		ReconnectMultiplier:     2,
		ReconnectMaxFailures:    connfsm.DefaultMaxFailures,
	}
}

func taskUpdate(id uint64, name string, createdAt uint64) *wire.Update {
	return &wire.Update{
		Now: createdAt,
		TaskUpdate: &wire.TaskUpdate{
			NewTasks: []wire.NewTask{{
				ID:        wire.Id(id),
				Name:      name,
				CreatedAt: createdAt,
			}},
		},
	}
}

func TestEngineAppliesIngressBatchesIntoStore(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	ft.updates <- taskUpdate(1, "worker", 100)

	require.Eventually(t, func() bool {
		_, ok := e.store.Task(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	rows := e.ViewModel().Tasks(100, viewmodel.SortSpec{}, viewmodel.FilterSpec{})
	require.Len(t, rows, 1)
	require.Equal(t, "worker", rows[0].Name)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestEngineIngressQueueDropsOldestOnOverflow(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, testConfig(), nil)

	// Fill the bounded queue directly, bypassing the transport goroutine,
	// to exercise the drop-oldest policy deterministically.
	for i := 0; i < ingressCapacity; i++ {
		e.enqueue(store.Batch{Now: uint64(i)})
	}
	require.Equal(t, uint64(0), e.store.DroppedEvents())

	e.enqueue(store.Batch{Now: 9999})
	require.Equal(t, uint64(1), e.store.DroppedEvents())
	require.Len(t, e.ingress, ingressCapacity)
}

func TestEnginePauseAndResumeForwardToTransportAndStore(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Pause()
	require.Eventually(t, func() bool { return e.store.Paused() }, time.Second, 5*time.Millisecond)

	e.Resume()
	require.Eventually(t, func() bool { return !e.store.Paused() }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Equal(t, 1, ft.pauseCalls)
	require.Equal(t, 1, ft.resumeCalls)
}

func TestEngineAccumulatesClockSkewFromNormalizer(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// CreatedAt ahead of Now forces the normalizer to clamp and count it.
	ft.updates <- &wire.Update{
		Now: 100,
		TaskUpdate: &wire.TaskUpdate{
			NewTasks: []wire.NewTask{{ID: 1, Name: "worker", CreatedAt: 500}},
		},
	}

	require.Eventually(t, func() bool {
		return e.store.ClockSkewClamped() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestEngineReconnectsAfterTransportError(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	ft.errs <- errors.New("stream reset")

	require.Eventually(t, func() bool {
		return e.ConnectionState().Kind.String() == "reconnecting" || e.ConnectionState().Kind.String() == "disconnected"
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
