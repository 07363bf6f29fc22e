// Package engine is the composition root of SPEC_FULL.md §5: it wires the
// transport client, the normalizer, the state store, the lint engine and
// the view model together into the ingress/aggregator task pair, and
// exposes the resulting read surface and user-intent entry points to a
// renderer.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskscope/taskscope/internal/config"
	"github.com/taskscope/taskscope/internal/connfsm"
	"github.com/taskscope/taskscope/internal/lint"
	"github.com/taskscope/taskscope/internal/metadata"
	"github.com/taskscope/taskscope/internal/normalize"
	"github.com/taskscope/taskscope/internal/store"
	"github.com/taskscope/taskscope/internal/viewmodel"
	"github.com/taskscope/taskscope/internal/wire"
)

// ingressCapacity is the bounded queue size of §5: "a bounded queue
// (capacity: 1024) ... drops the oldest buffered batch and increments the
// dropped-events counter" on overflow.
const ingressCapacity = 1024

// Transport is the subset of internal/transport.Client that the engine
// depends on. Accepting an interface keeps the ingress/aggregator loops
// testable without a live gRPC server.
type Transport interface {
	WatchUpdates(ctx context.Context) (<-chan *wire.Update, <-chan error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close() error
}

// Intent is a user action issued by the renderer, per §5's "writes user
// intents to an intent channel".
type Intent int

const (
	// IntentPause asks the aggregator to pause ingestion and forward a
	// Pause RPC to the instrumented process.
	IntentPause Intent = iota
	// IntentResume reverses IntentPause.
	IntentResume
)

// Engine owns the ingress and aggregator goroutines and everything they
// feed: the state store, the view model, and the connection state
// machine.
type Engine struct {
	transport Transport
	cfg       *config.Config
	log       *zap.Logger

	cache *metadata.Cache
	store *store.Store
	fsm   *connfsm.Machine
	vm    *viewmodel.Model

	ingress chan store.Batch
	intents chan Intent
}

// New wires a fresh engine from a dialed transport and a resolved
// configuration. The lint engine is injected into the store as a
// store.LintFunc closure, the same way internal/lint documents it should
// be composed, so internal/store never imports internal/lint directly.
func New(transport Transport, cfg *config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	lintCfg := lint.DefaultConfig()
	lintCfg.SelfWakePct = cfg.WarnSelfWakePct
	lintCfg.NeverYieldMS = cfg.WarnNeverYieldMS
	lintCfg.AllowWarnings = toAllowSet(cfg.AllowWarnings)

	storeCfg := store.DefaultConfig()
	storeCfg.RetainFor = cfg.RetainFor
	storeCfg.PausedBufferCap = cfg.PausedBufferCap
	storeCfg.HistogramMaxValue = cfg.HistogramMaxValue

	st := store.New(storeCfg, func(t *store.Task, now uint64) []store.Warning {
		return lint.Evaluate(lintCfg, t, now)
	}, log)

	e := &Engine{
		transport: transport,
		cfg:       cfg,
		log:       log,
		cache:     metadata.New(),
		store:     st,
		vm:        viewmodel.New(st),
		ingress:   make(chan store.Batch, ingressCapacity),
		intents:   make(chan Intent, 8),
	}
	e.fsm = connfsm.New(connfsm.Config{
		InitialBackoff: cfg.ReconnectInitialBackoff,
		MaxBackoff:     cfg.ReconnectMaxBackoff,
		Multiplier:     cfg.ReconnectMultiplier,
		MaxFailures:    cfg.ReconnectMaxFailures,
	}, st.Reset)
	return e
}

func toAllowSet(kinds []string) map[string]bool {
	if len(kinds) == 0 {
		return nil
	}
	out := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		out[k] = true
	}
	return out
}

// ViewModel exposes the read surface a renderer polls (§5: "reads
// view-model snapshots").
func (e *Engine) ViewModel() *viewmodel.Model { return e.vm }

// ConnectionState reports the current connection-state-machine state for
// the status line.
func (e *Engine) ConnectionState() connfsm.State { return e.fsm.State() }

// Now reports the clock the view model should use for live duration
// math: the Now field of the most recently applied batch.
func (e *Engine) Now() uint64 { return e.store.LastObservedTime() }

// Pause asks the aggregator to pause ingestion, per §6.4's core/UI
// contract. It does not block; the request lands on the intent channel.
func (e *Engine) Pause() {
	select {
	case e.intents <- IntentPause:
	default:
	}
}

// Resume reverses Pause.
func (e *Engine) Resume() {
	select {
	case e.intents <- IntentResume:
	default:
	}
}

// Run starts the ingress and aggregator tasks and blocks until ctx is
// canceled, at which point it waits for both to report back before
// returning (§5: "a finite shutdown path reachable within one scheduling
// quantum").
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go e.ingressLoop(ctx, &wg)
	go e.aggregatorLoop(ctx, &wg)

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// ingressLoop owns the transport connection. It reconnects through the
// connection state machine on any stream error, honoring its backoff
// schedule, until the machine gives up and transitions to Failed.
func (e *Engine) ingressLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		updates, errs := e.transport.WatchUpdates(ctx)
		if !e.drainStream(ctx, updates, errs) {
			return
		}
	}
}

// drainStream consumes one stream's updates and errors channels until
// either closes or ctx is canceled. It returns false when the ingress
// loop should give up entirely (context canceled or the connection
// machine reached Failed).
func (e *Engine) drainStream(ctx context.Context, updates <-chan *wire.Update, errs <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case u, ok := <-updates:
			if !ok {
				return true
			}
			e.fsm.Connected()
			if e.fsm.TakePendingResend() {
				go func() { _ = e.transport.Pause(ctx) }()
			}
			metaDropsBefore := e.cache.DroppedEvents()
			batch, stats := normalize.Normalize(u, e.cache)
			e.store.RecordDropped(int(e.cache.DroppedEvents() - metaDropsBefore))
			e.store.RecordClockSkew(stats.ClockSkewClamped)
			e.enqueue(batch)

		case err, ok := <-errs:
			if !ok {
				return true
			}
			if err == nil {
				continue
			}
			e.log.Warn("transport stream error", zap.Error(err))
			state := e.fsm.TransportError(err.Error())
			if state.Kind == connfsm.Failed {
				e.log.Error("giving up after repeated transport failures", zap.String("reason", state.Reason))
				return false
			}
			select {
			case <-time.After(state.RetryAfter):
			case <-ctx.Done():
				return false
			}
			e.fsm.BeginReconnect()
			return true
		}
	}
}

// enqueue applies the bounded-queue drop-oldest policy of §5: a full
// queue evicts its oldest batch, charges it to the dropped-events
// counter (at least one event per evicted batch, even a batch with no
// entity records), and makes room for the new one.
func (e *Engine) enqueue(b store.Batch) {
	charge := func(d store.Batch) {
		n := d.RecordCount()
		if n == 0 {
			n = 1
		}
		e.store.RecordDropped(n)
	}

	select {
	case e.ingress <- b:
		return
	default:
	}

	select {
	case old := <-e.ingress:
		charge(old)
	default:
	}

	select {
	case e.ingress <- b:
	default:
		charge(b)
	}
}

// aggregatorLoop is the sole owner of the state store: it applies
// ingress batches in arrival order and services user intents.
func (e *Engine) aggregatorLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-e.ingress:
			e.store.Apply(batch)
		case intent := <-e.intents:
			e.handleIntent(ctx, intent)
		}
	}
}

func (e *Engine) handleIntent(ctx context.Context, intent Intent) {
	switch intent {
	case IntentPause:
		e.store.Pause()
		e.fsm.SetPaused(true)
		if err := e.transport.Pause(ctx); err != nil {
			e.log.Warn("pause RPC failed, will resend on reconnect", zap.Error(err))
		}
	case IntentResume:
		e.store.Resume()
		e.fsm.SetPaused(false)
		if err := e.transport.Resume(ctx); err != nil {
			e.log.Warn("resume RPC failed", zap.Error(err))
		}
	}
}
