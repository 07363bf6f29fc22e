// Package store implements the State Store of SPEC_FULL.md §4.4: the
// authoritative, time-aware in-memory aggregation of tasks, resources, and
// async-ops.
package store

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// LintFunc re-evaluates a task's warning set. Store calls it after every
// mutation that can change a task's stats (apply algorithm step 6); it is
// injected rather than imported directly so internal/store never depends on
// internal/lint (the dependency runs lint -> store, not store -> lint).
type LintFunc func(t *Task, now uint64) []Warning

// Config bounds the store's retention and buffering behavior (SPEC_FULL.md
// §6.3).
type Config struct {
	RetainFor         time.Duration
	PausedBufferCap   int
	PendingOpsCap     int
	HistogramMaxValue uint64
}

// DefaultConfig matches the defaults table in §6.3.
func DefaultConfig() Config {
	return Config{
		RetainFor:         6 * time.Second,
		PausedBufferCap:   256,
		PendingOpsCap:     1024,
		HistogramMaxValue: uint64(defaultHistogramMax),
	}
}

// Store is the exclusive owner of all task/resource/async-op records
// (SPEC_FULL.md §5 "Shared-resource policy"). Its methods take the store's
// lock, so they are safe to call from multiple goroutines; internal/engine
// calls the mutating ones from a single aggregator loop. Readers (the view
// model) get pointers to the live *Task/*Resource/*AsyncOp records from
// Task, Tasks and the other accessors, and treat them as read-only.
type Store struct {
	mu sync.RWMutex
	cfg Config
	log *zap.Logger

	lint LintFunc

	tasks     map[uint64]*Task
	resources map[uint64]*Resource
	asyncOps  map[uint64]*AsyncOp
	nextSeq   uint64

	pending *lru.Cache[uint64, *AsyncOp] // orphaned async-ops awaiting their resource

	paused    bool
	pauseBuf  *lru.Cache[uint64, Batch]
	pauseSeq  uint64

	stateVersion     atomic.Uint64
	droppedEvents    atomic.Uint64
	clockSkewClamped atomic.Uint64
	lastObserved     atomic.Uint64

	lastSweepWall time.Time
}

// New creates an empty store. lint may be nil (lints are skipped, useful in
// tests that only exercise the apply algorithm).
func New(cfg Config, lint LintFunc, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		cfg:       cfg,
		log:       log,
		lint:      lint,
		tasks:     make(map[uint64]*Task),
		resources: make(map[uint64]*Resource),
		asyncOps:  make(map[uint64]*AsyncOp),
	}
	s.pending, _ = lru.NewWithEvict[uint64, *AsyncOp](cfg.PendingOpsCap, func(uint64, *AsyncOp) {
		s.droppedEvents.Add(1)
	})
	s.pauseBuf, _ = lru.NewWithEvict[uint64, Batch](cfg.PausedBufferCap, func(_ uint64, b Batch) {
		s.droppedEvents.Add(uint64(b.RecordCount()))
	})
	return s
}

// StateVersion returns the monotonically increasing publication counter
// (P5): it increases on every successfully applied batch.
func (s *Store) StateVersion() uint64 { return s.stateVersion.Load() }

// DroppedEvents returns the running count of records dropped for any reason
// (§7): protocol errors, capacity overflow, id-reuse replacement, and
// conflicting metadata.
func (s *Store) DroppedEvents() uint64 { return s.droppedEvents.Load() }

// LastObservedTime is the Now field of the most recently applied batch,
// the clock the renderer uses to compute live idle durations without
// tracking wall time of its own.
func (s *Store) LastObservedTime() uint64 { return s.lastObserved.Load() }

// ClockSkewClamped returns the running count of timestamps the normalizer
// clamped to Now because the instrumented process reported a time in the
// future (§4.3/§7: invariant violations are clamped to zero and counted,
// distinct from the dropped-events counter's protocol/capacity errors).
func (s *Store) ClockSkewClamped() uint64 { return s.clockSkewClamped.Load() }

// Pause stops batches from mutating state; they are buffered instead
// (§4.4.3). Best-effort: a batch already in flight when Pause is called may
// still be applied first.
func (s *Store) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume drains the paused buffer in FIFO order and then accepts batches
// live again.
func (s *Store) Resume() {
	s.mu.Lock()
	s.paused = false
	keys := s.pauseBuf.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	drained := make([]Batch, 0, len(keys))
	for _, k := range keys {
		if b, ok := s.pauseBuf.Peek(k); ok {
			drained = append(drained, b)
		}
	}
	s.pauseBuf.Purge()
	s.mu.Unlock()

	for _, b := range drained {
		s.Apply(b)
	}
}

// Paused reports the current temporality.
func (s *Store) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Apply applies one normalized batch atomically: every record becomes
// visible together, or (while paused) none do until Resume drains it.
func (s *Store) Apply(b Batch) {
	s.mu.Lock()
	if s.paused {
		s.pauseSeq++
		s.pauseBuf.Add(s.pauseSeq, b)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.applyLocked(b)
}

func (s *Store) applyLocked(b Batch) {
	s.mu.Lock()

	touched := make(map[uint64]struct{})

	for _, nt := range b.NewTasks {
		s.putTask(nt)
	}
	for _, su := range b.TaskStats {
		if s.updateTaskStats(su) {
			touched[su.ID] = struct{}{}
		}
	}
	for _, id := range b.DroppedTasks {
		if t, ok := s.tasks[id]; ok {
			t.Stats.DroppedAt = Some(b.Now)
			touched[id] = struct{}{}
		}
	}

	for _, nr := range b.NewResources {
		s.putResource(nr)
		s.flushPending(nr.ID)
	}
	for _, su := range b.ResourceStats {
		if r, ok := s.resources[su.ID]; ok {
			mergeAttrs(r.Attributes, su.Attributes)
		} else {
			s.droppedEvents.Add(1) // B2: stats_update for unknown id
		}
	}
	for _, id := range b.DroppedResources {
		if r, ok := s.resources[id]; ok {
			r.DroppedAt = Some(b.Now)
		}
	}

	for _, na := range b.NewAsyncOps {
		s.putAsyncOp(na)
	}
	for _, su := range b.AsyncOpStats {
		if op, ok := s.asyncOps[su.ID]; ok {
			op.BusyTotal = su.BusyTotal
			op.IdleTotal = su.IdleTotal
			op.PollCount = su.PollCount
			if su.TaskID != 0 {
				op.TaskID = su.TaskID
			}
		} else {
			s.droppedEvents.Add(1)
		}
	}
	for _, p := range b.PollOps {
		if op, ok := s.asyncOps[p.AsyncOpID]; ok {
			op.PollCount++
		}
		if p.TaskID != 0 {
			if t, ok := s.tasks[p.TaskID]; ok {
				t.Stats.LastPollReady = p.Op == PollOpReadyReady
				touched[p.TaskID] = struct{}{}
			}
		}
	}
	for _, id := range b.DroppedAsyncOps {
		if op, ok := s.asyncOps[id]; ok {
			op.DroppedAt = Some(b.Now)
		}
	}

	for id := range touched {
		s.runLint(id, b.Now)
	}

	s.stateVersion.Add(1)
	s.mu.Unlock()

	s.lastObserved.Store(b.Now)
	s.maybeSweep(b.Now)
}

func mergeAttrs(dst map[string]FieldValue, src map[string]FieldValue) {
	for k, v := range src {
		dst[k] = v
	}
}

// putTask inserts or replaces a task record. A replacement (id reuse after
// retention, B1) starts from a zero record so no field leaks from the
// entity that previously held the id.
func (s *Store) putTask(nt NewTaskRecord) {
	if _, exists := s.tasks[nt.ID]; exists {
		s.droppedEvents.Add(1) // one dropped entity, per the apply algorithm step 2
	}
	s.nextSeq++
	s.tasks[nt.ID] = &Task{
		ID:            nt.ID,
		MetadataID:    nt.MetadataID,
		RuntimeTaskID: nt.RuntimeTaskID,
		Name:          nt.Name,
		SpawnLocation: nt.SpawnLocation,
		Fields:        nt.Fields,
		Stats:         TaskStats{CreatedAt: nt.CreatedAt},
		Warnings:      make(map[string]Warning),
		seq:           s.nextSeq,
	}
}

func (s *Store) updateTaskStats(su TaskStatsRecord) bool {
	t, ok := s.tasks[su.ID]
	if !ok {
		s.droppedEvents.Add(1) // B2
		return false
	}
	t.Stats.Wakes = su.Wakes
	t.Stats.WakerClones = su.WakerClones
	t.Stats.WakerDrops = su.WakerDrops
	t.Stats.SelfWakes = su.SelfWakes
	if su.LastWake != 0 {
		t.Stats.LastWake = Some(su.LastWake)
	}
	t.Stats.BusyTotal = su.BusyTotal
	t.Stats.ScheduledTotal = su.ScheduledTotal
	t.Stats.PollCount = su.PollCount
	if su.LastPollStarted != 0 {
		t.Stats.LastPollStarted = Some(su.LastPollStarted)
	}
	if su.LastPollEnded != 0 {
		t.Stats.LastPollEnded = Some(su.LastPollEnded)
	}
	if su.PollTimes != nil {
		base := t.PollHistogram
		if base == nil {
			base = newHistogram(s.cfg.HistogramMaxValue)
		}
		h, err := mergeSnapshot(base, su.PollTimes.Raw, su.PollTimes.MaxValue)
		if err == nil {
			t.PollHistogram = h
		} else {
			s.droppedEvents.Add(1)
		}
	}
	if su.ScheduledTimes != nil {
		base := t.ScheduledHistogram
		if base == nil {
			base = newHistogram(s.cfg.HistogramMaxValue)
		}
		h, err := mergeSnapshot(base, su.ScheduledTimes.Raw, su.ScheduledTimes.MaxValue)
		if err == nil {
			t.ScheduledHistogram = h
		} else {
			s.droppedEvents.Add(1)
		}
	}
	return true
}

// putResource inserts or replaces a resource record (id reuse mirrors
// putTask's policy).
func (s *Store) putResource(nr NewResourceRecord) {
	if _, exists := s.resources[nr.ID]; exists {
		s.droppedEvents.Add(1)
	}
	s.nextSeq++
	s.resources[nr.ID] = &Resource{
		ID:               nr.ID,
		MetadataID:       nr.MetadataID,
		ParentResourceID: nr.ParentResourceID,
		Kind:             nr.Kind,
		ConcreteType:     nr.ConcreteType,
		Visibility:       nr.Visibility,
		Location:         nr.Location,
		Attributes:       nr.Attributes,
		CreatedAt:        nr.CreatedAt,
		seq:              s.nextSeq,
	}
	if nr.Attributes == nil {
		s.resources[nr.ID].Attributes = make(map[string]FieldValue)
	}
}

// putAsyncOp inserts an async-op record. When its owning resource hasn't
// arrived yet, the op is parked in the pending bucket (invariant 6) and
// flushed once the resource shows up.
func (s *Store) putAsyncOp(na NewAsyncOpRecord) {
	s.nextSeq++
	op := &AsyncOp{
		ID:              na.ID,
		MetadataID:      na.MetadataID,
		ResourceID:      na.ResourceID,
		ParentAsyncOpID: na.ParentAsyncOpID,
		Source:          na.Source,
		TaskID:          na.TaskID,
		Attributes:      na.Attributes,
		CreatedAt:       na.CreatedAt,
		seq:             s.nextSeq,
	}
	if op.Attributes == nil {
		op.Attributes = make(map[string]FieldValue)
	}
	if _, ok := s.resources[na.ResourceID]; na.ResourceID != 0 && !ok {
		s.pending.Add(na.ID, op)
		return
	}
	s.asyncOps[na.ID] = op
}

// flushPending moves any async-ops that were waiting on resourceID into the
// live set, now that the resource has arrived.
func (s *Store) flushPending(resourceID uint64) {
	for _, id := range s.pending.Keys() {
		op, ok := s.pending.Peek(id)
		if !ok || op.ResourceID != resourceID {
			continue
		}
		s.asyncOps[id] = op
		s.pending.Remove(id)
	}
}

func (s *Store) runLint(taskID uint64, now uint64) {
	if s.lint == nil {
		return
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return
	}
	warnings := s.lint(t, now)
	t.Warnings = make(map[string]Warning, len(warnings))
	for _, w := range warnings {
		t.Warnings[w.Kind] = w
	}
}

// maybeSweep runs the retention pass once per call to Apply (when RetainFor
// is positive), using the batch's server-clock now as the sweep horizon.
func (s *Store) maybeSweep(now uint64) {
	if s.cfg.RetainFor <= 0 {
		return
	}
	s.Sweep(now)
}

// Sweep removes dropped/completed entities whose drop time is older than
// the retention window (SPEC_FULL.md §4.4.2). now is the server clock value
// from the most recent update, not wall-clock time.
func (s *Store) Sweep(now uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := s.cfg.RetainFor
	cutoffExceeded := func(droppedAt OptU64) bool {
		if !droppedAt.Valid {
			return false
		}
		if now < droppedAt.Val {
			return false
		}
		age := now - droppedAt.Val
		return age > uint64(horizon.Nanoseconds())
	}

	removed := false
	for id, t := range s.tasks {
		if cutoffExceeded(t.Stats.DroppedAt) {
			delete(s.tasks, id)
			removed = true
		}
	}
	for id, r := range s.resources {
		if cutoffExceeded(r.DroppedAt) {
			delete(s.resources, id)
			removed = true
		}
	}
	for id, op := range s.asyncOps {
		if cutoffExceeded(op.DroppedAt) {
			delete(s.asyncOps, id)
			removed = true
		}
	}
	s.lastSweepWall = timeNow()
	if removed {
		s.stateVersion.Add(1)
	}
}

// timeNow is a thin indirection so tests can observe sweep bookkeeping
// without depending on wall-clock time directly.
func timeNow() time.Time { return time.Now() }

// Reset discards all entity state. internal/engine installs it as the
// connection state machine's transport-error callback, so it runs each time
// the machine enters Disconnected.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[uint64]*Task)
	s.resources = make(map[uint64]*Resource)
	s.asyncOps = make(map[uint64]*AsyncOp)
	s.pending.Purge()
	s.pauseBuf.Purge()
	s.paused = false
	s.stateVersion.Add(1)
}

// Task returns a copy-free pointer to the live record; callers that hand
// this beyond the aggregator goroutine must treat it as read-only.
func (s *Store) Task(id uint64) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Resource looks up one resource by id.
func (s *Store) Resource(id uint64) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	return r, ok
}

// AsyncOp looks up one async-op by id.
func (s *Store) AsyncOp(id uint64) (*AsyncOp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.asyncOps[id]
	return op, ok
}

// Tasks returns every live task ordered by (id, insertion sequence) for
// stable iteration (P4).
func (s *Store) Tasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Resources returns every live resource ordered by (id, insertion sequence).
func (s *Store) Resources() []*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// AsyncOps returns every live async-op ordered by (id, insertion sequence).
func (s *Store) AsyncOps() []*AsyncOp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AsyncOp, 0, len(s.asyncOps))
	for _, op := range s.asyncOps {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// PendingAsyncOps reports how many async-ops are parked waiting for their
// resource to arrive (diagnostic surface for the status line).
func (s *Store) PendingAsyncOps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.Len()
}

// RecordDropped charges n records against the dropped-events counter for
// reasons that happen outside Apply, such as the ingress queue evicting
// its oldest batch on overflow (SPEC_FULL.md §5).
func (s *Store) RecordDropped(n int) {
	if n > 0 {
		s.droppedEvents.Add(uint64(n))
	}
}

// RecordClockSkew charges n clamped timestamps against the clock-skew
// counter (SPEC_FULL.md §4.3 scenario 6).
func (s *Store) RecordClockSkew(n int) {
	if n > 0 {
		s.clockSkewClamped.Add(uint64(n))
	}
}
