// Package wire holds the Go-side shapes of the console.v1.Instrument wire
// contract described by api/console.proto, and the hand-written codec that
// marshals/unmarshals them over grpc (see DESIGN.md for why this is not
// protoc-generated code).
package wire

// Id wraps a stable u64 identifier. Zero means "absent".
type Id uint64

// Present reports whether the id is a real (non-zero) identifier.
func (id Id) Present() bool { return id != 0 }

// MetadataKind distinguishes span-shaped from event-shaped metadata.
type MetadataKind int32

const (
	MetadataKindSpan MetadataKind = iota
	MetadataKindEvent
)

// Temporality mirrors the server's live/paused state, reported by WatchState.
type Temporality int32

const (
	TemporalityLive Temporality = iota
	TemporalityPaused
)

// Metadata describes one span/event definition, deduplicated by Id.
type Metadata struct {
	ID         uint64
	Target     string
	Name       string
	Kind       MetadataKind
	Level      string
	File       string
	Line       uint32
	FieldNames []string
}

// FieldValueKind discriminates the closed sum type carried by a Field.
type FieldValueKind int

const (
	FieldValueNone FieldValueKind = iota
	FieldValueI64
	FieldValueU64
	FieldValueBool
	FieldValueString
	FieldValueDebug
)

// FieldValue is the decoded payload of one Field entry.
type FieldValue struct {
	Kind    FieldValueKind
	I64     int64
	U64     uint64
	Bool    bool
	Str     string
	Debug   string
}

// Field is one key/value pair attached to a task, resource, or async-op.
// Name may be empty, in which case MetadataID indexes into the owning
// Metadata's FieldNames.
type Field struct {
	Name       string
	MetadataID uint32
	Value      FieldValue
}

// Histogram is a serialized HDR-histogram-v2 snapshot plus its configured
// upper bound, as emitted by the target on every stats update.
type Histogram struct {
	SerializedHdrV2 []byte
	MaxValue        uint64
}

// NewTask introduces a task id the client has not seen before.
type NewTask struct {
	ID            Id
	MetadataID    uint64
	RuntimeTaskID Id
	Name          string
	SpawnLocation string
	Fields        []Field
	CreatedAt     uint64
}

// TaskStatsUpdate carries a delta/replacement of a task's stat block.
type TaskStatsUpdate struct {
	ID               Id
	Wakes            uint64
	WakerClones      uint64
	WakerDrops       uint64
	SelfWakes        uint64
	LastWake         uint64
	BusyTotal        uint64
	ScheduledTotal   uint64
	PollCount        uint64
	LastPollStarted  uint64
	LastPollEnded    uint64
	PollTimes        *Histogram
	ScheduledTimes   *Histogram
}

// TaskUpdate is the task-shaped portion of one Update batch.
type TaskUpdate struct {
	NewTasks     []NewTask
	StatsUpdates []TaskStatsUpdate
	Dropped      []Id
}

// NewResource introduces a resource id the client has not seen before.
type NewResource struct {
	ID               Id
	MetadataID       uint64
	ParentResourceID Id
	Kind             string
	ConcreteType     string
	Visibility       string
	Location         string
	Attributes       []Field
	CreatedAt        uint64
}

// ResourceStatsUpdate carries an attribute delta for a resource.
type ResourceStatsUpdate struct {
	ID         Id
	Attributes []Field
}

// ResourceUpdate is the resource-shaped portion of one Update batch.
type ResourceUpdate struct {
	NewResources []NewResource
	StatsUpdates []ResourceStatsUpdate
	Dropped      []Id
}

// NewAsyncOp introduces an async-op id the client has not seen before.
type NewAsyncOp struct {
	ID              Id
	MetadataID      uint64
	ResourceID      Id
	ParentAsyncOpID Id
	Source          string
	TaskID          Id
	Attributes      []Field
	CreatedAt       uint64
}

// AsyncOpStatsUpdate carries a delta/replacement of an async-op's stat block.
type AsyncOpStatsUpdate struct {
	ID        Id
	BusyTotal uint64
	IdleTotal uint64
	PollCount uint64
	TaskID    Id
}

// PollOpKind enumerates the flavors of a single poll event.
type PollOpKind int32

const (
	PollOpReadyPending PollOpKind = iota
	PollOpReadyReady
	PollOpDrop
)

// PollOp is one poll/drop event attributed to a task/resource/async-op triple.
type PollOp struct {
	Op         PollOpKind
	Ready      bool
	TaskID     Id
	ResourceID Id
	AsyncOpID  Id
	At         uint64
}

// AsyncOpUpdate is the async-op-shaped portion of one Update batch.
type AsyncOpUpdate struct {
	NewAsyncOps  []NewAsyncOp
	StatsUpdates []AsyncOpStatsUpdate
	PollOps      []PollOp
	Dropped      []Id
}

// Update is one WatchUpdates message: a wall-clock base plus zero or more
// entity-shaped deltas and newly registered metadata.
type Update struct {
	Now             uint64
	TaskUpdate      *TaskUpdate
	ResourceUpdate  *ResourceUpdate
	AsyncOpUpdate   *AsyncOpUpdate
	NewMetadata     []Metadata
}

// TaskDetails is one WatchTaskDetails message for a single selected task.
type TaskDetails struct {
	TaskID         Id
	Now            uint64
	PollTimes      *Histogram
	ScheduledTimes *Histogram
}

// InstrumentState is the WatchState stream's payload.
type InstrumentState struct {
	Temporality Temporality
}

// TaskDetailsRequest selects which task's detail stream to open.
type TaskDetailsRequest struct {
	ID Id
}
