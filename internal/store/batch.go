package store

// Batch is one normalized, atomically-applied update (SPEC_FULL.md §4.3
// point 4 / §4.4 "Application algorithm"). Every timestamp has already been
// clamped against Now by the normalizer; every Field map has already been
// resolved against the metadata cache, so Store.Apply never touches
// internal/metadata.
type Batch struct {
	Now uint64

	NewTasks         []NewTaskRecord
	TaskStats        []TaskStatsRecord
	DroppedTasks     []uint64

	NewResources     []NewResourceRecord
	ResourceStats    []ResourceStatsRecord
	DroppedResources []uint64

	NewAsyncOps      []NewAsyncOpRecord
	AsyncOpStats     []AsyncOpStatsRecord
	PollOps          []PollOpRecord
	DroppedAsyncOps  []uint64

	// NewMetadataCount lets the aggregator report how much metadata a batch
	// introduced without reaching back into the metadata cache.
	NewMetadataCount int
}

// Empty reports whether the batch carries no entity-shaped records at all.
func (b Batch) Empty() bool {
	return len(b.NewTasks) == 0 && len(b.TaskStats) == 0 && len(b.DroppedTasks) == 0 &&
		len(b.NewResources) == 0 && len(b.ResourceStats) == 0 && len(b.DroppedResources) == 0 &&
		len(b.NewAsyncOps) == 0 && len(b.AsyncOpStats) == 0 && len(b.PollOps) == 0 && len(b.DroppedAsyncOps) == 0
}

// RecordCount is the number of individual records the batch carries, used to
// charge the dropped-events counter correctly when a whole batch is evicted
// from the paused buffer (SPEC_FULL.md §4.4.3).
func (b Batch) RecordCount() int {
	return len(b.NewTasks) + len(b.TaskStats) + len(b.DroppedTasks) +
		len(b.NewResources) + len(b.ResourceStats) + len(b.DroppedResources) +
		len(b.NewAsyncOps) + len(b.AsyncOpStats) + len(b.PollOps) + len(b.DroppedAsyncOps)
}

// NewTaskRecord is the normalized form of wire.NewTask.
type NewTaskRecord struct {
	ID            uint64
	MetadataID    uint64
	RuntimeTaskID uint64
	Name          string
	SpawnLocation string
	Fields        map[string]FieldValue
	CreatedAt     uint64
}

// TaskStatsRecord is the normalized form of wire.TaskStatsUpdate.
type TaskStatsRecord struct {
	ID              uint64
	Wakes           uint64
	WakerClones     uint64
	WakerDrops      uint64
	SelfWakes       uint64
	LastWake        uint64
	BusyTotal       uint64
	ScheduledTotal  uint64
	PollCount       uint64
	LastPollStarted uint64
	LastPollEnded   uint64
	PollTimes       *HistogramSnapshot
	ScheduledTimes  *HistogramSnapshot
}

// HistogramSnapshot is a decoded HDR-histogram-v2 blob ready to be merged
// into a live *hdrhistogram.Histogram.
type HistogramSnapshot struct {
	Raw      []byte
	MaxValue uint64
}

// NewResourceRecord is the normalized form of wire.NewResource.
type NewResourceRecord struct {
	ID               uint64
	MetadataID       uint64
	ParentResourceID uint64
	Kind             string
	ConcreteType     string
	Visibility       string
	Location         string
	Attributes       map[string]FieldValue
	CreatedAt        uint64
}

// ResourceStatsRecord is the normalized form of wire.ResourceStatsUpdate.
type ResourceStatsRecord struct {
	ID         uint64
	Attributes map[string]FieldValue
}

// NewAsyncOpRecord is the normalized form of wire.NewAsyncOp.
type NewAsyncOpRecord struct {
	ID              uint64
	MetadataID      uint64
	ResourceID      uint64
	ParentAsyncOpID uint64
	Source          string
	TaskID          uint64
	Attributes      map[string]FieldValue
	CreatedAt       uint64
}

// AsyncOpStatsRecord is the normalized form of wire.AsyncOpStatsUpdate.
type AsyncOpStatsRecord struct {
	ID        uint64
	BusyTotal uint64
	IdleTotal uint64
	PollCount uint64
	TaskID    uint64
}

// PollOpKind mirrors wire.PollOpKind without exposing the wire package to
// consumers of the store.
type PollOpKind int32

const (
	PollOpReadyPending PollOpKind = iota
	PollOpReadyReady
	PollOpDrop
)

// PollOpRecord is the normalized form of wire.PollOp.
type PollOpRecord struct {
	Op         PollOpKind
	Ready      bool
	TaskID     uint64
	ResourceID uint64
	AsyncOpID  uint64
	At         uint64
}

// FieldValueKind mirrors wire.FieldValueKind.
type FieldValueKind int

const (
	FieldValueNone FieldValueKind = iota
	FieldValueI64
	FieldValueU64
	FieldValueBool
	FieldValueString
	FieldValueDebug
)

// FieldValue is the store-side copy of wire.FieldValue.
type FieldValue struct {
	Kind  FieldValueKind
	I64   int64
	U64   uint64
	Bool  bool
	Str   string
	Debug string
}

// String renders a FieldValue the way the view model displays it.
func (v FieldValue) String() string {
	switch v.Kind {
	case FieldValueI64:
		return itoa64(v.I64)
	case FieldValueU64:
		return utoa64(v.U64)
	case FieldValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case FieldValueString:
		return v.Str
	case FieldValueDebug:
		return v.Debug
	default:
		return ""
	}
}
