// Package normalize implements SPEC_FULL.md §4.3: it turns one raw
// wire.Update into an atomic store.Batch with monotonic, clamped
// timestamps and fully resolved field maps, so internal/store never has
// to reach back into the metadata cache or worry about clock skew.
package normalize

import (
	"github.com/taskscope/taskscope/internal/metadata"
	"github.com/taskscope/taskscope/internal/store"
	"github.com/taskscope/taskscope/internal/wire"
)

// Stats reports the side effects of normalizing one update, for the
// clock-skew counter surfaced by the view model's status
// line (SPEC_FULL.md §4.6).
type Stats struct {
	ClockSkewClamped int
}

// Normalize converts a raw update into a store batch. New metadata carried
// by the update is merged into cache before any entity record in the same
// update is resolved, per §4.3 point 3.
func Normalize(u *wire.Update, cache *metadata.Cache) (store.Batch, Stats) {
	var stats Stats
	cache.InsertMany(u.NewMetadata)

	b := store.Batch{
		Now:              u.Now,
		NewMetadataCount: len(u.NewMetadata),
	}

	clamp := func(ts uint64) uint64 {
		if ts > u.Now {
			stats.ClockSkewClamped++
			return u.Now
		}
		return ts
	}

	if tu := u.TaskUpdate; tu != nil {
		for _, nt := range tu.NewTasks {
			b.NewTasks = append(b.NewTasks, store.NewTaskRecord{
				ID:            uint64(nt.ID),
				MetadataID:    nt.MetadataID,
				RuntimeTaskID: uint64(nt.RuntimeTaskID),
				Name:          nt.Name,
				SpawnLocation: nt.SpawnLocation,
				Fields:        resolveFields(nt.Fields, nt.MetadataID, cache),
				CreatedAt:     clamp(nt.CreatedAt),
			})
		}
		for _, su := range tu.StatsUpdates {
			b.TaskStats = append(b.TaskStats, store.TaskStatsRecord{
				ID:              uint64(su.ID),
				Wakes:           su.Wakes,
				WakerClones:     su.WakerClones,
				WakerDrops:      su.WakerDrops,
				SelfWakes:       su.SelfWakes,
				LastWake:        clamp(su.LastWake),
				BusyTotal:       su.BusyTotal,
				ScheduledTotal:  su.ScheduledTotal,
				PollCount:       su.PollCount,
				LastPollStarted: clamp(su.LastPollStarted),
				LastPollEnded:   clamp(su.LastPollEnded),
				PollTimes:       histogramSnapshot(su.PollTimes),
				ScheduledTimes:  histogramSnapshot(su.ScheduledTimes),
			})
		}
		for _, id := range tu.Dropped {
			b.DroppedTasks = append(b.DroppedTasks, uint64(id))
		}
	}

	if ru := u.ResourceUpdate; ru != nil {
		for _, nr := range ru.NewResources {
			b.NewResources = append(b.NewResources, store.NewResourceRecord{
				ID:               uint64(nr.ID),
				MetadataID:       nr.MetadataID,
				ParentResourceID: uint64(nr.ParentResourceID),
				Kind:             nr.Kind,
				ConcreteType:     nr.ConcreteType,
				Visibility:       nr.Visibility,
				Location:         nr.Location,
				Attributes:       resolveFields(nr.Attributes, nr.MetadataID, cache),
				CreatedAt:        clamp(nr.CreatedAt),
			})
		}
		for _, su := range ru.StatsUpdates {
			b.ResourceStats = append(b.ResourceStats, store.ResourceStatsRecord{
				ID:         uint64(su.ID),
				Attributes: resolveFields(su.Attributes, 0, cache),
			})
		}
		for _, id := range ru.Dropped {
			b.DroppedResources = append(b.DroppedResources, uint64(id))
		}
	}

	if au := u.AsyncOpUpdate; au != nil {
		for _, na := range au.NewAsyncOps {
			b.NewAsyncOps = append(b.NewAsyncOps, store.NewAsyncOpRecord{
				ID:              uint64(na.ID),
				MetadataID:      na.MetadataID,
				ResourceID:      uint64(na.ResourceID),
				ParentAsyncOpID: uint64(na.ParentAsyncOpID),
				Source:          na.Source,
				TaskID:          uint64(na.TaskID),
				Attributes:      resolveFields(na.Attributes, na.MetadataID, cache),
				CreatedAt:       clamp(na.CreatedAt),
			})
		}
		for _, su := range au.StatsUpdates {
			b.AsyncOpStats = append(b.AsyncOpStats, store.AsyncOpStatsRecord{
				ID:        uint64(su.ID),
				BusyTotal: su.BusyTotal,
				IdleTotal: su.IdleTotal,
				PollCount: su.PollCount,
				TaskID:    uint64(su.TaskID),
			})
		}
		for _, p := range au.PollOps {
			b.PollOps = append(b.PollOps, store.PollOpRecord{
				Op:         store.PollOpKind(p.Op),
				Ready:      p.Ready,
				TaskID:     uint64(p.TaskID),
				ResourceID: uint64(p.ResourceID),
				AsyncOpID:  uint64(p.AsyncOpID),
				At:         clamp(p.At),
			})
		}
		for _, id := range au.Dropped {
			b.DroppedAsyncOps = append(b.DroppedAsyncOps, uint64(id))
		}
	}

	return b, stats
}

func histogramSnapshot(h *wire.Histogram) *store.HistogramSnapshot {
	if h == nil {
		return nil
	}
	return &store.HistogramSnapshot{Raw: h.SerializedHdrV2, MaxValue: h.MaxValue}
}

func resolveFields(fields []wire.Field, metadataID uint64, cache *metadata.Cache) map[string]store.FieldValue {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]store.FieldValue, len(fields))
	for _, f := range fields {
		name := cache.FieldName(f, metadataID)
		if name == "" {
			name = f.Name
		}
		out[name] = store.FieldValue{
			Kind:  store.FieldValueKind(f.Value.Kind),
			I64:   f.Value.I64,
			U64:   f.Value.U64,
			Bool:  f.Value.Bool,
			Str:   f.Value.Str,
			Debug: f.Value.Debug,
		}
	}
	return out
}
