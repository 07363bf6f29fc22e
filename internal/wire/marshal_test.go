package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateRoundTrip(t *testing.T) {
	in := &Update{
		Now: 1000,
		TaskUpdate: &TaskUpdate{
			NewTasks: []NewTask{{
				ID:            7,
				MetadataID:    3,
				Name:          "svc",
				SpawnLocation: "main.rs:10",
				Fields: []Field{
					{Name: "kind", Value: FieldValue{Kind: FieldValueString, Str: "task"}},
				},
				CreatedAt: 0,
			}},
			StatsUpdates: []TaskStatsUpdate{{
				ID:              7,
				Wakes:           10,
				SelfWakes:       6,
				BusyTotal:       60,
				ScheduledTotal:  10,
				PollCount:       4,
				LastPollStarted: 50,
				LastPollEnded:   30,
				PollTimes: &Histogram{
					SerializedHdrV2: []byte{1, 2, 3},
					MaxValue:        3_600_000_000_000,
				},
			}},
			Dropped: []Id{9},
		},
		ResourceUpdate: &ResourceUpdate{
			NewResources: []NewResource{{ID: 1, Kind: "sync", ConcreteType: "Mutex"}},
		},
		AsyncOpUpdate: &AsyncOpUpdate{
			NewAsyncOps: []NewAsyncOp{{ID: 2, ResourceID: 1, Source: "lock"}},
			PollOps: []PollOp{{
				Op:        PollOpReadyReady,
				Ready:     true,
				TaskID:    7,
				ResourceID: 1,
				AsyncOpID: 2,
				At:        42,
			}},
		},
		NewMetadata: []Metadata{{ID: 3, Target: "runtime::task", Name: "task", Kind: MetadataKindSpan}},
	}

	raw, err := in.Marshal()
	require.NoError(t, err)

	var out Update
	require.NoError(t, out.Unmarshal(raw))

	require.Equal(t, in.Now, out.Now)
	require.Len(t, out.TaskUpdate.NewTasks, 1)
	require.Equal(t, in.TaskUpdate.NewTasks[0].Name, out.TaskUpdate.NewTasks[0].Name)
	require.Equal(t, in.TaskUpdate.NewTasks[0].Fields[0].Value, out.TaskUpdate.NewTasks[0].Fields[0].Value)
	require.Len(t, out.TaskUpdate.StatsUpdates, 1)
	require.Equal(t, in.TaskUpdate.StatsUpdates[0].Wakes, out.TaskUpdate.StatsUpdates[0].Wakes)
	require.Equal(t, in.TaskUpdate.StatsUpdates[0].PollTimes.SerializedHdrV2, out.TaskUpdate.StatsUpdates[0].PollTimes.SerializedHdrV2)
	require.Equal(t, []Id{9}, out.TaskUpdate.Dropped)

	require.Len(t, out.ResourceUpdate.NewResources, 1)
	require.Equal(t, "Mutex", out.ResourceUpdate.NewResources[0].ConcreteType)

	require.Len(t, out.AsyncOpUpdate.NewAsyncOps, 1)
	require.Len(t, out.AsyncOpUpdate.PollOps, 1)
	require.Equal(t, PollOpReadyReady, out.AsyncOpUpdate.PollOps[0].Op)
	require.True(t, out.AsyncOpUpdate.PollOps[0].Ready)

	require.Len(t, out.NewMetadata, 1)
	require.Equal(t, "runtime::task", out.NewMetadata[0].Target)
}

func TestZeroFieldsOmitted(t *testing.T) {
	// Proto3 semantics: zero-valued scalars are not encoded, and decoding
	// missing fields yields the zero value again.
	u := &Update{}
	raw, err := u.Marshal()
	require.NoError(t, err)
	require.Empty(t, raw)

	var out Update
	require.NoError(t, out.Unmarshal(raw))
	require.Equal(t, Update{}, out)
}

func TestTaskDetailsRoundTrip(t *testing.T) {
	in := &TaskDetails{
		TaskID: 5,
		Now:    100,
		PollTimes: &Histogram{
			SerializedHdrV2: []byte("hdr-blob"),
			MaxValue:        1000,
		},
	}
	raw, err := in.Marshal()
	require.NoError(t, err)

	var out TaskDetails
	require.NoError(t, out.Unmarshal(raw))
	require.Equal(t, in.TaskID, out.TaskID)
	require.Equal(t, in.Now, out.Now)
	require.Equal(t, in.PollTimes.SerializedHdrV2, out.PollTimes.SerializedHdrV2)
	require.Nil(t, out.ScheduledTimes)
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// A field number the schema doesn't define (here, a varint at field 99)
	// must be skipped rather than rejected, per the wire backwards-
	// compatibility rule.
	raw := appendVarint(nil, 1, 5) // Now = 5
	raw = append(raw, 0x98, 0x06)  // tag for field 99, varint type
	raw = append(raw, 0x01)        // value 1

	var out Update
	require.NoError(t, out.Unmarshal(raw))
	require.Equal(t, uint64(5), out.Now)
}
