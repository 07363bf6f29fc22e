package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskscope/taskscope/internal/wire"
)

func TestInsertManyIdempotent(t *testing.T) {
	c := New()
	m := wire.Metadata{ID: 1, Target: "runtime::task", Name: "task"}
	c.InsertMany([]wire.Metadata{m})
	c.InsertMany([]wire.Metadata{m})

	got, err := c.Get(1)
	require.NoError(t, err)
	require.Equal(t, m, got)
	require.Zero(t, c.DroppedEvents())
}

func TestInsertManyConflictingKeepsFirstAndCounts(t *testing.T) {
	c := New()
	c.InsertMany([]wire.Metadata{{ID: 1, Name: "task"}})
	c.InsertMany([]wire.Metadata{{ID: 1, Name: "different"}})

	got, err := c.Get(1)
	require.NoError(t, err)
	require.Equal(t, "task", got.Name)
	require.EqualValues(t, 1, c.DroppedEvents())
}

func TestGetUnknown(t *testing.T) {
	c := New()
	_, err := c.Get(42)
	require.ErrorIs(t, err, ErrUnknown)
}

func TestFieldNameResolvesByIndex(t *testing.T) {
	c := New()
	c.InsertMany([]wire.Metadata{{ID: 1, FieldNames: []string{"kind", "fn"}}})

	name := c.FieldName(wire.Field{MetadataID: 1}, 1)
	require.Equal(t, "fn", name)

	named := c.FieldName(wire.Field{Name: "explicit"}, 1)
	require.Equal(t, "explicit", named)
}
