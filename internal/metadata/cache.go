// Package metadata implements the metadata cache of SPEC_FULL.md §4.2: a
// monotonic, never-shrinking dedup table from wire metadata id to descriptor.
package metadata

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/taskscope/taskscope/internal/wire"
)

// ErrUnknown is returned by Get for an id that has never been registered.
var ErrUnknown = fmt.Errorf("metadata: unknown id")

// Cache deduplicates wire.Metadata descriptors by id. Inserts are
// idempotent; see InsertMany for the conflicting-descriptor policy.
type Cache struct {
	mu      sync.RWMutex
	byID    map[uint64]wire.Metadata
	dropped uint64 // conflicting re-registrations, counted per SPEC_FULL.md §4.2
}

// New returns an empty metadata cache.
func New() *Cache {
	return &Cache{byID: make(map[uint64]wire.Metadata)}
}

// InsertMany merges a batch of descriptors. A descriptor id seen for the
// first time is recorded. A second descriptor for an id already known is
// kept as-is (metadata ids never change once assigned, per data-model
// invariant 5) and, if its payload differs from what's on file, is counted
// as a dropped event rather than applied.
func (c *Cache) InsertMany(batch []wire.Metadata) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range batch {
		existing, ok := c.byID[m.ID]
		if !ok {
			c.byID[m.ID] = m
			continue
		}
		if !reflect.DeepEqual(existing, m) {
			c.dropped++
		}
	}
}

// Get resolves a metadata id, failing with ErrUnknown if the id has never
// been registered.
func (c *Cache) Get(id uint64) (wire.Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byID[id]
	if !ok {
		return wire.Metadata{}, ErrUnknown
	}
	return m, nil
}

// FieldName resolves a field's display name, falling back to the owning
// metadata's FieldNames table when the field itself carries no name
// (SPEC_FULL.md §4.3 point 2).
func (c *Cache) FieldName(f wire.Field, metadataID uint64) string {
	if f.Name != "" {
		return f.Name
	}
	m, err := c.Get(metadataID)
	if err != nil {
		return ""
	}
	idx := int(f.MetadataID)
	if idx < 0 || idx >= len(m.FieldNames) {
		return ""
	}
	return m.FieldNames[idx]
}

// DroppedEvents returns the count of conflicting re-registrations observed
// so far (monotonically increasing).
func (c *Cache) DroppedEvents() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Reset clears the cache (used on reconnect, mirroring Store.Reset).
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[uint64]wire.Metadata)
	c.dropped = 0
}
