package tileindex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memStore) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// a tile-sized footprint in central Europe and a far-away one
var (
	nearBounds = model.BBox{MinX: 1600000, MinY: 5800000, MaxX: 1610000, MaxY: 5810000}
	farBounds  = model.BBox{MinX: -8000000, MinY: -4000000, MaxX: -7990000, MaxY: -3990000}
)

func TestNew_ResolutionRange(t *testing.T) {
	if _, err := New(newMemStore(), -1); err == nil {
		t.Fatalf("negative resolution must fail")
	}
	if _, err := New(newMemStore(), 16); err == nil {
		t.Fatalf("resolution above 15 must fail")
	}
	if _, err := New(newMemStore(), 6); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestCells_DeterministicAndNonEmpty(t *testing.T) {
	idx, err := New(newMemStore(), 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := idx.Cells(nearBounds)
	if err != nil {
		t.Fatalf("Cells: %v", err)
	}
	if len(a) == 0 {
		t.Fatalf("no cells for a real footprint")
	}
	b, err := idx.Cells(nearBounds)
	if err != nil {
		t.Fatalf("Cells: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("cells not deterministic: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("cells not deterministic at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestAddAndPurge(t *testing.T) {
	store := newMemStore()
	idx, err := New(store, 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// two rasters in the region, one far away
	if err := idx.Add(ctx, nearBounds, []string{"raster:a", "raster:b"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, farBounds, []string{"raster:far"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, k := range []string{"raster:a", "raster:b", "raster:far"} {
		if err := store.Set(ctx, k, []byte("payload"), 0); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	purged, err := idx.Purge(ctx, nearBounds)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged=%d want 2", purged)
	}

	if val, _ := store.Get(ctx, "raster:a"); val != nil {
		t.Fatalf("raster:a survived the purge")
	}
	if val, _ := store.Get(ctx, "raster:b"); val != nil {
		t.Fatalf("raster:b survived the purge")
	}
	if val, _ := store.Get(ctx, "raster:far"); val == nil {
		t.Fatalf("raster outside the region was purged")
	}

	// purging again finds nothing
	purged, err = idx.Purge(ctx, nearBounds)
	if err != nil {
		t.Fatalf("second Purge: %v", err)
	}
	if purged != 0 {
		t.Fatalf("second purge=%d want 0", purged)
	}
}

func TestPurge_SparesDisjointFootprintsInSharedCells(t *testing.T) {
	store := newMemStore()
	// resolution 1 hexagons span hundreds of kilometers, so both footprints
	// land in the same cells while staying 10km apart
	idx, err := New(store, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	disjoint := model.BBox{MinX: 1620000, MinY: 5800000, MaxX: 1630000, MaxY: 5810000}
	if err := idx.Add(ctx, nearBounds, []string{"raster:hit"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, disjoint, []string{"raster:side"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, k := range []string{"raster:hit", "raster:side"} {
		if err := store.Set(ctx, k, []byte("payload"), 0); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	purged, err := idx.Purge(ctx, nearBounds)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged=%d want 1", purged)
	}
	if val, _ := store.Get(ctx, "raster:side"); val == nil {
		t.Fatalf("disjoint raster in a shared cell was purged")
	}

	// the survivor must still be indexed for its own region
	purged, err = idx.Purge(ctx, disjoint)
	if err != nil {
		t.Fatalf("second Purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("second purge=%d want 1", purged)
	}
	if val, _ := store.Get(ctx, "raster:side"); val != nil {
		t.Fatalf("raster:side survived its own region purge")
	}
}

func TestAdd_MergesExistingIDs(t *testing.T) {
	store := newMemStore()
	idx, err := New(store, 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := idx.Add(ctx, nearBounds, []string{"raster:a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, nearBounds, []string{"raster:a", "raster:b"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, k := range []string{"raster:a", "raster:b"} {
		if err := store.Set(ctx, k, []byte("payload"), 0); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	purged, err := idx.Purge(ctx, nearBounds)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged=%d want 2 distinct rasters", purged)
	}
}
