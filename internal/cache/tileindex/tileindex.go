// Package tileindex keeps a coarse H3 spatial index over cached tile keys so
// regional invalidation events can purge exactly the affected rasters.
package tileindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	h3 "github.com/uber/h3-go/v4"

	"github.com/sentinel-hub/classification-app-backend/internal/cache"
	"github.com/sentinel-hub/classification-app-backend/internal/grid"
	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

type Index struct {
	store cache.Store
	res   int
}

func New(store cache.Store, res int) (*Index, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return &Index{store: store, res: res}, nil
}

// Cells returns the sorted H3 cells covering a mercator footprint at the
// index resolution. Corner cells are always included so footprints smaller
// than one hexagon still land somewhere.
func (i *Index) Cells(b model.BBox) ([]string, error) {
	lonMin, latMin := grid.LonLatFromMercator(b.MinX, b.MinY)
	lonMax, latMax := grid.LonLatFromMercator(b.MaxX, b.MaxY)

	outer := h3.GeoLoop{
		{Lat: latMin, Lng: lonMin},
		{Lat: latMin, Lng: lonMax},
		{Lat: latMax, Lng: lonMax},
		{Lat: latMax, Lng: lonMin},
	}
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, i.res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	seen := make(map[string]struct{}, len(indexes)+4)
	out := make([]string, 0, len(indexes)+4)
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, idx := range indexes {
		add(idx.String())
	}
	for _, corner := range outer {
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: corner.Lat, Lng: corner.Lng}, i.res)
		if err != nil {
			return nil, fmt.Errorf("h3 corner cell: %w", err)
		}
		add(cell.String())
	}
	sort.Strings(out)
	return out, nil
}

func indexKey(cell string) string {
	return "tileidx:" + cell
}

// entry pairs a cached raster key with the tile footprint it was cached for,
// so a purge can test the exact footprint against the invalidated region
// instead of trusting the coarse cell cover.
type entry struct {
	Key    string     `json:"key"`
	Bounds model.BBox `json:"bounds"`
}

// Add records cached raster keys under every cell the tile footprint touches.
func (i *Index) Add(ctx context.Context, bounds model.BBox, rasterKeys []string) error {
	if len(rasterKeys) == 0 {
		return nil
	}
	cells, err := i.Cells(bounds)
	if err != nil {
		return err
	}
	extra := make([]entry, 0, len(rasterKeys))
	for _, k := range rasterKeys {
		extra = append(extra, entry{Key: k, Bounds: bounds})
	}
	for _, cell := range cells {
		key := indexKey(cell)
		entries, err := i.getEntries(ctx, key)
		if err != nil {
			return err
		}
		if err := i.putEntries(ctx, key, mergeEntries(entries, extra)); err != nil {
			return err
		}
	}
	return nil
}

// Purge deletes every cached raster whose footprint intersects the region.
// Cells only narrow the candidate set; the entry bounds decide, so rasters
// sharing a coarse cell with the region but lying outside it survive.
// Returns the number of purged rasters.
func (i *Index) Purge(ctx context.Context, region model.BBox) (int, error) {
	cells, err := i.Cells(region)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	doomed := make([]string, 0)
	for _, cell := range cells {
		key := indexKey(cell)
		entries, err := i.getEntries(ctx, key)
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			continue
		}
		kept := entries[:0]
		for _, e := range entries {
			if !e.Bounds.Intersects(region) {
				kept = append(kept, e)
				continue
			}
			if _, ok := seen[e.Key]; !ok {
				seen[e.Key] = struct{}{}
				doomed = append(doomed, e.Key)
			}
		}
		if len(kept) == 0 {
			doomed = append(doomed, key)
			continue
		}
		if err := i.putEntries(ctx, key, kept); err != nil {
			return 0, err
		}
	}
	purged := len(seen)
	if err := i.store.Del(ctx, doomed...); err != nil {
		return 0, fmt.Errorf("tileindex purge: %w", err)
	}
	return purged, nil
}

func (i *Index) getEntries(ctx context.Context, key string) ([]entry, error) {
	raw, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("tileindex get %q: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("tileindex decode entries: %w", err)
	}
	return entries, nil
}

func (i *Index) putEntries(ctx context.Context, key string, entries []entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("tileindex encode entries: %w", err)
	}
	if err := i.store.Set(ctx, key, payload, 0); err != nil {
		return fmt.Errorf("tileindex set %q: %w", key, err)
	}
	return nil
}

func mergeEntries(current, extra []entry) []entry {
	seen := make(map[string]struct{}, len(current)+len(extra))
	out := make([]entry, 0, len(current)+len(extra))
	for _, e := range current {
		if _, ok := seen[e.Key]; !ok {
			seen[e.Key] = struct{}{}
			out = append(out, e)
		}
	}
	for _, e := range extra {
		if _, ok := seen[e.Key]; !ok {
			seen[e.Key] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
