// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

// BBox is an axis-aligned rectangle in web-mercator meters (EPSG:3857).
type BBox struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// String representation matching wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

func (b BBox) Valid() bool {
	return b.MaxX > b.MinX && b.MaxY > b.MinY
}

func (b BBox) Intersects(o BBox) bool {
	return b.MinX < o.MaxX && o.MinX < b.MaxX && b.MinY < o.MaxY && o.MinY < b.MaxY
}

// TileWindow is one rectangular sub-unit of a sampling request. Bounds carries
// the buffered footprint handed to adapters; Inner is the unbuffered footprint
// whose union over all tiles covers the requested extent exactly.
type TileWindow struct {
	Row        int     `json:"row"`
	Col        int     `json:"col"`
	Bounds     BBox    `json:"bounds"`
	Inner      BBox    `json:"inner"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"`
}

// Identity is the authenticated requester, resolved by the auth middleware.
// Anonymous identities see public sources only.
type Identity struct {
	UserID    int64
	Anonymous bool
}

// SamplingRequest is the normalized input of one /sample call. Supplied lists
// the parameter names the client set explicitly, in request order; it is what
// gets checked against the source's declared samplingParams.
type SamplingRequest struct {
	SourceID string

	BBox      *BBox
	Lon, Lat  float64
	Zoom      int
	HasCenter bool

	Resolution   float64
	WindowWidth  int
	WindowHeight int
	Buffer       int

	Supplied []string
}

// LayerResult is the decoded outcome of one classification layer on one tile.
// Labels is a row-major Width*Height grid indexing Classes; negative values
// are the unfilled/unknown sentinels from the classify package.
type LayerResult struct {
	Layer   string   `json:"layer"`
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Classes []string `json:"classes,omitempty"`
	Labels  []int16  `json:"labels,omitempty"`
}

// CompositeResult merges all layers of a tile by the source's layer order.
type CompositeResult struct {
	Classes []string `json:"classes"`
	Labels  []int16  `json:"labels"`
}

// TileResult carries everything sampled for one tile. Failed is set when the
// imagery fetch or every classification layer fetch for the tile failed.
type TileResult struct {
	Tile      TileWindow       `json:"tile"`
	Failed    bool             `json:"failed"`
	Image     string           `json:"image,omitempty"` // base64 PNG, imagery sources
	Layers    []LayerResult    `json:"layers,omitempty"`
	Composite *CompositeResult `json:"composite,omitempty"`
}

// SamplingResult is the assembled mosaic response. Tiles are in the
// deterministic row-major order produced by the grid generator.
type SamplingResult struct {
	ID         string       `json:"id"`
	SourceID   string       `json:"sourceId"`
	Bounds     BBox         `json:"bounds"`
	Resolution float64      `json:"resolution"`
	Timestamp  time.Time    `json:"timestamp"`
	Tiles      []TileResult `json:"tiles"`
	FailedN    int          `json:"failedTiles"`
}
