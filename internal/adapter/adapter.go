// Package adapter fetches rasters from concrete upstream providers. One
// variant exists per source type; all variants are stateless and safe for
// concurrent use across tiles.
package adapter

import (
	"context"
	"fmt"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// Fetcher retrieves the raw imagery raster of one tile window.
type Fetcher interface {
	Fetch(ctx context.Context, tile model.TileWindow) (*model.Raster, error)
}

// ClassificationFetcher retrieves the raw classification raster of one tile
// window for one declared layer.
type ClassificationFetcher interface {
	FetchClassification(ctx context.Context, tile model.TileWindow, layer source.Layer) (*model.Raster, error)
}

// UpstreamError wraps a provider fetch failure after the retry policy is
// exhausted. It is recorded per tile and layer, never aborting siblings.
type UpstreamError struct {
	SourceID string
	Layer    string
	Tile     model.TileWindow
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("upstream fetch failed for source %s layer %q tile (%d,%d): %v",
			e.SourceID, e.Layer, e.Tile.Row, e.Tile.Col, e.Err)
	}
	return fmt.Sprintf("upstream fetch failed for source %s tile (%d,%d): %v",
		e.SourceID, e.Tile.Row, e.Tile.Col, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Set builds the adapter variant matching a source definition.
type Set struct {
	client          *Client
	imageryURL      string
	imageryInstance string
	geopediaURL     string
}

func NewSet(client *Client, imageryURL, imageryInstance, geopediaURL string) *Set {
	return &Set{
		client:          client,
		imageryURL:      imageryURL,
		imageryInstance: imageryInstance,
		geopediaURL:     geopediaURL,
	}
}

// Imagery returns the imagery fetcher for the source, or nil when the source
// type carries no raw imagery.
func (s *Set) Imagery(def *source.Definition) Fetcher {
	if def.Type == source.TypeImageryArchive {
		return NewImageryArchive(s.client, s.imageryURL, s.imageryInstance, def.ID)
	}
	return nil
}

// Classification returns the classification fetcher for the source, or nil
// for plain imagery sources.
func (s *Set) Classification(def *source.Definition) ClassificationFetcher {
	if !def.Type.IsGeopedia() {
		return nil
	}
	return NewGeopedia(s.client, s.geopediaURL, def)
}
