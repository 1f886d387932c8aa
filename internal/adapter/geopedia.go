package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// Geopedia fetches precomputed classification rasters from the geopedia
// map-image endpoint, addressed by the source's layer table id. Schema
// generations differ in the endpoint path and how the classification layer is
// selected, so each source type maps to its own query shape.
type Geopedia struct {
	client   *Client
	baseURL  string
	sourceID string
	kind     source.Type
	layerID  int
}

func NewGeopedia(client *Client, baseURL string, def *source.Definition) *Geopedia {
	return &Geopedia{
		client:   client,
		baseURL:  baseURL,
		sourceID: def.ID,
		kind:     def.Type,
		layerID:  def.GeopediaLayer,
	}
}

func (g *Geopedia) FetchClassification(ctx context.Context, tile model.TileWindow, layer source.Layer) (*model.Raster, error) {
	raster, err := g.client.GetRaster(ctx, "geopedia", g.mapImageURL(tile, layer), tile.Width, tile.Height)
	if err != nil {
		return nil, &UpstreamError{SourceID: g.sourceID, Layer: layer.Title, Tile: tile, Err: err}
	}
	return raster, nil
}

func (g *Geopedia) mapImageURL(tile model.TileWindow, layer source.Layer) string {
	params := url.Values{}
	params.Set("bbox", tile.Bounds.String())
	params.Set("width", strconv.Itoa(tile.Width))
	params.Set("height", strconv.Itoa(tile.Height))
	params.Set("format", "image/png")

	switch g.kind {
	case source.TypeGeopediaV0:
		// first-generation tables carry one mask column per layer title
		params.Set("column", layer.Title)
		return fmt.Sprintf("%s/map/v0/ttl%d?%s", g.baseURL, g.layerID, params.Encode())
	case source.TypeGeopediaWater:
		return fmt.Sprintf("%s/map/wb/ttl%d?%s", g.baseURL, g.layerID, params.Encode())
	default:
		params.Set("layer", layer.Title)
		return fmt.Sprintf("%s/map/results/ttl%d?%s", g.baseURL, g.layerID, params.Encode())
	}
}
