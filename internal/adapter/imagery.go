package adapter

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

// ImageryArchive queries a WMS-style imagery tile service. The endpoint is a
// URL template with an {instance} placeholder substituted from configuration.
type ImageryArchive struct {
	client   *Client
	endpoint string
	sourceID string
}

func NewImageryArchive(client *Client, urlTemplate, instance, sourceID string) *ImageryArchive {
	return &ImageryArchive{
		client:   client,
		endpoint: strings.ReplaceAll(urlTemplate, "{instance}", instance),
		sourceID: sourceID,
	}
}

func (a *ImageryArchive) Fetch(ctx context.Context, tile model.TileWindow) (*model.Raster, error) {
	params := url.Values{}
	params.Set("SERVICE", "WMS")
	params.Set("REQUEST", "GetMap")
	params.Set("CRS", "EPSG:3857")
	params.Set("BBOX", tile.Bounds.String())
	params.Set("WIDTH", strconv.Itoa(tile.Width))
	params.Set("HEIGHT", strconv.Itoa(tile.Height))
	params.Set("FORMAT", "image/png")

	raster, err := a.client.GetRaster(ctx, "imagery-archive", a.endpoint+"?"+params.Encode(), tile.Width, tile.Height)
	if err != nil {
		return nil, &UpstreamError{SourceID: a.sourceID, Tile: tile, Err: err}
	}
	return raster, nil
}
