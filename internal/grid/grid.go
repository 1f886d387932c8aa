// Package grid turns a geographic sampling request into a deterministic,
// row-major sequence of tile windows.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

const (
	earthRadius = 6378137.0
	originShift = math.Pi * earthRadius
)

// Request describes the outer window to partition. Exactly one of BBox or the
// center form (Lon/Lat/Zoom with HasCenter) must be set. Resolution is
// meters per pixel; zero with a center request falls back to the zoom's
// ground resolution.
type Request struct {
	BBox      *model.BBox
	Lon, Lat  float64
	Zoom      int
	HasCenter bool

	Resolution   float64
	WindowWidth  int
	WindowHeight int
	Buffer       int
}

// GroundResolution returns web-mercator meters per pixel at the given zoom,
// measured at the equator on the standard 256px tile pyramid.
func GroundResolution(zoom int) float64 {
	return 2 * originShift / (256 * math.Exp2(float64(zoom)))
}

// MercatorFromLonLat projects WGS84 degrees into EPSG:3857 meters.
func MercatorFromLonLat(lon, lat float64) (x, y float64) {
	x = lon * originShift / 180
	y = math.Log(math.Tan((90+lat)*math.Pi/360)) * earthRadius
	return x, y
}

// LonLatFromMercator is the inverse projection.
func LonLatFromMercator(x, y float64) (lon, lat float64) {
	lon = x * 180 / originShift
	lat = 2*math.Atan(math.Exp(y/earthRadius))*180/math.Pi - 90
	return lon, lat
}

// SlippyTile returns the x/y address of the standard web-map tile containing
// the given point at the given zoom.
func SlippyTile(lon, lat float64, zoom int) (tx, ty int) {
	n := math.Exp2(float64(zoom))
	tx = int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	ty = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	max := int(n) - 1
	if tx < 0 {
		tx = 0
	} else if tx > max {
		tx = max
	}
	if ty < 0 {
		ty = 0
	} else if ty > max {
		ty = max
	}
	return tx, ty
}

// SlippyTileBounds returns the mercator extent of one slippy tile.
func SlippyTileBounds(tx, ty, zoom int) model.BBox {
	size := 2 * originShift / math.Exp2(float64(zoom))
	return model.BBox{
		MinX: -originShift + float64(tx)*size,
		MaxX: -originShift + float64(tx+1)*size,
		MaxY: originShift - float64(ty)*size,
		MinY: originShift - float64(ty+1)*size,
	}
}

// Generate partitions the request's outer extent into a row-major grid of
// WindowWidth x WindowHeight pixel tiles at Resolution. The last tile in each
// row and column is clipped to the extent; every tile is then expanded by
// Buffer pixels worth of distance on all edges, including the outer boundary.
// Identical inputs always produce the identical ordered sequence.
func Generate(req Request) ([]model.TileWindow, error) {
	extent, res, err := resolveExtent(req)
	if err != nil {
		return nil, err
	}
	if req.WindowWidth <= 0 || req.WindowHeight <= 0 {
		return nil, fmt.Errorf("window dimensions must be positive, got %dx%d", req.WindowWidth, req.WindowHeight)
	}
	if req.Buffer < 0 {
		return nil, fmt.Errorf("buffer must not be negative, got %d", req.Buffer)
	}

	tileW := float64(req.WindowWidth) * res
	tileH := float64(req.WindowHeight) * res
	cols := int(math.Ceil(extent.Width() / tileW))
	rows := int(math.Ceil(extent.Height() / tileH))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	margin := float64(req.Buffer) * res
	tiles := make([]model.TileWindow, 0, rows*cols)
	for row := range rows {
		maxY := extent.MaxY - float64(row)*tileH
		minY := math.Max(maxY-tileH, extent.MinY)
		for col := range cols {
			minX := extent.MinX + float64(col)*tileW
			maxX := math.Min(minX+tileW, extent.MaxX)

			inner := model.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
			tiles = append(tiles, model.TileWindow{
				Row:   row,
				Col:   col,
				Inner: inner,
				Bounds: model.BBox{
					MinX: minX - margin,
					MinY: minY - margin,
					MaxX: maxX + margin,
					MaxY: maxY + margin,
				},
				Width:      pixels(inner.Width(), res) + 2*req.Buffer,
				Height:     pixels(inner.Height(), res) + 2*req.Buffer,
				Resolution: res,
			})
		}
	}
	return tiles, nil
}

func resolveExtent(req Request) (model.BBox, float64, error) {
	switch {
	case req.BBox != nil && req.HasCenter:
		return model.BBox{}, 0, errors.New("bbox and center location are mutually exclusive")
	case req.BBox != nil:
		if !req.BBox.Valid() {
			return model.BBox{}, 0, fmt.Errorf("invalid bbox %s", req.BBox)
		}
		if req.Resolution <= 0 {
			return model.BBox{}, 0, fmt.Errorf("resolution must be positive, got %g", req.Resolution)
		}
		return *req.BBox, req.Resolution, nil
	case req.HasCenter:
		if req.Lon < -180 || req.Lon > 180 {
			return model.BBox{}, 0, fmt.Errorf("longitude %g out of range", req.Lon)
		}
		if req.Lat < -85.06 || req.Lat > 85.06 {
			return model.BBox{}, 0, fmt.Errorf("latitude %g outside web-mercator range", req.Lat)
		}
		if req.Zoom < 0 || req.Zoom > 22 {
			return model.BBox{}, 0, fmt.Errorf("zoom %d out of range", req.Zoom)
		}
		res := req.Resolution
		if res <= 0 {
			res = GroundResolution(req.Zoom)
		}
		tx, ty := SlippyTile(req.Lon, req.Lat, req.Zoom)
		return SlippyTileBounds(tx, ty, req.Zoom), res, nil
	default:
		return model.BBox{}, 0, errors.New("either bbox or center location is required")
	}
}

func pixels(distance, res float64) int {
	n := int(math.Round(distance / res))
	if n < 1 {
		n = 1
	}
	return n
}
