package sampler

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"

	"github.com/sentinel-hub/classification-app-backend/internal/classify"
	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// assemble folds the unordered fetch results back into grid order, decoding
// classification rasters and composing layers per tile. Partial failures are
// reported per tile; only a mosaic with zero usable tiles is an error.
func (e *Engine) assemble(def *source.Definition, tiles []model.TileWindow, results map[job]fetchResult) (*model.SamplingResult, error) {
	out := &model.SamplingResult{
		ID:        e.newID(),
		SourceID:  def.ID,
		Bounds:    outerBounds(tiles),
		Timestamp: e.now().UTC(),
		Tiles:     make([]model.TileResult, 0, len(tiles)),
	}
	if len(tiles) > 0 {
		out.Resolution = tiles[0].Resolution
	}

	for i, tile := range tiles {
		var tr model.TileResult
		if def.Type == source.TypeImageryArchive {
			tr = e.assembleImageryTile(tile, results[job{tileIdx: i, layerIdx: -1}])
		} else {
			tr = e.assembleClassificationTile(def, tile, i, results)
		}
		if tr.Failed {
			out.FailedN++
		}
		out.Tiles = append(out.Tiles, tr)
	}

	if out.FailedN == len(tiles) {
		return nil, ErrAllTilesFailed
	}
	return out, nil
}

func (e *Engine) assembleImageryTile(tile model.TileWindow, res fetchResult) model.TileResult {
	tr := model.TileResult{Tile: tile}
	if res.err != nil {
		e.logger.Warn().Err(res.err).Int("row", tile.Row).Int("col", tile.Col).Msg("imagery tile failed")
		tr.Failed = true
		return tr
	}
	encoded, err := encodePNG(res.raster)
	if err != nil {
		e.logger.Warn().Err(err).Int("row", tile.Row).Int("col", tile.Col).Msg("imagery tile encode failed")
		tr.Failed = true
		return tr
	}
	tr.Image = encoded
	return tr
}

func (e *Engine) assembleClassificationTile(def *source.Definition, tile model.TileWindow, tileIdx int, results map[job]fetchResult) model.TileResult {
	tr := model.TileResult{Tile: tile, Layers: make([]model.LayerResult, 0, len(def.Layers))}

	grids := make([]classify.Decoded, len(def.Layers))
	ok := make([]bool, len(def.Layers))
	for l, layer := range def.Layers {
		res := results[job{tileIdx: tileIdx, layerIdx: l}]
		lr := model.LayerResult{Layer: layer.Title}
		switch {
		case res.err != nil:
			lr.Error = res.err.Error()
			e.logger.Warn().Err(res.err).
				Int("row", tile.Row).Int("col", tile.Col).Str("layer", layer.Title).
				Msg("classification layer failed")
		default:
			decoded, err := classify.Decode(res.raster, layer)
			if err != nil {
				lr.Error = err.Error()
			} else {
				lr.OK = true
				lr.Classes = classTitles(layer)
				lr.Labels = decoded.Labels
				grids[l] = decoded
				ok[l] = true
			}
		}
		tr.Layers = append(tr.Layers, lr)
	}

	anyOK := false
	for _, o := range ok {
		anyOK = anyOK || o
	}
	if !anyOK {
		tr.Failed = true
		return tr
	}

	composite, err := classify.Compose(def.Layers, grids, ok)
	if err != nil {
		e.logger.Warn().Err(err).Int("row", tile.Row).Int("col", tile.Col).Msg("layer composition failed")
		tr.Failed = true
		return tr
	}
	tr.Composite = composite
	return tr
}

func classTitles(layer source.Layer) []string {
	titles := make([]string, len(layer.Classes))
	for i, c := range layer.Classes {
		titles[i] = c.Title
	}
	return titles
}

// outerBounds is the union of the unbuffered tile footprints, which by
// construction equals the requested extent.
func outerBounds(tiles []model.TileWindow) model.BBox {
	if len(tiles) == 0 {
		return model.BBox{}
	}
	b := tiles[0].Inner
	for _, t := range tiles[1:] {
		if t.Inner.MinX < b.MinX {
			b.MinX = t.Inner.MinX
		}
		if t.Inner.MinY < b.MinY {
			b.MinY = t.Inner.MinY
		}
		if t.Inner.MaxX > b.MaxX {
			b.MaxX = t.Inner.MaxX
		}
		if t.Inner.MaxY > b.MaxY {
			b.MaxY = t.Inner.MaxY
		}
	}
	return b
}

func encodePNG(raster *model.Raster) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	for y := 0; y < raster.Height; y++ {
		for x := 0; x < raster.Width; x++ {
			p := raster.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: p.R, G: p.G, B: p.B, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
