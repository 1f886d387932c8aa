// Package classify maps raw raster pixel colors into semantic class labels
// and composes per-layer results into one grid.
package classify

import (
	"errors"
	"fmt"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// Sentinel labels. Non-negative labels index the owning legend.
const (
	// Unfilled marks a pixel no mask layer claims; transparent in the mosaic.
	Unfilled int16 = -1
	// Unknown marks a pixel a paintAll layer covers with a color outside its
	// declared class list. Still filled, since that layer is the
	// authoritative background.
	Unknown int16 = -2
)

// Decoded is a label grid with the same dimensions as the raster it came from.
type Decoded struct {
	Width  int
	Height int
	Labels []int16
}

// Decode labels every raster pixel against the layer's color table by exact
// match. Unmatched pixels become Unknown on a paintAll layer and Unfilled on
// a mask layer. Pure and idempotent.
func Decode(raster *model.Raster, layer source.Layer) (Decoded, error) {
	if raster == nil {
		return Decoded{}, errors.New("nil raster")
	}
	table := make(map[model.RGB]int16, len(layer.Classes))
	for i, class := range layer.Classes {
		c, err := source.ParseColor(class.Color)
		if err != nil {
			return Decoded{}, fmt.Errorf("layer %q: %w", layer.Title, err)
		}
		table[c] = int16(i)
	}

	miss := Unfilled
	if layer.PaintAll {
		miss = Unknown
	}

	out := Decoded{
		Width:  raster.Width,
		Height: raster.Height,
		Labels: make([]int16, len(raster.Pixels)),
	}
	for i, p := range raster.Pixels {
		if label, ok := table[p]; ok {
			out.Labels[i] = label
		} else {
			out.Labels[i] = miss
		}
	}
	return out, nil
}

// Compose merges per-layer grids into one labeled grid over a combined
// legend. The paintAll layer, wherever declared, supplies the base fill
// (its classes plus Unknown); mask layers are then applied in declaration
// order, their matched pixels overlaying the base. Grids whose layer failed
// to fetch may be nil and are skipped.
func Compose(layers []source.Layer, grids []Decoded, ok []bool) (*model.CompositeResult, error) {
	if len(layers) != len(grids) || len(layers) != len(ok) {
		return nil, fmt.Errorf("layer/grid count mismatch: %d layers, %d grids", len(layers), len(grids))
	}

	legend := make([]string, 0)
	offsets := make([]int16, len(layers))
	for i, layer := range layers {
		offsets[i] = int16(len(legend))
		for _, class := range layer.Classes {
			legend = append(legend, class.Title)
		}
	}

	width, height := -1, -1
	for i := range grids {
		if !ok[i] {
			continue
		}
		if width == -1 {
			width, height = grids[i].Width, grids[i].Height
		} else if grids[i].Width != width || grids[i].Height != height {
			return nil, fmt.Errorf("layer %q grid is %dx%d, want %dx%d",
				layers[i].Title, grids[i].Width, grids[i].Height, width, height)
		}
	}
	if width == -1 {
		return nil, errors.New("no decoded layers to compose")
	}

	out := make([]int16, width*height)
	for i := range out {
		out[i] = Unfilled
	}

	// base fill from the paintAll layer
	for i, layer := range layers {
		if !layer.PaintAll || !ok[i] {
			continue
		}
		for px, label := range grids[i].Labels {
			if label >= 0 {
				out[px] = offsets[i] + label
			} else {
				out[px] = Unknown
			}
		}
	}

	// mask layers overlay where matched
	for i, layer := range layers {
		if layer.PaintAll || !ok[i] {
			continue
		}
		for px, label := range grids[i].Labels {
			if label >= 0 {
				out[px] = offsets[i] + label
			}
		}
	}

	return &model.CompositeResult{Classes: legend, Labels: out}, nil
}
