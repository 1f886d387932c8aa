package classify

import (
	"reflect"
	"testing"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

var (
	opaque = model.RGB{R: 0xFF, G: 0x70, B: 0x00}
	land   = model.RGB{R: 0x00, G: 0x80, B: 0x00}
	water  = model.RGB{R: 0x00, G: 0x00, B: 0xFF}
	noise  = model.RGB{R: 0x12, G: 0x34, B: 0x56}
)

func cloudLayer() source.Layer {
	return source.Layer{
		Title: "Clouds",
		Classes: []source.Class{
			{Title: "Opaque", Color: "#FF7000"},
		},
	}
}

func surfaceLayer() source.Layer {
	return source.Layer{
		Title:    "Surface",
		PaintAll: true,
		Classes: []source.Class{
			{Title: "Land", Color: "#008000"},
			{Title: "Water", Color: "#0000FF"},
		},
	}
}

func rasterOf(width int, pixels ...model.RGB) *model.Raster {
	return &model.Raster{Width: width, Height: len(pixels) / width, Pixels: pixels}
}

func TestDecode_MaskLayer(t *testing.T) {
	r := rasterOf(2, opaque, noise, noise, opaque)
	got, err := Decode(r, cloudLayer())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []int16{0, Unfilled, Unfilled, 0}
	if !reflect.DeepEqual(got.Labels, want) {
		t.Fatalf("labels=%v want %v", got.Labels, want)
	}
}

func TestDecode_PaintAllLayer(t *testing.T) {
	r := rasterOf(2, land, water, noise, land)
	got, err := Decode(r, surfaceLayer())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []int16{0, 1, Unknown, 0}
	if !reflect.DeepEqual(got.Labels, want) {
		t.Fatalf("labels=%v want %v", got.Labels, want)
	}
}

func TestDecode_Deterministic(t *testing.T) {
	r := rasterOf(2, land, noise, water, land)
	a, err := Decode(r, surfaceLayer())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, err := Decode(r, surfaceLayer())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same raster decoded differently")
	}
}

func TestDecode_BadColor(t *testing.T) {
	layer := source.Layer{Title: "Broken", Classes: []source.Class{{Title: "X", Color: "red"}}}
	if _, err := Decode(rasterOf(1, noise), layer); err == nil {
		t.Fatalf("expected color parse error")
	}
}

// A cloud mask over a paintAll surface classification: cloudy pixels override
// the surface fill, clear pixels keep it.
func TestCompose_MaskOverridesPaintAll(t *testing.T) {
	layers := []source.Layer{cloudLayer(), surfaceLayer()}

	clouds, err := Decode(rasterOf(2, opaque, noise, noise, noise), layers[0])
	if err != nil {
		t.Fatalf("decode clouds: %v", err)
	}
	surface, err := Decode(rasterOf(2, land, water, noise, land), layers[1])
	if err != nil {
		t.Fatalf("decode surface: %v", err)
	}

	got, err := Compose(layers, []Decoded{clouds, surface}, []bool{true, true})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	wantLegend := []string{"Opaque", "Land", "Water"}
	if !reflect.DeepEqual(got.Classes, wantLegend) {
		t.Fatalf("legend=%v want %v", got.Classes, wantLegend)
	}

	// pixel 0 cloudy, pixel 1 water, pixel 2 unknown surface, pixel 3 land
	want := []int16{0, 2, Unknown, 1}
	if !reflect.DeepEqual(got.Labels, want) {
		t.Fatalf("labels=%v want %v", got.Labels, want)
	}
}

func TestCompose_FailedLayerSkipped(t *testing.T) {
	layers := []source.Layer{cloudLayer(), surfaceLayer()}
	surface, err := Decode(rasterOf(2, land, water, land, land), layers[1])
	if err != nil {
		t.Fatalf("decode surface: %v", err)
	}

	got, err := Compose(layers, []Decoded{{}, surface}, []bool{false, true})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	// surface classes keep their offset in the combined legend even though
	// the cloud layer failed
	want := []int16{1, 2, 1, 1}
	if !reflect.DeepEqual(got.Labels, want) {
		t.Fatalf("labels=%v want %v", got.Labels, want)
	}
}

func TestCompose_NoPaintAllLeavesUnfilled(t *testing.T) {
	layers := []source.Layer{cloudLayer()}
	clouds, err := Decode(rasterOf(2, noise, opaque), layers[0])
	if err != nil {
		t.Fatalf("decode clouds: %v", err)
	}
	got, err := Compose(layers, []Decoded{clouds}, []bool{true})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	want := []int16{Unfilled, 0}
	if !reflect.DeepEqual(got.Labels, want) {
		t.Fatalf("labels=%v want %v", got.Labels, want)
	}
}

func TestCompose_Errors(t *testing.T) {
	layers := []source.Layer{cloudLayer(), surfaceLayer()}

	if _, err := Compose(layers, []Decoded{{}, {}}, []bool{false, false}); err == nil {
		t.Fatalf("expected error when no layer decoded")
	}

	a := Decoded{Width: 2, Height: 1, Labels: []int16{0, 0}}
	b := Decoded{Width: 1, Height: 1, Labels: []int16{0}}
	if _, err := Compose(layers, []Decoded{a, b}, []bool{true, true}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}

	if _, err := Compose(layers, []Decoded{a}, []bool{true}); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}
