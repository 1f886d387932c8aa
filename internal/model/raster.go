package model

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RGB is one raw raster pixel. Classification upstreams encode class
// membership as exact colors, so alpha is dropped at decode time.
type RGB struct {
	R, G, B uint8
}

// Raster is an immutable 2D grid of raw pixel values fetched from a provider.
// Pixels are row-major, top row first.
type Raster struct {
	Width  int
	Height int
	Pixels []RGB
}

func NewRaster(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster dimensions must be positive, got %dx%d", width, height)
	}
	return &Raster{Width: width, Height: height, Pixels: make([]RGB, width*height)}, nil
}

func (r *Raster) At(x, y int) RGB {
	return r.Pixels[y*r.Width+x]
}

func (r *Raster) Set(x, y int, c RGB) {
	r.Pixels[y*r.Width+x] = c
}

const rasterHeaderLen = 8

// EncodeRaster packs a raster into the cache wire form: two uint32
// dimensions followed by raw RGB bytes.
func EncodeRaster(r *Raster) []byte {
	out := make([]byte, rasterHeaderLen+3*len(r.Pixels))
	binary.BigEndian.PutUint32(out[0:4], uint32(r.Width))
	binary.BigEndian.PutUint32(out[4:8], uint32(r.Height))
	for i, p := range r.Pixels {
		off := rasterHeaderLen + 3*i
		out[off] = p.R
		out[off+1] = p.G
		out[off+2] = p.B
	}
	return out
}

func DecodeRaster(data []byte) (*Raster, error) {
	if len(data) < rasterHeaderLen {
		return nil, errors.New("raster payload too short")
	}
	w := int(binary.BigEndian.Uint32(data[0:4]))
	h := int(binary.BigEndian.Uint32(data[4:8]))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d", w, h)
	}
	body := data[rasterHeaderLen:]
	if len(body) != 3*w*h {
		return nil, fmt.Errorf("raster payload length %d does not match %dx%d", len(body), w, h)
	}
	r := &Raster{Width: w, Height: h, Pixels: make([]RGB, w*h)}
	for i := range r.Pixels {
		off := 3 * i
		r.Pixels[i] = RGB{R: body[off], G: body[off+1], B: body[off+2]}
	}
	return r, nil
}
