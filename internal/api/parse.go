package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

// ParseSampleQuery builds a sampling request from GET query parameters.
// Supplied collects the optional parameter names the client set, so the
// engine can check them against the source's declared samplingParams.
func ParseSampleQuery(r *http.Request) (model.SamplingRequest, error) {
	q := r.URL.Query()

	req := model.SamplingRequest{
		SourceID: strings.TrimSpace(q.Get("source")),
	}
	if req.SourceID == "" {
		return model.SamplingRequest{}, errors.New("missing required parameter: source")
	}

	if raw := strings.TrimSpace(q.Get("bbox")); raw != "" {
		bb, err := parseBBox(raw)
		if err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid bbox: %w", err)
		}
		req.BBox = &bb
	}

	rawLon, rawLat, rawZoom := q.Get("lon"), q.Get("lat"), q.Get("zoom")
	if rawLon != "" || rawLat != "" || rawZoom != "" {
		if rawLon == "" || rawLat == "" || rawZoom == "" {
			return model.SamplingRequest{}, errors.New("lon, lat and zoom must be supplied together")
		}
		var err error
		if req.Lon, err = parseFloat(rawLon); err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid lon: %w", err)
		}
		if req.Lat, err = parseFloat(rawLat); err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid lat: %w", err)
		}
		if req.Zoom, err = strconv.Atoi(strings.TrimSpace(rawZoom)); err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid zoom: %w", err)
		}
		req.HasCenter = true
	}

	if raw := q.Get("resolution"); raw != "" {
		v, err := parseFloat(raw)
		if err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid resolution: %w", err)
		}
		req.Resolution = v
		req.Supplied = append(req.Supplied, "resolution")
	}
	if raw := q.Get("windowWidth"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid windowWidth: %w", err)
		}
		req.WindowWidth = v
		req.Supplied = append(req.Supplied, "windowWidth")
	}
	if raw := q.Get("windowHeight"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid windowHeight: %w", err)
		}
		req.WindowHeight = v
		req.Supplied = append(req.Supplied, "windowHeight")
	}
	if raw := q.Get("buffer"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return model.SamplingRequest{}, fmt.Errorf("invalid buffer: %w", err)
		}
		req.Buffer = v
		req.Supplied = append(req.Supplied, "buffer")
	}

	return req, nil
}

// sampleBody is the POST /sample payload. Pointer fields distinguish "absent"
// from zero so supplied parameters can be validated per source.
type sampleBody struct {
	Source string      `json:"source"`
	BBox   *model.BBox `json:"bbox,omitempty"`
	Lon    *float64    `json:"lon,omitempty"`
	Lat    *float64    `json:"lat,omitempty"`
	Zoom   *int        `json:"zoom,omitempty"`

	Resolution   *float64 `json:"resolution,omitempty"`
	WindowWidth  *int     `json:"windowWidth,omitempty"`
	WindowHeight *int     `json:"windowHeight,omitempty"`
	Buffer       *int     `json:"buffer,omitempty"`
}

func ParseSampleBody(r *http.Request) (model.SamplingRequest, error) {
	var body sampleBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return model.SamplingRequest{}, fmt.Errorf("invalid request body: %w", err)
	}

	req := model.SamplingRequest{
		SourceID: strings.TrimSpace(body.Source),
		BBox:     body.BBox,
	}
	if req.SourceID == "" {
		return model.SamplingRequest{}, errors.New("missing required field: source")
	}

	if body.Lon != nil || body.Lat != nil || body.Zoom != nil {
		if body.Lon == nil || body.Lat == nil || body.Zoom == nil {
			return model.SamplingRequest{}, errors.New("lon, lat and zoom must be supplied together")
		}
		req.Lon, req.Lat, req.Zoom = *body.Lon, *body.Lat, *body.Zoom
		req.HasCenter = true
	}

	if body.Resolution != nil {
		req.Resolution = *body.Resolution
		req.Supplied = append(req.Supplied, "resolution")
	}
	if body.WindowWidth != nil {
		req.WindowWidth = *body.WindowWidth
		req.Supplied = append(req.Supplied, "windowWidth")
	}
	if body.WindowHeight != nil {
		req.WindowHeight = *body.WindowHeight
		req.Supplied = append(req.Supplied, "windowHeight")
	}
	if body.Buffer != nil {
		req.Buffer = *body.Buffer
		req.Supplied = append(req.Supplied, "buffer")
	}

	return req, nil
}

func parseBBox(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: minX,minY,maxX,maxY")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := parseFloat(p)
		if err != nil {
			return model.BBox{}, err
		}
		vals[i] = v
	}
	bb := model.BBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	if !bb.Valid() {
		return model.BBox{}, errors.New("coordinates must satisfy maxX>minX and maxY>minY")
	}
	return bb, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
