// Package source implements provider definitions and the access-controlled
// registry resolving them.
package source

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

// Type tags which adapter variant handles a source.
type Type string

const (
	TypeImageryArchive  Type = "imagery-archive"
	TypeGeopediaV0      Type = "geopedia-v0"
	TypeGeopediaWater   Type = "geopedia-water"
	TypeGeopediaResults Type = "geopedia-results"
)

func (t Type) Valid() bool {
	switch t {
	case TypeImageryArchive, TypeGeopediaV0, TypeGeopediaWater, TypeGeopediaResults:
		return true
	}
	return false
}

// IsGeopedia reports whether the source reads classification rasters from the
// geopedia database (any schema generation).
func (t Type) IsGeopedia() bool {
	switch t {
	case TypeGeopediaV0, TypeGeopediaWater, TypeGeopediaResults:
		return true
	}
	return false
}

type AccessType string

const (
	AccessPublic  AccessType = "public"
	AccessPrivate AccessType = "private"
)

type Access struct {
	AccessType AccessType `json:"accessType"`
	OwnerID    int64      `json:"ownerId"`
}

// Allows decides whether the requester may see this source. Private sources
// require an authenticated owner match.
func (a Access) Allows(who model.Identity) bool {
	if a.AccessType == AccessPublic {
		return true
	}
	return !who.Anonymous && who.UserID == a.OwnerID
}

type Class struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

// Layer is one classification mask within a source. A paintAll layer is the
// exhaustive background fill; all others are sparse overlays.
type Layer struct {
	Title    string  `json:"title"`
	PaintAll bool    `json:"paintAll"`
	Classes  []Class `json:"classes"`
}

// Definition describes one registered provider. Immutable after load.
type Definition struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Access         Access          `json:"access"`
	Type           Type            `json:"sourceType"`
	GeopediaLayer  int             `json:"geopediaLayer,omitempty"`
	Layers         []Layer         `json:"layers,omitempty"`
	SamplingParams []string        `json:"samplingParams"`
	DefaultUI      json.RawMessage `json:"defaultUi,omitempty"`
}

// Info is the trimmed listing view sent to clients on GET /sources.
type Info struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	SamplingParams []string `json:"samplingParams"`
}

func (d *Definition) Info() Info {
	return Info{ID: d.ID, Name: d.Name, Description: d.Description, SamplingParams: d.SamplingParams}
}

// AcceptsParam reports whether the source declares the sampling parameter.
func (d *Definition) AcceptsParam(name string) bool {
	for _, p := range d.SamplingParams {
		if p == name {
			return true
		}
	}
	return false
}

// ParseColor parses a "#RRGGBB" class color.
func ParseColor(s string) (model.RGB, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return model.RGB{}, fmt.Errorf("color %q is not #RRGGBB", s)
	}
	var c model.RGB
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return model.RGB{}, fmt.Errorf("color %q is not #RRGGBB: %w", s, err)
	}
	return c, nil
}

// Validate enforces the definition invariants: a known source type, a layer
// identifier for geopedia sources, unique valid colors within each layer and
// at most one paintAll layer.
func (d *Definition) Validate(recognizedParams []string) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("source %q: id is required", d.Name)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("source %s: name is required", d.ID)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("source %s: unknown source type %q", d.ID, d.Type)
	}
	switch d.Access.AccessType {
	case AccessPublic, AccessPrivate:
	default:
		return fmt.Errorf("source %s: unknown access type %q", d.ID, d.Access.AccessType)
	}
	if d.Type.IsGeopedia() && d.GeopediaLayer <= 0 {
		return fmt.Errorf("source %s: geopedia source requires a geopediaLayer id", d.ID)
	}

	for _, p := range d.SamplingParams {
		if !contains(recognizedParams, p) {
			return fmt.Errorf("source %s: unrecognized sampling parameter %q", d.ID, p)
		}
	}

	paintAll := 0
	for _, layer := range d.Layers {
		if strings.TrimSpace(layer.Title) == "" {
			return fmt.Errorf("source %s: layer title is required", d.ID)
		}
		if layer.PaintAll {
			paintAll++
		}
		if len(layer.Classes) == 0 {
			return fmt.Errorf("source %s: layer %q has no classes", d.ID, layer.Title)
		}
		seen := make(map[model.RGB]string, len(layer.Classes))
		for _, class := range layer.Classes {
			c, err := ParseColor(class.Color)
			if err != nil {
				return fmt.Errorf("source %s: layer %q: %w", d.ID, layer.Title, err)
			}
			if prev, ok := seen[c]; ok {
				return fmt.Errorf("source %s: layer %q: color %s used by both %q and %q",
					d.ID, layer.Title, class.Color, prev, class.Title)
			}
			seen[c] = class.Title
		}
	}
	if paintAll > 1 {
		return fmt.Errorf("source %s: at most one paintAll layer is allowed, got %d", d.ID, paintAll)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
