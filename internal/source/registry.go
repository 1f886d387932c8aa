package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

var (
	// ErrSourceNotFound means no definition exists for the requested id.
	ErrSourceNotFound = errors.New("source not found")
	// ErrAccessDenied means the source exists but the requester may not see
	// it. Callers must not leak more than the denial itself.
	ErrAccessDenied = errors.New("access denied")
)

// DefaultSamplingParams is the globally recognized parameter set; each source
// declares the subset it accepts.
var DefaultSamplingParams = []string{"resolution", "windowWidth", "windowHeight", "buffer"}

type snapshot struct {
	order []string
	byID  map[string]*Definition
}

// Registry indexes source definitions. Read-only between reloads; the active
// snapshot is swapped atomically so concurrent requests never see a partial
// load.
type Registry struct {
	current    atomic.Pointer[snapshot]
	recognized []string
	path       string
	logger     zerolog.Logger
}

type Option func(*Registry)

func WithRecognizedParams(params []string) Option {
	return func(r *Registry) {
		if len(params) > 0 {
			r.recognized = params
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry validates all definitions and builds a registry. A single
// malformed entry fails the whole load.
func NewRegistry(defs []Definition, opts ...Option) (*Registry, error) {
	r := &Registry{
		recognized: DefaultSamplingParams,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	snap, err := r.buildSnapshot(defs)
	if err != nil {
		return nil, err
	}
	r.current.Store(snap)
	return r, nil
}

// LoadRegistry reads a registry from a JSON document at path.
func LoadRegistry(path string, opts ...Option) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source definitions: %w", err)
	}
	defer func() { _ = f.Close() }()

	defs, err := ParseDefinitions(f)
	if err != nil {
		return nil, err
	}
	r, err := NewRegistry(defs, opts...)
	if err != nil {
		return nil, err
	}
	r.path = path
	r.logger.Info().Int("sources", len(defs)).Str("path", path).Msg("source registry loaded")
	return r, nil
}

// ParseDefinitions decodes a {"sources": [...]} document.
func ParseDefinitions(r io.Reader) ([]Definition, error) {
	var doc struct {
		Sources []Definition `json:"sources"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode source definitions: %w", err)
	}
	return doc.Sources, nil
}

func (r *Registry) buildSnapshot(defs []Definition) (*snapshot, error) {
	snap := &snapshot{
		order: make([]string, 0, len(defs)),
		byID:  make(map[string]*Definition, len(defs)),
	}
	for i := range defs {
		def := defs[i]
		if err := def.Validate(r.recognized); err != nil {
			return nil, err
		}
		if _, dup := snap.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %s", def.ID)
		}
		snap.order = append(snap.order, def.ID)
		snap.byID[def.ID] = &def
	}
	return snap, nil
}

// Resolve returns the definition, failing with ErrSourceNotFound for unknown
// ids and ErrAccessDenied for private sources owned by someone else.
func (r *Registry) Resolve(id string, who model.Identity) (*Definition, error) {
	snap := r.current.Load()
	def, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, ErrSourceNotFound)
	}
	if !def.Access.Allows(who) {
		return nil, fmt.Errorf("source %s: %w", id, ErrAccessDenied)
	}
	return def, nil
}

// List returns the sources the requester may access, in load order.
func (r *Registry) List(who model.Identity) []*Definition {
	snap := r.current.Load()
	out := make([]*Definition, 0, len(snap.order))
	for _, id := range snap.order {
		if def := snap.byID[id]; def.Access.Allows(who) {
			out = append(out, def)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.current.Load().order)
}

// Reload validates and atomically swaps in a new definition set.
func (r *Registry) Reload(defs []Definition) error {
	snap, err := r.buildSnapshot(defs)
	if err != nil {
		return fmt.Errorf("registry reload rejected: %w", err)
	}
	r.current.Store(snap)
	r.logger.Info().Int("sources", len(defs)).Msg("source registry reloaded")
	return nil
}

// ReloadFromFile re-reads the document the registry was loaded from. A no-op
// error when the registry was built in memory.
func (r *Registry) ReloadFromFile() error {
	if r.path == "" {
		return errors.New("registry was not loaded from a file")
	}
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open source definitions: %w", err)
	}
	defer func() { _ = f.Close() }()

	defs, err := ParseDefinitions(f)
	if err != nil {
		return err
	}
	return r.Reload(defs)
}
