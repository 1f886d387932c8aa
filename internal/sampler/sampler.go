// Package sampler turns a sampling request into a mosaic of fetched, decoded
// tiles: it validates the request against the resolved source, generates the
// tile grid, fans fetches out over a bounded worker pool and assembles the
// outcomes in deterministic grid order.
package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/adapter"
	"github.com/sentinel-hub/classification-app-backend/internal/cache"
	"github.com/sentinel-hub/classification-app-backend/internal/cache/keys"
	"github.com/sentinel-hub/classification-app-backend/internal/cache/tileindex"
	"github.com/sentinel-hub/classification-app-backend/internal/grid"
	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/observability"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// AdapterProvider resolves the adapter variant for a source definition.
// Satisfied by adapter.Set; tests substitute fakes.
type AdapterProvider interface {
	Imagery(def *source.Definition) adapter.Fetcher
	Classification(def *source.Definition) adapter.ClassificationFetcher
}

type Config struct {
	Workers        int
	RequestTimeout time.Duration
	CacheTTL       time.Duration

	DefaultResolution   float64
	DefaultWindowWidth  int
	DefaultWindowHeight int
	DefaultBuffer       int
}

type Engine struct {
	logger   zerolog.Logger
	registry *source.Registry
	adapters AdapterProvider
	store    cache.Store
	index    *tileindex.Index
	cfg      Config

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithCache wires the raster payload cache and, optionally, the spatial
// invalidation index.
func WithCache(store cache.Store, index *tileindex.Index) Option {
	return func(e *Engine) {
		e.store = store
		e.index = index
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(logger zerolog.Logger, registry *source.Registry, adapters AdapterProvider, cfg Config, opts ...Option) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.DefaultResolution <= 0 {
		cfg.DefaultResolution = 10
	}
	if cfg.DefaultWindowWidth <= 0 {
		cfg.DefaultWindowWidth = 256
	}
	if cfg.DefaultWindowHeight <= 0 {
		cfg.DefaultWindowHeight = 256
	}
	e := &Engine{
		logger:   logger,
		registry: registry,
		adapters: adapters,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type job struct {
	tileIdx  int
	layerIdx int // -1 for the imagery fetch
}

type fetchResult struct {
	tileIdx  int
	layerIdx int
	raster   *model.Raster
	err      error
}

// Sample executes one sampling request for the given requester. Validation
// failures abort before any network call; upstream failures are isolated per
// tile and layer unless every tile fails.
func (e *Engine) Sample(ctx context.Context, req model.SamplingRequest, who model.Identity) (*model.SamplingResult, error) {
	start := e.now()

	def, err := e.registry.Resolve(req.SourceID, who)
	if err != nil {
		return nil, err
	}
	if err := e.validateParams(def, req); err != nil {
		return nil, err
	}
	e.applyDefaults(&req)

	tiles, err := grid.Generate(grid.Request{
		BBox:         req.BBox,
		Lon:          req.Lon,
		Lat:          req.Lat,
		Zoom:         req.Zoom,
		HasCenter:    req.HasCenter,
		Resolution:   req.Resolution,
		WindowWidth:  req.WindowWidth,
		WindowHeight: req.WindowHeight,
		Buffer:       req.Buffer,
	})
	if err != nil {
		return nil, &InvalidParamsError{Field: "window", Reason: err.Error()}
	}

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	jobs := e.buildJobs(def, tiles)
	results := e.fanOut(ctx, def, tiles, jobs)

	result, err := e.assemble(def, tiles, results)
	if err != nil {
		return nil, err
	}

	observability.ObserveSampling(string(def.Type), e.now().Sub(start).Seconds())
	e.logger.Info().
		Str("source", def.ID).
		Int("tiles", len(tiles)).
		Int("failed", result.FailedN).
		Dur("dur", e.now().Sub(start)).
		Msg("sampling request done")
	return result, nil
}

func (e *Engine) validateParams(def *source.Definition, req model.SamplingRequest) error {
	for _, name := range req.Supplied {
		if !def.AcceptsParam(name) {
			return &InvalidParamsError{Field: name, Reason: "not supported by source " + def.ID}
		}
		switch name {
		case "resolution":
			if req.Resolution <= 0 {
				return &InvalidParamsError{Field: name, Reason: "must be positive"}
			}
		case "windowWidth":
			if req.WindowWidth <= 0 {
				return &InvalidParamsError{Field: name, Reason: "must be positive"}
			}
		case "windowHeight":
			if req.WindowHeight <= 0 {
				return &InvalidParamsError{Field: name, Reason: "must be positive"}
			}
		case "buffer":
			if req.Buffer < 0 {
				return &InvalidParamsError{Field: name, Reason: "must not be negative"}
			}
		}
	}
	if req.BBox == nil && !req.HasCenter {
		return &InvalidParamsError{Field: "location", Reason: "either bbox or lon/lat/zoom is required"}
	}
	if req.BBox != nil && req.HasCenter {
		return &InvalidParamsError{Field: "location", Reason: "bbox and lon/lat/zoom are mutually exclusive"}
	}
	return nil
}

func (e *Engine) applyDefaults(req *model.SamplingRequest) {
	if req.Resolution <= 0 && req.BBox != nil {
		req.Resolution = e.cfg.DefaultResolution
	}
	if req.WindowWidth <= 0 {
		req.WindowWidth = e.cfg.DefaultWindowWidth
	}
	if req.WindowHeight <= 0 {
		req.WindowHeight = e.cfg.DefaultWindowHeight
	}
	if req.Buffer == 0 && !supplied(req.Supplied, "buffer") {
		req.Buffer = e.cfg.DefaultBuffer
	}
}

func supplied(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (e *Engine) buildJobs(def *source.Definition, tiles []model.TileWindow) []job {
	var jobs []job
	if def.Type == source.TypeImageryArchive {
		for i := range tiles {
			jobs = append(jobs, job{tileIdx: i, layerIdx: -1})
		}
		return jobs
	}
	for i := range tiles {
		for l := range def.Layers {
			jobs = append(jobs, job{tileIdx: i, layerIdx: l})
		}
	}
	return jobs
}

// fanOut runs all fetch jobs on a bounded worker pool and joins before
// returning. Completion order is irrelevant; results are keyed by tile and
// layer index and reassembled in grid order later.
func (e *Engine) fanOut(ctx context.Context, def *source.Definition, tiles []model.TileWindow, jobList []job) map[job]fetchResult {
	jobs := make(chan job)
	results := make(chan fetchResult, len(jobList))

	workerN := e.cfg.Workers
	if workerN > len(jobList) && len(jobList) > 0 {
		workerN = len(jobList)
	}

	var wg sync.WaitGroup
	wg.Add(workerN)
	for range workerN {
		go func() {
			defer wg.Done()
			for j := range jobs {
				raster, err := e.fetchOne(ctx, def, tiles[j.tileIdx], j.layerIdx)
				results <- fetchResult{tileIdx: j.tileIdx, layerIdx: j.layerIdx, raster: raster, err: err}
			}
		}()
	}

	for _, j := range jobList {
		jobs <- j
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[job]fetchResult, len(jobList))
	for r := range results {
		out[job{tileIdx: r.tileIdx, layerIdx: r.layerIdx}] = r
	}
	return out
}

func (e *Engine) fetchOne(ctx context.Context, def *source.Definition, tile model.TileWindow, layerIdx int) (*model.Raster, error) {
	// tiles not started before the deadline are recorded as failed
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("request deadline exceeded: %w", err)
	}

	layerName := ""
	if layerIdx >= 0 {
		layerName = def.Layers[layerIdx].Title
	}
	key := keys.Tile(def.ID, layerName, tile)

	if e.store != nil {
		if payload, err := e.store.Get(ctx, key); err != nil {
			e.logger.Warn().Err(err).Msg("raster cache read failed, falling through to fetch")
		} else if payload != nil {
			if raster, err := model.DecodeRaster(payload); err == nil {
				observability.IncTileFetch(string(def.Type), "cached")
				return raster, nil
			}
			// stale or corrupt entry, drop it
			_ = e.store.Del(ctx, key)
		}
	}

	var raster *model.Raster
	var err error
	if layerIdx < 0 {
		fetcher := e.adapters.Imagery(def)
		if fetcher == nil {
			return nil, fmt.Errorf("source %s has no imagery adapter", def.ID)
		}
		raster, err = fetcher.Fetch(ctx, tile)
	} else {
		fetcher := e.adapters.Classification(def)
		if fetcher == nil {
			return nil, fmt.Errorf("source %s has no classification adapter", def.ID)
		}
		raster, err = fetcher.FetchClassification(ctx, tile, def.Layers[layerIdx])
	}
	if err != nil {
		observability.IncTileFetch(string(def.Type), "error")
		return nil, err
	}
	observability.IncTileFetch(string(def.Type), "fetched")

	if e.store != nil {
		if err := e.store.Set(ctx, key, model.EncodeRaster(raster), e.cfg.CacheTTL); err != nil {
			e.logger.Warn().Err(err).Msg("raster cache write failed")
		} else if e.index != nil {
			if err := e.index.Add(ctx, tile.Bounds, []string{key}); err != nil {
				e.logger.Warn().Err(err).Msg("tile index update failed")
			}
		}
	}
	return raster, nil
}
