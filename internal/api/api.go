// Package api implements the HTTP handlers of the sampling service.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/auth"
	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/sampler"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// Sampler executes sampling requests; satisfied by sampler.Engine.
type Sampler interface {
	Sample(ctx context.Context, req model.SamplingRequest, who model.Identity) (*model.SamplingResult, error)
}

type Handler struct {
	logger   zerolog.Logger
	registry *source.Registry
	engine   Sampler
}

func NewHandler(logger zerolog.Logger, registry *source.Registry, engine Sampler) *Handler {
	return &Handler{logger: logger, registry: registry, engine: engine}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/sources", h.ListSources)
	r.Get("/sources/{id}", h.GetSource)
	r.Get("/sample", h.SampleGET)
	r.Post("/sample", h.SamplePOST)
}

// ListSources returns the trimmed listing of every source the requester may
// see, in definition-file order.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	who := auth.FromContext(r.Context())
	defs := h.registry.List(who)
	infos := make([]source.Info, 0, len(defs))
	for _, d := range defs {
		infos = append(infos, d.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	who := auth.FromContext(r.Context())
	def, err := h.registry.Resolve(chi.URLParam(r, "id"), who)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handler) SampleGET(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSampleQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	h.sample(w, r, req)
}

func (h *Handler) SamplePOST(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSampleBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	h.sample(w, r, req)
}

func (h *Handler) sample(w http.ResponseWriter, r *http.Request, req model.SamplingRequest) {
	who := auth.FromContext(r.Context())
	result, err := h.engine.Sample(r.Context(), req, who)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalid *sampler.InvalidParamsError
	switch {
	case errors.Is(err, source.ErrSourceNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, source.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, errorBody(err))
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorBody(err))
	case errors.Is(err, sampler.ErrAllTilesFailed):
		writeJSON(w, http.StatusBadGateway, errorBody(err))
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody(err))
	default:
		h.logger.Error().Err(err).Msg("sampling request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
