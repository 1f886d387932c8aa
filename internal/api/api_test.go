package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/auth"
	"github.com/sentinel-hub/classification-app-backend/internal/model"
	"github.com/sentinel-hub/classification-app-backend/internal/sampler"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

type fakeSampler struct {
	lastReq model.SamplingRequest
	lastWho model.Identity
	result  *model.SamplingResult
	err     error
}

func (f *fakeSampler) Sample(_ context.Context, req model.SamplingRequest, who model.Identity) (*model.SamplingResult, error) {
	f.lastReq = req
	f.lastWho = who
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testRouter(t *testing.T, engine Sampler) chi.Router {
	t.Helper()
	reg, err := source.NewRegistry([]source.Definition{
		{
			ID:             "imagery",
			Name:           "Imagery",
			Access:         source.Access{AccessType: source.AccessPublic},
			Type:           source.TypeImageryArchive,
			SamplingParams: []string{"resolution", "buffer"},
		},
		{
			ID:             "private",
			Name:           "Private",
			Access:         source.Access{AccessType: source.AccessPrivate, OwnerID: 42},
			Type:           source.TypeImageryArchive,
			SamplingParams: []string{"resolution"},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	r := chi.NewRouter()
	NewHandler(zerolog.Nop(), reg, engine).Register(r)
	return r
}

func do(t *testing.T, r chi.Router, req *http.Request, who *model.Identity) *httptest.ResponseRecorder {
	t.Helper()
	if who != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *who))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestListSources_AccessFiltered(t *testing.T) {
	r := testRouter(t, &fakeSampler{})

	rr := do(t, r, httptest.NewRequest(http.MethodGet, "/sources", nil), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var infos []source.Info
	if err := json.Unmarshal(rr.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "imagery" {
		t.Fatalf("anonymous sources=%+v", infos)
	}

	owner := model.Identity{UserID: 42}
	rr = do(t, r, httptest.NewRequest(http.MethodGet, "/sources", nil), &owner)
	if err := json.Unmarshal(rr.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("owner sources=%+v", infos)
	}
}

func TestGetSource(t *testing.T) {
	r := testRouter(t, &fakeSampler{})

	rr := do(t, r, httptest.NewRequest(http.MethodGet, "/sources/imagery", nil), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var def source.Definition
	if err := json.Unmarshal(rr.Body.Bytes(), &def); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if def.ID != "imagery" || def.Type != source.TypeImageryArchive {
		t.Fatalf("def=%+v", def)
	}

	if rr := do(t, r, httptest.NewRequest(http.MethodGet, "/sources/nope", nil), nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
	if rr := do(t, r, httptest.NewRequest(http.MethodGet, "/sources/private", nil), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d want 403", rr.Code)
	}
}

func TestSampleGET_BuildsRequest(t *testing.T) {
	fake := &fakeSampler{result: &model.SamplingResult{ID: "res-1", SourceID: "imagery"}}
	r := testRouter(t, fake)

	url := "/sample?source=imagery&bbox=0,0,3000,2000&resolution=10&buffer=16"
	rr := do(t, r, httptest.NewRequest(http.MethodGet, url, nil), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	got := fake.lastReq
	if got.SourceID != "imagery" {
		t.Fatalf("source=%q", got.SourceID)
	}
	if got.BBox == nil || got.BBox.MaxX != 3000 {
		t.Fatalf("bbox=%+v", got.BBox)
	}
	if got.Resolution != 10 || got.Buffer != 16 {
		t.Fatalf("params=%+v", got)
	}
	if len(got.Supplied) != 2 || got.Supplied[0] != "resolution" || got.Supplied[1] != "buffer" {
		t.Fatalf("supplied=%v", got.Supplied)
	}
	if !fake.lastWho.Anonymous {
		t.Fatalf("who=%+v want anonymous", fake.lastWho)
	}

	var res model.SamplingResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ID != "res-1" {
		t.Fatalf("result=%+v", res)
	}
}

func TestSampleGET_BadInput(t *testing.T) {
	r := testRouter(t, &fakeSampler{})
	cases := []string{
		"/sample",
		"/sample?source=imagery&bbox=1,2,3",
		"/sample?source=imagery&bbox=3000,0,0,2000",
		"/sample?source=imagery&lon=1&lat=2",
		"/sample?source=imagery&bbox=0,0,1,1&resolution=ten",
		"/sample?source=imagery&bbox=0,0,1,1&buffer=1.5",
	}
	for _, url := range cases {
		if rr := do(t, r, httptest.NewRequest(http.MethodGet, url, nil), nil); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", url, rr.Code)
		}
	}
}

func TestSamplePOST_BuildsRequest(t *testing.T) {
	fake := &fakeSampler{result: &model.SamplingResult{ID: "res-2"}}
	r := testRouter(t, fake)

	body := `{"source":"imagery","lon":14.5,"lat":46.05,"zoom":12,"windowWidth":128}`
	req := httptest.NewRequest(http.MethodPost, "/sample", strings.NewReader(body))
	rr := do(t, r, req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	got := fake.lastReq
	if !got.HasCenter || got.Lon != 14.5 || got.Zoom != 12 {
		t.Fatalf("center=%+v", got)
	}
	if got.WindowWidth != 128 || len(got.Supplied) != 1 || got.Supplied[0] != "windowWidth" {
		t.Fatalf("supplied=%v width=%d", got.Supplied, got.WindowWidth)
	}
}

func TestSamplePOST_BadInput(t *testing.T) {
	r := testRouter(t, &fakeSampler{})
	cases := []string{
		`not json`,
		`{}`,
		`{"source":"imagery","lon":1}`,
		`{"source":"imagery","unknownField":1}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/sample", strings.NewReader(body))
		if rr := do(t, r, req, nil); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", body, rr.Code)
		}
	}
}

func TestSample_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{source.ErrSourceNotFound, http.StatusNotFound},
		{source.ErrAccessDenied, http.StatusForbidden},
		{&sampler.InvalidParamsError{Field: "buffer", Reason: "must not be negative"}, http.StatusBadRequest},
		{sampler.ErrAllTilesFailed, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errBoom, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := testRouter(t, &fakeSampler{err: tc.err})
		rr := do(t, r, httptest.NewRequest(http.MethodGet, "/sample?source=imagery&bbox=0,0,1,1", nil), nil)
		if rr.Code != tc.want {
			t.Fatalf("err=%v status=%d want %d", tc.err, rr.Code, tc.want)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type=%q", ct)
		}
	}
}

var errBoom = fmt.Errorf("boom")
