package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/config"
	"github.com/ramonehamilton/CHUNI-Companion/internal/metrics"
	"github.com/ramonehamilton/CHUNI-Companion/internal/planner"
	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/models"
)

// mockPlanner is a mock implementation of the Planner interface for testing.
type mockPlanner struct {
	player   *planner.Player
	result   *planner.Result
	list     []*models.SimulationSummary
	excluded []string
	data     config.DataSnapshot
	err      error

	lastRequest planner.Request
	lastInput   simulation.Input
	lastUser    string
	lastToggle  string
	lastLimit   int
	lastRefresh bool
}

func (m *mockPlanner) LoadPlayer(_ context.Context, user string, refresh bool) (*planner.Player, error) {
	m.lastUser, m.lastRefresh = user, refresh
	return m.player, m.err
}

func (m *mockPlanner) Simulate(_ context.Context, req planner.Request) (*planner.Result, error) {
	m.lastRequest = req
	return m.result, m.err
}

func (m *mockPlanner) SimulateInput(ctx context.Context, in simulation.Input) (*planner.Result, error) {
	m.lastInput = in
	m.lastUser = simulation.UserFromContext(ctx)
	return m.result, m.err
}

func (m *mockPlanner) GetResult(_ context.Context, _ string, _ bool) (*planner.Result, error) {
	return m.result, m.err
}

func (m *mockPlanner) ListResults(_ context.Context, user string, limit int) ([]*models.SimulationSummary, error) {
	m.lastUser, m.lastLimit = user, limit
	return m.list, m.err
}

func (m *mockPlanner) Excluded(_ context.Context, _ string) ([]string, error) {
	return m.excluded, m.err
}

func (m *mockPlanner) SetExcluded(_ context.Context, _ string, keys []string) ([]string, error) {
	m.excluded = keys
	return keys, m.err
}

func (m *mockPlanner) ToggleExcluded(_ context.Context, _ string, key string) ([]string, error) {
	m.lastToggle = key
	return []string{key}, m.err
}

func (m *mockPlanner) Data() config.DataSnapshot {
	return m.data
}

func newRouter(p Planner) *chi.Mux {
	r := chi.NewRouter()
	sim := NewSimulationHandler(p)
	players := NewPlayerHandler(p)
	data := NewDataHandler(p)
	r.Post("/simulations", sim.Create)
	r.Post("/simulations/custom", sim.CreateCustom)
	r.Get("/simulations/{id}", sim.Get)
	r.Get("/simulations/{id}/chart", sim.Chart)
	r.Get("/simulations/{id}/export", sim.Export)
	r.Get("/players/{user}", players.Get)
	r.Get("/players/{user}/simulations", sim.ListByUser)
	r.Get("/players/{user}/exclusions", players.GetExclusions)
	r.Put("/players/{user}/exclusions", players.UpdateExclusions)
	r.Get("/data/new-songs", data.GetNewSongs)
	r.Get("/data/overrides", data.GetOverrides)
	return r
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleResult() *planner.Result {
	return &planner.Result{
		ID:   "run-1",
		User: "P",
		Input: &simulation.Input{
			Mode: simulation.ModeHybrid,
		},
		Output: simulation.Output{
			SimulatedB30Songs: []rating.Song{
				{ID: "a", Diff: rating.Master, Title: "Alpha", CurrentRating: 15, TargetRating: 15.5},
			},
			FinalPhase:         simulation.PhaseTargetReached,
			FinalOverallRating: 15.5,
		},
	}
}

func TestSimulationHandler_Create(t *testing.T) {
	mock := &mockPlanner{result: sampleResult()}
	w := doRequest(newRouter(mock), http.MethodPost, "/simulations",
		`{"user":"P","targetRating":15.5,"simulationMode":"b30_only","algorithmPreference":"peak"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if mock.lastRequest.User != "P" || mock.lastRequest.TargetRating != 15.5 {
		t.Errorf("Unexpected request: %+v", mock.lastRequest)
	}
	if mock.lastRequest.Mode != simulation.ModeB30Only || mock.lastRequest.Preference != simulation.PreferPeak {
		t.Errorf("Expected mode and preference decoded, got %+v", mock.lastRequest)
	}

	var body struct {
		Data planner.Result `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Data.ID != "run-1" || body.Data.Output.FinalPhase != simulation.PhaseTargetReached {
		t.Errorf("Unexpected result: %+v", body.Data)
	}
	if body.Data.Input != nil {
		t.Error("Expected input omitted from the create response")
	}
}

func TestSimulationHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", fmt.Errorf("%w: bad", planner.ErrInvalidRequest), http.StatusBadRequest},
		{"invalid input", fmt.Errorf("%w: bad", simulation.ErrInvalidInput), http.StatusBadRequest},
		{"player not found", &planner.FetchError{User: "x", Err: &chunirec.NotFoundError{URL: "u"}}, http.StatusNotFound},
		{"no token", &planner.FetchError{User: "x", Err: chunirec.ErrNoToken}, http.StatusInternalServerError},
		{"upstream error", &planner.FetchError{User: "x", Err: &chunirec.APIError{StatusCode: 500}}, http.StatusBadGateway},
		{"upstream timeout", &planner.FetchError{User: "x", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"network", &planner.FetchError{User: "x", Err: errors.New("dial tcp")}, http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockPlanner{err: tt.err}
			w := doRequest(newRouter(mock), http.MethodPost, "/simulations", `{"user":"x","targetRating":15}`)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestSimulationHandler_CreateBadBody(t *testing.T) {
	w := doRequest(newRouter(&mockPlanner{}), http.MethodPost, "/simulations", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestSimulationHandler_CreateCustom(t *testing.T) {
	mock := &mockPlanner{result: sampleResult()}
	w := doRequest(newRouter(mock), http.MethodPost, "/simulations/custom?user=P",
		`{"simulationMode":"custom","algorithmPreference":"floor","targetRating":15,"customSongs":[{"id":"a","diff":"MAS","title":"Alpha","chartConstant":14.0,"currentScore":1000000,"currentRating":15}]}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if mock.lastUser != "P" {
		t.Errorf("Expected run attributed to P, got %q", mock.lastUser)
	}
	if len(mock.lastInput.CustomSongs) != 1 || mock.lastInput.Mode != simulation.ModeCustom {
		t.Errorf("Unexpected input: %+v", mock.lastInput)
	}
}

func TestSimulationHandler_GetAndChart(t *testing.T) {
	mock := &mockPlanner{result: sampleResult()}
	router := newRouter(mock)

	w := doRequest(router, http.MethodGet, "/simulations/run-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/simulations/run-1/chart", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for chart, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Expected HTML chart, got %s", w.Header().Get("Content-Type"))
	}

	mock.result = &planner.Result{ID: "empty"}
	w = doRequest(router, http.MethodGet, "/simulations/empty/chart", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for empty chart, got %d", w.Code)
	}

	mock.err = fmt.Errorf("%w: gone", planner.ErrResultNotFound)
	w = doRequest(router, http.MethodGet, "/simulations/gone", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestSimulationHandler_Export(t *testing.T) {
	mock := &mockPlanner{result: sampleResult()}
	router := newRouter(mock)

	w := doRequest(router, http.MethodGet, "/simulations/run-1/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Expected CSV, got %s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "simulation_run-1_") {
		t.Errorf("Unexpected disposition: %s", w.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "b30,1,a_MAS,Alpha") {
		t.Errorf("Unexpected CSV body: %q", w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/simulations/run-1/export?format=json", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"phase": "target_reached"`) {
		t.Errorf("Unexpected JSON export %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, "/simulations/run-1/export?format=xml", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad format, got %d", w.Code)
	}
}

func TestSimulationHandler_ListByUser(t *testing.T) {
	mock := &mockPlanner{list: []*models.SimulationSummary{{ID: "run-1", User: "P"}}}
	router := newRouter(mock)

	w := doRequest(router, http.MethodGet, "/players/P/simulations?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if mock.lastUser != "P" || mock.lastLimit != 5 {
		t.Errorf("Expected user P limit 5, got %s %d", mock.lastUser, mock.lastLimit)
	}

	doRequest(router, http.MethodGet, "/players/P/simulations?limit=abc", "")
	if mock.lastLimit != 20 {
		t.Errorf("Expected default limit 20, got %d", mock.lastLimit)
	}
}

func TestPlayerHandler(t *testing.T) {
	mock := &mockPlanner{
		player:   &planner.Player{User: "P", CurrentRating: 16.2},
		excluded: []string{"a_MAS"},
	}
	router := newRouter(mock)

	w := doRequest(router, http.MethodGet, "/players/P?refresh=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !mock.lastRefresh || mock.lastUser != "P" {
		t.Errorf("Expected refresh for P, got %v %s", mock.lastRefresh, mock.lastUser)
	}

	w = doRequest(router, http.MethodGet, "/players/P/exclusions", "")
	var body struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(body.Data.Keys) != 1 || body.Data.Keys[0] != "a_MAS" {
		t.Errorf("Unexpected keys: %v", body.Data.Keys)
	}

	w = doRequest(router, http.MethodPut, "/players/P/exclusions", `{"toggle":"b_exp"}`)
	if w.Code != http.StatusOK || mock.lastToggle != "b_exp" {
		t.Errorf("Expected toggle of b_exp, got %d %s", w.Code, mock.lastToggle)
	}

	w = doRequest(router, http.MethodPut, "/players/P/exclusions", `{"keys":["c_MAS"]}`)
	if w.Code != http.StatusOK || len(mock.excluded) != 1 || mock.excluded[0] != "c_MAS" {
		t.Errorf("Expected keys replaced, got %d %v", w.Code, mock.excluded)
	}

	w = doRequest(router, http.MethodPut, "/players/P/exclusions", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty update, got %d", w.Code)
	}
}

func TestDataHandler(t *testing.T) {
	mock := &mockPlanner{data: config.DataSnapshot{
		NewSongs: config.NewSongTitles{Verse: []string{"A"}, XVerse: []string{"B", "C"}},
	}}
	router := newRouter(mock)

	w := doRequest(router, http.MethodGet, "/data/new-songs", "")
	var songs struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&songs); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if songs.Data.Count != 3 {
		t.Errorf("Expected 3 titles, got %d", songs.Data.Count)
	}

	w = doRequest(router, http.MethodGet, "/data/overrides", "")
	if !strings.Contains(w.Body.String(), `"overrides":[]`) {
		t.Errorf("Expected empty overrides array, got %s", w.Body.String())
	}
}

func TestSystemHandler(t *testing.T) {
	m := metrics.NewPlannerMetrics()
	m.RecordCache(true)
	h := NewSystemHandler(m, nil, nil)

	w := httptest.NewRecorder()
	h.GetMetrics(w, httptest.NewRequest(http.MethodGet, "/system/metrics", nil))
	if !strings.Contains(w.Body.String(), `"cache_hits":1`) {
		t.Errorf("Expected cache hit in metrics, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.GetVersion(w, httptest.NewRequest(http.MethodGet, "/system/version", nil))
	if !strings.Contains(w.Body.String(), `"service":"chuni-companion-api"`) {
		t.Errorf("Unexpected version body: %s", w.Body.String())
	}
}
