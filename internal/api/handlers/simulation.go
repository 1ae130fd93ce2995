package handlers

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/charts"
	"github.com/ramonehamilton/CHUNI-Companion/internal/export"
	"github.com/ramonehamilton/CHUNI-Companion/internal/planner"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
)

// SimulationHandler handles simulation runs and stored results.
type SimulationHandler struct {
	planner Planner
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(p Planner) *SimulationHandler {
	return &SimulationHandler{planner: p}
}

// Create runs a simulation for a live player.
func (h *SimulationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req planner.Request
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}

	result, err := h.planner.Simulate(r.Context(), req)
	if err != nil {
		writePlannerError(w, err)
		return
	}
	result.Input = nil
	response.Created(w, result)
}

// CreateCustom runs a caller-supplied input. The optional user query
// parameter attributes the run to a player.
func (h *SimulationHandler) CreateCustom(w http.ResponseWriter, r *http.Request) {
	var in simulation.Input
	if err := decodeJSON(w, r, &in); err != nil {
		response.BadRequest(w, err)
		return
	}

	ctx := r.Context()
	if user := r.URL.Query().Get("user"); user != "" {
		ctx = simulation.WithUser(ctx, user)
	}
	result, err := h.planner.SimulateInput(ctx, in)
	if err != nil {
		writePlannerError(w, err)
		return
	}
	result.Input = nil
	response.Created(w, result)
}

// Get returns a stored result. ?input=true includes the input.
func (h *SimulationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.planner.GetResult(r.Context(), id, queryBool(r, "input"))
	if err != nil {
		writePlannerError(w, err)
		return
	}
	response.Success(w, result)
}

// Chart renders a stored result as an HTML bar chart page.
func (h *SimulationHandler) Chart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.planner.GetResult(r.Context(), id, false)
	if err != nil {
		writePlannerError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := charts.RenderSimulation(&buf, &result.Output, charts.DefaultChartConfig()); err != nil {
		if errors.Is(err, charts.ErrNoSongs) {
			response.NotFound(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Export downloads a stored result as song rows. ?format=csv|json picks the
// encoding (csv by default) and ?changed=true keeps only raised songs.
func (h *SimulationHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := export.FormatCSV
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := export.ParseFormat(f)
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		format = parsed
	}

	id := chi.URLParam(r, "id")
	result, err := h.planner.GetResult(r.Context(), id, false)
	if err != nil {
		writePlannerError(w, err)
		return
	}

	changedOnly := queryBool(r, "changed")
	var data interface{} = export.SimulationRows(&result.Output, changedOnly)
	contentType := "text/csv; charset=utf-8"
	if format == export.FormatJSON {
		data = export.NewSummary(&result.Output, changedOnly)
		contentType = "application/json"
	}

	var buf bytes.Buffer
	if err := export.ExportToWriter(&buf, format, data, true); err != nil {
		response.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.GenerateFilename("simulation_"+result.ID, format)+`"`)
	_, _ = w.Write(buf.Bytes())
}

// ListByUser returns the newest stored runs of a player. ?limit=N.
func (h *SimulationHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	list, err := h.planner.ListResults(r.Context(), user, queryInt(r, "limit", 20))
	if err != nil {
		writePlannerError(w, err)
		return
	}
	response.Success(w, list)
}
