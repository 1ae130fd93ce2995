package handlers

import (
	"net/http"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/metrics"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
	"github.com/ramonehamilton/CHUNI-Companion/internal/version"
)

// SystemHandler serves version and runtime metrics.
type SystemHandler struct {
	metrics *metrics.PlannerMetrics
	runner  *simulation.Runner
	client  *chunirec.Client
}

// NewSystemHandler creates a new SystemHandler. runner and client are
// optional.
func NewSystemHandler(m *metrics.PlannerMetrics, runner *simulation.Runner, client *chunirec.Client) *SystemHandler {
	return &SystemHandler{metrics: m, runner: runner, client: client}
}

// GetVersion returns the application build information.
func (h *SystemHandler) GetVersion(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]interface{}{
		"build":   version.Get(),
		"service": "chuni-companion-api",
	})
}

// GetMetrics returns simulation and upstream counters.
func (h *SystemHandler) GetMetrics(w http.ResponseWriter, _ *http.Request) {
	out := map[string]interface{}{}
	if h.metrics != nil {
		out["planner"] = h.metrics.GetStats()
	}
	if h.runner != nil {
		out["runner"] = h.runner.Stats()
	}
	if h.client != nil {
		out["upstreamQuota"] = h.client.LastRateLimit()
	}
	response.Success(w, out)
}
