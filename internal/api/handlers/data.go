package handlers

import (
	"net/http"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

// DataHandler exposes the loaded data files.
type DataHandler struct {
	planner Planner
}

// NewDataHandler creates a new DataHandler.
func NewDataHandler(p Planner) *DataHandler {
	return &DataHandler{planner: p}
}

// GetNewSongs returns the new-song titles by version.
func (h *DataHandler) GetNewSongs(w http.ResponseWriter, _ *http.Request) {
	snap := h.planner.Data()
	response.Success(w, map[string]interface{}{
		"titles":   snap.NewSongs,
		"count":    len(snap.NewSongs.All()),
		"loadedAt": snap.LoadedAt,
	})
}

// GetOverrides returns the chart constant overrides.
func (h *DataHandler) GetOverrides(w http.ResponseWriter, _ *http.Request) {
	snap := h.planner.Data()
	overrides := snap.Overrides
	if overrides == nil {
		overrides = []rating.ConstOverride{}
	}
	response.Success(w, map[string]interface{}{
		"overrides": overrides,
		"loadedAt":  snap.LoadedAt,
	})
}
