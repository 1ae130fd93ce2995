package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
)

// PlayerHandler serves player lists and exclusions.
type PlayerHandler struct {
	planner Planner
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(p Planner) *PlayerHandler {
	return &PlayerHandler{planner: p}
}

// Get returns the player's profile with B30, N20 and new-song pool.
// ?refresh=true bypasses the payload cache.
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	player, err := h.planner.LoadPlayer(r.Context(), chi.URLParam(r, "user"), queryBool(r, "refresh"))
	if err != nil {
		writePlannerError(w, err)
		return
	}
	response.Success(w, player)
}

// GetExclusions returns the player's excluded song keys.
func (h *PlayerHandler) GetExclusions(w http.ResponseWriter, r *http.Request) {
	keys, err := h.planner.Excluded(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writePlannerError(w, err)
		return
	}
	response.Success(w, map[string][]string{"keys": keys})
}

// ExclusionUpdate replaces the list (Keys) or flips one key (Toggle).
type ExclusionUpdate struct {
	Keys   []string `json:"keys,omitempty"`
	Toggle string   `json:"toggle,omitempty"`
}

// UpdateExclusions applies an ExclusionUpdate.
func (h *PlayerHandler) UpdateExclusions(w http.ResponseWriter, r *http.Request) {
	var req ExclusionUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}

	user := chi.URLParam(r, "user")
	var (
		keys []string
		err  error
	)
	switch {
	case req.Toggle != "":
		keys, err = h.planner.ToggleExcluded(r.Context(), user, req.Toggle)
	case req.Keys != nil:
		keys, err = h.planner.SetExcluded(r.Context(), user, req.Keys)
	default:
		response.BadRequest(w, errors.New("either keys or toggle is required"))
		return
	}
	if err != nil {
		writePlannerError(w, err)
		return
	}
	response.Success(w, map[string][]string{"keys": keys})
}
