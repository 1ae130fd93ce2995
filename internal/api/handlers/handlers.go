// Package handlers implements the REST endpoints on top of the planner
// service and the chunirec client.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/config"
	"github.com/ramonehamilton/CHUNI-Companion/internal/planner"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/models"
)

// Planner is the part of planner.Service the handlers use.
type Planner interface {
	LoadPlayer(ctx context.Context, user string, refresh bool) (*planner.Player, error)
	Simulate(ctx context.Context, req planner.Request) (*planner.Result, error)
	SimulateInput(ctx context.Context, in simulation.Input) (*planner.Result, error)
	GetResult(ctx context.Context, id string, withInput bool) (*planner.Result, error)
	ListResults(ctx context.Context, user string, limit int) ([]*models.SimulationSummary, error)
	Excluded(ctx context.Context, user string) ([]string, error)
	SetExcluded(ctx context.Context, user string, keys []string) ([]string, error)
	ToggleExcluded(ctx context.Context, user, key string) ([]string, error)
	Data() config.DataSnapshot
}

var _ Planner = (*planner.Service)(nil)

// maxBodyBytes bounds request bodies. Custom inputs carry whole catalogs.
const maxBodyBytes = 32 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// writePlannerError maps planner and upstream errors onto HTTP statuses.
func writePlannerError(w http.ResponseWriter, err error) {
	var apiErr *chunirec.APIError
	switch {
	case errors.Is(err, planner.ErrInvalidRequest), errors.Is(err, simulation.ErrInvalidInput):
		response.BadRequest(w, err)
	case errors.Is(err, planner.ErrResultNotFound), chunirec.IsNotFound(err):
		response.NotFound(w, err)
	case errors.Is(err, planner.ErrNoToken):
		response.InternalError(w, err)
	case errors.Is(err, planner.ErrNoStore):
		response.ServiceUnavailable(w, err)
	case errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(w, err)
	case errors.As(err, &apiErr):
		response.BadGateway(w, err)
	default:
		var fetchErr *planner.FetchError
		if errors.As(err, &fetchErr) {
			response.ServiceUnavailable(w, err)
			return
		}
		response.InternalError(w, err)
	}
}
