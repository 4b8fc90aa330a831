// Package runs serves stored run reports over HTTP.
package runs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

const (
	version      = "v1"
	defaultLimit = 20
	maxLimit     = 500
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log  *logger.Logger
	Repo farm.RunRepository
	// Metrics is optional.
	Metrics Metrics
}

// Routes binds the run endpoints onto mux.
func Routes(mux *http.ServeMux, cfg Config) {
	mux.HandleFunc("GET /"+version+"/runs", instrument(cfg.Metrics, "/runs", list(cfg)))
	mux.HandleFunc("GET /"+version+"/runs/{id}", instrument(cfg.Metrics, "/runs/{id}", get(cfg)))
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// listResponse wraps a page of runs.
type listResponse struct {
	Runs []*farm.RunReport `json:"runs"`
}

func list(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxLimit {
				respond(w, cfg, r, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 500"})
				return
			}
			limit = n
		}

		reports, err := cfg.Repo.List(r.Context(), limit)
		if err != nil {
			cfg.Log.Error(r.Context(), "listing runs", "error", err)
			respond(w, cfg, r, http.StatusInternalServerError, errorResponse{Error: "listing runs failed"})
			return
		}
		if reports == nil {
			reports = []*farm.RunReport{}
		}
		respond(w, cfg, r, http.StatusOK, listResponse{Runs: reports})
	}
}

func get(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			respond(w, cfg, r, http.StatusBadRequest, errorResponse{Error: "invalid run id"})
			return
		}

		report, err := cfg.Repo.Get(r.Context(), id)
		switch {
		case errors.Is(err, farm.ErrRunNotFound):
			respond(w, cfg, r, http.StatusNotFound, errorResponse{Error: err.Error()})
		case err != nil:
			cfg.Log.Error(r.Context(), "loading run", "run_id", id.String(), "error", err)
			respond(w, cfg, r, http.StatusInternalServerError, errorResponse{Error: "loading run failed"})
		default:
			respond(w, cfg, r, http.StatusOK, report)
		}
	}
}

func respond(w http.ResponseWriter, cfg Config, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		cfg.Log.Error(r.Context(), "encoding response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
