package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/execution"
	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

type RunHandler struct {
	runs   *execution.Service
	logger zerolog.Logger
}

func NewRunHandler(runs *execution.Service, logger zerolog.Logger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger.With().Str("component", "run_handler").Logger(),
	}
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repository.RunFilter{
		TargetType: models.TargetType(q.Get("target_type")),
		Status:     models.RunStatus(q.Get("status")),
	}
	if v := q.Get("target_id"); v != "" {
		filter.TargetID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	runs, err := h.runs.List(orgID, filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.runs.Get(orgID, id)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("run_id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}
	if err := h.runs.Cancel(orgID, id); err != nil {
		h.logger.Error().Err(err).Int64("run_id", id).Msg("Failed to cancel run")
		http.Error(w, "Failed to cancel run", http.StatusInternalServerError)
		return
	}
	run, err := h.runs.Get(orgID, id)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("run_id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (h *RunHandler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	stats, err := h.runs.Stats(orgID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load run stats")
		http.Error(w, "Failed to load run stats", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
