package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/connector"
	"github.com/etlfabric/etlfabric-api/internal/dispatch"
	"github.com/etlfabric/etlfabric-api/internal/execution"
	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

type pipelineRequest struct {
	Name                    string          `json:"name"`
	Description             string          `json:"description"`
	SourceConnectionID      int64           `json:"source_connection_id"`
	DestinationConnectionID int64           `json:"destination_connection_id"`
	Config                  json.RawMessage `json:"config"`
	Status                  string          `json:"status"`
}

type PipelineHandler struct {
	repo        repository.PipelineRepository
	connections repository.ConnectionRepository
	runs        *execution.Service
	dispatcher  dispatch.Dispatcher
	logger      zerolog.Logger
}

func NewPipelineHandler(
	repo repository.PipelineRepository,
	connections repository.ConnectionRepository,
	runs *execution.Service,
	dispatcher dispatch.Dispatcher,
	logger zerolog.Logger,
) *PipelineHandler {
	return &PipelineHandler{
		repo:        repo,
		connections: connections,
		runs:        runs,
		dispatcher:  dispatcher,
		logger:      logger.With().Str("component", "pipeline_handler").Logger(),
	}
}

func (h *PipelineHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	pipeline, err := h.buildPipeline(orgID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(pipeline)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Source or destination connection not found", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to create pipeline")
		http.Error(w, "Failed to create pipeline", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *PipelineHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	pipelines, err := h.repo.List(orgID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pipelines")
		http.Error(w, "Failed to list pipelines", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, pipelines)
}

func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid pipeline id", http.StatusBadRequest)
		return
	}
	pipeline, err := h.repo.GetByID(orgID, id)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Pipeline not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("pipeline_id", id).Msg("Failed to get pipeline")
		http.Error(w, "Failed to get pipeline", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, pipeline)
}

func (h *PipelineHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid pipeline id", http.StatusBadRequest)
		return
	}
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	pipeline, err := h.buildPipeline(orgID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pipeline.ID = id

	updated, err := h.repo.Update(pipeline)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Pipeline not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("pipeline_id", id).Msg("Failed to update pipeline")
		http.Error(w, "Failed to update pipeline", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *PipelineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid pipeline id", http.StatusBadRequest)
		return
	}
	if err := h.repo.Delete(orgID, id); err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Pipeline not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("pipeline_id", id).Msg("Failed to delete pipeline")
		http.Error(w, "Failed to delete pipeline", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Trigger creates a pending run for the pipeline and enqueues it. A
// duplicate trigger while a run is in flight cancels the new run and
// returns 409.
func (h *PipelineHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid pipeline id", http.StatusBadRequest)
		return
	}
	pipeline, err := h.repo.GetByID(orgID, id)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Pipeline not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("pipeline_id", id).Msg("Failed to get pipeline")
		http.Error(w, "Failed to get pipeline", http.StatusInternalServerError)
		return
	}

	run, err := h.runs.Create(orgID, models.TargetPipeline, pipeline.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("pipeline_id", id).Msg("Failed to create run")
		http.Error(w, "Failed to create run", http.StatusInternalServerError)
		return
	}

	err = h.dispatcher.Dispatch(r.Context(), dispatch.Message{
		RunID:      run.ID,
		OrgID:      orgID,
		TargetType: models.TargetPipeline,
		TargetID:   pipeline.ID,
		Scheduled:  false,
	})
	if err != nil {
		if _, dup := err.(*dispatch.ErrDuplicate); dup {
			if cancelErr := h.runs.Cancel(orgID, run.ID); cancelErr != nil {
				h.logger.Error().Err(cancelErr).Int64("run_id", run.ID).Msg("Failed to cancel duplicate run")
			}
			http.Error(w, "A run for this pipeline is already in flight", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Int64("run_id", run.ID).Msg("Failed to dispatch run")
		http.Error(w, "Failed to dispatch run", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusAccepted, run)
}

func (h *PipelineHandler) buildPipeline(orgID int64, req pipelineRequest) (models.Pipeline, error) {
	var pipeline models.Pipeline

	if req.Name == "" {
		return pipeline, connector.NewConfigError("name is required")
	}
	if _, err := connector.ParsePipelineConfig(req.Config); err != nil {
		return pipeline, err
	}

	src, err := h.connections.GetByID(orgID, req.SourceConnectionID)
	if err != nil {
		return pipeline, connector.NewConfigError("source connection not found")
	}
	if !src.Direction.CanSource() {
		return pipeline, connector.NewConfigError("connection %s cannot be used as a source", src.Name)
	}
	dest, err := h.connections.GetByID(orgID, req.DestinationConnectionID)
	if err != nil {
		return pipeline, connector.NewConfigError("destination connection not found")
	}
	if !dest.Direction.CanDestination() {
		return pipeline, connector.NewConfigError("connection %s cannot be used as a destination", dest.Name)
	}

	status := models.PipelineStatus(req.Status)
	if status == "" {
		status = models.PipelineDraft
	}
	switch status {
	case models.PipelineDraft, models.PipelineActive, models.PipelinePaused, models.PipelineError:
	default:
		return pipeline, connector.NewConfigError("invalid status %q", req.Status)
	}

	return models.Pipeline{
		OrgID:                   orgID,
		Name:                    req.Name,
		Description:             req.Description,
		SourceConnectionID:      req.SourceConnectionID,
		DestinationConnectionID: req.DestinationConnectionID,
		Config:                  req.Config,
		Status:                  status,
	}, nil
}
