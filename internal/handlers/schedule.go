package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
	"github.com/etlfabric/etlfabric-api/internal/scheduler"
)

type scheduleRequest struct {
	TargetType     string `json:"target_type"`
	TargetID       int64  `json:"target_id"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	IsActive       bool   `json:"is_active"`
}

type ScheduleHandler struct {
	repo         repository.ScheduleRepository
	orchestrator *scheduler.Orchestrator
	logger       zerolog.Logger
}

func NewScheduleHandler(repo repository.ScheduleRepository, orchestrator *scheduler.Orchestrator, logger zerolog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		repo:         repo,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "schedule_handler").Logger(),
	}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	schedule, err := buildSchedule(orgID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(schedule)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create schedule")
		http.Error(w, "Failed to create schedule", http.StatusInternalServerError)
		return
	}
	if err := h.orchestrator.Sync(created); err != nil {
		h.logger.Error().Err(err).Int64("schedule_id", created.ID).Msg("Failed to register schedule")
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	schedules, err := h.repo.List(orgID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list schedules")
		http.Error(w, "Failed to list schedules", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, schedules)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid schedule id", http.StatusBadRequest)
		return
	}
	schedule, err := h.repo.GetByID(orgID, id)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("schedule_id", id).Msg("Failed to get schedule")
		http.Error(w, "Failed to get schedule", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"schedule": schedule}
	if job, ok := h.orchestrator.GetJob(schedule.ID); ok {
		resp["job"] = job
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid schedule id", http.StatusBadRequest)
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	schedule, err := buildSchedule(orgID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	schedule.ID = id

	updated, err := h.repo.Update(schedule)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("schedule_id", id).Msg("Failed to update schedule")
		http.Error(w, "Failed to update schedule", http.StatusInternalServerError)
		return
	}
	if err := h.orchestrator.Sync(updated); err != nil {
		h.logger.Error().Err(err).Int64("schedule_id", id).Msg("Failed to register schedule")
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid schedule id", http.StatusBadRequest)
		return
	}
	if err := h.repo.Delete(orgID, id); err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("schedule_id", id).Msg("Failed to delete schedule")
		http.Error(w, "Failed to delete schedule", http.StatusInternalServerError)
		return
	}
	h.orchestrator.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func buildSchedule(orgID int64, req scheduleRequest) (models.Schedule, error) {
	var schedule models.Schedule

	targetType := models.TargetType(req.TargetType)
	switch targetType {
	case models.TargetPipeline, models.TargetTransformation, models.TargetUpload:
	default:
		return schedule, &scheduleValidationError{"invalid target_type"}
	}
	if req.TargetID <= 0 {
		return schedule, &scheduleValidationError{"target_id is required"}
	}
	if err := scheduler.ValidateCron(req.CronExpression, req.Timezone); err != nil {
		return schedule, err
	}

	return models.Schedule{
		OrgID:          orgID,
		TargetType:     targetType,
		TargetID:       req.TargetID,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		IsActive:       req.IsActive,
	}, nil
}

type scheduleValidationError struct {
	msg string
}

func (e *scheduleValidationError) Error() string { return e.msg }
