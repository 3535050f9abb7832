package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/connector"
	"github.com/etlfabric/etlfabric-api/internal/crypto"
	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

type connectionRequest struct {
	Name      string           `json:"name"`
	Family    string           `json:"family"`
	Direction string           `json:"direction"`
	Config    connector.Config `json:"config"`
}

type ConnectionHandler struct {
	repo   repository.ConnectionRepository
	crypto *crypto.Service
	logger zerolog.Logger
}

func NewConnectionHandler(repo repository.ConnectionRepository, cryptoSvc *crypto.Service, logger zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		repo:   repo,
		crypto: cryptoSvc,
		logger: logger.With().Str("component", "connection_handler").Logger(),
	}
}

func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	conn, err := h.buildConnection(orgID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(conn)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create connection")
		http.Error(w, "Failed to create connection", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	connections, err := h.repo.List(orgID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list connections")
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, connections)
}

func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid connection id", http.StatusBadRequest)
		return
	}
	conn, err := h.repo.GetByID(orgID, id)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("connection_id", id).Msg("Failed to get connection")
		http.Error(w, "Failed to get connection", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

func (h *ConnectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid connection id", http.StatusBadRequest)
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	conn, err := h.buildConnection(orgID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn.ID = id

	updated, err := h.repo.Update(conn)
	if err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("connection_id", id).Msg("Failed to update connection")
		http.Error(w, "Failed to update connection", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid connection id", http.StatusBadRequest)
		return
	}
	if err := h.repo.Delete(orgID, id); err != nil {
		if err == repository.ErrNotFound {
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("connection_id", id).Msg("Failed to delete connection")
		http.Error(w, "Failed to delete connection", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionHandler) buildConnection(orgID int64, req connectionRequest) (models.Connection, error) {
	var conn models.Connection

	family, err := connector.ParseFamily(req.Family)
	if err != nil {
		return conn, err
	}
	direction := models.ConnectionDirection(req.Direction)
	switch direction {
	case models.DirectionSource, models.DirectionDestination, models.DirectionBoth:
	default:
		return conn, connector.NewConfigError("invalid direction %q", req.Direction)
	}
	if req.Name == "" {
		return conn, connector.NewConfigError("name is required")
	}

	encrypted, err := h.crypto.EncryptConfig(req.Config)
	if err != nil {
		return conn, err
	}
	return models.Connection{
		OrgID:           orgID,
		Name:            req.Name,
		Family:          family,
		Direction:       direction,
		ConfigEncrypted: encrypted,
	}, nil
}
