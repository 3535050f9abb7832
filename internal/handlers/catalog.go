package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/catalog"
)

type CatalogHandler struct {
	catalog *catalog.Service
	logger  zerolog.Logger
}

func NewCatalogHandler(catalogSvc *catalog.Service, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalogSvc,
		logger:  logger.With().Str("component", "catalog_handler").Logger(),
	}
}

// ListByConnection reports the tables loaded into a destination
// connection.
func (h *CatalogHandler) ListByConnection(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid connection id", http.StatusBadRequest)
		return
	}
	entries, err := h.catalog.ListByConnection(orgID, id)
	if err != nil {
		h.logger.Error().Err(err).Int64("connection_id", id).Msg("Failed to list catalog entries")
		http.Error(w, "Failed to list catalog entries", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
