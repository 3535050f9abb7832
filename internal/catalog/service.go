package catalog

import (
	"github.com/rs/zerolog"

	"github.com/etlfabric/etlfabric-api/internal/models"
	"github.com/etlfabric/etlfabric-api/internal/repository"
)

// Service records which tables a run loaded into which destination. Sync
// is best effort: a catalog failure is logged and never fails the run.
type Service struct {
	entries repository.CatalogRepository
	logger  zerolog.Logger
}

func NewService(entries repository.CatalogRepository, logger zerolog.Logger) *Service {
	return &Service{
		entries: entries,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// SyncRun upserts one catalog entry per loaded table.
func (s *Service) SyncRun(run models.Run, connectionID int64, dataset string, rowCounts map[string]int64) {
	for table, rows := range rowCounts {
		_, err := s.entries.Upsert(models.CatalogEntry{
			OrgID:        run.OrgID,
			ConnectionID: connectionID,
			OriginType:   run.TargetType,
			OriginID:     run.TargetID,
			DatasetName:  dataset,
			TableName:    table,
			RowsLoaded:   rows,
		})
		if err != nil {
			s.logger.Warn().Err(err).
				Int64("run_id", run.ID).
				Str("table", table).
				Msg("Failed to sync catalog entry")
		}
	}
}

func (s *Service) ListByConnection(orgID, connectionID int64) ([]models.CatalogEntry, error) {
	return s.entries.ListByConnection(orgID, connectionID)
}
