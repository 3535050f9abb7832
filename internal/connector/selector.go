package connector

import (
	"github.com/rs/zerolog"
)

// Selector resolves decrypted connection configs into concrete sources
// and destinations based on the connector family.
type Selector struct {
	logger zerolog.Logger
}

func NewSelector(logger zerolog.Logger) *Selector {
	return &Selector{logger: logger.With().Str("component", "connector_selector").Logger()}
}

// BuildSource constructs the reader for the pipeline's source side.
// The pipeline config controls mode, table selection and incremental
// cursors; batchSize is the already-resolved extraction batch size.
func (s *Selector) BuildSource(family Family, config Config, pc *PipelineConfig, batchSize int) (Source, error) {
	s.logger.Debug().
		Str("family", string(family)).
		Str("mode", pc.ResolvedMode()).
		Int("batch_size", batchSize).
		Msg("Building source connector")

	switch {
	case family.relational():
		return newSQLSource(family, config, pc, batchSize)
	case family.fileBased():
		return newFileSource(family, config, pc, batchSize)
	case family == FamilyRESTAPI:
		return newRESTSource(config, pc, batchSize)
	case family == FamilyMongoDB:
		return newMongoSource(config, pc, batchSize)
	case family == FamilyGoogleSheets:
		return newSheetsSource(config, pc, batchSize)
	default:
		return nil, &UnsupportedConnectorError{Family: family, Operation: "source"}
	}
}

// BuildDestination constructs the writer for the pipeline's destination
// side.
func (s *Selector) BuildDestination(family Family, config Config) (Destination, error) {
	s.logger.Debug().
		Str("family", string(family)).
		Msg("Building destination connector")

	switch {
	case family.relational():
		return newSQLDestination(family, config)
	case family == FamilyBigQuery:
		return newBigQueryDestination(config)
	default:
		return nil, &UnsupportedConnectorError{Family: family, Operation: "destination"}
	}
}
