package temporal

import (
	"fmt"
	"time"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

// TaskQueueName is the name of the Temporal task queue run executions go
// through.
const TaskQueueName = "ETLFABRIC_RUNS"

// DefaultActivityTimeout bounds a single run execution activity.
const DefaultActivityTimeout = 2 * time.Hour

// WorkflowID derives the deterministic workflow id for a target. At most
// one workflow per id can be in flight, which is how duplicate triggers
// for the same target are rejected.
func WorkflowID(targetType models.TargetType, targetID int64) string {
	return fmt.Sprintf("run-%s-%d", targetType, targetID)
}

// RunParams is the workflow input, mirroring the dispatch message.
type RunParams struct {
	RunID      int64             `json:"run_id"`
	OrgID      int64             `json:"org_id"`
	TargetType models.TargetType `json:"target_type"`
	TargetID   int64             `json:"target_id"`
	Scheduled  bool              `json:"scheduled"`
}
