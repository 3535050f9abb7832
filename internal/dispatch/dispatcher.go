package dispatch

import (
	"context"

	"github.com/etlfabric/etlfabric-api/internal/models"
)

// Message is the unit of work handed to the task queue. The run row
// already exists in pending state when the message is enqueued; the
// worker owns it from there.
type Message struct {
	RunID      int64             `json:"run_id"`
	OrgID      int64             `json:"org_id"`
	TargetType models.TargetType `json:"target_type"`
	TargetID   int64             `json:"target_id"`
	Scheduled  bool              `json:"scheduled"`
}

// Dispatcher enqueues run execution onto the task queue. Implementations
// must enforce at most one in-flight execution per (target_type,
// target_id); ErrDuplicate reports a rejected duplicate.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// ErrDuplicate is returned when a run for the same target is already in
// flight. The caller cancels the freshly created run.
type ErrDuplicate struct {
	Existing string
}

func (e *ErrDuplicate) Error() string {
	return "a run for this target is already in flight: " + e.Existing
}
