package reconcile

import "github.com/sells-group/itinerary-cli/internal/model"

// Outcome is the result of an ingest or a resolution: either the batch was
// committed, or the engine needs the user to pick an item first.
type Outcome interface {
	// Status is APPLIED or NEEDS_CLARIFICATION.
	Status() string
	isOutcome()
}

// Committed means every proposal in the batch was applied.
type Committed struct {
	Run *model.Run `json:"run"`
	// Output is what the trip now displays.
	Output *model.ReconstructionOutput `json:"output,omitempty"`
}

// Status implements Outcome.
func (*Committed) Status() string { return "APPLIED" }

func (*Committed) isOutcome() {}

// NeedsClarification means nothing was applied; the open request must be
// answered (or superseded by a new ingest).
type NeedsClarification struct {
	PendingAction *model.PendingAction `json:"pending_action"`
	Run           *model.Run           `json:"run"`
}

// Status implements Outcome.
func (*NeedsClarification) Status() string { return string(model.RunStatusNeedsClarification) }

func (*NeedsClarification) isOutcome() {}
