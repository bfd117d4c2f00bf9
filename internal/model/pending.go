package model

import "time"

// PendingStatus is the lifecycle of a clarification request.
type PendingStatus string

const (
	PendingOpen       PendingStatus = "OPEN"
	PendingApplied    PendingStatus = "APPLIED"
	PendingSuperseded PendingStatus = "SUPERSEDED"
)

// Candidate is one existing item a clarification request asks the user to choose from.
type Candidate struct {
	ItemID    string   `json:"item_id"`
	Title     string   `json:"title"`
	Kind      ItemKind `json:"kind"`
	LocalDate string   `json:"local_date,omitempty"`
	LocalTime string   `json:"local_time,omitempty"`
	Reason    string   `json:"reason"`
	Score     float64  `json:"score"`
}

// PendingPlan is the suspended ingest: everything needed to finish applying
// the batch once the user has answered.
type PendingPlan struct {
	Mode           IngestMode            `json:"mode"`
	Client         ClientContext         `json:"client"`
	InputCharCount int                   `json:"input_char_count"`
	Output         *ReconstructionOutput `json:"output,omitempty"`
	Proposals      []ProposedItem        `json:"proposals"`
	// Bindings maps a proposal index to the item the user chose for it.
	Bindings map[int]string `json:"bindings,omitempty"`
	// Cursor is the index of the proposal the open question is about.
	Cursor int        `json:"cursor"`
	Usage  TokenUsage `json:"usage"`
	// Restricted holds service-supplied candidates for the proposal at Cursor,
	// replacing local candidate search.
	Restricted []string `json:"restricted,omitempty"`
}

// PendingAction is a suspended ingest awaiting a user choice.
type PendingAction struct {
	ID         string        `json:"id"`
	TripID     string        `json:"trip_id"`
	Generation int           `json:"generation"`
	IntentType IntentType    `json:"intent_type"`
	Candidates []Candidate   `json:"candidates"`
	Status     PendingStatus `json:"status"`
	UpstreamID string        `json:"upstream_id,omitempty"`
	Plan       PendingPlan   `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// HasCandidate reports whether itemID is one of the offered choices.
func (p *PendingAction) HasCandidate(itemID string) bool {
	for _, c := range p.Candidates {
		if c.ItemID == itemID {
			return true
		}
	}
	return false
}
