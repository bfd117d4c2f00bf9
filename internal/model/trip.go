package model

import "time"

// DefaultTripTitle is used when a trip is created or renamed with a blank title.
const DefaultTripTitle = "Untitled Trip"

// TripStatus represents the lifecycle of a trip.
type TripStatus string

const (
	// TripStatusDraft marks a trip that has never had a successful commit.
	TripStatusDraft  TripStatus = "DRAFT"
	TripStatusActive TripStatus = "ACTIVE"
)

// Trip is the aggregate root owning items, runs and at most one open
// clarification request.
type Trip struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Status   TripStatus `json:"status"`
	Timezone string     `json:"timezone,omitempty"`
	// PendingGeneration increments every time a clarification request is
	// opened or superseded; resolutions carry the generation they were issued at.
	PendingGeneration int       `json:"pending_generation"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TripSummary is a trip row for list views.
type TripSummary struct {
	Trip
	ItemCount       int        `json:"item_count"`
	LatestRunAt     *time.Time `json:"latest_run_at,omitempty"`
	LatestRunStatus RunStatus  `json:"latest_run_status,omitempty"`
}
