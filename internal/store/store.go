package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a trip, item or pending action does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrConflict is returned (wrapped) when a commit would violate a lifecycle
// constraint, such as closing a clarification request that is no longer open.
var ErrConflict = eris.New("store: conflict")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	TripID string          `json:"trip_id,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Since  time.Time       `json:"since,omitzero"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Changeset is everything one reconciliation step writes. It is applied in a
// single transaction: either all of it lands or none of it does.
type Changeset struct {
	// Trip, when set, overwrites the trip row.
	Trip *model.Trip
	// ReplaceItems deletes all of the trip's items before Items are written.
	ReplaceItems bool
	TripID       string
	// Items are upserted by ID.
	Items []model.ItineraryItem
	// ClosePendingID marks that request APPLIED. It must still be OPEN.
	ClosePendingID string
	// SupersedeOpen marks any other OPEN request of the trip SUPERSEDED.
	SupersedeOpen bool
	OpenPending   *model.PendingAction
	Run           *model.Run
}

// Store defines the persistence interface for trips and their itineraries.
type Store interface {
	// Trips
	CreateTrip(ctx context.Context, title, timezone string) (*model.Trip, error)
	GetTrip(ctx context.Context, tripID string) (*model.Trip, error)
	ListTrips(ctx context.Context, limit int) ([]model.TripSummary, error)

	// Items
	ListItems(ctx context.Context, tripID string) ([]model.ItineraryItem, error)
	GetItem(ctx context.Context, tripID, itemID string) (*model.ItineraryItem, error)

	// Runs
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	LatestSuccessfulRun(ctx context.Context, tripID string) (*model.Run, error)

	// Clarification requests
	GetPendingAction(ctx context.Context, id string) (*model.PendingAction, error)
	GetOpenPendingAction(ctx context.Context, tripID string) (*model.PendingAction, error)
	CountOpenPendingActions(ctx context.Context) (int, error)

	// Commit applies a changeset atomically.
	Commit(ctx context.Context, cs Changeset) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func (cs Changeset) tripID() string {
	switch {
	case cs.TripID != "":
		return cs.TripID
	case cs.Trip != nil:
		return cs.Trip.ID
	case cs.Run != nil:
		return cs.Run.TripID
	case cs.OpenPending != nil:
		return cs.OpenPending.TripID
	}
	return ""
}
