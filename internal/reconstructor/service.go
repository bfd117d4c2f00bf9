// Package reconstructor talks to the service that turns raw travel text into
// candidate itinerary items plus narrative annotations.
package reconstructor

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// ErrMalformed is returned (wrapped) when the service answers with a payload
// that does not satisfy the response contract.
var ErrMalformed = eris.New("reconstructor: malformed response")

// Status is the top-level outcome reported by the service.
type Status string

const (
	StatusOK                 Status = "OK"
	StatusNeedsClarification Status = "NEEDS_CLARIFICATION"
)

// ExistingRef is the slice of an existing item the service sees, so it can
// refer back to items it recognizes.
type ExistingRef struct {
	ID          string          `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	Kind        model.ItemKind  `json:"kind"`
	Title       string          `json:"title"`
	LocalDate   string          `json:"localDate,omitempty"`
	LocalTime   string          `json:"localTime,omitempty"`
	State       model.ItemState `json:"state"`
}

// Request is one reconstruction call.
type Request struct {
	RawText   string
	Client    model.ClientContext
	Mode      model.IngestMode
	TripTitle string
	Existing  []ExistingRef
}

// Clarification is the service asking which existing item an update means.
type Clarification struct {
	UpstreamID string
	IntentType model.IntentType
	// Candidates are item IDs or fingerprints of existing items.
	Candidates []string
	// Update is the change to apply once a candidate is chosen.
	Update *model.ItineraryItem
}

// Response is a validated service reply.
type Response struct {
	Status        Status
	Output        *model.ReconstructionOutput
	Proposals     []model.ProposedItem
	Clarification *Clarification
	Usage         model.TokenUsage
}

// Service reconstructs itinerary items from raw text.
type Service interface {
	Reconstruct(ctx context.Context, req Request) (*Response, error)
}

// Refs projects items into the references sent with a request.
func Refs(items []model.ItineraryItem) []ExistingRef {
	out := make([]ExistingRef, 0, len(items))
	for _, it := range items {
		out = append(out, ExistingRef{
			ID:          it.ID,
			Fingerprint: it.Fingerprint,
			Kind:        it.Kind,
			Title:       it.Title,
			LocalDate:   it.Start.LocalDate,
			LocalTime:   it.Start.LocalTime,
			State:       it.State,
		})
	}
	return out
}
