package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// itemNamespace scopes name-based item IDs.
var itemNamespace = uuid.MustParse("6f1b7c1e-3a52-4d0e-9f49-2c8f4b7d9a10")

// ItemID derives the ID for a new item from its trip and fingerprint, so the
// same proposal against the same trip always yields the same ID.
func ItemID(tripID, fingerprint string) string {
	return uuid.NewSHA1(itemNamespace, []byte(tripID+"/"+fingerprint)).String()
}

// NewItem prepares a proposal for insertion.
func NewItem(tripID string, incoming model.ItineraryItem, now time.Time) model.ItineraryItem {
	it := EnsureFingerprint(incoming)
	it.ID = ItemID(tripID, it.Fingerprint)
	it.TripID = tripID
	it.Confidence = model.ClampConfidence(it.Confidence)
	if !it.State.Valid() {
		it.State = model.StateProposed
	}
	if it.Provenance == "" {
		it.Provenance = model.ProvenanceAI
	}
	it.Aliases = nil
	it.CreatedAt = now
	it.UpdatedAt = now
	return it
}

// Merge folds incoming into target field by field: any non-empty incoming
// field overwrites, empty fields leave the target untouched. Identity and
// lifecycle state are kept unless incoming sets a state explicitly. An
// incoming fingerprint that differs from the target's becomes an alias.
func Merge(target, incoming model.ItineraryItem, now time.Time) model.ItineraryItem {
	out := target

	if incoming.Kind != "" && incoming.Kind != model.KindOther {
		out.Kind = incoming.Kind
	}
	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	// A temporal is replaced whole: mixing an old instant with a new local
	// time would misorder the item.
	if !incoming.Start.IsZero() {
		out.Start = incoming.Start
	}
	if !incoming.End.IsZero() {
		out.End = incoming.End
	}
	if incoming.LocationText != "" {
		out.LocationText = incoming.LocationText
	}
	if incoming.SourceSnippet != "" {
		out.SourceSnippet = incoming.SourceSnippet
	}
	if incoming.Confidence > 0 {
		out.Confidence = model.ClampConfidence(incoming.Confidence)
	}
	if incoming.Provenance != "" {
		out.Provenance = incoming.Provenance
	}
	if incoming.Title != "" || !incoming.Start.IsZero() {
		out.IsInferred = incoming.IsInferred
	}
	if incoming.State.Valid() {
		out.State = incoming.State
	}

	out.Flight = mergeFlight(out.Flight, incoming.Flight)
	out.Lodging = mergeLodging(out.Lodging, incoming.Lodging)
	out.Meeting = mergeMeeting(out.Meeting, incoming.Meeting)
	out.Meal = mergeMeal(out.Meal, incoming.Meal)

	if fp := incoming.Fingerprint; fp != "" && !out.Matches(fp) {
		out.Aliases = append(append([]string(nil), out.Aliases...), fp)
	}
	out.UpdatedAt = now
	return out
}

// Cancel dismisses target. Dismissal never deletes.
func Cancel(target model.ItineraryItem, now time.Time) model.ItineraryItem {
	target.State = model.StateDismissed
	target.UpdatedAt = now
	return target
}

func pick(cur, next string) string {
	if next != "" {
		return next
	}
	return cur
}

func mergeFlight(cur, next *model.FlightDetails) *model.FlightDetails {
	if next == nil {
		return cur
	}
	if cur == nil {
		c := *next
		return &c
	}
	out := *cur
	out.AirlineName = pick(out.AirlineName, next.AirlineName)
	out.AirlineCode = pick(out.AirlineCode, next.AirlineCode)
	out.FlightNumber = pick(out.FlightNumber, next.FlightNumber)
	out.Origin = pick(out.Origin, next.Origin)
	out.Destination = pick(out.Destination, next.Destination)
	out.PNR = pick(out.PNR, next.PNR)
	return &out
}

func mergeLodging(cur, next *model.LodgingDetails) *model.LodgingDetails {
	if next == nil {
		return cur
	}
	if cur == nil {
		c := *next
		return &c
	}
	out := *cur
	out.Name = pick(out.Name, next.Name)
	out.Address = pick(out.Address, next.Address)
	out.ConfirmationNumber = pick(out.ConfirmationNumber, next.ConfirmationNumber)
	return &out
}

func mergeMeeting(cur, next *model.MeetingDetails) *model.MeetingDetails {
	if next == nil {
		return cur
	}
	if cur == nil {
		c := *next
		return &c
	}
	out := *cur
	out.Organizer = pick(out.Organizer, next.Organizer)
	out.LocationName = pick(out.LocationName, next.LocationName)
	out.VideoLink = pick(out.VideoLink, next.VideoLink)
	if len(next.Attendees) > 0 {
		out.Attendees = append([]string(nil), next.Attendees...)
	}
	return &out
}

func mergeMeal(cur, next *model.MealDetails) *model.MealDetails {
	if next == nil {
		return cur
	}
	if cur == nil {
		c := *next
		return &c
	}
	out := *cur
	out.Venue = pick(out.Venue, next.Venue)
	out.MealType = pick(out.MealType, next.MealType)
	out.ReservationName = pick(out.ReservationName, next.ReservationName)
	out.ConfirmationNumber = pick(out.ConfirmationNumber, next.ConfirmationNumber)
	return &out
}
