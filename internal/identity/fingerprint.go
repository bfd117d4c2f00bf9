// Package identity decides whether an incoming item is an existing one, and merges it.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

var kindPrefix = map[model.ItemKind]string{
	model.KindFlight:    "fl",
	model.KindLodging:   "lg",
	model.KindMeeting:   "mt",
	model.KindMeal:      "ml",
	model.KindTransport: "tr",
	model.KindActivity:  "ac",
	model.KindNote:      "nt",
	model.KindOther:     "ot",
}

// Fingerprint derives a stable identity for an item from its identity-bearing
// fields only. Times, confidence, state and free text never contribute, so a
// rescheduled flight keeps its fingerprint as long as its number and date hold.
func Fingerprint(item model.ItineraryItem) string {
	prefix, ok := kindPrefix[item.Kind]
	if !ok {
		prefix = kindPrefix[model.KindOther]
	}
	sum := sha256.Sum256([]byte(strings.Join(identityParts(item), "|")))
	return prefix + "-" + hex.EncodeToString(sum[:])[:16]
}

// EnsureFingerprint fills in a missing fingerprint. Service-supplied
// fingerprints are kept verbatim.
func EnsureFingerprint(item model.ItineraryItem) model.ItineraryItem {
	if item.Fingerprint == "" {
		item.Fingerprint = Fingerprint(item)
	}
	return item
}

func identityParts(item model.ItineraryItem) []string {
	date := timeline.DateKey(item)
	if date == timeline.Unscheduled {
		date = ""
	}
	parts := []string{string(item.Kind)}

	switch item.Kind {
	case model.KindFlight:
		if f := item.Flight; f != nil && f.FlightNumber != "" {
			return append(parts, Normalize(f.AirlineCode+f.FlightNumber), date)
		}
		if f := item.Flight; f != nil && (f.Origin != "" || f.Destination != "") {
			return append(parts, Normalize(f.Origin), Normalize(f.Destination), date)
		}
	case model.KindLodging:
		if l := item.Lodging; l != nil && l.ConfirmationNumber != "" {
			return append(parts, Normalize(l.ConfirmationNumber))
		}
		if l := item.Lodging; l != nil && l.Name != "" {
			return append(parts, Normalize(l.Name), date)
		}
	case model.KindMeal:
		if m := item.Meal; m != nil && m.Venue != "" {
			return append(parts, Normalize(m.Venue), date, Normalize(m.MealType))
		}
	}
	return append(parts, strings.Join(Tokens(item.Title), " "), date)
}
