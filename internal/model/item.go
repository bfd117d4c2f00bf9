package model

import "time"

// ItemKind classifies an itinerary item.
type ItemKind string

const (
	KindFlight    ItemKind = "FLIGHT"
	KindLodging   ItemKind = "LODGING"
	KindMeeting   ItemKind = "MEETING"
	KindMeal      ItemKind = "MEAL"
	KindTransport ItemKind = "TRANSPORT"
	KindActivity  ItemKind = "ACTIVITY"
	KindNote      ItemKind = "NOTE"
	KindOther     ItemKind = "OTHER"
)

// ParseItemKind normalizes a kind string, mapping anything unrecognized to OTHER.
func ParseItemKind(s string) ItemKind {
	switch k := ItemKind(s); k {
	case KindFlight, KindLodging, KindMeeting, KindMeal, KindTransport, KindActivity, KindNote, KindOther:
		return k
	default:
		return KindOther
	}
}

// ItemState is the user-facing lifecycle of an item.
type ItemState string

const (
	StateProposed  ItemState = "PROPOSED"
	StateConfirmed ItemState = "CONFIRMED"
	StateDismissed ItemState = "DISMISSED"
)

// Valid reports whether s is a known state.
func (s ItemState) Valid() bool {
	switch s {
	case StateProposed, StateConfirmed, StateDismissed:
		return true
	}
	return false
}

// Provenance records where an item's information came from.
type Provenance string

const (
	ProvenanceAI       Provenance = "AI"
	ProvenanceUser     Provenance = "USER"
	ProvenanceCalendar Provenance = "CALENDAR"
	ProvenanceEmail    Provenance = "EMAIL"
)

// Temporal is a point in time as far as the source text pins it down. Every
// field may be empty independently.
type Temporal struct {
	LocalDate string `json:"local_date,omitempty"` // YYYY-MM-DD
	LocalTime string `json:"local_time,omitempty"` // HH:MM
	Timezone  string `json:"timezone,omitempty"`   // IANA name
	ISO       string `json:"iso,omitempty"`        // absolute instant
}

// IsZero reports whether no field is set.
func (t Temporal) IsZero() bool {
	return t == Temporal{}
}

// FlightDetails holds flight-specific fields.
type FlightDetails struct {
	AirlineName  string `json:"airline_name,omitempty"`
	AirlineCode  string `json:"airline_code,omitempty"`
	FlightNumber string `json:"flight_number,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
	PNR          string `json:"pnr,omitempty"`
}

// LodgingDetails holds lodging-specific fields.
type LodgingDetails struct {
	Name               string `json:"name,omitempty"`
	Address            string `json:"address,omitempty"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
}

// MeetingDetails holds meeting-specific fields.
type MeetingDetails struct {
	Organizer    string   `json:"organizer,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	VideoLink    string   `json:"video_link,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
}

// MealDetails holds meal-specific fields.
type MealDetails struct {
	Venue              string `json:"venue,omitempty"`
	MealType           string `json:"meal_type,omitempty"`
	ReservationName    string `json:"reservation_name,omitempty"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
}

// ItineraryItem is one scheduled or unscheduled element of a trip.
type ItineraryItem struct {
	ID            string          `json:"id"`
	TripID        string          `json:"trip_id,omitempty"`
	Fingerprint   string          `json:"fingerprint"`
	Aliases       []string        `json:"aliases,omitempty"` // fingerprints merged into this item
	Kind          ItemKind        `json:"kind"`
	Title         string          `json:"title"`
	Start         Temporal        `json:"start"`
	End           Temporal        `json:"end"`
	LocationText  string          `json:"location_text,omitempty"`
	IsInferred    bool            `json:"is_inferred"`
	Confidence    float64         `json:"confidence"`
	SourceSnippet string          `json:"source_snippet,omitempty"`
	State         ItemState       `json:"state"`
	Provenance    Provenance      `json:"provenance,omitempty"`
	Flight        *FlightDetails  `json:"flight,omitempty"`
	Lodging       *LodgingDetails `json:"lodging,omitempty"`
	Meeting       *MeetingDetails `json:"meeting,omitempty"`
	Meal          *MealDetails    `json:"meal,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitzero"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

// DisplayID returns the identifier shown to users and referenced by annotations:
// the fingerprint when present, otherwise the ID.
func (i ItineraryItem) DisplayID() string {
	if i.Fingerprint != "" {
		return i.Fingerprint
	}
	return i.ID
}

// Matches reports whether fp identifies this item, either as its fingerprint
// or as one of its merged aliases.
func (i ItineraryItem) Matches(fp string) bool {
	if fp == "" {
		return false
	}
	if i.Fingerprint == fp {
		return true
	}
	for _, a := range i.Aliases {
		if a == fp {
			return true
		}
	}
	return false
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// IntentType describes what an incoming proposal wants to do to the itinerary.
type IntentType string

const (
	IntentAdd     IntentType = "ADD"
	IntentUpdate  IntentType = "UPDATE"
	IntentCancel  IntentType = "CANCEL"
	IntentReplace IntentType = "REPLACE"
	IntentUnknown IntentType = "UNKNOWN"
)

// ParseIntent normalizes an intent string. Empty means ADD; anything else
// unrecognized is UNKNOWN.
func ParseIntent(s string) IntentType {
	switch t := IntentType(s); t {
	case "":
		return IntentAdd
	case IntentAdd, IntentUpdate, IntentCancel, IntentReplace, IntentUnknown:
		return t
	default:
		return IntentUnknown
	}
}

// ProposedItem is a candidate item produced by the reconstruction service,
// tagged with what it wants to do to the existing itinerary.
type ProposedItem struct {
	Item   ItineraryItem `json:"item"`
	Intent IntentType    `json:"intent"`
}
