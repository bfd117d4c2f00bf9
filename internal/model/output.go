package model

// Day is a projection of items sharing one date key. It is derived, never stored.
type Day struct {
	DayIndex  int             `json:"day_index"`
	Label     string          `json:"label"`
	LocalDate *string         `json:"local_date"` // nil only for the Unscheduled bucket
	Items     []ItineraryItem `json:"items"`
}

// DateRange spans the first and last scheduled day.
type DateRange struct {
	StartLocalDate *string `json:"start_local_date"`
	EndLocalDate   *string `json:"end_local_date"`
	Timezone       string  `json:"timezone"`
}

// RiskSeverity grades a risk flag.
type RiskSeverity string

const (
	SeverityLow    RiskSeverity = "low"
	SeverityMedium RiskSeverity = "medium"
	SeverityHigh   RiskSeverity = "high"
)

// Risk flags a potential problem with the itinerary (tight connection, overlap).
type Risk struct {
	Severity RiskSeverity `json:"severity"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	ItemIDs  []string     `json:"item_ids,omitempty"`
}

// Assumption records something the reconstruction inferred.
type Assumption struct {
	Message        string   `json:"message"`
	RelatedItemIDs []string `json:"related_item_ids,omitempty"`
}

// MissingInfo asks the traveler for a detail the text did not provide.
type MissingInfo struct {
	Prompt         string   `json:"prompt"`
	RelatedItemIDs []string `json:"related_item_ids,omitempty"`
}

// SourceStats summarizes how much of the input became items.
type SourceStats struct {
	InputCharCount     int `json:"input_char_count"`
	ExtractedItemCount int `json:"extracted_item_count"`
	InferredItemCount  int `json:"inferred_item_count"`
}

// OutputMeta carries processing notes about the input.
type OutputMeta struct {
	RawTextTruncated    bool `json:"raw_text_truncated"`
	RawTextOmittedChars int  `json:"raw_text_omitted_chars,omitempty"`
}

// ReconstructionOutput is the renderable result of reconstructing a trip.
type ReconstructionOutput struct {
	TripTitle          string        `json:"trip_title"`
	ExecutiveSummary   string        `json:"executive_summary"`
	DestinationSummary string        `json:"destination_summary"`
	DateRange          DateRange     `json:"date_range"`
	Days               []Day         `json:"days"`
	Risks              []Risk        `json:"risks"`
	Assumptions        []Assumption  `json:"assumptions"`
	MissingInfo        []MissingInfo `json:"missing_info"`
	SourceStats        SourceStats   `json:"source_stats"`
	Meta               *OutputMeta   `json:"meta,omitempty"`
}

// Items flattens the output's days into one slice, in day order.
func (o *ReconstructionOutput) Items() []ItineraryItem {
	if o == nil {
		return nil
	}
	var out []ItineraryItem
	for _, d := range o.Days {
		out = append(out, d.Items...)
	}
	return out
}
