package reconstructor

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// The service speaks camelCase JSON. These types mirror that contract and are
// converted to model types only after validation.

type wireRequest struct {
	RawText   string        `json:"rawText"`
	Client    wireClient    `json:"client"`
	Mode      string        `json:"mode"`
	TripTitle string        `json:"tripTitle,omitempty"`
	Existing  []ExistingRef `json:"existing"`
}

type wireClient struct {
	Timezone string `json:"timezone"`
	NowISO   string `json:"nowIso"`
}

type wireResponse struct {
	Status          string          `json:"status"`
	Result          *wireOutput     `json:"result"`
	PendingActionID string          `json:"pendingActionId"`
	IntentType      string          `json:"intentType"`
	Candidates      []wireCandidate `json:"candidates"`
	Update          *wireItem       `json:"update"`
	Usage           *wireUsage      `json:"usage"`
}

type wireCandidate struct {
	ItemID string `json:"itemId"`
}

type wireUsage struct {
	Model               string  `json:"model"`
	InputTokens         int     `json:"inputTokens"`
	OutputTokens        int     `json:"outputTokens"`
	CacheCreationTokens int     `json:"cacheCreationTokens"`
	CacheReadTokens     int     `json:"cacheReadTokens"`
	CostUSD             float64 `json:"costUsd"`
}

type wireOutput struct {
	TripTitle          string `json:"tripTitle"`
	ExecutiveSummary   string `json:"executiveSummary"`
	DestinationSummary string `json:"destinationSummary"`
	DateRange          struct {
		StartLocalDate *string `json:"startLocalDate"`
		EndLocalDate   *string `json:"endLocalDate"`
		Timezone       string  `json:"timezone"`
	} `json:"dateRange"`
	Days []struct {
		DayIndex  int        `json:"dayIndex"`
		Label     string     `json:"label"`
		LocalDate *string    `json:"localDate"`
		Items     []wireItem `json:"items"`
	} `json:"days"`
	Risks []struct {
		Severity string   `json:"severity"`
		Title    string   `json:"title"`
		Message  string   `json:"message"`
		ItemIDs  []string `json:"itemIds"`
	} `json:"risks"`
	Assumptions []struct {
		Message        string   `json:"message"`
		RelatedItemIDs []string `json:"relatedItemIds"`
	} `json:"assumptions"`
	MissingInfo []struct {
		Prompt         string   `json:"prompt"`
		RelatedItemIDs []string `json:"relatedItemIds"`
	} `json:"missingInfo"`
	SourceStats struct {
		InputCharCount      int `json:"inputCharCount"`
		RecognizedItemCount int `json:"recognizedItemCount"`
		InferredItemCount   int `json:"inferredItemCount"`
	} `json:"sourceStats"`
}

type wireTemporal struct {
	LocalDate string `json:"localDate"`
	LocalTime string `json:"localTime"`
	Timezone  string `json:"timezone"`
	ISO       string `json:"iso"`
}

type wireItem struct {
	ID            string       `json:"id"`
	Fingerprint   string       `json:"fingerprint"`
	Kind          string       `json:"kind"`
	Title         string       `json:"title"`
	Start         wireTemporal `json:"start"`
	End           wireTemporal `json:"end"`
	LocationText  string       `json:"locationText"`
	IsInferred    bool         `json:"isInferred"`
	Confidence    *float64     `json:"confidence"`
	SourceSnippet string       `json:"sourceSnippet"`
	State         string       `json:"state"`
	Provenance    string       `json:"provenance"`
	Intent        string       `json:"intent"`
	Flight        *struct {
		AirlineName  string `json:"airlineName"`
		AirlineCode  string `json:"airlineCode"`
		FlightNumber string `json:"flightNumber"`
		Origin       string `json:"origin"`
		Destination  string `json:"destination"`
		PNR          string `json:"pnr"`
	} `json:"flight"`
	Lodging *struct {
		Name               string `json:"name"`
		Address            string `json:"address"`
		ConfirmationNumber string `json:"confirmationNumber"`
	} `json:"lodging"`
	Meeting *struct {
		Organizer    string   `json:"organizer"`
		LocationName string   `json:"locationName"`
		VideoLink    string   `json:"videoLink"`
		Attendees    []string `json:"attendees"`
	} `json:"meeting"`
	Meal *struct {
		Venue              string `json:"venue"`
		MealType           string `json:"mealType"`
		ReservationName    string `json:"reservationName"`
		ConfirmationNumber string `json:"confirmationNumber"`
	} `json:"meal"`
}

func encodeRequest(req Request) ([]byte, error) {
	existing := req.Existing
	if existing == nil {
		existing = []ExistingRef{}
	}
	data, err := json.Marshal(wireRequest{
		RawText:   req.RawText,
		Client:    wireClient{Timezone: req.Client.Timezone, NowISO: req.Client.NowISO},
		Mode:      string(req.Mode),
		TripTitle: req.TripTitle,
		Existing:  existing,
	})
	return data, eris.Wrap(err, "reconstructor: encode request")
}

// DecodeResponse parses and validates a service reply.
func DecodeResponse(data []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "decode: %v", err)
	}

	resp := &Response{Status: Status(strings.ToUpper(strings.TrimSpace(w.Status)))}
	if w.Usage != nil {
		resp.Usage = model.TokenUsage(*w.Usage)
	}

	switch resp.Status {
	case StatusOK:
		if w.Result == nil {
			return nil, eris.Wrap(ErrMalformed, "status OK without result")
		}
		out, proposals, err := w.Result.toModel()
		if err != nil {
			return nil, err
		}
		resp.Output = out
		resp.Proposals = proposals

	case StatusNeedsClarification:
		ids := lo.Uniq(lo.FilterMap(w.Candidates, func(c wireCandidate, _ int) (string, bool) {
			id := strings.TrimSpace(c.ItemID)
			return id, id != ""
		}))
		if len(ids) == 0 {
			return nil, eris.Wrap(ErrMalformed, "clarification without candidates")
		}
		cl := &Clarification{
			UpstreamID: w.PendingActionID,
			IntentType: model.ParseIntent(w.IntentType),
			Candidates: ids,
		}
		if cl.IntentType == model.IntentAdd {
			cl.IntentType = model.IntentUnknown
		}
		if w.Update != nil {
			it, _, err := w.Update.toModel()
			if err != nil {
				return nil, err
			}
			cl.Update = &it
		}
		resp.Clarification = cl
		if w.Result != nil {
			out, _, err := w.Result.toModel()
			if err != nil {
				return nil, err
			}
			resp.Output = out
		}

	default:
		return nil, eris.Wrapf(ErrMalformed, "unknown status %q", w.Status)
	}
	return resp, nil
}

func (w *wireOutput) toModel() (*model.ReconstructionOutput, []model.ProposedItem, error) {
	out := &model.ReconstructionOutput{
		TripTitle:          w.TripTitle,
		ExecutiveSummary:   w.ExecutiveSummary,
		DestinationSummary: w.DestinationSummary,
		DateRange: model.DateRange{
			StartLocalDate: w.DateRange.StartLocalDate,
			EndLocalDate:   w.DateRange.EndLocalDate,
			Timezone:       w.DateRange.Timezone,
		},
		Days:        []model.Day{},
		Risks:       []model.Risk{},
		Assumptions: []model.Assumption{},
		MissingInfo: []model.MissingInfo{},
		SourceStats: model.SourceStats{
			InputCharCount:     w.SourceStats.InputCharCount,
			ExtractedItemCount: w.SourceStats.RecognizedItemCount,
			InferredItemCount:  w.SourceStats.InferredItemCount,
		},
	}

	var proposals []model.ProposedItem
	for i, d := range w.Days {
		day := model.Day{DayIndex: d.DayIndex, Label: d.Label, LocalDate: d.LocalDate, Items: []model.ItineraryItem{}}
		if day.DayIndex == 0 {
			day.DayIndex = i + 1
		}
		for _, wi := range d.Items {
			it, intent, err := wi.toModel()
			if err != nil {
				return nil, nil, err
			}
			day.Items = append(day.Items, it)
			proposals = append(proposals, model.ProposedItem{Item: it, Intent: intent})
		}
		out.Days = append(out.Days, day)
	}

	for _, r := range w.Risks {
		out.Risks = append(out.Risks, model.Risk{
			Severity: parseSeverity(r.Severity),
			Title:    r.Title,
			Message:  r.Message,
			ItemIDs:  r.ItemIDs,
		})
	}
	for _, a := range w.Assumptions {
		out.Assumptions = append(out.Assumptions, model.Assumption{Message: a.Message, RelatedItemIDs: a.RelatedItemIDs})
	}
	for _, m := range w.MissingInfo {
		out.MissingInfo = append(out.MissingInfo, model.MissingInfo{Prompt: m.Prompt, RelatedItemIDs: m.RelatedItemIDs})
	}
	return out, proposals, nil
}

func (w wireItem) toModel() (model.ItineraryItem, model.IntentType, error) {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return model.ItineraryItem{}, "", eris.Wrap(ErrMalformed, "item without title")
	}

	it := model.ItineraryItem{
		ID:            w.ID,
		Fingerprint:   strings.TrimSpace(w.Fingerprint),
		Kind:          model.ParseItemKind(strings.ToUpper(strings.TrimSpace(w.Kind))),
		Title:         title,
		Start:         model.Temporal(w.Start),
		End:           model.Temporal(w.End),
		LocationText:  w.LocationText,
		IsInferred:    w.IsInferred,
		Confidence:    1,
		SourceSnippet: w.SourceSnippet,
		Provenance:    model.Provenance(w.Provenance),
	}
	if w.IsInferred {
		it.Confidence = 0.5
	}
	if w.Confidence != nil {
		if math.IsNaN(*w.Confidence) {
			return model.ItineraryItem{}, "", eris.Wrapf(ErrMalformed, "item %q: confidence is not a number", title)
		}
		it.Confidence = model.ClampConfidence(*w.Confidence)
	}
	// State stays empty unless the service sets a valid one, so merges keep
	// the user's lifecycle choice.
	if s := model.ItemState(strings.ToUpper(w.State)); s.Valid() {
		it.State = s
	}
	if f := w.Flight; f != nil {
		it.Flight = &model.FlightDetails{
			AirlineName: f.AirlineName, AirlineCode: f.AirlineCode, FlightNumber: f.FlightNumber,
			Origin: f.Origin, Destination: f.Destination, PNR: f.PNR,
		}
	}
	if l := w.Lodging; l != nil {
		it.Lodging = &model.LodgingDetails{Name: l.Name, Address: l.Address, ConfirmationNumber: l.ConfirmationNumber}
	}
	if m := w.Meeting; m != nil {
		it.Meeting = &model.MeetingDetails{
			Organizer: m.Organizer, LocationName: m.LocationName, VideoLink: m.VideoLink, Attendees: m.Attendees,
		}
	}
	if m := w.Meal; m != nil {
		it.Meal = &model.MealDetails{
			Venue: m.Venue, MealType: m.MealType, ReservationName: m.ReservationName, ConfirmationNumber: m.ConfirmationNumber,
		}
	}
	return it, model.ParseIntent(strings.ToUpper(strings.TrimSpace(w.Intent))), nil
}

func parseSeverity(s string) model.RiskSeverity {
	switch sev := model.RiskSeverity(strings.ToLower(strings.TrimSpace(s))); sev {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh:
		return sev
	default:
		return model.SeverityMedium
	}
}
