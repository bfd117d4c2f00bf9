// Package synthesis decides what itinerary to display for a trip: the live
// item set, the latest successful run's narrative, or both combined.
package synthesis

import (
	"github.com/samber/lo"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

const (
	fallbackTitle       = "Trip"
	fallbackSummary     = "Trip details updated. See itinerary below."
	fallbackDestination = "Destination unknown."
)

// Synthesize builds the display output for a trip. Once the trip has any
// stored item, the live items decide the day grouping (dismissed ones drop
// out) and the run only contributes narrative. ok is false when there is
// neither a stored item nor a run output to show.
func Synthesize(trip *model.Trip, items []model.ItineraryItem, latest *model.Run, defaultTZ string) (*model.ReconstructionOutput, bool) {
	var runOut *model.ReconstructionOutput
	if latest != nil {
		runOut = latest.Output
	}

	switch {
	case len(items) == 0 && runOut == nil:
		return nil, false
	case len(items) == 0:
		return runOut, true
	case runOut == nil:
		return Fallback(trip, items, defaultTZ), true
	}

	live := timeline.Visible(items)
	days := timeline.BuildDays(live)
	start, end := timeline.Span(days)
	tz := runOut.DateRange.Timezone
	if tz == "" {
		tz = timezone(trip, defaultTZ)
	}

	out := *runOut
	out.Days = days
	out.DateRange = model.DateRange{StartLocalDate: start, EndLocalDate: end, Timezone: tz}
	out.Risks = nonNil(runOut.Risks)
	out.Assumptions = nonNil(runOut.Assumptions)
	out.MissingInfo = nonNil(runOut.MissingInfo)
	return &out, true
}

// Fallback renders visible items without any narrative. Source stats count
// every stored item, dismissed ones included.
func Fallback(trip *model.Trip, items []model.ItineraryItem, defaultTZ string) *model.ReconstructionOutput {
	live := timeline.Visible(items)
	days := timeline.BuildDays(live)
	start, end := timeline.Span(days)

	title := fallbackTitle
	if trip != nil && trip.Title != "" {
		title = trip.Title
	}

	return &model.ReconstructionOutput{
		TripTitle:          title,
		ExecutiveSummary:   fallbackSummary,
		DestinationSummary: fallbackDestination,
		DateRange: model.DateRange{
			StartLocalDate: start,
			EndLocalDate:   end,
			Timezone:       timezone(trip, defaultTZ),
		},
		Days:        days,
		Risks:       []model.Risk{},
		Assumptions: []model.Assumption{},
		MissingInfo: []model.MissingInfo{},
		SourceStats: model.SourceStats{
			InputCharCount:     0,
			ExtractedItemCount: len(items),
			InferredItemCount:  lo.CountBy(items, func(it model.ItineraryItem) bool { return it.IsInferred }),
		},
	}
}

func timezone(trip *model.Trip, defaultTZ string) string {
	if trip != nil && trip.Timezone != "" {
		return trip.Timezone
	}
	if defaultTZ != "" {
		return defaultTZ
	}
	return "UTC"
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
