// Package calendar exports a trip's itinerary as iCalendar.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

const (
	productID       = "-//sells-group//itinerary-cli//EN"
	defaultDuration = time.Hour
)

// Export renders one VEVENT per visible item that has a date. Items with a
// time (or an ISO instant) become timed events; date-only items become
// all-day events. The item fingerprint is the event UID so re-exports update
// the same events.
func Export(trip *model.Trip, items []model.ItineraryItem, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if trip != nil {
		cal.SetXWRCalName(trip.Title)
		if trip.Timezone != "" {
			cal.SetXWRTimezone(trip.Timezone)
		}
	}

	live := timeline.Visible(items)
	timeline.SortItems(live)
	for _, it := range live {
		if timeline.DateKey(it) == timeline.Unscheduled {
			continue
		}
		addEvent(cal, trip, it, stamp)
	}
	return cal.Serialize()
}

func addEvent(cal *ics.Calendar, trip *model.Trip, it model.ItineraryItem, stamp time.Time) {
	ev := cal.AddEvent(it.DisplayID())
	ev.SetDtStampTime(stamp.UTC())
	ev.SetSummary(it.Title)
	if it.LocationText != "" {
		ev.SetLocation(it.LocationText)
	}
	ev.SetDescription(description(it))
	if it.State == model.StateConfirmed {
		ev.SetStatus(ics.ObjectStatusConfirmed)
	} else {
		ev.SetStatus(ics.ObjectStatusTentative)
	}
	if !it.UpdatedAt.IsZero() {
		ev.SetModifiedAt(it.UpdatedAt.UTC())
	}

	tripTZ := ""
	if trip != nil {
		tripTZ = trip.Timezone
	}

	start, timed := instant(it.Start, tripTZ)
	if !timed {
		day, _ := time.Parse(time.DateOnly, timeline.DateKey(it))
		ev.SetAllDayStartAt(day)
		last := day
		if end, err := time.Parse(time.DateOnly, it.End.LocalDate); err == nil && end.After(day) {
			last = end
		}
		ev.SetAllDayEndAt(last.AddDate(0, 0, 1))
		return
	}

	ev.SetStartAt(start)
	end, ok := instant(it.End, tripTZ)
	if !ok || !end.After(start) {
		end = start.Add(defaultDuration)
	}
	ev.SetEndAt(end)
}

// instant resolves a temporal to an absolute time: the ISO instant when
// present, otherwise local date and time in the item's (or trip's) zone.
func instant(t model.Temporal, tripTZ string) (time.Time, bool) {
	if t.ISO != "" {
		if at, ok := timeline.ParseInstant(t.ISO); ok {
			return at, true
		}
	}
	if t.LocalDate == "" || t.LocalTime == "" {
		return time.Time{}, false
	}
	loc := time.UTC
	for _, name := range []string{t.Timezone, tripTZ} {
		if name == "" {
			continue
		}
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
			break
		}
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", t.LocalDate+" "+t.LocalTime, loc)
	return at, err == nil
}

func description(it model.ItineraryItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s", it.Kind)
	if f := it.Flight; f != nil && f.FlightNumber != "" {
		fmt.Fprintf(&b, "\nFlight: %s%s", f.AirlineCode, f.FlightNumber)
		if f.Origin != "" || f.Destination != "" {
			fmt.Fprintf(&b, " %s-%s", f.Origin, f.Destination)
		}
	}
	if l := it.Lodging; l != nil && l.ConfirmationNumber != "" {
		fmt.Fprintf(&b, "\nConfirmation: %s", l.ConfirmationNumber)
	}
	if it.IsInferred {
		b.WriteString("\nInferred from context")
	}
	if it.SourceSnippet != "" {
		fmt.Fprintf(&b, "\nSource: %s", it.SourceSnippet)
	}
	return b.String()
}
