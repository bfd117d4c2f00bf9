// Package timeline groups itinerary items into ordered days.
package timeline

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// Unscheduled is the date key of items with no usable date. It always sorts last.
const Unscheduled = "Unscheduled"

const labelLayout = "Mon, Jan 2"

// DateKey returns the bucket key for an item: its start local date, else the
// date part of its start instant, else Unscheduled.
func DateKey(item model.ItineraryItem) string {
	if item.Start.LocalDate != "" {
		return item.Start.LocalDate
	}
	if len(item.Start.ISO) >= 10 {
		return item.Start.ISO[:10]
	}
	return Unscheduled
}

// Visible drops dismissed items. Dismissed items are kept in storage but
// never appear in a day.
func Visible(items []model.ItineraryItem) []model.ItineraryItem {
	return lo.Filter(items, func(it model.ItineraryItem, _ int) bool {
		return it.State != model.StateDismissed
	})
}

// BuildDays buckets items by DateKey and orders buckets and their contents.
// Dismissed items are filtered out. The result does not depend on input order.
func BuildDays(items []model.ItineraryItem) []model.Day {
	buckets := lo.GroupBy(Visible(items), DateKey)

	keys := lo.Keys(buckets)
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a == Unscheduled || b == Unscheduled {
			return b == Unscheduled && a != Unscheduled
		}
		return a < b
	})

	days := make([]model.Day, 0, len(keys))
	for i, key := range keys {
		dayItems := append([]model.ItineraryItem(nil), buckets[key]...)
		SortItems(dayItems)

		day := model.Day{
			DayIndex: i + 1,
			Label:    Label(key),
			Items:    dayItems,
		}
		if key != Unscheduled {
			day.LocalDate = lo.ToPtr(key)
		}
		days = append(days, day)
	}
	return days
}

// SortItems orders items within a day: by start instant (missing instants
// last), then local time (empty first), then title, then ID.
func SortItems(items []model.ItineraryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
}

// Less is the total order used within a day.
func Less(a, b model.ItineraryItem) bool {
	ia, ib := instant(a), instant(b)
	if ia != ib {
		return ia < ib
	}
	if a.Start.LocalTime != b.Start.LocalTime {
		return a.Start.LocalTime < b.Start.LocalTime
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.ID < b.ID
}

// instant returns the start instant in unix seconds, or +Inf when absent or unparsable.
func instant(item model.ItineraryItem) float64 {
	if item.Start.ISO == "" {
		return math.Inf(1)
	}
	t, ok := ParseInstant(item.Start.ISO)
	if !ok {
		return math.Inf(1)
	}
	return float64(t.UnixNano()) / 1e9
}

// ParseInstant parses an ISO-8601 instant. Timestamps without an offset are read as UTC.
func ParseInstant(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Label renders a day header for a date key.
func Label(key string) string {
	if key == Unscheduled {
		return Unscheduled
	}
	d, err := time.Parse(time.DateOnly, key)
	if err != nil {
		return key
	}
	return d.Format(labelLayout)
}

// Span returns the first and last scheduled date across days.
func Span(days []model.Day) (start, end *string) {
	for _, d := range days {
		if d.LocalDate == nil {
			continue
		}
		if start == nil || *d.LocalDate < *start {
			start = lo.ToPtr(*d.LocalDate)
		}
		if end == nil || *d.LocalDate > *end {
			end = lo.ToPtr(*d.LocalDate)
		}
	}
	return start, end
}
