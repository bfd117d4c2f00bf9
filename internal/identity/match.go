package identity

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

// TitleThreshold is the token similarity above which two titles are taken to
// describe the same thing regardless of kind or date.
const TitleThreshold = 0.6

// Ranking weights. They sum to 1 so scores stay in [0,1].
const (
	weightDate  = 0.45
	weightTitle = 0.40
	weightKind  = 0.15
)

// Match is a plausible existing target for an incoming item.
type Match struct {
	Item   model.ItineraryItem
	Score  float64
	Reason string
}

// Candidate converts a match into the user-facing choice shown in a
// clarification request.
func (m Match) Candidate() model.Candidate {
	return model.Candidate{
		ItemID:    m.Item.ID,
		Title:     m.Item.Title,
		Kind:      m.Item.Kind,
		LocalDate: m.Item.Start.LocalDate,
		LocalTime: m.Item.Start.LocalTime,
		Reason:    m.Reason,
		Score:     math.Round(m.Score*1000) / 1000,
	}
}

// Targets returns the non-dismissed items that incoming could plausibly refer
// to, best first. An item is plausible when it has the same kind and an
// overlapping date window (an unknown date overlaps everything), or when the
// titles are strongly similar.
func Targets(existing []model.ItineraryItem, incoming model.ItineraryItem) []Match {
	var out []Match
	for _, it := range existing {
		if it.State == model.StateDismissed {
			continue
		}
		sameKind := it.Kind == incoming.Kind
		overlap := windowsOverlap(it, incoming)
		sim := Jaccard(it.Title, incoming.Title)
		if !(sameKind && overlap) && sim < TitleThreshold {
			continue
		}
		out = append(out, score(it, incoming, sameKind, sim))
	}
	sortMatches(out)
	return out
}

// Rank scores the given items against incoming without the plausibility
// filter. It is used when the candidate set was chosen elsewhere.
func Rank(items []model.ItineraryItem, incoming model.ItineraryItem) []Match {
	out := make([]Match, 0, len(items))
	for _, it := range items {
		out = append(out, score(it, incoming, it.Kind == incoming.Kind, Jaccard(it.Title, incoming.Title)))
	}
	sortMatches(out)
	return out
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return timeline.Less(ms[i].Item, ms[j].Item)
	})
}

func score(target, incoming model.ItineraryItem, sameKind bool, sim float64) Match {
	prox := dateProximity(target, incoming)
	kind := 0.0
	if sameKind {
		kind = 1
	}
	return Match{
		Item:   target,
		Score:  weightDate*prox + weightTitle*sim + weightKind*kind,
		Reason: reason(target, sameKind, sim),
	}
}

func reason(target model.ItineraryItem, sameKind bool, sim float64) string {
	var parts []string
	if sameKind {
		parts = append(parts, fmt.Sprintf("Same kind (%s)", target.Kind))
	} else {
		parts = append(parts, fmt.Sprintf("Different kind (%s)", target.Kind))
	}
	if key := timeline.DateKey(target); key != timeline.Unscheduled {
		parts[0] += " on " + key
	} else {
		parts[0] += ", unscheduled"
	}
	parts = append(parts, fmt.Sprintf("title overlap %d%%", int(math.Round(sim*100))))
	return strings.Join(parts, "; ")
}

// dateProximity is 1 for the same day, decaying with distance, and 0.5 when
// either side has no date.
func dateProximity(a, b model.ItineraryItem) float64 {
	da, okA := parseDate(timeline.DateKey(a))
	db, okB := parseDate(timeline.DateKey(b))
	if !okA || !okB {
		return 0.5
	}
	days := math.Abs(da.Sub(db).Hours() / 24)
	return 1 / (1 + days)
}

// windowsOverlap compares [start, end] date windows. Unknown dates overlap everything.
func windowsOverlap(a, b model.ItineraryItem) bool {
	aStart, aEnd, okA := window(a)
	bStart, bEnd, okB := window(b)
	if !okA || !okB {
		return true
	}
	return aStart <= bEnd && bStart <= aEnd
}

func window(item model.ItineraryItem) (start, end string, ok bool) {
	start = timeline.DateKey(item)
	if start == timeline.Unscheduled {
		return "", "", false
	}
	end = start
	switch {
	case item.End.LocalDate != "":
		end = item.End.LocalDate
	case len(item.End.ISO) >= 10:
		end = item.End.ISO[:10]
	}
	if end < start {
		end = start
	}
	return start, end, true
}

func parseDate(key string) (time.Time, bool) {
	if key == timeline.Unscheduled {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, key)
	return t, err == nil
}
