//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/reconcile"
)

func strPtr(s string) *string { return &s }

func TestFormatTripsList(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	runAt := now.Add(time.Hour)
	trips := []model.TripSummary{
		{
			Trip: model.Trip{
				ID:        "trip-1",
				Title:     "Tokyo offsite",
				Status:    model.TripStatusActive,
				UpdatedAt: now,
			},
			ItemCount:       4,
			LatestRunAt:     &runAt,
			LatestRunStatus: model.RunStatusSucceeded,
		},
		{
			Trip: model.Trip{
				ID:        "trip-2",
				Title:     "Untitled Trip",
				Status:    model.TripStatusDraft,
				UpdatedAt: now,
			},
		},
	}

	var buf bytes.Buffer
	formatTripsList(&buf, trips)

	output := buf.String()
	assert.Contains(t, output, "TITLE")
	assert.Contains(t, output, "trip-1")
	assert.Contains(t, output, "Tokyo offsite")
	assert.Contains(t, output, "ACTIVE")
	assert.Contains(t, output, "SUCCEEDED 2025-03-01 10:00")
	assert.Contains(t, output, "DRAFT")
}

func TestFormatTripView(t *testing.T) {
	view := &reconcile.TripView{
		Trip: &model.Trip{ID: "trip-1", Title: "Tokyo offsite", Status: model.TripStatusActive, Timezone: "Asia/Tokyo"},
		Display: &model.ReconstructionOutput{
			ExecutiveSummary: "Three days in Tokyo.",
			Days: []model.Day{
				{
					DayIndex:  1,
					Label:     "Wed, Mar 12",
					LocalDate: strPtr("2025-03-12"),
					Items: []model.ItineraryItem{
						{Kind: model.KindFlight, Title: "UA 837 SFO to NRT", Start: model.Temporal{LocalTime: "11:05"}, State: model.StateConfirmed},
						{Kind: model.KindLodging, Title: "Park Hyatt", IsInferred: true},
					},
				},
			},
			Risks:       []model.Risk{{Severity: model.SeverityHigh, Title: "Tight connection", Message: "45 minutes at NRT."}},
			MissingInfo: []model.MissingInfo{{Prompt: "Return flight?"}},
		},
		Pending: &model.PendingAction{
			ID:         "pa-1",
			IntentType: model.IntentCancel,
			Candidates: []model.Candidate{
				{ItemID: "item-a", Title: "Sync with design team", LocalDate: "2025-03-13", LocalTime: "10:00", Reason: "same day"},
			},
		},
	}

	var buf bytes.Buffer
	formatTripView(&buf, view)

	output := buf.String()
	assert.Contains(t, output, "Tokyo offsite  [ACTIVE]")
	assert.Contains(t, output, "Timezone: Asia/Tokyo")
	assert.Contains(t, output, "Three days in Tokyo.")
	assert.Contains(t, output, "Wed, Mar 12")
	assert.Contains(t, output, "11:05")
	assert.Contains(t, output, "UA 837 SFO to NRT (confirmed)")
	assert.Contains(t, output, "Park Hyatt (inferred)")
	assert.Contains(t, output, "[high] Tight connection")
	assert.Contains(t, output, "Return flight?")
	assert.Contains(t, output, "item-a")
	assert.Contains(t, output, "itinerary-cli resolve pa-1 <item-id>")
	assert.NotContains(t, output, "Recent runs")
}

func TestFormatTripView_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatTripView(&buf, &reconcile.TripView{Trip: &model.Trip{ID: "trip-1", Title: "Untitled Trip", Status: model.TripStatusDraft}})
	assert.Contains(t, buf.String(), "No items yet.")
}

func TestItemClock(t *testing.T) {
	assert.Equal(t, "09:30", itemClock(model.ItineraryItem{Start: model.Temporal{LocalTime: "09:30"}}))
	assert.Equal(t, "02:00", itemClock(model.ItineraryItem{Start: model.Temporal{ISO: "2025-03-12T02:00:00Z"}}))
	assert.Equal(t, "--:--", itemClock(model.ItineraryItem{Start: model.Temporal{LocalDate: "2025-03-12"}}))
}

func TestPrintOutcome(t *testing.T) {
	committed := &reconcile.Committed{
		Run: &model.Run{ID: "run12345-0000", Mode: model.ModePatch, Usage: model.TokenUsage{CostUSD: 0.25}},
		Output: &model.ReconstructionOutput{
			Days: []model.Day{{Items: []model.ItineraryItem{{Title: "a"}, {Title: "b"}}}},
			Meta: &model.OutputMeta{RawTextTruncated: true, RawTextOmittedChars: 120},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, committed, false))
	output := buf.String()
	assert.Contains(t, output, "Applied (run run12345, mode patch)")
	assert.Contains(t, output, "2 items across 1 days")
	assert.Contains(t, output, "120 older characters")
	assert.Contains(t, output, "$0.2500")

	buf.Reset()
	nc := &reconcile.NeedsClarification{
		PendingAction: &model.PendingAction{ID: "pa-9", IntentType: model.IntentUpdate},
		Run:           &model.Run{ID: "run-2"},
	}
	require.NoError(t, printOutcome(&buf, nc, false))
	assert.Contains(t, buf.String(), "Needs clarification (UPDATE)")
	assert.Contains(t, buf.String(), "resolve pa-9")

	buf.Reset()
	require.NoError(t, printOutcome(&buf, nc, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "NEEDS_CLARIFICATION", decoded["status"])
	result, ok := decoded["result"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result, "pending_action")
}

func newTextCmd() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().String("text", "", "")
	c.Flags().String("file", "", "")
	return c
}

func TestReadRawText(t *testing.T) {
	c := newTextCmd()
	require.NoError(t, c.Flags().Set("text", "from flag"))
	got, err := readRawText(c)
	require.NoError(t, err)
	assert.Equal(t, "from flag", got)

	path := filepath.Join(t.TempDir(), "update.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	c = newTextCmd()
	require.NoError(t, c.Flags().Set("file", path))
	got, err = readRawText(c)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	c = newTextCmd()
	c.SetIn(strings.NewReader("from stdin"))
	got, err = readRawText(c)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	c = newTextCmd()
	require.NoError(t, c.Flags().Set("file", filepath.Join(t.TempDir(), "missing.txt")))
	_, err = readRawText(c)
	assert.Error(t, err)
}
