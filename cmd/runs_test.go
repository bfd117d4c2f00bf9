//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:             "abc12345-6789-0000-0000-000000000000",
			TripID:         "trip0001-0000-0000-0000-000000000000",
			Status:         model.RunStatusSucceeded,
			Mode:           model.ModeReconcile,
			InputCharCount: 420,
			Usage:          model.TokenUsage{CostUSD: 0.0125},
			CreatedAt:      now,
		},
		{
			ID:             "def12345-6789-0000-0000-000000000000",
			TripID:         "trip0001-0000-0000-0000-000000000000",
			Status:         model.RunStatusNeedsClarification,
			Mode:           model.ModeReconcile,
			InputCharCount: 31,
			CreatedAt:      now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "TRIP")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "trip0001")
	assert.Contains(t, output, "SUCCEEDED")
	assert.Contains(t, output, "NEEDS_CLARIFICATION")
	assert.Contains(t, output, "$0.0125")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:           "abc12345-6789-0000-0000-000000000000",
			TripID:       "trip0001",
			Status:       model.RunStatusFailed,
			Mode:         model.ModeRebuild,
			ErrorKind:    "upstream",
			ErrorMessage: "reconstruction service failed: context deadline exceeded after waiting",
			CreatedAt:    now,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "FAILED")
	assert.Contains(t, output, "rebuild")
	assert.Contains(t, output, "reconstruction service failed")
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "after waiting")
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		RunsTotal:              10,
		RunsSucceeded:          6,
		RunsNeedsClarification: 2,
		RunsFailed:             2,
		RunFailRate:            0.2,
		RunCostUSD:             1.5,
		RunAvgTokens:           1200,
		OpenPending:            3,
		LookbackHours:          24,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "24h")
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "10")
	assert.Contains(t, output, "20.0%")
	assert.Contains(t, output, "$1.5000")
	assert.Contains(t, output, "1200")
	assert.Contains(t, output, "Open clarifications:")
}

func TestFormatRunStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{LookbackHours: 24})

	output := buf.String()
	assert.NotContains(t, output, "Fail rate")
	assert.NotContains(t, output, "Avg tokens")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
