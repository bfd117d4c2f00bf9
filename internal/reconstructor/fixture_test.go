package reconstructor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/itinerary-cli/internal/model"
)

func TestFixtureService(t *testing.T) {
	svc, err := LoadFixtures(filepath.Join("testdata", "fixtures.yaml"))
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := svc.Reconstruct(ctx, Request{RawText: "Booked UA 837 on the 12th"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	require.Len(t, resp.Proposals, 1)
	flight := resp.Proposals[0].Item
	assert.Equal(t, model.KindFlight, flight.Kind)
	assert.Equal(t, "837", flight.Flight.FlightNumber)
	assert.Equal(t, 0.95, flight.Confidence)
	assert.Equal(t, model.SeverityHigh, resp.Output.Risks[0].Severity)

	resp, err = svc.Reconstruct(ctx, Request{RawText: "please cancel the sync"})
	require.NoError(t, err)
	require.NotNil(t, resp.Clarification)
	assert.Equal(t, model.IntentCancel, resp.Clarification.IntentType)
	assert.Equal(t, []string{"item-a", "item-b"}, resp.Clarification.Candidates)

	_, err = svc.Reconstruct(ctx, Request{RawText: "nothing relevant"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fixture matches")
}

func TestFixtureService_DefaultEntry(t *testing.T) {
	svc, err := ParseFixtures([]byte(`
fixtures:
  - response:
      status: OK
      result:
        tripTitle: Anything
`))
	require.NoError(t, err)

	resp, err := svc.Reconstruct(context.Background(), Request{RawText: "whatever"})
	require.NoError(t, err)
	assert.Equal(t, "Anything", resp.Output.TripTitle)
	assert.Empty(t, resp.Proposals)
}

func TestParseFixtures_Errors(t *testing.T) {
	_, err := ParseFixtures([]byte("fixtures: ["))
	require.Error(t, err)

	_, err = ParseFixtures([]byte("fixtures: []"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fixtures")

	_, err = LoadFixtures(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
}
