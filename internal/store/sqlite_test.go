package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/itinerary-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testItem(id, fp, title string) model.ItineraryItem {
	return model.ItineraryItem{
		ID:          id,
		Fingerprint: fp,
		Kind:        model.KindMeeting,
		Title:       title,
		State:       model.StateProposed,
		Start:       model.Temporal{LocalDate: "2025-03-13", LocalTime: "10:00"},
		Meeting:     &model.MeetingDetails{Organizer: "Dana", Attendees: []string{"Sam"}},
	}
}

// --- Trips ---

func TestSQLite_CreateAndGetTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	trip, err := st.CreateTrip(ctx, "Lisbon offsite", "Europe/Lisbon")
	require.NoError(t, err)
	assert.NotEmpty(t, trip.ID)
	assert.Equal(t, model.TripStatusDraft, trip.Status)

	got, err := st.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon offsite", got.Title)
	assert.Equal(t, "Europe/Lisbon", got.Timezone)
	assert.Equal(t, 0, got.PendingGeneration)
}

func TestSQLite_GetTrip_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTrip(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CommitTripUpdate_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Commit(context.Background(), Changeset{Trip: &model.Trip{ID: "missing", Title: "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListTrips_LatestRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateTrip(ctx, "A", "")
	require.NoError(t, err)
	_, err = st.CreateTrip(ctx, "B", "")
	require.NoError(t, err)

	first := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Commit(ctx, Changeset{Run: &model.Run{ID: "r1", TripID: a.ID, Status: model.RunStatusSucceeded, Mode: model.ModePatch, CreatedAt: first}}))
	require.NoError(t, st.Commit(ctx, Changeset{Run: &model.Run{ID: "r2", TripID: a.ID, Status: model.RunStatusFailed, Mode: model.ModePatch, CreatedAt: first.Add(time.Hour)}}))
	require.NoError(t, st.Commit(ctx, Changeset{TripID: a.ID, Items: []model.ItineraryItem{testItem("i1", "mt-1", "Sync")}}))

	trips, err := st.ListTrips(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trips, 2)

	byTitle := map[string]model.TripSummary{}
	for _, ts := range trips {
		byTitle[ts.Title] = ts
	}
	require.NotNil(t, byTitle["A"].LatestRunAt)
	assert.True(t, byTitle["A"].LatestRunAt.Equal(first.Add(time.Hour)))
	assert.Equal(t, model.RunStatusFailed, byTitle["A"].LatestRunStatus)
	assert.Equal(t, 1, byTitle["A"].ItemCount)
	assert.Nil(t, byTitle["B"].LatestRunAt)
	assert.Equal(t, model.RunStatus(""), byTitle["B"].LatestRunStatus)
}

// --- Items ---

func TestSQLite_ItemsRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	trip, err := st.CreateTrip(ctx, "T", "")
	require.NoError(t, err)

	item := testItem("i1", "mt-1", "Sync with Dana")
	item.Aliases = []string{"mt-0"}
	item.Confidence = 0.8
	item.IsInferred = true
	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, Items: []model.ItineraryItem{item}}))

	got, err := st.GetItem(ctx, trip.ID, "i1")
	require.NoError(t, err)
	assert.Equal(t, trip.ID, got.TripID)
	assert.Equal(t, "mt-1", got.Fingerprint)
	assert.Equal(t, []string{"mt-0"}, got.Aliases)
	assert.Equal(t, model.StateProposed, got.State)
	assert.Equal(t, []string{"Sam"}, got.Meeting.Attendees)
	assert.True(t, got.IsInferred)

	// Upsert by ID keeps a single row.
	item.State = model.StateDismissed
	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, Items: []model.ItineraryItem{item}}))
	items, err := st.ListItems(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.StateDismissed, items[0].State)

	_, err = st.GetItem(ctx, trip.ID, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_DuplicateFingerprintRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	trip, err := st.CreateTrip(ctx, "T", "")
	require.NoError(t, err)

	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, Items: []model.ItineraryItem{testItem("i1", "mt-1", "A")}}))
	err = st.Commit(ctx, Changeset{TripID: trip.ID, Items: []model.ItineraryItem{testItem("i2", "mt-1", "B")}})
	require.Error(t, err)

	items, err := st.ListItems(ctx, trip.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSQLite_ReplaceItems(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	trip, err := st.CreateTrip(ctx, "T", "")
	require.NoError(t, err)

	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, Items: []model.ItineraryItem{
		testItem("i1", "mt-1", "A"), testItem("i2", "mt-2", "B"),
	}}))
	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, ReplaceItems: true, Items: []model.ItineraryItem{
		testItem("i3", "mt-1", "A again"),
	}}))

	items, err := st.ListItems(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i3", items[0].ID)
}

// --- Runs ---

func TestSQLite_RunsAndLatestSuccessful(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	trip, err := st.CreateTrip(ctx, "T", "")
	require.NoError(t, err)

	latest, err := st.LatestSuccessfulRun(ctx, trip.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	out := &model.ReconstructionOutput{TripTitle: "Lisbon", SourceStats: model.SourceStats{InputCharCount: 42}}
	require.NoError(t, st.Commit(ctx, Changeset{Run: &model.Run{
		ID: "r1", TripID: trip.ID, Status: model.RunStatusSucceeded, Mode: model.ModeReconcile,
		InputCharCount: 42, Output: out, Usage: model.TokenUsage{InputTokens: 10, CostUSD: 0.01}, CreatedAt: at,
	}}))
	require.NoError(t, st.Commit(ctx, Changeset{Run: &model.Run{
		ID: "r2", TripID: trip.ID, Status: model.RunStatusFailed, Mode: model.ModeReconcile,
		ErrorKind: "upstream", ErrorMessage: "timeout", CreatedAt: at.Add(time.Minute),
	}}))

	latest, err = st.LatestSuccessfulRun(ctx, trip.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "r1", latest.ID)
	assert.Equal(t, "Lisbon", latest.Output.TripTitle)
	assert.Equal(t, 10, latest.Usage.InputTokens)

	runs, err := st.ListRuns(ctx, RunFilter{TripID: trip.ID})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Nil(t, runs[0].Output)
	assert.Equal(t, "timeout", runs[0].ErrorMessage)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	recent, err := st.ListRuns(ctx, RunFilter{Since: at.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r2", recent[0].ID)

	paged, err := st.ListRuns(ctx, RunFilter{TripID: trip.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "r1", paged[0].ID)
}

// --- Pending actions ---

func openPending(id, tripID string, gen int) *model.PendingAction {
	return &model.PendingAction{
		ID:         id,
		TripID:     tripID,
		Generation: gen,
		IntentType: model.IntentCancel,
		Candidates: []model.Candidate{{ItemID: "m1", Title: "Dana"}, {ItemID: "m2", Title: "Dana"}},
		Plan: model.PendingPlan{
			Mode:      model.ModeReconcile,
			Proposals: []model.ProposedItem{{Item: model.ItineraryItem{Title: "Dana"}, Intent: model.IntentCancel}},
			Bindings:  map[int]string{0: "m1"},
			Cursor:    1,
		},
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_PendingLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	trip, err := st.CreateTrip(ctx, "T", "")
	require.NoError(t, err)

	open, err := st.GetOpenPendingAction(ctx, trip.ID)
	require.NoError(t, err)
	assert.Nil(t, open)

	require.NoError(t, st.Commit(ctx, Changeset{OpenPending: openPending("p1", trip.ID, 1)}))

	open, err = st.GetOpenPendingAction(ctx, trip.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "p1", open.ID)
	assert.Equal(t, model.PendingOpen, open.Status)
	assert.Len(t, open.Candidates, 2)
	assert.Equal(t, "m1", open.Plan.Bindings[0])
	assert.Equal(t, 1, open.Plan.Cursor)

	n, err := st.CountOpenPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second open request needs the first superseded in the same commit.
	err = st.Commit(ctx, Changeset{OpenPending: openPending("p2", trip.ID, 2)})
	require.Error(t, err)

	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, SupersedeOpen: true, OpenPending: openPending("p2", trip.ID, 2)}))
	p1, err := st.GetPendingAction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PendingSuperseded, p1.Status)
	assert.NotNil(t, p1.ResolvedAt)

	require.NoError(t, st.Commit(ctx, Changeset{TripID: trip.ID, ClosePendingID: "p2"}))
	p2, err := st.GetPendingAction(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, model.PendingApplied, p2.Status)

	// Closing twice is a conflict and nothing else in the changeset lands.
	err = st.Commit(ctx, Changeset{TripID: trip.ID, ClosePendingID: "p2", Items: []model.ItineraryItem{testItem("i1", "mt-1", "A")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	items, err := st.ListItems(ctx, trip.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = st.GetPendingAction(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CommitWithoutTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.Commit(context.Background(), Changeset{})
	require.Error(t, err)
}
