package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindFlight, ParseItemKind("FLIGHT"))
	assert.Equal(t, KindMeal, ParseItemKind("MEAL"))
	assert.Equal(t, KindOther, ParseItemKind("flight"))
	assert.Equal(t, KindOther, ParseItemKind(""))
	assert.Equal(t, KindOther, ParseItemKind("CRUISE"))
}

func TestParseIntent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, IntentAdd, ParseIntent(""))
	assert.Equal(t, IntentCancel, ParseIntent("CANCEL"))
	assert.Equal(t, IntentReplace, ParseIntent("REPLACE"))
	assert.Equal(t, IntentUnknown, ParseIntent("MAYBE"))
}

func TestItemStateValid(t *testing.T) {
	t.Parallel()

	assert.True(t, StateProposed.Valid())
	assert.True(t, StateDismissed.Valid())
	assert.False(t, ItemState("ARCHIVED").Valid())
	assert.False(t, ItemState("").Valid())
}

func TestItineraryItem_Matches(t *testing.T) {
	t.Parallel()

	item := ItineraryItem{Fingerprint: "fl-abc", Aliases: []string{"fl-old"}}
	assert.True(t, item.Matches("fl-abc"))
	assert.True(t, item.Matches("fl-old"))
	assert.False(t, item.Matches("fl-new"))
	assert.False(t, item.Matches(""))
}

func TestItineraryItem_DisplayID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fl-abc", ItineraryItem{ID: "1", Fingerprint: "fl-abc"}.DisplayID())
	assert.Equal(t, "1", ItineraryItem{ID: "1"}.DisplayID())
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}

func TestParseIngestMode(t *testing.T) {
	t.Parallel()

	m, ok := ParseIngestMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeReconcile, m)

	m, ok = ParseIngestMode("patch")
	assert.True(t, ok)
	assert.Equal(t, ModePatch, m)

	m, ok = ParseIngestMode("rebuild")
	assert.True(t, ok)
	assert.Equal(t, ModeRebuild, m)

	_, ok = ParseIngestMode("resolve")
	assert.False(t, ok)
}

func TestItineraryItem_JSONOmitsEmptyDetails(t *testing.T) {
	t.Parallel()

	item := ItineraryItem{
		ID:          "item-1",
		Fingerprint: "ml-1",
		Kind:        KindMeal,
		Title:       "Dinner",
		State:       StateProposed,
		Meal:        &MealDetails{Venue: "Noma", MealType: "dinner"},
	}
	data, err := json.Marshal(item)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "flight")
	assert.NotContains(t, raw, "created_at")
	assert.Equal(t, "Noma", raw["meal"].(map[string]any)["venue"])
}

func TestOutputItems(t *testing.T) {
	t.Parallel()

	var nilOut *ReconstructionOutput
	assert.Nil(t, nilOut.Items())

	out := &ReconstructionOutput{Days: []Day{
		{DayIndex: 1, Items: []ItineraryItem{{ID: "a"}, {ID: "b"}}},
		{DayIndex: 2, Items: []ItineraryItem{{ID: "c"}}},
	}}
	ids := make([]string, 0, 3)
	for _, it := range out.Items() {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestPendingAction_HasCandidate(t *testing.T) {
	t.Parallel()

	p := &PendingAction{Candidates: []Candidate{{ItemID: "m1"}, {ItemID: "m2"}}}
	assert.True(t, p.HasCandidate("m2"))
	assert.False(t, p.HasCandidate("m3"))
}
