package reconcile

import (
	"time"

	"github.com/sells-group/itinerary-cli/internal/identity"
	"github.com/sells-group/itinerary-cli/internal/model"
)

// batch applies a plan's proposals, in order, to a working copy of the
// trip's items. Nothing is written until the whole batch has been decided.
type batch struct {
	tripID  string
	now     time.Time
	items   []model.ItineraryItem
	touched map[string]bool
}

func newBatch(tripID string, base []model.ItineraryItem, mode model.IngestMode, now time.Time) *batch {
	b := &batch{tripID: tripID, now: now, touched: make(map[string]bool)}
	if mode != model.ModeRebuild {
		b.items = append([]model.ItineraryItem(nil), base...)
	}
	return b
}

// run applies proposals until one is ambiguous. It returns that proposal's
// index and decision, or -1 and nil when the batch completed.
func (b *batch) run(plan model.PendingPlan) (int, *identity.Decision) {
	for i, p := range plan.Proposals {
		if p.Item.Title != "" {
			p.Item = identity.EnsureFingerprint(p.Item)
		}
		opts := identity.Options{Mode: plan.Mode, Binding: plan.Bindings[i]}
		if i == plan.Cursor {
			opts.Restricted = plan.Restricted
		}
		d := identity.Decide(b.items, p, opts)
		if d.Action == identity.ActionAmbiguous {
			return i, &d
		}
		b.apply(p, d)
	}
	return -1, nil
}

func (b *batch) apply(p model.ProposedItem, d identity.Decision) {
	switch d.Action {
	case identity.ActionCreate:
		b.insert(p.Item)
	case identity.ActionMerge:
		b.put(identity.Merge(*d.Target, p.Item, b.now))
	case identity.ActionApply:
		switch d.Intent {
		case model.IntentCancel:
			b.put(identity.Cancel(*d.Target, b.now))
		case model.IntentReplace:
			b.put(identity.Cancel(*d.Target, b.now))
			b.insert(p.Item)
		default:
			b.put(identity.Merge(*d.Target, p.Item, b.now))
		}
	}
}

// insert adds a new item. A replacement that kept its identity revives the
// item it replaced instead of colliding with it.
func (b *batch) insert(incoming model.ItineraryItem) {
	it := identity.NewItem(b.tripID, incoming, b.now)
	for _, cur := range b.items {
		if cur.Matches(it.Fingerprint) {
			merged := identity.Merge(cur, incoming, b.now)
			merged.State = it.State
			b.put(merged)
			return
		}
	}
	b.put(it)
}

func (b *batch) put(it model.ItineraryItem) {
	b.touched[it.ID] = true
	for i := range b.items {
		if b.items[i].ID == it.ID {
			b.items[i] = it
			return
		}
	}
	b.items = append(b.items, it)
}

// changed returns the items the batch created or modified.
func (b *batch) changed() []model.ItineraryItem {
	var out []model.ItineraryItem
	for _, it := range b.items {
		if b.touched[it.ID] {
			out = append(out, it)
		}
	}
	return out
}
