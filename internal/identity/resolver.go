package identity

import (
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// Action is what the resolver decided to do with one proposal.
type Action string

const (
	// ActionCreate inserts the proposal as a new item.
	ActionCreate Action = "create"
	// ActionMerge folds the proposal into the item with the same fingerprint.
	ActionMerge Action = "merge"
	// ActionApply applies the proposal's intent to a single matched target.
	ActionApply Action = "apply"
	// ActionSkip ignores the proposal (a cancellation of nothing).
	ActionSkip Action = "skip"
	// ActionAmbiguous means more than one target is plausible and the user must choose.
	ActionAmbiguous Action = "ambiguous"
)

// Decision is the resolver's verdict for one proposal.
type Decision struct {
	Action     Action
	Intent     model.IntentType
	Target     *model.ItineraryItem
	Candidates []model.Candidate
}

// Options steer a single decision.
type Options struct {
	Mode model.IngestMode
	// Binding is the item the user chose for this proposal, if any.
	Binding string
	// Restricted limits the candidate set to these item IDs.
	Restricted []string
}

// Decide resolves one proposal against the current item set. It is pure:
// the same items, proposal and options always give the same decision.
// Passes:
//  1. User binding from an answered clarification
//  2. Exact fingerprint or alias match (any state)
//  3. Intent-driven target search over plausible items
func Decide(items []model.ItineraryItem, p model.ProposedItem, opts Options) Decision {
	intent := p.Intent
	if intent == "" {
		intent = model.IntentAdd
	}

	// Pass 1: answered question.
	if opts.Binding != "" {
		if target := findByID(items, opts.Binding); target != nil {
			if intent == model.IntentUnknown || intent == model.IntentAdd {
				intent = model.IntentUpdate
			}
			return Decision{Action: ActionApply, Intent: intent, Target: target}
		}
	}

	// Pass 2: same fingerprint is the same entity.
	if target := findByFingerprint(items, p.Item.Fingerprint); target != nil {
		zap.L().Debug("identity: matched by fingerprint",
			zap.String("fingerprint", p.Item.Fingerprint),
			zap.String("item_id", target.ID),
			zap.String("intent", string(intent)),
		)
		if intent == model.IntentCancel {
			return Decision{Action: ActionApply, Intent: intent, Target: target}
		}
		return Decision{Action: ActionMerge, Intent: intent, Target: target}
	}

	if intent == model.IntentAdd || opts.Mode == model.ModeRebuild {
		if intent == model.IntentCancel {
			return Decision{Action: ActionSkip, Intent: intent}
		}
		return Decision{Action: ActionCreate, Intent: intent}
	}

	// Pass 3: find what the update refers to.
	var matches []Match
	if len(opts.Restricted) > 0 {
		matches = Rank(filterIDs(items, opts.Restricted), p.Item)
	} else {
		matches = Targets(items, p.Item)
	}

	switch {
	case len(matches) == 0:
		if intent == model.IntentCancel {
			zap.L().Info("identity: cancellation matched no item",
				zap.String("title", p.Item.Title),
				zap.String("kind", string(p.Item.Kind)),
			)
			return Decision{Action: ActionSkip, Intent: intent}
		}
		return Decision{Action: ActionCreate, Intent: intent}

	case len(matches) == 1 || opts.Mode == model.ModePatch:
		target := matches[0].Item
		zap.L().Debug("identity: matched by intent",
			zap.String("intent", string(intent)),
			zap.String("item_id", target.ID),
			zap.Float64("score", matches[0].Score),
			zap.Int("plausible", len(matches)),
		)
		if intent == model.IntentUnknown {
			intent = model.IntentUpdate
		}
		return Decision{Action: ActionApply, Intent: intent, Target: &target}

	default:
		cands := make([]model.Candidate, len(matches))
		for i, m := range matches {
			cands[i] = m.Candidate()
		}
		return Decision{Action: ActionAmbiguous, Intent: intent, Candidates: cands}
	}
}

func findByID(items []model.ItineraryItem, id string) *model.ItineraryItem {
	for i := range items {
		if items[i].ID == id {
			it := items[i]
			return &it
		}
	}
	return nil
}

func findByFingerprint(items []model.ItineraryItem, fp string) *model.ItineraryItem {
	if fp == "" {
		return nil
	}
	for i := range items {
		if items[i].Matches(fp) {
			it := items[i]
			return &it
		}
	}
	return nil
}

func filterIDs(items []model.ItineraryItem, ids []string) []model.ItineraryItem {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.ItineraryItem
	for _, it := range items {
		if want[it.ID] && it.State != model.StateDismissed {
			out = append(out, it)
		}
	}
	return out
}
