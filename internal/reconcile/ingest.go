package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/reconstructor"
	"github.com/sells-group/itinerary-cli/internal/store"
	"github.com/sells-group/itinerary-cli/internal/synthesis"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

// IngestRequest is one free-text update to a trip.
type IngestRequest struct {
	TripID  string
	RawText string
	Client  model.ClientContext
	// Mode defaults to reconcile.
	Mode model.IngestMode
}

// Ingest reconstructs rawText and reconciles the result into the trip. Either
// the whole batch is committed or, at the first ambiguous proposal, nothing is
// applied and a clarification request is opened. A new ingest supersedes any
// open request once the service call has succeeded.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (Outcome, error) {
	out, err := e.ingest(ctx, req)
	e.metrics.Ingest(outcomeLabel(out, err))
	return out, err
}

func (e *Engine) ingest(ctx context.Context, req IngestRequest) (Outcome, error) {
	mode, ok := model.ParseIngestMode(string(req.Mode))
	if !ok {
		return nil, validationError(fmt.Sprintf("unknown ingest mode %q", req.Mode))
	}
	if strings.TrimSpace(req.RawText) == "" {
		return nil, inputError("raw text is blank")
	}

	unlock, err := e.locker.Lock(ctx, req.TripID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: lock trip %s", req.TripID)
	}
	defer unlock()

	trip, err := e.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, storeError(err, "get trip "+req.TripID)
	}
	items, err := e.store.ListItems(ctx, trip.ID)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list items")
	}

	log := zap.L().With(zap.String("trip_id", trip.ID), zap.String("mode", string(mode)))
	client := e.clientContext(req.Client)
	text, meta := e.truncate(req.RawText)
	inputChars := utf8.RuneCountInString(req.RawText)
	if meta.RawTextTruncated {
		log.Warn("reconcile: raw text truncated", zap.Int("omitted_chars", meta.RawTextOmittedChars))
	}

	resp, err := e.call(ctx, reconstructor.Request{
		RawText:   text,
		Client:    e.withTimezone(client, trip),
		Mode:      mode,
		TripTitle: trip.Title,
		Existing:  reconstructor.Refs(timeline.Visible(items)),
	})
	if err == nil {
		var plan model.PendingPlan
		var upstreamID string
		plan, upstreamID, err = planFor(resp, items, mode, client, inputChars, meta)
		if err == nil {
			e.pricer.Price(&plan.Usage)
			log.Debug("reconcile: service replied",
				zap.String("status", string(resp.Status)),
				zap.Int("proposals", len(plan.Proposals)),
			)
			return e.advance(ctx, trip, items, plan, nil, upstreamID)
		}
	}

	log.Warn("reconcile: service call failed", zap.Error(err))
	e.recordFailure(ctx, trip.ID, mode, inputChars, err)
	return nil, upstreamError(err)
}

// ResolvePendingAction answers an open clarification request with the item
// the user meant and resumes the suspended batch. Answering anything but the
// trip's current open request is a stale resolution and changes nothing.
func (e *Engine) ResolvePendingAction(ctx context.Context, pendingID, itemID string) (Outcome, error) {
	out, err := e.resolve(ctx, pendingID, itemID)
	e.metrics.Resolve(outcomeLabel(out, err))
	return out, err
}

func (e *Engine) resolve(ctx context.Context, pendingID, itemID string) (Outcome, error) {
	pa, err := e.loadPending(ctx, pendingID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locker.Lock(ctx, pa.TripID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: lock trip %s", pa.TripID)
	}
	defer unlock()

	// Re-read under the lock; an ingest may have superseded it meanwhile.
	if pa, err = e.loadPending(ctx, pendingID); err != nil {
		return nil, err
	}
	trip, err := e.store.GetTrip(ctx, pa.TripID)
	if err != nil {
		return nil, storeError(err, "get trip "+pa.TripID)
	}

	switch {
	case pa.Status != model.PendingOpen:
		return nil, staleError(pendingID, strings.ToLower(string(pa.Status)))
	case pa.Generation != trip.PendingGeneration:
		return nil, staleError(pendingID, fmt.Sprintf("from generation %d, trip is at %d", pa.Generation, trip.PendingGeneration))
	}
	if !pa.HasCandidate(itemID) {
		return nil, validationError(fmt.Sprintf("item %s is not a candidate of pending action %s", itemID, pendingID))
	}

	items, err := e.store.ListItems(ctx, trip.ID)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list items")
	}

	plan := pa.Plan
	bindings := make(map[int]string, len(plan.Bindings)+1)
	for k, v := range plan.Bindings {
		bindings[k] = v
	}
	bindings[plan.Cursor] = itemID
	plan.Bindings = bindings

	zap.L().Info("reconcile: resolving pending action",
		zap.String("trip_id", trip.ID),
		zap.String("pending_id", pendingID),
		zap.String("item_id", itemID),
		zap.Int("cursor", plan.Cursor),
	)
	return e.advance(ctx, trip, items, plan, pa, "")
}

func (e *Engine) loadPending(ctx context.Context, id string) (*model.PendingAction, error) {
	pa, err := e.store.GetPendingAction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, staleError(id, "unknown")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: get pending action %s", id)
	}
	return pa, nil
}

// advance runs the plan over the current items and commits the result: either
// the applied batch or a new clarification request. answered is the request
// being resolved, if any; it is closed in the same commit.
func (e *Engine) advance(ctx context.Context, trip *model.Trip, base []model.ItineraryItem, plan model.PendingPlan, answered *model.PendingAction, upstreamID string) (Outcome, error) {
	now := e.now().UTC()
	b := newBatch(trip.ID, base, plan.Mode, now)
	cursor, amb := b.run(plan)

	next := *trip
	next.UpdatedAt = now
	if plan.Client.Timezone != "" {
		next.Timezone = plan.Client.Timezone
	}

	run := &model.Run{
		ID:             uuid.NewString(),
		TripID:         trip.ID,
		Mode:           plan.Mode,
		InputCharCount: plan.InputCharCount,
		Usage:          plan.Usage,
		CreatedAt:      now,
	}
	cs := store.Changeset{Trip: &next, SupersedeOpen: true, Run: run}
	if answered != nil {
		// The service call was billed on the run that opened the request.
		run.Mode = model.ModeResolve
		run.Usage = model.TokenUsage{}
		cs.ClosePendingID = answered.ID
	} else {
		next.PendingGeneration++
	}

	log := zap.L().With(zap.String("trip_id", trip.ID), zap.String("run_id", run.ID))

	if amb != nil {
		if answered != nil {
			next.PendingGeneration++
		}
		if cursor != plan.Cursor {
			plan.Restricted = nil
		}
		plan.Cursor = cursor
		pa := &model.PendingAction{
			ID:         uuid.NewString(),
			TripID:     trip.ID,
			Generation: next.PendingGeneration,
			IntentType: amb.Intent,
			Candidates: amb.Candidates,
			Status:     model.PendingOpen,
			UpstreamID: upstreamID,
			Plan:       plan,
			CreatedAt:  now,
		}
		run.Status = model.RunStatusNeedsClarification
		run.PendingID = pa.ID
		cs.OpenPending = pa

		if err := e.commit(ctx, cs); err != nil {
			return nil, err
		}
		log.Info("reconcile: clarification needed",
			zap.String("pending_id", pa.ID),
			zap.Int("cursor", cursor),
			zap.Int("candidates", len(pa.Candidates)),
			zap.String("intent", string(pa.IntentType)),
		)
		return &NeedsClarification{PendingAction: pa, Run: run}, nil
	}

	next.Status = model.TripStatusActive
	cs.ReplaceItems = plan.Mode == model.ModeRebuild
	cs.Items = b.changed()

	run.Status = model.RunStatusSucceeded
	run.Output = plan.Output
	if answered != nil {
		run.PendingID = answered.ID
	}
	if run.Output == nil {
		// A clarification reply carries no narrative; keep the previous one.
		prev, err := e.store.LatestSuccessfulRun(ctx, trip.ID)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: latest run")
		}
		if out, ok := synthesis.Synthesize(&next, b.items, prev, e.defaultTZ); ok {
			run.Output = out
		}
	}

	if err := e.commit(ctx, cs); err != nil {
		return nil, err
	}

	display, _ := synthesis.Synthesize(&next, b.items, run, e.defaultTZ)
	log.Info("reconcile: batch applied",
		zap.String("mode", string(run.Mode)),
		zap.Int("items_written", len(cs.Items)),
		zap.Bool("replaced", cs.ReplaceItems),
	)
	return &Committed{Run: run, Output: display}, nil
}

func (e *Engine) commit(ctx context.Context, cs store.Changeset) error {
	err := e.store.Commit(ctx, cs)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return staleError(cs.ClosePendingID, "no longer open")
	default:
		return eris.Wrap(err, "reconcile: commit")
	}
}

// planFor turns a validated service response into the plan to apply. A
// clarification becomes a single proposal restricted to the items the
// service named.
func planFor(resp *reconstructor.Response, items []model.ItineraryItem, mode model.IngestMode, client model.ClientContext, inputChars int, meta *model.OutputMeta) (model.PendingPlan, string, error) {
	plan := model.PendingPlan{
		Mode:           mode,
		Client:         client,
		InputCharCount: inputChars,
		Usage:          resp.Usage,
	}
	if resp.Output != nil {
		out := *resp.Output
		out.Meta = meta
		out.SourceStats.InputCharCount = inputChars
		plan.Output = &out
	}

	if resp.Status != reconstructor.StatusNeedsClarification {
		plan.Proposals = resp.Proposals
		return plan, "", nil
	}

	c := resp.Clarification
	if c == nil {
		return plan, "", eris.Wrap(reconstructor.ErrMalformed, "clarification without details")
	}
	ids := knownItems(items, c.Candidates)
	if len(ids) == 0 {
		return plan, "", eris.Wrapf(reconstructor.ErrMalformed, "clarification %s names no known item", c.UpstreamID)
	}

	var update model.ItineraryItem
	if c.Update != nil {
		update = *c.Update
	}
	intent := c.IntentType
	if intent == "" || intent == model.IntentAdd {
		intent = model.IntentUnknown
	}
	plan.Proposals = []model.ProposedItem{{Item: update, Intent: intent}}
	plan.Restricted = ids
	// A question about existing items cannot be answered by replacing them all.
	if plan.Mode == model.ModeRebuild {
		plan.Mode = model.ModeReconcile
	}
	return plan, c.UpstreamID, nil
}

// knownItems maps service references (item IDs or fingerprints) to the IDs of
// visible items.
func knownItems(items []model.ItineraryItem, refs []string) []string {
	live := timeline.Visible(items)
	var ids []string
	for _, ref := range refs {
		for _, it := range live {
			if it.ID == ref || it.Matches(ref) {
				ids = append(ids, it.ID)
				break
			}
		}
	}
	return lo.Uniq(ids)
}

func outcomeLabel(out Outcome, err error) string {
	if err != nil {
		if k := KindOf(err); k != "" {
			return string(k)
		}
		return "error"
	}
	if _, ok := out.(*NeedsClarification); ok {
		return "needs_clarification"
	}
	return "applied"
}
