// Package reconcile applies free-text trip updates to a stored itinerary.
// It owns the per-trip clarification lifecycle: an ambiguous update is
// suspended as a pending action until the user picks the item it meant.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/itinerary-cli/internal/cost"
	"github.com/sells-group/itinerary-cli/internal/lock"
	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/monitoring"
	"github.com/sells-group/itinerary-cli/internal/reconstructor"
	"github.com/sells-group/itinerary-cli/internal/store"
	"github.com/sells-group/itinerary-cli/internal/synthesis"
	"github.com/sells-group/itinerary-cli/internal/timeline"
)

const (
	defaultMaxRawChars = 60000
	defaultTimeout     = 90 * time.Second
	historyLimit       = 50
)

// Engine is the reconciliation entry point. Mutating operations on one trip
// are serialized through the locker; reads never lock.
type Engine struct {
	store   store.Store
	svc     reconstructor.Service
	locker  lock.Locker
	metrics *monitoring.Metrics
	pricer  *cost.Calculator

	maxRawChars int
	defaultTZ   string
	timeout     time.Duration
	now         func() time.Time
}

// New creates an engine. A nil locker means in-process locking.
func New(st store.Store, svc reconstructor.Service, locker lock.Locker, opts ...Option) *Engine {
	if locker == nil {
		locker = lock.NewLocal()
	}
	e := &Engine{
		store:       st,
		svc:         svc,
		locker:      locker,
		pricer:      cost.NewCalculator(nil),
		maxRawChars: defaultMaxRawChars,
		defaultTZ:   "UTC",
		timeout:     defaultTimeout,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// TripView is everything a client needs to render one trip.
type TripView struct {
	Trip      *model.Trip                 `json:"trip"`
	LatestRun *model.Run                  `json:"latest_run,omitempty"`
	Runs      []model.Run                 `json:"runs"`
	Items     []model.ItineraryItem       `json:"items"`
	Pending   *model.PendingAction        `json:"pending_action,omitempty"`
	Display   *model.ReconstructionOutput `json:"display,omitempty"`
}

// CreateTrip starts an empty trip. A blank title becomes "Untitled Trip".
func (e *Engine) CreateTrip(ctx context.Context, title, timezone string) (*model.Trip, error) {
	t, err := e.store.CreateTrip(ctx, normalizeTitle(title), timezone)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: create trip")
	}
	zap.L().Info("reconcile: trip created", zap.String("trip_id", t.ID), zap.String("title", t.Title))
	return t, nil
}

// RenameTrip changes a trip's title. A blank title becomes "Untitled Trip".
func (e *Engine) RenameTrip(ctx context.Context, tripID, title string) (*model.Trip, error) {
	unlock, err := e.locker.Lock(ctx, tripID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: lock trip %s", tripID)
	}
	defer unlock()

	t, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, storeError(err, "get trip "+tripID)
	}
	t.Title = normalizeTitle(title)
	t.UpdatedAt = e.now().UTC()
	if err := e.store.Commit(ctx, store.Changeset{Trip: t}); err != nil {
		return nil, storeError(err, "rename trip "+tripID)
	}
	return t, nil
}

// ListTrips returns trips, most recently updated first.
func (e *Engine) ListTrips(ctx context.Context, limit int) ([]model.TripSummary, error) {
	trips, err := e.store.ListTrips(ctx, limit)
	return trips, eris.Wrap(err, "reconcile: list trips")
}

// FetchTrip loads a trip and its display output. It reads the last committed
// state without taking the trip lock.
func (e *Engine) FetchTrip(ctx context.Context, tripID string) (*TripView, error) {
	view := &TripView{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := e.store.GetTrip(gctx, tripID)
		if err != nil {
			return storeError(err, "get trip "+tripID)
		}
		view.Trip = t
		return nil
	})
	g.Go(func() error {
		items, err := e.store.ListItems(gctx, tripID)
		if err != nil {
			return eris.Wrap(err, "reconcile: list items")
		}
		view.Items = items
		return nil
	})
	g.Go(func() error {
		r, err := e.store.LatestSuccessfulRun(gctx, tripID)
		if err != nil {
			return eris.Wrap(err, "reconcile: latest run")
		}
		view.LatestRun = r
		return nil
	})
	g.Go(func() error {
		runs, err := e.store.ListRuns(gctx, store.RunFilter{TripID: tripID, Limit: historyLimit})
		if err != nil {
			return eris.Wrap(err, "reconcile: list runs")
		}
		view.Runs = runs
		return nil
	})
	g.Go(func() error {
		p, err := e.store.GetOpenPendingAction(gctx, tripID)
		if err != nil {
			return eris.Wrap(err, "reconcile: open pending action")
		}
		view.Pending = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	timeline.SortItems(view.Items)
	if out, ok := synthesis.Synthesize(view.Trip, view.Items, view.LatestRun, e.defaultTZ); ok {
		view.Display = out
	}
	return view, nil
}

// SetItemState confirms or dismisses one item. Dismissed items leave the
// timeline but stay stored.
func (e *Engine) SetItemState(ctx context.Context, tripID, itemID string, state model.ItemState) (*model.ItineraryItem, error) {
	if !state.Valid() {
		return nil, validationError("unknown item state " + string(state))
	}

	unlock, err := e.locker.Lock(ctx, tripID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: lock trip %s", tripID)
	}
	defer unlock()

	it, err := e.store.GetItem(ctx, tripID, itemID)
	if err != nil {
		return nil, storeError(err, "get item "+itemID)
	}
	if it.State == state {
		return it, nil
	}
	it.State = state
	it.UpdatedAt = e.now().UTC()
	if err := e.store.Commit(ctx, store.Changeset{TripID: tripID, Items: []model.ItineraryItem{*it}}); err != nil {
		return nil, eris.Wrapf(err, "reconcile: set state of item %s", itemID)
	}
	zap.L().Info("reconcile: item state changed",
		zap.String("trip_id", tripID),
		zap.String("item_id", itemID),
		zap.String("state", string(state)),
	)
	return it, nil
}

// Reconstruct organizes raw text into an itinerary without a trip. Nothing
// is persisted.
func (e *Engine) Reconstruct(ctx context.Context, rawText string, client model.ClientContext) (*model.ReconstructionOutput, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, inputError("raw text is blank")
	}
	text, meta := e.truncate(rawText)
	client = e.clientContext(client)

	resp, err := e.call(ctx, reconstructor.Request{
		RawText: text,
		Client:  e.withTimezone(client, nil),
		Mode:    model.ModeRebuild,
	})
	if err != nil {
		return nil, upstreamError(err)
	}
	if resp.Status != reconstructor.StatusOK || resp.Output == nil {
		return nil, upstreamError(eris.Wrap(reconstructor.ErrMalformed, "stateless reconstruction needs a complete itinerary"))
	}

	b := newBatch("", nil, model.ModeRebuild, e.now().UTC())
	b.run(model.PendingPlan{Mode: model.ModeRebuild, Proposals: resp.Proposals})
	live := timeline.Visible(b.items)

	out := *resp.Output
	out.Days = timeline.BuildDays(live)
	out.DateRange.StartLocalDate, out.DateRange.EndLocalDate = timeline.Span(out.Days)
	if out.DateRange.Timezone == "" {
		out.DateRange.Timezone = e.withTimezone(client, nil).Timezone
	}
	out.SourceStats = sourceStats(rawText, live)
	out.Meta = meta

	usage := resp.Usage
	e.pricer.Price(&usage)
	zap.L().Info("reconcile: stateless reconstruction",
		zap.Int("items", len(live)),
		zap.Bool("truncated", meta.RawTextTruncated),
		zap.Float64("cost_usd", usage.CostUSD),
	)
	return &out, nil
}

// call invokes the service under the configured deadline.
func (e *Engine) call(ctx context.Context, req reconstructor.Request) (*reconstructor.Response, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := e.svc.Reconstruct(ctx, req)
	e.metrics.ServiceCall(time.Since(start), err)
	if err == nil && resp == nil {
		err = eris.Wrap(reconstructor.ErrMalformed, "empty response")
	}
	return resp, err
}

// truncate keeps the newest maxRawChars characters.
func (e *Engine) truncate(raw string) (string, *model.OutputMeta) {
	runes := []rune(raw)
	if e.maxRawChars <= 0 || len(runes) <= e.maxRawChars {
		return raw, &model.OutputMeta{}
	}
	omitted := len(runes) - e.maxRawChars
	return string(runes[omitted:]), &model.OutputMeta{RawTextTruncated: true, RawTextOmittedChars: omitted}
}

// clientContext fills in the client's clock when the caller did not send one.
func (e *Engine) clientContext(c model.ClientContext) model.ClientContext {
	if c.NowISO == "" {
		c.NowISO = e.now().UTC().Format(time.RFC3339)
	}
	return c
}

// withTimezone resolves the timezone sent to the service: client, then trip,
// then the configured default.
func (e *Engine) withTimezone(c model.ClientContext, trip *model.Trip) model.ClientContext {
	switch {
	case c.Timezone != "":
	case trip != nil && trip.Timezone != "":
		c.Timezone = trip.Timezone
	default:
		c.Timezone = e.defaultTZ
	}
	return c
}

func (e *Engine) recordFailure(ctx context.Context, tripID string, mode model.IngestMode, inputChars int, cause error) {
	run := &model.Run{
		ID:             uuid.NewString(),
		TripID:         tripID,
		Status:         model.RunStatusFailed,
		Mode:           mode,
		InputCharCount: inputChars,
		ErrorKind:      string(KindUpstream),
		ErrorMessage:   cause.Error(),
		CreatedAt:      e.now().UTC(),
	}
	// The caller's context may be the one that expired.
	if err := e.store.Commit(context.WithoutCancel(ctx), store.Changeset{TripID: tripID, Run: run}); err != nil {
		zap.L().Error("reconcile: failed to record failed run",
			zap.String("trip_id", tripID),
			zap.Error(err),
		)
	}
}

func normalizeTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return model.DefaultTripTitle
}

func sourceStats(rawText string, live []model.ItineraryItem) model.SourceStats {
	stats := model.SourceStats{
		InputCharCount:     len([]rune(rawText)),
		ExtractedItemCount: len(live),
	}
	for _, it := range live {
		if it.IsInferred {
			stats.InferredItemCount++
		}
	}
	return stats
}
