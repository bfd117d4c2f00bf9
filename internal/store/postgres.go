package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/itinerary-cli/internal/db"
	"github.com/sells-group/itinerary-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_trip":              `SELECT id, title, status, timezone, pending_generation, created_at, updated_at FROM trips WHERE id = $1`,
	"list_items":            `SELECT data FROM trip_items WHERE trip_id = $1 ORDER BY created_at, id`,
	"get_open_pending":      `SELECT ` + pgPendingColumns + ` FROM pending_actions WHERE trip_id = $1 AND status = 'OPEN'`,
	"latest_successful_run": `SELECT ` + pgRunColumns + ` FROM runs WHERE trip_id = $1 AND status = 'SUCCEEDED' ORDER BY created_at DESC, seq DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title              TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'DRAFT',
	timezone           TEXT NOT NULL DEFAULT '',
	pending_generation INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trip_items (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	fingerprint TEXT NOT NULL,
	state       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (trip_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS runs (
	seq              BIGSERIAL,
	id               TEXT PRIMARY KEY,
	trip_id          TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	status           TEXT NOT NULL,
	mode             TEXT NOT NULL,
	input_char_count INTEGER NOT NULL DEFAULT 0,
	output           JSONB,
	error_kind       TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	pending_id       TEXT NOT NULL DEFAULT '',
	usage            JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_actions (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	generation  INTEGER NOT NULL,
	intent_type TEXT NOT NULL,
	candidates  JSONB NOT NULL,
	plan        JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'OPEN',
	upstream_id TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_trip_items_trip ON trip_items(trip_id);
CREATE INDEX IF NOT EXISTS idx_runs_trip_created ON runs(trip_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_one_open ON pending_actions(trip_id) WHERE status = 'OPEN';
`

const (
	pgRunColumns     = `id, trip_id, status, mode, input_char_count, output, error_kind, error_message, pending_id, usage, created_at`
	pgPendingColumns = `id, trip_id, generation, intent_type, candidates, plan, status, upstream_id, created_at, resolved_at`
)

var itemUpsert = db.UpsertConfig{
	Table:        "trip_items",
	Columns:      []string{"id", "trip_id", "fingerprint", "state", "kind", "data", "created_at", "updated_at"},
	ConflictKeys: []string{"id"},
	UpdateCols:   []string{"fingerprint", "state", "kind", "data", "updated_at"},
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTrip(ctx context.Context, title, timezone string) (*model.Trip, error) {
	now := time.Now().UTC()
	trip := &model.Trip{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    model.TripStatusDraft,
		Timezone:  timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO trips (id, title, status, timezone, pending_generation, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		trip.ID, trip.Title, string(trip.Status), trip.Timezone, 0, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert trip")
	}
	return trip, nil
}

func (s *PostgresStore) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	var t model.Trip
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, status, timezone, pending_generation, created_at, updated_at FROM trips WHERE id = $1`,
		tripID,
	).Scan(&t.ID, &t.Title, &status, &t.Timezone, &t.PendingGeneration, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "trip %s", tripID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get trip %s", tripID)
	}
	t.Status = model.TripStatus(status)
	return &t, nil
}

func (s *PostgresStore) ListTrips(ctx context.Context, limit int) ([]model.TripSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.title, t.status, t.timezone, t.pending_generation, t.created_at, t.updated_at,
		        (SELECT COUNT(*) FROM trip_items i WHERE i.trip_id = t.id AND i.state <> 'DISMISSED'),
		        r.created_at, r.status
		 FROM trips t
		 LEFT JOIN LATERAL (
		     SELECT created_at, status FROM runs WHERE trip_id = t.id ORDER BY created_at DESC, seq DESC LIMIT 1
		 ) r ON true
		 ORDER BY t.updated_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trips")
	}
	defer rows.Close()

	var out []model.TripSummary
	for rows.Next() {
		var ts model.TripSummary
		var status string
		var itemCount int64
		var latestStatus *string
		if err := rows.Scan(&ts.ID, &ts.Title, &status, &ts.Timezone, &ts.PendingGeneration,
			&ts.CreatedAt, &ts.UpdatedAt, &itemCount, &ts.LatestRunAt, &latestStatus); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trip")
		}
		ts.Status = model.TripStatus(status)
		ts.ItemCount = int(itemCount)
		if latestStatus != nil {
			ts.LatestRunStatus = model.RunStatus(*latestStatus)
		}
		out = append(out, ts)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list trips iterate")
}

func (s *PostgresStore) ListItems(ctx context.Context, tripID string) ([]model.ItineraryItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM trip_items WHERE trip_id = $1 ORDER BY created_at, id`,
		tripID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list items for trip %s", tripID)
	}
	defer rows.Close()

	var items []model.ItineraryItem
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		it, err := decodeItem(data)
		if err != nil {
			return nil, eris.Wrap(err, "postgres")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list items iterate")
}

func (s *PostgresStore) GetItem(ctx context.Context, tripID, itemID string) (*model.ItineraryItem, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM trip_items WHERE trip_id = $1 AND id = $2`,
		tripID, itemID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get item %s", itemID)
	}
	it, err := decodeItem(data)
	if err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return &it, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TripID != "" {
		query += fmt.Sprintf(` AND trip_id = $%d`, argIdx)
		args = append(args, filter.TripID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC, seq DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LatestSuccessfulRun(ctx context.Context, tripID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE trip_id = $1 AND status = 'SUCCEEDED' ORDER BY created_at DESC, seq DESC LIMIT 1`,
		tripID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) GetPendingAction(ctx context.Context, id string) (*model.PendingAction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgPendingColumns+` FROM pending_actions WHERE id = $1`, id)
	p, err := scanPgPending(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "pending action %s", id)
	}
	return p, err
}

func (s *PostgresStore) GetOpenPendingAction(ctx context.Context, tripID string) (*model.PendingAction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgPendingColumns+` FROM pending_actions WHERE trip_id = $1 AND status = 'OPEN'`, tripID)
	p, err := scanPgPending(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) CountOpenPendingActions(ctx context.Context) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pending_actions WHERE status = 'OPEN'`).Scan(&n)
	return int(n), eris.Wrap(err, "postgres: count open pending actions")
}

func (s *PostgresStore) Commit(ctx context.Context, cs Changeset) error {
	tripID := cs.tripID()
	if tripID == "" {
		return eris.New("postgres: commit: changeset has no trip")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin commit")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()

	if cs.Trip != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE trips SET title = $1, status = $2, timezone = $3, pending_generation = $4, updated_at = $5 WHERE id = $6`,
			cs.Trip.Title, string(cs.Trip.Status), cs.Trip.Timezone, cs.Trip.PendingGeneration, cs.Trip.UpdatedAt.UTC(), cs.Trip.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update trip %s", cs.Trip.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "trip %s", cs.Trip.ID)
		}
	}

	if cs.ClosePendingID != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE pending_actions SET status = 'APPLIED', resolved_at = $1 WHERE id = $2 AND status = 'OPEN'`,
			now, cs.ClosePendingID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: close pending action %s", cs.ClosePendingID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrConflict, "pending action %s is not open", cs.ClosePendingID)
		}
	}

	if cs.SupersedeOpen {
		if _, err := tx.Exec(ctx,
			`UPDATE pending_actions SET status = 'SUPERSEDED', resolved_at = $1 WHERE trip_id = $2 AND status = 'OPEN'`,
			now, tripID,
		); err != nil {
			return eris.Wrapf(err, "postgres: supersede pending actions for trip %s", tripID)
		}
	}

	if cs.ReplaceItems {
		if _, err := tx.Exec(ctx, `DELETE FROM trip_items WHERE trip_id = $1`, tripID); err != nil {
			return eris.Wrapf(err, "postgres: clear items for trip %s", tripID)
		}
	}

	for _, it := range cs.Items {
		row, err := encodeItem(tripID, it)
		if err != nil {
			return eris.Wrap(err, "postgres")
		}
		created := it.CreatedAt
		if created.IsZero() {
			created = now
		}
		if err := db.Upsert(ctx, tx, itemUpsert, []any{
			row.id, row.tripID, row.fingerprint, row.state, row.kind, row.data, created.UTC(), now,
		}); err != nil {
			return eris.Wrapf(err, "postgres: upsert item %s", it.ID)
		}
	}

	if p := cs.OpenPending; p != nil {
		candidates, err := encodeJSON(p.Candidates, "candidates")
		if err != nil {
			return eris.Wrap(err, "postgres")
		}
		plan, err := encodeJSON(p.Plan, "plan")
		if err != nil {
			return eris.Wrap(err, "postgres")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO pending_actions (id, trip_id, generation, intent_type, candidates, plan, status, upstream_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 'OPEN', $7, $8)`,
			p.ID, tripID, p.Generation, string(p.IntentType), candidates, plan, p.UpstreamID, p.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert pending action %s", p.ID)
		}
	}

	if r := cs.Run; r != nil {
		output, err := encodeOutput(r.Output)
		if err != nil {
			return eris.Wrap(err, "postgres")
		}
		usage, err := encodeJSON(r.Usage, "usage")
		if err != nil {
			return eris.Wrap(err, "postgres")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO runs (`+pgRunColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ID, tripID, string(r.Status), string(r.Mode), r.InputCharCount, output,
			r.ErrorKind, r.ErrorMessage, r.PendingID, usage, r.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert run %s", r.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status, mode string
	var output, usage []byte

	err := row.Scan(&r.ID, &r.TripID, &status, &mode, &r.InputCharCount, &output,
		&r.ErrorKind, &r.ErrorMessage, &r.PendingID, &usage, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.RunStatus(status)
	r.Mode = model.IngestMode(mode)

	if r.Output, err = decodeOutput(output); err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	if err := decodeJSON(usage, &r.Usage, "usage"); err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return &r, nil
}

func scanPgPending(row pgx.Row) (*model.PendingAction, error) {
	var p model.PendingAction
	var intent, status string
	var candidates, plan []byte

	err := row.Scan(&p.ID, &p.TripID, &p.Generation, &intent, &candidates, &plan,
		&status, &p.UpstreamID, &p.CreatedAt, &p.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan pending action")
	}
	p.IntentType = model.IntentType(intent)
	p.Status = model.PendingStatus(status)
	if err := decodeJSON(candidates, &p.Candidates, "candidates"); err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	if err := decodeJSON(plan, &p.Plan, "plan"); err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return &p, nil
}
