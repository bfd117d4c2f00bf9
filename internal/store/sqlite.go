package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/itinerary-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'DRAFT',
	timezone           TEXT NOT NULL DEFAULT '',
	pending_generation INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS trip_items (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id),
	fingerprint TEXT NOT NULL,
	state       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (trip_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	trip_id          TEXT NOT NULL REFERENCES trips(id),
	status           TEXT NOT NULL,
	mode             TEXT NOT NULL,
	input_char_count INTEGER NOT NULL DEFAULT 0,
	output           TEXT,
	error_kind       TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	pending_id       TEXT NOT NULL DEFAULT '',
	usage            TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pending_actions (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id),
	generation  INTEGER NOT NULL,
	intent_type TEXT NOT NULL,
	candidates  TEXT NOT NULL,
	plan        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'OPEN',
	upstream_id TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trip_items_trip ON trip_items(trip_id);
CREATE INDEX IF NOT EXISTS idx_runs_trip_created ON runs(trip_id, created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_one_open ON pending_actions(trip_id) WHERE status = 'OPEN';
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTrip(ctx context.Context, title, timezone string) (*model.Trip, error) {
	now := time.Now().UTC()
	trip := &model.Trip{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    model.TripStatusDraft,
		Timezone:  timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trips (id, title, status, timezone, pending_generation, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.Title, string(trip.Status), trip.Timezone, 0, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert trip")
	}
	return trip, nil
}

func (s *SQLiteStore) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, timezone, pending_generation, created_at, updated_at FROM trips WHERE id = ?`,
		tripID,
	)
	var t model.Trip
	err := row.Scan(&t.ID, &t.Title, &t.Status, &t.Timezone, &t.PendingGeneration, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "trip %s", tripID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get trip %s", tripID)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTrips(ctx context.Context, limit int) ([]model.TripSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.status, t.timezone, t.pending_generation, t.created_at, t.updated_at,
		        (SELECT COUNT(*) FROM trip_items i WHERE i.trip_id = t.id AND i.state != 'DISMISSED'),
		        r.created_at, r.status
		 FROM trips t
		 LEFT JOIN runs r ON r.id = (
		     SELECT id FROM runs WHERE trip_id = t.id ORDER BY created_at DESC, rowid DESC LIMIT 1
		 )
		 ORDER BY t.updated_at DESC, t.rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trips")
	}
	defer rows.Close()

	var out []model.TripSummary
	for rows.Next() {
		var ts model.TripSummary
		var latestAt sql.NullTime
		var latestStatus sql.NullString
		if err := rows.Scan(&ts.ID, &ts.Title, &ts.Status, &ts.Timezone, &ts.PendingGeneration,
			&ts.CreatedAt, &ts.UpdatedAt, &ts.ItemCount, &latestAt, &latestStatus); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trip")
		}
		if latestAt.Valid {
			at := latestAt.Time
			ts.LatestRunAt = &at
		}
		ts.LatestRunStatus = model.RunStatus(latestStatus.String)
		out = append(out, ts)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list trips iterate")
}

func (s *SQLiteStore) ListItems(ctx context.Context, tripID string) ([]model.ItineraryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM trip_items WHERE trip_id = ? ORDER BY created_at, id`,
		tripID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list items for trip %s", tripID)
	}
	defer rows.Close()

	var items []model.ItineraryItem
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		it, err := decodeItem([]byte(data))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list items iterate")
}

func (s *SQLiteStore) GetItem(ctx context.Context, tripID, itemID string) (*model.ItineraryItem, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM trip_items WHERE trip_id = ? AND id = ?`,
		tripID, itemID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %s", itemID)
	}
	it, err := decodeItem([]byte(data))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite")
	}
	return &it, nil
}

const sqliteRunColumns = `id, trip_id, status, mode, input_char_count, output, error_kind, error_message, pending_id, usage, created_at`

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.TripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, filter.TripID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LatestSuccessfulRun(ctx context.Context, tripID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE trip_id = ? AND status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		tripID, string(model.RunStatusSucceeded),
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

const sqlitePendingColumns = `id, trip_id, generation, intent_type, candidates, plan, status, upstream_id, created_at, resolved_at`

func (s *SQLiteStore) GetPendingAction(ctx context.Context, id string) (*model.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePendingColumns+` FROM pending_actions WHERE id = ?`, id)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "pending action %s", id)
	}
	return p, err
}

func (s *SQLiteStore) GetOpenPendingAction(ctx context.Context, tripID string) (*model.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePendingColumns+` FROM pending_actions WHERE trip_id = ? AND status = ?`,
		tripID, string(model.PendingOpen))
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) CountOpenPendingActions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE status = ?`, string(model.PendingOpen),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count open pending actions")
}

func (s *SQLiteStore) Commit(ctx context.Context, cs Changeset) error {
	tripID := cs.tripID()
	if tripID == "" {
		return eris.New("sqlite: commit: changeset has no trip")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin commit")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	if cs.Trip != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE trips SET title = ?, status = ?, timezone = ?, pending_generation = ?, updated_at = ? WHERE id = ?`,
			cs.Trip.Title, string(cs.Trip.Status), cs.Trip.Timezone, cs.Trip.PendingGeneration, cs.Trip.UpdatedAt.UTC(), cs.Trip.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update trip %s", cs.Trip.ID)
		}
		if err := checkRowsAffected(res, "trip", cs.Trip.ID); err != nil {
			return err
		}
	}

	if cs.ClosePendingID != "" {
		res, err := tx.ExecContext(ctx,
			`UPDATE pending_actions SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
			string(model.PendingApplied), now, cs.ClosePendingID, string(model.PendingOpen),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: close pending action %s", cs.ClosePendingID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return eris.Wrapf(ErrConflict, "pending action %s is not open", cs.ClosePendingID)
		}
	}

	if cs.SupersedeOpen {
		if _, err := tx.ExecContext(ctx,
			`UPDATE pending_actions SET status = ?, resolved_at = ? WHERE trip_id = ? AND status = ?`,
			string(model.PendingSuperseded), now, tripID, string(model.PendingOpen),
		); err != nil {
			return eris.Wrapf(err, "sqlite: supersede pending actions for trip %s", tripID)
		}
	}

	if cs.ReplaceItems {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trip_items WHERE trip_id = ?`, tripID); err != nil {
			return eris.Wrapf(err, "sqlite: clear items for trip %s", tripID)
		}
	}

	for _, it := range cs.Items {
		row, err := encodeItem(tripID, it)
		if err != nil {
			return eris.Wrap(err, "sqlite")
		}
		created := it.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trip_items (id, trip_id, fingerprint, state, kind, data, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   fingerprint = excluded.fingerprint, state = excluded.state, kind = excluded.kind,
			   data = excluded.data, updated_at = excluded.updated_at`,
			row.id, row.tripID, row.fingerprint, row.state, row.kind, string(row.data), created.UTC(), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert item %s", it.ID)
		}
	}

	if p := cs.OpenPending; p != nil {
		candidates, err := encodeJSON(p.Candidates, "candidates")
		if err != nil {
			return eris.Wrap(err, "sqlite")
		}
		plan, err := encodeJSON(p.Plan, "plan")
		if err != nil {
			return eris.Wrap(err, "sqlite")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_actions (id, trip_id, generation, intent_type, candidates, plan, status, upstream_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, tripID, p.Generation, string(p.IntentType), string(candidates), string(plan),
			string(model.PendingOpen), p.UpstreamID, p.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert pending action %s", p.ID)
		}
	}

	if r := cs.Run; r != nil {
		output, err := encodeOutput(r.Output)
		if err != nil {
			return eris.Wrap(err, "sqlite")
		}
		usage, err := encodeJSON(r.Usage, "usage")
		if err != nil {
			return eris.Wrap(err, "sqlite")
		}
		var outputArg any
		if output != nil {
			outputArg = string(output)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (`+sqliteRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, tripID, string(r.Status), string(r.Mode), r.InputCharCount, outputArg,
			r.ErrorKind, r.ErrorMessage, r.PendingID, string(usage), r.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var output, usage sql.NullString

	err := row.Scan(&r.ID, &r.TripID, &r.Status, &r.Mode, &r.InputCharCount, &output,
		&r.ErrorKind, &r.ErrorMessage, &r.PendingID, &usage, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if output.Valid {
		if r.Output, err = decodeOutput([]byte(output.String)); err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
	}
	if usage.Valid {
		if err := decodeJSON([]byte(usage.String), &r.Usage, "usage"); err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
	}
	return &r, nil
}

func scanPending(row scannable) (*model.PendingAction, error) {
	var p model.PendingAction
	var candidates, plan string
	var resolvedAt sql.NullTime

	err := row.Scan(&p.ID, &p.TripID, &p.Generation, &p.IntentType, &candidates, &plan,
		&p.Status, &p.UpstreamID, &p.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pending action")
	}
	if err := decodeJSON([]byte(candidates), &p.Candidates, "candidates"); err != nil {
		return nil, eris.Wrap(err, "sqlite")
	}
	if err := decodeJSON([]byte(plan), &p.Plan, "plan"); err != nil {
		return nil, eris.Wrap(err, "sqlite")
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		p.ResolvedAt = &at
	}
	return &p, nil
}
