// Package sqlite is the single-node store driver backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
	"github.com/KushagraAgarwal525/racoon/internal/store/migrations"
)

// New migrates the database at path and returns a store over it.
func New(path string) (store.Store, error) {
	mdb, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite for migrations: %w", err)
	}
	if err := migrations.UpSQLite(mdb); err != nil {
		return nil, err
	}
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already-migrated database.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Begin(ctx context.Context) (store.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &txn{db: s.db}, nil
}

func (s *sqliteStore) Daily() store.Aggregates   { return &aggregates{db: s.db, kind: model.KindDaily} }
func (s *sqliteStore) History() store.Aggregates { return &aggregates{db: s.db, kind: model.KindHistory} }
func (s *sqliteStore) Tasks() store.Tasks        { return &tasks{db: s.db} }
func (s *sqliteStore) Users() store.Users        { return &users{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func tableFor(kind model.AggregateKind) string {
	if kind == model.KindHistory {
		return "history_aggregates"
	}
	return "daily_aggregates"
}

// mapErr folds lock contention and uniqueness violations into model.ErrConflict.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %v", model.ErrConflict, err)
		}
	}
	return err
}

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func encodeCategories(m map[string]int) string {
	if m == nil {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeCategories(s string) (map[string]int, error) {
	out := map[string]int{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return out, nil
}

// --- Txn ---

type pendingAgg struct {
	kind model.AggregateKind
	agg  *model.DayAggregate
}

// txn reads through the pool and validates versions when the write set is applied.
type txn struct {
	db    *sql.DB
	aggs  []pendingAgg
	tasks []*model.ProcessedTask
	done  bool
}

func (t *txn) Task(ctx context.Context, taskID string) (*model.ProcessedTask, error) {
	return (&tasks{db: t.db}).Get(ctx, taskID)
}

func (t *txn) Aggregate(ctx context.Context, kind model.AggregateKind, userID, dayKey string) (*model.DayAggregate, error) {
	return (&aggregates{db: t.db, kind: kind}).Get(ctx, userID, dayKey)
}

func (t *txn) PutAggregate(kind model.AggregateKind, a *model.DayAggregate) {
	t.aggs = append(t.aggs, pendingAgg{kind: kind, agg: a.Clone()})
}

func (t *txn) PutTask(p *model.ProcessedTask) {
	cp := *p
	t.tasks = append(t.tasks, &cp)
}

func (t *txn) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range t.tasks {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO processed_tasks (task_id, user_id, processed_at, total_time, productive_time, categories, application_name, client_timestamp)
            VALUES (?,?,?,?,?,?,?,?)
        `, p.TaskID, p.UserID, encodeTime(p.ProcessedAt), p.TotalTime, p.ProductiveTime,
			encodeCategories(p.Categories), p.ApplicationName, p.Timestamp)
		if err != nil {
			return mapErr(err)
		}
	}
	for _, w := range t.aggs {
		if err := putAggregate(ctx, tx, w.kind, w.agg); err != nil {
			return err
		}
	}
	return mapErr(tx.Commit())
}

func (t *txn) Rollback() { t.done = true }

func putAggregate(ctx context.Context, tx *sql.Tx, kind model.AggregateKind, a *model.DayAggregate) error {
	table := tableFor(kind)
	if a.Version == 0 {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO `+table+` (user_id, date_key, productive_time, total_time, categories, last_updated, version)
            VALUES (?,?,?,?,?,?,1)
        `, a.UserID, a.Date, a.ProductiveTime, a.TotalTime, encodeCategories(a.Categories), encodeTime(a.LastUpdated))
		return mapErr(err)
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE `+table+`
        SET productive_time=?, total_time=?, categories=?, last_updated=?, version=version+1
        WHERE user_id=? AND date_key=? AND version=?
    `, a.ProductiveTime, a.TotalTime, encodeCategories(a.Categories), encodeTime(a.LastUpdated),
		a.UserID, a.Date, a.Version)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s/%s moved past version %d", model.ErrConflict, kind, a.UserID, a.Date, a.Version)
	}
	return nil
}

// --- Aggregates ---

type aggregates struct {
	db   *sql.DB
	kind model.AggregateKind
}

const aggColumns = `user_id, date_key, productive_time, total_time, categories, last_updated, version`

type scanner interface{ Scan(dest ...any) error }

func scanAggregate(row scanner) (*model.DayAggregate, error) {
	var out model.DayAggregate
	var cats, last string
	if err := row.Scan(&out.UserID, &out.Date, &out.ProductiveTime, &out.TotalTime, &cats, &last, &out.Version); err != nil {
		return nil, err
	}
	var err error
	if out.Categories, err = decodeCategories(cats); err != nil {
		return nil, err
	}
	if out.LastUpdated, err = decodeTime(last); err != nil {
		return nil, fmt.Errorf("decode last_updated: %w", err)
	}
	return &out, nil
}

func (a *aggregates) Get(ctx context.Context, userID, dayKey string) (*model.DayAggregate, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+aggColumns+` FROM `+tableFor(a.kind)+` WHERE user_id=? AND date_key=?`, userID, dayKey)
	out, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s aggregate %s/%s", model.ErrNotFound, a.kind, userID, dayKey)
	}
	return out, err
}

func (a *aggregates) ListByDay(ctx context.Context, dayKey string) ([]*model.DayAggregate, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT `+aggColumns+` FROM `+tableFor(a.kind)+` WHERE date_key=? ORDER BY user_id`, dayKey)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (a *aggregates) ListForUser(ctx context.Context, userID string, dayKeys []string) ([]*model.DayAggregate, error) {
	if len(dayKeys) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(dayKeys)+1)
	args = append(args, userID)
	for _, d := range dayKeys {
		args = append(args, d)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dayKeys)), ",")
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+aggColumns+` FROM `+tableFor(a.kind)+` WHERE user_id=? AND date_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*model.DayAggregate, error) {
	defer rows.Close()
	var out []*model.DayAggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Tasks ---

type tasks struct{ db *sql.DB }

func (t *tasks) Get(ctx context.Context, taskID string) (*model.ProcessedTask, error) {
	var out model.ProcessedTask
	var processed, cats string
	row := t.db.QueryRowContext(ctx, `
        SELECT task_id, user_id, processed_at, total_time, productive_time, categories, application_name, client_timestamp
        FROM processed_tasks WHERE task_id=?
    `, taskID)
	err := row.Scan(&out.TaskID, &out.UserID, &processed, &out.TotalTime, &out.ProductiveTime, &cats, &out.ApplicationName, &out.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", model.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	if out.ProcessedAt, err = decodeTime(processed); err != nil {
		return nil, fmt.Errorf("decode processed_at: %w", err)
	}
	if out.Categories, err = decodeCategories(cats); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	if out.CreationTime.IsZero() {
		out.CreationTime = time.Now().UTC()
	}
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO users (user_id, display_name, email, photo_url, creation_time)
        VALUES (?,?,?,?,?)
    `, out.UserID, out.DisplayName, out.Email, out.PhotoURL, encodeTime(out.CreationTime))
	if err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	var created string
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, display_name, email, photo_url, creation_time FROM users WHERE user_id=?
    `, userID)
	err := row.Scan(&out.UserID, &out.DisplayName, &out.Email, &out.PhotoURL, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	if out.CreationTime, err = decodeTime(created); err != nil {
		return nil, fmt.Errorf("decode creation_time: %w", err)
	}
	return &out, nil
}
