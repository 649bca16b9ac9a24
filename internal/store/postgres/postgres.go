// Package postgres is the store driver for PostgreSQL, using the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
	"github.com/KushagraAgarwal525/racoon/internal/store/migrations"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New migrates the database at dsn and returns a store over it.
func New(dsn string) (store.Store, error) {
	mdb, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres for migrations: %w", err)
	}
	if err := migrations.UpPostgres(mdb); err != nil {
		return nil, err
	}
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Begin(ctx context.Context) (store.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &txn{db: s.db}, nil
}

func (s *pgStore) Daily() store.Aggregates   { return &aggregates{db: s.db, kind: model.KindDaily} }
func (s *pgStore) History() store.Aggregates { return &aggregates{db: s.db, kind: model.KindHistory} }
func (s *pgStore) Tasks() store.Tasks        { return &tasks{db: s.db} }
func (s *pgStore) Users() store.Users        { return &users{db: s.db} }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *pgStore) Close() error { return s.db.Close() }

// Bootstrap performs a connectivity check to ensure Postgres is reachable.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}

	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.PingContext(ctx)
}

func tableFor(kind model.AggregateKind) string {
	if kind == model.KindHistory {
		return "history_aggregates"
	}
	return "daily_aggregates"
}

// Serialization failures, deadlocks and unique violations all mean another writer won.
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"23505": true, // unique_violation
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	}
	return err
}

func encodeCategories(m map[string]int) string {
	if m == nil {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeCategories(b []byte) (map[string]int, error) {
	out := map[string]int{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return out, nil
}

// --- Txn ---

type pendingAgg struct {
	kind model.AggregateKind
	agg  *model.DayAggregate
}

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

// Commit applies the write set in one database transaction. Aggregate updates are
// conditional on the version read earlier; inserts rely on primary keys.
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
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        `, p.TaskID, p.UserID, p.ProcessedAt.UTC(), p.TotalTime, p.ProductiveTime,
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
            VALUES ($1,$2,$3,$4,$5,$6,1)
        `, a.UserID, a.Date, a.ProductiveTime, a.TotalTime, encodeCategories(a.Categories), a.LastUpdated.UTC())
		return mapErr(err)
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE `+table+`
        SET productive_time=$1, total_time=$2, categories=$3, last_updated=$4, version=version+1
        WHERE user_id=$5 AND date_key=$6 AND version=$7
    `, a.ProductiveTime, a.TotalTime, encodeCategories(a.Categories), a.LastUpdated.UTC(),
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
	var cats []byte
	if err := row.Scan(&out.UserID, &out.Date, &out.ProductiveTime, &out.TotalTime, &cats, &out.LastUpdated, &out.Version); err != nil {
		return nil, err
	}
	var err error
	if out.Categories, err = decodeCategories(cats); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *aggregates) Get(ctx context.Context, userID, dayKey string) (*model.DayAggregate, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+aggColumns+` FROM `+tableFor(a.kind)+` WHERE user_id=$1 AND date_key=$2`, userID, dayKey)
	out, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s aggregate %s/%s", model.ErrNotFound, a.kind, userID, dayKey)
	}
	return out, err
}

func (a *aggregates) ListByDay(ctx context.Context, dayKey string) ([]*model.DayAggregate, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT `+aggColumns+` FROM `+tableFor(a.kind)+` WHERE date_key=$1 ORDER BY user_id`, dayKey)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (a *aggregates) ListForUser(ctx context.Context, userID string, dayKeys []string) ([]*model.DayAggregate, error) {
	if len(dayKeys) == 0 {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+aggColumns+` FROM `+tableFor(a.kind)+` WHERE user_id=$1 AND date_key = ANY($2)`, userID, dayKeys)
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
	var cats []byte
	row := t.db.QueryRowContext(ctx, `
        SELECT task_id, user_id, processed_at, total_time, productive_time, categories, application_name, client_timestamp
        FROM processed_tasks WHERE task_id=$1
    `, taskID)
	err := row.Scan(&out.TaskID, &out.UserID, &out.ProcessedAt, &out.TotalTime, &out.ProductiveTime, &cats, &out.ApplicationName, &out.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", model.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	if out.Categories, err = decodeCategories(cats); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	var created time.Time
	row := u.db.QueryRowContext(ctx, `
        INSERT INTO users (user_id, display_name, email, photo_url)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time
    `, m.UserID, m.DisplayName, m.Email, m.PhotoURL)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.CreationTime = created
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, display_name, email, photo_url, creation_time
        FROM users WHERE user_id=$1
    `, userID)
	err := row.Scan(&out.UserID, &out.DisplayName, &out.Email, &out.PhotoURL, &out.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
