// Package spanner is the distributed store driver backed by Cloud Spanner.
package spanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// Config holds Spanner connection configuration.
type Config struct {
	ProjectID  string
	InstanceID string
	DatabaseID string
}

// DatabasePath returns projects/<p>/instances/<i>/databases/<d>.
func (c Config) DatabasePath() string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", c.ProjectID, c.InstanceID, c.DatabaseID)
}

// New creates a Spanner client for cfg and returns a store over it.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (store.Store, error) {
	if cfg.ProjectID == "" || cfg.InstanceID == "" || cfg.DatabaseID == "" {
		return nil, fmt.Errorf("all Spanner config fields are required")
	}
	client, err := spanner.NewClient(ctx, cfg.DatabasePath(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spanner client: %w", err)
	}
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client. The store owns it and closes it on Close.
func NewWithClient(client *spanner.Client) store.Store { return &spannerStore{client: client} }

type spannerStore struct{ client *spanner.Client }

func (s *spannerStore) Begin(ctx context.Context) (store.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &txn{client: s.client}, nil
}

func (s *spannerStore) Daily() store.Aggregates {
	return &aggregates{client: s.client, kind: model.KindDaily}
}
func (s *spannerStore) History() store.Aggregates {
	return &aggregates{client: s.client, kind: model.KindHistory}
}
func (s *spannerStore) Tasks() store.Tasks { return &tasks{client: s.client} }
func (s *spannerStore) Users() store.Users { return &users{client: s.client} }

// HealthPing runs SELECT 1 on a single-use read-only transaction.
func (s *spannerStore) HealthPing(ctx context.Context) error {
	iter := s.client.Single().Query(ctx, spanner.Statement{SQL: "SELECT 1"})
	defer iter.Stop()

	if _, err := iter.Next(); err != nil {
		return fmt.Errorf("spanner health check failed: %w", err)
	}
	return nil
}

func (s *spannerStore) Close() error {
	s.client.Close()
	return nil
}

func tableFor(kind model.AggregateKind) string {
	if kind == model.KindHistory {
		return "HistoryAggregates"
	}
	return "DailyAggregates"
}

func mapErr(err error) error {
	if err == nil || errors.Is(err, model.ErrConflict) {
		return err
	}
	switch spanner.ErrCode(err) {
	case codes.Aborted, codes.AlreadyExists:
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

var (
	aggColumns  = []string{"UserId", "DateKey", "ProductiveTime", "TotalTime", "Categories", "LastUpdated", "Version"}
	taskColumns = []string{"TaskId", "UserId", "ProcessedAt", "TotalTime", "ProductiveTime", "Categories", "ApplicationName", "ClientTimestamp"}
	userColumns = []string{"UserId", "DisplayName", "Email", "PhotoUrl", "CreationTime"}
)

type pendingAgg struct {
	kind model.AggregateKind
	agg  *model.DayAggregate
}

// txn reads with strong single-use reads; Commit re-validates versions inside a
// read-write transaction before buffering the mutations.
type txn struct {
	client *spanner.Client
	aggs   []pendingAgg
	tasks  []*model.ProcessedTask
	done   bool
}

func (t *txn) Task(ctx context.Context, taskID string) (*model.ProcessedTask, error) {
	return (&tasks{client: t.client}).Get(ctx, taskID)
}

func (t *txn) Aggregate(ctx context.Context, kind model.AggregateKind, userID, dayKey string) (*model.DayAggregate, error) {
	return (&aggregates{client: t.client, kind: kind}).Get(ctx, userID, dayKey)
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

	_, err := t.client.ReadWriteTransaction(ctx, func(ctx context.Context, rw *spanner.ReadWriteTransaction) error {
		var muts []*spanner.Mutation
		for _, p := range t.tasks {
			_, err := rw.ReadRow(ctx, "ProcessedTasks", spanner.Key{p.TaskID}, []string{"TaskId"})
			if err == nil {
				return fmt.Errorf("%w: task %s already recorded", model.ErrConflict, p.TaskID)
			}
			if spanner.ErrCode(err) != codes.NotFound {
				return err
			}
			muts = append(muts, spanner.Insert("ProcessedTasks", taskColumns, []interface{}{
				p.TaskID, p.UserID, p.ProcessedAt.UTC(), int64(p.TotalTime), int64(p.ProductiveTime),
				encodeCategories(p.Categories), p.ApplicationName, p.Timestamp,
			}))
		}

		for _, w := range t.aggs {
			a := w.agg
			table := tableFor(w.kind)
			var cur int64
			row, err := rw.ReadRow(ctx, table, spanner.Key{a.UserID, a.Date}, []string{"Version"})
			switch {
			case err == nil:
				if err := row.Columns(&cur); err != nil {
					return err
				}
			case spanner.ErrCode(err) == codes.NotFound:
			default:
				return err
			}
			if cur != a.Version {
				return fmt.Errorf("%w: %s %s/%s at version %d, expected %d",
					model.ErrConflict, w.kind, a.UserID, a.Date, cur, a.Version)
			}
			muts = append(muts, spanner.InsertOrUpdate(table, aggColumns, []interface{}{
				a.UserID, a.Date, int64(a.ProductiveTime), int64(a.TotalTime),
				encodeCategories(a.Categories), a.LastUpdated.UTC(), a.Version + 1,
			}))
		}
		return rw.BufferWrite(muts)
	})
	return mapErr(err)
}

func (t *txn) Rollback() { t.done = true }

// --- Aggregates ---

type aggregates struct {
	client *spanner.Client
	kind   model.AggregateKind
}

func rowToAggregate(row *spanner.Row) (*model.DayAggregate, error) {
	var (
		out               model.DayAggregate
		productive, total int64
		cats              string
	)
	if err := row.Columns(&out.UserID, &out.Date, &productive, &total, &cats, &out.LastUpdated, &out.Version); err != nil {
		return nil, err
	}
	out.ProductiveTime = int(productive)
	out.TotalTime = int(total)
	var err error
	if out.Categories, err = decodeCategories(cats); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *aggregates) Get(ctx context.Context, userID, dayKey string) (*model.DayAggregate, error) {
	row, err := a.client.Single().ReadRow(ctx, tableFor(a.kind), spanner.Key{userID, dayKey}, aggColumns)
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s aggregate %s/%s", model.ErrNotFound, a.kind, userID, dayKey)
	}
	if err != nil {
		return nil, err
	}
	return rowToAggregate(row)
}

func (a *aggregates) ListByDay(ctx context.Context, dayKey string) ([]*model.DayAggregate, error) {
	stmt := spanner.Statement{
		SQL: `SELECT UserId, DateKey, ProductiveTime, TotalTime, Categories, LastUpdated, Version
              FROM ` + tableFor(a.kind) + ` WHERE DateKey = @day ORDER BY UserId`,
		Params: map[string]interface{}{"day": dayKey},
	}
	return a.query(ctx, stmt)
}

func (a *aggregates) ListForUser(ctx context.Context, userID string, dayKeys []string) ([]*model.DayAggregate, error) {
	if len(dayKeys) == 0 {
		return nil, nil
	}
	stmt := spanner.Statement{
		SQL: `SELECT UserId, DateKey, ProductiveTime, TotalTime, Categories, LastUpdated, Version
              FROM ` + tableFor(a.kind) + ` WHERE UserId = @user AND DateKey IN UNNEST(@days)`,
		Params: map[string]interface{}{"user": userID, "days": dayKeys},
	}
	return a.query(ctx, stmt)
}

func (a *aggregates) query(ctx context.Context, stmt spanner.Statement) ([]*model.DayAggregate, error) {
	iter := a.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []*model.DayAggregate
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		agg, err := rowToAggregate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
}

// --- Tasks ---

type tasks struct{ client *spanner.Client }

func (t *tasks) Get(ctx context.Context, taskID string) (*model.ProcessedTask, error) {
	row, err := t.client.Single().ReadRow(ctx, "ProcessedTasks", spanner.Key{taskID}, taskColumns)
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: task %s", model.ErrNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}

	var (
		out               model.ProcessedTask
		total, productive int64
		cats              string
	)
	if err := row.Columns(&out.TaskID, &out.UserID, &out.ProcessedAt, &total, &productive, &cats, &out.ApplicationName, &out.Timestamp); err != nil {
		return nil, err
	}
	out.TotalTime = int(total)
	out.ProductiveTime = int(productive)
	if out.Categories, err = decodeCategories(cats); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Users ---

type users struct{ client *spanner.Client }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	if out.CreationTime.IsZero() {
		out.CreationTime = time.Now().UTC()
	}
	mutation := spanner.Insert("Users", userColumns, []interface{}{
		out.UserID, out.DisplayName, out.Email, out.PhotoURL, out.CreationTime,
	})
	if _, err := u.client.Apply(ctx, []*spanner.Mutation{mutation}); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	row, err := u.client.Single().ReadRow(ctx, "Users", spanner.Key{userID}, userColumns)
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	var out model.User
	if err := row.Columns(&out.UserID, &out.DisplayName, &out.Email, &out.PhotoURL, &out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}
