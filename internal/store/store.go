package store

import (
	"context"

	"github.com/KushagraAgarwal525/racoon/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (memory, sqlite, postgres, spanner).
type Store interface {
	// Begin opens an optimistic transaction. Reads inside it record the version they saw;
	// Commit applies the buffered writes only if none of those versions moved.
	Begin(ctx context.Context) (Txn, error)

	Daily() Aggregates
	History() Aggregates
	Tasks() Tasks
	Users() Users

	Close() error
}

// Txn is a single optimistic unit of work. Writes are buffered until Commit.
// Commit returns an error wrapping model.ErrConflict when a concurrent writer won;
// callers retry the whole read-merge-write from a fresh Begin.
type Txn interface {
	// Task returns model.ErrNotFound when taskID has not been processed.
	Task(ctx context.Context, taskID string) (*model.ProcessedTask, error)
	// Aggregate returns model.ErrNotFound when no record exists for (userID, dayKey).
	Aggregate(ctx context.Context, kind model.AggregateKind, userID, dayKey string) (*model.DayAggregate, error)

	// PutAggregate writes a, conditional on a.Version: 0 creates, otherwise the stored
	// version must still equal a.Version.
	PutAggregate(kind model.AggregateKind, a *model.DayAggregate)
	// PutTask creates the idempotency record; it fails the commit if taskID already exists.
	PutTask(t *model.ProcessedTask)

	Commit(ctx context.Context) error
	Rollback()
}

// Aggregates reads one aggregate collection (daily or history) outside a transaction.
type Aggregates interface {
	Get(ctx context.Context, userID, dayKey string) (*model.DayAggregate, error)
	// ListByDay returns every user's record for dayKey ordered by userID.
	ListByDay(ctx context.Context, dayKey string) ([]*model.DayAggregate, error)
	// ListForUser returns the records that exist among dayKeys, in no particular order.
	ListForUser(ctx context.Context, userID string, dayKeys []string) ([]*model.DayAggregate, error)
}

type Tasks interface {
	Get(ctx context.Context, taskID string) (*model.ProcessedTask, error)
}

type Users interface {
	// Create returns an error wrapping model.ErrConflict when userID already exists.
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
}
