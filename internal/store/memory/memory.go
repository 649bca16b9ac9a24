// Package memory is an in-process store used by tests and the "memory" driver.
// Commits are validated against per-record versions under a single mutex, which gives
// the same optimistic conflict semantics as the SQL and Spanner drivers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

type aggKey struct{ userID, day string }

type memStore struct {
	mu      sync.RWMutex
	aggs    map[model.AggregateKind]map[aggKey]*model.DayAggregate
	tasks   map[string]*model.ProcessedTask
	users   map[string]*model.User
	closed  bool
	nowFunc func() time.Time
}

// New returns an empty in-memory store.
func New() store.Store {
	return &memStore{
		aggs: map[model.AggregateKind]map[aggKey]*model.DayAggregate{
			model.KindDaily:   {},
			model.KindHistory: {},
		},
		tasks:   map[string]*model.ProcessedTask{},
		users:   map[string]*model.User{},
		nowFunc: time.Now,
	}
}

func (s *memStore) Begin(ctx context.Context) (store.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("memory store closed")
	}
	return &txn{s: s}, nil
}

func (s *memStore) Daily() store.Aggregates   { return &aggregates{s: s, kind: model.KindDaily} }
func (s *memStore) History() store.Aggregates { return &aggregates{s: s, kind: model.KindHistory} }
func (s *memStore) Tasks() store.Tasks        { return &tasks{s: s} }
func (s *memStore) Users() store.Users        { return &users{s: s} }

// HealthPing implements health.HealthPinger.
func (s *memStore) HealthPing(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("memory store closed")
	}
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// --- Txn ---

type pendingAgg struct {
	kind model.AggregateKind
	agg  *model.DayAggregate
}

type txn struct {
	s     *memStore
	aggs  []pendingAgg
	tasks []*model.ProcessedTask
	done  bool
}

func (t *txn) Task(ctx context.Context, taskID string) (*model.ProcessedTask, error) {
	return t.s.Tasks().Get(ctx, taskID)
}

func (t *txn) Aggregate(ctx context.Context, kind model.AggregateKind, userID, dayKey string) (*model.DayAggregate, error) {
	return (&aggregates{s: t.s, kind: kind}).Get(ctx, userID, dayKey)
}

func (t *txn) PutAggregate(kind model.AggregateKind, a *model.DayAggregate) {
	t.aggs = append(t.aggs, pendingAgg{kind: kind, agg: a.Clone()})
}

func (t *txn) PutTask(p *model.ProcessedTask) {
	cp := *p
	cp.Categories = model.CopyCategories(p.Categories)
	t.tasks = append(t.tasks, &cp)
}

func (t *txn) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range t.tasks {
		if _, ok := s.tasks[p.TaskID]; ok {
			return fmt.Errorf("%w: task %s already recorded", model.ErrConflict, p.TaskID)
		}
	}
	for _, w := range t.aggs {
		var cur int64
		if existing, ok := s.aggs[w.kind][aggKey{w.agg.UserID, w.agg.Date}]; ok {
			cur = existing.Version
		}
		if cur != w.agg.Version {
			return fmt.Errorf("%w: %s/%s/%s at version %d, expected %d",
				model.ErrConflict, w.kind, w.agg.UserID, w.agg.Date, cur, w.agg.Version)
		}
	}

	for _, p := range t.tasks {
		s.tasks[p.TaskID] = p
	}
	for _, w := range t.aggs {
		a := w.agg
		a.Version++
		s.aggs[w.kind][aggKey{a.UserID, a.Date}] = a
	}
	return nil
}

func (t *txn) Rollback() { t.done = true }

// --- Aggregates ---

type aggregates struct {
	s    *memStore
	kind model.AggregateKind
}

func (a *aggregates) Get(_ context.Context, userID, dayKey string) (*model.DayAggregate, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	rec, ok := a.s.aggs[a.kind][aggKey{userID, dayKey}]
	if !ok {
		return nil, fmt.Errorf("%w: %s aggregate %s/%s", model.ErrNotFound, a.kind, userID, dayKey)
	}
	return rec.Clone(), nil
}

func (a *aggregates) ListByDay(_ context.Context, dayKey string) ([]*model.DayAggregate, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []*model.DayAggregate
	for k, rec := range a.s.aggs[a.kind] {
		if k.day == dayKey {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (a *aggregates) ListForUser(_ context.Context, userID string, dayKeys []string) ([]*model.DayAggregate, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []*model.DayAggregate
	for _, d := range dayKeys {
		if rec, ok := a.s.aggs[a.kind][aggKey{userID, d}]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// --- Tasks ---

type tasks struct{ s *memStore }

func (t *tasks) Get(_ context.Context, taskID string) (*model.ProcessedTask, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", model.ErrNotFound, taskID)
	}
	cp := *p
	cp.Categories = model.CopyCategories(p.Categories)
	return &cp, nil
}

// --- Users ---

type users struct{ s *memStore }

func (u *users) Create(_ context.Context, m *model.User) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[m.UserID]; ok {
		return nil, fmt.Errorf("%w: user %s exists", model.ErrConflict, m.UserID)
	}
	out := *m
	if out.CreationTime.IsZero() {
		out.CreationTime = u.s.nowFunc().UTC()
	}
	u.s.users[m.UserID] = &out
	cp := out
	return &cp, nil
}

func (u *users) Get(_ context.Context, userID string) (*model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	m, ok := u.s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, userID)
	}
	cp := *m
	return &cp, nil
}
