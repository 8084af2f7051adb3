package mealplan

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"mealweek/internal/recipe"
)

// StorageKey is the key the whole plan is persisted under.
const StorageKey = "recipe-meal-plan"

// persistTimeout bounds a single load or save against the persister.
const persistTimeout = 5 * time.Second

// Plan maps a date key (YYYY-MM-DD) to the recipe assigned to that day.
// A nil recipe can only appear when it was loaded that way from storage.
type Plan map[string]*recipe.Recipe

// Clone returns a shallow copy of the plan.
func (p Plan) Clone() Plan {
	out := make(Plan, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Persister stores the serialized plan under a key.
// Load returns nil, nil when nothing is stored yet.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Store owns the meal plan and keeps its persisted copy in sync.
// Every mutation replaces the whole mapping and is written out before the
// next mutation is applied.
type Store struct {
	mu        sync.Mutex
	plan      Plan
	persister Persister
	logger    *zap.Logger

	subMu       sync.Mutex
	nextSubID   int
	subscribers map[int]func(Plan)
}

// NewStore creates a Store and restores any previously persisted plan.
// A missing or unreadable plan starts the store empty.
func NewStore(ctx context.Context, persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		persister:   persister,
		logger:      logger,
		subscribers: make(map[int]func(Plan)),
	}
	s.plan = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) Plan {
	if s.persister == nil {
		return Plan{}
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	data, err := s.persister.Load(ctx, StorageKey)
	if err != nil {
		s.logger.Warn("error loading meal plan from storage", zap.Error(err))
		return Plan{}
	}
	if len(data) == 0 {
		return Plan{}
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		s.logger.Warn("error parsing stored meal plan", zap.Error(err))
		return Plan{}
	}
	if plan == nil {
		return Plan{}
	}
	return plan
}

// MealPlan returns a snapshot of the current plan.
func (s *Store) MealPlan() Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.Clone()
}

// AddMeal assigns r to date, replacing whatever was there.
func (s *Store) AddMeal(date string, r recipe.Recipe) {
	s.apply(func(p Plan) (Plan, bool) {
		next := p.Clone()
		next[date] = &r
		return next, true
	})
}

// RemoveMeal clears date. Removing an empty day does nothing.
func (s *Store) RemoveMeal(date string) {
	s.apply(func(p Plan) (Plan, bool) {
		if _, ok := p[date]; !ok {
			return p, false
		}
		next := p.Clone()
		delete(next, date)
		return next, true
	})
}

// ClearMealPlan removes every assignment.
func (s *Store) ClearMealPlan() {
	s.apply(func(p Plan) (Plan, bool) {
		if len(p) == 0 {
			return p, false
		}
		return Plan{}, true
	})
}

// RecipeIDs returns the ids of all assigned recipes ordered by date.
// A recipe assigned to several days appears once per day.
func (s *Store) RecipeIDs() []string {
	plan := s.MealPlan()

	dates := make([]string, 0, len(plan))
	for d, r := range plan {
		if r != nil {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)

	ids := make([]string, len(dates))
	for i, d := range dates {
		ids[i] = plan[d].ID
	}
	return ids
}

// Subscribe registers fn to be called with a snapshot after each mutation.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Plan)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// apply runs mutate under the lock. Mutations that report no change are
// neither persisted nor announced.
func (s *Store) apply(mutate func(Plan) (Plan, bool)) {
	s.mu.Lock()
	next, changed := mutate(s.plan)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.plan = next
	s.persist(s.plan)
	snapshot := s.plan.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// persist writes plan out. Failures are logged and otherwise ignored.
func (s *Store) persist(plan Plan) {
	if s.persister == nil {
		return
	}

	data, err := json.Marshal(plan)
	if err != nil {
		s.logger.Error("error serializing meal plan", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.persister.Save(ctx, StorageKey, data); err != nil {
		s.logger.Error("error saving meal plan to storage", zap.Error(err))
	}
}

func (s *Store) notify(plan Plan) {
	s.subMu.Lock()
	fns := make([]func(Plan), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(plan)
	}
}
