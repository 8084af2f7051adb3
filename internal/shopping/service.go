package shopping

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mealweek/internal/mealplan"
	"mealweek/internal/recipe"
)

// RecipeFetcher fetches full recipe details for a set of ids.
type RecipeFetcher interface {
	GetMultipleRecipeDetails(ctx context.Context, ids []string) ([]recipe.Recipe, error)
}

// PlanSource is the part of the meal plan store the service depends on.
type PlanSource interface {
	RecipeIDs() []string
	Subscribe(fn func(mealplan.Plan)) func()
}

// Progress counts purchased items.
type Progress struct {
	Purchased int `json:"purchased"`
	Total     int `json:"total"`
}

// Service derives the shopping list from the meal plan. The list is rebuilt
// from scratch whenever the plan changes; purchased flags live only in
// memory and are lost on rebuild.
type Service struct {
	plan    PlanSource
	fetcher RecipeFetcher
	logger  *zap.Logger

	mu          sync.Mutex
	items       []recipe.ShoppingItem
	stale       bool
	generation  uint64
	unsubscribe func()
}

// NewService creates a Service watching plan for changes.
func NewService(plan PlanSource, fetcher RecipeFetcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		plan:    plan,
		fetcher: fetcher,
		logger:  logger,
		items:   []recipe.ShoppingItem{},
		stale:   true,
	}
	s.unsubscribe = plan.Subscribe(func(mealplan.Plan) {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
	})
	return s
}

// Close stops watching the meal plan.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// List returns the shopping list, rebuilding it first if the plan changed
// since the last successful build.
func (s *Service) List(ctx context.Context) ([]recipe.ShoppingItem, error) {
	s.mu.Lock()
	stale := s.stale
	s.mu.Unlock()

	if stale {
		if err := s.Regenerate(ctx); err != nil {
			return nil, err
		}
	}
	return s.Items(), nil
}

// Regenerate rebuilds the list from the current plan. On failure the
// previous list is kept and the plan stays marked as changed. When rebuilds
// overlap, only the one started last is kept.
func (s *Service) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.stale = false
	s.mu.Unlock()

	var items []recipe.ShoppingItem
	var err error
	if ids := s.plan.RecipeIDs(); len(ids) == 0 {
		items = []recipe.ShoppingItem{}
	} else {
		items, err = s.build(ctx, ids)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug("discarding superseded shopping list", zap.Uint64("generation", gen))
		return err
	}
	if err != nil {
		s.stale = true
		return err
	}
	s.items = items
	return nil
}

func (s *Service) build(ctx context.Context, ids []string) ([]recipe.ShoppingItem, error) {
	recipes, err := s.fetcher.GetMultipleRecipeDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to generate shopping list: %w", err)
	}

	var all []recipe.Ingredient
	for _, r := range recipes {
		all = append(all, r.Ingredients...)
	}
	items := recipe.BuildShoppingList(all)

	s.logger.Debug("shopping list generated",
		zap.Int("recipes", len(recipes)),
		zap.Int("items", len(items)))
	return items, nil
}

// Items returns the current list without rebuilding it.
func (s *Service) Items() []recipe.ShoppingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recipe.ShoppingItem{}, s.items...)
}

// Toggle flips the purchased flag of the item with id. It reports whether
// the item exists.
func (s *Service) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Purchased = !s.items[i].Purchased
			return true
		}
	}
	return false
}

// ClearCompleted drops purchased items from the list.
func (s *Service) ClearCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	for _, item := range s.items {
		if !item.Purchased {
			kept = append(kept, item)
		}
	}
	s.items = kept
}

// Progress reports how many items are purchased.
func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{Total: len(s.items)}
	for _, item := range s.items {
		if item.Purchased {
			p.Purchased++
		}
	}
	return p
}
