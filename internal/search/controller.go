// Package search drives recipe search and category filtering: debounced
// queries, mutually exclusive query/category modes, retry, and dropping of
// responses that a newer request has superseded.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mealweek/internal/recipe"
)

// DefaultDebounce is the quiet window before a typed query is sent.
const DefaultDebounce = 500 * time.Millisecond

const (
	fallbackSearchError = "Failed to search recipes"
	fallbackFilterError = "Failed to filter recipes"
)

// Source is the recipe listing backend, typically *mealdb.Client.
type Source interface {
	SearchRecipes(ctx context.Context, query string) ([]recipe.Summary, error)
	FilterByCategory(ctx context.Context, category string) ([]recipe.Summary, error)
}

// Status is the lifecycle state of the controller.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusErrored Status = "errored"
)

// State is a snapshot of the controller.
type State struct {
	Status   Status           `json:"status"`
	Results  []recipe.Summary `json:"results"`
	Error    string           `json:"error,omitempty"`
	Query    string           `json:"query,omitempty"`
	Category string           `json:"category,omitempty"`
}

type mode int

const (
	modeNone mode = iota
	modeQuery
	modeCategory
)

// Controller coordinates search requests against a Source.
type Controller struct {
	src      Source
	debounce time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	mode       mode
	generation uint64
	timer      *time.Timer
	timerSeq   uint64
	closed     bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce sets the debounce window used by SetQuery.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithTimeout bounds requests started by the debounce timer.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates an idle Controller.
func NewController(src Source, opts ...Option) *Controller {
	c := &Controller{
		src:      src,
		debounce: DefaultDebounce,
		timeout:  30 * time.Second,
		logger:   zap.NewNop(),
		state:    State{Status: StatusIdle, Results: []recipe.Summary{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// SetQuery records a keystroke-level query change. The search runs once the
// query has been stable for the debounce window. Any category filter is
// cleared.
func (c *Controller) SetQuery(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.stopTimerLocked()
	c.mode = modeQuery
	c.state.Query = query
	c.state.Category = ""

	seq := c.timerSeq
	c.timer = time.AfterFunc(c.debounce, func() { c.fireQuery(seq, query) })
}

// fireQuery runs a debounced query unless the timer that scheduled it was
// stopped or replaced after it fired.
func (c *Controller) fireQuery(seq uint64, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	current := func() bool { return !c.closed && c.timerSeq == seq }
	c.runQuery(ctx, query, current)
}

// SearchRecipes searches immediately, bypassing the debounce window.
func (c *Controller) SearchRecipes(ctx context.Context, query string) State {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mode = modeQuery
	c.state.Query = query
	c.state.Category = ""
	c.mu.Unlock()

	return c.runQuery(ctx, query, nil)
}

// FilterByCategory lists a category immediately. It cancels any pending
// debounced query and clears the query.
func (c *Controller) FilterByCategory(ctx context.Context, category string) State {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mode = modeCategory
	c.state.Category = category
	c.state.Query = ""
	c.mu.Unlock()

	return c.runCategory(ctx, category)
}

// Retry re-issues the last query or category request.
func (c *Controller) Retry(ctx context.Context) State {
	c.mu.Lock()
	m, query, category := c.mode, c.state.Query, c.state.Category
	c.mu.Unlock()

	switch m {
	case modeQuery:
		return c.runQuery(ctx, query, nil)
	case modeCategory:
		return c.runCategory(ctx, category)
	default:
		return c.State()
	}
}

// Close stops any pending debounced search. Later SetQuery calls are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

// runQuery searches for query. A non-nil current is checked under the lock
// before the request takes a generation; when it reports false the call is
// dropped.
func (c *Controller) runQuery(ctx context.Context, query string, current func() bool) State {
	if strings.TrimSpace(query) == "" {
		return c.settle(current, func(s *State) {
			s.Status = StatusLoaded
			s.Results = []recipe.Summary{}
			s.Error = ""
		})
	}
	return c.fetch(ctx, current, fallbackSearchError, func(ctx context.Context) ([]recipe.Summary, error) {
		return c.src.SearchRecipes(ctx, query)
	})
}

func (c *Controller) runCategory(ctx context.Context, category string) State {
	if category == "" || category == "all" {
		return c.settle(nil, func(s *State) {
			s.Status = StatusLoaded
			s.Results = []recipe.Summary{}
			s.Error = ""
		})
	}
	return c.fetch(ctx, nil, fallbackFilterError, func(ctx context.Context) ([]recipe.Summary, error) {
		return c.src.FilterByCategory(ctx, category)
	})
}

// settle applies a result that needs no I/O. It still takes a generation so
// that an older in-flight response cannot overwrite it.
func (c *Controller) settle(current func() bool, apply func(*State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current != nil && !current() {
		return c.snapshot()
	}
	c.generation++
	apply(&c.state)
	return c.snapshot()
}

func (c *Controller) fetch(ctx context.Context, current func() bool, fallback string, call func(context.Context) ([]recipe.Summary, error)) State {
	c.mu.Lock()
	if current != nil && !current() {
		s := c.snapshot()
		c.mu.Unlock()
		return s
	}
	c.generation++
	gen := c.generation
	c.state.Status = StatusLoading
	c.state.Error = ""
	c.mu.Unlock()

	results, err := call(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("discarding superseded search response", zap.Uint64("generation", gen))
		return c.snapshot()
	}

	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = fallback
		}
		c.logger.Warn("search request failed", zap.Error(err))
		c.state.Status = StatusErrored
		c.state.Error = msg
		c.state.Results = []recipe.Summary{}
		return c.snapshot()
	}

	if results == nil {
		results = []recipe.Summary{}
	}
	c.state.Status = StatusLoaded
	c.state.Results = results
	return c.snapshot()
}

func (c *Controller) stopTimerLocked() {
	c.timerSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) snapshot() State {
	s := c.state
	s.Results = append([]recipe.Summary(nil), c.state.Results...)
	if s.Results == nil {
		s.Results = []recipe.Summary{}
	}
	return s
}
