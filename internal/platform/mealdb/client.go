package mealdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mealweek/internal/recipe"
)

// DefaultBaseURL is the public TheMealDB v1 endpoint.
const DefaultBaseURL = "https://www.themealdb.com/api/json/v1/1"

// AllCategories is the category sentinel meaning "no filter".
const AllCategories = "all"

// APIError wraps every transport, status and decode failure of the client.
type APIError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newAPIError(status int, err error) *APIError {
	return &APIError{
		Message:    fmt.Sprintf("API Error: %s", err.Error()),
		StatusCode: status,
		Err:        err,
	}
}

// IsAPIError reports whether err carries an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// mealsResponse is the shape of search, lookup and filter responses.
// Meals is null when nothing matched.
type mealsResponse struct {
	Meals []recipe.Raw `json:"meals"`
}

type categoriesResponse struct {
	Categories []recipe.Category `json:"categories"`
}

// Client is a client for the TheMealDB API.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	concurrency int
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithConcurrency bounds the number of in-flight lookups of a batch.
// Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new TheMealDB client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiURL:     DefaultBaseURL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchRecipes searches meals by name. A blank query returns no results
// without contacting the API.
func (c *Client) SearchRecipes(ctx context.Context, query string) ([]recipe.Summary, error) {
	if strings.TrimSpace(query) == "" {
		return []recipe.Summary{}, nil
	}

	var resp mealsResponse
	if err := c.get(ctx, "search.php", url.Values{"s": {query}}, &resp); err != nil {
		return nil, err
	}

	results := make([]recipe.Summary, 0, len(resp.Meals))
	for _, m := range resp.Meals {
		results = append(results, recipe.Summary{
			ID:        m.ID,
			Name:      m.Name,
			Category:  m.Category,
			Thumbnail: m.Thumbnail,
		})
	}
	return results, nil
}

// GetRecipeDetails looks a meal up by id. It returns nil, nil when the API
// has no such meal.
func (c *Client) GetRecipeDetails(ctx context.Context, id string) (*recipe.Recipe, error) {
	var resp mealsResponse
	if err := c.get(ctx, "lookup.php", url.Values{"i": {id}}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Meals) == 0 {
		return nil, nil // Recipe not found
	}

	r := recipe.Transform(resp.Meals[0])
	return &r, nil
}

// GetCategories lists all meal categories.
func (c *Client) GetCategories(ctx context.Context) ([]recipe.Category, error) {
	var resp categoriesResponse
	if err := c.get(ctx, "categories.php", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Categories == nil {
		return []recipe.Category{}, nil
	}
	return resp.Categories, nil
}

// FilterByCategory lists the meals of a category. The filter endpoint does
// not echo the category, so the requested one is set on every result.
// An empty category or AllCategories returns no results without I/O.
func (c *Client) FilterByCategory(ctx context.Context, category string) ([]recipe.Summary, error) {
	if category == "" || category == AllCategories {
		return []recipe.Summary{}, nil
	}

	var resp mealsResponse
	if err := c.get(ctx, "filter.php", url.Values{"c": {category}}, &resp); err != nil {
		return nil, err
	}

	results := make([]recipe.Summary, 0, len(resp.Meals))
	for _, m := range resp.Meals {
		results = append(results, recipe.Summary{
			ID:        m.ID,
			Name:      m.Name,
			Category:  category,
			Thumbnail: m.Thumbnail,
		})
	}
	return results, nil
}

// GetMultipleRecipeDetails looks up all ids concurrently. Unknown ids are
// dropped. The first failing lookup cancels the others and fails the whole
// batch. Results keep the order of ids.
func (c *Client) GetMultipleRecipeDetails(ctx context.Context, ids []string) ([]recipe.Recipe, error) {
	found := make([]*recipe.Recipe, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			r, err := c.GetRecipeDetails(gctx, id)
			if err != nil {
				return err
			}
			found[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recipes := make([]recipe.Recipe, 0, len(ids))
	for i, r := range found {
		if r == nil {
			c.logger.Debug("recipe not found, skipping", zap.String("id", ids[i]))
			continue
		}
		recipes = append(recipes, *r)
	}
	return recipes, nil
}

// FetchImage downloads an image from the upstream image host.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, newAPIError(0, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newAPIError(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, fmt.Errorf("HTTP error! status: %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newAPIError(resp.StatusCode, fmt.Errorf("failed to read image: %w", err))
	}
	return data, nil
}

// get issues a GET against endpoint and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.apiURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newAPIError(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("mealdb request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return newAPIError(0, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("mealdb request",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, fmt.Errorf("HTTP error! status: %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newAPIError(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
