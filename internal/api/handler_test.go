package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mealweek/internal/mealplan"
	"mealweek/internal/platform/mealdb"
	"mealweek/internal/recipe"
	"mealweek/internal/search"
	"mealweek/internal/shopping"
)

// mockRecipeSource is a mock of the upstream recipe API.
type mockRecipeSource struct {
	recipes     map[string]recipe.Recipe
	returnError error
	searches    int
}

func newMockRecipeSource() *mockRecipeSource {
	return &mockRecipeSource{recipes: map[string]recipe.Recipe{
		"52772": {
			ID:        "52772",
			Name:      "Teriyaki Chicken Casserole",
			Category:  "Chicken",
			Thumbnail: "https://www.themealdb.com/images/media/meals/wvpsxx1468256321.jpg",
			Tags:      []string{"Meat", "Casserole"},
			Ingredients: []recipe.Ingredient{
				{Name: "soy sauce", Measure: "3/4 cup"},
				{Name: "Salt", Measure: "1tsp"},
			},
		},
		"52959": {
			ID:       "52959",
			Name:     "Baked salmon with fennel & tomatoes",
			Category: "Seafood",
			Ingredients: []recipe.Ingredient{
				{Name: "Fennel", Measure: "2 medium"},
				{Name: "salt", Measure: "2tsp"},
			},
		},
	}}
}

func (m *mockRecipeSource) GetCategories(ctx context.Context) ([]recipe.Category, error) {
	if m.returnError != nil {
		return nil, m.returnError
	}
	return []recipe.Category{{ID: "1", Name: "Beef"}, {ID: "2", Name: "Chicken"}}, nil
}

func (m *mockRecipeSource) GetRecipeDetails(ctx context.Context, id string) (*recipe.Recipe, error) {
	if m.returnError != nil {
		return nil, m.returnError
	}
	r, ok := m.recipes[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockRecipeSource) GetMultipleRecipeDetails(ctx context.Context, ids []string) ([]recipe.Recipe, error) {
	var out []recipe.Recipe
	for _, id := range ids {
		r, err := m.GetRecipeDetails(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRecipeSource) SearchRecipes(ctx context.Context, query string) ([]recipe.Summary, error) {
	m.searches++
	if m.returnError != nil {
		return nil, m.returnError
	}
	return []recipe.Summary{{ID: "52772", Name: "Teriyaki Chicken Casserole", Category: "Chicken"}}, nil
}

func (m *mockRecipeSource) FilterByCategory(ctx context.Context, category string) ([]recipe.Summary, error) {
	if m.returnError != nil {
		return nil, m.returnError
	}
	return []recipe.Summary{{ID: "52959", Name: "Baked salmon", Category: category}}, nil
}

// mockThumbnailCache returns a fixed path.
type mockThumbnailCache struct {
	path string
}

func (m *mockThumbnailCache) Path(ctx context.Context, imageURL string) (string, error) {
	return m.path, nil
}

type testEnv struct {
	router *gin.Engine
	source *mockRecipeSource
	store  *mealplan.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	source := newMockRecipeSource()
	store := mealplan.NewStore(context.Background(), nil, logger)
	ctl := search.NewController(source, search.WithDebounce(10*time.Millisecond))
	t.Cleanup(ctl.Close)
	list := shopping.NewService(store, source, logger)
	t.Cleanup(list.Close)

	handler := NewHandler(source, store, ctl, list, &mockThumbnailCache{}, logger)
	handler.now = func() time.Time { return time.Date(2024, time.January, 17, 12, 0, 0, 0, time.Local) }

	return &testEnv{
		router: NewRouter(handler, []string{"http://localhost:5173"}),
		source: source,
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestGetCategories(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/categories", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var categories []recipe.Category
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &categories))
	assert.Len(t, categories, 2)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestSearchRecipes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/recipes/search?q=chicken", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var state search.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, search.StatusLoaded, state.Status)
	require.Len(t, state.Results, 1)
	assert.Equal(t, "Chicken", state.Results[0].Category)
}

func TestSearchRecipes_BlankQuery(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/recipes/search?q=%20%20%20", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var state search.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Empty(t, state.Results)
	assert.Equal(t, 0, env.source.searches)
}

func TestSearchRecipes_UpstreamErrorThenRetry(t *testing.T) {
	env := newTestEnv(t)
	env.source.returnError = &mealdb.APIError{Message: "API Error: HTTP error! status: 500", StatusCode: 500}

	rr := env.do(t, http.MethodGet, "/api/recipes/filter?category=Seafood", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "API Error: HTTP error! status: 500", body["error"])
	assert.Equal(t, true, body["retryable"])

	env.source.returnError = nil
	rr = env.do(t, http.MethodPost, "/api/search/retry", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var state search.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	require.Len(t, state.Results, 1)
	assert.Equal(t, "Seafood", state.Results[0].Category)
}

func TestSetQuery_Debounced(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/search/query", queryRequest{Query: "teriyaki"})
	assert.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		rr := env.do(t, http.MethodGet, "/api/search/state", nil)
		var state search.State
		if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
			return false
		}
		return state.Status == search.StatusLoaded && len(state.Results) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetRecipe(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/recipes/52772", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var r recipe.Recipe
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &r))
	assert.Equal(t, "Teriyaki Chicken Casserole", r.Name)

	rr = env.do(t, http.MethodGet, "/api/recipes/0", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	env.source.returnError = errors.New("connection refused")
	rr = env.do(t, http.MethodGet, "/api/recipes/52772", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestMealPlanLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/mealplan/2024-01-15", addMealRequest{RecipeID: "52772"})
	assert.Equal(t, http.StatusOK, rr.Code)

	full := env.source.recipes["52959"]
	rr = env.do(t, http.MethodPut, "/api/mealplan/2024-01-16", addMealRequest{Recipe: &full})
	assert.Equal(t, http.StatusOK, rr.Code)

	var plan mealplan.Plan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Len(t, plan, 2)
	assert.Equal(t, "52772", plan["2024-01-15"].ID)

	rr = env.do(t, http.MethodGet, "/api/mealplan/week", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	var week []mealplan.Day
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &week))
	require.Len(t, week, 7)
	assert.Equal(t, "2024-01-15", week[0].Key)
	require.NotNil(t, week[0].Recipe)
	assert.Equal(t, "52772", week[0].Recipe.ID)

	rr = env.do(t, http.MethodDelete, "/api/mealplan/2024-01-15", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, env.store.MealPlan(), "2024-01-15")

	rr = env.do(t, http.MethodDelete, "/api/mealplan/2024-01-20", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/mealplan", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, env.store.MealPlan())
}

func TestAddMeal_Validation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/mealplan/15-01-2024", addMealRequest{RecipeID: "52772"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/mealplan/2024-01-15", addMealRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/mealplan/2024-01-15", addMealRequest{RecipeID: "404"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/mealplan/week?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Empty(t, env.store.MealPlan())
}

func TestShoppingList(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddMeal("2024-01-15", env.source.recipes["52772"])
	env.store.AddMeal("2024-01-16", env.source.recipes["52959"])

	rr := env.do(t, http.MethodGet, "/api/shopping-list", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp shoppingListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []recipe.ShoppingItem{
		{ID: "0-soy sauce", Name: "soy sauce", Measure: "3/4 cup"},
		{ID: "1-Salt", Name: "Salt", Measure: "1tsp, 2tsp"},
		{ID: "2-Fennel", Name: "Fennel", Measure: "2 medium"},
	}, resp.Items)
	assert.Equal(t, shopping.Progress{Purchased: 0, Total: 3}, resp.Progress)

	rr = env.do(t, http.MethodPost, "/api/shopping-list/items/1-Salt/toggle", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Items[1].Purchased)
	assert.Equal(t, 1, resp.Progress.Purchased)

	rr = env.do(t, http.MethodPost, "/api/shopping-list/items/nope/toggle", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/shopping-list/clear-completed", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)

	rr = env.do(t, http.MethodPost, "/api/shopping-list/regenerate", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 3)
}

func TestShoppingList_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddMeal("2024-01-15", env.source.recipes["52772"])
	env.source.returnError = errors.New("timeout")

	rr := env.do(t, http.MethodGet, "/api/shopping-list", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zaptest.NewLogger(t)))
	r.GET("/boom", func(c *gin.Context) { panic("render failed") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []any{"reset", "reload"}, body["actions"])
}
