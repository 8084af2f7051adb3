package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mealweek/internal/mealplan"
	"mealweek/internal/platform/mealdb"
	"mealweek/internal/recipe"
	"mealweek/internal/search"
	"mealweek/internal/shopping"
)

// requestTimeout bounds every upstream call made on behalf of a request.
const requestTimeout = 45 * time.Second

// RecipeSource defines the upstream recipe operations the API needs.
type RecipeSource interface {
	GetCategories(ctx context.Context) ([]recipe.Category, error)
	GetRecipeDetails(ctx context.Context, id string) (*recipe.Recipe, error)
}

// MealPlanStore defines the meal plan operations.
type MealPlanStore interface {
	MealPlan() mealplan.Plan
	AddMeal(date string, r recipe.Recipe)
	RemoveMeal(date string)
	ClearMealPlan()
}

// SearchController defines the search/filter state machine.
type SearchController interface {
	State() search.State
	SetQuery(query string)
	SearchRecipes(ctx context.Context, query string) search.State
	FilterByCategory(ctx context.Context, category string) search.State
	Retry(ctx context.Context) search.State
}

// ShoppingList defines the shopping list operations.
type ShoppingList interface {
	List(ctx context.Context) ([]recipe.ShoppingItem, error)
	Regenerate(ctx context.Context) error
	Items() []recipe.ShoppingItem
	Toggle(id string) bool
	ClearCompleted()
	Progress() shopping.Progress
}

// ThumbnailCache defines the resized thumbnail lookup.
type ThumbnailCache interface {
	Path(ctx context.Context, imageURL string) (string, error)
}

// Handler handles HTTP requests.
type Handler struct {
	Recipes    RecipeSource
	MealPlan   MealPlanStore
	Search     SearchController
	Shopping   ShoppingList
	Thumbnails ThumbnailCache
	Logger     *zap.Logger

	now func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(recipes RecipeSource, plan MealPlanStore, searchCtl SearchController, list ShoppingList, thumbs ThumbnailCache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Recipes:    recipes,
		MealPlan:   plan,
		Search:     searchCtl,
		Shopping:   list,
		Thumbnails: thumbs,
		Logger:     logger,
		now:        time.Now,
	}
}

// RegisterRoutes mounts every endpoint on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/categories", h.GetCategories)

	rg.GET("/recipes/search", h.SearchRecipes)
	rg.GET("/recipes/filter", h.FilterByCategory)
	rg.GET("/recipes/:id", h.GetRecipe)
	rg.GET("/recipes/:id/thumbnail", h.GetThumbnail)

	rg.POST("/search/query", h.SetQuery)
	rg.GET("/search/state", h.SearchState)
	rg.POST("/search/retry", h.RetrySearch)

	rg.GET("/mealplan", h.GetMealPlan)
	rg.GET("/mealplan/week", h.GetWeek)
	rg.PUT("/mealplan/:date", h.AddMeal)
	rg.DELETE("/mealplan/:date", h.RemoveMeal)
	rg.DELETE("/mealplan", h.ClearMealPlan)

	rg.GET("/shopping-list", h.GetShoppingList)
	rg.POST("/shopping-list/regenerate", h.RegenerateShoppingList)
	rg.POST("/shopping-list/items/:id/toggle", h.TogglePurchased)
	rg.POST("/shopping-list/clear-completed", h.ClearCompleted)
}

// GetCategories lists the upstream categories.
func (h *Handler) GetCategories(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	categories, err := h.Recipes.GetCategories(ctx)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// SearchRecipes runs an immediate name search.
func (h *Handler) SearchRecipes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	h.respondState(c, h.Search.SearchRecipes(ctx, c.Query("q")))
}

// FilterByCategory lists the recipes of a category.
func (h *Handler) FilterByCategory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	h.respondState(c, h.Search.FilterByCategory(ctx, c.Query("category")))
}

type queryRequest struct {
	Query string `json:"query"`
}

// SetQuery feeds a keystroke-level query into the debounced search.
func (h *Handler) SetQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.Search.SetQuery(req.Query)
	c.JSON(http.StatusAccepted, h.Search.State())
}

// SearchState returns the current search state.
func (h *Handler) SearchState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Search.State())
}

// RetrySearch re-issues the last search or filter.
func (h *Handler) RetrySearch(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	h.respondState(c, h.Search.Retry(ctx))
}

func (h *Handler) respondState(c *gin.Context, state search.State) {
	if state.Status == search.StatusErrored {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     state.Error,
			"retryable": true,
			"state":     state,
		})
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetRecipe returns the full details of one recipe.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	r, err := h.Recipes.GetRecipeDetails(ctx, c.Param("id"))
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetThumbnail serves a resized copy of the recipe's thumbnail.
func (h *Handler) GetThumbnail(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	r, err := h.Recipes.GetRecipeDetails(ctx, c.Param("id"))
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	if r == nil || r.Thumbnail == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}

	imagePath, err := h.Thumbnails.Path(ctx, r.Thumbnail)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.File(imagePath)
}

// GetMealPlan returns the whole plan.
func (h *Handler) GetMealPlan(c *gin.Context) {
	c.JSON(http.StatusOK, h.MealPlan.MealPlan())
}

// GetWeek returns the seven days of the week containing ?date (today by default).
func (h *Handler) GetWeek(c *gin.Context) {
	day := h.now()
	if s := c.Query("date"); s != "" {
		parsed, err := mealplan.ParseDateKey(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		day = parsed
	}
	c.JSON(http.StatusOK, mealplan.Week(h.MealPlan.MealPlan(), day))
}

type addMealRequest struct {
	RecipeID string         `json:"recipe_id"`
	Recipe   *recipe.Recipe `json:"recipe"`
}

// AddMeal assigns a recipe to a day. The body carries either a recipe id,
// which is looked up upstream, or a full recipe.
func (h *Handler) AddMeal(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		return
	}

	var req addMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var r *recipe.Recipe
	switch {
	case req.Recipe != nil && req.Recipe.ID != "":
		r = req.Recipe
	case strings.TrimSpace(req.RecipeID) != "":
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		found, err := h.Recipes.GetRecipeDetails(ctx, req.RecipeID)
		if err != nil {
			h.upstreamError(c, err)
			return
		}
		if found == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		r = found
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipe_id or recipe is required"})
		return
	}

	h.MealPlan.AddMeal(date, *r)
	h.Logger.Info("meal added", zap.String("date", date), zap.String("recipe_id", r.ID))
	c.JSON(http.StatusOK, h.MealPlan.MealPlan())
}

// RemoveMeal clears one day.
func (h *Handler) RemoveMeal(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		return
	}
	h.MealPlan.RemoveMeal(date)
	c.JSON(http.StatusOK, h.MealPlan.MealPlan())
}

// ClearMealPlan removes every assignment.
func (h *Handler) ClearMealPlan(c *gin.Context) {
	h.MealPlan.ClearMealPlan()
	c.JSON(http.StatusOK, h.MealPlan.MealPlan())
}

type shoppingListResponse struct {
	Items    []recipe.ShoppingItem `json:"items"`
	Progress shopping.Progress     `json:"progress"`
}

// GetShoppingList returns the shopping list for the current plan.
func (h *Handler) GetShoppingList(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	items, err := h.Shopping.List(ctx)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, shoppingListResponse{Items: items, Progress: h.Shopping.Progress()})
}

// RegenerateShoppingList rebuilds the list from the plan.
func (h *Handler) RegenerateShoppingList(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Shopping.Regenerate(ctx); err != nil {
		h.upstreamError(c, err)
		return
	}
	h.respondShopping(c)
}

// TogglePurchased flips an item's purchased flag.
func (h *Handler) TogglePurchased(c *gin.Context) {
	if !h.Shopping.Toggle(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	h.respondShopping(c)
}

// ClearCompleted drops purchased items.
func (h *Handler) ClearCompleted(c *gin.Context) {
	h.Shopping.ClearCompleted()
	h.respondShopping(c)
}

func (h *Handler) respondShopping(c *gin.Context) {
	c.JSON(http.StatusOK, shoppingListResponse{Items: h.Shopping.Items(), Progress: h.Shopping.Progress()})
}

func (h *Handler) dateParam(c *gin.Context) (string, bool) {
	date := c.Param("date")
	if _, err := mealplan.ParseDateKey(date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return date, true
}

// upstreamError reports a failed upstream call as retryable.
func (h *Handler) upstreamError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	msg := err.Error()
	var apiErr *mealdb.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}

	h.Logger.Warn("upstream request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"error": msg, "retryable": true})
}
