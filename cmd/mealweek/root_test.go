package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeMealDB(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search.php":
			fmt.Fprint(w, `{"meals": [{"idMeal": "52772", "strMeal": "Teriyaki Chicken Casserole", "strCategory": "Chicken"}]}`)
		case "/categories.php":
			fmt.Fprint(w, `{"categories": [{"idCategory": "1", "strCategory": "Beef"}, {"idCategory": "2", "strCategory": "Chicken"}]}`)
		case "/lookup.php":
			switch r.URL.Query().Get("i") {
			case "52772":
				fmt.Fprint(w, `{"meals": [{"idMeal": "52772", "strMeal": "Teriyaki Chicken Casserole",
					"strCategory": "Chicken", "strArea": "Japanese", "strTags": "Meat,Casserole",
					"strIngredient1": "soy sauce", "strMeasure1": "3/4 cup",
					"strIngredient2": "Salt", "strMeasure2": "1tsp"}]}`)
			case "52959":
				fmt.Fprint(w, `{"meals": [{"idMeal": "52959", "strMeal": "Baked salmon",
					"strIngredient1": "salt", "strMeasure1": "2tsp"}]}`)
			default:
				fmt.Fprint(w, `{"meals": null}`)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MEALWEEK_CONFIG", "")
	t.Setenv("MEALWEEK_STORAGE", "file")
	t.Setenv("MEALWEEK_DATA_DIR", dir)
	t.Setenv("MEALWEEK_IMAGE_DIR", filepath.Join(dir, "images"))
	t.Setenv("MEALWEEK_MEALDB_URL", fakeMealDB(t).URL)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := &cli{now: func() time.Time { return time.Date(2024, time.January, 17, 9, 0, 0, 0, time.Local) }}
	var out bytes.Buffer
	err := c.execute(context.Background(), args, &out)
	return out.String(), err
}

func TestSearch(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "search", "teriyaki", "chicken")
	require.NoError(t, err)
	assert.Contains(t, out, "52772")
	assert.Contains(t, out, "Teriyaki Chicken Casserole")
}

func TestCategories(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "categories")
	require.NoError(t, err)
	assert.Equal(t, "Beef\nChicken\n", out)
}

func TestShow(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "show", "52772")
	require.NoError(t, err)
	assert.Contains(t, out, "Tags: Meat, Casserole")
	assert.Contains(t, out, "soy sauce")

	_, err = run(t, "show", "1")
	assert.EqualError(t, err, "recipe 1 not found")
}

func TestPlanAndShoppingPersistAcrossRuns(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "plan", "add", "2024-01-15", "52772")
	require.NoError(t, err)
	_, err = run(t, "plan", "add", "2024-01-21", "52959")
	require.NoError(t, err)

	out, err := run(t, "plan", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Mon, Jan 15")
	assert.Contains(t, out, "Teriyaki Chicken Casserole (52772)")
	assert.Contains(t, out, "Baked salmon (52959)")

	out, err = run(t, "shopping")
	require.NoError(t, err)
	assert.Contains(t, out, "soy sauce")
	assert.Contains(t, out, "1tsp, 2tsp")

	_, err = run(t, "plan", "remove", "2024-01-15")
	require.NoError(t, err)
	out, err = run(t, "plan", "show", "--date", "2024-01-18")
	require.NoError(t, err)
	assert.NotContains(t, out, "Teriyaki")

	_, err = run(t, "plan", "clear")
	require.NoError(t, err)
	out, err = run(t, "shopping")
	require.NoError(t, err)
	assert.Equal(t, "No meals planned yet.\n", out)
}

func TestPlanAdd_InvalidDate(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "plan", "add", "next-monday", "52772")
	require.Error(t, err)

	_, err = run(t, "plan", "add", "2024-01-15", "404")
	assert.EqualError(t, err, "recipe 404 not found")
}
