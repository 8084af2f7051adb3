package recipe

import (
	"encoding/json"
	"fmt"
)

// SlotCount is the number of ingredient/measure slots in an upstream record.
const SlotCount = 20

// Slot is one positional ingredient/measure pair of a raw record.
// Nil means the upstream field was null or missing.
type Slot struct {
	Ingredient *string
	Measure    *string
}

// Raw is a meal record as returned by TheMealDB.
type Raw struct {
	ID           string  `json:"idMeal"`
	Name         string  `json:"strMeal"`
	Category     string  `json:"strCategory"`
	Area         string  `json:"strArea"`
	Instructions string  `json:"strInstructions"`
	Thumbnail    string  `json:"strMealThumb"`
	Tags         *string `json:"strTags"`
	YoutubeURL   string  `json:"strYoutube"`

	// Slots holds strIngredient1..20 / strMeasure1..20 in order.
	Slots [SlotCount]Slot `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Raw.
func (r *Raw) UnmarshalJSON(data []byte) error {
	type Alias Raw // Create an alias to avoid infinite recursion
	aux := (*Alias)(r)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for i := 0; i < SlotCount; i++ {
		r.Slots[i] = Slot{
			Ingredient: stringField(fields, fmt.Sprintf("strIngredient%d", i+1)),
			Measure:    stringField(fields, fmt.Sprintf("strMeasure%d", i+1)),
		}
	}
	return nil
}

// stringField returns the named field as a string, or nil when it is
// missing, null, or not a string.
func stringField(fields map[string]json.RawMessage, name string) *string {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	var s *string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	return s
}

// MarshalJSON writes the record back in the upstream shape.
func (r Raw) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"idMeal":          r.ID,
		"strMeal":         r.Name,
		"strCategory":     r.Category,
		"strArea":         r.Area,
		"strInstructions": r.Instructions,
		"strMealThumb":    r.Thumbnail,
		"strTags":         r.Tags,
		"strYoutube":      r.YoutubeURL,
	}
	for i, s := range r.Slots {
		out[fmt.Sprintf("strIngredient%d", i+1)] = s.Ingredient
		out[fmt.Sprintf("strMeasure%d", i+1)] = s.Measure
	}
	return json.Marshal(out)
}

// Ingredient is a single name/measure line of a recipe.
type Ingredient struct {
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// Recipe is the normalized form of a meal used throughout the app.
type Recipe struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	Area         string       `json:"area"`
	Instructions string       `json:"instructions"`
	Thumbnail    string       `json:"thumbnail"`
	Tags         []string     `json:"tags"`
	YoutubeURL   string       `json:"youtubeUrl"`
	Ingredients  []Ingredient `json:"ingredients"`
}

// Summary is the reduced recipe shape used by search and filter results.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Thumbnail string `json:"thumbnail"`
}

// Category is a recipe category as listed by the upstream API.
type Category struct {
	ID          string `json:"idCategory"`
	Name        string `json:"strCategory"`
	Thumbnail   string `json:"strCategoryThumb"`
	Description string `json:"strCategoryDescription"`
}

// ShoppingItem is one line of a generated shopping list.
type ShoppingItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Measure   string `json:"measure"`
	Purchased bool   `json:"purchased"`
}
