package recipe

import (
	"strconv"
	"strings"
)

// MergeIngredients collapses ingredients with the same name, compared
// case-insensitively. The first occurrence fixes the position and the
// spelling of the name. A later occurrence with a different measure has its
// measure appended after ", "; an identical measure is ignored.
func MergeIngredients(ingredients []Ingredient) []Ingredient {
	merged := make([]Ingredient, 0, len(ingredients))
	index := make(map[string]int, len(ingredients))

	for _, ing := range ingredients {
		key := strings.ToLower(ing.Name)
		i, ok := index[key]
		if !ok {
			index[key] = len(merged)
			merged = append(merged, ing)
			continue
		}
		if merged[i].Measure != ing.Measure {
			merged[i].Measure = merged[i].Measure + ", " + ing.Measure
		}
	}
	return merged
}

// BuildShoppingList merges the ingredients and numbers the result as
// unpurchased shopping items.
func BuildShoppingList(ingredients []Ingredient) []ShoppingItem {
	merged := MergeIngredients(ingredients)
	items := make([]ShoppingItem, len(merged))
	for i, ing := range merged {
		items[i] = ShoppingItem{
			ID:      ShoppingItemID(i, ing.Name),
			Name:    ing.Name,
			Measure: ing.Measure,
		}
	}
	return items
}

// ShoppingItemID composes an item id from its position and name.
func ShoppingItemID(index int, name string) string {
	return strconv.Itoa(index) + "-" + name
}
