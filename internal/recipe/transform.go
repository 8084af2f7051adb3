package recipe

import "strings"

// Transform converts an upstream record into a normalized Recipe.
// Ingredients keep slot order; slots with a blank name are skipped.
func Transform(raw Raw) Recipe {
	ingredients := make([]Ingredient, 0, SlotCount)
	for _, slot := range raw.Slots {
		if slot.Ingredient == nil {
			continue
		}
		name := strings.TrimSpace(*slot.Ingredient)
		if name == "" {
			continue
		}
		measure := ""
		if slot.Measure != nil {
			measure = strings.TrimSpace(*slot.Measure)
		}
		ingredients = append(ingredients, Ingredient{Name: name, Measure: measure})
	}

	return Recipe{
		ID:           raw.ID,
		Name:         raw.Name,
		Category:     raw.Category,
		Area:         raw.Area,
		Instructions: raw.Instructions,
		Thumbnail:    raw.Thumbnail,
		Tags:         splitTags(raw.Tags),
		YoutubeURL:   raw.YoutubeURL,
		Ingredients:  ingredients,
	}
}

// splitTags splits the comma separated tag field. Empty tokens produced by
// trailing or doubled commas are kept.
func splitTags(tags *string) []string {
	if tags == nil || *tags == "" {
		return []string{}
	}
	parts := strings.Split(*tags, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
