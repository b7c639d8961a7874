package drinks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds Drink.Title in characters.
const MaxTitleLength = 80

// Recipe is an ordered list of ingredients. A single JSON object is accepted
// as a one-ingredient recipe.
type Recipe []Ingredient

// UnmarshalJSON implements json.Unmarshaler.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single Ingredient
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*r = Recipe{single}
		return nil
	}

	var list []Ingredient
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*r = list
	return nil
}

// Clone returns a deep copy of the recipe.
func (r Recipe) Clone() Recipe {
	if r == nil {
		return nil
	}
	out := make(Recipe, len(r))
	copy(out, r)
	return out
}

// Clone returns a copy of d that shares no memory with it.
func (d Drink) Clone() Drink {
	d.Recipe = d.Recipe.Clone()
	return d
}

// Short returns the public representation of d.
func (d Drink) Short() ShortDrink {
	recipe := make([]ShortIngredient, 0, len(d.Recipe))
	for _, ing := range d.Recipe {
		recipe = append(recipe, ShortIngredient{Color: ing.Color, Parts: ing.Parts})
	}
	return ShortDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// Long returns the full representation of d.
func (d Drink) Long() Drink {
	out := d.Clone()
	if out.Recipe == nil {
		out.Recipe = Recipe{}
	}
	return out
}

// Validate checks the title and every ingredient of d.
func (d Drink) Validate() error {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDrink)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidDrink, MaxTitleLength)
	}
	if len(d.Recipe) == 0 {
		return fmt.Errorf("%w: recipe must contain at least one ingredient", ErrInvalidDrink)
	}
	for i, ing := range d.Recipe {
		if strings.TrimSpace(ing.Name) == "" {
			return fmt.Errorf("%w: ingredient %d has no name", ErrInvalidDrink, i)
		}
		if strings.TrimSpace(ing.Color) == "" {
			return fmt.Errorf("%w: ingredient %d has no color", ErrInvalidDrink, i)
		}
		if ing.Parts <= 0 {
			return fmt.Errorf("%w: ingredient %d must have a positive number of parts", ErrInvalidDrink, i)
		}
	}
	return nil
}

// Sample is the drink seeded into a freshly reset store.
func Sample() Drink {
	return Drink{
		Title:  "water",
		Recipe: Recipe{{Name: "water", Color: "blue", Parts: 1}},
	}
}
