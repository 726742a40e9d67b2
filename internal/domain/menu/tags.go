package menu

import (
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
)

type DietaryTag string

const (
	TagVegetarian    DietaryTag = "vegetarian"
	TagVegan         DietaryTag = "vegan"
	TagPoultry       DietaryTag = "poultry"
	TagPork          DietaryTag = "pork"
	TagBeef          DietaryTag = "beef"
	TagFish          DietaryTag = "fish"
	TagAlcohol       DietaryTag = "alcohol"
	TagContainsMilk  DietaryTag = "contains_milk"
	TagContainsEgg   DietaryTag = "contains_egg"
	TagContainsWheat DietaryTag = "contains_wheat"
)

func (m *Meal) Tags() []DietaryTag {
	var out []DietaryTag
	if m == nil || len(m.DietaryTags) == 0 {
		return []DietaryTag{}
	}
	if err := json.Unmarshal(m.DietaryTags, &out); err != nil || out == nil {
		return []DietaryTag{}
	}
	return out
}

// SetTags stores tags deduplicated and sorted.
func (m *Meal) SetTags(tags []DietaryTag) {
	seen := map[DietaryTag]bool{}
	out := make([]DietaryTag, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	b, _ := json.Marshal(out)
	m.DietaryTags = datatypes.JSON(b)
}
