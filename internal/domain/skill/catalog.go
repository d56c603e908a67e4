package skill

import "github.com/edugami/edugami-engine/internal/domain/shared"

// Definition is the static reference data for one skill category: the copy
// shown in the skill tree and the icon key the client renders.
type Definition struct {
	Category    shared.SkillCategory
	Title       string
	Description string
	Icon        string
}

// Catalog is the versioned set of skill definitions. Reference data is
// compiled in; version bumps accompany copy or category-mapping changes.
type Catalog struct {
	Version     int
	Definitions []Definition
}

// DefaultCatalog returns the current built-in skill catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Version: 3,
		Definitions: []Definition{
			{
				Category:    shared.SkillCognitiveReasoning,
				Title:       "Cognitive Reasoning",
				Description: "Spotting patterns, drawing conclusions, and working through logic puzzles.",
				Icon:        "brain",
			},
			{
				Category:    shared.SkillPlanning,
				Title:       "Planning",
				Description: "Breaking a goal into steps and sequencing them before acting.",
				Icon:        "map",
			},
			{
				Category:    shared.SkillCreativity,
				Title:       "Creativity",
				Description: "Generating original ideas and unusual combinations.",
				Icon:        "spark",
			},
			{
				Category:    shared.SkillCommunication,
				Title:       "Communication",
				Description: "Expressing ideas clearly and understanding what others mean.",
				Icon:        "chat",
			},
			{
				Category:    shared.SkillFocus,
				Title:       "Focus",
				Description: "Sustaining attention on a task and resisting distraction.",
				Icon:        "target",
			},
			{
				Category:    shared.SkillResilience,
				Title:       "Resilience",
				Description: "Recovering from mistakes and persisting through hard problems.",
				Icon:        "shield",
			},
		},
	}
}

// Find returns the definition for a category.
func (c Catalog) Find(category shared.SkillCategory) (Definition, bool) {
	for _, d := range c.Definitions {
		if d.Category == category {
			return d, true
		}
	}
	return Definition{}, false
}
