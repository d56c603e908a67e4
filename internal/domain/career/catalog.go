package career

import "github.com/edugami/edugami-engine/internal/domain/shared"

// Catalog is the versioned career reference data. Compiled in; a version
// bump triggers the background re-evaluation sweep so existing students
// pick up newly reachable careers.
type Catalog struct {
	Version int
	Careers []Definition
}

// Find returns the definition for a career ID.
func (c Catalog) Find(id CareerID) (Definition, bool) {
	for _, d := range c.Careers {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Validate checks catalog integrity: non-empty, unique IDs, valid categories.
func (c Catalog) Validate() error {
	if len(c.Careers) == 0 {
		return shared.ErrEmptyCatalog
	}
	seen := make(map[CareerID]bool, len(c.Careers))
	for _, d := range c.Careers {
		if !d.ID.IsValid() || seen[d.ID] {
			return shared.ErrEmptyCatalog
		}
		seen[d.ID] = true
		for _, r := range d.Requirements {
			if !r.Category.IsValid() {
				return shared.ErrEmptyCatalog
			}
		}
	}
	return nil
}

// DefaultCatalog returns the current built-in career catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Version: 5,
		Careers: []Definition{
			{
				ID:           "game_designer",
				Title:        "Game Designer",
				Description:  "Invents worlds, rules, and stories that players love.",
				LinkedSkills: []shared.SkillCategory{shared.SkillCreativity, shared.SkillPlanning},
				Requirements: []Requirement{
					{Category: shared.SkillCreativity, MinScore: 60},
					{Category: shared.SkillPlanning, MinScore: 50},
				},
			},
			{
				ID:           "software_engineer",
				Title:        "Software Engineer",
				Description:  "Builds the apps and systems the world runs on.",
				LinkedSkills: []shared.SkillCategory{shared.SkillCognitiveReasoning, shared.SkillFocus},
				Requirements: []Requirement{
					{Category: shared.SkillCognitiveReasoning, MinScore: 65},
					{Category: shared.SkillFocus, MinScore: 55},
				},
			},
			{
				ID:           "journalist",
				Title:        "Journalist",
				Description:  "Finds the story and tells it so everyone understands.",
				LinkedSkills: []shared.SkillCategory{shared.SkillCommunication, shared.SkillResilience},
				Requirements: []Requirement{
					{Category: shared.SkillCommunication, MinScore: 60},
					{Category: shared.SkillResilience, MinScore: 45},
				},
			},
			{
				ID:           "architect",
				Title:        "Architect",
				Description:  "Designs buildings where form meets careful planning.",
				LinkedSkills: []shared.SkillCategory{shared.SkillPlanning, shared.SkillCreativity},
				Requirements: []Requirement{
					{Category: shared.SkillPlanning, MinScore: 70},
					{Category: shared.SkillCreativity, MinScore: 55},
				},
			},
			{
				ID:           "research_scientist",
				Title:        "Research Scientist",
				Description:  "Asks hard questions and chases answers through experiments.",
				LinkedSkills: []shared.SkillCategory{shared.SkillCognitiveReasoning, shared.SkillResilience},
				Requirements: []Requirement{
					{Category: shared.SkillCognitiveReasoning, MinScore: 75},
					{Category: shared.SkillResilience, MinScore: 60},
				},
			},
			{
				ID:           "team_coach",
				Title:        "Team Coach",
				Description:  "Helps groups of people do their best work together.",
				LinkedSkills: []shared.SkillCategory{shared.SkillCommunication, shared.SkillPlanning},
				Requirements: []Requirement{
					{Category: shared.SkillCommunication, MinScore: 70},
					{Category: shared.SkillPlanning, MinScore: 50},
				},
			},
		},
	}
}
