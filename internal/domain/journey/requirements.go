package journey

import (
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// MasteryRequirement - одно требование мастерства класса.
type MasteryRequirement struct {
	Category shared.SkillCategory
	MinScore float64
}

// RequirementSet - набор требований для полного (HARD) завершения класса.
type RequirementSet struct {
	Grade        shared.Grade
	Requirements []MasteryRequirement
	// MinAttempts - минимум завершённых попыток за год,
	// чтобы полное завершение опиралось на достаточно наблюдений.
	MinAttempts int
}

// RequirementProgress - прогресс по одному требованию для проекций.
type RequirementProgress struct {
	Category shared.SkillCategory
	Current  float64
	Required float64
	Met      bool
}

// RequirementsFor возвращает требования мастерства для класса.
// Пороги растут с классом: базовый порог 35 плюс 3 за каждый класс,
// с потолком 80, одинаково по всем категориям.
func RequirementsFor(grade shared.Grade) RequirementSet {
	threshold := 35.0 + 3.0*float64(int(grade)-1)
	if threshold > 80 {
		threshold = 80
	}
	reqs := make([]MasteryRequirement, 0, len(shared.AllSkillCategories()))
	for _, cat := range shared.AllSkillCategories() {
		reqs = append(reqs, MasteryRequirement{Category: cat, MinScore: threshold})
	}
	minAttempts := 6 + int(grade)
	return RequirementSet{Grade: grade, Requirements: reqs, MinAttempts: minAttempts}
}

// Evaluate сопоставляет текущие навыки с требованиями.
// Категория без записанного счёта трактуется как 0.
func (rs RequirementSet) Evaluate(scores map[shared.SkillCategory]float64, attemptsCompleted int) ([]RequirementProgress, bool) {
	progress := make([]RequirementProgress, 0, len(rs.Requirements))
	allMet := attemptsCompleted >= rs.MinAttempts
	for _, req := range rs.Requirements {
		current := scores[req.Category]
		met := current >= req.MinScore
		if !met {
			allMet = false
		}
		progress = append(progress, RequirementProgress{
			Category: req.Category,
			Current:  current,
			Required: req.MinScore,
			Met:      met,
		})
	}
	return progress, allMet
}
