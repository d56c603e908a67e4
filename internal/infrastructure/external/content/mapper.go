package content

import (
	"fmt"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - Wire DTOs to domain types
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts content service DTOs into domain types. A malformed item
// set is rejected whole: a frozen attempt must never carry an item the
// scorer cannot grade.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ItemSetFromDTO converts an ItemSetDTO into a domain ItemSet.
func (m *Mapper) ItemSetFromDTO(dto *ItemSetDTO) (attempt.ItemSet, error) {
	subjectID := shared.SubjectID(dto.SubjectID)
	if !subjectID.IsValid() {
		return attempt.ItemSet{}, fmt.Errorf("item set has invalid subject id %q", dto.SubjectID)
	}
	if dto.CatalogVersion <= 0 {
		return attempt.ItemSet{}, fmt.Errorf("item set has invalid catalog version %d", dto.CatalogVersion)
	}

	items := make([]attempt.Item, 0, len(dto.Items))
	seen := make(map[string]bool, len(dto.Items))
	for _, it := range dto.Items {
		item, err := m.itemFromDTO(it)
		if err != nil {
			return attempt.ItemSet{}, err
		}
		if seen[item.ID] {
			return attempt.ItemSet{}, fmt.Errorf("item set has duplicate item %q", item.ID)
		}
		seen[item.ID] = true
		items = append(items, item)
	}

	return attempt.ItemSet{
		SubjectID:      subjectID,
		CatalogVersion: dto.CatalogVersion,
		Items:          items,
	}, nil
}

// itemFromDTO converts a single ItemDTO.
func (m *Mapper) itemFromDTO(dto ItemDTO) (attempt.Item, error) {
	if dto.ID == "" {
		return attempt.Item{}, fmt.Errorf("item has empty id")
	}

	itemType := attempt.ItemType(dto.Type)
	if !itemType.IsValid() {
		return attempt.Item{}, fmt.Errorf("item %q has unknown type %q", dto.ID, dto.Type)
	}

	categories := make([]shared.SkillCategory, 0, len(dto.Categories))
	for _, raw := range dto.Categories {
		category, err := shared.ParseSkillCategory(raw)
		if err != nil {
			return attempt.Item{}, fmt.Errorf("item %q: %w", dto.ID, err)
		}
		categories = append(categories, category)
	}

	return attempt.Item{
		ID:                dto.ID,
		Type:              itemType,
		Categories:        categories,
		CorrectChoice:     dto.CorrectChoice,
		CorrectSelections: dto.CorrectSelections,
		AcceptedAnswers:   dto.AcceptedAnswers,
		NumericAnswer:     dto.NumericAnswer,
		ExpectedTimeMs:    dto.ExpectedTimeMs,
	}, nil
}
