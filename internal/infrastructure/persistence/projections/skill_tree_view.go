// Package projections implements read models for CQRS pattern.
// Builders are pure: they assemble role-filtered views from domain
// aggregates and never touch storage themselves.
package projections

import (
	"time"

	"github.com/edugami/edugami-engine/internal/domain/progression"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL TREE VIEW - Denormalized Read Model for the Skill Tree screen
// ══════════════════════════════════════════════════════════════════════════════

// SkillNode is one category in the skill tree.
// MaturityBand is empty for student- and parent-facing views: the internal
// classification never leaves the teacher/admin projection.
type SkillNode struct {
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Score       float64 `json:"score"`
	SkillLevel  string  `json:"skill_level"`
	Trend       string  `json:"trend"`
	XP          int     `json:"xp"`
	GameLevel   int     `json:"game_level"`
	LevelTitle  string  `json:"level_title"`
	XPToNext    int     `json:"xp_to_next"` // 0 at the level cap

	MaturityBand string `json:"maturity_band,omitempty"`
	Observations int    `json:"observations,omitempty"`
}

// SkillTreeView is the complete skill tree for one student.
type SkillTreeView struct {
	StudentID      string      `json:"student_id"`
	Nodes          []SkillNode `json:"nodes"`
	TotalXP        int         `json:"total_xp"`
	CatalogVersion int         `json:"catalog_version"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

// SkillTreeBuilder assembles skill tree views.
type SkillTreeBuilder struct {
	catalog    skill.Catalog
	levelTable progression.LevelTable
	bandTable  progression.BandTable
}

// NewSkillTreeBuilder creates a new SkillTreeBuilder.
func NewSkillTreeBuilder(catalog skill.Catalog, levelTable progression.LevelTable, bandTable progression.BandTable) *SkillTreeBuilder {
	if !levelTable.IsValid() {
		levelTable = progression.DefaultLevelTable()
	}
	return &SkillTreeBuilder{catalog: catalog, levelTable: levelTable, bandTable: bandTable}
}

// Build assembles the view. Categories follow catalog order; a category the
// student has no row for yet appears zeroed, so the tree shape is stable.
func (b *SkillTreeBuilder) Build(studentID shared.StudentID, skills []*skill.SkillScore, role shared.Role) *SkillTreeView {
	byCat := make(map[shared.SkillCategory]*skill.SkillScore, len(skills))
	for _, s := range skills {
		byCat[s.Category] = s
	}

	view := &SkillTreeView{
		StudentID:      studentID.String(),
		Nodes:          make([]SkillNode, 0, len(b.catalog.Definitions)),
		CatalogVersion: b.catalog.Version,
		GeneratedAt:    time.Now().UTC(),
	}

	for _, def := range b.catalog.Definitions {
		node := SkillNode{
			Category:    def.Category.String(),
			Title:       def.Title,
			Description: def.Description,
			Icon:        def.Icon,
			SkillLevel:  string(skill.LevelEmerging),
			Trend:       string(skill.TrendStable),
		}

		if s, ok := byCat[def.Category]; ok {
			node.Score = s.Score
			node.SkillLevel = string(s.Level)
			node.Trend = string(s.Trend)
			node.XP = s.XP
			view.TotalXP += s.XP

			if role.CanSeeInternalBands() {
				node.MaturityBand = string(b.bandTable.BandFor(len(s.History), s.Score))
				node.Observations = len(s.History)
			}
		}

		level := b.levelTable.LevelFor(node.XP)
		node.GameLevel = int(level)
		node.LevelTitle = b.levelTable.TitleFor(level)
		node.XPToNext = b.xpToNext(node.XP)

		view.Nodes = append(view.Nodes, node)
	}
	return view
}

// xpToNext returns how much XP remains to the next level boundary.
func (b *SkillTreeBuilder) xpToNext(xp int) int {
	for _, th := range b.levelTable.Thresholds {
		if th.MinXP > xp {
			return th.MinXP - xp
		}
	}
	return 0
}
