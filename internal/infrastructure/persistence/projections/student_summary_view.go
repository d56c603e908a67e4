package projections

import (
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/progression"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT SUMMARY VIEW - Denormalized Read Model for parents and teachers
// ══════════════════════════════════════════════════════════════════════════════

// SummarySkill is the compact skill line on the summary screen.
type SummarySkill struct {
	Category     string  `json:"category"`
	Title        string  `json:"title"`
	Score        float64 `json:"score"`
	SkillLevel   string  `json:"skill_level"`
	Trend        string  `json:"trend"`
	MaturityBand string  `json:"maturity_band,omitempty"`
}

// SummaryGrade describes the current grade journey.
type SummaryGrade struct {
	Grade        int       `json:"grade"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	SoftEligible bool      `json:"soft_eligible"`
}

// SummaryCareer is one unlocked career on the summary screen.
type SummaryCareer struct {
	CareerID   string    `json:"career_id"`
	Title      string    `json:"title"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// SummaryAttempt is one recent attempt line.
type SummaryAttempt struct {
	AttemptID  string    `json:"attempt_id"`
	SubjectID  string    `json:"subject_id"`
	Status     string    `json:"status"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	XPAwarded  int       `json:"xp_awarded,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// StudentSummaryView aggregates a student's progress for parents and
// teachers. Maturity bands appear only in teacher/admin projections.
type StudentSummaryView struct {
	StudentID      string           `json:"student_id"`
	Grade          SummaryGrade     `json:"grade"`
	Skills         []SummarySkill   `json:"skills"`
	TotalXP        int              `json:"total_xp"`
	Careers        []SummaryCareer  `json:"careers"`
	Badges         []int            `json:"mastery_badges"` // grades with awarded badges
	RecentAttempts []SummaryAttempt `json:"recent_attempts"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// StudentSummaryBuilder assembles student summary views.
type StudentSummaryBuilder struct {
	skillCatalog  skill.Catalog
	careerCatalog career.Catalog
	bandTable     progression.BandTable
}

// NewStudentSummaryBuilder creates a new StudentSummaryBuilder.
func NewStudentSummaryBuilder(skillCatalog skill.Catalog, careerCatalog career.Catalog, bandTable progression.BandTable) *StudentSummaryBuilder {
	return &StudentSummaryBuilder{
		skillCatalog:  skillCatalog,
		careerCatalog: careerCatalog,
		bandTable:     bandTable,
	}
}

// Build assembles the summary view for the given role.
func (b *StudentSummaryBuilder) Build(
	studentID shared.StudentID,
	j *journey.GradeJourney,
	skills []*skill.SkillScore,
	unlocks []*career.Unlock,
	badges []*journey.MasteryBadge,
	recent []*attempt.Attempt,
	role shared.Role,
	now time.Time,
) *StudentSummaryView {
	view := &StudentSummaryView{
		StudentID:   studentID.String(),
		GeneratedAt: now,
	}

	if j != nil {
		view.Grade = SummaryGrade{
			Grade:        int(j.Grade),
			WindowStart:  j.Window.Start,
			WindowEnd:    j.Window.End,
			SoftEligible: j.SoftEligible(now),
		}
	}

	for _, s := range skills {
		def, _ := b.skillCatalog.Find(s.Category)
		line := SummarySkill{
			Category:   s.Category.String(),
			Title:      def.Title,
			Score:      s.Score,
			SkillLevel: string(s.Level),
			Trend:      string(s.Trend),
		}
		if role.CanSeeInternalBands() {
			line.MaturityBand = string(b.bandTable.BandFor(len(s.History), s.Score))
		}
		view.Skills = append(view.Skills, line)
		view.TotalXP += s.XP
	}

	for _, u := range unlocks {
		def, _ := b.careerCatalog.Find(u.CareerID)
		view.Careers = append(view.Careers, SummaryCareer{
			CareerID:   u.CareerID.String(),
			Title:      def.Title,
			UnlockedAt: u.UnlockedAt,
		})
	}

	for _, badge := range badges {
		view.Badges = append(view.Badges, int(badge.Grade))
	}

	for _, a := range recent {
		line := SummaryAttempt{
			AttemptID: a.ID.String(),
			SubjectID: a.SubjectID.String(),
			Status:    string(a.Status),
		}
		if a.Result != nil {
			line.Accuracy = a.Result.Accuracy
			line.XPAwarded = a.Result.XPAwarded
		}
		if a.FinishedAt != nil {
			line.FinishedAt = *a.FinishedAt
		}
		view.RecentAttempts = append(view.RecentAttempts, line)
	}

	return view
}
