// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TenantID represents a unique tenant (school/district) identifier.
// Every core operation is scoped to exactly one tenant.
type TenantID string

// IsValid checks if the tenant ID is a valid UUID.
func (t TenantID) IsValid() bool {
	return uuidRegex.MatchString(string(t))
}

// String returns the string representation.
func (t TenantID) String() string {
	return string(t)
}

// NewTenantID creates a new TenantID with validation.
func NewTenantID(id string) (TenantID, error) {
	t := TenantID(strings.TrimSpace(id))
	if !t.IsValid() {
		return "", ErrInvalidTenantID
	}
	return t, nil
}

// StudentID represents a unique student identifier (UUID format).
type StudentID string

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	s := StudentID(strings.TrimSpace(id))
	if !s.IsValid() {
		return "", ErrInvalidStudentID
	}
	return s, nil
}

// SubjectID identifies an assessment game or a quest (e.g. "pattern_forge").
// Subject IDs come from the content catalog and are slug-formatted.
type SubjectID string

var subjectIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// IsValid checks if the subject ID has a valid slug format.
func (s SubjectID) IsValid() bool {
	return subjectIDRegex.MatchString(string(s))
}

// String returns the string representation.
func (s SubjectID) String() string {
	return string(s)
}

// NewSubjectID creates a new SubjectID with validation.
func NewSubjectID(id string) (SubjectID, error) {
	s := SubjectID(strings.TrimSpace(strings.ToLower(id)))
	if !s.IsValid() {
		return "", ErrInvalidSubjectID
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Subject Kind
// ═══════════════════════════════════════════════════════════════════════════

// SubjectKind distinguishes assessment games from daily quests.
// Both share the same attempt lifecycle; they differ in content shape and scoring.
type SubjectKind string

const (
	// SubjectKindAssessment is a cognitive/behavioral assessment game.
	SubjectKindAssessment SubjectKind = "assessment"

	// SubjectKindQuest is a daily quest (may carry zero scoreable questions).
	SubjectKindQuest SubjectKind = "quest"
)

// IsValid checks that the subject kind is one of the known values.
func (k SubjectKind) IsValid() bool {
	return k == SubjectKindAssessment || k == SubjectKindQuest
}

// String returns the string representation.
func (k SubjectKind) String() string {
	return string(k)
}

// ═══════════════════════════════════════════════════════════════════════════
// Role
// ═══════════════════════════════════════════════════════════════════════════

// Role is the authenticated caller's role, supplied by the identity provider.
// The core trusts this value and never re-derives identity.
type Role string

const (
	// RoleStudent - the student themselves. Never sees internal classifications.
	RoleStudent Role = "student"

	// RoleParent - a parent/guardian viewing summarized progress.
	RoleParent Role = "parent"

	// RoleTeacher - a teacher; may see maturity bands and requirement progress.
	RoleTeacher Role = "teacher"

	// RoleAdmin - tenant administrator; full visibility.
	RoleAdmin Role = "admin"
)

// IsValid checks that the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleParent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanSeeInternalBands reports whether this role may see internal maturity bands.
// Student- and parent-facing projections must never include them.
func (r Role) CanSeeInternalBands() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// ═══════════════════════════════════════════════════════════════════════════
// Skill Categories
// ═══════════════════════════════════════════════════════════════════════════

// SkillCategory is one of a fixed set of cognitive/behavioral dimensions
// tracked per student. The set is closed: score blobs are typed maps keyed by
// this enumeration, never open-ended string dictionaries.
type SkillCategory string

const (
	SkillCognitiveReasoning SkillCategory = "COGNITIVE_REASONING"
	SkillPlanning           SkillCategory = "PLANNING"
	SkillCreativity         SkillCategory = "CREATIVITY"
	SkillCommunication      SkillCategory = "COMMUNICATION"
	SkillFocus              SkillCategory = "FOCUS"
	SkillResilience         SkillCategory = "RESILIENCE"
)

// AllSkillCategories returns the closed category set in stable order.
func AllSkillCategories() []SkillCategory {
	return []SkillCategory{
		SkillCognitiveReasoning,
		SkillPlanning,
		SkillCreativity,
		SkillCommunication,
		SkillFocus,
		SkillResilience,
	}
}

// IsValid checks that the category belongs to the closed set.
func (c SkillCategory) IsValid() bool {
	switch c {
	case SkillCognitiveReasoning, SkillPlanning, SkillCreativity,
		SkillCommunication, SkillFocus, SkillResilience:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (c SkillCategory) String() string {
	return string(c)
}

// DisplayName returns the human-readable category name.
func (c SkillCategory) DisplayName() string {
	switch c {
	case SkillCognitiveReasoning:
		return "Cognitive Reasoning"
	case SkillPlanning:
		return "Planning"
	case SkillCreativity:
		return "Creativity"
	case SkillCommunication:
		return "Communication"
	case SkillFocus:
		return "Focus"
	case SkillResilience:
		return "Resilience"
	default:
		return string(c)
	}
}

// ParseSkillCategory parses a string into a SkillCategory.
func ParseSkillCategory(s string) (SkillCategory, error) {
	c := SkillCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown skill category %q", ErrInvalidInput, s)
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Grade
// ═══════════════════════════════════════════════════════════════════════════

// Grade represents an academic grade (year) from 1 to 12.
type Grade int

// IsValid checks that the grade is within the supported range.
func (g Grade) IsValid() bool {
	return g >= 1 && g <= 12
}

// Next returns the grade a student is promoted into.
// Grade 12 is terminal; Next returns 12 again so promotion of the final
// grade closes the journey without opening an out-of-range one.
func (g Grade) Next() Grade {
	if g >= 12 {
		return 12
	}
	return g + 1
}

// IsTerminal reports whether this is the final supported grade.
func (g Grade) IsTerminal() bool {
	return g >= 12
}

// String returns the string representation.
func (g Grade) String() string {
	return fmt.Sprintf("grade-%d", int(g))
}

// ═══════════════════════════════════════════════════════════════════════════
// Identity context
// ═══════════════════════════════════════════════════════════════════════════

// Identity is the authenticated (tenant, user, role) triple supplied to every
// core operation by the identity/tenant provider.
type Identity struct {
	TenantID  TenantID
	StudentID StudentID // subject of the session; for parents/teachers this is the viewed student
	Role      Role
}

// Validate checks the identity triple.
func (i Identity) Validate() error {
	if !i.TenantID.IsValid() {
		return ErrInvalidTenantID
	}
	if !i.StudentID.IsValid() {
		return ErrInvalidStudentID
	}
	if !i.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, i.Role)
	}
	return nil
}
