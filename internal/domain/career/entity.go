// Package career contains the career discovery model: a versioned static
// catalog of careers linked to skill categories, and immutable unlock
// records produced by the evaluator when a student's skills qualify.
package career

import (
	"errors"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// CareerID identifies a career in the catalog (slug, e.g. "game_designer").
type CareerID string

// IsValid checks that the career ID is non-empty.
func (id CareerID) IsValid() bool {
	return id != ""
}

// String returns the string representation.
func (id CareerID) String() string {
	return string(id)
}

// Requirement is one threshold a student's skill must meet.
type Requirement struct {
	Category shared.SkillCategory
	MinScore float64 // against the running blended skill score
}

// Definition is the static reference data for one career.
type Definition struct {
	ID           CareerID
	Title        string
	Description  string
	LinkedSkills []shared.SkillCategory
	Requirements []Requirement
}

// Evidence records why an unlock fired: the score that met each requirement
// at evaluation time. Frozen on the unlock so later score drift cannot
// rewrite history.
type Evidence struct {
	Category shared.SkillCategory
	Score    float64
	Required float64
}

// Unlock is an immutable record that a career became visible to a student.
// Unlocks are never revoked; at most one exists per (student, career).
type Unlock struct {
	ID             string
	TenantID       shared.TenantID
	StudentID      shared.StudentID
	CareerID       CareerID
	CatalogVersion int
	Evidence       []Evidence
	UnlockedAt     time.Time
}

// NewUnlock creates an unlock record.
func NewUnlock(
	id string,
	tenantID shared.TenantID,
	studentID shared.StudentID,
	careerID CareerID,
	catalogVersion int,
	evidence []Evidence,
	at time.Time,
) (*Unlock, error) {
	if id == "" {
		return nil, errors.New("career: invalid unlock ID")
	}
	if !tenantID.IsValid() {
		return nil, shared.ErrInvalidTenantID
	}
	if !studentID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}
	if !careerID.IsValid() {
		return nil, shared.ErrCareerNotFound
	}
	return &Unlock{
		ID:             id,
		TenantID:       tenantID,
		StudentID:      studentID,
		CareerID:       careerID,
		CatalogVersion: catalogVersion,
		Evidence:       evidence,
		UnlockedAt:     at,
	}, nil
}
