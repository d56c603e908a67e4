package career

import (
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// IDGenerator produces unlock IDs. Wired to uuid in the composition root
// so the evaluator itself stays deterministic under test.
type IDGenerator func() string

// Evaluator matches a student's current skill scores against the catalog.
// Evaluation is pure and idempotent: careers already unlocked are skipped,
// and unlocks are never revoked even if scores later drop below threshold.
type Evaluator struct {
	catalog Catalog
	newID   IDGenerator
}

// NewEvaluator creates an evaluator over a catalog.
func NewEvaluator(catalog Catalog, newID IDGenerator) *Evaluator {
	return &Evaluator{catalog: catalog, newID: newID}
}

// CatalogVersion returns the version the evaluator matches against.
func (e *Evaluator) CatalogVersion() int {
	return e.catalog.Version
}

// Evaluate returns new unlocks for careers whose every requirement is met
// by the given blended skill scores. Careers in alreadyUnlocked are skipped.
func (e *Evaluator) Evaluate(
	tenantID shared.TenantID,
	studentID shared.StudentID,
	scores map[shared.SkillCategory]float64,
	alreadyUnlocked map[CareerID]bool,
	now time.Time,
) []*Unlock {
	var unlocks []*Unlock
	for _, def := range e.catalog.Careers {
		if alreadyUnlocked[def.ID] {
			continue
		}
		evidence, ok := e.meets(def, scores)
		if !ok {
			continue
		}
		unlock, err := NewUnlock(e.newID(), tenantID, studentID, def.ID, e.catalog.Version, evidence, now)
		if err != nil {
			continue
		}
		unlocks = append(unlocks, unlock)
	}
	return unlocks
}

// meets checks every requirement and collects the evidence that satisfied it.
// A category with no recorded score counts as 0, not as missing data.
func (e *Evaluator) meets(def Definition, scores map[shared.SkillCategory]float64) ([]Evidence, bool) {
	evidence := make([]Evidence, 0, len(def.Requirements))
	for _, req := range def.Requirements {
		score := scores[req.Category]
		if score < req.MinScore {
			return nil, false
		}
		evidence = append(evidence, Evidence{Category: req.Category, Score: score, Required: req.MinScore})
	}
	return evidence, true
}
