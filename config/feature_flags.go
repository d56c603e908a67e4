package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Supports per-student bucketing, grade targeting, and time-boxed experiments.
//
// Флаги позволяют выкатывать игровые механики постепенно: сначала на долю
// учеников, потом на всех, без передеплоя движка.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[string]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int

	// Grade targeting. Empty means all grades.
	TargetGrades []int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID string // student the request is about
	Grade     int    // current grade (0 = unknown)
	IsAdmin   bool   // tenant admin / service caller
}

// Predefined feature flag names.
const (
	// === Scoring Features ===
	FeatureScoringSpeedBonus  = "scoring.speed_bonus"  // XP bonus for fast correct answers
	FeatureScoringTrendArrows = "scoring.trend_arrows" // improving/declining arrows in views

	// === Career Features ===
	FeatureCareerUnlocks         = "career.unlocks"         // career unlock evaluation
	FeatureCareerRecommendations = "career.recommendations" // "almost unlocked" hints

	// === Progression Features ===
	FeatureProgressionSoftAlerts = "progression.soft_alerts" // notify on soft eligibility
	FeatureProgressionBadges     = "progression.badges"      // mastery badges on hard completion

	// === Narrative Features ===
	FeatureNarrativeRegeneration = "narrative.regeneration" // regenerate story on level-up

	// === Notification Features ===
	FeatureNotifyLevelUp      = "notify.level_up"      // "You reached level N!"
	FeatureNotifyCareerUnlock = "notify.career_unlock" // "New career unlocked!"
	FeatureNotifyParentDigest = "notify.parent_digest" // weekly summary for parents

	// === Experimental Features ===
	FeatureExperimentalAdaptiveDifficulty = "experimental.adaptive_difficulty" // difficulty steering
	FeatureExperimentalSkillDecay         = "experimental.skill_decay"         // score decay on inactivity
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Scoring features - core mechanics, enabled by default
	ff.features[FeatureScoringSpeedBonus] = &Feature{
		Name:           FeatureScoringSpeedBonus,
		Description:    "XP bonus for answering faster than expected",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScoringTrendArrows] = &Feature{
		Name:           FeatureScoringTrendArrows,
		Description:    "Show trend arrows in skill tree and summary",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Career features
	ff.features[FeatureCareerUnlocks] = &Feature{
		Name:           FeatureCareerUnlocks,
		Description:    "Evaluate career unlocks after submissions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCareerRecommendations] = &Feature{
		Name:           FeatureCareerRecommendations,
		Description:    "Show careers close to unlocking",
		Enabled:        true,
		RolloutPercent: 50, // Gradual rollout
	}

	// Progression features
	ff.features[FeatureProgressionSoftAlerts] = &Feature{
		Name:           FeatureProgressionSoftAlerts,
		Description:    "Notify when the academic year window closes",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureProgressionBadges] = &Feature{
		Name:           FeatureProgressionBadges,
		Description:    "Award mastery badges on hard completion",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Narrative features
	ff.features[FeatureNarrativeRegeneration] = &Feature{
		Name:           FeatureNarrativeRegeneration,
		Description:    "Request story regeneration on level-up",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Notification features - tuned to avoid spam
	ff.features[FeatureNotifyLevelUp] = &Feature{
		Name:           FeatureNotifyLevelUp,
		Description:    "Notify on game level increase",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyCareerUnlock] = &Feature{
		Name:           FeatureNotifyCareerUnlock,
		Description:    "Notify on new career unlock",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyParentDigest] = &Feature{
		Name:           FeatureNotifyParentDigest,
		Description:    "Weekly progress digest for parents",
		Enabled:        true,
		RolloutPercent: 50, // A/B test
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalAdaptiveDifficulty] = &Feature{
		Name:           FeatureExperimentalAdaptiveDifficulty,
		Description:    "Steer item difficulty by skill score",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalSkillDecay] = &Feature{
		Name:           FeatureExperimentalSkillDecay,
		Description:    "Decay skill scores during inactivity",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_SCORING_SPEED_BONUS=true
// Example: FEATURE_NOTIFY_PARENT_DIGEST=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "scoring.speed_bonus" -> "FEATURE_SCORING_SPEED_BONUS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	return ff.isEnabledLocked(featureName, ctx)
}

func (ff *FeatureFlags) isEnabledLocked(featureName string, ctx *FeatureContext) bool {
	// Check student overrides first
	if ctx != nil && ctx.StudentID != "" {
		if overrides, ok := ff.studentOverrides[ctx.StudentID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin callers get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check grade targeting
	if len(feature.TargetGrades) > 0 && ctx != nil && ctx.Grade != 0 {
		gradeMatch := false
		for _, g := range feature.TargetGrades {
			if g == ctx.Grade {
				gradeMatch = true
				break
			}
		}
		if !gradeMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != "" {
		return ff.isInRollout(ctx.StudentID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func (ff *FeatureFlags) isInRollout(studentID, featureName string, percent int) bool {
	// Create a consistent hash for this student+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a student.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.isEnabledLocked(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 || ctx == nil || ctx.StudentID == "" {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.StudentID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetStudentOverride sets a feature override for a specific student.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.studentOverrides[studentID]; !ok {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// ClearStudentOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearStudentOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.studentOverrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// NotificationsEnabled checks if any notifications are enabled.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyLevelUp, ctx) ||
		ff.IsEnabled(FeatureNotifyCareerUnlock, ctx) ||
		ff.IsEnabled(FeatureNotifyParentDigest, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
