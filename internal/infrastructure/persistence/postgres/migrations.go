package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE TENANTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create tenants table
-- Version: 001
-- Every row of every other table carries a tenant_id; tenants hold the
-- per-partner API credential and academic year configuration.

CREATE TABLE IF NOT EXISTS tenants (
    id UUID PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    api_key_hash TEXT NOT NULL,
    year_start_month SMALLINT NOT NULL DEFAULT 6,
    year_start_day SMALLINT NOT NULL DEFAULT 1,
    year_end_month SMALLINT NOT NULL DEFAULT 5,
    year_end_day SMALLINT NOT NULL DEFAULT 31,
    year_timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_year_start_month CHECK (year_start_month BETWEEN 1 AND 12),
    CONSTRAINT valid_year_start_day CHECK (year_start_day BETWEEN 1 AND 31),
    CONSTRAINT valid_year_end_month CHECK (year_end_month BETWEEN 1 AND 12),
    CONSTRAINT valid_year_end_day CHECK (year_end_day BETWEEN 1 AND 31)
);

CREATE INDEX IF NOT EXISTS idx_tenants_active ON tenants(active) WHERE active = TRUE;
`

const migration001Down = `
DROP TABLE IF EXISTS tenants;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ATTEMPTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create attempts table
-- Version: 002
-- One row per attempt. The item set is frozen as JSONB at start so scoring
-- stays deterministic even when the content catalog moves on.

CREATE TABLE IF NOT EXISTS attempts (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    student_id UUID NOT NULL,
    subject_id VARCHAR(64) NOT NULL,
    subject_kind VARCHAR(16) NOT NULL,
    attempt_number INTEGER NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'IN_PROGRESS',
    abandoned_reason VARCHAR(16),
    item_set JSONB NOT NULL,
    progress JSONB NOT NULL DEFAULT '{}'::jsonb,
    result JSONB,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,

    -- Constraints for data integrity
    CONSTRAINT valid_subject_kind CHECK (subject_kind IN ('assessment', 'quest')),
    CONSTRAINT valid_attempt_status CHECK (status IN ('IN_PROGRESS', 'COMPLETED', 'ABANDONED')),
    CONSTRAINT valid_attempt_number CHECK (attempt_number >= 1),
    CONSTRAINT valid_abandoned_reason CHECK (abandoned_reason IS NULL OR abandoned_reason IN ('explicit', 'expired')),
    -- A COMPLETED attempt always carries its frozen scoring result
    CONSTRAINT completed_has_result CHECK (status != 'COMPLETED' OR result IS NOT NULL),
    -- Terminal attempts always carry their close timestamp
    CONSTRAINT terminal_has_finished_at CHECK (status = 'IN_PROGRESS' OR finished_at IS NOT NULL)
);

-- Attempt numbers are sequential per (student, subject) and never reused
CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_number
    ON attempts(tenant_id, student_id, subject_id, attempt_number);

-- At most one open attempt per (student, subject); concurrent starts race
-- on this index and the loser gets a unique violation
CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_single_open
    ON attempts(tenant_id, student_id, subject_id) WHERE status = 'IN_PROGRESS';

-- Recent attempts for student history views
CREATE INDEX IF NOT EXISTS idx_attempts_student_recent
    ON attempts(tenant_id, student_id, started_at DESC);

-- Stale-attempt sweep scans open attempts by last activity, across tenants
CREATE INDEX IF NOT EXISTS idx_attempts_stale_scan
    ON attempts(updated_at) WHERE status = 'IN_PROGRESS';

-- Completed-in-window counting for grade mastery evaluation
CREATE INDEX IF NOT EXISTS idx_attempts_completed_window
    ON attempts(tenant_id, student_id, finished_at) WHERE status = 'COMPLETED';
`

const migration002Down = `
DROP TABLE IF EXISTS attempts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE SKILL SCORES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create skill_scores table
-- Version: 003
-- One row per (student, category). The observation history rides along as
-- append-only JSONB; level and trend are derived but stored for cheap reads.

CREATE TABLE IF NOT EXISTS skill_scores (
    tenant_id UUID NOT NULL,
    student_id UUID NOT NULL,
    category VARCHAR(32) NOT NULL,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    level VARCHAR(16) NOT NULL DEFAULT 'EMERGING',
    trend VARCHAR(20) NOT NULL DEFAULT 'STABLE',
    xp INTEGER NOT NULL DEFAULT 0,
    history JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (tenant_id, student_id, category),

    -- Constraints for data integrity
    CONSTRAINT valid_category CHECK (category IN (
        'COGNITIVE_REASONING', 'PLANNING', 'CREATIVITY',
        'COMMUNICATION', 'FOCUS', 'RESILIENCE'
    )),
    CONSTRAINT valid_score CHECK (score >= 0 AND score <= 100),
    CONSTRAINT valid_level CHECK (level IN ('EMERGING', 'DEVELOPING', 'PROFICIENT', 'ADVANCED')),
    CONSTRAINT valid_trend CHECK (trend IN ('IMPROVING', 'STABLE', 'NEEDS_ATTENTION')),
    CONSTRAINT valid_xp CHECK (xp >= 0)
);
`

const migration003Down = `
DROP TABLE IF EXISTS skill_scores;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE CAREERS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create career_unlocks and career_evaluations tables
-- Version: 004
-- Unlocks are immutable facts and are never revoked. Evaluations track the
-- catalog version a student was last checked against, feeding the
-- re-evaluation sweep after a catalog upgrade.

CREATE TABLE IF NOT EXISTS career_unlocks (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    student_id UUID NOT NULL,
    career_id VARCHAR(64) NOT NULL,
    catalog_version INTEGER NOT NULL,
    evidence JSONB NOT NULL DEFAULT '[]'::jsonb,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,

    -- At most one unlock per (student, career); concurrent evaluators race
    -- on this constraint and the duplicate insert is swallowed
    CONSTRAINT career_unlocked_once UNIQUE (tenant_id, student_id, career_id),
    CONSTRAINT valid_catalog_version CHECK (catalog_version >= 1)
);

CREATE INDEX IF NOT EXISTS idx_career_unlocks_student
    ON career_unlocks(tenant_id, student_id, unlocked_at);

CREATE TABLE IF NOT EXISTS career_evaluations (
    tenant_id UUID NOT NULL,
    student_id UUID NOT NULL,
    catalog_version INTEGER NOT NULL,
    evaluated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (tenant_id, student_id)
);

-- Re-evaluation sweep: students last evaluated against an older catalog
CREATE INDEX IF NOT EXISTS idx_career_evaluations_version
    ON career_evaluations(catalog_version);
`

const migration004Down = `
DROP TABLE IF EXISTS career_evaluations;
DROP TABLE IF EXISTS career_unlocks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: CREATE GRADE JOURNEYS
// ══════════════════════════════════════════════════════════════════════════════

const migration005Up = `
-- Migration: Create grade_journeys and mastery_badges tables
-- Version: 005
-- A student observably has exactly one IN_PROGRESS journey. PENDING rows
-- exist only mid-promotion: the new journey is created inactive and
-- activated in the same transaction that closes the old one.

CREATE TABLE IF NOT EXISTS grade_journeys (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    student_id UUID NOT NULL,
    grade SMALLINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'IN_PROGRESS',
    window_start TIMESTAMP WITH TIME ZONE NOT NULL,
    window_end TIMESTAMP WITH TIME ZONE NOT NULL,
    completion_type VARCHAR(8),
    summary JSONB,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE,

    -- Constraints for data integrity
    CONSTRAINT valid_grade CHECK (grade BETWEEN 1 AND 12),
    CONSTRAINT valid_journey_status CHECK (status IN ('PENDING', 'IN_PROGRESS', 'COMPLETED')),
    CONSTRAINT valid_window CHECK (window_end > window_start),
    -- A COMPLETED journey always records how it closed and its frozen summary
    CONSTRAINT completed_has_type CHECK (status != 'COMPLETED' OR completion_type IN ('SOFT', 'HARD')),
    CONSTRAINT completed_has_summary CHECK (status != 'COMPLETED' OR summary IS NOT NULL)
);

-- Exactly one open journey per student
CREATE UNIQUE INDEX IF NOT EXISTS idx_journeys_single_open
    ON grade_journeys(tenant_id, student_id) WHERE status = 'IN_PROGRESS';

-- At most one pending journey per student (interrupted promotion leftover)
CREATE UNIQUE INDEX IF NOT EXISTS idx_journeys_single_pending
    ON grade_journeys(tenant_id, student_id) WHERE status = 'PENDING';

-- Promotion sweep: open journeys whose academic year window has ended
CREATE INDEX IF NOT EXISTS idx_journeys_soft_eligible
    ON grade_journeys(window_end) WHERE status = 'IN_PROGRESS';

CREATE INDEX IF NOT EXISTS idx_journeys_student
    ON grade_journeys(tenant_id, student_id, started_at);

CREATE TABLE IF NOT EXISTS mastery_badges (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL,
    student_id UUID NOT NULL,
    grade SMALLINT NOT NULL,
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL,

    -- One badge per (student, grade), never revoked
    CONSTRAINT badge_awarded_once UNIQUE (tenant_id, student_id, grade),
    CONSTRAINT valid_badge_grade CHECK (grade BETWEEN 1 AND 12)
);

CREATE INDEX IF NOT EXISTS idx_mastery_badges_student
    ON mastery_badges(tenant_id, student_id, awarded_at);
`

const migration005Down = `
DROP TABLE IF EXISTS mastery_badges;
DROP TABLE IF EXISTS grade_journeys;
`
