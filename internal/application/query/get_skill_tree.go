// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/projections"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SKILL TREE QUERY
// Дерево навыков для клиента: счёт, уровень, тренд и игровой уровень по
// каждой категории. Проекция фильтруется по роли: внутренняя полоса
// зрелости видна только учителям и администраторам. Ответ кешируется
// по (студент, роль) и сбрасывается при завершении попытки.
// ══════════════════════════════════════════════════════════════════════════════

// SkillTreeCache - read-through кеш проекции дерева навыков.
// Реализуется в инфраструктурном слое поверх Redis.
type SkillTreeCache interface {
	Get(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, role shared.Role) (*projections.SkillTreeView, error)
	Set(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, role shared.Role, view *projections.SkillTreeView, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) error
}

// GetSkillTreeQuery contains the query parameters.
type GetSkillTreeQuery struct {
	Identity shared.Identity
}

// Validate validates the query.
func (q GetSkillTreeQuery) Validate() error {
	return q.Identity.Validate()
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetSkillTreeHandler handles the GetSkillTreeQuery.
type GetSkillTreeHandler struct {
	skillRepo skill.Repository
	builder   *projections.SkillTreeBuilder
	cache     SkillTreeCache

	cacheTTL time.Duration
}

// GetSkillTreeHandlerConfig contains configuration for the handler.
type GetSkillTreeHandlerConfig struct {
	CacheTTL time.Duration
}

// DefaultGetSkillTreeHandlerConfig returns default configuration.
func DefaultGetSkillTreeHandlerConfig() GetSkillTreeHandlerConfig {
	return GetSkillTreeHandlerConfig{CacheTTL: 5 * time.Minute}
}

// NewGetSkillTreeHandler creates a new GetSkillTreeHandler.
func NewGetSkillTreeHandler(
	skillRepo skill.Repository,
	builder *projections.SkillTreeBuilder,
	cache SkillTreeCache,
	config GetSkillTreeHandlerConfig,
) *GetSkillTreeHandler {
	if config.CacheTTL == 0 {
		config = DefaultGetSkillTreeHandlerConfig()
	}
	return &GetSkillTreeHandler{
		skillRepo: skillRepo,
		builder:   builder,
		cache:     cache,
		cacheTTL:  config.CacheTTL,
	}
}

// Handle executes the get skill tree query.
func (h *GetSkillTreeHandler) Handle(ctx context.Context, q GetSkillTreeQuery) (*projections.SkillTreeView, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_skill_tree: validation failed: %w", err)
	}

	tenantID := q.Identity.TenantID
	studentID := q.Identity.StudentID
	role := q.Identity.Role

	if h.cache != nil {
		if view, err := h.cache.Get(ctx, tenantID, studentID, role); err == nil && view != nil {
			return view, nil
		}
	}

	skills, err := h.skillRepo.GetAll(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_skill_tree: failed to load skills: %w", err)
	}

	view := h.builder.Build(studentID, skills, role)

	if h.cache != nil {
		_ = h.cache.Set(ctx, tenantID, studentID, role, view, h.cacheTTL)
	}
	return view, nil
}
