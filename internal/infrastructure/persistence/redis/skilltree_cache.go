package redis

import (
	"context"
	"errors"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/projections"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL TREE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// SkillTreeCache caches built skill tree projections per (student, role).
// The role is part of the key because teacher projections carry internal
// maturity bands that student and parent projections never do.
// Implements query.SkillTreeCache and eventhandler.SkillTreeInvalidator.
type SkillTreeCache struct {
	cache *Cache
}

// NewSkillTreeCache creates a new SkillTreeCache.
func NewSkillTreeCache(cache *Cache) *SkillTreeCache {
	return &SkillTreeCache{cache: cache}
}

// Get returns the cached projection, or (nil, nil) on a miss.
func (c *SkillTreeCache) Get(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, role shared.Role) (*projections.SkillTreeView, error) {
	key := SkillTreeKey(tenantID.String(), studentID.String(), string(role))

	var view projections.SkillTreeView
	err := c.cache.Get(ctx, key, &view)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

// Set stores a built projection with the given TTL.
func (c *SkillTreeCache) Set(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, role shared.Role, view *projections.SkillTreeView, ttl time.Duration) error {
	if view == nil {
		return ErrCacheNilValue
	}
	if ttl <= 0 {
		ttl = TTLSkillTreeCache
	}
	key := SkillTreeKey(tenantID.String(), studentID.String(), string(role))
	return c.cache.Set(ctx, key, view, ttl)
}

// Invalidate drops every cached projection of the student, all roles at once.
func (c *SkillTreeCache) Invalidate(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) error {
	return c.cache.DeleteByPattern(ctx, SkillTreePattern(tenantID.String(), studentID.String()))
}
