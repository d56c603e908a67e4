package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTOSAVE STORE
// ══════════════════════════════════════════════════════════════════════════════

// AutosaveStore implements attempt.AutosaveStore on top of Redis.
// Entries are best-effort: losing one loses unsubmitted progress ticks,
// never scored results. The TTL is refreshed on every append so an active
// attempt's entry outlives the stale-attempt threshold.
type AutosaveStore struct {
	cache *Cache
}

// NewAutosaveStore creates a new AutosaveStore.
func NewAutosaveStore(cache *Cache) *AutosaveStore {
	return &AutosaveStore{cache: cache}
}

var _ attempt.AutosaveStore = (*AutosaveStore)(nil)

// autosaveEntry is the stored shape of accumulated progress.
type autosaveEntry struct {
	Answers    map[string]autosaveAnswer `json:"answers"`
	Telemetry  []autosaveTelemetry       `json:"telemetry,omitempty"`
	TotalHints int                       `json:"total_hints,omitempty"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

type autosaveAnswer struct {
	ItemID     string  `json:"item_id"`
	Type       string  `json:"type"`
	Choice     int     `json:"choice,omitempty"`
	Selections []int   `json:"selections,omitempty"`
	Text       string  `json:"text,omitempty"`
	Numeric    float64 `json:"numeric,omitempty"`
}

type autosaveTelemetry struct {
	ItemID      string    `json:"item_id"`
	TimeSpentMs int       `json:"time_spent_ms"`
	HintsUsed   int       `json:"hints_used"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// AppendProgress merges a progress tick into the autosave entry.
// A repeated answer for the same item replaces the previous one;
// telemetry is append-only.
func (s *AutosaveStore) AppendProgress(ctx context.Context, tenantID shared.TenantID, id attempt.AttemptID, answers []attempt.Answer, events []attempt.TelemetryEvent, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLAutosave
	}
	key := AutosaveKey(tenantID.String(), id.String())

	var entry autosaveEntry
	err := s.cache.Get(ctx, key, &entry)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return fmt.Errorf("autosave: failed to load entry: %w", err)
	}
	if entry.Answers == nil {
		entry.Answers = make(map[string]autosaveAnswer)
	}

	now := time.Now().UTC()
	for _, a := range answers {
		entry.Answers[a.ItemID] = autosaveAnswer{
			ItemID:     a.ItemID,
			Type:       string(a.Type),
			Choice:     a.Choice,
			Selections: a.Selections,
			Text:       a.Text,
			Numeric:    a.Numeric,
		}
	}
	for _, e := range events {
		entry.Telemetry = append(entry.Telemetry, autosaveTelemetry(e))
		entry.TotalHints += e.HintsUsed
	}
	entry.UpdatedAt = now

	if err := s.cache.Set(ctx, key, entry, ttl); err != nil {
		return fmt.Errorf("autosave: failed to store entry: %w", err)
	}
	return nil
}

// LoadProgress returns the accumulated autosaved progress, or nil when no
// entry exists.
func (s *AutosaveStore) LoadProgress(ctx context.Context, tenantID shared.TenantID, id attempt.AttemptID) (*attempt.ProgressState, error) {
	key := AutosaveKey(tenantID.String(), id.String())

	var entry autosaveEntry
	err := s.cache.Get(ctx, key, &entry)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("autosave: failed to load entry: %w", err)
	}

	progress := attempt.NewProgressState()
	progress.TotalHints = entry.TotalHints
	progress.UpdatedAt = entry.UpdatedAt
	for itemID, a := range entry.Answers {
		progress.Answers[itemID] = attempt.Answer{
			ItemID:     a.ItemID,
			Type:       attempt.ItemType(a.Type),
			Choice:     a.Choice,
			Selections: a.Selections,
			Text:       a.Text,
			Numeric:    a.Numeric,
		}
	}
	for _, e := range entry.Telemetry {
		progress.Telemetry = append(progress.Telemetry, attempt.TelemetryEvent(e))
	}

	return &progress, nil
}

// Discard removes the autosave entry after the attempt closes.
func (s *AutosaveStore) Discard(ctx context.Context, tenantID shared.TenantID, id attempt.AttemptID) error {
	return s.cache.Delete(ctx, AutosaveKey(tenantID.String(), id.String()))
}
