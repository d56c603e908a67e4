// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CatalogUpgradePayload is the notification the career catalog service
// sends after publishing a new catalog version. Upgrades are additive:
// re-evaluation can only add unlocks, never revoke them.
type CatalogUpgradePayload struct {
	CatalogVersion int       `json:"catalog_version"`
	PublishedAt    time.Time `json:"published_at"`
}

// UpgradeFunc reacts to a published catalog version, typically by kicking
// off the career re-evaluation sweep.
type UpgradeFunc func(ctx context.Context, version int) error

// CatalogWebhookHandler processes catalog upgrade notifications delivered
// over the webhook endpoint.
type CatalogWebhookHandler interface {
	HandleCatalogUpgrade(ctx context.Context, payload []byte) error
}

// CatalogWebhookHandlerImpl implements CatalogWebhookHandler.
type CatalogWebhookHandlerImpl struct {
	mu           sync.RWMutex
	onUpgrade    UpgradeFunc
	errorHandler func(error)

	// lastSeenVersion deduplicates redelivered notifications.
	lastSeenVersion int
}

// NewCatalogWebhookHandler creates a new catalog webhook handler.
func NewCatalogWebhookHandler(onUpgrade UpgradeFunc) *CatalogWebhookHandlerImpl {
	return &CatalogWebhookHandlerImpl{onUpgrade: onUpgrade}
}

// SetErrorHandler sets the error handler.
func (h *CatalogWebhookHandlerImpl) SetErrorHandler(handler func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorHandler = handler
}

// HandleCatalogUpgrade processes a catalog upgrade notification.
func (h *CatalogWebhookHandlerImpl) HandleCatalogUpgrade(ctx context.Context, payload []byte) error {
	var upgrade CatalogUpgradePayload
	if err := json.Unmarshal(payload, &upgrade); err != nil {
		return fmt.Errorf("failed to parse catalog upgrade: %w", err)
	}
	if upgrade.CatalogVersion <= 0 {
		return fmt.Errorf("invalid catalog version %d", upgrade.CatalogVersion)
	}

	h.mu.Lock()
	if upgrade.CatalogVersion <= h.lastSeenVersion {
		h.mu.Unlock()
		return nil
	}
	h.lastSeenVersion = upgrade.CatalogVersion
	onUpgrade := h.onUpgrade
	errorHandler := h.errorHandler
	h.mu.Unlock()

	if onUpgrade == nil {
		return nil
	}
	if err := onUpgrade(ctx, upgrade.CatalogVersion); err != nil {
		if errorHandler != nil {
			errorHandler(err)
		}
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNATURE VERIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// VerifyWebhookSignature checks the HMAC-SHA256 signature of a webhook
// body against the shared secret. The signature arrives hex-encoded in
// the X-Signature header.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
