package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"catalog_version":6}`)

	assert.True(t, VerifyWebhookSignature("topsecret", body, signBody("topsecret", body)))
	assert.False(t, VerifyWebhookSignature("topsecret", body, signBody("wrongsecret", body)))
	assert.False(t, VerifyWebhookSignature("topsecret", []byte(`tampered`), signBody("topsecret", body)))

	// Missing secret or signature never verifies, even trivially.
	assert.False(t, VerifyWebhookSignature("", body, signBody("", body)))
	assert.False(t, VerifyWebhookSignature("topsecret", body, ""))
}

func TestCatalogWebhook_TriggersUpgrade(t *testing.T) {
	var got []int
	h := NewCatalogWebhookHandler(func(_ context.Context, version int) error {
		got = append(got, version)
		return nil
	})

	err := h.HandleCatalogUpgrade(context.Background(), []byte(`{"catalog_version":6,"published_at":"2026-08-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, []int{6}, got)
}

func TestCatalogWebhook_DeduplicatesRedelivery(t *testing.T) {
	calls := 0
	h := NewCatalogWebhookHandler(func(context.Context, int) error {
		calls++
		return nil
	})
	ctx := context.Background()

	require.NoError(t, h.HandleCatalogUpgrade(ctx, []byte(`{"catalog_version":6}`)))
	require.NoError(t, h.HandleCatalogUpgrade(ctx, []byte(`{"catalog_version":6}`)))
	require.NoError(t, h.HandleCatalogUpgrade(ctx, []byte(`{"catalog_version":5}`)), "stale versions are dropped too")
	assert.Equal(t, 1, calls)

	// A genuinely newer version goes through.
	require.NoError(t, h.HandleCatalogUpgrade(ctx, []byte(`{"catalog_version":7}`)))
	assert.Equal(t, 2, calls)
}

func TestCatalogWebhook_RejectsBadPayloads(t *testing.T) {
	h := NewCatalogWebhookHandler(nil)
	ctx := context.Background()

	assert.Error(t, h.HandleCatalogUpgrade(ctx, []byte(`not json`)))
	assert.Error(t, h.HandleCatalogUpgrade(ctx, []byte(`{"catalog_version":0}`)))
	assert.Error(t, h.HandleCatalogUpgrade(ctx, []byte(`{"catalog_version":-3}`)))
}

func TestCatalogWebhook_NilUpgradeFuncAccepts(t *testing.T) {
	h := NewCatalogWebhookHandler(nil)
	assert.NoError(t, h.HandleCatalogUpgrade(context.Background(), []byte(`{"catalog_version":6}`)))
}

func TestCatalogWebhook_UpgradeErrorPropagates(t *testing.T) {
	boom := assert.AnError
	var reported error
	h := NewCatalogWebhookHandler(func(context.Context, int) error { return boom })
	h.SetErrorHandler(func(err error) { reported = err })

	err := h.HandleCatalogUpgrade(context.Background(), []byte(`{"catalog_version":6}`))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reported, boom)
}
