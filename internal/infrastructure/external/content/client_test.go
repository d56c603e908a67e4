package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

const testTenantID = shared.TenantID("a81bc81b-dead-4e5d-abff-90865d1e13b1")

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultClientConfig(server.URL)
	config.APIKey = "test-key"
	config.RetryConfig.MaxRetries = 2
	config.RetryConfig.InitialBackoff = time.Millisecond
	config.RateLimiterConfig.MinInterval = 0
	return NewClient(config)
}

func validItemSetDTO() ItemSetDTO {
	return ItemSetDTO{
		SubjectID:      "pattern_puzzles",
		CatalogVersion: 3,
		Items: []ItemDTO{
			{
				ID:            "q1",
				Type:          "single_choice",
				Categories:    []string{"COGNITIVE_REASONING"},
				CorrectChoice: 2,
			},
			{
				ID:              "q2",
				Type:            "free_text",
				Categories:      []string{"CREATIVITY"},
				AcceptedAnswers: []string{"spiral"},
			},
		},
	}
}

func TestFetchItemSet_Success(t *testing.T) {
	var gotTenant, gotAuth string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get("X-Tenant-ID")
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "pattern_puzzles", r.URL.Query().Get("subject_id"))
		assert.Equal(t, "assessment", r.URL.Query().Get("kind"))
		assert.Equal(t, "4", r.URL.Query().Get("grade"))

		json.NewEncoder(w).Encode(APIResponse[ItemSetDTO]{
			Success: true,
			Data:    validItemSetDTO(),
		})
	}))

	set, err := client.FetchItemSet(context.Background(), testTenantID, "pattern_puzzles", shared.SubjectKindAssessment, 4)
	require.NoError(t, err)

	assert.Equal(t, testTenantID.String(), gotTenant)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, shared.SubjectID("pattern_puzzles"), set.SubjectID)
	assert.Equal(t, 3, set.CatalogVersion)
	require.Len(t, set.Items, 2)
	assert.Equal(t, attempt.ItemSingleChoice, set.Items[0].Type)
	assert.Equal(t, []shared.SkillCategory{shared.SkillCognitiveReasoning}, set.Items[0].Categories)
}

func TestFetchItemSet_RejectsUnknownItemType(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dto := validItemSetDTO()
		dto.Items[0].Type = "essay"
		json.NewEncoder(w).Encode(APIResponse[ItemSetDTO]{Success: true, Data: dto})
	}))

	_, err := client.FetchItemSet(context.Background(), testTenantID, "pattern_puzzles", shared.SubjectKindAssessment, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestFetchItemSet_RejectsDuplicateItems(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dto := validItemSetDTO()
		dto.Items[1].ID = dto.Items[0].ID
		json.NewEncoder(w).Encode(APIResponse[ItemSetDTO]{Success: true, Data: dto})
	}))

	_, err := client.FetchItemSet(context.Background(), testTenantID, "pattern_puzzles", shared.SubjectKindAssessment, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate item")
}

func TestFetchItemSet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(APIResponse[ItemSetDTO]{Success: true, Data: validItemSetDTO()})
	}))

	_, err := client.FetchItemSet(context.Background(), testTenantID, "pattern_puzzles", shared.SubjectKindAssessment, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchItemSet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(APIErrorDTO{Code: "NOT_FOUND", Message: "unknown subject"})
	}))

	_, err := client.FetchItemSet(context.Background(), testTenantID, "missing_subject", shared.SubjectKindAssessment, 4)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:   2,
		SuccessThreshold:   1,
		Timeout:            time.Minute,
		HalfOpenMaxRetries: 1,
	})

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	require.NoError(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestRateLimiter_BurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
		WaitTimeout:       time.Millisecond,
	})

	assert.True(t, rl.TryAllow())
	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())
}

func TestRetryConfig_BackoffIsCapped(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Second,
		MaxBackoff:        4 * time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.LessOrEqual(t, config.CalculateBackoff(10), 4*time.Second)
}
