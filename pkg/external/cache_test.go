package external

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/predict"
)

func newMemoryCache(t *testing.T, ttl time.Duration) *ResultCache {
	t.Helper()

	cache, err := NewResultCache(domain.CacheConfig{
		MemorySize: 32,
		DefaultTTL: ttl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache
}

func sampleResult() *predict.Result {
	return &predict.Result{
		Rankings: []predict.Ranking{
			{Disease: "Influenza", Confidence: 0.72},
			{Disease: "Common Cold", Confidence: 0.18},
		},
		Importance:   map[string]float64{"fever": 0.4, "cough": 0.3},
		SymptomCount: 2,
	}
}

func TestPredictionKey_NormalizesSymptoms(t *testing.T) {
	base := PredictionKey([]string{"fever", "cough"}, 5)

	tests := []struct {
		name     string
		symptoms []string
		limit    int
		same     bool
	}{
		{"reordered", []string{"cough", "fever"}, 5, true},
		{"duplicates", []string{"fever", "cough", "fever"}, 5, true},
		{"different case", []string{"FEVER", "COUGH"}, 5, false},
		{"whitespace", []string{" fever ", "cough"}, 5, false},
		{"different limit", []string{"fever", "cough"}, 3, false},
		{"different symptoms", []string{"fever", "headache"}, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := PredictionKey(tt.symptoms, tt.limit)
			if tt.same {
				assert.Equal(t, base, key)
			} else {
				assert.NotEqual(t, base, key)
			}
		})
	}
}

func TestResultCache_SetAndGet(t *testing.T) {
	cache := newMemoryCache(t, time.Minute)
	ctx := context.Background()

	symptoms := []string{"fever", "cough"}
	result := sampleResult()

	got, found, err := cache.Get(ctx, symptoms, 5)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, symptoms, 5, result, 0))

	got, found, err = cache.Get(ctx, symptoms, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, result.Rankings, got.Rankings)
	assert.Equal(t, result.SymptomCount, got.SymptomCount)

	// Reordered symptoms hit the same entry
	_, found, err = cache.Get(ctx, []string{"cough", "fever"}, 5)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResultCache_Expiry(t *testing.T) {
	cache := newMemoryCache(t, time.Minute)
	ctx := context.Background()

	symptoms := []string{"headache"}
	require.NoError(t, cache.Set(ctx, symptoms, 5, sampleResult(), time.Nanosecond))

	time.Sleep(5 * time.Millisecond)

	_, found, err := cache.Get(ctx, symptoms, 5)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())
}

func TestResultCache_Purge(t *testing.T) {
	cache := newMemoryCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, []string{"fever"}, 5, sampleResult(), 0))
	require.NoError(t, cache.Set(ctx, []string{"cough"}, 5, sampleResult(), 0))
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Purge(ctx))
	assert.Equal(t, 0, cache.Len())
}
