package kvcache

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomInputs draws well-typed positive inputs spanning small to very large
// models and light to extreme traffic.
func randomInputs(rng *rand.Rand) (ModelConfig, SystemConfig, ConversationPattern) {
	modelDtypes := ValidModelDtypes()
	kvDtypes := ValidKVCacheDtypes()
	mc := ModelConfig{
		NumLayers:    1 + rng.Intn(128),
		NumKVHeads:   1 + rng.Intn(64),
		HeadDim:      16 * (1 + rng.Intn(16)),
		NumParams:    1e8 + rng.Float64()*4e11,
		ModelDtype:   modelDtypes[rng.Intn(len(modelDtypes))],
		KVCacheDtype: kvDtypes[rng.Intn(len(kvDtypes))],
	}
	sc := SystemConfig{AvailableMemoryGB: 0.5 + rng.Float64()*2000}
	cp := ConversationPattern{
		AvgConversationLength:      0.1 + rng.Float64()*50,
		ConversationArrivalRate:    0.001 + rng.Float64()*500,
		WithinConversationInterval: 0.01 + rng.Float64()*600,
		AvgSequenceLength:          1 + rng.Float64()*32000,
	}
	return mc, sc, cp
}

func TestDetailedMetrics_HitRateBoundedForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		mc, sc, cp := randomInputs(rng)
		m, err := DetailedMetrics(mc, sc, cp)
		require.NoError(t, err, "iteration %d: %+v %+v %+v", i, mc, sc, cp)

		assert.GreaterOrEqual(t, m.HitRate, 0.0)
		assert.LessOrEqual(t, m.HitRate, 1.0)
		assert.GreaterOrEqual(t, m.CacheUtilization, 0.0)
		assert.LessOrEqual(t, m.CacheUtilization, 1.0)
		assert.GreaterOrEqual(t, m.MaxCachedTokens, int64(0))
		assert.GreaterOrEqual(t, m.AvgCachedConversations, 0.0)
		assert.Greater(t, m.MemoryPerTokenBytes, 0.0)
		assert.Greater(t, m.ModelMemoryGB, 0.0)
		assert.GreaterOrEqual(t, m.CacheMemoryGB, 0.0)
		assert.Greater(t, m.DerivedQPS, 0.0)
		assert.LessOrEqual(t, m.CacheHitsPerSecond, m.TokensPerSecond)
		assert.LessOrEqual(t, m.HitRate, MaxHitRate(cp))
	}
}

func TestDetailedMetrics_MonotonicInMemory(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		mc, sc, cp := randomInputs(rng)
		prev, err := DetailedMetrics(mc, sc, cp)
		require.NoError(t, err)
		mem := sc.AvailableMemoryGB
		for step := 0; step < 25; step++ {
			mem *= 1 + rng.Float64()
			next, err := DetailedMetrics(mc, SystemConfig{AvailableMemoryGB: mem}, cp)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, next.MaxCachedTokens, prev.MaxCachedTokens, "memory=%v", mem)
			assert.GreaterOrEqual(t, next.HitRate, prev.HitRate, "memory=%v", mem)
			prev = next
		}
	}
}

func TestDetailedMetrics_SufficientRegimeIgnoresExtraMemory(t *testing.T) {
	mc, cp := mistral24B(), chatPattern()
	base, err := DetailedMetrics(mc, SystemConfig{AvailableMemoryGB: 100000}, cp)
	require.NoError(t, err)
	require.Equal(t, RegimeSufficient, base.Regime)

	for _, mem := range []float64{150000, 400000, 1e6} {
		m, err := DetailedMetrics(mc, SystemConfig{AvailableMemoryGB: mem}, cp)
		require.NoError(t, err)
		assert.Equal(t, RegimeSufficient, m.Regime)
		assert.Equal(t, base.HitRate, m.HitRate, "memory=%v", mem)
		assert.Greater(t, m.MaxCachedTokens, base.MaxCachedTokens)
	}
}

func TestDetailedMetrics_ZeroCapacityWheneverModelDoesNotFit(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		mc, _, cp := randomInputs(rng)
		modelGB, err := ModelMemoryGB(mc)
		require.NoError(t, err)

		mem := modelGB * (0.01 + 0.99*rng.Float64())
		m, err := DetailedMetrics(mc, SystemConfig{AvailableMemoryGB: mem}, cp)
		require.NoError(t, err)
		assert.Equal(t, int64(0), m.MaxCachedTokens)
		assert.Equal(t, 0.0, m.HitRate)
		assert.Equal(t, 0.0, m.CacheUtilization)
		assert.Equal(t, RegimeNoCapacity, m.Regime)
	}
}
