package kvcache

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mistral24B is the model used by the reference scenarios.
func mistral24B() ModelConfig {
	return ModelConfig{
		NumLayers:    40,
		NumKVHeads:   8,
		HeadDim:      128,
		NumParams:    24e9,
		ModelDtype:   DtypeFP16,
		KVCacheDtype: DtypeFP16,
	}
}

func chatPattern() ConversationPattern {
	return ConversationPattern{
		AvgConversationLength:      5,
		ConversationArrivalRate:    2,
		WithinConversationInterval: 30,
		AvgSequenceLength:          1000,
	}
}

func TestMemoryPerToken_ScenarioA(t *testing.T) {
	got, err := MemoryPerToken(mistral24B())
	require.NoError(t, err)
	assert.Equal(t, 163840.0, got) // 2 x 40 x 8 x 128 x 2
}

func TestMemoryPerToken_LinearInEachDimension(t *testing.T) {
	for _, dtype := range ValidKVCacheDtypes() {
		base := mistral24B()
		base.KVCacheDtype = dtype
		want, err := MemoryPerToken(base)
		require.NoError(t, err)

		doubled := []ModelConfig{base, base, base}
		doubled[0].NumLayers *= 2
		doubled[1].NumKVHeads *= 2
		doubled[2].HeadDim *= 2
		for i, mc := range doubled {
			got, err := MemoryPerToken(mc)
			require.NoError(t, err)
			assert.Equal(t, 2*want, got, "dtype=%s dimension=%d", dtype, i)
		}
	}
}

func TestMemoryPerToken_UnknownKVDtype_IsInvalidConfig(t *testing.T) {
	for _, d := range []Dtype{DtypeINT4, "fp64", ""} {
		mc := mistral24B()
		mc.KVCacheDtype = d
		_, err := MemoryPerToken(mc)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "kvcache dtype %q: got %v", d, err)
	}
}

func TestMemoryPerToken_FP8HalvesFP16(t *testing.T) {
	fp16, err := MemoryPerToken(mistral24B())
	require.NoError(t, err)
	mc := mistral24B()
	mc.KVCacheDtype = DtypeFP8
	fp8, err := MemoryPerToken(mc)
	require.NoError(t, err)
	assert.Equal(t, fp16/2, fp8)
}

func TestModelMemoryGB_ScenarioA(t *testing.T) {
	got, err := ModelMemoryGB(mistral24B())
	require.NoError(t, err)
	params, overhead := 24e9, 1.3
	assert.Equal(t, (params*2/BytesPerGiB)*overhead, got)
	assert.InDelta(t, 58.11, got, 0.01)
}

func TestModelMemoryGB_Int4(t *testing.T) {
	mc := mistral24B()
	mc.ModelDtype = DtypeINT4
	got, err := ModelMemoryGB(mc)
	require.NoError(t, err)
	params, overhead := 24e9, 1.3
	assert.Equal(t, (params*0.5/BytesPerGiB)*overhead, got)
}

func TestModelMemoryGB_UnknownDtype_IsInvalidConfig(t *testing.T) {
	mc := mistral24B()
	mc.ModelDtype = "q4_k_m"
	_, err := ModelMemoryGB(mc)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "q4_k_m")
}

func TestMaxCachedTokens_ScenarioA(t *testing.T) {
	got, err := MaxCachedTokens(mistral24B(), SystemConfig{AvailableMemoryGB: 80})
	require.NoError(t, err)

	params, overhead := 24e9, 1.3
	modelGB := (params * 2 / BytesPerGiB) * overhead
	want := int64(math.Floor((80 - modelGB) * BytesPerGiB / 163840))
	assert.Equal(t, want, got)
	assert.Equal(t, int64(143428), got)
}

func TestMaxCachedTokens_ZeroWhenModelDoesNotFit(t *testing.T) {
	modelGB, err := ModelMemoryGB(mistral24B())
	require.NoError(t, err)
	for _, mem := range []float64{1, modelGB / 2, modelGB} {
		got, err := MaxCachedTokens(mistral24B(), SystemConfig{AvailableMemoryGB: mem})
		require.NoError(t, err)
		assert.Equal(t, int64(0), got, "memory=%v", mem)
	}
}

func TestConversationHitRate_ScenarioA_Insufficient(t *testing.T) {
	res, err := ConversationHitRate(mistral24B(), SystemConfig{AvailableMemoryGB: 80}, chatPattern())
	require.NoError(t, err)

	assert.Equal(t, 300.0, res.ActiveConversations) // 2 x (5 x 30)
	assert.Equal(t, int64(143428), res.MaxCachedTokens)

	maxCachedConversations := float64(res.MaxCachedTokens) / 5000.0
	assert.Less(t, maxCachedConversations, res.ActiveConversations)
	assert.Equal(t, RegimeInsufficient, res.Regime)
	assert.Equal(t, (1.0-1.0/5)*(maxCachedConversations/300.0), res.HitRate)
	assert.Equal(t, 1.0, res.CacheUtilization)
	assert.Equal(t, maxCachedConversations, res.AvgCachedConversations)
}

func TestDetailedMetrics_ScenarioB_ModelExceedsMemory(t *testing.T) {
	m, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 1}, chatPattern())
	require.NoError(t, err)

	assert.Greater(t, m.ModelMemoryGB, 1.0)
	assert.Equal(t, int64(0), m.MaxCachedTokens)
	assert.Equal(t, 0.0, m.HitRate)
	assert.Equal(t, 0.0, m.CacheUtilization)
	assert.Equal(t, 0.0, m.AvgCachedConversations)
	assert.Equal(t, 0.0, m.ActiveConversations)
	assert.Equal(t, 0.0, m.CacheMemoryGB)
	assert.Equal(t, 0.0, m.CacheHitsPerSecond)
	assert.Equal(t, RegimeNoCapacity, m.Regime)
	// Throughput does not depend on the cache.
	assert.Equal(t, 10.0, m.DerivedQPS)
	assert.Equal(t, 10000.0, m.TokensPerSecond)
}

func TestDetailedMetrics_ScenarioC_Sufficient(t *testing.T) {
	m, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 100000}, chatPattern())
	require.NoError(t, err)

	assert.Equal(t, RegimeSufficient, m.Regime)
	assert.Equal(t, 0.8, m.HitRate)
	assert.LessOrEqual(t, m.ActiveConversations, float64(m.MaxCachedTokens)/5000)
	assert.Equal(t, 300.0, m.AvgCachedConversations)
	assert.Less(t, m.CacheUtilization, 1.0)
}

func TestDetailedMetrics_MemoryEfficiencyTracksUtilization(t *testing.T) {
	for _, memGB := range []float64{1, 80, 100000} {
		m, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: memGB}, chatPattern())
		require.NoError(t, err)
		assert.Equal(t, m.CacheUtilization, m.MemoryEfficiency, "available_memory_gb=%v", memGB)
	}

	m, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 80}, chatPattern())
	require.NoError(t, err)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"memory_efficiency":`)
}

func TestConversationHitRate_TieGoesToSufficient(t *testing.T) {
	// 143428 tokens / (4 turns x 1 token) = 35857 conversations of capacity,
	// and 35857/s x (4 x 0.25 s) = 35857 active conversations.
	cp := ConversationPattern{
		AvgConversationLength:      4,
		ConversationArrivalRate:    35857,
		WithinConversationInterval: 0.25,
		AvgSequenceLength:          1,
	}
	res, err := ConversationHitRate(mistral24B(), SystemConfig{AvailableMemoryGB: 80}, cp)
	require.NoError(t, err)
	require.Equal(t, float64(res.MaxCachedTokens)/4, res.ActiveConversations)
	assert.Equal(t, RegimeSufficient, res.Regime)
	assert.Equal(t, 0.75, res.HitRate)
	assert.Equal(t, 1.0, res.CacheUtilization)
}

func TestConversationHitRate_SingleTurnConversationsNeverHit(t *testing.T) {
	cp := chatPattern()
	cp.AvgConversationLength = 1
	for _, mem := range []float64{80, 100000} {
		res, err := ConversationHitRate(mistral24B(), SystemConfig{AvailableMemoryGB: mem}, cp)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.HitRate, "memory=%v", mem)
		assert.NotEqual(t, RegimeNoCapacity, res.Regime)
	}
}

func TestConversationHitRate_ShortConversationsClampToZero(t *testing.T) {
	cp := chatPattern()
	cp.AvgConversationLength = 0.5 // 1 - 1/0.5 = -1
	res, err := ConversationHitRate(mistral24B(), SystemConfig{AvailableMemoryGB: 100000}, cp)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.HitRate)
}

func TestDerivedQPS_IndependentOfSequenceLength(t *testing.T) {
	cp := chatPattern()
	assert.Equal(t, 10.0, DerivedQPS(cp))
	cp.AvgSequenceLength = 64000
	assert.Equal(t, 10.0, DerivedQPS(cp))
}

func TestDetailedMetrics_DerivedThroughput(t *testing.T) {
	m, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 80}, chatPattern())
	require.NoError(t, err)
	assert.Equal(t, 10.0, m.DerivedQPS)
	assert.Equal(t, 10000.0, m.TokensPerSecond)
	assert.Equal(t, 10000.0*m.HitRate, m.CacheHitsPerSecond)
	assert.Equal(t, float64(m.MaxCachedTokens)*163840/BytesPerGiB, m.CacheMemoryGB)
	assert.Equal(t, m.HitRate*DefaultCacheHitComputeReduction, m.EstimatedComputeSavings)
}

func TestDetailedMetrics_Idempotent(t *testing.T) {
	first, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 80}, chatPattern())
	require.NoError(t, err)
	second, err := DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 80}, chatPattern())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDetailedMetrics_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelConfig, *SystemConfig, *ConversationPattern)
		field  string
	}{
		{"zero layers", func(mc *ModelConfig, _ *SystemConfig, _ *ConversationPattern) { mc.NumLayers = 0 }, "num_layers"},
		{"negative kv heads", func(mc *ModelConfig, _ *SystemConfig, _ *ConversationPattern) { mc.NumKVHeads = -8 }, "num_kv_heads"},
		{"zero head dim", func(mc *ModelConfig, _ *SystemConfig, _ *ConversationPattern) { mc.HeadDim = 0 }, "head_dim"},
		{"NaN params", func(mc *ModelConfig, _ *SystemConfig, _ *ConversationPattern) { mc.NumParams = math.NaN() }, "num_params"},
		{"unknown model dtype", func(mc *ModelConfig, _ *SystemConfig, _ *ConversationPattern) { mc.ModelDtype = "fp4" }, "model_dtype"},
		{"int4 kv dtype", func(mc *ModelConfig, _ *SystemConfig, _ *ConversationPattern) { mc.KVCacheDtype = DtypeINT4 }, "kvcache_dtype"},
		{"infinite memory", func(_ *ModelConfig, sc *SystemConfig, _ *ConversationPattern) { sc.AvailableMemoryGB = math.Inf(1) }, "available_memory_gb"},
		{"zero memory", func(_ *ModelConfig, sc *SystemConfig, _ *ConversationPattern) { sc.AvailableMemoryGB = 0 }, "available_memory_gb"},
		{"zero turns", func(_ *ModelConfig, _ *SystemConfig, cp *ConversationPattern) { cp.AvgConversationLength = 0 }, "avg_conversation_length"},
		{"negative rate", func(_ *ModelConfig, _ *SystemConfig, cp *ConversationPattern) { cp.ConversationArrivalRate = -1 }, "conversation_arrival_rate"},
		{"NaN interval", func(_ *ModelConfig, _ *SystemConfig, cp *ConversationPattern) { cp.WithinConversationInterval = math.NaN() }, "within_conversation_interval"},
		{"zero sequence", func(_ *ModelConfig, _ *SystemConfig, cp *ConversationPattern) { cp.AvgSequenceLength = 0 }, "avg_sequence_length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, sc, cp := mistral24B(), SystemConfig{AvailableMemoryGB: 80}, chatPattern()
			tt.mutate(&mc, &sc, &cp)
			_, err := DetailedMetrics(mc, sc, cp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := ModelConfig{ModelDtype: "x", KVCacheDtype: "y"}.Validate()
	require.Error(t, err)
	for _, field := range []string{"num_layers", "num_kv_heads", "head_dim", "num_params", "model_dtype", "kvcache_dtype"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestNewEstimator_OverriddenOverheadFactor(t *testing.T) {
	e, err := NewEstimator(Heuristics{RuntimeOverheadFactor: 1.0, CacheHitComputeReduction: 0.5})
	require.NoError(t, err)

	got, err := e.ModelMemoryGB(mistral24B())
	require.NoError(t, err)
	params := 24e9
	assert.Equal(t, params*2/BytesPerGiB, got)

	// Less overhead leaves more room for cache.
	withDefault, err := MaxCachedTokens(mistral24B(), SystemConfig{AvailableMemoryGB: 80})
	require.NoError(t, err)
	withLess, err := e.MaxCachedTokens(mistral24B(), SystemConfig{AvailableMemoryGB: 80})
	require.NoError(t, err)
	assert.Greater(t, withLess, withDefault)

	m, err := e.DetailedMetrics(mistral24B(), SystemConfig{AvailableMemoryGB: 100000}, chatPattern())
	require.NoError(t, err)
	assert.Equal(t, 0.8*0.5, m.EstimatedComputeSavings)
}

func TestNewEstimator_RejectsBadHeuristics(t *testing.T) {
	for _, h := range []Heuristics{
		{RuntimeOverheadFactor: 0, CacheHitComputeReduction: 0.3},
		{RuntimeOverheadFactor: math.NaN(), CacheHitComputeReduction: 0.3},
		{RuntimeOverheadFactor: 1.3, CacheHitComputeReduction: -0.1},
		{RuntimeOverheadFactor: 1.3, CacheHitComputeReduction: 1.5},
	} {
		_, err := NewEstimator(h)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "heuristics %+v", h)
	}
}

func TestDefault_UsesDefaultHeuristics(t *testing.T) {
	assert.Equal(t, DefaultHeuristics(), Default().Heuristics())
	assert.Equal(t, 1.3, Default().Heuristics().RuntimeOverheadFactor)
	assert.Equal(t, 0.3, Default().Heuristics().CacheHitComputeReduction)
}
