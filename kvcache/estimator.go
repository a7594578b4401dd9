package kvcache

import (
	"fmt"
	"math"
)

const (
	// BytesPerGiB converts between the GB figures used at the API surface
	// and byte counts. GB here is 1024^3.
	BytesPerGiB = 1024 * 1024 * 1024

	// kvTensorsPerLayer counts the Key and the Value tensor.
	kvTensorsPerLayer = 2

	// DefaultRuntimeOverheadFactor multiplies weight memory to account for
	// activations and framework overhead. Heuristic, not measured.
	DefaultRuntimeOverheadFactor = 1.3

	// DefaultCacheHitComputeReduction is the assumed fraction of compute
	// time saved by a cache hit. Heuristic, not measured.
	DefaultCacheHitComputeReduction = 0.3
)

// Heuristics groups the unvalidated constants of the model so callers can
// override them.
type Heuristics struct {
	RuntimeOverheadFactor    float64 `yaml:"runtime_overhead_factor" json:"runtime_overhead_factor"`
	CacheHitComputeReduction float64 `yaml:"cache_hit_compute_reduction" json:"cache_hit_compute_reduction"`
}

// DefaultHeuristics returns the built-in heuristic constants.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		RuntimeOverheadFactor:    DefaultRuntimeOverheadFactor,
		CacheHitComputeReduction: DefaultCacheHitComputeReduction,
	}
}

// Validate rejects overhead factors that are not positive and compute
// reductions outside [0, 1].
func (h Heuristics) Validate() error {
	var problems []string
	if invalidPositiveFloat(h.RuntimeOverheadFactor) {
		problems = append(problems, fmt.Sprintf("runtime_overhead_factor must be a valid positive number, got %v", h.RuntimeOverheadFactor))
	}
	if math.IsNaN(h.CacheHitComputeReduction) || h.CacheHitComputeReduction < 0 || h.CacheHitComputeReduction > 1 {
		problems = append(problems, fmt.Sprintf("cache_hit_compute_reduction must be in [0, 1], got %v", h.CacheHitComputeReduction))
	}
	return joinProblems("heuristics", problems)
}

// Estimator evaluates the closed-form cache model. It is an immutable value;
// the zero value is not usable, construct one with NewEstimator or Default.
type Estimator struct {
	h Heuristics
}

// NewEstimator returns an Estimator using the given heuristics.
func NewEstimator(h Heuristics) (Estimator, error) {
	if err := h.Validate(); err != nil {
		return Estimator{}, err
	}
	return Estimator{h: h}, nil
}

// Default returns an Estimator using DefaultHeuristics.
func Default() Estimator {
	return Estimator{h: DefaultHeuristics()}
}

// Heuristics returns the constants this Estimator was built with.
func (e Estimator) Heuristics() Heuristics {
	return e.h
}

// MemoryPerToken returns the KV cache bytes one token occupies:
// 2 (K and V) x layers x kv heads x head dim x bytes per element.
func (e Estimator) MemoryPerToken(mc ModelConfig) (float64, error) {
	bpe, err := KVCacheDtypeBytes(mc.KVCacheDtype)
	if err != nil {
		return 0, err
	}
	return kvTensorsPerLayer * float64(mc.NumLayers) * float64(mc.NumKVHeads) * float64(mc.HeadDim) * bpe, nil
}

// ModelMemoryGB returns weight memory scaled by the runtime overhead factor.
func (e Estimator) ModelMemoryGB(mc ModelConfig) (float64, error) {
	bpe, err := ModelDtypeBytes(mc.ModelDtype)
	if err != nil {
		return 0, err
	}
	return (mc.NumParams * bpe / BytesPerGiB) * e.h.RuntimeOverheadFactor, nil
}

// MaxCachedTokens returns how many tokens fit in the memory left after the
// model. It returns 0, not an error, when the model does not fit.
func (e Estimator) MaxCachedTokens(mc ModelConfig, sc SystemConfig) (int64, error) {
	perToken, err := e.MemoryPerToken(mc)
	if err != nil {
		return 0, err
	}
	modelGB, err := e.ModelMemoryGB(mc)
	if err != nil {
		return 0, err
	}
	availableForCacheBytes := (sc.AvailableMemoryGB - modelGB) * BytesPerGiB
	if availableForCacheBytes <= 0 || perToken <= 0 {
		return 0, nil
	}
	tokens := math.Floor(availableForCacheBytes / perToken)
	if tokens >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(tokens), nil
}

// ConversationHitRate applies Little's Law to get the number of concurrently
// active conversations and compares it against cache capacity measured in
// conversations.
//
// With enough capacity only the first turn of each conversation misses. With
// too little, the within-conversation hit probability is multiplied by the
// fraction of active conversations that can be resident. The two factors are
// treated as independent.
func (e Estimator) ConversationHitRate(mc ModelConfig, sc SystemConfig, cp ConversationPattern) (HitRateResult, error) {
	if err := validateInputs(mc, sc, cp); err != nil {
		return HitRateResult{}, err
	}
	maxCachedTokens, err := e.MaxCachedTokens(mc, sc)
	if err != nil {
		return HitRateResult{}, err
	}
	if maxCachedTokens <= 0 {
		return HitRateResult{Regime: RegimeNoCapacity}, nil
	}

	avgTokensPerConversation := cp.AvgConversationLength * cp.AvgSequenceLength
	maxCachedConversations := float64(maxCachedTokens) / avgTokensPerConversation

	conversationLifetime := cp.AvgConversationLength * cp.WithinConversationInterval
	activeConversations := cp.ConversationArrivalRate * conversationLifetime

	// The first turn of every conversation is a compulsory miss.
	intraConversationHit := 1.0 - 1.0/cp.AvgConversationLength

	var hitRate float64
	var regime Regime
	if activeConversations <= maxCachedConversations {
		hitRate = intraConversationHit
		regime = RegimeSufficient
	} else {
		cacheRatio := maxCachedConversations / activeConversations
		hitRate = intraConversationHit * cacheRatio
		regime = RegimeInsufficient
	}

	cacheUtilization := 0.0
	if maxCachedConversations > 0 {
		cacheUtilization = math.Min(activeConversations/maxCachedConversations, 1.0)
	}

	return HitRateResult{
		HitRate:                clamp01(hitRate),
		AvgCachedConversations: math.Min(activeConversations, maxCachedConversations),
		CacheUtilization:       cacheUtilization,
		MaxCachedTokens:        maxCachedTokens,
		ActiveConversations:    activeConversations,
		Regime:                 regime,
	}, nil
}

// DetailedMetrics is the single entry point used by callers. It returns a
// complete Metrics value or an error wrapping ErrInvalidConfig.
func (e Estimator) DetailedMetrics(mc ModelConfig, sc SystemConfig, cp ConversationPattern) (Metrics, error) {
	basic, err := e.ConversationHitRate(mc, sc, cp)
	if err != nil {
		return Metrics{}, err
	}
	perToken, err := e.MemoryPerToken(mc)
	if err != nil {
		return Metrics{}, err
	}
	modelGB, err := e.ModelMemoryGB(mc)
	if err != nil {
		return Metrics{}, err
	}

	qps := DerivedQPS(cp)
	tokensPerSecond := qps * cp.AvgSequenceLength

	return Metrics{
		HitRate:                 basic.HitRate,
		CacheUtilization:        basic.CacheUtilization,
		AvgCachedConversations:  basic.AvgCachedConversations,
		MaxCachedTokens:         basic.MaxCachedTokens,
		ActiveConversations:     basic.ActiveConversations,
		Regime:                  basic.Regime,
		MemoryPerTokenBytes:     perToken,
		ModelMemoryGB:           modelGB,
		CacheMemoryGB:           float64(basic.MaxCachedTokens) * perToken / BytesPerGiB,
		MemoryEfficiency:        basic.CacheUtilization,
		DerivedQPS:              qps,
		TokensPerSecond:         tokensPerSecond,
		CacheHitsPerSecond:      tokensPerSecond * basic.HitRate,
		EstimatedComputeSavings: basic.HitRate * e.h.CacheHitComputeReduction,
	}, nil
}

// DerivedQPS is the total request rate: conversation arrivals times turns
// per conversation. Token length does not enter.
func DerivedQPS(cp ConversationPattern) float64 {
	return cp.ConversationArrivalRate * cp.AvgConversationLength
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// MemoryPerToken calls Default().MemoryPerToken.
func MemoryPerToken(mc ModelConfig) (float64, error) {
	return Default().MemoryPerToken(mc)
}

// ModelMemoryGB calls Default().ModelMemoryGB.
func ModelMemoryGB(mc ModelConfig) (float64, error) {
	return Default().ModelMemoryGB(mc)
}

// MaxCachedTokens calls Default().MaxCachedTokens.
func MaxCachedTokens(mc ModelConfig, sc SystemConfig) (int64, error) {
	return Default().MaxCachedTokens(mc, sc)
}

// ConversationHitRate calls Default().ConversationHitRate.
func ConversationHitRate(mc ModelConfig, sc SystemConfig, cp ConversationPattern) (HitRateResult, error) {
	return Default().ConversationHitRate(mc, sc, cp)
}

// DetailedMetrics calls Default().DetailedMetrics.
func DetailedMetrics(mc ModelConfig, sc SystemConfig, cp ConversationPattern) (Metrics, error) {
	return Default().DetailedMetrics(mc, sc, cp)
}
