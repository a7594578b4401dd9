package kvcache

// Regime says which branch of the hit rate model produced a result.
type Regime string

const (
	// RegimeNoCapacity means the model alone fills the memory budget.
	RegimeNoCapacity Regime = "no-capacity"
	// RegimeSufficient means every active conversation fits in cache.
	RegimeSufficient Regime = "sufficient"
	// RegimeInsufficient means only a fraction of active conversations fit.
	RegimeInsufficient Regime = "insufficient"
)

// HitRateResult is the conversation-level part of the model.
type HitRateResult struct {
	HitRate                float64 `yaml:"hit_rate" json:"hit_rate"`
	AvgCachedConversations float64 `yaml:"avg_cached_conversations" json:"avg_cached_conversations"`
	CacheUtilization       float64 `yaml:"cache_utilization" json:"cache_utilization"`
	MaxCachedTokens        int64   `yaml:"max_cached_tokens" json:"max_cached_tokens"`
	ActiveConversations    float64 `yaml:"active_conversations" json:"active_conversations"`
	Regime                 Regime  `yaml:"regime" json:"regime"`
}

// Metrics is the full output of one calculation.
type Metrics struct {
	HitRate                float64 `yaml:"hit_rate" json:"hit_rate"`
	CacheUtilization       float64 `yaml:"cache_utilization" json:"cache_utilization"`
	AvgCachedConversations float64 `yaml:"avg_cached_conversations" json:"avg_cached_conversations"`
	MaxCachedTokens        int64   `yaml:"max_cached_tokens" json:"max_cached_tokens"`
	ActiveConversations    float64 `yaml:"active_conversations" json:"active_conversations"`
	Regime                 Regime  `yaml:"regime" json:"regime"`

	MemoryPerTokenBytes float64 `yaml:"memory_per_token_bytes" json:"memory_per_token_bytes"`
	ModelMemoryGB       float64 `yaml:"model_memory_gb" json:"model_memory_gb"`
	CacheMemoryGB       float64 `yaml:"cache_memory_gb" json:"cache_memory_gb"`
	// MemoryEfficiency repeats CacheUtilization under its reporting name.
	MemoryEfficiency float64 `yaml:"memory_efficiency" json:"memory_efficiency"`

	DerivedQPS         float64 `yaml:"derived_qps" json:"derived_qps"`
	TokensPerSecond    float64 `yaml:"tokens_per_second" json:"tokens_per_second"`
	CacheHitsPerSecond float64 `yaml:"cache_hits_per_second" json:"cache_hits_per_second"`

	// EstimatedComputeSavings is HitRate scaled by the heuristic
	// CacheHitComputeReduction. It is not a measured quantity.
	EstimatedComputeSavings float64 `yaml:"estimated_compute_savings" json:"estimated_compute_savings"`
}
