// Package kvcache estimates the theoretical KV cache hit rate of an LLM
// serving instance from its model architecture, memory budget and a
// statistical model of conversational traffic.
//
// # Model
//
// Every function is closed-form arithmetic over three value types:
//   - ModelConfig: layers, KV heads, head dim, parameter count and dtypes
//   - SystemConfig: the memory budget shared by weights, overhead and cache
//   - ConversationPattern: turns, arrival rate, inter-turn gap, tokens per turn
//
// The calculation chain is MemoryPerToken -> ModelMemoryGB -> MaxCachedTokens
// -> ConversationHitRate -> DetailedMetrics. Active conversations come from
// Little's Law (arrival rate x conversation lifetime) and are compared with
// cache capacity measured in conversations to pick the sufficient or
// insufficient regime.
//
// # Heuristics
//
// The runtime overhead factor (1.3) and the compute reduction per cache hit
// (0.3) are heuristics. They live in Heuristics and can be overridden with
// NewEstimator; the package-level functions use DefaultHeuristics.
//
// # Errors
//
// Malformed input (unknown dtype, non-positive or non-finite numbers) is
// rejected with an error wrapping ErrInvalidConfig. A model that does not fit
// in memory is not an error: it yields all-zero cache metrics with
// RegimeNoCapacity.
//
// Nothing in this package holds mutable state, so all functions are safe for
// concurrent use.
package kvcache
