package kvcache

import (
	"fmt"
	"math"
)

const (
	// DefaultTargetHitRate is the target used when none is given.
	DefaultTargetHitRate = 0.8

	// MaxMemoryScaleFactor bounds what counts as achievable: a
	// recommendation is achievable if it is at most this multiple of the
	// current memory budget.
	MaxMemoryScaleFactor = 2.0
)

// Allocation is a memory recommendation for reaching a target hit rate.
type Allocation struct {
	RecommendedMemoryGB      float64 `yaml:"recommended_memory_gb" json:"recommended_memory_gb"`
	CurrentHitRate           float64 `yaml:"current_hit_rate" json:"current_hit_rate"`
	TargetHitRate            float64 `yaml:"target_hit_rate" json:"target_hit_rate"`
	AdditionalMemoryNeededGB float64 `yaml:"additional_memory_needed_gb" json:"additional_memory_needed_gb"`
	Achievable               bool    `yaml:"achievable" json:"achievable"`
}

// OptimizeMemoryAllocation estimates the memory needed to reach target.
//
// The estimate treats the target as the fraction of active conversations
// that must be resident, then sizes their token footprint. It ignores the
// compulsory first-turn miss, so a target above 1 - 1/L is reported with a
// recommendation even though the model can never reach it.
func (e Estimator) OptimizeMemoryAllocation(mc ModelConfig, sc SystemConfig, cp ConversationPattern, target float64) (Allocation, error) {
	if math.IsNaN(target) || target <= 0 || target > 1 {
		return Allocation{}, fmt.Errorf("%w: target hit rate must be in (0, 1], got %v", ErrInvalidConfig, target)
	}
	current, err := e.DetailedMetrics(mc, sc, cp)
	if err != nil {
		return Allocation{}, err
	}
	if current.HitRate >= target {
		return Allocation{
			RecommendedMemoryGB: sc.AvailableMemoryGB,
			CurrentHitRate:      current.HitRate,
			TargetHitRate:       target,
			Achievable:          true,
		}, nil
	}

	avgTokensPerConversation := cp.AvgConversationLength * cp.AvgSequenceLength
	activeConversations := cp.ConversationArrivalRate * cp.AvgConversationLength * cp.WithinConversationInterval

	requiredCachedConversations := activeConversations * target
	requiredTokens := requiredCachedConversations * avgTokensPerConversation
	requiredCacheGB := requiredTokens * current.MemoryPerTokenBytes / BytesPerGiB
	recommended := requiredCacheGB + current.ModelMemoryGB

	return Allocation{
		RecommendedMemoryGB:      recommended,
		CurrentHitRate:           current.HitRate,
		TargetHitRate:            target,
		AdditionalMemoryNeededGB: math.Max(0, recommended-sc.AvailableMemoryGB),
		Achievable:               recommended <= sc.AvailableMemoryGB*MaxMemoryScaleFactor,
	}, nil
}

// OptimizeMemoryAllocation calls Default().OptimizeMemoryAllocation.
func OptimizeMemoryAllocation(mc ModelConfig, sc SystemConfig, cp ConversationPattern, target float64) (Allocation, error) {
	return Default().OptimizeMemoryAllocation(mc, sc, cp, target)
}
