package kvcache

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	// Default sweep bounds: from 1.5x model memory to 3x the current budget.
	defaultSweepMinModelFactor  = 1.5
	defaultSweepMaxMemoryFactor = 3.0

	// DefaultSweepSteps is the number of points in a default sweep.
	DefaultSweepSteps = 20
)

// SweepRange is a closed interval of memory budgets sampled at Steps equally
// spaced points, both ends included.
type SweepRange struct {
	MinMemoryGB float64 `yaml:"min_memory_gb" json:"min_memory_gb"`
	MaxMemoryGB float64 `yaml:"max_memory_gb" json:"max_memory_gb"`
	Steps       int     `yaml:"steps" json:"steps"`
}

// SweepPoint is the result at one memory budget.
type SweepPoint struct {
	AvailableMemoryGB float64 `yaml:"available_memory_gb" json:"available_memory_gb"`
	Metrics           Metrics `yaml:"metrics" json:"metrics"`
}

// Validate checks that the range is ordered, finite and has at least two points.
func (r SweepRange) Validate() error {
	var problems []string
	if r.Steps < 2 {
		problems = append(problems, fmt.Sprintf("steps must be >= 2, got %d", r.Steps))
	}
	if invalidPositiveFloat(r.MinMemoryGB) {
		problems = append(problems, fmt.Sprintf("min_memory_gb must be a valid positive number, got %v", r.MinMemoryGB))
	}
	if invalidPositiveFloat(r.MaxMemoryGB) {
		problems = append(problems, fmt.Sprintf("max_memory_gb must be a valid positive number, got %v", r.MaxMemoryGB))
	}
	if r.MinMemoryGB >= r.MaxMemoryGB {
		problems = append(problems, fmt.Sprintf("min_memory_gb (%v) must be < max_memory_gb (%v)", r.MinMemoryGB, r.MaxMemoryGB))
	}
	return joinProblems("sweep range", problems)
}

// MemoryAt returns the memory budget of point i.
func (r SweepRange) MemoryAt(i int) float64 {
	if i == r.Steps-1 {
		return r.MaxMemoryGB
	}
	step := (r.MaxMemoryGB - r.MinMemoryGB) / float64(r.Steps-1)
	return r.MinMemoryGB + float64(i)*step
}

// DefaultSweepRange spans 1.5x model memory to 3x the current budget. When
// the current budget is so small that the upper bound falls below the lower
// one, the upper bound is raised to 2x the lower bound.
func (e Estimator) DefaultSweepRange(mc ModelConfig, sc SystemConfig, steps int) (SweepRange, error) {
	modelGB, err := e.ModelMemoryGB(mc)
	if err != nil {
		return SweepRange{}, err
	}
	lo := modelGB * defaultSweepMinModelFactor
	hi := sc.AvailableMemoryGB * defaultSweepMaxMemoryFactor
	if hi <= lo {
		hi = lo * 2
	}
	return SweepRange{MinMemoryGB: lo, MaxMemoryGB: hi, Steps: steps}, nil
}

// Sweep evaluates DetailedMetrics at every point of r, holding the model and
// the traffic pattern fixed. Points are independent and computed
// concurrently; the returned slice is ordered by memory.
func (e Estimator) Sweep(ctx context.Context, mc ModelConfig, cp ConversationPattern, r SweepRange) ([]SweepPoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	// Reject bad model or pattern once instead of once per point.
	if err := validateInputs(mc, SystemConfig{AvailableMemoryGB: r.MaxMemoryGB}, cp); err != nil {
		return nil, err
	}

	points := make([]SweepPoint, r.Steps)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range points {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			memGB := r.MemoryAt(i)
			m, err := e.DetailedMetrics(mc, SystemConfig{AvailableMemoryGB: memGB}, cp)
			if err != nil {
				return fmt.Errorf("sweep point %d (%.2f GB): %w", i, memGB, err)
			}
			points[i] = SweepPoint{AvailableMemoryGB: memGB, Metrics: m}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// HitRates extracts the hit rate series from a sweep.
func HitRates(points []SweepPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Metrics.HitRate
	}
	return out
}

// MaxHitRate is the memory-independent ceiling 1 - 1/L reached in the
// sufficient regime.
func MaxHitRate(cp ConversationPattern) float64 {
	if cp.AvgConversationLength <= 0 || math.IsNaN(cp.AvgConversationLength) {
		return 0
	}
	return clamp01(1.0 - 1.0/cp.AvgConversationLength)
}

// Sweep calls Default().Sweep.
func Sweep(ctx context.Context, mc ModelConfig, cp ConversationPattern, r SweepRange) ([]SweepPoint, error) {
	return Default().Sweep(ctx, mc, cp, r)
}
