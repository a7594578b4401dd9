package preset

import (
	"fmt"
	"os"

	"github.com/inference-sim/kvcache-calc/kvcache"
)

// ModelOverrides holds model fields set explicitly by a scenario.
// Nil pointers mean "keep the preset's value".
type ModelOverrides struct {
	NumLayers    *int           `yaml:"num_layers"`
	NumKVHeads   *int           `yaml:"num_kv_heads"`
	HeadDim      *int           `yaml:"head_dim"`
	NumParams    *float64       `yaml:"num_params"`
	ModelDtype   *kvcache.Dtype `yaml:"model_dtype"`
	KVCacheDtype *kvcache.Dtype `yaml:"kvcache_dtype"`
}

// ApplyTo writes every set field into mc.
func (o ModelOverrides) ApplyTo(mc *kvcache.ModelConfig) {
	if o.NumLayers != nil {
		mc.NumLayers = *o.NumLayers
	}
	if o.NumKVHeads != nil {
		mc.NumKVHeads = *o.NumKVHeads
	}
	if o.HeadDim != nil {
		mc.HeadDim = *o.HeadDim
	}
	if o.NumParams != nil {
		mc.NumParams = *o.NumParams
	}
	if o.ModelDtype != nil {
		mc.ModelDtype = *o.ModelDtype
	}
	if o.KVCacheDtype != nil {
		mc.KVCacheDtype = *o.KVCacheDtype
	}
}

// SystemOverrides holds system fields set explicitly by a scenario.
type SystemOverrides struct {
	AvailableMemoryGB *float64 `yaml:"available_memory_gb"`
}

// ApplyTo writes every set field into sc.
func (o SystemOverrides) ApplyTo(sc *kvcache.SystemConfig) {
	if o.AvailableMemoryGB != nil {
		sc.AvailableMemoryGB = *o.AvailableMemoryGB
	}
}

// ConversationOverrides holds traffic fields set explicitly by a scenario.
// An explicit zero is kept so validation can reject it.
type ConversationOverrides struct {
	AvgConversationLength      *float64 `yaml:"avg_conversation_length"`
	ConversationArrivalRate    *float64 `yaml:"conversation_arrival_rate"`
	WithinConversationInterval *float64 `yaml:"within_conversation_interval"`
	AvgSequenceLength          *float64 `yaml:"avg_sequence_length"`
}

// ApplyTo writes every set field into cp.
func (o ConversationOverrides) ApplyTo(cp *kvcache.ConversationPattern) {
	if o.AvgConversationLength != nil {
		cp.AvgConversationLength = *o.AvgConversationLength
	}
	if o.ConversationArrivalRate != nil {
		cp.ConversationArrivalRate = *o.ConversationArrivalRate
	}
	if o.WithinConversationInterval != nil {
		cp.WithinConversationInterval = *o.WithinConversationInterval
	}
	if o.AvgSequenceLength != nil {
		cp.AvgSequenceLength = *o.AvgSequenceLength
	}
}

// Scenario is a complete or partial calculator input read from YAML.
// Omitted fields fall back to the preset and the embedded defaults.
type Scenario struct {
	Preset       string                `yaml:"preset"`
	Model        ModelOverrides        `yaml:"model"`
	System       SystemOverrides       `yaml:"system"`
	Conversation ConversationOverrides `yaml:"conversation"`
	Heuristics   HeuristicOverrides    `yaml:"heuristics"`
}

// HeuristicOverrides replaces individual heuristic constants.
type HeuristicOverrides struct {
	RuntimeOverheadFactor    *float64 `yaml:"runtime_overhead_factor"`
	CacheHitComputeReduction *float64 `yaml:"cache_hit_compute_reduction"`
}

// ApplyTo writes every set field into h.
func (o HeuristicOverrides) ApplyTo(h *kvcache.Heuristics) {
	if o.RuntimeOverheadFactor != nil {
		h.RuntimeOverheadFactor = *o.RuntimeOverheadFactor
	}
	if o.CacheHitComputeReduction != nil {
		h.CacheHitComputeReduction = *o.CacheHitComputeReduction
	}
}

// ParseScenario decodes a scenario document with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := decodeStrict(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

// LoadScenario reads a scenario file from disk.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Resolve merges the scenario over d: preset model first, then model
// overrides, then explicitly set system and conversation fields.
func (s *Scenario) Resolve(d *Defaults) (Inputs, error) {
	in, err := d.Inputs(s.Preset)
	if err != nil {
		return Inputs{}, err
	}
	s.Model.ApplyTo(&in.Model)
	s.System.ApplyTo(&in.System)
	s.Conversation.ApplyTo(&in.Conversation)
	return in, nil
}

// Estimator returns an estimator using the default heuristics with the
// scenario's overrides applied.
func (s *Scenario) Estimator() (kvcache.Estimator, error) {
	h := kvcache.DefaultHeuristics()
	s.Heuristics.ApplyTo(&h)
	return kvcache.NewEstimator(h)
}
