package kvcache

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfig is wrapped by every input rejection. Degenerate but
// well-typed inputs (model larger than memory) are not errors.
var ErrInvalidConfig = errors.New("invalid config")

// ModelConfig describes the parts of a model architecture that size its
// weights and its per-token KV cache footprint.
type ModelConfig struct {
	NumLayers    int     `yaml:"num_layers" json:"num_layers"`
	NumKVHeads   int     `yaml:"num_kv_heads" json:"num_kv_heads"`
	HeadDim      int     `yaml:"head_dim" json:"head_dim"`
	NumParams    float64 `yaml:"num_params" json:"num_params"` // raw count, not billions
	ModelDtype   Dtype   `yaml:"model_dtype" json:"model_dtype"`
	KVCacheDtype Dtype   `yaml:"kvcache_dtype" json:"kvcache_dtype"`
}

// SystemConfig is the memory budget of one serving instance: weights,
// runtime overhead and cache all come out of it.
type SystemConfig struct {
	AvailableMemoryGB float64 `yaml:"available_memory_gb" json:"available_memory_gb"`
}

// ConversationPattern is the statistical traffic model.
type ConversationPattern struct {
	AvgConversationLength      float64 `yaml:"avg_conversation_length" json:"avg_conversation_length"`           // mean turns per conversation
	ConversationArrivalRate    float64 `yaml:"conversation_arrival_rate" json:"conversation_arrival_rate"`       // new conversations per second
	WithinConversationInterval float64 `yaml:"within_conversation_interval" json:"within_conversation_interval"` // seconds between turns
	AvgSequenceLength          float64 `yaml:"avg_sequence_length" json:"avg_sequence_length"`                   // tokens per turn
}

// invalidPositiveFloat returns true if v is not a valid positive float64
// (i.e., v <= 0, NaN, or Inf).
func invalidPositiveFloat(v float64) bool {
	return v <= 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

// Validate checks every field and reports all problems at once.
func (mc ModelConfig) Validate() error {
	var problems []string
	if mc.NumLayers <= 0 {
		problems = append(problems, fmt.Sprintf("num_layers must be > 0, got %d", mc.NumLayers))
	}
	if mc.NumKVHeads <= 0 {
		problems = append(problems, fmt.Sprintf("num_kv_heads must be > 0, got %d", mc.NumKVHeads))
	}
	if mc.HeadDim <= 0 {
		problems = append(problems, fmt.Sprintf("head_dim must be > 0, got %d", mc.HeadDim))
	}
	if invalidPositiveFloat(mc.NumParams) {
		problems = append(problems, fmt.Sprintf("num_params must be a valid positive number, got %v", mc.NumParams))
	}
	if _, ok := modelDtypeBytes[mc.ModelDtype]; !ok {
		problems = append(problems, fmt.Sprintf("model_dtype %q is not one of %v", mc.ModelDtype, ValidModelDtypes()))
	}
	if _, ok := kvCacheDtypeBytes[mc.KVCacheDtype]; !ok {
		problems = append(problems, fmt.Sprintf("kvcache_dtype %q is not one of %v", mc.KVCacheDtype, ValidKVCacheDtypes()))
	}
	return joinProblems("model config", problems)
}

// Validate checks that the memory budget is a valid positive number.
func (sc SystemConfig) Validate() error {
	var problems []string
	if invalidPositiveFloat(sc.AvailableMemoryGB) {
		problems = append(problems, fmt.Sprintf("available_memory_gb must be a valid positive number, got %v", sc.AvailableMemoryGB))
	}
	return joinProblems("system config", problems)
}

// Validate checks every traffic field. AvgConversationLength below 1 is
// accepted; the hit rate clamp absorbs it.
func (cp ConversationPattern) Validate() error {
	var problems []string
	if invalidPositiveFloat(cp.AvgConversationLength) {
		problems = append(problems, fmt.Sprintf("avg_conversation_length must be a valid positive number, got %v", cp.AvgConversationLength))
	}
	if invalidPositiveFloat(cp.ConversationArrivalRate) {
		problems = append(problems, fmt.Sprintf("conversation_arrival_rate must be a valid positive number, got %v", cp.ConversationArrivalRate))
	}
	if invalidPositiveFloat(cp.WithinConversationInterval) {
		problems = append(problems, fmt.Sprintf("within_conversation_interval must be a valid positive number, got %v", cp.WithinConversationInterval))
	}
	if invalidPositiveFloat(cp.AvgSequenceLength) {
		problems = append(problems, fmt.Sprintf("avg_sequence_length must be a valid positive number, got %v", cp.AvgSequenceLength))
	}
	return joinProblems("conversation pattern", problems)
}

func joinProblems(what string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, what, strings.Join(problems, "; "))
}

// validateInputs runs all three validators and joins their errors.
func validateInputs(mc ModelConfig, sc SystemConfig, cp ConversationPattern) error {
	return errors.Join(mc.Validate(), sc.Validate(), cp.Validate())
}
