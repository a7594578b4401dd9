// Package hfconfig derives a kvcache.ModelConfig from a HuggingFace
// config.json.
package hfconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kvcache-calc/kvcache"
)

// FileName is the name of the model config inside a HuggingFace repo.
const FileName = "config.json"

// Config represents a flexible JSON object with dynamic fields.
type Config struct {
	// Raw holds the entire JSON as a dynamic map.
	Raw map[string]any
}

// Parse decodes config.json bytes. Multimodal configs are flattened so that
// the keys of text_config are visible at the top level.
func Parse(data []byte) (*Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse HF config JSON: %w", err)
	}
	// Only the language model sizes the KV cache; pivot to the inner map.
	if textCfg, ok := m["text_config"].(map[string]any); ok {
		for k, v := range textCfg {
			m[k] = v
		}
	}
	return &Config{Raw: m}, nil
}

// Load reads and parses the config.json at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read HF config %q: %w", path, err)
	}
	return Parse(data)
}

// GetString returns a string value for a key if present and of the right type.
func (c *Config) GetString(key string) (string, bool) {
	if v, ok := c.Raw[key]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// GetInt tries to coerce a JSON number to int.
func (c *Config) GetInt(key string) (int, bool) {
	if v, ok := c.Raw[key]; ok {
		switch x := v.(type) {
		case float64:
			return int(x), true
		case json.Number:
			i, err := x.Int64()
			if err == nil {
				return int(i), true
			}
		}
	}
	return 0, false
}

// GetBool returns a bool for a key.
func (c *Config) GetBool(key string) (bool, bool) {
	if v, ok := c.Raw[key]; ok {
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// intWithFallbacks tries multiple field names, returning the first positive value.
func (c *Config) intWithFallbacks(keys ...string) int {
	for _, k := range keys {
		if v, ok := c.GetInt(k); ok && v > 0 {
			return v
		}
	}
	return 0
}

// torchDtypes maps torch_dtype strings to calculator dtypes.
var torchDtypes = map[string]kvcache.Dtype{
	"float32":       kvcache.DtypeFP32,
	"float16":       kvcache.DtypeFP16,
	"bfloat16":      kvcache.DtypeBF16,
	"float8_e4m3fn": kvcache.DtypeFP8,
	"float8_e5m2":   kvcache.DtypeFP8,
	"fp8":           kvcache.DtypeFP8,
	"int8":          kvcache.DtypeINT8,
	"uint8":         kvcache.DtypeINT8,
	"int4":          kvcache.DtypeINT4,
	"nf4":           kvcache.DtypeINT4,
}

// DtypeFromTorch maps a torch_dtype string such as "bfloat16" to a Dtype.
func DtypeFromTorch(s string) (kvcache.Dtype, bool) {
	d, ok := torchDtypes[strings.ToLower(strings.TrimPrefix(s, "torch."))]
	return d, ok
}

// Dtype returns the weight dtype declared by torch_dtype (or dtype, used by
// some newer configs).
func (c *Config) Dtype() (kvcache.Dtype, bool) {
	for _, key := range []string{"torch_dtype", "dtype"} {
		if s, ok := c.GetString(key); ok {
			if d, ok := DtypeFromTorch(s); ok {
				return d, true
			}
		}
	}
	return "", false
}

// EstimateParams approximates the parameter count from the architecture:
// per layer QKV + output projections and a gated MLP, plus the embedding
// matrix, counted twice when the LM head is not tied to it.
func (c *Config) EstimateParams(headDim int) float64 {
	hidden, _ := c.GetInt("hidden_size")
	numHeads, _ := c.GetInt("num_attention_heads")
	numKVHeads := c.intWithFallbacks("num_key_value_heads", "num_kv_heads", "multi_query_group_num")
	if numKVHeads == 0 {
		numKVHeads = numHeads
	}
	layers, _ := c.GetInt("num_hidden_layers")
	intermediate, _ := c.GetInt("intermediate_size")
	vocab, _ := c.GetInt("vocab_size")

	dModel := float64(hidden)
	dQ := float64(numHeads * headDim)
	dKV := float64(numKVHeads * headDim)
	dFF := float64(intermediate)

	weightsPerLayer := dModel*(dQ+2*dKV) + dQ*dModel + 3*dModel*dFF
	embeddings := float64(vocab) * dModel
	if tied, ok := c.GetBool("tie_word_embeddings"); !ok || !tied {
		embeddings *= 2
	}
	return float64(layers)*weightsPerLayer + embeddings
}

// ModelConfig extracts the fields the calculator needs. The KV cache dtype
// follows the weight dtype, except that int4 weights keep an fp16 cache.
// The parameter count is estimated from the architecture.
func (c *Config) ModelConfig() (kvcache.ModelConfig, error) {
	numHeads, _ := c.GetInt("num_attention_heads")
	// Falcon uses "num_kv_heads", GLM uses "multi_query_group_num".
	numKVHeads := c.intWithFallbacks("num_key_value_heads", "num_kv_heads", "multi_query_group_num")
	if numKVHeads == 0 {
		numKVHeads = numHeads
	}

	headDim, _ := c.GetInt("head_dim")
	if headDim <= 0 {
		hidden, _ := c.GetInt("hidden_size")
		if numHeads > 0 {
			headDim = hidden / numHeads
		}
	}

	layers, _ := c.GetInt("num_hidden_layers")

	dtype, ok := c.Dtype()
	if !ok {
		logrus.Warnf("HF config has no recognised torch_dtype; assuming %s", kvcache.DtypeFP16)
		dtype = kvcache.DtypeFP16
	}
	kvDtype := dtype
	if kvDtype == kvcache.DtypeINT4 {
		kvDtype = kvcache.DtypeFP16
	}

	mc := kvcache.ModelConfig{
		NumLayers:    layers,
		NumKVHeads:   numKVHeads,
		HeadDim:      headDim,
		NumParams:    c.EstimateParams(headDim),
		ModelDtype:   dtype,
		KVCacheDtype: kvDtype,
	}
	if err := mc.Validate(); err != nil {
		return kvcache.ModelConfig{}, fmt.Errorf("HF config: %w", err)
	}
	return mc, nil
}
