// Package testutil provides shared test infrastructure for the calculator.
// It holds the golden dataset types and float assertion helpers used by the
// kvcache test packages.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenModel mirrors the model fields of a golden test case.
type GoldenModel struct {
	NumLayers    int     `json:"num_layers"`
	NumKVHeads   int     `json:"num_kv_heads"`
	HeadDim      int     `json:"head_dim"`
	NumParams    float64 `json:"num_params"`
	ModelDtype   string  `json:"model_dtype"`
	KVCacheDtype string  `json:"kvcache_dtype"`
}

// GoldenTestCase represents a single test case from the golden dataset.
type GoldenTestCase struct {
	Name                       string        `json:"name"`
	Model                      GoldenModel   `json:"model"`
	AvailableMemoryGB          float64       `json:"available_memory_gb"`
	AvgConversationLength      float64       `json:"avg_conversation_length"`
	ConversationArrivalRate    float64       `json:"conversation_arrival_rate"`
	WithinConversationInterval float64       `json:"within_conversation_interval"`
	AvgSequenceLength          float64       `json:"avg_sequence_length"`
	Metrics                    GoldenMetrics `json:"metrics"`
}

// GoldenMetrics represents the expected metrics from a golden test case.
type GoldenMetrics struct {
	// Exact match
	MaxCachedTokens int64  `json:"max_cached_tokens"`
	Regime          string `json:"regime"`

	HitRate                float64 `json:"hit_rate"`
	CacheUtilization       float64 `json:"cache_utilization"`
	AvgCachedConversations float64 `json:"avg_cached_conversations"`
	ActiveConversations    float64 `json:"active_conversations"`
	MemoryPerTokenBytes    float64 `json:"memory_per_token_bytes"`
	ModelMemoryGB          float64 `json:"model_memory_gb"`
	CacheMemoryGB          float64 `json:"cache_memory_gb"`
	DerivedQPS             float64 `json:"derived_qps"`
	TokensPerSecond        float64 `json:"tokens_per_second"`
	CacheHitsPerSecond     float64 `json:"cache_hits_per_second"`
}

// goldenPath locates testdata/goldendataset.json at the module root,
// three directories above this file.
func goldenPath(t *testing.T) string {
	_, here, _, ok := runtime.Caller(0)
	require.True(t, ok, "cannot locate testutil source")
	return filepath.Join(filepath.Dir(here), "..", "..", "..", "testdata", "goldendataset.json")
}

// LoadGoldenDataset reads the shared golden cases and fails t if the file
// is missing, malformed or empty.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	data, err := os.ReadFile(goldenPath(t))
	require.NoError(t, err, "golden dataset")

	dataset := &GoldenDataset{}
	require.NoError(t, json.Unmarshal(data, dataset), "golden dataset")
	require.NotEmpty(t, dataset.Tests, "golden dataset has no cases")
	return dataset
}

// AssertWithinRel checks got against want using tol relative to want.
// A zero want needs got within tol of zero.
func AssertWithinRel(t *testing.T, field string, want, got, tol float64) bool {
	t.Helper()
	if want == 0 {
		return assert.InDelta(t, 0.0, got, tol, field)
	}
	return assert.InEpsilon(t, want, got, tol, field)
}
