package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/inference-sim/kvcache-calc/kvcache"
	"github.com/inference-sim/kvcache-calc/kvcache/preset"
)

// MetricsTable writes one calculation as a two-column table. Rows derived
// from heuristic constants are labelled as such.
func MetricsTable(w io.Writer, m kvcache.Metrics, h kvcache.Heuristics) {
	table := newTable(w, []string{"Metric", "Value"})
	table.AppendBulk([][]string{
		{"Regime", string(m.Regime)},
		{"Cache hit rate", Percent(m.HitRate)},
		{"Cache utilization", Percent(m.CacheUtilization)},
		{"Active conversations", fmt.Sprintf("%.2f", m.ActiveConversations)},
		{"Avg cached conversations", fmt.Sprintf("%.2f", m.AvgCachedConversations)},
		{"Max cached tokens", Count(m.MaxCachedTokens)},
		{"KV cache per token", Bytes(m.MemoryPerTokenBytes)},
		{fmt.Sprintf("Model memory (heuristic %.2fx overhead)", h.RuntimeOverheadFactor), GB(m.ModelMemoryGB)},
		{"Cache memory", GB(m.CacheMemoryGB)},
		{"Derived QPS", Rate(m.DerivedQPS)},
		{"Tokens/s", Rate(m.TokensPerSecond)},
		{"Cache hits/s", Rate(m.CacheHitsPerSecond)},
		{fmt.Sprintf("Est. compute savings (heuristic %s per hit)", Percent(h.CacheHitComputeReduction)), Percent(m.EstimatedComputeSavings)},
	})
	table.Render()
}

// SweepTable writes one row per sweep point.
func SweepTable(w io.Writer, points []kvcache.SweepPoint) {
	table := newTable(w, []string{"Memory", "Hit rate", "Utilization", "Max cached tokens", "Regime"})
	for _, p := range points {
		table.Append([]string{
			GB(p.AvailableMemoryGB),
			Percent(p.Metrics.HitRate),
			Percent(p.Metrics.CacheUtilization),
			Count(p.Metrics.MaxCachedTokens),
			string(p.Metrics.Regime),
		})
	}
	table.Render()
}

// AllocationTable writes an optimizer recommendation.
func AllocationTable(w io.Writer, a kvcache.Allocation) {
	table := newTable(w, []string{"Metric", "Value"})
	table.AppendBulk([][]string{
		{"Current hit rate", Percent(a.CurrentHitRate)},
		{"Target hit rate", Percent(a.TargetHitRate)},
		{"Recommended memory", GB(a.RecommendedMemoryGB)},
		{"Additional memory needed", GB(a.AdditionalMemoryNeededGB)},
		{"Achievable", strconv.FormatBool(a.Achievable)},
	})
	table.Render()
}

// PresetTable lists model presets with their per-token cache footprint.
func PresetTable(w io.Writer, d *preset.Defaults) error {
	table := newTable(w, []string{"Name", "Layers", "KV heads", "Head dim", "Params", "Dtype (model/KV)", "KV per token", "Description"})
	for _, name := range d.Names() {
		p := d.Presets[name]
		mc := p.ModelConfig
		perToken, err := kvcache.MemoryPerToken(mc)
		if err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
		table.Append([]string{
			name,
			strconv.Itoa(mc.NumLayers),
			strconv.Itoa(mc.NumKVHeads),
			strconv.Itoa(mc.HeadDim),
			fmt.Sprintf("%.1fB", mc.NumParams/1e9),
			fmt.Sprintf("%s/%s", mc.ModelDtype, mc.KVCacheDtype),
			Bytes(perToken),
			p.Description,
		})
	}
	table.Render()
	return nil
}
