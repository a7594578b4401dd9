package report

import (
	"errors"
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/inference-sim/kvcache-calc/kvcache"
)

const (
	DefaultChartHeight = 12
	DefaultChartWidth  = 60
)

// HitRateChart plots hit rate (in percent) against the sweep's memory axis.
func HitRateChart(points []kvcache.SweepPoint, height, width int) (string, error) {
	if len(points) < 2 {
		return "", errors.New("chart needs at least two sweep points")
	}
	data := make([]float64, len(points))
	for i, hr := range kvcache.HitRates(points) {
		data[i] = hr * 100
	}
	if height <= 0 {
		height = DefaultChartHeight
	}
	if width <= 0 {
		width = DefaultChartWidth
	}
	caption := fmt.Sprintf("hit rate %% vs memory, %s to %s",
		GB(points[0].AvailableMemoryGB), GB(points[len(points)-1].AvailableMemoryGB))
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	), nil
}
