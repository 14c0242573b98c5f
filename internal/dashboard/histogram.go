package dashboard

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"
)

const (
	histogramWidth  = 320
	histogramHeight = 120
)

var (
	histogramColor = drawing.Color{R: 160, G: 160, B: 160, A: 255}
	highlightColor = drawing.Color{R: 255, G: 140, B: 0, A: 255}
)

// renderHistogram draws the control's histogram as a PNG, with the bins inside
// the selected range highlighted.
func renderHistogram(control filter.Control) ([]byte, error) {
	h := control.Histogram
	if h == nil || len(h.Counts) == 0 {
		return nil, fmt.Errorf("column %s has no histogram", control.Column)
	}
	selected := domain.Range{Low: h.Edges[0], High: h.Edges[len(h.Edges)-1]}
	if control.Range != nil {
		selected = *control.Range
	}

	n := len(h.Counts)
	// Each bin becomes a flat step so the area series reads as bars.
	xs := make([]float64, 0, 2*n)
	all := make([]float64, 0, 2*n)
	inRange := make([]float64, 0, 2*n)
	maxCount := 1.0
	for i, c := range h.Counts {
		lo, hi := h.Edges[i], h.Edges[i+1]
		count := float64(c)
		if count > maxCount {
			maxCount = count
		}
		highlighted := 0.0
		if hi >= selected.Low && lo <= selected.High {
			highlighted = count
		}
		xs = append(xs, lo, hi)
		all = append(all, count, count)
		inRange = append(inRange, highlighted, highlighted)
	}

	graph := chart.Chart{
		Width:      histogramWidth,
		Height:     histogramHeight,
		Background: chart.Style{Padding: chart.Box{Top: 8, Left: 8, Right: 8, Bottom: 8}},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: h.Edges[0], Max: h.Edges[n]},
		},
		YAxis: chart.YAxis{
			Style: chart.Hidden(),
			Range: &chart.ContinuousRange{Min: 0, Max: maxCount},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "all",
				XValues: xs,
				YValues: all,
				Style:   chart.Style{StrokeColor: histogramColor, FillColor: histogramColor, StrokeWidth: 1},
			},
			chart.ContinuousSeries{
				Name:    "selected",
				XValues: xs,
				YValues: inRange,
				Style:   chart.Style{StrokeColor: highlightColor, FillColor: highlightColor, StrokeWidth: 1},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render histogram for %s: %w", control.Column, err)
	}
	return buf.Bytes(), nil
}
