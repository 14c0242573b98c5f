package filter

// HistogramBins is the bin count of the histogram drawn above numeric controls.
const HistogramBins = 100

// Histogram counts values in equal-width bins. Edges has len(Counts)+1 entries.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// NewHistogram bins the valid values over [lo, hi]. The last bin is closed on both
// ends. A degenerate span is widened by half a unit on each side.
func NewHistogram(values []float64, valid []bool, lo, hi float64, bins int) *Histogram {
	if bins <= 0 {
		bins = HistogramBins
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	h := &Histogram{
		Edges:  make([]float64, bins+1),
		Counts: make([]int, bins),
	}
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	h.Edges[bins] = hi

	for i, v := range values {
		if !valid[i] || v < lo || v > hi {
			continue
		}
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		h.Counts[idx]++
	}
	return h
}

// Total returns the number of binned values.
func (h *Histogram) Total() int {
	total := 0
	for _, c := range h.Counts {
		total += c
	}
	return total
}
