package harness

import (
	"math"
	"sort"
	"time"
)

// LatencyStats summarizes a latency sample sequence. A zero value means "no
// data" (all calls failed); callers must distinguish that from genuinely
// fast responses via Count.
type LatencyStats struct {
	Count  int           `json:"count"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	StdDev time.Duration `json:"std_dev"`
}

// ComputeLatencyStats reduces samples to summary statistics using
// nearest-rank percentile selection and population standard deviation. The
// input slice is not modified.
func ComputeLatencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, s := range sorted {
		total += s
	}
	mean := total / time.Duration(len(sorted))

	var sumSquares float64
	for _, s := range sorted {
		diff := float64(s - mean)
		sumSquares += diff * diff
	}
	stdDev := time.Duration(math.Sqrt(sumSquares / float64(len(sorted))))

	return LatencyStats{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		P50:    percentile(sorted, 0.50),
		P90:    percentile(sorted, 0.90),
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
		StdDev: stdDev,
	}
}

// percentile selects the nearest-rank value: index = floor(rank * count),
// clamped to valid bounds.
func percentile(sorted []time.Duration, rank float64) time.Duration {
	idx := int(math.Floor(rank * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
