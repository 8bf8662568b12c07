package services

import (
	"math"
	"sort"

	config "market-insights-api/configs"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// zMultiplier returns the fixed normal multiplier for 90/95/99% intervals.
// Any other level falls back to 95%.
func zMultiplier(level float64) float64 {
	switch {
	case math.Abs(level-0.90) < 1e-9:
		return 1.645
	case math.Abs(level-0.99) < 1e-9:
		return 2.576
	default:
		return 1.96
	}
}

// normalizeLevel accepts both 0.95 and 95 style confidence levels.
func normalizeLevel(level float64) float64 {
	if level > 1 {
		level /= 100
	}
	if level <= 0 || level >= 1 {
		return 0.95
	}
	return level
}

// approximatePValue maps |t| onto a coarse p-value table.
func approximatePValue(t float64) float64 {
	abs := math.Abs(t)
	switch {
	case abs > 2.6:
		return 0.01
	case abs > 1.96:
		return 0.05
	case abs > 1.645:
		return 0.10
	default:
		return 0.20
	}
}

// exactPValue computes the two-tailed p-value from Student's t with df degrees of freedom.
func exactPValue(t float64, df int) float64 {
	if df <= 0 {
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	p := 2 * (1 - dist.CDF(math.Abs(t)))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

func (s *StatisticsService) pValue(t float64, df int) float64 {
	if s.policy.PValueMode == config.PValueExact {
		return exactPValue(t, df)
	}
	return approximatePValue(t)
}

// AdjustPValuesBH applies Benjamini-Hochberg FDR correction to a slice of p-values.
func (s *StatisticsService) AdjustPValuesBH(pvals []float64) []float64 {
	n := len(pvals)
	type kv struct {
		p float64
		i int
	}
	arr := make([]kv, n)
	for i, p := range pvals {
		arr[i] = kv{p: p, i: i}
	}
	sort.SliceStable(arr, func(i, j int) bool { return arr[i].p < arr[j].p })
	adj := make([]float64, n)
	prev := 1.0
	for i := n - 1; i >= 0; i-- {
		rank := float64(i + 1)
		val := arr[i].p * float64(n) / rank
		if val > prev {
			val = prev
		}
		if val > 1 {
			val = 1
		}
		adj[i] = val
		prev = val
	}
	// restore original order
	out := make([]float64, n)
	for idx, a := range adj {
		out[arr[idx].i] = a
	}
	return out
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算（空なら0）
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// sampleVariance 不偏分散。2件未満なら0
func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

// calculateStandardDeviation パッケージ内部用のヘルパー関数：不偏標準偏差を計算
func calculateStandardDeviation(values []float64) float64 {
	return math.Sqrt(sampleVariance(values))
}

// clamp vをlo..hiに収める
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// finiteOrZero NaN/Infを0にする
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
