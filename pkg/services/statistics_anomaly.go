package services

import (
	"math"
	"sort"

	"market-insights-api/pkg/models"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// DetectOutliers 1.5×IQR法で外れ値を検出
// 外れ値・除外後の値・元配列での位置を返す
func (s *StatisticsService) DetectOutliers(values []float64) (*models.OutlierResult, error) {
	if len(values) == 0 {
		return nil, &EmptyInputError{Operation: "DetectOutliers"}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	result := &models.OutlierResult{
		Outliers:   []float64{},
		Indices:    []int{},
		Cleaned:    make([]float64, 0, len(values)),
		LowerBound: lower,
		UpperBound: upper,
	}
	for i, v := range values {
		if v < lower || v > upper {
			result.Outliers = append(result.Outliers, v)
			result.Indices = append(result.Indices, i)
			continue
		}
		result.Cleaned = append(result.Cleaned, v)
	}

	if len(result.Outliers) > 0 {
		s.logger.Debug("外れ値を検出しました",
			zap.Int("outliers", len(result.Outliers)),
			zap.Int("total", len(values)))
	}
	return result, nil
}

// countSigmaOutliers 平均からsigma×標準偏差を超えて離れた値の件数
func countSigmaOutliers(values []float64, sigma float64) int {
	if len(values) < 2 {
		return 0
	}
	m := calculateMean(values)
	sd := calculateStandardDeviation(values)
	if sd == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if math.Abs(v-m) > sigma*sd {
			count++
		}
	}
	return count
}
