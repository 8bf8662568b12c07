package services

import (
	"errors"
	"fmt"
	"math"
	"sort"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EmptyInputError 統計関数に空の配列が渡されたときのエラー
type EmptyInputError struct {
	Operation string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: 入力データが空です", e.Operation)
}

// ErrLengthMismatch 対になる系列の長さが一致しない
var ErrLengthMismatch = errors.New("データ系列の長さが一致しません")

// IsEmptyInput errがEmptyInputErrorを含むかどうか
func IsEmptyInput(err error) bool {
	var target *EmptyInputError
	return errors.As(err, &target)
}

// StatisticsService 統計分析サービス
// 全分析器が共有する基本統計関数を提供する。状態を持たないため並行利用して良い
type StatisticsService struct {
	policy config.StatisticsPolicy
	logger *zap.Logger
}

// NewStatisticsService 新しい統計分析サービスを作成
func NewStatisticsService(policy config.StatisticsPolicy, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.SignificanceLevel <= 0 {
		policy.SignificanceLevel = 0.05
	}
	if policy.PValueMode == "" {
		policy.PValueMode = config.PValueApproximate
	}
	return &StatisticsService{policy: policy, logger: logger}
}

// SignificanceLevel 有意水準
func (s *StatisticsService) SignificanceLevel() float64 {
	return s.policy.SignificanceLevel
}

// SummaryStats 記述統計量を計算（標準偏差は不偏推定）
func (s *StatisticsService) SummaryStats(values []float64) (*models.SummaryStats, error) {
	if len(values) == 0 {
		return nil, &EmptyInputError{Operation: "SummaryStats"}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	median, err := stats.Median(sorted)
	if err != nil {
		return nil, fmt.Errorf("中央値の計算に失敗: %w", err)
	}

	variance := sampleVariance(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)

	return &models.SummaryStats{
		Count:    len(values),
		Mean:     stat.Mean(sorted, nil),
		Median:   median,
		StdDev:   math.Sqrt(variance),
		Variance: variance,
		Min:      floats.Min(sorted),
		Max:      floats.Max(sorted),
		Q1:       q1,
		Q3:       q3,
		IQR:      q3 - q1,
	}, nil
}

// ConfidenceInterval 平均値の信頼区間を計算
// Student tではなく固定のz値（90/95/99%）による正規近似
func (s *StatisticsService) ConfidenceInterval(values []float64, level float64) (models.ConfidenceInterval, error) {
	if len(values) == 0 {
		return models.ConfidenceInterval{}, &EmptyInputError{Operation: "ConfidenceInterval"}
	}

	level = normalizeLevel(level)
	m := stat.Mean(values, nil)
	se := math.Sqrt(sampleVariance(values)) / math.Sqrt(float64(len(values)))
	margin := zMultiplier(level) * se

	return models.ConfidenceInterval{
		Level:         level,
		Mean:          m,
		Lower:         m - margin,
		Upper:         m + margin,
		MarginOfError: margin,
	}, nil
}

// TwoSampleTest プールした分散による2標本t検定
// p値は設定に応じて固定閾値テーブル（既定）またはt分布から求める
func (s *StatisticsService) TwoSampleTest(a, b []float64) (models.TTestResult, error) {
	if len(a) == 0 || len(b) == 0 {
		return models.TTestResult{}, &EmptyInputError{Operation: "TwoSampleTest"}
	}

	n1 := float64(len(a))
	n2 := float64(len(b))
	m1 := stat.Mean(a, nil)
	m2 := stat.Mean(b, nil)
	df := len(a) + len(b) - 2

	var t float64
	if df > 0 {
		pooled := ((n1-1)*sampleVariance(a) + (n2-1)*sampleVariance(b)) / float64(df)
		se := math.Sqrt(pooled * (1/n1 + 1/n2))
		if se > 0 {
			t = (m1 - m2) / se
		}
	}

	p := s.pValue(t, df)
	return models.TTestResult{
		TStatistic:       t,
		DegreesOfFreedom: df,
		PValue:           p,
		Significant:      p < s.policy.SignificanceLevel,
		MeanDifference:   m1 - m2,
	}, nil
}

// Lift ベースラインに対する%差。ベースラインが0なら0
func (s *StatisticsService) Lift(baseline, value float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (value - baseline) / baseline * 100
}

// Normalize 値を0-100に写像する。範囲が0ならすべて50
func (s *StatisticsService) Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo := floats.Min(values)
	hi := floats.Max(values)
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			out[i] = 50
			continue
		}
		out[i] = (v - lo) / span * 100
	}
	return out
}

// Mean 空なら0を返す平均
func (s *StatisticsService) Mean(values []float64) float64 {
	return calculateMean(values)
}
