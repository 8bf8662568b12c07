package services

import (
	"errors"
	"math"
	"testing"

	config "market-insights-api/configs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStats(mode string) *StatisticsService {
	return NewStatisticsService(config.StatisticsPolicy{SignificanceLevel: 0.05, PValueMode: mode}, zap.NewNop())
}

func TestSummaryStats(t *testing.T) {
	s := newTestStats(config.PValueApproximate)

	t.Run("single value", func(t *testing.T) {
		got, err := s.SummaryStats([]float64{5})
		require.NoError(t, err)
		assert.Equal(t, 1, got.Count)
		assert.Equal(t, 5.0, got.Mean)
		assert.Equal(t, 5.0, got.Median)
		assert.Equal(t, 0.0, got.StdDev)
		assert.Equal(t, 5.0, got.Min)
		assert.Equal(t, 5.0, got.Max)
	})

	t.Run("sample statistics", func(t *testing.T) {
		got, err := s.SummaryStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
		require.NoError(t, err)
		assert.Equal(t, 8, got.Count)
		assert.InDelta(t, 5.0, got.Mean, 1e-9)
		assert.InDelta(t, 4.5, got.Median, 1e-9)
		// 不偏分散 32/7
		assert.InDelta(t, 32.0/7.0, got.Variance, 1e-9)
		assert.InDelta(t, math.Sqrt(32.0/7.0), got.StdDev, 1e-9)
		assert.Equal(t, 2.0, got.Min)
		assert.Equal(t, 9.0, got.Max)
		assert.LessOrEqual(t, got.Q1, got.Median)
		assert.GreaterOrEqual(t, got.Q3, got.Median)
		assert.InDelta(t, got.Q3-got.Q1, got.IQR, 1e-9)
	})

	t.Run("input is not reordered", func(t *testing.T) {
		values := []float64{3, 1, 2}
		_, err := s.SummaryStats(values)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 1, 2}, values)
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := s.SummaryStats(nil)
		assert.Nil(t, got)
		var emptyErr *EmptyInputError
		require.True(t, errors.As(err, &emptyErr))
		assert.Equal(t, "SummaryStats", emptyErr.Operation)
	})
}

func TestConfidenceInterval(t *testing.T) {
	s := newTestStats(config.PValueApproximate)
	values := []float64{10, 12, 14, 16, 18}

	tests := []struct {
		name  string
		level float64
		z     float64
	}{
		{"95 percent", 0.95, 1.96},
		{"95 as percentage", 95, 1.96},
		{"90 percent", 0.90, 1.645},
		{"99 percent", 0.99, 2.576},
		{"unsupported falls back to 95", 0.80, 1.96},
	}

	se := math.Sqrt(10) / math.Sqrt(5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ci, err := s.ConfidenceInterval(values, tt.level)
			require.NoError(t, err)
			assert.InDelta(t, 14.0, ci.Mean, 1e-9)
			assert.InDelta(t, tt.z*se, ci.MarginOfError, 1e-9)
			assert.InDelta(t, ci.Mean-ci.MarginOfError, ci.Lower, 1e-9)
			assert.InDelta(t, ci.Mean+ci.MarginOfError, ci.Upper, 1e-9)
		})
	}

	_, err := s.ConfidenceInterval(nil, 0.95)
	assert.True(t, IsEmptyInput(err))
}

func TestTwoSampleTest(t *testing.T) {
	t.Run("approximate table", func(t *testing.T) {
		s := newTestStats(config.PValueApproximate)
		res, err := s.TwoSampleTest([]float64{10, 11, 12, 13, 14}, []float64{1, 2, 3, 4, 5})
		require.NoError(t, err)
		assert.Equal(t, 8, res.DegreesOfFreedom)
		assert.InDelta(t, 9.0, res.MeanDifference, 1e-9)
		// t = 9 / sqrt(2.5 * 0.4) = 9
		assert.InDelta(t, 9.0, res.TStatistic, 1e-9)
		assert.Equal(t, 0.01, res.PValue)
		assert.True(t, res.Significant)
	})

	t.Run("identical samples", func(t *testing.T) {
		s := newTestStats(config.PValueApproximate)
		res, err := s.TwoSampleTest([]float64{1, 2, 3}, []float64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.TStatistic)
		assert.Equal(t, 0.20, res.PValue)
		assert.False(t, res.Significant)
	})

	t.Run("zero variance yields zero t", func(t *testing.T) {
		s := newTestStats(config.PValueApproximate)
		res, err := s.TwoSampleTest([]float64{4, 4}, []float64{4, 4, 4})
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.TStatistic)
	})

	t.Run("exact student t", func(t *testing.T) {
		s := newTestStats(config.PValueExact)
		res, err := s.TwoSampleTest([]float64{10, 11, 12, 13, 14}, []float64{1, 2, 3, 4, 5})
		require.NoError(t, err)
		assert.Less(t, res.PValue, 0.001)
		assert.True(t, res.Significant)
	})

	t.Run("empty sample", func(t *testing.T) {
		s := newTestStats(config.PValueApproximate)
		_, err := s.TwoSampleTest(nil, []float64{1})
		assert.True(t, IsEmptyInput(err))
	})
}

func TestApproximatePValue(t *testing.T) {
	tests := []struct {
		t    float64
		want float64
	}{
		{3.0, 0.01},
		{-2.7, 0.01},
		{2.0, 0.05},
		{1.7, 0.10},
		{1.0, 0.20},
		{1.96, 0.10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, approximatePValue(tt.t), "t=%v", tt.t)
	}
}

func TestLift(t *testing.T) {
	s := newTestStats(config.PValueApproximate)

	assert.Equal(t, 0.0, s.Lift(0, 80))
	assert.InDelta(t, 50.0, s.Lift(100, 150), 1e-9)
	assert.InDelta(t, -25.0, s.Lift(80, 60), 1e-9)
}

func TestNormalize(t *testing.T) {
	s := newTestStats(config.PValueApproximate)

	assert.Equal(t, []float64{0, 50, 100}, s.Normalize([]float64{10, 20, 30}))
	assert.Equal(t, []float64{50, 50}, s.Normalize([]float64{7, 7}))
	assert.Empty(t, s.Normalize(nil))
}

func TestAdjustPValuesBH(t *testing.T) {
	s := newTestStats(config.PValueApproximate)

	adjusted := s.AdjustPValuesBH([]float64{0.01, 0.04, 0.03, 0.20})
	require.Len(t, adjusted, 4)
	assert.InDelta(t, 0.04, adjusted[0], 1e-9)
	assert.InDelta(t, 0.0533333, adjusted[1], 1e-6)
	assert.InDelta(t, 0.0533333, adjusted[2], 1e-6)
	assert.InDelta(t, 0.20, adjusted[3], 1e-9)
	assert.Empty(t, s.AdjustPValuesBH(nil))
}

func TestDetectOutliers(t *testing.T) {
	s := newTestStats(config.PValueApproximate)

	res, err := s.DetectOutliers([]float64{10, 11, 12, 13, 12, 11, 100})
	require.NoError(t, err)
	assert.Equal(t, []float64{100}, res.Outliers)
	assert.Equal(t, []int{6}, res.Indices)
	assert.Len(t, res.Cleaned, 6)

	_, err = s.DetectOutliers(nil)
	assert.True(t, IsEmptyInput(err))
}

func TestPearsonCorrelation(t *testing.T) {
	s := newTestStats(config.PValueApproximate)

	r, err := s.PearsonCorrelation([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-9)

	r, err = s.PearsonCorrelation([]float64{1, 2, 3, 4, 5}, []float64{10, 8, 6, 4, 2})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, r, 1e-9)

	r, err = s.PearsonCorrelation([]float64{1, 2, 3}, []float64{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r)

	r, err = s.PearsonCorrelation([]float64{7}, []float64{3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r)

	_, err = s.PearsonCorrelation([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = s.PearsonCorrelation(nil, nil)
	assert.True(t, IsEmptyInput(err))
}
