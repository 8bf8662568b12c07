package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMaxDiff() *MaxDiffAnalyzer {
	policy := config.DefaultAnalysisPolicy()
	return NewMaxDiffAnalyzer(NewStatisticsService(policy.Statistics, zap.NewNop()), policy.MaxDiff, zap.NewNop())
}

// skewedResponses price: 最重要80回/最不要2回、design: 最重要20回/最不要50回
func skewedResponses() []models.MaxDiffResponse {
	var out []models.MaxDiffResponse
	for i := 0; i < 100; i++ {
		r := models.MaxDiffResponse{
			QuestionID:     fmt.Sprintf("q%d", i%5),
			RespondentID:   fmt.Sprintf("resp-%d", i/5),
			ResponseTimeMs: 4000,
		}
		switch {
		case i < 50:
			r.MostImportant, r.LeastImportant = "price", "design"
		case i < 80:
			r.MostImportant, r.LeastImportant = "price", "support"
		case i < 82:
			r.MostImportant, r.LeastImportant = "design", "price"
		default:
			r.MostImportant, r.LeastImportant = "design", "support"
		}
		out = append(out, r)
	}
	return out
}

var skewedFeatures = []string{"price", "design", "support", "warranty"}

func TestMaxDiffRanking(t *testing.T) {
	a := newTestMaxDiff()

	res, err := a.Analyze(skewedResponses(), skewedFeatures)
	require.NoError(t, err)
	require.Len(t, res.Features, 4)

	byName := make(map[string]models.MaxDiffFeatureScore)
	for _, f := range res.Features {
		byName[f.Feature] = f
	}

	price, design := byName["price"], byName["design"]
	assert.Equal(t, 80, price.MostCount)
	assert.Equal(t, 2, price.LeastCount)
	assert.Equal(t, 20, design.MostCount)
	assert.Equal(t, 50, design.LeastCount)
	assert.Less(t, price.Rank, design.Rank)
	assert.Equal(t, 1, price.Rank)
	assert.Equal(t, 100.0, price.UtilityScore)
	assert.Greater(t, price.ShareOfPreference, design.ShareOfPreference)

	assert.Equal(t, 100, res.TotalResponses)
	assert.Equal(t, 20, res.TotalRespondents)
	assert.Len(t, res.Pairwise, 6)
	assert.Equal(t, "price", res.Pairwise[0].FeatureA)
}

func TestMaxDiffShareSumsToHundred(t *testing.T) {
	a := newTestMaxDiff()

	tests := []struct {
		name      string
		responses []models.MaxDiffResponse
		features  []string
	}{
		{"skewed", skewedResponses(), skewedFeatures},
		{"single response", []models.MaxDiffResponse{{MostImportant: "a", LeastImportant: "b"}}, []string{"a", "b", "c", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Analyze(tt.responses, tt.features)
			require.NoError(t, err)

			var sum float64
			for _, f := range res.Features {
				sum += f.ShareOfPreference
				assert.GreaterOrEqual(t, f.UtilityScore, 0.0)
				assert.LessOrEqual(t, f.UtilityScore, 100.0)
			}
			assert.InDelta(t, 100.0, sum, 0.01)
		})
	}
}

func TestUtilityScore(t *testing.T) {
	assert.InDelta(t, 50.01, utilityScore(0, 0), 1e-9)
	assert.Equal(t, 100.0, utilityScore(80, 2))
	assert.Equal(t, 0.0, utilityScore(0, 100))
}

func TestMaxDiffConfidenceInterval(t *testing.T) {
	a := newTestMaxDiff()

	res, err := a.Analyze(skewedResponses(), skewedFeatures)
	require.NoError(t, err)

	for _, f := range res.Features {
		// 1.96 × √(0.25/100) × utility
		assert.InDelta(t, 0.098*f.UtilityScore, f.ConfidenceInterval.MarginOfError, 1e-9)
	}
}

func TestMaxDiffDataQuality(t *testing.T) {
	a := newTestMaxDiff()

	responses := skewedResponses()
	// 10件を平均の30%未満の時間で回答させる
	for i := 0; i < 10; i++ {
		responses[i].ResponseTimeMs = 100
	}
	responses = append(responses, models.MaxDiffResponse{MostImportant: "unknown", LeastImportant: "price", ResponseTimeMs: 4000})

	res, err := a.Analyze(responses, skewedFeatures)
	require.NoError(t, err)

	q := res.DataQuality
	assert.Equal(t, 10, q.FastResponses)
	assert.InDelta(t, 100.0/101.0*100, q.CompletionRate, 1e-9)
	assert.InDelta(t, 10.0/101.0*100, q.Penalty, 1e-9)
	assert.InDelta(t, q.CompletionRate-q.Penalty, q.QualityScore, 1e-9)
	assert.Contains(t, q.Flags, "fast_responses")
	assert.Contains(t, q.Flags, "invalid_responses")
	assert.Contains(t, q.Flags, "few_respondents")
}

func TestMaxDiffEmptyInput(t *testing.T) {
	a := newTestMaxDiff()

	_, err := a.Analyze(nil, skewedFeatures)
	assert.True(t, IsEmptyInput(err))

	_, err = a.Analyze(skewedResponses(), nil)
	assert.True(t, IsEmptyInput(err))

	_, err = a.Analyze([]models.MaxDiffResponse{{MostImportant: "x", LeastImportant: "y"}}, skewedFeatures)
	assert.True(t, IsEmptyInput(err))
}

func TestGenerateDesign(t *testing.T) {
	a := newTestMaxDiff()
	features := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x"}

	t.Run("covers every feature", func(t *testing.T) {
		questions, err := a.GenerateDesign(features, 3)
		require.NoError(t, err)
		// 24特徴 / 4 = 6問で全特徴が出る
		assert.Len(t, questions, 6)

		seen := make(map[string]bool)
		for _, q := range questions {
			assert.Len(t, q.Features, 4)
			for _, f := range q.Features {
				seen[f] = true
			}
		}
		assert.Len(t, seen, len(features))
		assert.Equal(t, []string{"d", "e", "f", "g"}, questions[0].Features)
		assert.Equal(t, "r3-q1", questions[0].QuestionID)
	})

	t.Run("default rotations with few features", func(t *testing.T) {
		questions, err := a.GenerateDesign([]string{"a", "b", "c", "d", "e"}, 0)
		require.NoError(t, err)
		assert.Len(t, questions, 5)
		assert.Equal(t, []string{"a", "b", "c", "d"}, questions[0].Features)
		assert.Equal(t, []string{"e", "a", "b", "c"}, questions[1].Features)
	})

	t.Run("deterministic", func(t *testing.T) {
		first, err := a.GenerateDesign(features, 7)
		require.NoError(t, err)
		second, err := a.GenerateDesign(features, 7)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("too few features", func(t *testing.T) {
		_, err := a.GenerateDesign([]string{"a", "b", "c"}, 0)
		assert.True(t, errors.Is(err, ErrInvalidDesign))
	})
}

func TestGenerateDesignWithZeroValuePolicy(t *testing.T) {
	stats := NewStatisticsService(config.DefaultAnalysisPolicy().Statistics, zap.NewNop())
	a := NewMaxDiffAnalyzer(stats, config.MaxDiffPolicy{}, nil)

	done := make(chan struct{})
	var (
		questions []models.MaxDiffQuestion
		err       error
	)
	go func() {
		defer close(done)
		questions, err = a.GenerateDesign([]string{"a", "b", "c", "d"}, 0)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("GenerateDesign did not return")
	}
	require.NoError(t, err)
	// 既定値: 1問4特徴 × 5ローテーション
	assert.Len(t, questions, 5)
	for _, q := range questions {
		assert.Len(t, q.Features, 4)
	}
}

func TestValidateDesign(t *testing.T) {
	a := newTestMaxDiff()

	tests := []struct {
		name      string
		features  []string
		rotations int
		codes     []string
	}{
		{"valid", []string{"a", "b", "c", "d"}, 5, nil},
		{"too few features", []string{"a", "b", "c"}, 5, []string{"too_few_features"}},
		{"too few rotations", []string{"a", "b", "c", "d"}, 2, []string{"too_few_rotations"}},
		{"duplicate", []string{"a", "b", "c", "a"}, 3, []string{"duplicate_feature"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.ValidateDesign(tt.features, tt.rotations)
			assert.Equal(t, tt.codes == nil, res.IsValid)
			assert.Equal(t, tt.codes, issueCodes(res.Errors))
		})
	}
}

func TestValidateMaxDiffResponses(t *testing.T) {
	a := newTestMaxDiff()

	res := a.ValidateResponses(skewedResponses(), skewedFeatures)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"few_respondents", "feature_not_observed"}, issueCodes(res.Warnings))

	res = a.ValidateResponses([]models.MaxDiffResponse{
		{MostImportant: "price", LeastImportant: "price", RespondentID: "a"},
		{MostImportant: "bogus", LeastImportant: "price"},
	}, skewedFeatures)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"unknown_feature", "same_choice"}, issueCodes(res.Errors))
	assert.Contains(t, issueCodes(res.Warnings), "missing_respondent_id")

	res = a.ValidateResponses(nil, skewedFeatures)
	assert.Equal(t, []string{"empty_input"}, issueCodes(res.Errors))
}
