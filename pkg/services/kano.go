package services

import (
	"fmt"
	"sort"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"go.uber.org/zap"
)

var kanoAnswers = []models.KanoAnswer{
	models.KanoLikeIt,
	models.KanoExpectIt,
	models.KanoNeutral,
	models.KanoTolerateIt,
	models.KanoDislikeIt,
}

// kanoTable 充足時の回答（行）×不充足時の回答（列）の評価表
var kanoTable = map[models.KanoAnswer]map[models.KanoAnswer]models.KanoCategory{
	models.KanoLikeIt: {
		models.KanoLikeIt:     models.KanoQuestionable,
		models.KanoExpectIt:   models.KanoAttractive,
		models.KanoNeutral:    models.KanoAttractive,
		models.KanoTolerateIt: models.KanoAttractive,
		models.KanoDislikeIt:  models.KanoOneDimensional,
	},
	models.KanoExpectIt: {
		models.KanoLikeIt:     models.KanoReverse,
		models.KanoExpectIt:   models.KanoIndifferent,
		models.KanoNeutral:    models.KanoMustBe,
		models.KanoTolerateIt: models.KanoMustBe,
		models.KanoDislikeIt:  models.KanoMustBe,
	},
	models.KanoNeutral: {
		models.KanoLikeIt:     models.KanoReverse,
		models.KanoExpectIt:   models.KanoIndifferent,
		models.KanoNeutral:    models.KanoIndifferent,
		models.KanoTolerateIt: models.KanoIndifferent,
		models.KanoDislikeIt:  models.KanoMustBe,
	},
	models.KanoTolerateIt: {
		models.KanoLikeIt:     models.KanoReverse,
		models.KanoExpectIt:   models.KanoIndifferent,
		models.KanoNeutral:    models.KanoIndifferent,
		models.KanoTolerateIt: models.KanoIndifferent,
		models.KanoDislikeIt:  models.KanoMustBe,
	},
	models.KanoDislikeIt: {
		models.KanoLikeIt:     models.KanoReverse,
		models.KanoExpectIt:   models.KanoReverse,
		models.KanoNeutral:    models.KanoReverse,
		models.KanoTolerateIt: models.KanoReverse,
		models.KanoDislikeIt:  models.KanoQuestionable,
	},
}

// businessCategories 業務上の5分類。同数のときはこの順で優先する
var businessCategories = []models.KanoCategory{
	models.KanoMustBe,
	models.KanoPerformance,
	models.KanoAttractive,
	models.KanoIndifferent,
	models.KanoReverse,
}

// ClassifyKano 回答の組を評価表で6分類のいずれかにする
func ClassifyKano(functional, dysfunctional models.KanoAnswer) (models.KanoCategory, bool) {
	row, ok := kanoTable[functional]
	if !ok {
		return "", false
	}
	c, ok := row[dysfunctional]
	return c, ok
}

// collapseKano 6分類を業務上の5分類に畳む
func collapseKano(c models.KanoCategory) models.KanoCategory {
	switch c {
	case models.KanoOneDimensional:
		return models.KanoPerformance
	case models.KanoQuestionable:
		return models.KanoIndifferent
	}
	return c
}

// KanoAnalyzer Kanoモデルによる特徴の分類
type KanoAnalyzer struct {
	policy config.KanoPolicy
	logger *zap.Logger
}

// NewKanoAnalyzer 新しいKano分析器を作成
func NewKanoAnalyzer(policy config.KanoPolicy, logger *zap.Logger) *KanoAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KanoAnalyzer{policy: policy, logger: logger}
}

// Analyze 特徴ごとに最多カテゴリ（過半数でなくてよい）を求める
// 語彙にない回答は集計から除く
func (a *KanoAnalyzer) Analyze(responses []models.KanoResponse) (*models.KanoAnalysis, error) {
	if len(responses) == 0 {
		return nil, &EmptyInputError{Operation: "Kano"}
	}

	raw := make(map[string]map[models.KanoCategory]int)
	var features []string
	respondents := make(map[string]bool)
	skipped := 0
	for _, r := range responses {
		c, ok := ClassifyKano(r.FunctionalResponse, r.DysfunctionalResponse)
		if !ok || r.Feature == "" {
			skipped++
			continue
		}
		if _, exists := raw[r.Feature]; !exists {
			raw[r.Feature] = make(map[models.KanoCategory]int)
			features = append(features, r.Feature)
		}
		raw[r.Feature][c]++
		if r.RespondentID != "" {
			respondents[r.RespondentID] = true
		}
	}
	if len(features) == 0 {
		return nil, &EmptyInputError{Operation: "Kano"}
	}
	sort.Strings(features)

	result := &models.KanoAnalysis{
		TotalRespondents: len(respondents),
		Features:         make([]models.KanoFeatureResult, 0, len(features)),
		CategorySummary:  make(map[models.KanoCategory][]string, len(businessCategories)),
	}
	for _, c := range businessCategories {
		result.CategorySummary[c] = []string{}
	}

	for _, f := range features {
		fr := a.classifyFeature(f, raw[f])
		result.Features = append(result.Features, fr)
		result.CategorySummary[fr.Category] = append(result.CategorySummary[fr.Category], f)
	}

	a.logger.Info("Kano分析完了",
		zap.Int("features", len(features)),
		zap.Int("respondents", len(respondents)),
		zap.Int("skipped_responses", skipped))

	return result, nil
}

func (a *KanoAnalyzer) classifyFeature(feature string, raw map[models.KanoCategory]int) models.KanoFeatureResult {
	dist := make(map[models.KanoCategory]int, len(businessCategories))
	for _, c := range businessCategories {
		dist[c] = 0
	}
	total := 0
	for c, n := range raw {
		dist[collapseKano(c)] += n
		total += n
	}

	best := businessCategories[0]
	for _, c := range businessCategories[1:] {
		if dist[c] > dist[best] {
			best = c
		}
	}

	impact := a.policy.ImpactScores[string(best)]

	// Better = (A+O)/(A+O+M+I), Worse = -(O+M)/(A+O+M+I)
	attractive := float64(raw[models.KanoAttractive])
	oneDim := float64(raw[models.KanoOneDimensional])
	mustBe := float64(raw[models.KanoMustBe])
	indifferent := float64(raw[models.KanoIndifferent])
	var better, worse float64
	if denom := attractive + oneDim + mustBe + indifferent; denom > 0 {
		better = (attractive + oneDim) / denom
		worse = -(oneDim + mustBe) / denom
	}

	rawCopy := make(map[models.KanoCategory]int, len(raw))
	for c, n := range raw {
		rawCopy[c] = n
	}

	return models.KanoFeatureResult{
		Feature:               feature,
		Category:              best,
		ConfidenceLevel:       float64(dist[best]) / float64(total) * 100,
		TotalResponses:        total,
		Distribution:          dist,
		RawDistribution:       rawCopy,
		SatisfactionImpact:    impact.Satisfaction,
		DissatisfactionImpact: impact.Dissatisfaction,
		BetterCoefficient:     better,
		WorseCoefficient:      worse,
	}
}

// Validate 回答者数と特徴ごとの回答の充足度を検証する
func (a *KanoAnalyzer) Validate(responses []models.KanoResponse) models.ValidationResult {
	result := models.NewValidationResult()
	if len(responses) == 0 {
		result.AddError("empty_input", "responses", "Kano回答がありません")
		return result
	}

	respondents := make(map[string]bool)
	perFeature := make(map[string]map[string]bool)
	invalid := 0
	for _, r := range responses {
		if r.RespondentID != "" {
			respondents[r.RespondentID] = true
		}
		if _, ok := ClassifyKano(r.FunctionalResponse, r.DysfunctionalResponse); !ok {
			invalid++
			continue
		}
		if perFeature[r.Feature] == nil {
			perFeature[r.Feature] = make(map[string]bool)
		}
		perFeature[r.Feature][r.RespondentID] = true
	}

	if len(respondents) < a.policy.MinRespondents {
		result.AddError("too_few_respondents", "respondent_id",
			fmt.Sprintf("回答者が%d人です。%d人以上必要です", len(respondents), a.policy.MinRespondents))
	}
	if invalid > 0 {
		result.AddError("invalid_answer", "responses",
			fmt.Sprintf("語彙（%v）にない回答が%d件あります", kanoAnswers, invalid))
	}

	features := make([]string, 0, len(perFeature))
	for f := range perFeature {
		features = append(features, f)
	}
	sort.Strings(features)
	expected := len(respondents)
	for _, f := range features {
		if expected == 0 {
			break
		}
		completeness := float64(len(perFeature[f])) / float64(expected)
		if completeness < a.policy.CompletenessThreshold {
			result.AddWarning("incomplete_feature", f,
				fmt.Sprintf("特徴 %s の回答率が%.0f%%です（基準 %.0f%%）", f, completeness*100, a.policy.CompletenessThreshold*100))
		}
	}
	return result
}
