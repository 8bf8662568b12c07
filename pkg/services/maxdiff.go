package services

import (
	"errors"
	"fmt"
	"math"
	"sort"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"go.uber.org/zap"
)

// ErrInvalidDesign 設問設計の前提（特徴数・ローテーション数）を満たさない
var ErrInvalidDesign = errors.New("MaxDiff設計が不正です")

// MaxDiffAnalyzer Best-Worst選択から特徴の効用を推定する
type MaxDiffAnalyzer struct {
	stats  *StatisticsService
	policy config.MaxDiffPolicy
	logger *zap.Logger
}

// NewMaxDiffAnalyzer 新しいMaxDiff分析器を作成
func NewMaxDiffAnalyzer(stats *StatisticsService, policy config.MaxDiffPolicy, logger *zap.Logger) *MaxDiffAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.DefaultAnalysisPolicy().MaxDiff
	if policy.FeaturesPerQuestion < 2 {
		policy.FeaturesPerQuestion = defaults.FeaturesPerQuestion
	}
	if policy.Rotations <= 0 {
		policy.Rotations = defaults.Rotations
	}
	if policy.MinFeatures < 2 {
		policy.MinFeatures = defaults.MinFeatures
	}
	if policy.MinRotations <= 0 {
		policy.MinRotations = defaults.MinRotations
	}
	if policy.MinRespondents <= 0 {
		policy.MinRespondents = defaults.MinRespondents
	}
	return &MaxDiffAnalyzer{stats: stats, policy: policy, logger: logger}
}

// utilityScore ラプラス平滑化した対数オッズを0-100に写像する
func utilityScore(most, least int) float64 {
	u := (math.Log(float64(most+1)/float64(least+1)) + 3) * 16.67
	return clamp(u, 0, 100)
}

// Analyze 特徴ごとの選択回数・効用・選好シェアとペアごとの有意差を計算
func (a *MaxDiffAnalyzer) Analyze(responses []models.MaxDiffResponse, features []string) (*models.MaxDiffAnalysis, error) {
	if len(features) == 0 || len(responses) == 0 {
		return nil, &EmptyInputError{Operation: "MaxDiff"}
	}

	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f] = true
	}

	most := make(map[string]int, len(features))
	least := make(map[string]int, len(features))
	// 回答者ごとの best-worst スコア
	perRespondent := make(map[string]map[string]float64)
	valid := 0
	for i, r := range responses {
		if !known[r.MostImportant] || !known[r.LeastImportant] || r.MostImportant == r.LeastImportant {
			continue
		}
		valid++
		most[r.MostImportant]++
		least[r.LeastImportant]++

		id := r.RespondentID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		scores, ok := perRespondent[id]
		if !ok {
			scores = make(map[string]float64)
			perRespondent[id] = scores
		}
		scores[r.MostImportant]++
		scores[r.LeastImportant]--
	}
	if valid == 0 {
		return nil, &EmptyInputError{Operation: "MaxDiff"}
	}

	scores := make([]models.MaxDiffFeatureScore, len(features))
	var expSum float64
	for i, f := range features {
		u := utilityScore(most[f], least[f])
		margin := 1.96 * math.Sqrt(0.25/float64(valid)) * u
		scores[i] = models.MaxDiffFeatureScore{
			Feature:        f,
			MostCount:      most[f],
			LeastCount:     least[f],
			BestWorstScore: most[f] - least[f],
			UtilityScore:   u,
			ConfidenceInterval: models.ConfidenceInterval{
				Level:         0.95,
				Mean:          u,
				Lower:         u - margin,
				Upper:         u + margin,
				MarginOfError: margin,
			},
		}
		expSum += math.Exp(u / 20)
	}
	for i := range scores {
		scores[i].ShareOfPreference = math.Exp(scores[i].UtilityScore/20) / expSum * 100
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].UtilityScore != scores[j].UtilityScore {
			return scores[i].UtilityScore > scores[j].UtilityScore
		}
		if scores[i].BestWorstScore != scores[j].BestWorstScore {
			return scores[i].BestWorstScore > scores[j].BestWorstScore
		}
		return scores[i].Feature < scores[j].Feature
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	pairwise, err := a.pairwise(scores, perRespondent)
	if err != nil {
		return nil, err
	}

	result := &models.MaxDiffAnalysis{
		TotalResponses:   len(responses),
		TotalRespondents: len(perRespondent),
		Features:         scores,
		Pairwise:         pairwise,
		DataQuality:      a.dataQuality(responses, valid, len(perRespondent)),
	}

	a.logger.Info("MaxDiff分析完了",
		zap.Int("responses", len(responses)),
		zap.Int("features", len(features)),
		zap.String("top_feature", scores[0].Feature))

	return result, nil
}

// pairwise 回答者ごとのbest-worstスコアで全ペアを2標本t検定する（順位順）
func (a *MaxDiffAnalyzer) pairwise(scores []models.MaxDiffFeatureScore, perRespondent map[string]map[string]float64) ([]models.PairwiseComparison, error) {
	ids := make([]string, 0, len(perRespondent))
	for id := range perRespondent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vectors := make(map[string][]float64, len(scores))
	for _, s := range scores {
		v := make([]float64, len(ids))
		for k, id := range ids {
			v[k] = perRespondent[id][s.Feature]
		}
		vectors[s.Feature] = v
	}

	out := make([]models.PairwiseComparison, 0, len(scores)*(len(scores)-1)/2)
	for i := 0; i < len(scores); i++ {
		for j := i + 1; j < len(scores); j++ {
			fa, fb := scores[i], scores[j]
			test, err := a.stats.TwoSampleTest(vectors[fa.Feature], vectors[fb.Feature])
			if err != nil {
				return nil, fmt.Errorf("%s と %s の比較に失敗: %w", fa.Feature, fb.Feature, err)
			}
			out = append(out, models.PairwiseComparison{
				FeatureA:          fa.Feature,
				FeatureB:          fb.Feature,
				UtilityDifference: fa.UtilityScore - fb.UtilityScore,
				TStatistic:        test.TStatistic,
				PValue:            test.PValue,
				Significant:       test.Significant,
			})
		}
	}
	return out, nil
}

// dataQuality 完了率から平均回答時間の一定割合より速い回答の割合を引く
func (a *MaxDiffAnalyzer) dataQuality(responses []models.MaxDiffResponse, valid, respondents int) models.DataQuality {
	total := len(responses)
	completion := float64(valid) / float64(total) * 100

	var timeSum float64
	timed := 0
	for _, r := range responses {
		if r.ResponseTimeMs > 0 {
			timeSum += r.ResponseTimeMs
			timed++
		}
	}
	fast := 0
	if timed > 0 {
		threshold := timeSum / float64(timed) * a.policy.FastResponseRatio
		for _, r := range responses {
			if r.ResponseTimeMs > 0 && r.ResponseTimeMs < threshold {
				fast++
			}
		}
	}
	penalty := math.Min(float64(fast)/float64(total)*100, a.policy.MaxSpeedPenalty)

	flags := []string{}
	if valid < total {
		flags = append(flags, "invalid_responses")
	}
	if fast > 0 {
		flags = append(flags, "fast_responses")
	}
	if respondents < a.policy.MinRespondents {
		flags = append(flags, "few_respondents")
	}

	return models.DataQuality{
		CompletionRate: completion,
		FastResponses:  fast,
		Penalty:        penalty,
		QualityScore:   math.Max(0, completion-penalty),
		Flags:          flags,
	}
}

// GenerateDesign 回答者ごとに特徴をローテーションした設問セットを作る
// 既定のローテーション数に達し、かつ全特徴が1回以上出るまで設問を追加する
func (a *MaxDiffAnalyzer) GenerateDesign(features []string, respondentIndex int) ([]models.MaxDiffQuestion, error) {
	v := a.ValidateDesign(features, a.policy.Rotations)
	if !v.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDesign, v.Errors[0].Message)
	}
	if respondentIndex < 0 {
		respondentIndex = -respondentIndex
	}

	n := len(features)
	perQuestion := minInt(a.policy.FeaturesPerQuestion, n)
	if perQuestion < 2 {
		return nil, fmt.Errorf("%w: 1問あたりの特徴数が%dです", ErrInvalidDesign, perQuestion)
	}
	seen := make(map[string]bool, n)
	var questions []models.MaxDiffQuestion

	for r := 0; r < a.policy.Rotations || len(seen) < n; r++ {
		start := (respondentIndex + r*perQuestion) % n
		set := make([]string, perQuestion)
		for k := 0; k < perQuestion; k++ {
			set[k] = features[(start+k)%n]
			seen[set[k]] = true
		}
		questions = append(questions, models.MaxDiffQuestion{
			QuestionID: fmt.Sprintf("r%d-q%d", respondentIndex, r+1),
			Rotation:   r + 1,
			Features:   set,
		})
	}

	a.logger.Debug("MaxDiff設問を生成しました",
		zap.Int("respondent", respondentIndex),
		zap.Int("questions", len(questions)))
	return questions, nil
}

// ValidateDesign 設問設計の前提を検証する
func (a *MaxDiffAnalyzer) ValidateDesign(features []string, rotations int) models.ValidationResult {
	result := models.NewValidationResult()

	if len(features) < a.policy.MinFeatures {
		result.AddError("too_few_features", "features",
			fmt.Sprintf("特徴は%d個以上必要です（%d個）", a.policy.MinFeatures, len(features)))
	}
	if rotations < a.policy.MinRotations {
		result.AddError("too_few_rotations", "rotations",
			fmt.Sprintf("ローテーションは%d回以上必要です（%d回）", a.policy.MinRotations, rotations))
	}

	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if f == "" {
			result.AddError("empty_feature", "features", "空の特徴名があります")
			continue
		}
		if seen[f] {
			result.AddError("duplicate_feature", "features", fmt.Sprintf("特徴 %s が重複しています", f))
		}
		seen[f] = true
	}
	return result
}

// ValidateResponses 回答データを検証する
func (a *MaxDiffAnalyzer) ValidateResponses(responses []models.MaxDiffResponse, features []string) models.ValidationResult {
	result := models.NewValidationResult()
	if len(responses) == 0 {
		result.AddError("empty_input", "responses", "MaxDiff回答がありません")
		return result
	}

	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f] = true
	}

	unknown, same, anonymous := 0, 0, 0
	observed := make(map[string]bool)
	respondents := make(map[string]bool)
	for _, r := range responses {
		if !known[r.MostImportant] || !known[r.LeastImportant] {
			unknown++
		}
		if r.MostImportant == r.LeastImportant {
			same++
		}
		observed[r.MostImportant] = true
		observed[r.LeastImportant] = true
		if r.RespondentID == "" {
			anonymous++
			continue
		}
		respondents[r.RespondentID] = true
	}

	if unknown > 0 {
		result.AddError("unknown_feature", "responses", fmt.Sprintf("特徴リストにない選択を含む回答が%d件あります", unknown))
	}
	if same > 0 {
		result.AddError("same_choice", "responses", fmt.Sprintf("最重要と最不要が同じ回答が%d件あります", same))
	}
	if anonymous > 0 {
		result.AddWarning("missing_respondent_id", "respondent_id", fmt.Sprintf("回答者IDのない回答が%d件あります", anonymous))
	}
	if len(respondents) < a.policy.MinRespondents {
		result.AddWarning("few_respondents", "respondent_id",
			fmt.Sprintf("回答者が%d人です。%d人以上を推奨します", len(respondents), a.policy.MinRespondents))
	}
	for _, f := range features {
		if !observed[f] {
			result.AddWarning("feature_not_observed", "features", fmt.Sprintf("特徴 %s が一度も選ばれていません", f))
		}
	}
	return result
}
