package models

// ---- Van Westendorp ----

// PriceSensitivityInput 4つの価格質問への回答（回答者ごとに同じ添字）
type PriceSensitivityInput struct {
	TooExpensive         []float64 `json:"too_expensive"`
	ExpensiveButConsider []float64 `json:"expensive_but_consider"`
	GoodValue            []float64 `json:"good_value"`
	TooCheap             []float64 `json:"too_cheap"`
}

// PricePoint 累積度数曲線上の1点
type PricePoint struct {
	Price      float64 `json:"price"`
	Percentage float64 `json:"percentage"`
}

// PriceCurves 4本の累積度数曲線
type PriceCurves struct {
	TooExpensive         []PricePoint `json:"too_expensive"`          // 昇順累積
	ExpensiveButConsider []PricePoint `json:"expensive_but_consider"` // 昇順累積
	GoodValue            []PricePoint `json:"good_value"`             // 降順累積
	TooCheap             []PricePoint `json:"too_cheap"`              // 降順累積
}

// KeyPricePoints 曲線の交点から得られる価格
type KeyPricePoints struct {
	OptimalPrice          float64 `json:"optimal_price"`
	IndifferencePrice     float64 `json:"indifference_price"`
	MarginalCheapness     float64 `json:"marginal_cheapness"`
	MarginalExpensiveness float64 `json:"marginal_expensiveness"`
}

// PriceRange 受容価格帯
type PriceRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Width float64 `json:"width"`
}

// IntersectionStatus 各交点が見つかったかどうか
type IntersectionStatus struct {
	Point string `json:"point"`
	Found bool   `json:"found"`
}

// PriceConfidenceIntervals 各質問の平均価格の信頼区間
type PriceConfidenceIntervals struct {
	TooExpensive         ConfidenceInterval `json:"too_expensive"`
	ExpensiveButConsider ConfidenceInterval `json:"expensive_but_consider"`
	GoodValue            ConfidenceInterval `json:"good_value"`
	TooCheap             ConfidenceInterval `json:"too_cheap"`
}

// DataQuality 入力データの品質指標（0-100）
type DataQuality struct {
	CompletionRate float64  `json:"completion_rate"`
	OutlierRate    float64  `json:"outlier_rate"`
	OutlierCount   int      `json:"outlier_count"`
	FastResponses  int      `json:"fast_responses,omitempty"`
	Penalty        float64  `json:"penalty"`
	QualityScore   float64  `json:"quality_score"`
	Flags          []string `json:"flags"`
}

// VanWestendorpAnalysis 価格感度分析の結果
type VanWestendorpAnalysis struct {
	SampleSize          int                      `json:"sample_size"`
	Curves              PriceCurves              `json:"curves"`
	KeyPrices           KeyPricePoints           `json:"key_prices"`
	Intersections       []IntersectionStatus     `json:"intersections"`
	AcceptableRange     PriceRange               `json:"acceptable_range"`
	SensitivityIndex    float64                  `json:"sensitivity_index"`
	ElasticityEstimate  float64                  `json:"elasticity_estimate"`
	ConfidenceIntervals PriceConfidenceIntervals `json:"confidence_intervals"`
	DataQuality         DataQuality              `json:"data_quality"`
}

// ---- MaxDiff ----

// MaxDiffResponse 1問への回答（最重要・最不要の選択）
type MaxDiffResponse struct {
	QuestionID     string  `json:"question_id"`
	MostImportant  string  `json:"most_important"`
	LeastImportant string  `json:"least_important"`
	RespondentID   string  `json:"respondent_id"`
	ResponseTimeMs float64 `json:"response_time_ms"`
}

// MaxDiffQuestion 回答者に提示する特徴のサブセット
type MaxDiffQuestion struct {
	QuestionID string   `json:"question_id"`
	Rotation   int      `json:"rotation"`
	Features   []string `json:"features"`
}

// MaxDiffFeatureScore 特徴ごとの推定結果
type MaxDiffFeatureScore struct {
	Feature            string             `json:"feature"`
	MostCount          int                `json:"most_count"`
	LeastCount         int                `json:"least_count"`
	BestWorstScore     int                `json:"best_worst_score"`
	UtilityScore       float64            `json:"utility_score"`
	ShareOfPreference  float64            `json:"share_of_preference"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	Rank               int                `json:"rank"`
}

// PairwiseComparison 2特徴間の有意差検定
type PairwiseComparison struct {
	FeatureA          string  `json:"feature_a"`
	FeatureB          string  `json:"feature_b"`
	UtilityDifference float64 `json:"utility_difference"`
	TStatistic        float64 `json:"t_statistic"`
	PValue            float64 `json:"p_value"`
	Significant       bool    `json:"significant"`
}

// MaxDiffAnalysis MaxDiff分析の結果
type MaxDiffAnalysis struct {
	TotalResponses   int                   `json:"total_responses"`
	TotalRespondents int                   `json:"total_respondents"`
	Features         []MaxDiffFeatureScore `json:"features"` // Rank順
	Pairwise         []PairwiseComparison  `json:"pairwise"`
	DataQuality      DataQuality           `json:"data_quality"`
}

// ---- Kano ----

// KanoAnswer 5段階の回答語彙
type KanoAnswer string

const (
	KanoLikeIt     KanoAnswer = "like_it"
	KanoExpectIt   KanoAnswer = "expect_it"
	KanoNeutral    KanoAnswer = "neutral"
	KanoTolerateIt KanoAnswer = "tolerate_it"
	KanoDislikeIt  KanoAnswer = "dislike_it"
)

// KanoCategory 分類カテゴリ（評価表の6分類と業務上の5分類を兼ねる）
type KanoCategory string

const (
	KanoMustBe         KanoCategory = "must_be"
	KanoOneDimensional KanoCategory = "one_dimensional"
	KanoPerformance    KanoCategory = "performance"
	KanoAttractive     KanoCategory = "attractive"
	KanoIndifferent    KanoCategory = "indifferent"
	KanoReverse        KanoCategory = "reverse"
	KanoQuestionable   KanoCategory = "questionable"
)

// KanoResponse 回答者×特徴ごとの充足/不充足の反応
type KanoResponse struct {
	Feature               string     `json:"feature"`
	FunctionalResponse    KanoAnswer `json:"functional_response"`
	DysfunctionalResponse KanoAnswer `json:"dysfunctional_response"`
	RespondentID          string     `json:"respondent_id"`
}

// KanoFeatureResult 特徴ごとの分類結果
type KanoFeatureResult struct {
	Feature               string               `json:"feature"`
	Category              KanoCategory         `json:"category"`
	ConfidenceLevel       float64              `json:"confidence_level"` // 最多カテゴリの割合（%）
	TotalResponses        int                  `json:"total_responses"`
	Distribution          map[KanoCategory]int `json:"distribution"`
	RawDistribution       map[KanoCategory]int `json:"raw_distribution"`
	SatisfactionImpact    float64              `json:"satisfaction_impact"`
	DissatisfactionImpact float64              `json:"dissatisfaction_impact"`
	BetterCoefficient     float64              `json:"better_coefficient"`
	WorseCoefficient      float64              `json:"worse_coefficient"`
}

// KanoAnalysis Kano分析の結果
type KanoAnalysis struct {
	TotalRespondents int                       `json:"total_respondents"`
	Features         []KanoFeatureResult       `json:"features"`
	CategorySummary  map[KanoCategory][]string `json:"category_summary"`
}

// ---- Study ----

// StudyInput 4手法分の入力。空の手法はスキップされる
type StudyInput struct {
	Responses       []ResponseRecord       `json:"responses,omitempty"`
	Pricing         *PriceSensitivityInput `json:"pricing,omitempty"`
	MaxDiff         []MaxDiffResponse      `json:"maxdiff,omitempty"`
	MaxDiffFeatures []string               `json:"maxdiff_features,omitempty"`
	Kano            []KanoResponse         `json:"kano,omitempty"`
}

// StudyReport 全手法の分析結果
type StudyReport struct {
	ReportID     string                 `json:"report_id"`
	AnalysisDate string                 `json:"analysis_date"`
	Patterns     *PatternReport         `json:"patterns,omitempty"`
	Pricing      *VanWestendorpAnalysis `json:"pricing,omitempty"`
	MaxDiff      *MaxDiffAnalysis       `json:"maxdiff,omitempty"`
	Kano         *KanoAnalysis          `json:"kano,omitempty"`
	Skipped      []string               `json:"skipped,omitempty"`
}
