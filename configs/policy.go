package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// p値の算出方式
const (
	PValueApproximate = "approximate" // 固定のt閾値テーブル
	PValueExact       = "exact"       // Student t分布
)

// StatisticsPolicy 統計処理の共通設定
type StatisticsPolicy struct {
	SignificanceLevel float64 `mapstructure:"significance_level" validate:"gt=0,lt=1"`
	PValueMode        string  `mapstructure:"pvalue_mode" validate:"oneof=approximate exact"`
}

// PatternPolicy セグメント検出の閾値。いずれも調整可能なポリシー値
type PatternPolicy struct {
	// ネストの深さごとの最小サンプル数（1段目, 2段目, 3段目...）
	MinSampleSizes []int `mapstructure:"min_sample_sizes" validate:"min=1,dive,gt=0"`
	// パターン種別ごとの|lift|下限
	MinLift map[string]float64 `mapstructure:"min_lift" validate:"required"`
	// 最終フィルタの|lift|下限
	FinalMinLift float64 `mapstructure:"final_min_lift" validate:"gte=0"`
	CriticalLift float64 `mapstructure:"critical_lift" validate:"gtfield=HighLift"`
	HighLift     float64 `mapstructure:"high_lift" validate:"gt=0"`
	// high未満のときmedium/lowを分ける種別ごとの閾値
	MediumLift         map[string]float64 `mapstructure:"medium_lift" validate:"required"`
	ReferencePrice     float64            `mapstructure:"reference_price" validate:"gt=0"`
	IntersectionChains [][]string         `mapstructure:"intersection_chains"`
	TopItems           int                `mapstructure:"top_items" validate:"gt=0"`
}

// PricingPolicy Van Westendorp分析の設定
type PricingPolicy struct {
	MinSampleSize     int     `mapstructure:"min_sample_size" validate:"gt=0"`
	MinPrice          float64 `mapstructure:"min_price" validate:"gte=0"`
	MaxPrice          float64 `mapstructure:"max_price" validate:"gtfield=MinPrice"`
	OutlierSigma      float64 `mapstructure:"outlier_sigma" validate:"gt=0"`
	MaxOutlierPenalty float64 `mapstructure:"max_outlier_penalty" validate:"gte=0,lte=100"`
	ConfidenceLevel   float64 `mapstructure:"confidence_level" validate:"gt=0,lt=1"`
}

// MaxDiffPolicy MaxDiff分析と設問設計の設定
type MaxDiffPolicy struct {
	FeaturesPerQuestion int     `mapstructure:"features_per_question" validate:"gte=2"`
	Rotations           int     `mapstructure:"rotations" validate:"gt=0"`
	MinFeatures         int     `mapstructure:"min_features" validate:"gte=2"`
	MinRotations        int     `mapstructure:"min_rotations" validate:"gt=0"`
	MinRespondents      int     `mapstructure:"min_respondents" validate:"gt=0"`
	FastResponseRatio   float64 `mapstructure:"fast_response_ratio" validate:"gte=0,lt=1"`
	MaxSpeedPenalty     float64 `mapstructure:"max_speed_penalty" validate:"gte=0,lte=100"`
}

// KanoImpact カテゴリごとの固定の満足/不満足インパクト（可視化用）
type KanoImpact struct {
	Satisfaction    float64 `mapstructure:"satisfaction" json:"satisfaction"`
	Dissatisfaction float64 `mapstructure:"dissatisfaction" json:"dissatisfaction"`
}

// KanoPolicy Kano分析の設定
type KanoPolicy struct {
	MinRespondents        int                   `mapstructure:"min_respondents" validate:"gt=0"`
	CompletenessThreshold float64               `mapstructure:"completeness_threshold" validate:"gt=0,lte=1"`
	ImpactScores          map[string]KanoImpact `mapstructure:"impact_scores" validate:"required"`
}

// AnalysisPolicy 分析全体のポリシー
type AnalysisPolicy struct {
	Statistics StatisticsPolicy `mapstructure:"statistics"`
	Patterns   PatternPolicy    `mapstructure:"patterns"`
	Pricing    PricingPolicy    `mapstructure:"pricing"`
	MaxDiff    MaxDiffPolicy    `mapstructure:"maxdiff"`
	Kano       KanoPolicy       `mapstructure:"kano"`
}

// DefaultAnalysisPolicy 既定のポリシー
func DefaultAnalysisPolicy() AnalysisPolicy {
	return AnalysisPolicy{
		Statistics: StatisticsPolicy{
			SignificanceLevel: 0.05,
			PValueMode:        PValueApproximate,
		},
		Patterns: PatternPolicy{
			MinSampleSizes: []int{20, 10, 5},
			MinLift: map[string]float64{
				"demographic":   15,
				"geographic":    8,
				"psychographic": 12,
				"behavioral":    10,
			},
			FinalMinLift: 10,
			CriticalLift: 40,
			HighLift:     25,
			MediumLift: map[string]float64{
				"demographic":   20,
				"geographic":    15,
				"psychographic": 18,
				"behavioral":    15,
			},
			ReferencePrice: 49.99,
			IntersectionChains: [][]string{
				{"ethnicity", "age_band", "location_class"},
				{"age_band", "income_band"},
			},
			TopItems: 3,
		},
		Pricing: PricingPolicy{
			MinSampleSize:     50,
			MinPrice:          0,
			MaxPrice:          10000,
			OutlierSigma:      3,
			MaxOutlierPenalty: 50,
			ConfidenceLevel:   0.95,
		},
		MaxDiff: MaxDiffPolicy{
			FeaturesPerQuestion: 4,
			Rotations:           5,
			MinFeatures:         4,
			MinRotations:        3,
			MinRespondents:      30,
			FastResponseRatio:   0.3,
			MaxSpeedPenalty:     50,
		},
		Kano: KanoPolicy{
			MinRespondents:        30,
			CompletenessThreshold: 0.8,
			ImpactScores: map[string]KanoImpact{
				"must_be":     {Satisfaction: 0, Dissatisfaction: -80},
				"performance": {Satisfaction: 60, Dissatisfaction: -60},
				"attractive":  {Satisfaction: 80, Dissatisfaction: 0},
				"indifferent": {Satisfaction: 0, Dissatisfaction: 0},
				"reverse":     {Satisfaction: -40, Dissatisfaction: 20},
			},
		},
	}
}

// LoadAnalysisPolicy 既定値にYAMLファイル（任意）とINSIGHTS_*環境変数を重ねて読み込む
// マップはキーごとに上書きできる（例: INSIGHTS_PATTERNS_MIN_LIFT_DEMOGRAPHIC,
// INSIGHTS_KANO_IMPACT_SCORES_MUST_BE_DISSATISFACTION）。スライスはカンマ区切り
// （INSIGHTS_PATTERNS_MIN_SAMPLE_SIZES=30,15,5）。intersection_chains はYAMLのみ
func LoadAnalysisPolicy(path string) (AnalysisPolicy, error) {
	policy := DefaultAnalysisPolicy()

	v := viper.New()
	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, policy)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return policy, fmt.Errorf("ポリシーファイルの読み込みに失敗: %w", err)
		}
	}

	if err := v.Unmarshal(&policy); err != nil {
		return policy, fmt.Errorf("ポリシーの解析に失敗: %w", err)
	}
	if err := ValidatePolicy(policy); err != nil {
		return policy, err
	}
	return policy, nil
}

// registerDefaults AutomaticEnvが環境変数を拾えるようキーを登録する
// AutomaticEnvは既知のキーしか参照しないため、マップは要素ごとに登録する
func registerDefaults(v *viper.Viper, p AnalysisPolicy) {
	v.SetDefault("statistics.significance_level", p.Statistics.SignificanceLevel)
	v.SetDefault("statistics.pvalue_mode", p.Statistics.PValueMode)

	v.SetDefault("patterns.min_sample_sizes", p.Patterns.MinSampleSizes)
	for name, lift := range p.Patterns.MinLift {
		v.SetDefault("patterns.min_lift."+name, lift)
	}
	for name, lift := range p.Patterns.MediumLift {
		v.SetDefault("patterns.medium_lift."+name, lift)
	}
	v.SetDefault("patterns.final_min_lift", p.Patterns.FinalMinLift)
	v.SetDefault("patterns.critical_lift", p.Patterns.CriticalLift)
	v.SetDefault("patterns.high_lift", p.Patterns.HighLift)
	v.SetDefault("patterns.reference_price", p.Patterns.ReferencePrice)
	v.SetDefault("patterns.top_items", p.Patterns.TopItems)

	v.SetDefault("pricing.min_sample_size", p.Pricing.MinSampleSize)
	v.SetDefault("pricing.min_price", p.Pricing.MinPrice)
	v.SetDefault("pricing.max_price", p.Pricing.MaxPrice)
	v.SetDefault("pricing.outlier_sigma", p.Pricing.OutlierSigma)
	v.SetDefault("pricing.max_outlier_penalty", p.Pricing.MaxOutlierPenalty)
	v.SetDefault("pricing.confidence_level", p.Pricing.ConfidenceLevel)

	v.SetDefault("maxdiff.features_per_question", p.MaxDiff.FeaturesPerQuestion)
	v.SetDefault("maxdiff.rotations", p.MaxDiff.Rotations)
	v.SetDefault("maxdiff.min_features", p.MaxDiff.MinFeatures)
	v.SetDefault("maxdiff.min_rotations", p.MaxDiff.MinRotations)
	v.SetDefault("maxdiff.min_respondents", p.MaxDiff.MinRespondents)
	v.SetDefault("maxdiff.fast_response_ratio", p.MaxDiff.FastResponseRatio)
	v.SetDefault("maxdiff.max_speed_penalty", p.MaxDiff.MaxSpeedPenalty)

	v.SetDefault("kano.min_respondents", p.Kano.MinRespondents)
	v.SetDefault("kano.completeness_threshold", p.Kano.CompletenessThreshold)
	for category, impact := range p.Kano.ImpactScores {
		v.SetDefault("kano.impact_scores."+category+".satisfaction", impact.Satisfaction)
		v.SetDefault("kano.impact_scores."+category+".dissatisfaction", impact.Dissatisfaction)
	}
}

var policyValidator = validator.New()

// ValidatePolicy ポリシー値の範囲を検証する
func ValidatePolicy(p AnalysisPolicy) error {
	if err := policyValidator.Struct(p); err != nil {
		return fmt.Errorf("ポリシーが不正です: %w", err)
	}
	for _, t := range []string{"demographic", "geographic", "psychographic", "behavioral"} {
		if _, ok := p.Patterns.MinLift[t]; !ok {
			return fmt.Errorf("ポリシーが不正です: patterns.min_lift.%s がありません", t)
		}
		if _, ok := p.Patterns.MediumLift[t]; !ok {
			return fmt.Errorf("ポリシーが不正です: patterns.medium_lift.%s がありません", t)
		}
	}
	if p.MaxDiff.Rotations < p.MaxDiff.MinRotations {
		return fmt.Errorf("ポリシーが不正です: maxdiff.rotations(%d) < maxdiff.min_rotations(%d)", p.MaxDiff.Rotations, p.MaxDiff.MinRotations)
	}
	return nil
}
