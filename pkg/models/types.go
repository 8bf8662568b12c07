package models

// Demographics 回答者の属性情報（すべてカテゴリ値）
type Demographics struct {
	AgeBand       string `json:"age_band"`
	Gender        string `json:"gender"`
	IncomeBand    string `json:"income_band"`
	LocationClass string `json:"location_class"` // Urban / Suburban / Rural
	Education     string `json:"education"`
	Ethnicity     string `json:"ethnicity"`
}

// Psychographics 回答者の心理属性（動機・懸念の集合）
type Psychographics struct {
	Motivations []string `json:"motivations"`
	Concerns    []string `json:"concerns"`
}

// Behaviors 回答者の行動属性
type Behaviors struct {
	PreferredChannel string `json:"preferred_channel"`
	PreferredFormat  string `json:"preferred_format"`
	CategoryUsage    string `json:"category_usage"`
}

// ResponseRecord 1人分の調査回答。生成後は不変で、分析側は読み取りのみ行う
type ResponseRecord struct {
	RespondentID    string         `json:"respondent_id,omitempty"`
	Demographics    Demographics   `json:"demographics"`
	Psychographics  Psychographics `json:"psychographics"`
	Behaviors       Behaviors      `json:"behaviors"`
	PurchaseIntent  float64        `json:"purchase_intent"`  // 0-100
	PriceAcceptance float64        `json:"price_acceptance"` // 0-100
	BrandFit        float64        `json:"brand_fit"`        // 0-10
	BenefitRanking  []string       `json:"benefit_ranking"`  // 先頭が最も重視されるベネフィット
}

// PatternType パターンの軸
type PatternType string

const (
	PatternTypeDemographic   PatternType = "demographic"
	PatternTypeGeographic    PatternType = "geographic"
	PatternTypePsychographic PatternType = "psychographic"
	PatternTypeBehavioral    PatternType = "behavioral"
)

// ImpactLevel ビジネスインパクトの段階
type ImpactLevel string

const (
	ImpactCritical ImpactLevel = "critical"
	ImpactHigh     ImpactLevel = "high"
	ImpactMedium   ImpactLevel = "medium"
	ImpactLow      ImpactLevel = "low"
)

// Rank ソート用の序数（大きいほど重要）
func (l ImpactLevel) Rank() int {
	switch l {
	case ImpactCritical:
		return 4
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	}
	return 0
}

// AtLeast lがother以上の重要度かどうか
func (l ImpactLevel) AtLeast(other ImpactLevel) bool {
	return l.Rank() >= other.Rank()
}

// PatternSegment パターンを構成するセグメントの集計値
type PatternSegment struct {
	Name               string   `json:"name"`
	Size               int      `json:"size"`
	PurchaseIntent     float64  `json:"purchase_intent"`
	Lift               float64  `json:"lift"` // ベースラインに対する%差
	PriceAcceptance    float64  `json:"price_acceptance"`
	BrandFit           float64  `json:"brand_fit"`
	TopBenefits        []string `json:"top_benefits"`
	TopConcerns        []string `json:"top_concerns"`
	DominantChannel    string   `json:"dominant_channel"`
	DominantFormat     string   `json:"dominant_format"`
	DominantMotivation string   `json:"dominant_motivation"`
}

// Pattern 統計的に有意と判定されたセグメント
type Pattern struct {
	ID                string           `json:"id"`
	Type              PatternType      `json:"type"`
	Dimension         string           `json:"dimension"`
	Path              []string         `json:"path"`
	Intersectional    bool             `json:"intersectional"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Confidence        float64          `json:"confidence"` // (1 - p) * 100
	PValue            float64          `json:"p_value"`
	AdjustedPValue    float64          `json:"adjusted_p_value"` // Benjamini-Hochberg
	TStatistic        float64          `json:"t_statistic"`
	SampleSize        int              `json:"sample_size"`
	Segments          []PatternSegment `json:"segments"`
	Impact            ImpactLevel      `json:"impact"`
	RevenueImpact     float64          `json:"revenue_impact"`
	MarketShareImpact float64          `json:"market_share_impact"`
	Recommendations   []string         `json:"recommendations"`
}

// Baseline 全回答の基準値
type Baseline struct {
	PurchaseIntent         float64 `json:"purchase_intent"`
	PriceAcceptance        float64 `json:"price_acceptance"`
	BrandFit               float64 `json:"brand_fit"`
	TotalResponses         int     `json:"total_responses"`
	IntentPriceCorrelation float64 `json:"intent_price_correlation"`
	IntentBrandCorrelation float64 `json:"intent_brand_correlation"`
}

// PatternReport パターン検出結果とベースライン
type PatternReport struct {
	Baseline          Baseline  `json:"baseline"`
	Patterns          []Pattern `json:"patterns"`
	SegmentsEvaluated int       `json:"segments_evaluated"`
}

// SummaryStats 記述統計量
type SummaryStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std_dev"` // 不偏標準偏差
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	IQR      float64 `json:"iqr"`
}

// ConfidenceInterval 平均値の信頼区間（正規近似）
type ConfidenceInterval struct {
	Level         float64 `json:"level"`
	Mean          float64 `json:"mean"`
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	MarginOfError float64 `json:"margin_of_error"`
}

// TTestResult 2標本t検定の結果
type TTestResult struct {
	TStatistic       float64 `json:"t_statistic"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`
	Significant      bool    `json:"significant"`
	MeanDifference   float64 `json:"mean_difference"`
}

// OutlierResult 1.5×IQR法による外れ値検出結果
type OutlierResult struct {
	Outliers   []float64 `json:"outliers"`
	Indices    []int     `json:"indices"`
	Cleaned    []float64 `json:"cleaned"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
}

// ValidationIssue 検証で見つかった問題
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult 事前検証の結果。エラーがあってもpanic/errorにはしない
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// AddError エラーを追加しIsValidを落とす
func (v *ValidationResult) AddError(code, field, message string) {
	v.Errors = append(v.Errors, ValidationIssue{Code: code, Field: field, Message: message})
	v.IsValid = false
}

// AddWarning 警告を追加する（IsValidは変えない）
func (v *ValidationResult) AddWarning(code, field, message string) {
	v.Warnings = append(v.Warnings, ValidationIssue{Code: code, Field: field, Message: message})
}

// NewValidationResult 空の検証結果
func NewValidationResult() ValidationResult {
	return ValidationResult{IsValid: true, Errors: []ValidationIssue{}, Warnings: []ValidationIssue{}}
}
