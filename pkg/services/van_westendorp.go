package services

import (
	"fmt"
	"math"
	"sort"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"go.uber.org/zap"
)

// 交点の名前（DataQuality.Flags と Intersections で使う）
const (
	pointOptimal               = "optimal_price"
	pointIndifference          = "indifference_price"
	pointMarginalCheapness     = "marginal_cheapness"
	pointMarginalExpensiveness = "marginal_expensiveness"
)

// PriceSensitivityAnalyzer Van Westendorp価格感度分析
type PriceSensitivityAnalyzer struct {
	stats  *StatisticsService
	policy config.PricingPolicy
	logger *zap.Logger
}

// NewPriceSensitivityAnalyzer 新しい価格感度分析器を作成
func NewPriceSensitivityAnalyzer(stats *StatisticsService, policy config.PricingPolicy, logger *zap.Logger) *PriceSensitivityAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.OutlierSigma <= 0 {
		policy.OutlierSigma = 3
	}
	return &PriceSensitivityAnalyzer{stats: stats, policy: policy, logger: logger}
}

// priceColumns 有効な回答者だけを残した4系列（昇順ソート済み）
type priceColumns struct {
	tooExpensive []float64
	expensive    []float64
	goodValue    []float64
	tooCheap     []float64
}

func (c priceColumns) all() [][]float64 {
	return [][]float64{c.tooExpensive, c.expensive, c.goodValue, c.tooCheap}
}

// Analyze 4系列の累積度数曲線を作り、交点から主要価格を求める
// 交点は標準的なPSMの組み合わせで求める:
// 最適価格=安すぎる×高すぎる、無関心価格=お買い得×高い、
// 限界安値=安すぎる×(100-お買い得)、限界高値=(100-高い)×高すぎる
func (a *PriceSensitivityAnalyzer) Analyze(input models.PriceSensitivityInput) (*models.VanWestendorpAnalysis, error) {
	total := len(input.TooExpensive)
	if total == 0 && len(input.ExpensiveButConsider) == 0 && len(input.GoodValue) == 0 && len(input.TooCheap) == 0 {
		return nil, &EmptyInputError{Operation: "VanWestendorp"}
	}
	if len(input.ExpensiveButConsider) != total || len(input.GoodValue) != total || len(input.TooCheap) != total {
		return nil, fmt.Errorf("価格感度分析: %w", ErrLengthMismatch)
	}

	cols := a.validColumns(input)
	valid := len(cols.tooExpensive)
	if valid == 0 {
		return nil, &EmptyInputError{Operation: "VanWestendorp"}
	}

	grid := priceGrid(cols)
	te := ascendingCurve(cols.tooExpensive, grid)
	exp := ascendingCurve(cols.expensive, grid)
	gv := descendingCurve(cols.goodValue, grid)
	tc := descendingCurve(cols.tooCheap, grid)
	notCheap := complementCurve(gv)
	notExpensive := complementCurve(exp)

	quality := a.dataQuality(cols, total)

	type point struct {
		name       string
		descending []float64
		ascending  []float64
	}
	points := []point{
		{pointOptimal, tc, te},
		{pointIndifference, gv, exp},
		{pointMarginalCheapness, tc, notCheap},
		{pointMarginalExpensiveness, notExpensive, te},
	}
	prices := make(map[string]float64, len(points))
	intersections := make([]models.IntersectionStatus, 0, len(points))
	for _, pt := range points {
		price, found := firstIntersection(grid, pt.descending, pt.ascending)
		prices[pt.name] = price
		intersections = append(intersections, models.IntersectionStatus{Point: pt.name, Found: found})
		if !found {
			quality.Flags = append(quality.Flags, pt.name+"_undefined")
		}
	}

	keyPrices := models.KeyPricePoints{
		OptimalPrice:          prices[pointOptimal],
		IndifferencePrice:     prices[pointIndifference],
		MarginalCheapness:     prices[pointMarginalCheapness],
		MarginalExpensiveness: prices[pointMarginalExpensiveness],
	}
	acceptable := models.PriceRange{
		Lower: keyPrices.MarginalCheapness,
		Upper: keyPrices.MarginalExpensiveness,
		Width: keyPrices.MarginalExpensiveness - keyPrices.MarginalCheapness,
	}

	var sensitivity float64
	if keyPrices.OptimalPrice > 0 {
		sensitivity = acceptable.Width / keyPrices.OptimalPrice
	}

	cis, err := a.confidenceIntervals(cols)
	if err != nil {
		return nil, err
	}

	result := &models.VanWestendorpAnalysis{
		SampleSize: valid,
		Curves: models.PriceCurves{
			TooExpensive:         toPricePoints(grid, te),
			ExpensiveButConsider: toPricePoints(grid, exp),
			GoodValue:            toPricePoints(grid, gv),
			TooCheap:             toPricePoints(grid, tc),
		},
		KeyPrices:           keyPrices,
		Intersections:       intersections,
		AcceptableRange:     acceptable,
		SensitivityIndex:    finiteOrZero(sensitivity),
		ElasticityEstimate:  finiteOrZero(elasticity(cols.tooExpensive, keyPrices)),
		ConfidenceIntervals: cis,
		DataQuality:         quality,
	}

	a.logger.Info("価格感度分析完了",
		zap.Int("sample_size", valid),
		zap.Float64("optimal_price", keyPrices.OptimalPrice),
		zap.Strings("flags", quality.Flags))

	return result, nil
}

// validColumns 4つの回答がすべて価格範囲内の回答者だけを取り出す
func (a *PriceSensitivityAnalyzer) validColumns(input models.PriceSensitivityInput) priceColumns {
	var cols priceColumns
	for i := range input.TooExpensive {
		row := []float64{input.TooExpensive[i], input.ExpensiveButConsider[i], input.GoodValue[i], input.TooCheap[i]}
		ok := true
		for _, v := range row {
			if !a.inBounds(v) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		cols.tooExpensive = append(cols.tooExpensive, row[0])
		cols.expensive = append(cols.expensive, row[1])
		cols.goodValue = append(cols.goodValue, row[2])
		cols.tooCheap = append(cols.tooCheap, row[3])
	}
	for _, c := range cols.all() {
		sort.Float64s(c)
	}
	return cols
}

func (a *PriceSensitivityAnalyzer) inBounds(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= a.policy.MinPrice && v <= a.policy.MaxPrice
}

// dataQuality 完了率からσ外れ値の割合に比例したペナルティ（上限あり）を引く
func (a *PriceSensitivityAnalyzer) dataQuality(cols priceColumns, total int) models.DataQuality {
	valid := len(cols.tooExpensive)
	completion := float64(valid) / float64(total) * 100

	outliers := 0
	for _, c := range cols.all() {
		outliers += countSigmaOutliers(c, a.policy.OutlierSigma)
	}
	outlierRate := float64(outliers) / float64(4*valid) * 100
	penalty := math.Min(outlierRate, a.policy.MaxOutlierPenalty)

	flags := []string{}
	if valid < total {
		flags = append(flags, "incomplete_responses")
	}
	if valid < a.policy.MinSampleSize {
		flags = append(flags, "small_sample")
	}

	return models.DataQuality{
		CompletionRate: completion,
		OutlierRate:    outlierRate,
		OutlierCount:   outliers,
		Penalty:        penalty,
		QualityScore:   math.Max(0, completion-penalty),
		Flags:          flags,
	}
}

func (a *PriceSensitivityAnalyzer) confidenceIntervals(cols priceColumns) (models.PriceConfidenceIntervals, error) {
	var out models.PriceConfidenceIntervals
	targets := []*models.ConfidenceInterval{&out.TooExpensive, &out.ExpensiveButConsider, &out.GoodValue, &out.TooCheap}
	for i, values := range cols.all() {
		ci, err := a.stats.ConfidenceInterval(values, a.policy.ConfidenceLevel)
		if err != nil {
			return out, fmt.Errorf("価格の信頼区間の計算に失敗: %w", err)
		}
		*targets[i] = ci
	}
	return out, nil
}

// Validate 分析前の検証。入力は修正せず問題点だけを返す
func (a *PriceSensitivityAnalyzer) Validate(input models.PriceSensitivityInput) models.ValidationResult {
	result := models.NewValidationResult()

	fields := []struct {
		name   string
		values []float64
	}{
		{"too_expensive", input.TooExpensive},
		{"expensive_but_consider", input.ExpensiveButConsider},
		{"good_value", input.GoodValue},
		{"too_cheap", input.TooCheap},
	}

	n := len(input.TooExpensive)
	for _, f := range fields[1:] {
		if len(f.values) != n {
			result.AddError("length_mismatch", f.name,
				fmt.Sprintf("%s の回答数(%d)が too_expensive の回答数(%d)と一致しません", f.name, len(f.values), n))
		}
	}
	if n == 0 {
		result.AddError("empty_input", "too_expensive", "価格回答がありません")
		return result
	}
	if n < a.policy.MinSampleSize {
		result.AddWarning("sample_size_small", "",
			fmt.Sprintf("サンプル数が%d件です。%d件以上を推奨します", n, a.policy.MinSampleSize))
	}

	for _, f := range fields {
		bad := 0
		for _, v := range f.values {
			if !a.inBounds(v) {
				bad++
			}
		}
		if bad > 0 {
			result.AddError("price_out_of_bounds", f.name,
				fmt.Sprintf("%s に範囲外（%.0f〜%.0f）の価格が%d件あります", f.name, a.policy.MinPrice, a.policy.MaxPrice, bad))
		}
	}

	if calculateMean(input.TooCheap) >= calculateMean(input.TooExpensive) {
		result.AddWarning("inconsistent_price_order", "too_cheap",
			fmt.Sprintf("「安すぎる」の平均(%.2f)が「高すぎる」の平均(%.2f)以上です", calculateMean(input.TooCheap), calculateMean(input.TooExpensive)))
	}

	// 回答者ごとの順序（安すぎる ≤ お買い得 ≤ 高いが検討 ≤ 高すぎる）
	if len(input.ExpensiveButConsider) == n && len(input.GoodValue) == n && len(input.TooCheap) == n {
		violations := 0
		for i := 0; i < n; i++ {
			if !(input.TooCheap[i] <= input.GoodValue[i] && input.GoodValue[i] <= input.ExpensiveButConsider[i] && input.ExpensiveButConsider[i] <= input.TooExpensive[i]) {
				violations++
			}
		}
		if violations > 0 {
			result.AddWarning("respondent_order_violation", "",
				fmt.Sprintf("価格の大小関係が逆転している回答者が%d人います", violations))
		}
	}

	return result
}

// priceGrid 全系列の価格の和集合（昇順・重複なし）
func priceGrid(cols priceColumns) []float64 {
	var grid []float64
	for _, c := range cols.all() {
		grid = append(grid, c...)
	}
	sort.Float64s(grid)
	out := grid[:0]
	for i, p := range grid {
		if i == 0 || p != grid[i-1] {
			out = append(out, p)
		}
	}
	return out
}

// ascendingCurve 各価格以下と答えた割合（%）
func ascendingCurve(sorted, grid []float64) []float64 {
	out := make([]float64, len(grid))
	n := float64(len(sorted))
	for i, p := range grid {
		out[i] = float64(countAtOrBelow(sorted, p)) / n * 100
	}
	return out
}

// descendingCurve 各価格以上と答えた割合（%）
func descendingCurve(sorted, grid []float64) []float64 {
	out := make([]float64, len(grid))
	n := float64(len(sorted))
	for i, p := range grid {
		atOrAbove := len(sorted) - sort.SearchFloat64s(sorted, p)
		out[i] = float64(atOrAbove) / n * 100
	}
	return out
}

func complementCurve(curve []float64) []float64 {
	out := make([]float64, len(curve))
	for i, v := range curve {
		out[i] = 100 - v
	}
	return out
}

func countAtOrBelow(sorted []float64, p float64) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i] > p })
}

func toPricePoints(grid, curve []float64) []models.PricePoint {
	out := make([]models.PricePoint, len(grid))
	for i := range grid {
		out[i] = models.PricePoint{Price: grid[i], Percentage: curve[i]}
	}
	return out
}

// firstIntersection 下降曲線と上昇曲線の最初の交点を区分線形補間で求める
// 差が0のまま始まる区間は読み飛ばす。交点がなければ (0, false)
func firstIntersection(grid, descending, ascending []float64) (float64, bool) {
	start := -1
	for i := range grid {
		if descending[i]-ascending[i] != 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	for i := start; i+1 < len(grid); i++ {
		d0 := descending[i] - ascending[i]
		d1 := descending[i+1] - ascending[i+1]
		if d1 == 0 {
			return grid[i+1], true
		}
		if (d0 > 0) != (d1 > 0) {
			return grid[i] + d0/(d0-d1)*(grid[i+1]-grid[i]), true
		}
	}
	return 0, false
}

// elasticity 受容価格帯の両端での「高すぎる」割合の変化率を価格の変化率で割った弾力性の推定
func elasticity(tooExpensive []float64, k models.KeyPricePoints) float64 {
	width := k.MarginalExpensiveness - k.MarginalCheapness
	if width <= 0 || k.OptimalPrice <= 0 || len(tooExpensive) == 0 {
		return 0
	}
	n := float64(len(tooExpensive))
	atUpper := float64(countAtOrBelow(tooExpensive, k.MarginalExpensiveness)) / n
	atLower := float64(countAtOrBelow(tooExpensive, k.MarginalCheapness)) / n
	if atUpper == atLower {
		return 0
	}
	return -(atUpper - atLower) / (width / k.OptimalPrice)
}
