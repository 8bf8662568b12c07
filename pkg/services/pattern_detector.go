package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// patternNamespace パターンIDの名前空間。IDは入力から決定的に生成される
var patternNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("market-insights-api/patterns"))

// PatternDetector 回答者セグメントの中から有意なパターンを検出する
type PatternDetector struct {
	stats  *StatisticsService
	policy config.PatternPolicy
	logger *zap.Logger
}

// NewPatternDetector 新しいパターン検出器を作成
func NewPatternDetector(stats *StatisticsService, policy config.PatternPolicy, logger *zap.Logger) *PatternDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.TopItems <= 0 {
		policy.TopItems = 3
	}
	return &PatternDetector{stats: stats, policy: policy, logger: logger}
}

// segmentCandidate 検定済みのセグメント候補
type segmentCandidate struct {
	ptype          models.PatternType
	dimension      string
	path           []string
	members        []int
	lift           float64
	test           models.TTestResult
	intersectional bool
}

// DetectPatterns 有意なパターンをランキング順に返す
func (d *PatternDetector) DetectPatterns(responses []models.ResponseRecord) ([]models.Pattern, error) {
	report, err := d.DetectPatternsWithBaseline(responses)
	if err != nil {
		return nil, err
	}
	return report.Patterns, nil
}

// DetectPatternsWithBaseline ベースラインと評価したセグメント数を含めて返す
func (d *PatternDetector) DetectPatternsWithBaseline(responses []models.ResponseRecord) (*models.PatternReport, error) {
	if len(responses) == 0 {
		return nil, &EmptyInputError{Operation: "DetectPatterns"}
	}

	baseline := d.ComputeBaseline(responses)
	allIntents := make([]float64, len(responses))
	for i, r := range responses {
		allIntents[i] = r.PurchaseIntent
	}

	index := buildSegmentIndex(responses)

	var candidates []segmentCandidate
	evaluate := func(ptype models.PatternType, dimension string, path []string, members []int, intersectional bool) error {
		intents := make([]float64, len(members))
		for k, i := range members {
			intents[k] = responses[i].PurchaseIntent
		}
		test, err := d.stats.TwoSampleTest(intents, allIntents)
		if err != nil {
			return fmt.Errorf("セグメント %s の検定に失敗: %w", strings.Join(path, " × "), err)
		}
		candidates = append(candidates, segmentCandidate{
			ptype:          ptype,
			dimension:      dimension,
			path:           append([]string(nil), path...),
			members:        members,
			lift:           d.stats.Lift(baseline.PurchaseIntent, calculateMean(intents)),
			test:           test,
			intersectional: intersectional,
		})
		return nil
	}

	// 単一軸の分割
	for _, dim := range segmentDimensions {
		for _, category := range index.categories(dim.Key) {
			members := index[dim.Key][category]
			if len(members) < d.minSampleAt(0) {
				continue
			}
			if err := evaluate(dim.Type, dim.Key, []string{category}, members, false); err != nil {
				return nil, err
			}
		}
	}

	// 交差セグメント（例: エスニシティ → 年齢層 → 居住地区分）
	for _, chain := range d.policy.IntersectionChains {
		if !d.validChain(chain) {
			continue
		}
		first, _ := dimensionByKey(chain[0])
		dimension := strings.Join(chain, ">")
		var nest func(level int, parent []int, path []string) error
		nest = func(level int, parent []int, path []string) error {
			if level >= len(chain) {
				return nil
			}
			for _, category := range index.categories(chain[level]) {
				members := index[chain[level]][category]
				if parent != nil {
					members = intersectSorted(parent, members)
				}
				if len(members) < d.minSampleAt(level) {
					continue
				}
				next := append(append([]string(nil), path...), category)
				if level > 0 {
					if err := evaluate(first.Type, dimension, next, members, true); err != nil {
						return err
					}
				}
				if err := nest(level+1, members, next); err != nil {
					return err
				}
			}
			return nil
		}
		if err := nest(0, nil, nil); err != nil {
			return nil, err
		}
	}

	pvals := make([]float64, len(candidates))
	for i, c := range candidates {
		pvals[i] = c.test.PValue
	}
	adjusted := d.stats.AdjustPValuesBH(pvals)

	patterns := make([]models.Pattern, 0)
	for i, c := range candidates {
		if !d.accept(c) {
			continue
		}
		patterns = append(patterns, d.buildPattern(c, adjusted[i], responses, baseline))
	}

	patterns = d.filterAndRank(patterns)

	d.logger.Info("パターン検出完了",
		zap.Int("responses", len(responses)),
		zap.Int("segments_evaluated", len(candidates)),
		zap.Int("patterns", len(patterns)))

	return &models.PatternReport{
		Baseline:          baseline,
		Patterns:          patterns,
		SegmentsEvaluated: len(candidates),
	}, nil
}

// ComputeBaseline 全回答の平均値
func (d *PatternDetector) ComputeBaseline(responses []models.ResponseRecord) models.Baseline {
	intents := make([]float64, len(responses))
	prices := make([]float64, len(responses))
	brands := make([]float64, len(responses))
	for i, r := range responses {
		intents[i] = r.PurchaseIntent
		prices[i] = r.PriceAcceptance
		brands[i] = r.BrandFit
	}
	intentPrice, intentBrand := d.stats.metricCorrelations(responses)
	return models.Baseline{
		PurchaseIntent:         calculateMean(intents),
		PriceAcceptance:        calculateMean(prices),
		BrandFit:               calculateMean(brands),
		TotalResponses:         len(responses),
		IntentPriceCorrelation: intentPrice,
		IntentBrandCorrelation: intentBrand,
	}
}

// minSampleAt ネストの深さごとの最小サンプル数。設定より深い段は最後の値を使う
func (d *PatternDetector) minSampleAt(level int) int {
	floors := d.policy.MinSampleSizes
	if len(floors) == 0 {
		return 1
	}
	if level >= len(floors) {
		return floors[len(floors)-1]
	}
	return floors[level]
}

func (d *PatternDetector) validChain(chain []string) bool {
	if len(chain) < 2 {
		return false
	}
	for _, key := range chain {
		if _, ok := dimensionByKey(key); !ok {
			d.logger.Warn("不明な軸を含む交差チェーンをスキップします",
				zap.Strings("chain", chain), zap.String("dimension", key))
			return false
		}
	}
	return true
}

// accept 統計的有意性と実務的な大きさ（種別ごとの|lift|下限）の両方を満たすか
func (d *PatternDetector) accept(c segmentCandidate) bool {
	if c.test.PValue >= d.stats.SignificanceLevel() {
		return false
	}
	return math.Abs(c.lift) > d.policy.MinLift[string(c.ptype)]
}

// classifyImpact |lift|からインパクト段階を決める
func (d *PatternDetector) classifyImpact(ptype models.PatternType, lift float64) models.ImpactLevel {
	abs := math.Abs(lift)
	switch {
	case abs > d.policy.CriticalLift:
		return models.ImpactCritical
	case abs > d.policy.HighLift:
		return models.ImpactHigh
	case abs > d.policy.MediumLift[string(ptype)]:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

// revenueImpact セグメント規模×lift×参照価格の年換算
func (d *PatternDetector) revenueImpact(size int, lift float64) float64 {
	return float64(size) * (lift / 100) * d.policy.ReferencePrice * 12
}

func (d *PatternDetector) buildPattern(c segmentCandidate, adjustedP float64, responses []models.ResponseRecord, baseline models.Baseline) models.Pattern {
	name := strings.Join(c.path, " × ")
	segment := d.summarizeSegment(name, responses, c.members, baseline)
	impact := d.classifyImpact(c.ptype, c.lift)

	key := c.dimension + ":" + strings.Join(c.path, ">")
	p := models.Pattern{
		ID:                uuid.NewSHA1(patternNamespace, []byte(key)).String(),
		Type:              c.ptype,
		Dimension:         c.dimension,
		Path:              c.path,
		Intersectional:    c.intersectional,
		Confidence:        (1 - c.test.PValue) * 100,
		PValue:            c.test.PValue,
		AdjustedPValue:    adjustedP,
		TStatistic:        finiteOrZero(c.test.TStatistic),
		SampleSize:        len(c.members),
		Segments:          []models.PatternSegment{segment},
		Impact:            impact,
		RevenueImpact:     d.revenueImpact(len(c.members), c.lift),
		MarketShareImpact: float64(len(c.members)) / float64(baseline.TotalResponses),
	}
	p.Title, p.Description = describePattern(c, segment, baseline)
	p.Recommendations = recommendForPattern(p, segment, baseline)
	return p
}

// filterAndRank 最終フィルタ（p<有意水準かつ|lift|>下限）の後、
// インパクト→信頼度→売上インパクトの降順に並べる
func (d *PatternDetector) filterAndRank(patterns []models.Pattern) []models.Pattern {
	out := make([]models.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.PValue < d.stats.SignificanceLevel() && math.Abs(p.Segments[0].Lift) > d.policy.FinalMinLift {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Impact.Rank() != b.Impact.Rank() {
			return a.Impact.Rank() > b.Impact.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.RevenueImpact != b.RevenueImpact {
			return a.RevenueImpact > b.RevenueImpact
		}
		return a.ID < b.ID
	})
	return out
}
