package services

import (
	"fmt"
	"math"
	"strings"

	"market-insights-api/pkg/models"
)

var patternTypeLabels = map[models.PatternType]string{
	models.PatternTypeDemographic:   "属性",
	models.PatternTypeGeographic:    "地域",
	models.PatternTypePsychographic: "心理",
	models.PatternTypeBehavioral:    "行動",
}

// dimensionLabel 軸キー（交差なら ">" 区切り）を表示名にする
func dimensionLabel(dimension string) string {
	parts := strings.Split(dimension, ">")
	labels := make([]string, 0, len(parts))
	for _, key := range parts {
		if dim, ok := dimensionByKey(key); ok {
			labels = append(labels, dim.Label)
			continue
		}
		labels = append(labels, key)
	}
	return strings.Join(labels, "×")
}

// describePattern パターンのタイトルと説明文
func describePattern(c segmentCandidate, segment models.PatternSegment, baseline models.Baseline) (string, string) {
	direction := "高い"
	if c.lift < 0 {
		direction = "低い"
	}

	title := fmt.Sprintf("%s: %s は購買意向が%.1f%%%s", patternTypeLabels[c.ptype], segment.Name, math.Abs(c.lift), direction)
	if c.intersectional {
		title = fmt.Sprintf("%s（交差）: %s は購買意向が%.1f%%%s", patternTypeLabels[c.ptype], segment.Name, math.Abs(c.lift), direction)
	}

	description := fmt.Sprintf("%sで見た %s（n=%d）の平均購買意向は %.1f で、全体平均 %.1f と比べて%s（t=%.2f, p=%.2f）。",
		dimensionLabel(c.dimension), segment.Name, segment.Size, segment.PurchaseIntent, baseline.PurchaseIntent,
		direction, finiteOrZero(c.test.TStatistic), c.test.PValue)
	if len(segment.TopBenefits) > 0 {
		description += fmt.Sprintf(" 重視するベネフィットは %s。", strings.Join(segment.TopBenefits, "、"))
	}
	return title, description
}

// recommendForPattern パターンに基づく推奨事項を生成
func recommendForPattern(p models.Pattern, segment models.PatternSegment, baseline models.Baseline) []string {
	var recommendations []string

	// 購買意向の方向に基づく推奨
	if segment.Lift > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%s を優先ターゲットとして訴求を強化してください（年間売上インパクト試算: %.0f）", segment.Name, p.RevenueImpact))
	} else {
		recommendations = append(recommendations, fmt.Sprintf("%s の購買意向が低いです。障壁となる要因の調査を推奨します", segment.Name))
	}

	if len(segment.TopBenefits) > 0 {
		recommendations = append(recommendations, fmt.Sprintf("メッセージでは「%s」を前面に出してください", segment.TopBenefits[0]))
	}
	if len(segment.TopConcerns) > 0 {
		recommendations = append(recommendations, fmt.Sprintf("「%s」への懸念に対処するコンテンツを用意してください", segment.TopConcerns[0]))
	}

	// 価格受容度
	if baseline.PriceAcceptance > 0 && segment.PriceAcceptance < baseline.PriceAcceptance*0.9 {
		recommendations = append(recommendations, "価格受容度が全体より低いため、エントリー価格帯や割引施策を検討してください")
	}

	if segment.DominantChannel != "" {
		recommendations = append(recommendations, fmt.Sprintf("主要チャネル「%s」での露出を増やしてください", segment.DominantChannel))
	}
	return recommendations
}
