package services

import (
	"sort"

	"market-insights-api/pkg/models"
)

// segmentDimension セグメントを切る軸
type segmentDimension struct {
	Key   string
	Label string
	Type  models.PatternType
	// 回答者が属するカテゴリ（集合型の軸は複数）
	Values func(r *models.ResponseRecord) []string
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// segmentDimensions 分析対象の軸。並び順が結果の走査順になる
var segmentDimensions = []segmentDimension{
	{Key: "age_band", Label: "年齢層", Type: models.PatternTypeDemographic,
		Values: func(r *models.ResponseRecord) []string { return single(r.Demographics.AgeBand) }},
	{Key: "gender", Label: "性別", Type: models.PatternTypeDemographic,
		Values: func(r *models.ResponseRecord) []string { return single(r.Demographics.Gender) }},
	{Key: "income_band", Label: "所得層", Type: models.PatternTypeDemographic,
		Values: func(r *models.ResponseRecord) []string { return single(r.Demographics.IncomeBand) }},
	{Key: "education", Label: "学歴", Type: models.PatternTypeDemographic,
		Values: func(r *models.ResponseRecord) []string { return single(r.Demographics.Education) }},
	{Key: "ethnicity", Label: "エスニシティ", Type: models.PatternTypeDemographic,
		Values: func(r *models.ResponseRecord) []string { return single(r.Demographics.Ethnicity) }},
	{Key: "location_class", Label: "居住地区分", Type: models.PatternTypeGeographic,
		Values: func(r *models.ResponseRecord) []string { return single(r.Demographics.LocationClass) }},
	{Key: "motivation", Label: "動機", Type: models.PatternTypePsychographic,
		Values: func(r *models.ResponseRecord) []string { return uniqueStrings(r.Psychographics.Motivations) }},
	{Key: "concern", Label: "懸念", Type: models.PatternTypePsychographic,
		Values: func(r *models.ResponseRecord) []string { return uniqueStrings(r.Psychographics.Concerns) }},
	{Key: "preferred_channel", Label: "購買チャネル", Type: models.PatternTypeBehavioral,
		Values: func(r *models.ResponseRecord) []string { return single(r.Behaviors.PreferredChannel) }},
	{Key: "preferred_format", Label: "フォーマット", Type: models.PatternTypeBehavioral,
		Values: func(r *models.ResponseRecord) []string { return single(r.Behaviors.PreferredFormat) }},
	{Key: "category_usage", Label: "カテゴリ利用度", Type: models.PatternTypeBehavioral,
		Values: func(r *models.ResponseRecord) []string { return single(r.Behaviors.CategoryUsage) }},
}

func dimensionByKey(key string) (segmentDimension, bool) {
	for _, d := range segmentDimensions {
		if d.Key == key {
			return d, true
		}
	}
	return segmentDimension{}, false
}

// segmentIndex 軸 -> カテゴリ -> 回答者の添字（昇順）
// 1回だけ構築し、ネストした分割では添字の積集合を取る
type segmentIndex map[string]map[string][]int

func buildSegmentIndex(responses []models.ResponseRecord) segmentIndex {
	idx := make(segmentIndex, len(segmentDimensions))
	for _, dim := range segmentDimensions {
		groups := make(map[string][]int)
		for i := range responses {
			for _, v := range dim.Values(&responses[i]) {
				groups[v] = append(groups[v], i)
			}
		}
		idx[dim.Key] = groups
	}
	return idx
}

// categories 軸のカテゴリを辞書順で返す
func (idx segmentIndex) categories(key string) []string {
	groups := idx[key]
	out := make([]string, 0, len(groups))
	for k := range groups {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// intersectSorted 昇順の添字列の積集合
func intersectSorted(a, b []int) []int {
	out := make([]int, 0, minInt(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// summarizeSegment セグメントの平均値と代表的な属性を集計
func (d *PatternDetector) summarizeSegment(name string, responses []models.ResponseRecord, members []int, baseline models.Baseline) models.PatternSegment {
	intents := make([]float64, len(members))
	prices := make([]float64, len(members))
	brands := make([]float64, len(members))

	benefitScores := make(map[string]float64)
	concernCounts := make(map[string]float64)
	channelCounts := make(map[string]float64)
	formatCounts := make(map[string]float64)
	motivationCounts := make(map[string]float64)

	for k, i := range members {
		r := &responses[i]
		intents[k] = r.PurchaseIntent
		prices[k] = r.PriceAcceptance
		brands[k] = r.BrandFit

		// 順位が高いほど大きい重み（ボルダ得点）
		for pos, b := range r.BenefitRanking {
			if b == "" {
				continue
			}
			benefitScores[b] += float64(len(r.BenefitRanking) - pos)
		}
		for _, c := range uniqueStrings(r.Psychographics.Concerns) {
			concernCounts[c]++
		}
		for _, m := range uniqueStrings(r.Psychographics.Motivations) {
			motivationCounts[m]++
		}
		if r.Behaviors.PreferredChannel != "" {
			channelCounts[r.Behaviors.PreferredChannel]++
		}
		if r.Behaviors.PreferredFormat != "" {
			formatCounts[r.Behaviors.PreferredFormat]++
		}
	}

	meanIntent := calculateMean(intents)
	return models.PatternSegment{
		Name:               name,
		Size:               len(members),
		PurchaseIntent:     meanIntent,
		Lift:               d.stats.Lift(baseline.PurchaseIntent, meanIntent),
		PriceAcceptance:    calculateMean(prices),
		BrandFit:           calculateMean(brands),
		TopBenefits:        topKeys(benefitScores, d.policy.TopItems),
		TopConcerns:        topKeys(concernCounts, d.policy.TopItems),
		DominantChannel:    firstOrEmpty(topKeys(channelCounts, 1)),
		DominantFormat:     firstOrEmpty(topKeys(formatCounts, 1)),
		DominantMotivation: firstOrEmpty(topKeys(motivationCounts, 1)),
	}
}

// topKeys スコア降順（同点は辞書順）で上位n件のキー
func topKeys(scores map[string]float64, n int) []string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
