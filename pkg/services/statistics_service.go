// Package services は調査データの分析ロジックをまとめたパッケージです。
//
// StatisticsServiceは以下のファイルに分割されています：
//
// - statistics_core.go: StatisticsService構造体、要約統計、信頼区間、2標本t検定、lift
// - statistics_math.go: p値（近似テーブル/t分布）とBenjamini-Hochberg補正
// - statistics_correlation.go: 購買意向と他指標の相関
// - statistics_anomaly.go: 外れ値検出
//
// 分析手法ごとのアナライザー（PatternDetector, PriceSensitivityAnalyzer,
// MaxDiffAnalyzer, KanoAnalyzer）はStatisticsServiceを共有し、
// AnalysisServiceがそれらを束ねてキャッシュとメトリクスを提供します。
package services
