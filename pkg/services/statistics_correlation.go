package services

import (
	"math"

	"market-insights-api/pkg/models"

	"gonum.org/v1/gonum/stat"
)

// PearsonCorrelation 2つのデータ系列のピアソン相関係数を計算
// 長さ不一致・空はエラー。分散が0の場合は0を返す
func (s *StatisticsService) PearsonCorrelation(x, y []float64) (float64, error) {
	if len(x) == 0 || len(y) == 0 {
		return 0, &EmptyInputError{Operation: "PearsonCorrelation"}
	}
	if len(x) != len(y) {
		return 0, ErrLengthMismatch
	}

	r := stat.Correlation(x, y, nil)

	// 標準偏差が0（定数系列）または1点のみ
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, nil
	}

	return clamp(r, -1, 1), nil
}

// metricCorrelations 購入意向と価格受容度・ブランド適合度の相関
func (s *StatisticsService) metricCorrelations(responses []models.ResponseRecord) (intentPrice, intentBrand float64) {
	if len(responses) < 3 {
		return 0, 0
	}
	intent := make([]float64, len(responses))
	price := make([]float64, len(responses))
	brand := make([]float64, len(responses))
	for i, r := range responses {
		intent[i] = r.PurchaseIntent
		price[i] = r.PriceAcceptance
		brand[i] = r.BrandFit
	}
	intentPrice, _ = s.PearsonCorrelation(intent, price)
	intentBrand, _ = s.PearsonCorrelation(intent, brand)
	return intentPrice, intentBrand
}
