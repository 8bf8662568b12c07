package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	config "market-insights-api/configs"
	"market-insights-api/pkg/models"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultResultCacheSize = 128

var studyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("market-insights-api/studies"))

// 分析手法の名前（メトリクスのラベル・StudyReport.Skipped で使う）
const (
	MethodPatterns = "patterns"
	MethodPricing  = "pricing"
	MethodMaxDiff  = "maxdiff"
	MethodKano     = "kano"
)

// AnalysisService 4つの分析器をまとめ、並行実行と結果キャッシュを受け持つ
type AnalysisService struct {
	policy   config.AnalysisPolicy
	stats    *StatisticsService
	patterns *PatternDetector
	pricing  *PriceSensitivityAnalyzer
	maxdiff  *MaxDiffAnalyzer
	kano     *KanoAnalyzer

	cache    *lru.Cache[string, *models.StudyReport]
	observer AnalysisObserver
	logger   *zap.Logger
	now      func() time.Time
}

// NewAnalysisService 新しい分析サービスを作成
// observerはnilでも良い。cacheSizeが0以下なら既定値を使う
func NewAnalysisService(policy config.AnalysisPolicy, cacheSize int, observer AnalysisObserver, logger *zap.Logger) (*AnalysisService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = defaultResultCacheSize
	}
	cache, err := lru.New[string, *models.StudyReport](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("結果キャッシュの作成に失敗: %w", err)
	}

	stats := NewStatisticsService(policy.Statistics, logger.Named("statistics"))
	return &AnalysisService{
		policy:   policy,
		stats:    stats,
		patterns: NewPatternDetector(stats, policy.Patterns, logger.Named("patterns")),
		pricing:  NewPriceSensitivityAnalyzer(stats, policy.Pricing, logger.Named("pricing")),
		maxdiff:  NewMaxDiffAnalyzer(stats, policy.MaxDiff, logger.Named("maxdiff")),
		kano:     NewKanoAnalyzer(policy.Kano, logger.Named("kano")),
		cache:    cache,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Policy 現在の分析ポリシー
func (s *AnalysisService) Policy() config.AnalysisPolicy { return s.policy }

// Statistics 共有の統計サービス
func (s *AnalysisService) Statistics() *StatisticsService { return s.stats }

// Pricing 価格感度分析器（検証用）
func (s *AnalysisService) Pricing() *PriceSensitivityAnalyzer { return s.pricing }

// MaxDiff MaxDiff分析器（設問設計・検証用）
func (s *AnalysisService) MaxDiff() *MaxDiffAnalyzer { return s.maxdiff }

// Kano Kano分析器（検証用）
func (s *AnalysisService) Kano() *KanoAnalyzer { return s.kano }

func (s *AnalysisService) observe(method string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveAnalysis(method, time.Since(start), err)
	}
}

// DetectPatterns パターン検出
func (s *AnalysisService) DetectPatterns(responses []models.ResponseRecord) (report *models.PatternReport, err error) {
	defer func(start time.Time) { s.observe(MethodPatterns, start, err) }(time.Now())
	return s.patterns.DetectPatternsWithBaseline(responses)
}

// AnalyzePricing Van Westendorp分析
func (s *AnalysisService) AnalyzePricing(input models.PriceSensitivityInput) (result *models.VanWestendorpAnalysis, err error) {
	defer func(start time.Time) { s.observe(MethodPricing, start, err) }(time.Now())
	return s.pricing.Analyze(input)
}

// AnalyzeMaxDiff MaxDiff分析。featuresが空なら回答に現れた特徴を使う
func (s *AnalysisService) AnalyzeMaxDiff(responses []models.MaxDiffResponse, features []string) (result *models.MaxDiffAnalysis, err error) {
	defer func(start time.Time) { s.observe(MethodMaxDiff, start, err) }(time.Now())
	if len(features) == 0 {
		features = observedFeatures(responses)
	}
	return s.maxdiff.Analyze(responses, features)
}

// AnalyzeKano Kano分析
func (s *AnalysisService) AnalyzeKano(responses []models.KanoResponse) (result *models.KanoAnalysis, err error) {
	defer func(start time.Time) { s.observe(MethodKano, start, err) }(time.Now())
	return s.kano.Analyze(responses)
}

// RunStudy 入力のある手法だけを並行に実行する
// 分析器は共有状態を持たないため、同じ入力を複数のgoroutineから読んで良い
func (s *AnalysisService) RunStudy(ctx context.Context, input models.StudyInput) (*models.StudyReport, error) {
	key, err := studyKey(input)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(key); ok {
		s.observeCache(true)
		s.logger.Debug("キャッシュ済みの分析結果を返します", zap.String("report_id", cached.ReportID))
		return cached, nil
	}
	s.observeCache(false)

	report := &models.StudyReport{
		ReportID:     uuid.NewSHA1(studyNamespace, []byte(key)).String(),
		AnalysisDate: s.now().Format(time.RFC3339),
	}

	g, ctx := errgroup.WithContext(ctx)
	run := func(method string, fn func() error) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
			return nil
		})
	}

	if len(input.Responses) > 0 {
		run(MethodPatterns, func() (err error) {
			report.Patterns, err = s.DetectPatterns(input.Responses)
			return err
		})
	} else {
		report.Skipped = append(report.Skipped, MethodPatterns)
	}

	if input.Pricing != nil && len(input.Pricing.TooExpensive) > 0 {
		run(MethodPricing, func() (err error) {
			report.Pricing, err = s.AnalyzePricing(*input.Pricing)
			return err
		})
	} else {
		report.Skipped = append(report.Skipped, MethodPricing)
	}

	if len(input.MaxDiff) > 0 {
		run(MethodMaxDiff, func() (err error) {
			report.MaxDiff, err = s.AnalyzeMaxDiff(input.MaxDiff, input.MaxDiffFeatures)
			return err
		})
	} else {
		report.Skipped = append(report.Skipped, MethodMaxDiff)
	}

	if len(input.Kano) > 0 {
		run(MethodKano, func() (err error) {
			report.Kano, err = s.AnalyzeKano(input.Kano)
			return err
		})
	} else {
		report.Skipped = append(report.Skipped, MethodKano)
	}

	if len(report.Skipped) == 4 {
		return nil, &EmptyInputError{Operation: "RunStudy"}
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("調査分析に失敗しました", zap.Error(err))
		return nil, err
	}

	s.cache.Add(key, report)
	s.logger.Info("調査分析完了",
		zap.String("report_id", report.ReportID),
		zap.Strings("skipped", report.Skipped))
	return report, nil
}

// PurgeCache 結果キャッシュを空にする
func (s *AnalysisService) PurgeCache() int {
	n := s.cache.Len()
	s.cache.Purge()
	return n
}

func (s *AnalysisService) observeCache(hit bool) {
	if s.observer != nil {
		s.observer.ObserveCache(hit)
	}
}

// studyKey 入力内容のハッシュ。同じ入力なら同じキーになる
func studyKey(input models.StudyInput) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("入力のシリアライズに失敗: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// observedFeatures 回答に現れた特徴（辞書順）
func observedFeatures(responses []models.MaxDiffResponse) []string {
	seen := make(map[string]bool)
	for _, r := range responses {
		for _, f := range []string{r.MostImportant, r.LeastImportant} {
			if f != "" {
				seen[f] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
