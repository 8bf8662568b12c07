package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	config "market-insights-api/configs"
	"market-insights-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies ルーター構築に必要なサービス群
type Dependencies struct {
	Config     *config.Config
	Analysis   *services.AnalysisService
	Loader     *services.DatasetLoader
	Monitoring *services.MonitoringService
	Logger     *zap.Logger
}

// APIKeyAuth X-API-KEYヘッダーによる認証
// キーが未設定の場合は認証を行わない
func APIKeyAuth(apiKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		providedKey := c.GetHeader("X-API-KEY")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			logger.Warn("無効なAPI Keyです", zap.String("path", c.Request.URL.Path), zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// SetupRouter ルーティングとミドルウェアを構成したGinエンジンを返す
func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// ハンドラーの初期化
	analysisHandler := NewAnalysisHandler(deps.Analysis, deps.Loader, logger)
	adminHandler := NewAdminHandler(deps.Config, deps.Analysis, logger)
	monitoringHandler := NewMonitoringHandler(deps.Monitoring)

	// ミドルウェアの登録
	r.Use(deps.Monitoring.LoggingMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = deps.Config.AllowAllOrigins
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-API-KEY")
	r.Use(cors.New(corsConfig))

	// ヘルスチェックとメトリクス
	r.GET("/health", adminHandler.HealthCheck)
	r.GET("/metrics", monitoringHandler.Metrics())

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuth(deps.Config.APIKey, logger))
	{
		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
			admin.POST("/cache/purge", adminHandler.PurgeCache)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}

		// 調査分析API
		analysis := v1.Group("/analysis")
		analysis.Use(adminHandler.MaintenanceGuard())
		{
			analysis.GET("/policy", analysisHandler.GetPolicy)
			analysis.POST("/patterns", analysisHandler.DetectPatterns)
			analysis.POST("/pricing", analysisHandler.AnalyzePricing)
			analysis.POST("/pricing/validate", analysisHandler.ValidatePricing)
			analysis.POST("/maxdiff", analysisHandler.AnalyzeMaxDiff)
			analysis.POST("/maxdiff/design", analysisHandler.GenerateMaxDiffDesign)
			analysis.POST("/maxdiff/validate", analysisHandler.ValidateMaxDiff)
			analysis.POST("/kano", analysisHandler.AnalyzeKano)
			analysis.POST("/kano/validate", analysisHandler.ValidateKano)
			analysis.POST("/study", analysisHandler.RunStudy)
			analysis.POST("/upload", analysisHandler.UploadDataset)
		}
	}

	return r
}

// NewEngine 設定からサービスを組み立て、ルーター構成済みのエンジンを返す
func NewEngine(cfg *config.Config, logger *zap.Logger) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := cfg.AnalysisPolicy()
	if err != nil {
		return nil, fmt.Errorf("分析ポリシーの読み込みに失敗: %w", err)
	}

	monitoringService := services.NewMonitoringService()
	analysisService, err := services.NewAnalysisService(policy, cfg.ResultCacheSize, monitoringService, logger)
	if err != nil {
		return nil, fmt.Errorf("分析サービスの初期化に失敗: %w", err)
	}

	logger.Info("分析サービスを初期化しました",
		zap.String("pvalue_mode", policy.Statistics.PValueMode),
		zap.Int("cache_size", cfg.ResultCacheSize))

	return SetupRouter(Dependencies{
		Config:     cfg,
		Analysis:   analysisService,
		Loader:     services.NewDatasetLoader(logger),
		Monitoring: monitoringService,
		Logger:     logger,
	}), nil
}
