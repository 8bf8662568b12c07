package main

import (
	"log"

	config "market-insights-api/configs"
	"market-insights-api/pkg/handlers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗しました: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := handlers.NewEngine(cfg, logger)
	if err != nil {
		logger.Fatal("サーバーの初期化に失敗しました", zap.Error(err))
	}

	addr := ":" + cfg.Port
	logger.Info("Market Insights APIサーバーを起動します", zap.String("addr", addr), zap.String("environment", cfg.Environment))
	if err := r.Run(addr); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
