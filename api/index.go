package handler

import (
	"log"
	"net/http"
	"sync"

	config "market-insights-api/configs"
	"market-insights-api/pkg/handlers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()

		logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
		if err != nil {
			log.Printf("ロガーの初期化に失敗しました: %v", err)
			logger = zap.NewNop()
		}

		gin.SetMode(gin.ReleaseMode)
		app, initErr = handlers.NewEngine(cfg, logger)
		if initErr != nil {
			logger.Error("アプリケーションの初期化に失敗しました", zap.Error(initErr))
		}
	})
	return app, initErr
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		http.Error(w, `{"success":false,"error":"サーバーの初期化に失敗しました"}`, http.StatusInternalServerError)
		return
	}
	engine.ServeHTTP(w, r)
}
