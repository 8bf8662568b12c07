package handlers

import (
	"crypto/subtle"
	"net/http"
	"sync/atomic"

	config "market-insights-api/configs"
	"market-insights-api/pkg/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler は管理者向け操作のハンドラです。
// メンテナンス状態はハンドラごとに保持し、MaintenanceGuardで参照します。
type AdminHandler struct {
	AdminUsername string
	AdminPassword string

	maintenance atomic.Bool
	analysis    *services.AnalysisService
	logger      *zap.Logger
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, analysis *services.AnalysisService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		analysis:      analysis,
		logger:        logger,
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authorize 認証に失敗した場合はレスポンスを書き込みfalseを返す
func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "ユーザー名とパスワードは必須です"})
		return false
	}

	// パスワード未設定の環境では管理操作を受け付けない
	if h.AdminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.AdminUsername)) != 1 ||
		subtle.ConstantTimeCompare([]byte(input.Password), []byte(h.AdminPassword)) != 1 {
		h.logger.Warn("管理者認証に失敗しました", zap.String("username", input.Username), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "認証情報が正しくありません"})
		return false
	}
	return true
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(true)
	h.logger.Info("メンテナンスモードを開始しました")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "メンテナンスモードを開始しました"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(false)
	h.logger.Info("メンテナンスモードを終了しました")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "メンテナンスモードを終了しました"})
}

// PurgeCache は分析結果キャッシュを破棄します。
func (h *AdminHandler) PurgeCache(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	n := h.analysis.PurgeCache()
	h.logger.Info("分析結果キャッシュを破棄しました", zap.Int("entries", n))
	respondOK(c, gin.H{"purged": n})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isMaintenanceMode": h.maintenance.Load()})
}

// InMaintenance メンテナンス中かどうか
func (h *AdminHandler) InMaintenance() bool {
	return h.maintenance.Load()
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "メンテナンス中です"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MaintenanceGuard メンテナンス中は分析リクエストを503で拒否する
func (h *AdminHandler) MaintenanceGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.maintenance.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "メンテナンス中のため分析を受け付けていません",
			})
			return
		}
		c.Next()
	}
}
