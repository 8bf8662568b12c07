package handlers

import (
	"errors"
	"net/http"

	"market-insights-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// insufficientDataMessage 空入力のときに利用者へ返すメッセージ
const insufficientDataMessage = "insufficient data for analysis"

// respondOK 成功レスポンス
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondBindError リクエストの解析に失敗した
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "リクエストの解析に失敗しました: " + err.Error(),
	})
}

// respondAnalysisError 分析エラーをHTTPステータスに対応付ける
func respondAnalysisError(c *gin.Context, err error) {
	switch {
	case services.IsEmptyInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": insufficientDataMessage})
	case errors.Is(err, services.ErrLengthMismatch),
		errors.Is(err, services.ErrInvalidDesign),
		errors.Is(err, services.ErrUnsupportedFormat),
		errors.Is(err, services.ErrMissingColumn):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "分析の実行に失敗しました: " + err.Error()})
	}
}

// periodHours ダッシュボードの集計期間
func periodHours(period string) int {
	switch period {
	case "1h":
		return 1
	case "7d":
		return 24 * 7
	default:
		return 24
	}
}
