package handlers

import (
	"fmt"
	"net/http"

	"market-insights-api/pkg/models"
	"market-insights-api/pkg/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// アップロードファイルの上限
const maxUploadBytes = 10 << 20

// AnalysisHandler 調査データ分析APIのハンドラ
type AnalysisHandler struct {
	service *services.AnalysisService
	loader  *services.DatasetLoader
	logger  *zap.Logger
}

// NewAnalysisHandler 新しいAnalysisHandlerを生成
func NewAnalysisHandler(service *services.AnalysisService, loader *services.DatasetLoader, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{service: service, loader: loader, logger: logger}
}

// PatternRequest パターン検出のリクエスト
type PatternRequest struct {
	Responses []models.ResponseRecord `json:"responses"`
}

// MaxDiffRequest MaxDiff分析のリクエスト
type MaxDiffRequest struct {
	Responses []models.MaxDiffResponse `json:"responses"`
	Features  []string                 `json:"features"`
}

// DesignRequest MaxDiff設問設計のリクエスト
type DesignRequest struct {
	Features        []string `json:"features" binding:"required"`
	RespondentIndex int      `json:"respondent_index"`
	Respondents     int      `json:"respondents"`
}

// KanoRequest Kano分析のリクエスト
type KanoRequest struct {
	Responses []models.KanoResponse `json:"responses"`
}

// DetectPatterns 回答データから有意なセグメントを検出
func (h *AnalysisHandler) DetectPatterns(c *gin.Context) {
	var req PatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	report, err := h.service.DetectPatterns(req.Responses)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	respondOK(c, report)
}

// AnalyzePricing Van Westendorp価格感度分析
func (h *AnalysisHandler) AnalyzePricing(c *gin.Context) {
	var req models.PriceSensitivityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.service.AnalyzePricing(req)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	respondOK(c, result)
}

// ValidatePricing 価格回答の事前検証
func (h *AnalysisHandler) ValidatePricing(c *gin.Context) {
	var req models.PriceSensitivityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	respondOK(c, h.service.Pricing().Validate(req))
}

// AnalyzeMaxDiff MaxDiff分析
func (h *AnalysisHandler) AnalyzeMaxDiff(c *gin.Context) {
	var req MaxDiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.service.AnalyzeMaxDiff(req.Responses, req.Features)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	respondOK(c, result)
}

// GenerateMaxDiffDesign 回答者ごとの設問セットを生成
// respondentsを指定するとrespondent_indexから連続した人数分を返す
func (h *AnalysisHandler) GenerateMaxDiffDesign(c *gin.Context) {
	var req DesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Respondents <= 0 {
		req.Respondents = 1
	}
	if req.Respondents > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "respondents は1000以下で指定してください"})
		return
	}

	designs := make(map[string][]models.MaxDiffQuestion, req.Respondents)
	for i := 0; i < req.Respondents; i++ {
		idx := req.RespondentIndex + i
		questions, err := h.service.MaxDiff().GenerateDesign(req.Features, idx)
		if err != nil {
			respondAnalysisError(c, err)
			return
		}
		designs[fmt.Sprintf("%d", idx)] = questions
	}
	respondOK(c, designs)
}

// ValidateMaxDiff 設計と回答の検証
func (h *AnalysisHandler) ValidateMaxDiff(c *gin.Context) {
	var req MaxDiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	policy := h.service.Policy().MaxDiff
	respondOK(c, gin.H{
		"design":    h.service.MaxDiff().ValidateDesign(req.Features, policy.Rotations),
		"responses": h.service.MaxDiff().ValidateResponses(req.Responses, req.Features),
	})
}

// AnalyzeKano Kano分析
func (h *AnalysisHandler) AnalyzeKano(c *gin.Context) {
	var req KanoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.service.AnalyzeKano(req.Responses)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	respondOK(c, result)
}

// ValidateKano Kano回答の事前検証
func (h *AnalysisHandler) ValidateKano(c *gin.Context) {
	var req KanoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	respondOK(c, h.service.Kano().Validate(req.Responses))
}

// RunStudy 4手法をまとめて実行
func (h *AnalysisHandler) RunStudy(c *gin.Context) {
	var req models.StudyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	report, err := h.service.RunStudy(c.Request.Context(), req)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	respondOK(c, report)
}

// UploadDataset CSV/Excel/JSONのファイルを読み込み、typeに応じた分析まで行う
// type: responses(既定) / pricing / maxdiff / kano
func (h *AnalysisHandler) UploadDataset(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "ファイルの取得に失敗しました。"})
		return
	}
	defer file.Close()

	kind := c.DefaultPostForm("type", "responses")
	var (
		rows   int
		result interface{}
	)
	switch kind {
	case "responses":
		var responses []models.ResponseRecord
		if responses, err = h.loader.LoadResponses(header.Filename, file); err == nil {
			rows = len(responses)
			result, err = h.service.DetectPatterns(responses)
		}
	case "pricing":
		var input models.PriceSensitivityInput
		if input, err = h.loader.LoadPricing(header.Filename, file); err == nil {
			rows = len(input.TooExpensive)
			result, err = h.service.AnalyzePricing(input)
		}
	case "maxdiff":
		var responses []models.MaxDiffResponse
		if responses, err = h.loader.LoadMaxDiff(header.Filename, file); err == nil {
			rows = len(responses)
			result, err = h.service.AnalyzeMaxDiff(responses, nil)
		}
	case "kano":
		var responses []models.KanoResponse
		if responses, err = h.loader.LoadKano(header.Filename, file); err == nil {
			rows = len(responses)
			result, err = h.service.AnalyzeKano(responses)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "不明なデータ種別です: " + kind})
		return
	}
	if err != nil {
		h.logger.Warn("アップロードファイルの分析に失敗しました",
			zap.String("filename", header.Filename), zap.String("type", kind), zap.Error(err))
		respondAnalysisError(c, err)
		return
	}

	h.logger.Info("アップロードファイルを分析しました",
		zap.String("filename", header.Filename),
		zap.String("type", kind),
		zap.Int("rows", rows))
	respondOK(c, gin.H{
		"filename": header.Filename,
		"type":     kind,
		"rows":     rows,
		"result":   result,
	})
}

// GetPolicy 現在の分析ポリシー
func (h *AnalysisHandler) GetPolicy(c *gin.Context) {
	respondOK(c, h.service.Policy())
}
