package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	config "market-insights-api/configs"
	"market-insights-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "test-key"

const pricingBody = `{
	"too_expensive": [50, 60, 70, 80],
	"expensive_but_consider": [35, 40, 45, 50],
	"good_value": [20, 25, 30, 35],
	"too_cheap": [10, 15, 20, 25]
}`

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		APIKey:          testAPIKey,
		AdminUsername:   "admin",
		AdminPassword:   "pw",
		AllowAllOrigins: true,
	}
	monitoring := services.NewMonitoringService()
	analysis, err := services.NewAnalysisService(config.DefaultAnalysisPolicy(), 8, monitoring, zap.NewNop())
	require.NoError(t, err)

	return SetupRouter(Dependencies{
		Config:     cfg,
		Analysis:   analysis,
		Loader:     services.NewDatasetLoader(zap.NewNop()),
		Monitoring: monitoring,
		Logger:     zap.NewNop(),
	})
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestAPIKeyRequired(t *testing.T) {
	r := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/policy", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/analysis/policy", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
}

func TestAnalyzePricingEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "正常", body: pricingBody, wantStatus: http.StatusOK},
		{name: "空入力", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "insufficient data for analysis"},
		{
			name:       "長さ不一致",
			body:       `{"too_expensive":[50,60],"expensive_but_consider":[40],"good_value":[30,35],"too_cheap":[10,15]}`,
			wantStatus: http.StatusBadRequest,
		},
		{name: "不正なJSON", body: `{"too_expensive":`, wantStatus: http.StatusBadRequest, wantError: "リクエストの解析に失敗しました"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/api/v1/analysis/pricing", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			body := decodeBody(t, w)
			if tt.wantStatus == http.StatusOK {
				data := body["data"].(map[string]interface{})
				keyPrices := data["key_prices"].(map[string]interface{})
				assert.InDelta(t, 30.0, keyPrices["optimal_price"], 1e-9)
				return
			}
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func TestValidatePricingEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/analysis/pricing/validate", `{"too_expensive":[50],"expensive_but_consider":[40],"good_value":[30],"too_cheap":[10]}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["is_valid"])
	assert.NotEmpty(t, data["warnings"])
}

func TestMaxDiffDesignEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/analysis/maxdiff/design", `{"features":["a","b","c","d","e"],"respondent_index":0,"respondents":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Len(t, data, 2)
	assert.Contains(t, data, "0")
	assert.Contains(t, data, "1")

	w = doRequest(r, http.MethodPost, "/api/v1/analysis/maxdiff/design", `{"features":["a"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKanoEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	var sb strings.Builder
	sb.WriteString(`{"responses":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"feature":"battery","functional_response":"expect_it","dysfunctional_response":"neutral"}`)
	}
	sb.WriteString(`]}`)

	w := doRequest(r, http.MethodPost, "/api/v1/analysis/kano", sb.String())
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	features := data["features"].([]interface{})
	require.Len(t, features, 1)
	assert.Equal(t, "must_be", features[0].(map[string]interface{})["category"])
}

func TestStudyEndpointSkipsMissingMethods(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/analysis/study", `{"pricing":`+pricingBody+`}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.NotEmpty(t, data["report_id"])
	assert.Len(t, data["skipped"], 3)

	w = doRequest(r, http.MethodPost, "/api/v1/analysis/study", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadPricingCSV(t *testing.T) {
	r := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("type", "pricing"))
	fw, err := mw.CreateFormFile("file", "pricing.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("too_expensive,expensive_but_consider,good_value,too_cheap\n50,35,20,10\n60,40,25,15\n70,45,30,20\n80,50,35,25\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-KEY", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "pricing", data["type"])
	assert.EqualValues(t, 4, data["rows"])
}

func TestUploadRejectsUnknownType(t *testing.T) {
	r := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("type", "conjoint"))
	fw, err := mw.CreateFormFile("file", "x.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("a\n1\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-KEY", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaintenanceMode(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/maintenance/start", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/admin/maintenance/start", `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/admin/maintenance/start", `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doRequest(r, http.MethodPost, "/api/v1/analysis/pricing", pricingBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doRequest(r, http.MethodGet, "/api/v1/admin/health-status", "")
	assert.Equal(t, true, decodeBody(t, w)["isMaintenanceMode"])

	w = doRequest(r, http.MethodPost, "/api/v1/admin/maintenance/stop", `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(r, http.MethodPost, "/api/v1/analysis/pricing", pricingBody)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPurgeCacheEndpoint(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/analysis/study", `{"pricing":`+pricingBody+`}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/admin/cache/purge", `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["purged"])
}

func TestMonitoringEndpoints(t *testing.T) {
	r := setupTestRouter(t)

	doRequest(r, http.MethodPost, "/api/v1/analysis/pricing", pricingBody)
	doRequest(r, http.MethodPost, "/api/v1/analysis/pricing", `{}`)

	w := doRequest(r, http.MethodGet, "/api/v1/monitoring/logs?period=1h", "")
	require.Equal(t, http.StatusOK, w.Code)
	endpoints := decodeBody(t, w)["endpoints"].(map[string]interface{})
	assert.EqualValues(t, 2, endpoints["/api/v1/analysis/pricing"])

	w = doRequest(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "market_insights_analysis_duration_seconds")
	assert.Contains(t, w.Body.String(), "market_insights_http_request_duration_seconds")
}

func TestPeriodHours(t *testing.T) {
	tests := []struct {
		period string
		want   int
	}{
		{"1h", 1},
		{"24h", 24},
		{"7d", 168},
		{"bogus", 24},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, periodHours(tt.period), tt.period)
	}
}
