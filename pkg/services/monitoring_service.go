package services

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 保持するリクエストログの上限
const maxLogEntries = 10000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// AnalysisObserver は分析の実行結果を受け取ります。
type AnalysisObserver interface {
	ObserveAnalysis(method string, duration time.Duration, err error)
	ObserveCache(hit bool)
}

// MonitoringService はAPIのリクエストログとPrometheusメトリクスを管理します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex

	registry         *prometheus.Registry
	requestDuration  *prometheus.HistogramVec
	analysisDuration *prometheus.HistogramVec
	analysisFailures *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
// メトリクスはサービスごとのレジストリに登録されるため、複数生成しても衝突しません。
func NewMonitoringService() *MonitoringService {
	reg := prometheus.NewRegistry()

	s := &MonitoringService{
		logs:     make([]LogEntry, 0),
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "market_insights",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTPリクエストの処理時間",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		analysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "market_insights",
				Subsystem: "analysis",
				Name:      "duration_seconds",
				Help:      "分析手法ごとの処理時間",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		analysisFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "market_insights",
				Subsystem: "analysis",
				Name:      "failures_total",
				Help:      "失敗した分析の件数",
			},
			[]string{"method"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "market_insights",
				Subsystem: "analysis",
				Name:      "cache_lookups_total",
				Help:      "分析結果キャッシュの参照回数",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.requestDuration,
		s.analysisDuration,
		s.analysisFailures,
		s.cacheLookups,
	)
	return s
}

// Registry はメトリクスのレジストリを返します。
func (s *MonitoringService) Registry() *prometheus.Registry {
	return s.registry
}

// MetricsHandler は /metrics 用のハンドラを返します。
func (s *MonitoringService) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis は分析1回分の処理時間と成否を記録します。
func (s *MonitoringService) ObserveAnalysis(method string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		s.analysisFailures.WithLabelValues(method).Inc()
	}
	s.analysisDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// ObserveCache は結果キャッシュのヒット/ミスを記録します。
func (s *MonitoringService) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	s.cacheLookups.WithLabelValues(result).Inc()
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = append([]LogEntry(nil), s.logs[len(s.logs)-maxLogEntries:]...)
	}
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 次のミドルウェア/ハンドラを実行
		c.Next()

		// 除外するパスプレフィックス
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/admin") || strings.HasPrefix(path, "/api/v1/monitoring") || path == "/metrics" {
			return
		}

		// ルート未定義のパスはラベルの数が増えないようまとめる
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.requestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Observe(elapsed.Seconds())

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: elapsed,
		})
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if periodHours <= 0 {
		periodHours = 24
	}

	// JSTタイムゾーンを取得。取得できない場合はUTC
	jst, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		jst = time.UTC
	}

	now := time.Now().In(jst)
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, log := range s.logs {
		if log.Timestamp.After(since) {
			filtered = append(filtered, log)
		}
	}

	// 時間ごとのリクエスト数（過去から現在の順）
	hourly := make(map[string]int)
	for _, log := range filtered {
		hourly[log.Timestamp.In(jst).Truncate(time.Hour).Format(time.RFC3339)]++
	}
	requestsOverTime := make([]map[string]interface{}, periodHours)
	for i := 0; i < periodHours; i++ {
		target := now.Add(-time.Duration(periodHours-1-i) * time.Hour)
		requestsOverTime[i] = map[string]interface{}{
			"time":     target.Format("15:00"),
			"requests": hourly[target.Truncate(time.Hour).Format(time.RFC3339)],
		}
	}

	endpoints := make(map[string]int)
	responseTimeSum := make(map[string]time.Duration)
	statusCounts := map[string]int{
		"2xx Success":      0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	for _, log := range filtered {
		endpoints[log.Path]++
		responseTimeSum[log.Path] += log.ResponseTime
		switch {
		case log.StatusCode >= 200 && log.StatusCode < 300:
			statusCounts["2xx Success"]++
		case log.StatusCode >= 400 && log.StatusCode < 500:
			statusCounts["4xx Client Error"]++
		case log.StatusCode >= 500:
			statusCounts["5xx Server Error"]++
		}
	}

	statusCodes := make([]map[string]interface{}, 0, len(statusCounts))
	for _, name := range []string{"2xx Success", "4xx Client Error", "5xx Server Error"} {
		statusCodes = append(statusCodes, map[string]interface{}{"name": name, "value": statusCounts[name]})
	}

	paths := make([]string, 0, len(responseTimeSum))
	for path := range responseTimeSum {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	avgResponseTimes := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		avg := responseTimeSum[path].Milliseconds() / int64(endpoints[path])
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}

	// 直近の5xxエラー（最大10件、新しい順）
	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
	}
}
