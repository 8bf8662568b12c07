package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port            string
	Environment     string
	APIKey          string
	AdminUsername   string
	AdminPassword   string
	LogLevel        string
	ResultCacheSize int
	PolicyFile      string
	PValueMode      string
	AllowAllOrigins bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		APIKey:          getEnv("API_KEY", ""),
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ResultCacheSize: getEnvInt("RESULT_CACHE_SIZE", 128),
		PolicyFile:      getEnv("ANALYSIS_POLICY_FILE", ""),
		PValueMode:      getEnv("PVALUE_MODE", ""),
		AllowAllOrigins: getEnv("CORS_ALLOW_ALL", "true") == "true",
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 整数の環境変数を取得（不正値はデフォルト）
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// AnalysisPolicy ANALYSIS_POLICY_FILEとPVALUE_MODEを反映した分析ポリシーを返す
func (c *Config) AnalysisPolicy() (AnalysisPolicy, error) {
	policy, err := LoadAnalysisPolicy(c.PolicyFile)
	if err != nil {
		return policy, err
	}
	if c.PValueMode != "" {
		policy.Statistics.PValueMode = c.PValueMode
		if err := ValidatePolicy(policy); err != nil {
			return policy, err
		}
	}
	return policy, nil
}
