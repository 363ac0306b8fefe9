package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Embedding EmbeddingConfig `json:"embedding"`
	Search    SearchConfig    `json:"search"`
	Chat      ChatConfig      `json:"chat"`
	Worker    WorkerConfig    `json:"worker"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// EmbeddingConfig Gemini embedContent 服务配置。
type EmbeddingConfig struct {
	BaseURL            string `json:"base_url"`
	APIKey             string `json:"api_key"`
	Model              string `json:"model"`
	Dims               int    `json:"dims"`
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds"`
	// 查询缓存路径的重试策略（仅对限流错误退避）
	CacheMaxRetries  int `json:"cache_max_retries"`
	BaseDelaySeconds int `json:"base_delay_seconds"`
	MaxDelaySeconds  int `json:"max_delay_seconds"`
}

// SearchConfig 混合检索参数。
type SearchConfig struct {
	MatchThreshold  float64 `json:"match_threshold"`
	MatchCount      int     `json:"match_count"`
	DefaultPageSize int     `json:"default_page_size"`
	CacheTTLSeconds int     `json:"cache_ttl_seconds"`
}

// ChatConfig 对话 Agent 配置。
type ChatConfig struct {
	BaseURL        string   `json:"base_url"`
	APIKey         string   `json:"api_key"`
	Model          string   `json:"model"`
	Temperature    float64  `json:"temperature"`
	MaxToolRounds  int      `json:"max_tool_rounds"`
	WhitelistTools []string `json:"whitelist_tools"`
}

// WorkerConfig 嵌入任务 Worker 配置。
type WorkerConfig struct {
	QueueName     string `json:"queue_name"`
	MaxJobRetries int    `json:"max_job_retries"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 600,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		Embedding: EmbeddingConfig{
			BaseURL:            "https://generativelanguage.googleapis.com/v1beta",
			Model:              "gemini-embedding-exp-03-07",
			Dims:               3072,
			HTTPTimeoutSeconds: 60,
			CacheMaxRetries:    10,
			BaseDelaySeconds:   5,
			MaxDelaySeconds:    3600,
		},
		Search: SearchConfig{
			MatchThreshold:  0.52,
			MatchCount:      100,
			DefaultPageSize: 5,
			CacheTTLSeconds: 300,
		},
		Chat: ChatConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0,
			MaxToolRounds:  8,
			WhitelistTools: []string{"display_programs_to_user"},
		},
		Worker: WorkerConfig{
			QueueName:     "embedding_jobs",
			MaxJobRetries: 3,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("GEMINI_BASE_URL", &c.Embedding.BaseURL)
	applyString("GEMINI_API_KEY", &c.Embedding.APIKey)
	applyString("EMBEDDING_MODEL", &c.Embedding.Model)
	applyInt("EMBEDDING_DIMS", &c.Embedding.Dims)
	applyInt("EMBEDDING_HTTP_TIMEOUT", &c.Embedding.HTTPTimeoutSeconds)
	applyInt("EMBEDDING_CACHE_MAX_RETRIES", &c.Embedding.CacheMaxRetries)
	applyInt("EMBEDDING_BASE_DELAY", &c.Embedding.BaseDelaySeconds)
	applyInt("EMBEDDING_MAX_DELAY", &c.Embedding.MaxDelaySeconds)

	applyFloat64("SEARCH_MATCH_THRESHOLD", &c.Search.MatchThreshold)
	applyInt("SEARCH_MATCH_COUNT", &c.Search.MatchCount)
	applyInt("SEARCH_DEFAULT_PAGE_SIZE", &c.Search.DefaultPageSize)
	applyInt("SEARCH_CACHE_TTL", &c.Search.CacheTTLSeconds)

	applyString("CHAT_LLM_BASE_URL", &c.Chat.BaseURL)
	applyString("CHAT_LLM_API_KEY", &c.Chat.APIKey)
	applyString("CHAT_LLM_MODEL", &c.Chat.Model)
	applyFloat64("CHAT_LLM_TEMPERATURE", &c.Chat.Temperature)
	applyInt("CHAT_MAX_TOOL_ROUNDS", &c.Chat.MaxToolRounds)
	if v := os.Getenv("CHAT_WHITELIST_TOOLS"); v != "" {
		c.Chat.WhitelistTools = splitCSV(v)
	}

	applyString("EMBED_QUEUE_NAME", &c.Worker.QueueName)
	applyInt("EMBED_MAX_JOB_RETRIES", &c.Worker.MaxJobRetries)
}

func (c *AppConfig) normalize() {
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = "https://api.openai.com/v1"
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 5
	}
	if c.Worker.QueueName == "" {
		c.Worker.QueueName = "embedding_jobs"
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
