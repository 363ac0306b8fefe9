package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	applog "fundseek/internal/platform/log"
)

// ── Embedder 接口 ──────────────────────────────────────────────

// Embedder 向量生成接口
type Embedder interface {
	// EmbedText 将单条文本转为定长向量
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// Dims 返回向量维度
	Dims() int
}

// ── Gemini embedContent 实现 ──────────────────────────────────

// GeminiEmbedder 调用 Gemini embedContent API
type GeminiEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// GeminiEmbedderConfig 配置
type GeminiEmbedderConfig struct {
	BaseURL        string // e.g. https://generativelanguage.googleapis.com/v1beta
	APIKey         string
	Model          string // e.g. gemini-embedding-exp-03-07
	Dims           int    // 输出维度
	TimeoutSeconds int
}

// NewGeminiEmbedder 创建 Gemini Embedder
func NewGeminiEmbedder(cfg GeminiEmbedderConfig) *GeminiEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-exp-03-07"
	}
	if cfg.Dims <= 0 {
		cfg.Dims = 3072
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GeminiEmbedder{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dims:    cfg.Dims,
		client:  &http.Client{Timeout: timeout},
	}
}

// Dims 返回向量维度
func (e *GeminiEmbedder) Dims() int {
	return e.dims
}

// ── 内部请求/响应结构 ──────────────────────────────────────────

type embedContentRequest struct {
	Model                string       `json:"model"`
	Content              embedContent `json:"content"`
	OutputDimensionality int          `json:"outputDimensionality,omitempty"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedText 生成单条文本的向量。HTTP 429 返回 *RateLimitError，
// 供重试策略区分限流与其他失败。
func (e *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	reqBody := embedContentRequest{
		Model:                "models/" + e.model,
		Content:              embedContent{Parts: []embedPart{{Text: text}}},
		OutputDimensionality: e.dims,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", e.baseURL, e.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("x-goog-api-key", e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var embResp embedContentResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("failed to generate embedding: empty values")
	}

	applog.Debug("[Embedder] Text embedded",
		"dims", len(embResp.Embedding.Values),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return embResp.Embedding.Values, nil
}
