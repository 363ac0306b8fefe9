package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fundseek/internal/provider"
)

// Config OpenAI 兼容 API 配置
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"` // 默认 https://api.openai.com/v1
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Provider OpenAI 兼容的 LLM Provider
// 支持所有 OpenAI API 兼容服务（OpenAI, Azure, DeepSeek, Ollama 等）
type Provider struct {
	config Config
	client *http.Client
}

// New 创建 OpenAI 兼容 Provider
func New(config Config) *Provider {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute // 流式响应需要长超时
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// -- 内部 API 请求/响应结构 --

type apiRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream"`
	Tools       []apiToolDef       `json:"tools,omitempty"`
	ToolChoice  interface{}        `json:"tool_choice,omitempty"`
}

type apiToolDef struct {
	Type     string              `json:"type"`
	Function provider.ToolFunction `json:"function"`
}

type apiStreamToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
	Index *int `json:"index,omitempty"` // SSE 流中标识工具调用索引
}

type apiStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content   string              `json:"content"`
			ToolCalls []apiStreamToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamComplete 流式补全
func (p *Provider) StreamComplete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.CompletionChunk, <-chan error) {
	chunkCh := make(chan provider.CompletionChunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		body, err := json.Marshal(p.buildAPIRequest(req))
		if err != nil {
			errCh <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			errCh <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			errCh <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			errCh <- fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
			return
		}

		// 聚合跨多个 chunk 到达的 tool_calls 参数
		type toolCallAccumulator struct {
			ID          string
			Type        string
			Name        string
			ArgsBuilder strings.Builder
		}
		var accumulators []toolCallAccumulator

		flushToolCalls := func() {
			if len(accumulators) == 0 {
				return
			}
			toolCalls := make([]provider.ToolCall, len(accumulators))
			for i, acc := range accumulators {
				toolCalls[i] = provider.ToolCall{
					ID:   acc.ID,
					Type: acc.Type,
					Function: provider.ToolCallFunction{
						Name:      acc.Name,
						Arguments: acc.ArgsBuilder.String(),
					},
				}
			}
			chunkCh <- provider.CompletionChunk{
				ToolCalls:    toolCalls,
				FinishReason: "tool_calls",
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				flushToolCalls()
				return
			}

			var streamResp apiStreamResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				continue
			}
			if len(streamResp.Choices) == 0 {
				continue
			}
			choice := streamResp.Choices[0]

			// tool_call delta 不产生文本 chunk，参数可能分片到达
			if len(choice.Delta.ToolCalls) > 0 {
				for _, tc := range choice.Delta.ToolCalls {
					idx := 0
					if tc.Index != nil {
						idx = *tc.Index
					}
					for len(accumulators) <= idx {
						accumulators = append(accumulators, toolCallAccumulator{})
					}
					if tc.ID != "" {
						accumulators[idx].ID = tc.ID
					}
					if tc.Type != "" {
						accumulators[idx].Type = tc.Type
					}
					if tc.Function.Name != "" {
						accumulators[idx].Name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						accumulators[idx].ArgsBuilder.WriteString(tc.Function.Arguments)
					}
				}
				continue
			}

			chunkCh <- provider.CompletionChunk{
				Delta:        choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
		}

		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("stream read error: %w", err)
		}
	}()

	return chunkCh, errCh
}

func (p *Provider) buildAPIRequest(req *provider.CompletionRequest) apiRequest {
	apiReq := apiRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	}

	if req.Temperature > 0 {
		t := req.Temperature
		apiReq.Temperature = &t
	}
	if req.MaxTokens > 0 {
		m := req.MaxTokens
		apiReq.MaxTokens = &m
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = make([]apiToolDef, len(req.Tools))
		for i, t := range req.Tools {
			apiReq.Tools[i] = apiToolDef{Type: t.Type, Function: t.Function}
		}
	}
	if req.ToolChoice != nil {
		apiReq.ToolChoice = req.ToolChoice
	}

	return apiReq
}
