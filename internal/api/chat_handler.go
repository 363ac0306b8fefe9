package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fundseek/internal/domain/agent"
	"fundseek/internal/domain/catalog"
	"fundseek/internal/domain/history"
	applog "fundseek/internal/platform/log"
	"fundseek/internal/provider"
	"fundseek/internal/tool"
	"fundseek/internal/tool/funding"
)

// ChatConfig 对话接口配置
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxToolRounds  int
	WhitelistTools []string
}

// ChatHandler 对话式检索接口：框架化流式输出 + 轨迹持久化
type ChatHandler struct {
	llm     provider.LLMProvider
	history *history.Store
	finder  *catalog.Finder
	store   catalog.Store
	config  ChatConfig
}

// NewChatHandler 创建对话处理器
func NewChatHandler(llm provider.LLMProvider, hist *history.Store, finder *catalog.Finder, store catalog.Store, config ChatConfig) *ChatHandler {
	return &ChatHandler{
		llm:     llm,
		history: hist,
		finder:  finder,
		store:   store,
		config:  config,
	}
}

// RegisterRoutes 注册路由
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
}

type chatRequest struct {
	ID       string        `json:"id"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat 处理一轮对话。响应是逐行帧流；流结束后把本轮轨迹落库。
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	locale := requestLanguage(r)

	// 每个请求独立的工具集：检索工具绑定本次会话的语言
	registry := tool.NewRegistry()
	registry.Register(funding.NewSearchTool(h.finder, locale))
	registry.Register(funding.NewPermalinkInfoTool(h.store))
	registry.Register(funding.NewDisplayProgramsTool())
	toolNames := []string{"search_for_programs", "request_info_about_permalink", "display_programs_to_user"}

	// 上下文以服务端日志为准：已存轨迹（含合成的工具调用/结果对）原样重放，
	// 客户端重放的前缀只用于定位本轮新增输入
	stored := h.history.GetHistory(r.Context(), req.ID)
	turnInput := make([]history.Message, 0, len(stored)+len(req.Messages))
	turnInput = append(turnInput, stored...)
	turnInput = append(turnInput, newTurnMessages(stored, req.Messages)...)
	providerMsgs := buildModelContext(turnInput, locale)

	runner := agent.NewRunner(h.llm, registry, agent.RunnerConfig{
		Model:         h.config.Model,
		Temperature:   h.config.Temperature,
		MaxToolRounds: h.config.MaxToolRounds,
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("x-vercel-ai-data-stream", "v1")
	w.WriteHeader(http.StatusOK)

	events := make(chan agent.Event, 64)
	type runOutcome struct {
		result *agent.TurnResult
		err    error
	}
	done := make(chan runOutcome, 1)

	go func() {
		result, err := runner.Run(r.Context(), providerMsgs, toolNames, events)
		done <- runOutcome{result: result, err: err}
	}()

	transducer := agent.NewTransducer(w, uuid.NewString(), &agent.TransducerOptions{
		WhitelistTools: h.config.WhitelistTools,
		Flush:          flusher.Flush,
	})
	if err := transducer.Run(r.Context(), events); err != nil {
		applog.Warn("[Chat] Stream aborted", "session_id", req.ID, "error", err)
	}

	// 转换器可能因写错误提前退出而请求上下文仍然存活；
	// 排空剩余事件，runner 的发送才不会永远阻塞
	for range events {
	}

	outcome := <-done
	if outcome.err != nil {
		applog.Error("[Chat] Agent run failed", "session_id", req.ID, "error", outcome.err)
		return
	}

	h.persistTurn(req.ID, turnInput, outcome.result)
}

// newTurnMessages 本轮新增输入。日志为空时取客户端全部消息（含可选的
// 前导上下文消息）；否则只取最后一条 assistant 回复之后的消息，
// 通常就是本轮的用户提问。
func newTurnMessages(stored []history.Message, client []chatMessage) []history.Message {
	start := 0
	if len(stored) > 0 {
		for i := len(client) - 1; i >= 0; i-- {
			if client[i].Role == "assistant" {
				start = i + 1
				break
			}
		}
	}

	out := make([]history.Message, 0, len(client)-start)
	for _, m := range client[start:] {
		switch m.Role {
		case "assistant":
			out = append(out, history.AI(m.Content))
		case "system":
			out = append(out, history.System(m.Content))
		default:
			out = append(out, history.Human(m.Content))
		}
	}
	return out
}

// buildModelContext 系统提示词 + 日志消息映射成供应商消息序列。
func buildModelContext(messages []history.Message, locale string) []provider.Message {
	out := make([]provider.Message, 0, len(messages)+1)
	out = append(out, provider.Message{
		Role:    "system",
		Content: systemPrompt(locale),
	})
	for _, m := range messages {
		out = append(out, toProviderMessage(m))
	}
	return out
}

// toProviderMessage 单条日志消息到供应商消息的映射，
// 工具调用/结果对保留关联 id。
func toProviderMessage(m history.Message) provider.Message {
	switch m.Type {
	case history.MessageTypeAI:
		msg := provider.Message{Role: "assistant", Content: m.Content}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: provider.ToolCallFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return msg
	case history.MessageTypeTool:
		return provider.Message{
			Role:       "tool",
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
	case history.MessageTypeSystem:
		return provider.Message{Role: "system", Content: m.Content}
	default:
		return provider.Message{Role: "user", Content: m.Content}
	}
}

// persistTurn 流结束后落库。客户端连接此时可能已断开，用独立超时上下文。
func (h *ChatHandler) persistTurn(sessionID string, input []history.Message, result *agent.TurnResult) {
	var output []history.Message
	if result.Output != "" {
		output = append(output, history.AI(result.Output))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.history.AppendTurn(ctx, sessionID, input, result.Steps, output); err != nil {
		applog.Error("[Chat] Failed to persist turn", "session_id", sessionID, "error", err)
	}
}

// systemPrompt 对话 Agent 的系统提示词。回答语言跟随会话 locale。
func systemPrompt(locale string) string {
	return fmt.Sprintf(`You are a funding advisor helping companies find public funding programs.
Use the search_for_programs tool to find programs matching the user's needs, then call
display_programs_to_user with the permalinks of the most relevant results.
Use request_info_about_permalink when the user asks about one specific program.
Answer concisely in the language with code %q.`, locale)
}
