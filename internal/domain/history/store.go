package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	applog "fundseek/internal/platform/log"
)

// MessageStore is the durable append-only per-session log. AppendMessages
// must persist the whole batch as one ordered write.
type MessageStore interface {
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	AppendMessages(ctx context.Context, sessionID string, messages []Message) error
}

// Step 一次中间步骤：工具调用及其观察结果。
type Step struct {
	Action      Action `json:"action"`
	Observation any    `json:"observation"`
}

// Action 工具调用动作。Input 可以是任意结构或裸字符串。
type Action struct {
	Tool  string `json:"tool"`
	Input any    `json:"input"`
}

// HasObservation 观察结果是否存在（nil 表示该步骤未完成，不持久化）。
func (s Step) HasObservation() bool {
	return s.Observation != nil
}

// Store 推理轨迹历史：持久化每一轮的输入、工具调用/响应对与最终输出。
type Store struct {
	messages MessageStore
}

// NewStore 创建历史存储。
func NewStore(messages MessageStore) *Store {
	return &Store{messages: messages}
}

// GetHistory 按插入顺序返回会话的全部消息。读失败退化为空历史（只记日志），
// 与检索路径一致：能继续对话就不让历史读挂掉整个请求。
func (s *Store) GetHistory(ctx context.Context, sessionID string) []Message {
	messages, err := s.messages.ListMessages(ctx, sessionID)
	if err != nil {
		applog.Warn("[History] Could not load messages", "session_id", sessionID, "error", err)
		return nil
	}
	return messages
}

// AppendTurn 持久化一轮对话：
// 尚未入库的输入消息 + 每个中间步骤的 (工具调用, 工具结果) 对 + 最终输出。
// 同一会话的并发 AppendTurn 由上层的单写者约束保证不交错。
func (s *Store) AppendTurn(ctx context.Context, sessionID string, inputMessages []Message, steps []Step, outputMessages []Message) error {
	stored, err := s.messages.ListMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load stored history: %w", err)
	}

	batch := TrimSeenPrefix(inputMessages, len(stored))

	for _, step := range steps {
		if step.Action.Tool == "" || !step.HasObservation() {
			continue
		}
		call, result := synthesizeToolPair(step)
		batch = append(batch, call, result)
	}

	batch = append(batch, outputMessages...)
	if len(batch) == 0 {
		return nil
	}

	if err := s.messages.AppendMessages(ctx, sessionID, batch); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// TrimSeenPrefix 去掉调用方重放的历史前缀：调用方总是带上完整输入上下文，
// 这里按已存储条数裁掉前 N 条，只留本轮新增的输入。
func TrimSeenPrefix(input []Message, storedCount int) []Message {
	if storedCount >= len(input) {
		return nil
	}
	return append([]Message(nil), input[storedCount:]...)
}

// synthesizeToolPair 为一个中间步骤合成 (工具调用, 工具结果) 消息对。
// 关联 id 每次新生成，与工具执行层内部使用的 id 无关。
func synthesizeToolPair(step Step) (Message, Message) {
	callID := "tool_call_" + uuid.NewString()

	call := Message{
		Type: MessageTypeAI,
		ToolCalls: []ToolCall{{
			ID:   callID,
			Name: step.Action.Tool,
			Args: normalizeArgs(step.Action.Input),
		}},
	}

	observation, err := json.Marshal(step.Observation)
	if err != nil {
		observation = []byte(fmt.Sprintf("%v", step.Observation))
	}
	result := Message{
		Type:       MessageTypeTool,
		Content:    string(observation),
		ToolCallID: callID,
		Name:       step.Action.Tool,
	}

	return call, result
}

// normalizeArgs 将工具入参规约为 mapping：裸字符串包进约定的 input 键。
func normalizeArgs(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return map[string]any{}
	case string:
		return map[string]any{"input": v}
	case map[string]any:
		return v
	default:
		// 结构化入参统一转成 mapping
		data, err := json.Marshal(v)
		if err != nil {
			return map[string]any{"input": fmt.Sprintf("%v", v)}
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return map[string]any{"input": string(data)}
		}
		return m
	}
}
