package agent

// EventType Agent 生命周期事件类型标识
type EventType string

const (
	EventTypeToolStart  EventType = "tool_start"
	EventTypeModelToken EventType = "model_token"
	EventTypeToolEnd    EventType = "tool_end"
)

// Event 一轮对话内的单个生命周期事件（单生产者/单消费者序列）。
type Event struct {
	Type     EventType
	RunID    string
	ToolName string
	RawInput string       // tool_start：工具原始入参（通常是 JSON 串）
	Token    TokenContent // model_token
	Output   any          // tool_end：工具执行结果
}

// NewToolStartEvent 创建工具开始事件
func NewToolStartEvent(runID, toolName, rawInput string) Event {
	return Event{Type: EventTypeToolStart, RunID: runID, ToolName: toolName, RawInput: rawInput}
}

// NewModelTokenEvent 创建模型文本增量事件
func NewModelTokenEvent(token TokenContent) Event {
	return Event{Type: EventTypeModelToken, Token: token}
}

// NewToolEndEvent 创建工具结束事件
func NewToolEndEvent(runID string, output any) Event {
	return Event{Type: EventTypeToolEnd, RunID: runID, Output: output}
}

// TokenContent 模型 token 载荷。两种显式变体：纯文本，或带类型的分段列表，
// 在事件构造边界一次性确定，后续只读。
type TokenContent struct {
	Plain string
	Parts []ContentPart
}

// ContentPart 结构化载荷中的一段。
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PlainToken 纯文本变体。
func PlainToken(s string) TokenContent {
	return TokenContent{Plain: s}
}

// PartsToken 分段列表变体。
func PartsToken(parts []ContentPart) TokenContent {
	return TokenContent{Parts: parts}
}

// Text 提取文本内容：分段变体取第一个 type=="text" 的段，否则取纯文本。
func (c TokenContent) Text() string {
	if c.Parts != nil {
		for _, p := range c.Parts {
			if p.Type == "text" {
				return p.Text
			}
		}
		return ""
	}
	return c.Plain
}
