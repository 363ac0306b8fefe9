package history

// MessageType 消息角色。
type MessageType string

const (
	MessageTypeSystem MessageType = "system"
	MessageTypeHuman  MessageType = "human"
	MessageTypeAI     MessageType = "ai"
	MessageTypeTool   MessageType = "tool"
)

// ToolCall 持久化的工具调用。ID 即关联 id，与同一轮内的工具结果一一对应。
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message 会话日志中的一条消息。插入顺序就是因果顺序，
// 下一轮对话会把整段日志原样作为上下文重放。
type Message struct {
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// Human 构造用户输入消息。
func Human(content string) Message {
	return Message{Type: MessageTypeHuman, Content: content}
}

// AI 构造助手文本消息。
func AI(content string) Message {
	return Message{Type: MessageTypeAI, Content: content}
}

// System 构造系统上下文消息。
func System(content string) Message {
	return Message{Type: MessageTypeSystem, Content: content}
}
