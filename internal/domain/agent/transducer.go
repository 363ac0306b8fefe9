package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// 输出流所处阶段
const (
	phaseIdle   = 0 // 尚未发出任何 turn-start
	phaseTool   = 1 // 已进入工具阶段，等待答案文本
	phaseAnswer = 2 // 已进入答案阶段
)

// 帧 tag。一帧一行：`tag:JSON\n`。
const (
	frameTurnStart  = "f"
	frameToolCall   = "9"
	frameTextDelta  = "0"
	frameToolResult = "a"
	frameStepFinish = "e"
	frameTurnFinish = "d"
)

// TransducerOptions Transducer 可选项。
type TransducerOptions struct {
	// WhitelistTools 对客户端可见的工具名。nil 表示全部可见；
	// 空切片表示全部不可见。
	WhitelistTools []string
	// Flush 每写完一帧后调用（如 http.Flusher.Flush），可为 nil。
	Flush func()
}

// Transducer 把 Agent 生命周期事件流转换为帧格式输出流。
// 有状态的单消费者：事件按产生顺序逐个喂入，帧按序写出。
type Transducer struct {
	w         io.Writer
	messageID string
	whitelist []string
	flush     func()

	phase   int
	started bool
	calls   map[string]pendingCall
}

// pendingCall 已上报 start、尚未收到 end 的工具调用。
// 未在白名单内的调用也要记录，end 事件到达时才能被正确吞掉。
type pendingCall struct {
	name        string
	args        any
	whitelisted bool
}

// NewTransducer 创建事件流转换器。messageID 标识本轮回复。
func NewTransducer(w io.Writer, messageID string, opts *TransducerOptions) *Transducer {
	t := &Transducer{
		w:         w,
		messageID: messageID,
		calls:     make(map[string]pendingCall),
	}
	if opts != nil {
		t.whitelist = opts.WhitelistTools
		t.flush = opts.Flush
	}
	return t
}

// Run 消费事件直到 channel 关闭，然后写终止帧。
// ctx 取消时立即停止消费并返回，不再写任何帧（连接已断）。
func (t *Transducer) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return t.finish()
			}
			if err := t.Feed(evt); err != nil {
				return err
			}
		}
	}
}

// Feed 处理单个事件，写出零到多帧。
func (t *Transducer) Feed(evt Event) error {
	switch evt.Type {
	case EventTypeToolStart:
		return t.onToolStart(evt)
	case EventTypeModelToken:
		return t.onModelToken(evt)
	case EventTypeToolEnd:
		return t.onToolEnd(evt)
	default:
		return nil
	}
}

// Finish 写终止帧序列：步骤结束 + 本轮结束。事件流正常耗尽后调用。
func (t *Transducer) finish() error {
	// 空事件流也要有完整的帧封套
	if !t.started {
		if err := t.writeTurnStart(); err != nil {
			return err
		}
	}
	if err := t.writeFrame(frameStepFinish, map[string]any{
		"finishReason": "stop",
		"usage":        map[string]any{},
		"isContinued":  false,
	}); err != nil {
		return err
	}
	return t.writeFrame(frameTurnFinish, map[string]any{
		"finishReason": "stop",
		"usage":        map[string]any{},
	})
}

func (t *Transducer) onToolStart(evt Event) error {
	callID := deriveCallID(evt.RunID)
	whitelisted := t.isWhitelisted(evt.ToolName)
	t.calls[callID] = pendingCall{
		name:        evt.ToolName,
		args:        parseToolArgs(evt.RawInput),
		whitelisted: whitelisted,
	}
	if !whitelisted {
		return nil
	}

	if t.phase == phaseIdle {
		if err := t.writeTurnStart(); err != nil {
			return err
		}
		t.phase = phaseTool
	}
	return t.writeFrame(frameToolCall, map[string]any{
		"toolCallId": callID,
		"toolName":   evt.ToolName,
		"args":       t.calls[callID].args,
	})
}

func (t *Transducer) onModelToken(evt Event) error {
	text := evt.Token.Text()
	if text == "" {
		return nil
	}
	// 第一段答案文本开启新一段回复
	if t.phase != phaseAnswer {
		if err := t.writeTurnStart(); err != nil {
			return err
		}
		t.phase = phaseAnswer
	}
	return t.writeFrame(frameTextDelta, text)
}

func (t *Transducer) onToolEnd(evt Event) error {
	callID := deriveCallID(evt.RunID)
	call, ok := t.calls[callID]
	if !ok {
		return nil
	}
	delete(t.calls, callID)
	if !call.whitelisted {
		return nil
	}

	if err := t.writeFrame(frameToolResult, map[string]any{
		"toolCallId": callID,
		"result":     evt.Output,
	}); err != nil {
		return err
	}
	return t.writeFrame(frameStepFinish, map[string]any{
		"finishReason": "tool-calls",
		"usage":        map[string]any{},
		"isContinued":  true,
	})
}

func (t *Transducer) writeTurnStart() error {
	t.started = true
	return t.writeFrame(frameTurnStart, map[string]any{"messageId": t.messageID})
}

func (t *Transducer) writeFrame(tag string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame %s: %w", tag, err)
	}
	if _, err := fmt.Fprintf(t.w, "%s:%s\n", tag, data); err != nil {
		return fmt.Errorf("write frame %s: %w", tag, err)
	}
	if t.flush != nil {
		t.flush()
	}
	return nil
}

func (t *Transducer) isWhitelisted(toolName string) bool {
	if t.whitelist == nil {
		return true
	}
	for _, name := range t.whitelist {
		if name == toolName {
			return true
		}
	}
	return false
}

// deriveCallID 从运行 id 派生面向客户端的调用 id。
// 与持久化层为历史合成的关联 id 无关。
func deriveCallID(runID string) string {
	return "tool_" + runID
}

// parseToolArgs 工具入参尽量按 JSON 解析，解析失败则原样透传字符串。
func parseToolArgs(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}
