package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fundseek/internal/domain/history"
	applog "fundseek/internal/platform/log"
	"fundseek/internal/provider"
	"fundseek/internal/tool"
)

// RunnerConfig Agent 执行参数。
type RunnerConfig struct {
	Model         string
	Temperature   float64
	MaxToolRounds int // 单轮对话最多工具往返次数
}

// TurnResult 一轮对话的最终产物：中间步骤轨迹与答案文本。
type TurnResult struct {
	Steps  []history.Step
	Output string
}

// Runner 驱动一轮 Agent 对话：流式补全、执行工具、把结果回填上下文，
// 循环直到模型给出纯文本回答或轮次耗尽。生命周期事件按序写入 events。
type Runner struct {
	provider provider.LLMProvider
	registry *tool.Registry
	config   RunnerConfig
}

// NewRunner 创建 Agent Runner。
func NewRunner(p provider.LLMProvider, registry *tool.Registry, config RunnerConfig) *Runner {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 8
	}
	return &Runner{provider: p, registry: registry, config: config}
}

// Run 执行一轮对话。toolNames 限定本轮可用的工具集合。
// events 在返回前关闭（含出错路径），消费者以 channel 关闭作为流结束信号。
func (r *Runner) Run(ctx context.Context, messages []provider.Message, toolNames []string, events chan<- Event) (*TurnResult, error) {
	defer close(events)

	msgs := append([]provider.Message(nil), messages...)
	var steps []history.Step

	for round := 0; round < r.config.MaxToolRounds; round++ {
		req := &provider.CompletionRequest{
			Model:       r.config.Model,
			Messages:    msgs,
			Temperature: r.config.Temperature,
			Tools:       r.registry.Definitions(toolNames...),
		}

		chunkCh, errCh := r.provider.StreamComplete(ctx, req)

		var roundText strings.Builder
		var toolCalls []provider.ToolCall
		for chunk := range chunkCh {
			if chunk.Delta != "" {
				roundText.WriteString(chunk.Delta)
				select {
				case events <- NewModelTokenEvent(PlainToken(chunk.Delta)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = append(toolCalls, chunk.ToolCalls...)
			}
		}
		if err := <-errCh; err != nil {
			return nil, fmt.Errorf("completion stream: %w", err)
		}

		if len(toolCalls) == 0 {
			return &TurnResult{Steps: steps, Output: roundText.String()}, nil
		}

		msgs = append(msgs, provider.Message{
			Role:      "assistant",
			Content:   roundText.String(),
			ToolCalls: toolCalls,
		})

		for _, tc := range toolCalls {
			step, err := r.runTool(ctx, tc, events)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
			observation, _ := json.Marshal(step.Observation)
			msgs = append(msgs, provider.Message{
				Role:       "tool",
				Content:    string(observation),
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			})
		}
	}

	return nil, fmt.Errorf("tool round limit reached (%d)", r.config.MaxToolRounds)
}

// runTool 执行单个工具调用并发出 start/end 事件。
// 工具失败不是协议错误：错误信息作为观察结果回传给模型，流继续。
func (r *Runner) runTool(ctx context.Context, tc provider.ToolCall, events chan<- Event) (history.Step, error) {
	runID := tc.ID
	if runID == "" {
		runID = uuid.NewString()
	}
	name := tc.Function.Name
	rawArgs := tc.Function.Arguments

	select {
	case events <- NewToolStartEvent(runID, name, rawArgs):
	case <-ctx.Done():
		return history.Step{}, ctx.Err()
	}

	var observation any
	result, err := r.registry.Execute(ctx, name, rawArgs)
	if err != nil {
		applog.Warn("[Agent] Tool execution failed", "tool", name, "error", err)
		observation = map[string]any{"error": err.Error()}
	} else {
		observation = decodeObservation(result)
	}

	select {
	case events <- NewToolEndEvent(runID, observation):
	case <-ctx.Done():
		return history.Step{}, ctx.Err()
	}

	return history.Step{
		Action:      history.Action{Tool: name, Input: parseToolArgs(rawArgs)},
		Observation: observation,
	}, nil
}

// decodeObservation 工具结果尽量按 JSON 还原为结构，失败则保留原文。
func decodeObservation(result string) any {
	var decoded any
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		return result
	}
	return decoded
}
