package history_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"fundseek/internal/domain/history"
)

// memMessageStore 进程内消息日志桩，记录每次 Append 的批次。
type memMessageStore struct {
	messages []history.Message
	batches  [][]history.Message
	listErr  error
}

func (s *memMessageStore) ListMessages(ctx context.Context, sessionID string) ([]history.Message, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]history.Message(nil), s.messages...), nil
}

func (s *memMessageStore) AppendMessages(ctx context.Context, sessionID string, messages []history.Message) error {
	s.batches = append(s.batches, messages)
	s.messages = append(s.messages, messages...)
	return nil
}

// TestTrimSeenPrefix 重放的历史前缀按已存条数裁掉
func TestTrimSeenPrefix(t *testing.T) {
	input := []history.Message{
		history.Human("first"),
		history.AI("answer"),
		history.Human("second"),
	}

	tests := []struct {
		name   string
		stored int
		want   int
	}{
		{"empty log keeps everything", 0, 3},
		{"partial overlap trims prefix", 2, 1},
		{"full overlap keeps nothing", 3, 0},
		{"stored beyond input keeps nothing", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := history.TrimSeenPrefix(input, tt.stored)
			if len(got) != tt.want {
				t.Errorf("TrimSeenPrefix(len=3, stored=%d) kept %d, want %d", tt.stored, len(got), tt.want)
			}
		})
	}
}

// TestAppendTurnSynthesizesToolPairs 每个完成的步骤产出相邻且关联的消息对
func TestAppendTurnSynthesizesToolPairs(t *testing.T) {
	store := &memMessageStore{}
	hist := history.NewStore(store)

	steps := []history.Step{
		{
			Action:      history.Action{Tool: "search_for_programs", Input: map[string]any{"searchQuery": "solar"}},
			Observation: map[string]any{"totalItems": 2},
		},
	}

	err := hist.AppendTurn(context.Background(), "session-1",
		[]history.Message{history.Human("find solar funding")},
		steps,
		[]history.Message{history.AI("Here are two programs.")},
	)
	if err != nil {
		t.Fatal(err)
	}

	if len(store.batches) != 1 {
		t.Fatalf("expected a single ordered write, got %d", len(store.batches))
	}
	batch := store.batches[0]
	// 输入 + (调用, 结果) + 输出
	if len(batch) != 4 {
		t.Fatalf("batch size = %d, want 4", len(batch))
	}

	call, result := batch[1], batch[2]
	if call.Type != history.MessageTypeAI || len(call.ToolCalls) != 1 {
		t.Fatalf("call message = %+v", call)
	}
	if result.Type != history.MessageTypeTool {
		t.Fatalf("result message type = %s", result.Type)
	}
	if call.ToolCalls[0].ID != result.ToolCallID {
		t.Errorf("correlation ids differ: %s vs %s", call.ToolCalls[0].ID, result.ToolCallID)
	}
	if !strings.HasPrefix(result.ToolCallID, "tool_call_") {
		t.Errorf("correlation id %q must carry the tool_call_ prefix", result.ToolCallID)
	}
	if call.ToolCalls[0].Name != "search_for_programs" || result.Name != "search_for_programs" {
		t.Error("tool name must appear on both sides of the pair")
	}

	var observation map[string]any
	if err := json.Unmarshal([]byte(result.Content), &observation); err != nil {
		t.Fatalf("observation is not valid JSON: %v", err)
	}
	t.Logf("✅ correlated pair %s", result.ToolCallID)
}

// TestAppendTurnFreshCorrelationIDs 同一步骤两轮落库得到不同关联 id
func TestAppendTurnFreshCorrelationIDs(t *testing.T) {
	store := &memMessageStore{}
	hist := history.NewStore(store)

	step := history.Step{
		Action:      history.Action{Tool: "display_programs_to_user", Input: "raw string input"},
		Observation: "shown",
	}

	for i := 0; i < 2; i++ {
		if err := hist.AppendTurn(context.Background(), "s", nil, []history.Step{step}, nil); err != nil {
			t.Fatal(err)
		}
	}

	first := store.batches[0][0].ToolCalls[0].ID
	second := store.batches[1][0].ToolCalls[0].ID
	if first == second {
		t.Errorf("correlation ids must be freshly generated, both were %s", first)
	}

	// 裸字符串入参被包进约定的 input 键
	args := store.batches[0][0].ToolCalls[0].Args
	if args["input"] != "raw string input" {
		t.Errorf("string input not normalized: %v", args)
	}
}

// TestAppendTurnSkipsIncompleteSteps 无观察结果或无工具名的步骤不落库
func TestAppendTurnSkipsIncompleteSteps(t *testing.T) {
	store := &memMessageStore{}
	hist := history.NewStore(store)

	steps := []history.Step{
		{Action: history.Action{Tool: "search_for_programs"}, Observation: nil},
		{Action: history.Action{Tool: ""}, Observation: "orphan"},
	}

	if err := hist.AppendTurn(context.Background(), "s", nil, steps, nil); err != nil {
		t.Fatal(err)
	}
	if len(store.batches) != 0 {
		t.Fatalf("empty effective batch must not be written, got %v", store.batches)
	}
}

// TestAppendTurnTrimsReplayedInput 第二轮只追加新输入
func TestAppendTurnTrimsReplayedInput(t *testing.T) {
	store := &memMessageStore{}
	hist := history.NewStore(store)

	turn1 := []history.Message{history.Human("q1")}
	if err := hist.AppendTurn(context.Background(), "s", turn1, nil, []history.Message{history.AI("a1")}); err != nil {
		t.Fatal(err)
	}

	// 客户端重放完整上下文
	turn2 := []history.Message{history.Human("q1"), history.AI("a1"), history.Human("q2")}
	if err := hist.AppendTurn(context.Background(), "s", turn2, nil, []history.Message{history.AI("a2")}); err != nil {
		t.Fatal(err)
	}

	if len(store.messages) != 4 {
		t.Fatalf("log length = %d, want 4 (no duplicated prefix)", len(store.messages))
	}
	if store.messages[2].Content != "q2" {
		t.Errorf("third message = %q, want q2", store.messages[2].Content)
	}
}

// TestGetHistoryDegradesOnError 读失败退化为空历史
func TestGetHistoryDegradesOnError(t *testing.T) {
	store := &memMessageStore{listErr: errors.New("table missing")}
	hist := history.NewStore(store)

	if msgs := hist.GetHistory(context.Background(), "s"); msgs != nil {
		t.Errorf("expected empty history on read failure, got %v", msgs)
	}
}
