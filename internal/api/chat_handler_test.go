package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fundseek/internal/api"
	"fundseek/internal/domain/catalog"
	"fundseek/internal/domain/history"
	"fundseek/internal/provider"
)

// memMessageStore 内存会话日志
type memMessageStore struct {
	mu       sync.Mutex
	messages map[string][]history.Message
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{messages: map[string][]history.Message{}}
}

func (s *memMessageStore) ListMessages(ctx context.Context, sessionID string) ([]history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Message(nil), s.messages[sessionID]...), nil
}

func (s *memMessageStore) AppendMessages(ctx context.Context, sessionID string, messages []history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], messages...)
	return nil
}

// scriptedLLM 逐轮返回预设 chunk 的供应商桩，记录每轮收到的请求
type scriptedLLM struct {
	mu       sync.Mutex
	rounds   [][]provider.CompletionChunk
	requests []*provider.CompletionRequest
}

func (p *scriptedLLM) StreamComplete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.CompletionChunk, <-chan error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	round := len(p.requests) - 1
	p.mu.Unlock()

	chunkCh := make(chan provider.CompletionChunk)
	errCh := make(chan error, 1)
	go func() {
		defer close(chunkCh)
		defer close(errCh)
		if round < len(p.rounds) {
			for _, chunk := range p.rounds[round] {
				chunkCh <- chunk
			}
		}
	}()
	return chunkCh, errCh
}

func newChatHandler(llm provider.LLMProvider, mem *memMessageStore) *api.ChatHandler {
	store := newStubStore()
	finder := catalog.NewFinder(store, nil)
	return api.NewChatHandler(llm, history.NewStore(mem), finder, store, api.ChatConfig{
		Model: "test-model",
	})
}

// TestChatReplaysStoredTrace 第二轮对话的模型上下文必须重放服务端日志，
// 包含上一轮合成的工具调用/结果对；本轮只追加新的用户输入
func TestChatReplaysStoredTrace(t *testing.T) {
	mem := newMemMessageStore()
	callID := "tool_call_prev"
	mem.messages["s1"] = []history.Message{
		history.Human("q1"),
		{
			Type: history.MessageTypeAI,
			ToolCalls: []history.ToolCall{{
				ID:   callID,
				Name: "search_for_programs",
				Args: map[string]any{"search_query": "grants"},
			}},
		},
		{
			Type:       history.MessageTypeTool,
			Content:    `{"totalItems":0,"programs":[]}`,
			ToolCallID: callID,
			Name:       "search_for_programs",
		},
		history.AI("a1"),
	}

	llm := &scriptedLLM{rounds: [][]provider.CompletionChunk{
		{{Delta: "a2"}},
	}}
	h := newChatHandler(llm, mem)

	body := strings.NewReader(`{"id":"s1","messages":[
		{"role":"user","content":"q1"},
		{"role":"assistant","content":"a1"},
		{"role":"user","content":"q2"}]}`)
	req := httptest.NewRequest("POST", "/api/v1/chat", body)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(llm.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(llm.requests))
	}

	msgs := llm.requests[0].Messages
	// system + 日志四条 + 本轮新输入
	if len(msgs) != 6 {
		t.Fatalf("context = %d messages, want 6: %+v", len(msgs), msgs)
	}
	if msgs[2].Role != "assistant" || len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("msgs[2] = %+v, want assistant tool call", msgs[2])
	}
	if msgs[2].ToolCalls[0].ID != callID || msgs[2].ToolCalls[0].Function.Name != "search_for_programs" {
		t.Errorf("replayed tool call = %+v", msgs[2].ToolCalls[0])
	}
	if msgs[3].Role != "tool" || msgs[3].ToolCallID != callID {
		t.Errorf("msgs[3] = %+v, want tool result with matching id", msgs[3])
	}
	if msgs[5].Role != "user" || msgs[5].Content != "q2" {
		t.Errorf("msgs[5] = %+v, want new user input q2", msgs[5])
	}

	// 落库只新增本轮的 (q2, a2)，不重复已存前缀
	stored := mem.messages["s1"]
	if len(stored) != 6 {
		t.Fatalf("stored = %d messages, want 6", len(stored))
	}
	if stored[4].Content != "q2" || stored[5].Content != "a2" {
		t.Errorf("appended tail = %+v / %+v", stored[4], stored[5])
	}
	t.Logf("✅ stored trace replayed, %d context messages", len(msgs))
}

// TestChatFirstTurnUsesClientMessages 日志为空时上下文取客户端全部消息
func TestChatFirstTurnUsesClientMessages(t *testing.T) {
	mem := newMemMessageStore()
	llm := &scriptedLLM{rounds: [][]provider.CompletionChunk{
		{{Delta: "hello"}},
	}}
	h := newChatHandler(llm, mem)

	body := strings.NewReader(`{"id":"s1","messages":[{"role":"user","content":"q1"}]}`)
	req := httptest.NewRequest("POST", "/api/v1/chat", body)
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	msgs := llm.requests[0].Messages
	if len(msgs) != 2 || msgs[1].Content != "q1" {
		t.Fatalf("context = %+v, want system + q1", msgs)
	}
	if len(mem.messages["s1"]) != 2 {
		t.Errorf("stored = %d messages, want q1 + answer", len(mem.messages["s1"]))
	}
}

// brokenStreamWriter 第一次写入后即失败的响应写出器，模拟客户端断开
type brokenStreamWriter struct {
	header http.Header
	writes int
}

func newBrokenStreamWriter() *brokenStreamWriter {
	return &brokenStreamWriter{header: http.Header{}}
}

func (w *brokenStreamWriter) Header() http.Header  { return w.header }
func (w *brokenStreamWriter) WriteHeader(code int) {}
func (w *brokenStreamWriter) Flush()               {}

func (w *brokenStreamWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

// TestChatWriteErrorDoesNotBlockRunner 写出失败导致帧流提前中止时，
// 处理器必须排空事件并等到本轮跑完、照常落库，而不是卡死
func TestChatWriteErrorDoesNotBlockRunner(t *testing.T) {
	// token 数量超过事件缓冲，若无人排空，生产端会阻塞在发送上
	chunks := make([]provider.CompletionChunk, 100)
	for i := range chunks {
		chunks[i] = provider.CompletionChunk{Delta: "x"}
	}

	mem := newMemMessageStore()
	llm := &scriptedLLM{rounds: [][]provider.CompletionChunk{chunks}}
	h := newChatHandler(llm, mem)

	body := strings.NewReader(`{"id":"s2","messages":[{"role":"user","content":"q1"}]}`)
	req := httptest.NewRequest("POST", "/api/v1/chat", body)
	w := newBrokenStreamWriter()

	h.Chat(w, req)

	stored := mem.messages["s2"]
	if len(stored) != 2 {
		t.Fatalf("stored = %d messages, want turn persisted despite broken stream", len(stored))
	}
	if stored[1].Type != history.MessageTypeAI || len(stored[1].Content) != 100 {
		t.Errorf("answer = %+v, want 100 tokens", stored[1])
	}
	t.Logf("✅ handler returned after broken stream, %d writes accepted", w.writes)
}
