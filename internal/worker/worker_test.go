package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"

	"fundseek/internal/worker"
)

// memJobStore 记录调用顺序的任务存储桩。
type memJobStore struct {
	content   map[string]string
	ops       []string
	fetchErr  map[string]error
	updateErr map[string]error
	deleteErr map[int64]error
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		content:   map[string]string{},
		fetchErr:  map[string]error{},
		updateErr: map[string]error{},
		deleteErr: map[int64]error{},
	}
}

func (s *memJobStore) FetchContent(ctx context.Context, job worker.Job) (string, error) {
	s.ops = append(s.ops, "fetch:"+job.ID)
	if err := s.fetchErr[job.ID]; err != nil {
		return "", err
	}
	return s.content[job.ID], nil
}

func (s *memJobStore) UpdateEmbedding(ctx context.Context, job worker.Job, vec pgvector.Vector) error {
	s.ops = append(s.ops, "update:"+job.ID)
	return s.updateErr[job.ID]
}

func (s *memJobStore) DeleteFromQueue(ctx context.Context, queue string, jobID int64) error {
	s.ops = append(s.ops, fmt.Sprintf("delete:%s:%d", queue, jobID))
	return s.deleteErr[jobID]
}

type stubEmbedder struct {
	calls int
	err   error
}

func (e *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.5}, nil
}

func (e *stubEmbedder) Dims() int { return 1 }

func job(id int64, rowID string) worker.Job {
	return worker.Job{
		JobID:           id,
		ID:              rowID,
		Schema:          "public",
		Table:           "funding_translations",
		ContentFunction: "embedding_content",
		EmbeddingColumn: "embedding",
		IDColumn:        "id",
	}
}

// TestProcessEmptyBatch 空批次合法：两个列表均为空且非 nil
func TestProcessEmptyBatch(t *testing.T) {
	w := worker.New(newMemJobStore(), &stubEmbedder{}, "embedding_jobs")

	report := w.Process(context.Background(), nil)
	if report.CompletedJobs == nil || report.FailedJobs == nil {
		t.Fatal("report lists must be non-nil")
	}
	if len(report.CompletedJobs) != 0 || len(report.FailedJobs) != 0 {
		t.Errorf("empty batch report = %+v", report)
	}
}

// TestProcessOrdering 每个任务严格按 取内容->写向量->删队列 执行，删除在更新之后
func TestProcessOrdering(t *testing.T) {
	store := newMemJobStore()
	store.content["row-1"] = "some text"
	store.content["row-2"] = "other text"
	w := worker.New(store, &stubEmbedder{}, "embedding_jobs")

	report := w.Process(context.Background(), []worker.Job{job(1, "row-1"), job(2, "row-2")})
	if len(report.CompletedJobs) != 2 || len(report.FailedJobs) != 0 {
		t.Fatalf("report = %+v", report)
	}

	want := []string{
		"fetch:row-1", "update:row-1", "delete:embedding_jobs:1",
		"fetch:row-2", "update:row-2", "delete:embedding_jobs:2",
	}
	if strings.Join(store.ops, ",") != strings.Join(want, ",") {
		t.Errorf("ops = %v, want %v", store.ops, want)
	}
	t.Logf("✅ sequential pipeline: %v", store.ops)
}

// TestProcessIsolatesFailures 单个任务失败不影响后续任务
func TestProcessIsolatesFailures(t *testing.T) {
	store := newMemJobStore()
	store.content["row-1"] = "text"
	store.content["row-2"] = "text"
	store.updateErr["row-1"] = errors.New("column missing")
	w := worker.New(store, &stubEmbedder{}, "embedding_jobs")

	report := w.Process(context.Background(), []worker.Job{job(1, "row-1"), job(2, "row-2")})
	if len(report.CompletedJobs) != 1 || report.CompletedJobs[0].JobID != 2 {
		t.Errorf("completed = %+v", report.CompletedJobs)
	}
	if len(report.FailedJobs) != 1 {
		t.Fatalf("failed = %+v", report.FailedJobs)
	}
	if report.FailedJobs[0].JobID != 1 || !strings.Contains(report.FailedJobs[0].Error, "column missing") {
		t.Errorf("failure = %+v", report.FailedJobs[0])
	}

	// 更新失败的任务绝不能触发队列删除（至少一次语义）
	for _, op := range store.ops {
		if op == "delete:embedding_jobs:1" {
			t.Error("failed job must not be deleted from the queue")
		}
	}
}

// TestProcessEmptyContent 内容为空的行算任务失败
func TestProcessEmptyContent(t *testing.T) {
	store := newMemJobStore()
	w := worker.New(store, &stubEmbedder{}, "embedding_jobs")

	report := w.Process(context.Background(), []worker.Job{job(1, "row-1")})
	if len(report.FailedJobs) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.FailedJobs[0].Error, "empty content") {
		t.Errorf("failure reason = %q", report.FailedJobs[0].Error)
	}
}

// TestProcessTermination ctx 取消后余下任务全部记失败并带终止原因
func TestProcessTermination(t *testing.T) {
	store := newMemJobStore()
	store.content["row-1"] = "text"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := worker.New(store, &stubEmbedder{}, "embedding_jobs")
	report := w.Process(ctx, []worker.Job{job(1, "row-1"), job(2, "row-2"), job(3, "row-3")})

	if len(report.CompletedJobs) != 0 {
		t.Errorf("completed = %+v, want none", report.CompletedJobs)
	}
	if len(report.FailedJobs) != 3 {
		t.Fatalf("failed = %d, want 3", len(report.FailedJobs))
	}
	for _, f := range report.FailedJobs {
		if !strings.Contains(f.Error, "terminated") {
			t.Errorf("job %d failure = %q, want termination reason", f.JobID, f.Error)
		}
	}
	if len(store.ops) != 0 {
		t.Errorf("no store operations expected after termination, got %v", store.ops)
	}
	t.Logf("✅ termination reported for %d jobs", len(report.FailedJobs))
}
