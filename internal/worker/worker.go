package worker

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"fundseek/internal/domain/embedding"
	applog "fundseek/internal/platform/log"
)

// Job 一条向量化任务描述：哪张表的哪一行、用哪个内容函数取文本、写回哪一列。
type Job struct {
	JobID           int64  `json:"jobId"`
	ID              string `json:"id"`
	Schema          string `json:"schema"`
	Table           string `json:"table"`
	ContentFunction string `json:"contentFunction"`
	EmbeddingColumn string `json:"embeddingColumn"`
	IDColumn        string `json:"idColumn"`
}

// Failure 失败任务及原因。
type Failure struct {
	JobID int64  `json:"jobId"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Report 一个批次的处理结果。两个列表恒非 nil，空批次返回两个空列表。
type Report struct {
	CompletedJobs []Job     `json:"completedJobs"`
	FailedJobs    []Failure `json:"failedJobs"`
}

// JobStore 任务执行所需的存储能力：取行内容、写回向量、队列删除。
type JobStore interface {
	FetchContent(ctx context.Context, job Job) (string, error)
	UpdateEmbedding(ctx context.Context, job Job, vec pgvector.Vector) error
	DeleteFromQueue(ctx context.Context, queue string, jobID int64) error
}

// Worker 向量化任务批处理器。批内严格串行；实例本身无状态，
// 水平扩展靠多实例分摊批次。至少一次语义：行更新与队列删除之间
// 崩溃会导致任务重投，重复执行是幂等的（同样的内容写同样的向量）。
type Worker struct {
	store    JobStore
	embedder embedding.Embedder
	policy   embedding.RetryPolicy
	queue    string
}

// New 创建 Worker。queue 为任务队列名。
func New(store JobStore, embedder embedding.Embedder, queue string) *Worker {
	return &Worker{
		store:    store,
		embedder: embedder,
		policy:   embedding.DefaultRetryPolicy(),
		queue:    queue,
	}
}

// Process 串行处理一个批次并返回逐任务结果。单个任务失败不影响后续任务。
// ctx 终止时停止取新任务，余下任务全部记失败（原因为终止原因），
// 当前任务不会被中途丢弃半成品：要么完整走完，要么整体失败。
func (w *Worker) Process(ctx context.Context, jobs []Job) *Report {
	report := &Report{
		CompletedJobs: []Job{},
		FailedJobs:    []Failure{},
	}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			for _, rest := range jobs[i:] {
				report.FailedJobs = append(report.FailedJobs, Failure{
					JobID: rest.JobID,
					ID:    rest.ID,
					Error: fmt.Sprintf("batch terminated: %v", err),
				})
			}
			break
		}

		if err := w.processJob(ctx, job); err != nil {
			applog.Warn("[Worker] Job failed", "job_id", job.JobID, "row_id", job.ID, "error", err)
			report.FailedJobs = append(report.FailedJobs, Failure{
				JobID: job.JobID,
				ID:    job.ID,
				Error: err.Error(),
			})
			continue
		}
		report.CompletedJobs = append(report.CompletedJobs, job)
	}

	return report
}

// processJob 单任务流水：取内容 -> 生成向量（限流重试）-> 写回 -> 队列删除。
// 队列删除严格排在行更新之后。
func (w *Worker) processJob(ctx context.Context, job Job) error {
	content, err := w.store.FetchContent(ctx, job)
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}
	if content == "" {
		return fmt.Errorf("row %s produced empty content", job.ID)
	}

	values, err := embedding.WithRetry(ctx, w.policy, func() ([]float32, error) {
		return w.embedder.EmbedText(ctx, content)
	})
	if err != nil {
		return fmt.Errorf("generate embedding: %w", err)
	}

	if err := w.store.UpdateEmbedding(ctx, job, pgvector.NewVector(values)); err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}

	if err := w.store.DeleteFromQueue(ctx, w.queue, job.JobID); err != nil {
		return fmt.Errorf("delete from queue: %w", err)
	}
	return nil
}
