package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"fundseek/internal/worker"
)

// JobStore 向量化任务的存储执行层。表名/列名/函数名来自任务描述，
// 全部经过标识符引用后拼接。
type JobStore struct {
	db *sql.DB
}

// NewJobStore 创建任务存储
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// FetchContent 调用任务指定的内容函数，取该行待向量化的文本。
func (s *JobStore) FetchContent(ctx context.Context, job worker.Job) (string, error) {
	query := fmt.Sprintf(`SELECT %s(t) FROM %s.%s t WHERE t.%s = $1`,
		pq.QuoteIdentifier(job.ContentFunction),
		pq.QuoteIdentifier(job.Schema),
		pq.QuoteIdentifier(job.Table),
		pq.QuoteIdentifier(job.IDColumn),
	)

	var content sql.NullString
	err := s.db.QueryRowContext(ctx, query, job.ID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("row %s not found in %s.%s", job.ID, job.Schema, job.Table)
	}
	if err != nil {
		return "", fmt.Errorf("fetch row content: %w", err)
	}
	return content.String, nil
}

// UpdateEmbedding 把生成好的向量写回任务指定的列。
func (s *JobStore) UpdateEmbedding(ctx context.Context, job worker.Job, vec pgvector.Vector) error {
	query := fmt.Sprintf(`UPDATE %s.%s SET %s = $1 WHERE %s = $2`,
		pq.QuoteIdentifier(job.Schema),
		pq.QuoteIdentifier(job.Table),
		pq.QuoteIdentifier(job.EmbeddingColumn),
		pq.QuoteIdentifier(job.IDColumn),
	)

	result, err := s.db.ExecContext(ctx, query, vec, job.ID)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("row %s not found in %s.%s", job.ID, job.Schema, job.Table)
	}
	return nil
}

// DeleteFromQueue 从消息队列删除已完成的任务。
func (s *JobStore) DeleteFromQueue(ctx context.Context, queue string, jobID int64) error {
	if _, err := s.db.ExecContext(ctx, `SELECT pgmq.delete($1, $2::bigint)`, queue, jobID); err != nil {
		return fmt.Errorf("delete queue message %d: %w", jobID, err)
	}
	return nil
}
