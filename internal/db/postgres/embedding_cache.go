package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingCache embeddings_cache 表：规范化查询文本 -> 向量，key 唯一。
type EmbeddingCache struct {
	db *sql.DB
}

// NewEmbeddingCache 创建向量缓存存储
func NewEmbeddingCache(db *sql.DB) *EmbeddingCache {
	return &EmbeddingCache{db: db}
}

// EnsureTable 确保缓存表存在
func (c *EmbeddingCache) EnsureTable(ctx context.Context, dims int) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS embeddings_cache (
		id         BIGSERIAL PRIMARY KEY,
		key        TEXT NOT NULL UNIQUE,
		embedding  VECTOR(%d) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`, dims)
	_, err := c.db.ExecContext(ctx, ddl)
	return err
}

// Get 按 key 取缓存向量
func (c *EmbeddingCache) Get(ctx context.Context, key string) (pgvector.Vector, bool, error) {
	var vec pgvector.Vector
	err := c.db.QueryRowContext(ctx,
		`SELECT embedding FROM embeddings_cache WHERE key = $1`, key).Scan(&vec)
	if err == sql.ErrNoRows {
		return pgvector.Vector{}, false, nil
	}
	if err != nil {
		return pgvector.Vector{}, false, fmt.Errorf("get cached embedding: %w", err)
	}
	return vec, true, nil
}

// Insert 写入缓存，key 已存在时静默跳过（先写者胜出）
func (c *EmbeddingCache) Insert(ctx context.Context, key string, vec pgvector.Vector) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO embeddings_cache (key, embedding) VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`, key, vec)
	if err != nil {
		return fmt.Errorf("insert cached embedding: %w", err)
	}
	return nil
}
