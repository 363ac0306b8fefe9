package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	applog "fundseek/internal/platform/log"
)

// CacheStore is the persistent embedding cache keyed by the literal query
// string. Insert must be insert-if-absent: at most one row per key, rows are
// never updated.
type CacheStore interface {
	Get(ctx context.Context, key string) (pgvector.Vector, bool, error)
	Insert(ctx context.Context, key string, vec pgvector.Vector) error
}

// Service 查询向量服务：命中缓存直接返回，未命中则生成并 best-effort 写回。
// 写入是幂等的 insert-if-absent，多实例并发安全。
type Service struct {
	cache    CacheStore
	embedder Embedder
	policy   RetryPolicy
}

// NewService 创建查询向量服务。policy 为零值时采用缓存路径默认策略（10 次）。
func NewService(cache CacheStore, embedder Embedder, policy RetryPolicy) *Service {
	if policy.MaxRetries <= 0 {
		policy = RetryPolicy{
			MaxRetries: 10,
			BaseDelay:  5 * time.Second,
			MaxDelay:   time.Hour,
		}
	}
	return &Service{cache: cache, embedder: embedder, policy: policy}
}

// QueryEmbedding 返回查询串的向量。
// 空白查询不做任何 I/O 直接返回 false；生成失败（重试耗尽）也返回 false，
// 由调用方降级处理。缓存写入失败只记日志，向量照常返回。
func (s *Service) QueryEmbedding(ctx context.Context, query string) (pgvector.Vector, bool) {
	if strings.TrimSpace(query) == "" {
		return pgvector.Vector{}, false
	}

	if vec, ok, err := s.cache.Get(ctx, query); err != nil {
		applog.Warn("[Embedding] Cache lookup failed", "error", err)
	} else if ok {
		return vec, true
	}

	values, err := WithRetry(ctx, s.policy, func() ([]float32, error) {
		return s.embedder.EmbedText(ctx, query)
	})
	if err != nil {
		applog.Warn("[Embedding] Generation failed, degrading", "query", query, "error", err)
		return pgvector.Vector{}, false
	}

	vec := pgvector.NewVector(values)
	if err := s.cache.Insert(ctx, query, vec); err != nil {
		applog.Warn("[Embedding] Cache insert failed", "query", query, "error", err)
	}
	return vec, true
}
