package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fundseek/internal/domain/catalog"
	applog "fundseek/internal/platform/log"
)

// SearchCache 检索结果页 Redis 缓存
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSearchCache 创建检索缓存
func NewSearchCache(rdb *redis.Client, ttlSeconds int) *SearchCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SearchCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "search:cache:",
	}
}

// Get 从缓存获取整页检索结果
func (c *SearchCache) Get(ctx context.Context, params *catalog.SearchParams) (*catalog.SearchPage, bool) {
	key := c.cacheKey(params)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var page catalog.SearchPage
	if err := json.Unmarshal(data, &page); err != nil {
		applog.Warn("[Search/Cache] Failed to unmarshal cached page", "error", err)
		return nil, false
	}

	applog.Debug("[Search/Cache] Hit", "key", key)
	return &page, true
}

// Set 写入整页检索结果到缓存
func (c *SearchCache) Set(ctx context.Context, params *catalog.SearchParams, page *catalog.SearchPage) {
	key := c.cacheKey(params)
	data, err := json.Marshal(page)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[Search/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// cacheKey 生成缓存 key = hash(query + language + page + pageSize + filters)
func (c *SearchCache) cacheKey(params *catalog.SearchParams) string {
	// 过滤器按 key 排序确保一致性
	keys := make([]string, 0, len(params.Filters))
	for k := range params.Filters {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var filters strings.Builder
	for _, k := range keys {
		values := append([]string(nil), params.Filters[catalog.FilterKey(k)]...)
		sort.Strings(values)
		filters.WriteString(k)
		filters.WriteString("=")
		filters.WriteString(strings.Join(values, ","))
		filters.WriteString(";")
	}

	raw := fmt.Sprintf("%s|%s|%d|%d|%s",
		params.Query,
		params.Language,
		params.Page,
		params.PageSize,
		filters.String(),
	)

	hash := sha256.Sum256([]byte(raw))
	return c.prefix + fmt.Sprintf("%x", hash[:12])
}
