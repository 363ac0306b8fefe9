package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	applog "fundseek/internal/platform/log"
)

// ErrInvalidPage 页码必须从 1 开始。
var ErrInvalidPage = errors.New("page number must be >= 1")

// FinderConfig 混合检索参数。
type FinderConfig struct {
	MatchThreshold  float64 // 相似度阈值
	MatchCount      int     // 候选上限
	DefaultPageSize int
}

// DefaultFinderConfig 默认检索参数。
func DefaultFinderConfig() *FinderConfig {
	return &FinderConfig{
		MatchThreshold:  0.52,
		MatchCount:      100,
		DefaultPageSize: 5,
	}
}

// SearchParams 一次检索请求。Filters 须已经过枚举校验。
type SearchParams struct {
	Query    string        `json:"query"`
	Filters  ActiveFilters `json:"filters"`
	Language string        `json:"language"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// SearchPage 一页扁平化结果加分页前的精确总数。
type SearchPage struct {
	Items      []ProgramWithTranslation `json:"items"`
	TotalItems int                      `json:"total_items"`
}

// Finder 混合检索组合器：向量检索、全文退化、过滤器组合、分页。
// 无状态，可任意并发使用。
type Finder struct {
	store    Store
	config   *FinderConfig
	embedder QueryEmbedder // 可选：缺省时直接走全文检索
	cache    ResultCache   // 可选
}

// NewFinder 创建检索组合器。
func NewFinder(store Store, config *FinderConfig) *Finder {
	if config == nil {
		config = DefaultFinderConfig()
	}
	return &Finder{store: store, config: config}
}

// SetEmbedder 设置查询向量来源（启用相似度检索）。
func (f *Finder) SetEmbedder(e QueryEmbedder) {
	f.embedder = e
}

// SetCache 设置整页结果缓存。
func (f *Finder) SetCache(c ResultCache) {
	f.cache = c
}

// Search 执行混合检索。
// 非空 query：优先向量相似度检索（阈值+候选上限，语言内，inner join 主表）；
// 拿不到向量时退化为全文检索。空 query：浏览该语言的全部翻译。
// 过滤谓词全部 AND 组合；分页为 1 起始的 offset/limit。
func (f *Finder) Search(ctx context.Context, params SearchParams) (*SearchPage, error) {
	if params.Page < 1 {
		return nil, ErrInvalidPage
	}
	if params.PageSize <= 0 {
		params.PageSize = f.config.DefaultPageSize
	}
	params.Query = strings.TrimSpace(params.Query)

	if f.cache != nil {
		if cached, ok := f.cache.Get(ctx, &params); ok {
			return cached, nil
		}
	}

	q := &Query{
		Language:   params.Language,
		Threshold:  f.config.MatchThreshold,
		MatchCount: f.config.MatchCount,
		Predicates: BuildPredicates(params.Filters),
		Offset:     (params.Page - 1) * params.PageSize,
		Limit:      params.PageSize,
	}

	if params.Query != "" {
		if f.embedder != nil {
			if vec, ok := f.embedder.QueryEmbedding(ctx, params.Query); ok {
				q.Vector = &vec
			}
		}
		if q.Vector == nil {
			// 向量不可用（服务失败或未启用），退化为全文检索
			applog.Debug("[Search] Falling back to full-text search", "query", params.Query)
			q.Text = params.Query
		}
	}

	rows, total, err := f.store.SearchTranslations(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch funding programs: %w", err)
	}

	page := &SearchPage{
		Items:      FlattenAll(rows),
		TotalItems: total,
	}

	if f.cache != nil {
		cacheParams := params
		cachePage := page
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			f.cache.Set(cacheCtx, &cacheParams, cachePage)
		}()
	}

	return page, nil
}
