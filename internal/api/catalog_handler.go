package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fundseek/internal/domain/catalog"
	applog "fundseek/internal/platform/log"
)

// CatalogHandler 目录检索与详情接口
type CatalogHandler struct {
	finder   *catalog.Finder
	resolver *catalog.Resolver
	store    catalog.Store
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(finder *catalog.Finder, resolver *catalog.Resolver, store catalog.Store) *CatalogHandler {
	return &CatalogHandler{finder: finder, resolver: resolver, store: store}
}

// RegisterRoutes 注册路由
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/programs", h.SearchPrograms)
	r.Get("/programs/{permalink}", h.GetProgram)
	r.Post("/programs/batch", h.BatchPrograms)
}

// SearchPrograms 混合检索：q + 重复过滤参数 + page（1 起始）
func (h *CatalogHandler) SearchPrograms(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	pageSize := 0
	if raw := query.Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}

	result, err := h.finder.Search(r.Context(), catalog.SearchParams{
		Query:    query.Get("q"),
		Filters:  catalog.SanitizeFilters(query),
		Language: requestLanguage(r),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		applog.Error("[API] Program search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":       catalog.PickSearchResultItems(result.Items),
		"total_items": result.TotalItems,
		"page":        page,
	})
}

// GetProgram 按 permalink 取详情，带语言回退
func (h *CatalogHandler) GetProgram(w http.ResponseWriter, r *http.Request) {
	permalink := chi.URLParam(r, "permalink")

	result, err := h.resolver.Resolve(r.Context(), permalink, requestLanguage(r))
	if err != nil {
		applog.Error("[API] Resolve failed", "permalink", permalink, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "program not found")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// BatchPrograms permalink 列表 -> 紧凑结果卡片
func (h *CatalogHandler) BatchPrograms(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permalinks []string `json:"permalinks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Permalinks) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"items": []catalog.SearchResultItem{}})
		return
	}

	rows, err := h.store.ListByPermalinks(r.Context(), req.Permalinks)
	if err != nil {
		applog.Error("[API] Batch lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": catalog.PickSearchResultItems(catalog.FlattenAll(rows)),
	})
}

// requestLanguage 语言协商：language 参数优先，其次 use-locale 头，默认 en
func requestLanguage(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get("language")); lang != "" {
		return lang
	}
	if lang := strings.TrimSpace(r.Header.Get("use-locale")); lang != "" {
		return lang
	}
	return "en"
}
