package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fundseek/internal/domain/catalog"
)

// 对话检索固定返回第一页前 10 条，翻页交给结果页接口。
const searchToolPageSize = 10

// SearchTool 按自然语言查询加结构化过滤器检索资助项目。
type SearchTool struct {
	finder   *catalog.Finder
	language string
}

// NewSearchTool 创建检索工具。language 为本次会话的目标语言。
func NewSearchTool(finder *catalog.Finder, language string) *SearchTool {
	return &SearchTool{finder: finder, language: language}
}

func (t *SearchTool) Name() string {
	return "search_for_programs"
}

func (t *SearchTool) Description() string {
	return "Search the funding program catalog. Combines semantic similarity search over the user's query with structured filters. Returns the top matching programs with their permalinks."
}

func (t *SearchTool) Parameters() interface{} {
	filterProps := map[string]interface{}{}
	for key, cfg := range catalog.FilterConfigs {
		filterProps[string(key)] = map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string", "enum": cfg.Enum},
		}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"searchQuery": map[string]interface{}{
				"type":        "string",
				"description": "Free-text description of what the user is looking for. May be empty to browse by filters only.",
			},
			"activeFilters": map[string]interface{}{
				"type":        "object",
				"description": "Structured filters to narrow the result set. Only include filters the user asked for.",
				"properties":  filterProps,
			},
		},
		"required": []string{"searchQuery"},
	}
}

type searchArgs struct {
	SearchQuery   string              `json:"searchQuery"`
	ActiveFilters map[string][]string `json:"activeFilters"`
}

func (t *SearchTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	page, err := t.finder.Search(ctx, catalog.SearchParams{
		Query:    args.SearchQuery,
		Filters:  catalog.SanitizeFilters(args.ActiveFilters),
		Language: t.language,
		Page:     1,
		PageSize: searchToolPageSize,
	})
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(map[string]any{
		"totalItems": page.TotalItems,
		"programs":   catalog.PickSearchResultItems(page.Items),
	})
	if err != nil {
		return "", fmt.Errorf("marshal search result: %w", err)
	}
	return string(data), nil
}

// PermalinkInfoTool 按 permalink 取单个项目的完整详情（剔除重量级列）。
type PermalinkInfoTool struct {
	store catalog.Store
}

// NewPermalinkInfoTool 创建详情工具。
func NewPermalinkInfoTool(store catalog.Store) *PermalinkInfoTool {
	return &PermalinkInfoTool{store: store}
}

func (t *PermalinkInfoTool) Name() string {
	return "request_info_about_permalink"
}

func (t *PermalinkInfoTool) Description() string {
	return "Fetch the full details of a single funding program identified by its permalink. Use this when the user asks about one specific program."
}

func (t *PermalinkInfoTool) Parameters() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"permalink": map[string]interface{}{
				"type":        "string",
				"description": "The permalink of the program, e.g. from a previous search result.",
			},
		},
		"required": []string{"permalink"},
	}
}

type permalinkArgs struct {
	Permalink string `json:"permalink"`
}

func (t *PermalinkInfoTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args permalinkArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	permalink := strings.TrimSpace(args.Permalink)
	if permalink == "" {
		return "", fmt.Errorf("permalink is required")
	}

	row, err := t.store.GetByPermalink(ctx, permalink)
	if err != nil {
		return "", err
	}
	if row == nil {
		return fmt.Sprintf("No funding program found for permalink %q.", permalink), nil
	}

	// 展平后剔除对 LLM 无意义的内部列
	flat := catalog.Flatten(*row)
	payload := map[string]any{}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("marshal program: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode program: %w", err)
	}
	delete(payload, "id")
	delete(payload, "featured_priority")
	delete(payload, "success")

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal program: %w", err)
	}
	return string(data), nil
}

// DisplayProgramsTool 让前端渲染一组项目卡片。执行本身没有副作用，
// 结果只是一个让模型知道展示已发生的标记，真正的渲染由客户端消费帧完成。
type DisplayProgramsTool struct{}

// NewDisplayProgramsTool 创建展示工具。
func NewDisplayProgramsTool() *DisplayProgramsTool {
	return &DisplayProgramsTool{}
}

func (t *DisplayProgramsTool) Name() string {
	return "display_programs_to_user"
}

func (t *DisplayProgramsTool) Description() string {
	return "Display a set of funding programs to the user as result cards. Call this with the permalinks of the programs worth showing after a search."
}

func (t *DisplayProgramsTool) Parameters() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"permalinks": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Permalinks of the programs to display, most relevant first.",
			},
		},
		"required": []string{"permalinks"},
	}
}

type displayArgs struct {
	Permalinks []string `json:"permalinks"`
}

func (t *DisplayProgramsTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args displayArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	return fmt.Sprintf("Tool call for display_programs_to_user with permalinks: [%s]", strings.Join(args.Permalinks, ", ")), nil
}
