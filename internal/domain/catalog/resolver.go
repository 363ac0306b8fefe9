package catalog

import (
	"context"
	"fmt"

	applog "fundseek/internal/platform/log"
)

// LanguageFallbackPriority 固定的语言回退优先级，不依赖热度或时间。
var LanguageFallbackPriority = []string{"en", "de", "es", "fr", "pt"}

// Combination 一个项目在某语言下的 (id, permalink, language) 组合。
type Combination struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
	Language  string `json:"language"`
}

// ResolveResult 解析结果。PreferredEntry 为 nil 表示没有可用翻译
// （组合存在但数据行缺失时同样如此，视为一致性违例而非错误）。
type ResolveResult struct {
	AvailableCombinations []Combination `json:"available_combinations"`
	PreferredEntry        *Translation  `json:"preferred_entry"`
	IsFallback            bool          `json:"is_fallback"`
	CanonicalPermalink    string        `json:"canonical_permalink"`
}

// Resolver 按 permalink + 期望语言解析最佳翻译。无状态。
type Resolver struct {
	store Store
}

// NewResolver 创建解析器。
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve 查找 permalink（任意语言）所属项目并挑选最佳翻译。
// 返回 nil 表示该 permalink 在任何语言下都不存在。
func (r *Resolver) Resolve(ctx context.Context, permalink, preferredLanguage string) (*ResolveResult, error) {
	programID, found, err := r.store.FindProgramID(ctx, permalink)
	if err != nil {
		return nil, fmt.Errorf("resolve permalink %q: %w", permalink, err)
	}
	if !found {
		return nil, nil
	}

	combinations, err := r.store.ListCombinations(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("list combinations for %q: %w", programID, err)
	}
	if len(combinations) == 0 {
		return nil, nil
	}

	targetLanguage, found := pickLanguage(combinations, preferredLanguage)
	if !found {
		return &ResolveResult{AvailableCombinations: combinations}, nil
	}

	entry, err := r.store.GetTranslation(ctx, programID, targetLanguage)
	if err != nil {
		return nil, fmt.Errorf("get translation (%s, %s): %w", programID, targetLanguage, err)
	}
	if entry == nil {
		// 组合列表里有这门语言但行不见了：按无可用翻译处理
		applog.Warn("[Resolver] Combination listed but translation row missing",
			"program_id", programID, "language", targetLanguage)
		return &ResolveResult{AvailableCombinations: combinations}, nil
	}

	return &ResolveResult{
		AvailableCombinations: combinations,
		PreferredEntry:        entry,
		IsFallback:            entry.Language != preferredLanguage,
		CanonicalPermalink:    entry.Permalink,
	}, nil
}

// pickLanguage 期望语言存在则用之；否则按固定优先级取第一个存在的语言。
func pickLanguage(combinations []Combination, preferred string) (string, bool) {
	has := func(lang string) bool {
		for _, c := range combinations {
			if c.Language == lang {
				return true
			}
		}
		return false
	}

	if has(preferred) {
		return preferred, true
	}
	for _, lang := range LanguageFallbackPriority {
		if has(lang) {
			return lang, true
		}
	}
	return "", false
}
