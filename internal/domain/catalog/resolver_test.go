package catalog_test

import (
	"context"
	"testing"

	"fundseek/internal/domain/catalog"
)

func multilingualRows() []catalog.JoinedRow {
	row := func(lang, permalink string) catalog.JoinedRow {
		return catalog.JoinedRow{
			Program: catalog.Program{ID: "prog-1"},
			Translation: catalog.Translation{
				ID: "prog-1", Language: lang, Permalink: permalink, Title: "T-" + lang,
			},
		}
	}
	return []catalog.JoinedRow{
		row("de", "foerderung-xyz"),
		row("fr", "financement-xyz"),
	}
}

// TestResolveUnknownPermalink 任何语言下都不存在的 permalink 返回 nil
func TestResolveUnknownPermalink(t *testing.T) {
	resolver := catalog.NewResolver(&fakeStore{})

	result, err := resolver.Resolve(context.Background(), "no-such-program", "en")
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
}

// TestResolvePreferredLanguage 期望语言存在时直接使用，不回退
func TestResolvePreferredLanguage(t *testing.T) {
	resolver := catalog.NewResolver(&fakeStore{rows: multilingualRows()})

	result, err := resolver.Resolve(context.Background(), "financement-xyz", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || result.PreferredEntry == nil {
		t.Fatal("expected preferred entry")
	}
	if result.PreferredEntry.Language != "fr" {
		t.Errorf("language = %s, want fr", result.PreferredEntry.Language)
	}
	if result.IsFallback {
		t.Error("exact language match must not be marked as fallback")
	}
	if result.CanonicalPermalink != "financement-xyz" {
		t.Errorf("canonical = %s", result.CanonicalPermalink)
	}
}

// TestResolveFallbackPriority en 缺失时 de 优先于 fr（固定优先级，确定性）
func TestResolveFallbackPriority(t *testing.T) {
	resolver := catalog.NewResolver(&fakeStore{rows: multilingualRows()})

	// 用 fr 的 permalink 请求 en：en 不存在，按 en,de,es,fr,pt 回退到 de
	result, err := resolver.Resolve(context.Background(), "financement-xyz", "en")
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || result.PreferredEntry == nil {
		t.Fatal("expected preferred entry")
	}
	if result.PreferredEntry.Language != "de" {
		t.Errorf("fallback language = %s, want de", result.PreferredEntry.Language)
	}
	if !result.IsFallback {
		t.Error("cross-language resolution must be marked as fallback")
	}
	if result.CanonicalPermalink != "foerderung-xyz" {
		t.Errorf("canonical permalink = %s, want foerderung-xyz", result.CanonicalPermalink)
	}
	if len(result.AvailableCombinations) != 2 {
		t.Errorf("combinations = %d, want 2", len(result.AvailableCombinations))
	}
	t.Logf("✅ deterministic fallback: en -> %s", result.PreferredEntry.Language)
}

// TestResolveIsIdempotent 相同输入重复解析结果一致（只读，无状态）
func TestResolveIsIdempotent(t *testing.T) {
	resolver := catalog.NewResolver(&fakeStore{rows: multilingualRows()})

	first, err := resolver.Resolve(context.Background(), "foerderung-xyz", "pt")
	if err != nil {
		t.Fatal(err)
	}
	second, err := resolver.Resolve(context.Background(), "foerderung-xyz", "pt")
	if err != nil {
		t.Fatal(err)
	}
	if first.PreferredEntry.Language != second.PreferredEntry.Language ||
		first.CanonicalPermalink != second.CanonicalPermalink ||
		first.IsFallback != second.IsFallback {
		t.Errorf("resolution not idempotent: %+v vs %+v", first, second)
	}
}

// missingRowStore 组合列表里有语言但翻译行缺失的存储桩。
type missingRowStore struct {
	fakeStore
}

func (s *missingRowStore) GetTranslation(ctx context.Context, programID, language string) (*catalog.Translation, error) {
	return nil, nil
}

// TestResolveMissingTranslationRow 一致性违例：按无可用翻译处理而非报错
func TestResolveMissingTranslationRow(t *testing.T) {
	store := &missingRowStore{fakeStore{rows: multilingualRows()}}
	resolver := catalog.NewResolver(store)

	result, err := resolver.Resolve(context.Background(), "foerderung-xyz", "de")
	if err != nil {
		t.Fatalf("missing row must not be an error, got %v", err)
	}
	if result == nil {
		t.Fatal("expected result with combinations")
	}
	if result.PreferredEntry != nil {
		t.Error("expected nil preferred entry")
	}
	if len(result.AvailableCombinations) != 2 {
		t.Errorf("combinations = %d, want 2", len(result.AvailableCombinations))
	}
}
