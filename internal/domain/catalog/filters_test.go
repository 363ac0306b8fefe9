package catalog_test

import (
	"reflect"
	"testing"

	"fundseek/internal/domain/catalog"
)

// TestSanitizeFilterValues 非法字符被剥离、非枚举值被丢弃、顺序保持
func TestSanitizeFilterValues(t *testing.T) {
	tests := []struct {
		name   string
		key    catalog.FilterKey
		values []string
		want   []string
	}{
		{
			name:   "valid values pass through",
			key:    catalog.FilterCountries,
			values: []string{"de", "fr"},
			want:   []string{"de", "fr"},
		},
		{
			name:   "injection characters stripped before validation",
			key:    catalog.FilterProgramStatus,
			values: []string{"open'; DROP TABLE--"},
			want:   nil, // 剥离后不再是合法枚举值
		},
		{
			name:   "invalid enum values dropped, order preserved",
			key:    catalog.FilterCompanySize,
			values: []string{"large", "gigantic", "micro"},
			want:   []string{"large", "micro"},
		},
		{
			name:   "unknown filter key yields nothing",
			key:    catalog.FilterKey("price_range"),
			values: []string{"cheap"},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.SanitizeFilterValues(tt.key, tt.values)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SanitizeFilterValues(%s, %v) = %v, want %v", tt.key, tt.values, got, tt.want)
			}
		})
	}
}

// TestSanitizeFilters 空集合与全非法集合不会出现在结果里
func TestSanitizeFilters(t *testing.T) {
	raw := map[string][]string{
		"countries":      {"de", "xx"},
		"program_status": {},
		"company_size":   {"$$$$"},
		"not_a_filter":   {"whatever"},
	}

	got := catalog.SanitizeFilters(raw)

	if len(got) != 1 {
		t.Fatalf("expected exactly one surviving filter, got %v", got)
	}
	if !reflect.DeepEqual(got[catalog.FilterCountries], []string{"de"}) {
		t.Errorf("countries = %v, want [de]", got[catalog.FilterCountries])
	}
	t.Logf("✅ sanitized filters: %v", got)
}

// TestBuildPredicates 空过滤器是 no-op；谓词类型跟随声明
func TestBuildPredicates(t *testing.T) {
	if preds := catalog.BuildPredicates(catalog.ActiveFilters{}); len(preds) != 0 {
		t.Fatalf("empty filters must produce no predicates, got %v", preds)
	}

	preds := catalog.BuildPredicates(catalog.ActiveFilters{
		catalog.FilterCountries:     {"de", "at"},
		catalog.FilterProgramStatus: {"open"},
	})
	if len(preds) != 2 {
		t.Fatalf("expected 2 predicates, got %d", len(preds))
	}

	byField := map[string]catalog.Predicate{}
	for _, p := range preds {
		byField[p.Field] = p
	}

	countries := byField["overview_countries"]
	if !countries.Contains {
		t.Error("countries filter must be a containment predicate")
	}
	if !reflect.DeepEqual(countries.Values, []string{"de", "at"}) {
		t.Errorf("countries values = %v", countries.Values)
	}

	status := byField["program_status"]
	if status.Contains {
		t.Error("program_status filter must be a membership predicate")
	}
}
