package catalog

import "regexp"

// FilterKey 过滤器标识（同时也是 API 查询参数名）。
type FilterKey string

const (
	FilterCountries           FilterKey = "countries"
	FilterCompanySize         FilterKey = "company_size"
	FilterFinancialInstrument FilterKey = "financial_instrument"
	FilterProgramStatus       FilterKey = "program_status"
	FilterEligibleApplicants  FilterKey = "eligible_applicants"
	FilterEligibleSectors     FilterKey = "eligible_sectors"
	FilterTargetStages        FilterKey = "target_stages"
)

// FilterConfig 过滤器声明：目标字段、谓词类型、可接受的枚举集合。
// Contains=true 表示数组字段的交集谓词（containment），否则为标量 IN 谓词（membership）。
type FilterConfig struct {
	Field    string
	Contains bool
	Enum     []string
}

// FilterConfigs 全部过滤器声明。目标字段均位于项目主表。
var FilterConfigs = map[FilterKey]FilterConfig{
	FilterCountries: {
		Field:    "overview_countries",
		Contains: true,
		Enum:     CountryValues,
	},
	FilterCompanySize: {
		Field:    "overview_company_size",
		Contains: true,
		Enum:     CompanySizeValues,
	},
	FilterFinancialInstrument: {
		Field:    "overview_financial_instrument",
		Contains: false,
		Enum:     FinancialInstrumentValues,
	},
	FilterProgramStatus: {
		Field:    "program_status",
		Contains: false,
		Enum:     ProgramStatusValues,
	},
	FilterEligibleApplicants: {
		Field:    "overview_eligible_applicants_short",
		Contains: true,
		Enum:     EligibleApplicantValues,
	},
	FilterEligibleSectors: {
		Field:    "overview_eligible_sectors_short",
		Contains: true,
		Enum:     EligibleSectorValues,
	},
	FilterTargetStages: {
		Field:    "overview_target_stages_short",
		Contains: true,
		Enum:     TargetStageValues,
	},
}

// ActiveFilters 入口校验后的过滤器集合。
type ActiveFilters map[FilterKey][]string

var filterValuePattern = regexp.MustCompile(`[^a-zA-Z0-9 _-]`)

// SanitizeFilterValues 去掉非法字符后再按枚举校验。
func SanitizeFilterValues(key FilterKey, values []string) []string {
	cfg, ok := FilterConfigs[key]
	if !ok {
		return nil
	}
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		cleaned = append(cleaned, filterValuePattern.ReplaceAllString(v, ""))
	}
	return ValidateEnumValues(cleaned, cfg.Enum)
}

// SanitizeFilters 从原始键值对构造 ActiveFilters；未声明的键与空集合被丢弃。
func SanitizeFilters(raw map[string][]string) ActiveFilters {
	out := ActiveFilters{}
	for key := range FilterConfigs {
		values := raw[string(key)]
		if len(values) == 0 {
			continue
		}
		if valid := SanitizeFilterValues(key, values); len(valid) > 0 {
			out[key] = valid
		}
	}
	return out
}

// Predicate 组合到查询上的单个过滤谓词。
type Predicate struct {
	Field    string
	Values   []string
	Contains bool
}

// BuildPredicates 由 ActiveFilters 构造谓词列表。空集合的过滤器是 no-op。
// 谓词之间以及与检索结果集之间均为 AND 关系。
func BuildPredicates(filters ActiveFilters) []Predicate {
	var preds []Predicate
	for key, cfg := range FilterConfigs {
		values := filters[key]
		if len(values) == 0 {
			continue
		}
		preds = append(preds, Predicate{
			Field:    cfg.Field,
			Values:   values,
			Contains: cfg.Contains,
		})
	}
	return preds
}
