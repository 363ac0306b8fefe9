package catalog

import (
	"encoding/json"
	"time"
)

// Program 语言无关的资助项目主记录（由采集管道维护，本服务只读）。
type Program struct {
	ID                              string    `json:"id"`
	ProgramStatus                   string    `json:"program_status"`
	ProviderProgramLevel            string    `json:"provider_program_level"`
	OverviewAwardChannel            string    `json:"overview_award_channel"`
	OverviewCountries               []string  `json:"overview_countries"`
	OverviewCompanySize             []string  `json:"overview_company_size"`
	OverviewEligibleApplicantsShort []string  `json:"overview_eligible_applicants_short"`
	OverviewEligibleSectorsShort    []string  `json:"overview_eligible_sectors_short"`
	OverviewTargetStagesShort       []string  `json:"overview_target_stages_short"`
	OverviewFinancialInstrument     string    `json:"overview_financial_instrument"`
	OverviewSingleConsortium        string    `json:"overview_single_consortium"`
	FeaturedPriority                int       `json:"featured_priority"`
	Success                         bool      `json:"success"`
	UpdatedAt                       time.Time `json:"updated_at"`
}

// Translation 项目的单语言内容投影。(id, language) 唯一；permalink 在语言内唯一。
type Translation struct {
	ID                                 string    `json:"id"`
	Language                           string    `json:"language"`
	Permalink                          string    `json:"permalink"`
	Title                              string    `json:"title"`
	IntroductionShort                  string    `json:"introduction_short"`
	MDContent                          string    `json:"md_content"`
	OverviewProgramAcronymID           string    `json:"overview_program_acronym_id"`
	OverviewProgramTitleWithoutAcronym string    `json:"overview_program_title_without_acronym"`
	OverviewAllocatedBudget            string    `json:"overview_allocated_budget"`
	OverviewMaximumFundingAmount       string    `json:"overview_maximum_funding_amount"`
	OverviewBeneficiary                string    `json:"overview_beneficiary"`
	OverviewDeadline                   string    `json:"overview_deadline"`
	OverviewOpenUntil                  string    `json:"overview_open_until"`
	OverviewRegion                     string    `json:"overview_region"`
	OverviewEligibleApplicantsLong     string    `json:"overview_eligible_applicants_long"`
	OverviewEligibleSectorsLong        string    `json:"overview_eligible_sectors_long"`
	ProviderFundingBody                string    `json:"provider_funding_body"`
	ProviderManagedBy                  string    `json:"provider_managed_by"`
	ProviderAdditionalPartners         string    `json:"provider_additional_partners"`
	SEOTitle                           string    `json:"seo_title"`
	SEOMetaDescription                 string    `json:"seo_meta_description"`
	SEOKeywords                        []string  `json:"seo_keywords"`
	Success                            bool      `json:"success"`
	UpdatedAt                          time.Time `json:"updated_at"`
}

// JoinedRow 一条 Translation 连同其所属 Program（inner join 结果）。
type JoinedRow struct {
	Translation Translation
	Program     Program
}

// ProgramWithTranslation 扁平化后的检索结果，仅按查询构造，不落库。
// 字段冲突时（success / updated_at）以 Translation 为准。
type ProgramWithTranslation struct {
	Program
	Translation
}

// MarshalJSON 序列化为单层对象：先铺 Program 字段，再用 Translation 覆盖。
// 两个组成部分在 id / success / updated_at 上同名，标准的嵌入提升会把
// 同层冲突键整个丢掉，这里必须显式合并。
func (p ProgramWithTranslation) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for _, part := range []any{p.Program, p.Translation} {
		data, err := json.Marshal(part)
		if err != nil {
			return nil, err
		}
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON 两个组成部分各自认领自己的字段。合并后的冲突键
// （携带 Translation 的值）会同时写入两侧，读取侧的字段选择器
// 保证以 Translation 为准的语义。
func (p *ProgramWithTranslation) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &p.Program); err != nil {
		return err
	}
	return json.Unmarshal(data, &p.Translation)
}

// Flatten 合并 Program 与 Translation；Translation 字段覆盖同名字段。
func Flatten(row JoinedRow) ProgramWithTranslation {
	return ProgramWithTranslation{Program: row.Program, Translation: row.Translation}
}

// FlattenAll 批量扁平化。
func FlattenAll(rows []JoinedRow) []ProgramWithTranslation {
	out := make([]ProgramWithTranslation, len(rows))
	for i, row := range rows {
		out[i] = Flatten(row)
	}
	return out
}

// SearchResultItem 结果卡片/对话工具使用的紧凑投影。
type SearchResultItem struct {
	ID                           string    `json:"id"`
	Permalink                    string    `json:"permalink"`
	Title                        string    `json:"title"`
	IntroductionShort            string    `json:"introduction_short"`
	OverviewMaximumFundingAmount string    `json:"overview_maximum_funding_amount"`
	OverviewFinancialInstrument  string    `json:"overview_financial_instrument"`
	OverviewDeadline             string    `json:"overview_deadline"`
	OverviewOpenUntil            string    `json:"overview_open_until"`
	OverviewRegion               string    `json:"overview_region"`
	OverviewEligibleSectorsShort []string  `json:"overview_eligible_sectors_short"`
	OverviewBeneficiary          string    `json:"overview_beneficiary"`
	ProviderFundingBody          string    `json:"provider_funding_body"`
	ProviderManagedBy            string    `json:"provider_managed_by"`
	ProgramStatus                string    `json:"program_status"`
	FeaturedPriority             int       `json:"featured_priority"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

// PickSearchResultItem 从扁平结果中挑出卡片字段。
func PickSearchResultItem(p ProgramWithTranslation) SearchResultItem {
	return SearchResultItem{
		ID:                           p.Translation.ID,
		Permalink:                    p.Permalink,
		Title:                        p.Title,
		IntroductionShort:            p.IntroductionShort,
		OverviewMaximumFundingAmount: p.OverviewMaximumFundingAmount,
		OverviewFinancialInstrument:  p.OverviewFinancialInstrument,
		OverviewDeadline:             p.OverviewDeadline,
		OverviewOpenUntil:            p.OverviewOpenUntil,
		OverviewRegion:               p.OverviewRegion,
		OverviewEligibleSectorsShort: p.OverviewEligibleSectorsShort,
		OverviewBeneficiary:          p.OverviewBeneficiary,
		ProviderFundingBody:          p.ProviderFundingBody,
		ProviderManagedBy:            p.ProviderManagedBy,
		ProgramStatus:                p.Program.ProgramStatus,
		FeaturedPriority:             p.FeaturedPriority,
		UpdatedAt:                    p.Translation.UpdatedAt,
	}
}

// PickSearchResultItems 批量投影。
func PickSearchResultItems(items []ProgramWithTranslation) []SearchResultItem {
	out := make([]SearchResultItem, len(items))
	for i, p := range items {
		out[i] = PickSearchResultItem(p)
	}
	return out
}
