package catalog

// 过滤器可接受的枚举值集合。超出集合的值在入口处被丢弃而不是报错，
// 部分非法的过滤器退化为其合法子集。

var (
	ProgramStatusValues = []string{"open", "closed", "upcoming"}

	CountryValues = []string{
		"de", "at", "ch", "fr", "es", "it", "nl", "be", "pt", "eu",
	}

	CompanySizeValues = []string{"micro", "small", "medium", "large"}

	EligibleApplicantValues = []string{
		"company", "startup", "research_institution", "university",
		"public_body", "nonprofit", "individual",
	}

	EligibleSectorValues = []string{
		"agriculture", "construction", "digital", "energy", "health",
		"manufacturing", "mobility", "services", "tourism", "all",
	}

	FinancialInstrumentValues = []string{
		"grant", "loan", "guarantee", "equity", "tax_incentive", "voucher",
	}

	TargetStageValues = []string{
		"idea", "pre_seed", "seed", "growth", "established",
	}
)

// ValidateEnumValues 过滤出属于枚举集合的值，保持输入顺序。
func ValidateEnumValues(values, allowed []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range values {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
