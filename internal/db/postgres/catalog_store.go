package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"fundseek/internal/domain/catalog"
)

// translationColumns / programColumns: joined select list 的固定列序，
// 与 scanJoinedRow 一一对应。
const translationColumns = `t.id, t.language, t.permalink, t.title, t.introduction_short, t.md_content,
	t.overview_program_acronym_id, t.overview_program_title_without_acronym, t.overview_allocated_budget,
	t.overview_maximum_funding_amount, t.overview_beneficiary, t.overview_deadline, t.overview_open_until,
	t.overview_region, t.overview_eligible_applicants_long, t.overview_eligible_sectors_long,
	t.provider_funding_body, t.provider_managed_by, t.provider_additional_partners,
	t.seo_title, t.seo_meta_description, t.seo_keywords, t.success, t.updated_at`

const programColumns = `m.id, m.program_status, m.provider_program_level, m.overview_award_channel,
	m.overview_countries, m.overview_company_size, m.overview_eligible_applicants_short,
	m.overview_eligible_sectors_short, m.overview_target_stages_short, m.overview_financial_instrument,
	m.overview_single_consortium, m.featured_priority, m.success, m.updated_at`

// CatalogStore PostgreSQL 目录存储。主表与翻译表由采集管道维护，这里只读。
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore 创建目录存储
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// SearchTranslations 执行组合好的目录查询，返回一页 join 结果加分页前的精确总数。
// 三条路径：向量相似度（候选上限在过滤与分页之前生效）、全文检索、无查询浏览。
// 谓词渲染与分页对三条路径一致。
func (s *CatalogStore) SearchTranslations(ctx context.Context, q *catalog.Query) ([]catalog.JoinedRow, int, error) {
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var (
		prefix  string // 可选 CTE
		from    string
		conds   []string
		orderBy string
	)

	switch {
	case q.Vector != nil:
		// 相似度候选集：语言内、带向量、过阈值，按距离取前 MatchCount 条
		vec := arg(*q.Vector)
		prefix = fmt.Sprintf(`WITH candidates AS (
			SELECT ft.id, ft.language, ft.embedding <=> %s AS distance
			FROM funding_translations ft
			WHERE ft.language = %s AND ft.embedding IS NOT NULL
				AND 1 - (ft.embedding <=> %s) > %s
			ORDER BY distance ASC
			LIMIT %d
		) `, vec, arg(q.Language), vec, arg(q.Threshold), q.MatchCount)
		from = `FROM candidates c
			JOIN funding_translations t ON t.id = c.id AND t.language = c.language
			JOIN funding_main m ON m.id = t.id`
		orderBy = "c.distance ASC"
	case q.Text != "":
		tsq := fmt.Sprintf("websearch_to_tsquery('simple', %s)", arg(q.Text))
		from = "FROM funding_translations t JOIN funding_main m ON m.id = t.id"
		conds = append(conds, "t.language = "+arg(q.Language))
		conds = append(conds, "t.fts @@ "+tsq)
		orderBy = fmt.Sprintf("ts_rank(t.fts, %s) DESC, m.featured_priority DESC", tsq)
	default:
		from = "FROM funding_translations t JOIN funding_main m ON m.id = t.id"
		conds = append(conds, "t.language = "+arg(q.Language))
		orderBy = "m.featured_priority DESC, t.updated_at DESC"
	}

	for _, p := range q.Predicates {
		if p.Contains {
			// 数组字段与过滤值集合有交集即可（值之间 OR）
			conds = append(conds, fmt.Sprintf("m.%s && %s", p.Field, arg(pq.Array(p.Values))))
		} else {
			conds = append(conds, fmt.Sprintf("m.%s = ANY(%s)", p.Field, arg(pq.Array(p.Values))))
		}
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("%sSELECT COUNT(*) %s %s", prefix, from, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count translations: %w", err)
	}

	pageQuery := fmt.Sprintf("%sSELECT %s, %s %s %s ORDER BY %s OFFSET %s LIMIT %s",
		prefix, translationColumns, programColumns, from, where, orderBy, arg(q.Offset), arg(q.Limit))

	rows, err := s.db.QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search translations: %w", err)
	}
	defer rows.Close()

	var out []catalog.JoinedRow
	for rows.Next() {
		row, err := scanJoinedRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// GetByPermalink 任意语言下按 permalink 取 join 行，不存在时返回 nil。
func (s *CatalogStore) GetByPermalink(ctx context.Context, permalink string) (*catalog.JoinedRow, error) {
	query := fmt.Sprintf(`SELECT %s, %s
		FROM funding_translations t JOIN funding_main m ON m.id = t.id
		WHERE t.permalink = $1 LIMIT 1`, translationColumns, programColumns)

	rows, err := s.db.QueryContext(ctx, query, permalink)
	if err != nil {
		return nil, fmt.Errorf("get by permalink: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := scanJoinedRow(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListByPermalinks 批量按 permalink 取 join 行。
func (s *CatalogStore) ListByPermalinks(ctx context.Context, permalinks []string) ([]catalog.JoinedRow, error) {
	if len(permalinks) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s, %s
		FROM funding_translations t JOIN funding_main m ON m.id = t.id
		WHERE t.permalink = ANY($1)`, translationColumns, programColumns)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(permalinks))
	if err != nil {
		return nil, fmt.Errorf("list by permalinks: %w", err)
	}
	defer rows.Close()

	var out []catalog.JoinedRow
	for rows.Next() {
		row, err := scanJoinedRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FindProgramID 任意语言下把 permalink 解析为项目 id。
func (s *CatalogStore) FindProgramID(ctx context.Context, permalink string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM funding_translations WHERE permalink = $1 LIMIT 1`, permalink).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find program id: %w", err)
	}
	return id, true, nil
}

// ListCombinations 取项目的全部 (id, permalink, language) 组合。
func (s *CatalogStore) ListCombinations(ctx context.Context, programID string) ([]catalog.Combination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, permalink, language FROM funding_translations WHERE id = $1`, programID)
	if err != nil {
		return nil, fmt.Errorf("list combinations: %w", err)
	}
	defer rows.Close()

	var out []catalog.Combination
	for rows.Next() {
		var c catalog.Combination
		if err := rows.Scan(&c.ID, &c.Permalink, &c.Language); err != nil {
			return nil, fmt.Errorf("scan combination: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetTranslation 取 (projectID, language) 的完整翻译行，不存在时返回 nil。
func (s *CatalogStore) GetTranslation(ctx context.Context, programID, language string) (*catalog.Translation, error) {
	query := fmt.Sprintf(`SELECT %s FROM funding_translations t WHERE t.id = $1 AND t.language = $2`,
		translationColumns)

	rows, err := s.db.QueryContext(ctx, query, programID, language)
	if err != nil {
		return nil, fmt.Errorf("get translation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var tr catalog.Translation
	if err := scanTranslation(rows, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func scanTranslation(rows *sql.Rows, tr *catalog.Translation) error {
	if err := rows.Scan(
		&tr.ID, &tr.Language, &tr.Permalink, &tr.Title, &tr.IntroductionShort, &tr.MDContent,
		&tr.OverviewProgramAcronymID, &tr.OverviewProgramTitleWithoutAcronym, &tr.OverviewAllocatedBudget,
		&tr.OverviewMaximumFundingAmount, &tr.OverviewBeneficiary, &tr.OverviewDeadline, &tr.OverviewOpenUntil,
		&tr.OverviewRegion, &tr.OverviewEligibleApplicantsLong, &tr.OverviewEligibleSectorsLong,
		&tr.ProviderFundingBody, &tr.ProviderManagedBy, &tr.ProviderAdditionalPartners,
		&tr.SEOTitle, &tr.SEOMetaDescription, pq.Array(&tr.SEOKeywords), &tr.Success, &tr.UpdatedAt,
	); err != nil {
		return fmt.Errorf("scan translation: %w", err)
	}
	return nil
}

func scanJoinedRow(rows *sql.Rows) (catalog.JoinedRow, error) {
	var (
		tr catalog.Translation
		pr catalog.Program
	)
	if err := rows.Scan(
		&tr.ID, &tr.Language, &tr.Permalink, &tr.Title, &tr.IntroductionShort, &tr.MDContent,
		&tr.OverviewProgramAcronymID, &tr.OverviewProgramTitleWithoutAcronym, &tr.OverviewAllocatedBudget,
		&tr.OverviewMaximumFundingAmount, &tr.OverviewBeneficiary, &tr.OverviewDeadline, &tr.OverviewOpenUntil,
		&tr.OverviewRegion, &tr.OverviewEligibleApplicantsLong, &tr.OverviewEligibleSectorsLong,
		&tr.ProviderFundingBody, &tr.ProviderManagedBy, &tr.ProviderAdditionalPartners,
		&tr.SEOTitle, &tr.SEOMetaDescription, pq.Array(&tr.SEOKeywords), &tr.Success, &tr.UpdatedAt,
		&pr.ID, &pr.ProgramStatus, &pr.ProviderProgramLevel, &pr.OverviewAwardChannel,
		pq.Array(&pr.OverviewCountries), pq.Array(&pr.OverviewCompanySize),
		pq.Array(&pr.OverviewEligibleApplicantsShort), pq.Array(&pr.OverviewEligibleSectorsShort),
		pq.Array(&pr.OverviewTargetStagesShort), &pr.OverviewFinancialInstrument,
		&pr.OverviewSingleConsortium, &pr.FeaturedPriority, &pr.Success, &pr.UpdatedAt,
	); err != nil {
		return catalog.JoinedRow{}, fmt.Errorf("scan joined row: %w", err)
	}
	return catalog.JoinedRow{Translation: tr, Program: pr}, nil
}
