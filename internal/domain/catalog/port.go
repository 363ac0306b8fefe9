package catalog

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// Query is a fully composed catalog search: exactly one of Vector / Text is
// set for search-backed queries; both empty means "browse all translations in
// Language". Predicates are conjoined with the search step's result set.
type Query struct {
	Vector     *pgvector.Vector // similarity search when non-nil
	Text       string           // full-text search when non-empty and Vector is nil
	Language   string
	Threshold  float64
	MatchCount int
	Predicates []Predicate
	Offset     int
	Limit      int
}

// Store defines the relational capabilities the Finder and Resolver consume.
type Store interface {
	// SearchTranslations returns one page of translations joined to their
	// program (inner join) plus the exact pre-pagination match count.
	SearchTranslations(ctx context.Context, q *Query) ([]JoinedRow, int, error)

	// GetByPermalink returns the joined row for a permalink in any language,
	// or nil when absent.
	GetByPermalink(ctx context.Context, permalink string) (*JoinedRow, error)

	// ListByPermalinks returns joined rows for the given permalinks.
	ListByPermalinks(ctx context.Context, permalinks []string) ([]JoinedRow, error)

	// FindProgramID resolves a permalink (any language) to its program id.
	FindProgramID(ctx context.Context, permalink string) (string, bool, error)

	// ListCombinations returns all (id, permalink, language) rows of a program.
	ListCombinations(ctx context.Context, programID string) ([]Combination, error)

	// GetTranslation returns the full translation row for (programID, language),
	// or nil when absent.
	GetTranslation(ctx context.Context, programID, language string) (*Translation, error)
}

// QueryEmbedder supplies a cached-or-generated embedding for a literal query
// string. ok=false means no vector is available and the caller must degrade.
type QueryEmbedder interface {
	QueryEmbedding(ctx context.Context, query string) (pgvector.Vector, bool)
}

// ResultCache is an optional whole-page cache in front of the Finder.
type ResultCache interface {
	Get(ctx context.Context, params *SearchParams) (*SearchPage, bool)
	Set(ctx context.Context, params *SearchParams, page *SearchPage)
}
