package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements scrapbook search using PostgreSQL full-text search as a
// fallback when Meilisearch is absent or unhealthy.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Search runs a ranked tsvector query over scrapbooks, restricted to public
// rows plus the caller's own.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `fts @@ plainto_tsquery('english', $1) AND (is_public OR owner_id = $2)`
	args := []any{q.Text, q.CallerID}

	var total int
	countSQL := `SELECT count(*) FROM scrapbooks WHERE ` + where
	if err := p.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, title,
			ts_headline('english', coalesce(description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			owner_id, is_public
		FROM scrapbooks
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.Query(dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search scrapbooks: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.OwnerID, &r.IsPublic); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}
