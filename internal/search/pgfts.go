package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over live posts with ts_rank ordering
// and ts_headline snippets.
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

	where := `p.fts @@ plainto_tsquery('simple', $1)
		AND (p.is_permanent OR p.expires_at IS NULL OR p.expires_at > NOW())`
	args := []any{q.Text}
	if q.Tag != "" {
		where += " AND p.tag = $2"
		args = append(args, q.Tag)
	}

	ctx := context.Background()

	var total int
	countSQL := `SELECT count(*) FROM posts p WHERE ` + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT p.id,
			ts_headline('simple', p.body, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			p.tag, u.nickname
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE %s
		ORDER BY ts_rank(p.fts, plainto_tsquery('simple', $1)) DESC, p.created_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Snippet, &r.Tag, &r.Nickname); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every live post for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.body, p.tag, u.nickname
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.is_permanent OR p.expires_at IS NULL OR p.expires_at > NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	defer rows.Close()

	posts := make([]PostRecord, 0)
	for rows.Next() {
		var rec PostRecord
		if err := rows.Scan(&rec.ID, &rec.Body, &rec.Tag, &rec.Nickname); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
