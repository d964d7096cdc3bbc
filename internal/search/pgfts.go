package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFallback implements Searcher using PostgreSQL ILIKE matching as a
// fallback when Meilisearch is unavailable.
type PgFallback struct {
	db *sql.DB
}

// NewPgFallback creates a PostgreSQL fallback searcher.
func NewPgFallback(db *sql.DB) *PgFallback {
	return &PgFallback{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFallback) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across workspaces, chat_messages, and
// file_objects using case-insensitive substring matching.
func (p *PgFallback) Search(q Query) ([]Result, int, error) {
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

	pattern := "%" + escapeLike(q.Text) + "%"
	args := []any{pattern}
	argN := 2

	scopeClause := func(column string) string {
		if q.FilterWorkspaceID != "" {
			clause := fmt.Sprintf(" AND %s = $%d", column, argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
			return clause
		}
		if len(q.WorkspaceIDs) > 0 {
			placeholders := make([]string, len(q.WorkspaceIDs))
			for i, id := range q.WorkspaceIDs {
				placeholders[i] = fmt.Sprintf("$%d", argN)
				args = append(args, id)
				argN++
			}
			return fmt.Sprintf(" AND %s IN (%s)", column, strings.Join(placeholders, ", "))
		}
		return ""
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultWorkspace {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'workspace'::text AS type, w.id, w.name AS title,
				coalesce(w.description, '') AS snippet,
				w.id AS workspace_id
			FROM workspaces w
			WHERE (w.name ILIKE $1 OR w.description ILIKE $1)%s`, scopeClause("w.id")))
	}

	if q.FilterType == "" || q.FilterType == ResultMessage {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'message'::text AS type, m.id, coalesce(u.display_name, '') AS title,
				m.body AS snippet,
				m.workspace_id
			FROM chat_messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.body ILIKE $1%s`, scopeClause("m.workspace_id")))
	}

	if q.FilterType == "" || q.FilterType == ResultFile {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'file'::text AS type, f.id, f.name AS title,
				coalesce(f.content_type, '') AS snippet,
				f.workspace_id
			FROM file_objects f
			WHERE f.name ILIKE $1%s`, scopeClause("f.workspace_id")))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, workspace_id
		FROM (%s) sub
		ORDER BY type, title
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.WorkspaceID); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFallback) LoadAllRecords(ctx context.Context) ([]WorkspaceRecord, []MessageRecord, []FileRecord, error) {
	wsRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, '')
		FROM workspaces
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load workspaces: %w", err)
	}
	defer wsRows.Close()

	workspaces := make([]WorkspaceRecord, 0)
	for wsRows.Next() {
		var w WorkspaceRecord
		if err := wsRows.Scan(&w.ID, &w.Name, &w.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}
	if err := wsRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate workspaces: %w", err)
	}

	msgRows, err := p.db.QueryContext(ctx, `
		SELECT m.id, m.body, coalesce(u.display_name, ''), m.workspace_id
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.recipient_id IS NULL
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load messages: %w", err)
	}
	defer msgRows.Close()

	messages := make([]MessageRecord, 0)
	for msgRows.Next() {
		var m MessageRecord
		if err := msgRows.Scan(&m.ID, &m.Body, &m.SenderName, &m.WorkspaceID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate messages: %w", err)
	}

	fileRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(content_type, ''), workspace_id
		FROM file_objects
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load files: %w", err)
	}
	defer fileRows.Close()

	files := make([]FileRecord, 0)
	for fileRows.Next() {
		var f FileRecord
		if err := fileRows.Scan(&f.ID, &f.Name, &f.ContentType, &f.WorkspaceID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := fileRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate files: %w", err)
	}

	return workspaces, messages, files, nil
}
