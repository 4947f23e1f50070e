package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const scrapbookColumns = `id, owner_id, title, description, page_width, page_height, page_size_name, is_public, tags, cover_image, view_count, created_at, updated_at`

func scanScrapbook(row interface{ Scan(...any) error }) (Scrapbook, error) {
	var item Scrapbook
	var tagsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Title,
		&item.Description,
		&item.PageWidth,
		&item.PageHeight,
		&item.PageSizeName,
		&item.IsPublic,
		&tagsRaw,
		&item.CoverImage,
		&item.ViewCount,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Scrapbook{}, err
	}
	if err := json.Unmarshal(tagsRaw, &item.Tags); err != nil {
		return Scrapbook{}, fmt.Errorf("decode scrapbook tags: %w", err)
	}
	return item, nil
}

// CreateScrapbook persists a new scrapbook together with its first page in
// one transaction, so a created scrapbook is never observable without a page.
func (s *PostgresStore) CreateScrapbook(ctx context.Context, item Scrapbook, firstPage Page) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create scrapbook: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertScrapbookTx(ctx, tx, item); err != nil {
		return err
	}
	if err := insertPageTx(ctx, tx, firstPage); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create scrapbook: %w", err)
	}
	return nil
}

func insertScrapbookTx(ctx context.Context, tx *sql.Tx, item Scrapbook) error {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal scrapbook tags: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scrapbooks (id, owner_id, title, description, page_width, page_height, page_size_name, is_public, tags, cover_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
	`, item.ID, item.OwnerID, item.Title, item.Description, item.PageWidth, item.PageHeight, item.PageSizeName, item.IsPublic, string(encodedTags), item.CoverImage)
	if err != nil {
		return fmt.Errorf("insert scrapbook: %w", err)
	}
	return nil
}

func insertPageTx(ctx context.Context, tx *sql.Tx, page Page) error {
	background, err := json.Marshal(page.Background)
	if err != nil {
		return fmt.Errorf("marshal page background: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (id, scrapbook_id, page_order, background, width, height)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`, page.ID, page.ScrapbookID, page.Order, string(background), page.Width, page.Height)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func insertElementTx(ctx context.Context, tx *sql.Tx, el Element) error {
	position, err := json.Marshal(el.Position)
	if err != nil {
		return fmt.Errorf("marshal element position: %w", err)
	}
	size, err := json.Marshal(el.Size)
	if err != nil {
		return fmt.Errorf("marshal element size: %w", err)
	}
	transform, err := json.Marshal(el.Transform)
	if err != nil {
		return fmt.Errorf("marshal element transform: %w", err)
	}
	properties, err := json.Marshal(el.Properties)
	if err != nil {
		return fmt.Errorf("marshal element properties: %w", err)
	}
	shadow, err := marshalNullable(el.Shadow)
	if err != nil {
		return fmt.Errorf("marshal element shadow: %w", err)
	}
	border, err := marshalNullable(el.Border)
	if err != nil {
		return fmt.Errorf("marshal element border: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO elements (id, page_id, element_type, position, size, transform, opacity, z_index, locked, visible, shadow, border, properties)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13::jsonb)
	`, el.ID, el.PageID, el.Type, string(position), string(size), string(transform), el.Opacity, el.ZIndex, el.Locked, el.Visible, shadow, border, string(properties))
	if err != nil {
		return fmt.Errorf("insert element: %w", err)
	}
	return nil
}

func marshalNullable(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *Shadow:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *Border:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func (s *PostgresStore) GetScrapbook(ctx context.Context, scrapbookID string) (Scrapbook, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scrapbookColumns+`
		FROM scrapbooks
		WHERE id=$1
	`, scrapbookID)
	return scanScrapbook(row)
}

// GetAggregate loads the scrapbook with its full page/element tree. Pages
// and elements are fetched in two set-based queries and ordered here, so the
// sort contract lives in one place instead of being spread over SQL clauses.
func (s *PostgresStore) GetAggregate(ctx context.Context, scrapbookID string) (Aggregate, error) {
	scrapbook, err := s.GetScrapbook(ctx, scrapbookID)
	if err != nil {
		return Aggregate{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scrapbook_id, page_order, background, width, height
		FROM pages
		WHERE scrapbook_id=$1
	`, scrapbookID)
	if err != nil {
		return Aggregate{}, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := make([]PageWithElements, 0)
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return Aggregate{}, err
		}
		pages = append(pages, PageWithElements{Page: page, Elements: make([]Element, 0)})
	}
	if err := rows.Err(); err != nil {
		return Aggregate{}, fmt.Errorf("iterate pages: %w", err)
	}

	elementRows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.page_id, e.element_type, e.position, e.size, e.transform, e.opacity, e.z_index, e.locked, e.visible, e.shadow, e.border, e.properties
		FROM elements e
		JOIN pages p ON p.id = e.page_id
		WHERE p.scrapbook_id=$1
	`, scrapbookID)
	if err != nil {
		return Aggregate{}, fmt.Errorf("list elements: %w", err)
	}
	defer elementRows.Close()

	byPage := make(map[string][]Element)
	for elementRows.Next() {
		el, err := scanElement(elementRows)
		if err != nil {
			return Aggregate{}, err
		}
		byPage[el.PageID] = append(byPage[el.PageID], el)
	}
	if err := elementRows.Err(); err != nil {
		return Aggregate{}, fmt.Errorf("iterate elements: %w", err)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })
	for i := range pages {
		elements := byPage[pages[i].ID]
		sort.Slice(elements, func(a, b int) bool { return elements[a].ZIndex < elements[b].ZIndex })
		if elements != nil {
			pages[i].Elements = elements
		}
	}

	return Aggregate{Scrapbook: scrapbook, Pages: pages}, nil
}

func scanPage(row interface{ Scan(...any) error }) (Page, error) {
	var page Page
	var backgroundRaw []byte
	if err := row.Scan(&page.ID, &page.ScrapbookID, &page.Order, &backgroundRaw, &page.Width, &page.Height); err != nil {
		return Page{}, fmt.Errorf("scan page: %w", err)
	}
	if err := json.Unmarshal(backgroundRaw, &page.Background); err != nil {
		return Page{}, fmt.Errorf("decode page background: %w", err)
	}
	return page, nil
}

func scanElement(row interface{ Scan(...any) error }) (Element, error) {
	var el Element
	var positionRaw, sizeRaw, transformRaw, propertiesRaw []byte
	var shadowRaw, borderRaw []byte
	if err := row.Scan(
		&el.ID,
		&el.PageID,
		&el.Type,
		&positionRaw,
		&sizeRaw,
		&transformRaw,
		&el.Opacity,
		&el.ZIndex,
		&el.Locked,
		&el.Visible,
		&shadowRaw,
		&borderRaw,
		&propertiesRaw,
	); err != nil {
		return Element{}, fmt.Errorf("scan element: %w", err)
	}
	if err := json.Unmarshal(positionRaw, &el.Position); err != nil {
		return Element{}, fmt.Errorf("decode element position: %w", err)
	}
	if err := json.Unmarshal(sizeRaw, &el.Size); err != nil {
		return Element{}, fmt.Errorf("decode element size: %w", err)
	}
	if err := json.Unmarshal(transformRaw, &el.Transform); err != nil {
		return Element{}, fmt.Errorf("decode element transform: %w", err)
	}
	if err := json.Unmarshal(propertiesRaw, &el.Properties); err != nil {
		return Element{}, fmt.Errorf("decode element properties: %w", err)
	}
	if len(shadowRaw) > 0 {
		el.Shadow = &Shadow{}
		if err := json.Unmarshal(shadowRaw, el.Shadow); err != nil {
			return Element{}, fmt.Errorf("decode element shadow: %w", err)
		}
	}
	if len(borderRaw) > 0 {
		el.Border = &Border{}
		if err := json.Unmarshal(borderRaw, el.Border); err != nil {
			return Element{}, fmt.Errorf("decode element border: %w", err)
		}
	}
	return el, nil
}

// InsertAggregate writes an entire scrapbook tree in one transaction. Used
// by duplication: either the whole copy lands or none of it does.
func (s *PostgresStore) InsertAggregate(ctx context.Context, agg Aggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert aggregate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertScrapbookTx(ctx, tx, agg.Scrapbook); err != nil {
		return err
	}
	for _, page := range agg.Pages {
		if err := insertPageTx(ctx, tx, page.Page); err != nil {
			return err
		}
		for _, el := range page.Elements {
			if err := insertElementTx(ctx, tx, el); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateScrapbook(ctx context.Context, scrapbookID string, patch ScrapbookPatch) (Scrapbook, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{scrapbookID}
	argN := 2

	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, argN))
		args = append(args, value)
		argN++
	}
	if patch.Title != nil {
		appendSet("title", *patch.Title)
	}
	if patch.Description != nil {
		appendSet("description", *patch.Description)
	}
	if patch.IsPublic != nil {
		appendSet("is_public", *patch.IsPublic)
	}
	if patch.Tags != nil {
		encoded, err := json.Marshal(*patch.Tags)
		if err != nil {
			return Scrapbook{}, fmt.Errorf("marshal scrapbook tags: %w", err)
		}
		sets = append(sets, fmt.Sprintf("tags=$%d::jsonb", argN))
		args = append(args, string(encoded))
		argN++
	}
	if patch.CoverImage != nil {
		appendSet("cover_image", *patch.CoverImage)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE scrapbooks
		SET %s
		WHERE id=$1
		RETURNING %s
	`, strings.Join(sets, ", "), scrapbookColumns), args...)
	return scanScrapbook(row)
}

// DeleteScrapbook removes the scrapbook; pages, elements, comments, likes
// and collaborator rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteScrapbook(ctx context.Context, scrapbookID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scrapbooks WHERE id=$1`, scrapbookID)
	if err != nil {
		return fmt.Errorf("delete scrapbook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete scrapbook rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListScrapbooksByOwner(ctx context.Context, ownerID string) ([]Scrapbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scrapbookColumns+`
		FROM scrapbooks
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list scrapbooks by owner: %w", err)
	}
	defer rows.Close()

	items := make([]Scrapbook, 0)
	for rows.Next() {
		item, err := scanScrapbook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scrapbook: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrapbooks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListScrapbooks(ctx context.Context) ([]Scrapbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scrapbookColumns+`
		FROM scrapbooks
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scrapbooks: %w", err)
	}
	defer rows.Close()

	items := make([]Scrapbook, 0)
	for rows.Next() {
		item, err := scanScrapbook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scrapbook: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrapbooks: %w", err)
	}
	return items, nil
}

// Pages

func (s *PostgresStore) GetPage(ctx context.Context, pageID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scrapbook_id, page_order, background, width, height
		FROM pages
		WHERE id=$1
	`, pageID)
	return scanPage(row)
}

// InsertPage appends a page at the end of the scrapbook's display order and
// returns it with the assigned order value.
func (s *PostgresStore) InsertPage(ctx context.Context, page Page) (Page, error) {
	background, err := json.Marshal(page.Background)
	if err != nil {
		return Page{}, fmt.Errorf("marshal page background: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO pages (id, scrapbook_id, page_order, background, width, height)
		VALUES ($1, $2, (SELECT COALESCE(MAX(page_order), 0) + 1 FROM pages WHERE scrapbook_id=$2), $3::jsonb, $4, $5)
		RETURNING page_order
	`, page.ID, page.ScrapbookID, string(background), page.Width, page.Height).Scan(&page.Order)
	if err != nil {
		return Page{}, fmt.Errorf("insert page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, pageID string, patch PagePatch) (Page, error) {
	sets := []string{}
	args := []any{pageID}
	argN := 2

	if patch.Background != nil {
		encoded, err := json.Marshal(patch.Background)
		if err != nil {
			return Page{}, fmt.Errorf("marshal page background: %w", err)
		}
		sets = append(sets, fmt.Sprintf("background=$%d::jsonb", argN))
		args = append(args, string(encoded))
		argN++
	}
	if patch.Width != nil {
		sets = append(sets, fmt.Sprintf("width=$%d", argN))
		args = append(args, *patch.Width)
		argN++
	}
	if patch.Height != nil {
		sets = append(sets, fmt.Sprintf("height=$%d", argN))
		args = append(args, *patch.Height)
		argN++
	}
	if len(sets) == 0 {
		return s.GetPage(ctx, pageID)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE pages
		SET %s
		WHERE id=$1
		RETURNING id, scrapbook_id, page_order, background, width, height
	`, strings.Join(sets, ", ")), args...)
	return scanPage(row)
}

func (s *PostgresStore) DeletePage(ctx context.Context, pageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id=$1`, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete page rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) PageCount(ctx context.Context, scrapbookID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE scrapbook_id=$1`, scrapbookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// Elements

func (s *PostgresStore) GetElement(ctx context.Context, elementID string) (Element, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, element_type, position, size, transform, opacity, z_index, locked, visible, shadow, border, properties
		FROM elements
		WHERE id=$1
	`, elementID)
	return scanElement(row)
}

// InsertElement places the element on top of the page's paint order unless
// the caller supplied a non-negative z-index.
func (s *PostgresStore) InsertElement(ctx context.Context, el Element) (Element, error) {
	if el.ZIndex < 0 {
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(z_index), 0) + 1 FROM elements WHERE page_id=$1
		`, el.PageID).Scan(&el.ZIndex)
		if err != nil {
			return Element{}, fmt.Errorf("next z-index: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Element{}, fmt.Errorf("begin insert element: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertElementTx(ctx, tx, el); err != nil {
		return Element{}, err
	}
	if err := tx.Commit(); err != nil {
		return Element{}, fmt.Errorf("commit insert element: %w", err)
	}
	return el, nil
}

func (s *PostgresStore) UpdateElement(ctx context.Context, elementID string, patch ElementPatch) (Element, error) {
	sets := []string{}
	args := []any{elementID}
	argN := 2

	appendJSON := func(column string, value any) error {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal element %s: %w", column, err)
		}
		sets = append(sets, fmt.Sprintf("%s=$%d::jsonb", column, argN))
		args = append(args, string(encoded))
		argN++
		return nil
	}
	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, argN))
		args = append(args, value)
		argN++
	}

	if patch.Position != nil {
		if err := appendJSON("position", patch.Position); err != nil {
			return Element{}, err
		}
	}
	if patch.Size != nil {
		if err := appendJSON("size", patch.Size); err != nil {
			return Element{}, err
		}
	}
	if patch.Transform != nil {
		if err := appendJSON("transform", patch.Transform); err != nil {
			return Element{}, err
		}
	}
	if patch.Opacity != nil {
		appendSet("opacity", *patch.Opacity)
	}
	if patch.ZIndex != nil {
		appendSet("z_index", *patch.ZIndex)
	}
	if patch.Locked != nil {
		appendSet("locked", *patch.Locked)
	}
	if patch.Visible != nil {
		appendSet("visible", *patch.Visible)
	}
	if patch.Shadow != nil {
		if err := appendJSON("shadow", patch.Shadow); err != nil {
			return Element{}, err
		}
	}
	if patch.Border != nil {
		if err := appendJSON("border", patch.Border); err != nil {
			return Element{}, err
		}
	}
	if patch.Properties != nil {
		if err := appendJSON("properties", patch.Properties); err != nil {
			return Element{}, err
		}
	}
	if len(sets) == 0 {
		return s.GetElement(ctx, elementID)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE elements
		SET %s
		WHERE id=$1
		RETURNING id, page_id, element_type, position, size, transform, opacity, z_index, locked, visible, shadow, border, properties
	`, strings.Join(sets, ", ")), args...)
	return scanElement(row)
}

func (s *PostgresStore) DeleteElement(ctx context.Context, elementID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM elements WHERE id=$1`, elementID)
	if err != nil {
		return fmt.Errorf("delete element: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete element rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Collaborators

func (s *PostgresStore) GetCollaborator(ctx context.Context, scrapbookID, userID string) (*Collaborator, error) {
	var item Collaborator
	err := s.db.QueryRowContext(ctx, `
		SELECT scrapbook_id, user_id, role, created_at
		FROM collaborators
		WHERE scrapbook_id=$1 AND user_id=$2
	`, scrapbookID, userID).Scan(&item.ScrapbookID, &item.UserID, &item.Role, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collaborator: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListCollaborators(ctx context.Context, scrapbookID string) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scrapbook_id, user_id, role, created_at
		FROM collaborators
		WHERE scrapbook_id=$1
		ORDER BY created_at ASC
	`, scrapbookID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]Collaborator, 0)
	for rows.Next() {
		var item Collaborator
		if err := rows.Scan(&item.ScrapbookID, &item.UserID, &item.Role, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertCollaborator(ctx context.Context, collab Collaborator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collaborators (scrapbook_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (scrapbook_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, collab.ScrapbookID, collab.UserID, collab.Role)
	if err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveCollaborator(ctx context.Context, scrapbookID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM collaborators WHERE scrapbook_id=$1 AND user_id=$2
	`, scrapbookID, userID)
	if err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove collaborator rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Engagement

// IncrementViewCount bumps the counter server-side so concurrent viewers
// never lose updates.
func (s *PostgresStore) IncrementViewCount(ctx context.Context, scrapbookID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrapbooks SET view_count = view_count + 1 WHERE id=$1
	`, scrapbookID)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return nil
}

// ToggleLike removes the like row if present, otherwise inserts one. The
// unique (scrapbook_id, user_id) key makes a racing duplicate insert a no-op.
func (s *PostgresStore) ToggleLike(ctx context.Context, scrapbookID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM likes WHERE scrapbook_id=$1 AND user_id=$2
	`, scrapbookID, userID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete like rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO likes (scrapbook_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (scrapbook_id, user_id) DO NOTHING
	`, scrapbookID, userID); err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) HasLiked(ctx context.Context, scrapbookID, userID string) (bool, error) {
	var liked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM likes WHERE scrapbook_id=$1 AND user_id=$2)
	`, scrapbookID, userID).Scan(&liked)
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	return liked, nil
}

func (s *PostgresStore) LikeCount(ctx context.Context, scrapbookID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE scrapbook_id=$1`, scrapbookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}

// Comments

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	position, err := marshalNullablePosition(comment.Position)
	if err != nil {
		return fmt.Errorf("marshal comment position: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (id, scrapbook_id, page_id, user_id, content, position, resolved)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::jsonb, $7)
	`, comment.ID, comment.ScrapbookID, comment.PageID, comment.UserID, comment.Content, position, comment.Resolved)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func marshalNullablePosition(p *Position) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scrapbook_id, COALESCE(page_id, ''), user_id, content, position, resolved, created_at
		FROM comments
		WHERE id=$1
	`, commentID)
	return scanComment(row)
}

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	var positionRaw []byte
	err := row.Scan(&item.ID, &item.ScrapbookID, &item.PageID, &item.UserID, &item.Content, &positionRaw, &item.Resolved, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	if len(positionRaw) > 0 {
		item.Position = &Position{}
		if err := json.Unmarshal(positionRaw, item.Position); err != nil {
			return Comment{}, fmt.Errorf("decode comment position: %w", err)
		}
	}
	return item, nil
}

// ListComments returns the scrapbook's comments newest-first, optionally
// narrowed to one page.
func (s *PostgresStore) ListComments(ctx context.Context, scrapbookID, pageID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scrapbook_id, COALESCE(page_id, ''), user_id, content, position, resolved, created_at
		FROM comments
		WHERE scrapbook_id=$1
		  AND ($2='' OR page_id=$2)
		ORDER BY created_at DESC
	`, scrapbookID, pageID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID string, patch CommentPatch) (Comment, error) {
	sets := []string{}
	args := []any{commentID}
	argN := 2

	if patch.Content != nil {
		sets = append(sets, fmt.Sprintf("content=$%d", argN))
		args = append(args, *patch.Content)
		argN++
	}
	if patch.Resolved != nil {
		sets = append(sets, fmt.Sprintf("resolved=$%d", argN))
		args = append(args, *patch.Resolved)
		argN++
	}
	if len(sets) == 0 {
		return s.GetComment(ctx, commentID)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE comments
		SET %s
		WHERE id=$1
		RETURNING id, scrapbook_id, COALESCE(page_id, ''), user_id, content, position, resolved, created_at
	`, strings.Join(sets, ", ")), args...)
	return scanComment(row)
}
