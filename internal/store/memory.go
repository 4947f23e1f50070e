package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation with the same not-found
// semantics as PostgresStore (sql.ErrNoRows). It backs the service tests.
type MemoryStore struct {
	mu            sync.Mutex
	scrapbooks    map[string]Scrapbook
	pages         map[string]Page
	elements      map[string]Element
	collaborators map[string]map[string]Collaborator
	likes         map[string]map[string]bool
	comments      map[string]Comment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scrapbooks:    make(map[string]Scrapbook),
		pages:         make(map[string]Page),
		elements:      make(map[string]Element),
		collaborators: make(map[string]map[string]Collaborator),
		likes:         make(map[string]map[string]bool),
		comments:      make(map[string]Comment),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneScrapbook(item Scrapbook) Scrapbook {
	out := item
	out.Tags = append([]string(nil), item.Tags...)
	return out
}

func clonePage(page Page) Page {
	out := page
	if page.Background.Gradient != nil {
		gradient := *page.Background.Gradient
		gradient.Stops = append([]GradientStop(nil), page.Background.Gradient.Stops...)
		out.Background.Gradient = &gradient
	}
	if page.Background.Pattern != nil {
		pattern := *page.Background.Pattern
		out.Background.Pattern = &pattern
	}
	return out
}

func cloneElement(el Element) Element {
	out := el
	if el.Shadow != nil {
		shadow := *el.Shadow
		out.Shadow = &shadow
	}
	if el.Border != nil {
		border := *el.Border
		out.Border = &border
	}
	out.Properties = cloneProperties(el.Properties)
	return out
}

func cloneProperties(props Properties) Properties {
	var out Properties
	if props.Photo != nil {
		v := *props.Photo
		out.Photo = &v
	}
	if props.Text != nil {
		v := *props.Text
		out.Text = &v
	}
	if props.Shape != nil {
		v := *props.Shape
		out.Shape = &v
	}
	if props.Sticker != nil {
		v := *props.Sticker
		out.Sticker = &v
	}
	if props.Gif != nil {
		v := *props.Gif
		out.Gif = &v
	}
	if props.QRCode != nil {
		v := *props.QRCode
		out.QRCode = &v
	}
	return out
}

func cloneComment(comment Comment) Comment {
	out := comment
	if comment.Position != nil {
		position := *comment.Position
		out.Position = &position
	}
	return out
}

func (s *MemoryStore) CreateScrapbook(_ context.Context, item Scrapbook, firstPage Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.scrapbooks[item.ID] = cloneScrapbook(item)
	s.pages[firstPage.ID] = clonePage(firstPage)
	return nil
}

func (s *MemoryStore) GetScrapbook(_ context.Context, scrapbookID string) (Scrapbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.scrapbooks[scrapbookID]
	if !ok {
		return Scrapbook{}, sql.ErrNoRows
	}
	return cloneScrapbook(item), nil
}

func (s *MemoryStore) GetAggregate(ctx context.Context, scrapbookID string) (Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.scrapbooks[scrapbookID]
	if !ok {
		return Aggregate{}, sql.ErrNoRows
	}

	pages := make([]PageWithElements, 0)
	for _, page := range s.pages {
		if page.ScrapbookID != scrapbookID {
			continue
		}
		withElements := PageWithElements{Page: clonePage(page), Elements: make([]Element, 0)}
		for _, el := range s.elements {
			if el.PageID == page.ID {
				withElements.Elements = append(withElements.Elements, cloneElement(el))
			}
		}
		sort.Slice(withElements.Elements, func(a, b int) bool {
			return withElements.Elements[a].ZIndex < withElements.Elements[b].ZIndex
		})
		pages = append(pages, withElements)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })

	return Aggregate{Scrapbook: cloneScrapbook(item), Pages: pages}, nil
}

func (s *MemoryStore) InsertAggregate(_ context.Context, agg Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	scrapbook := cloneScrapbook(agg.Scrapbook)
	scrapbook.CreatedAt = now
	scrapbook.UpdatedAt = now
	s.scrapbooks[scrapbook.ID] = scrapbook
	for _, page := range agg.Pages {
		s.pages[page.ID] = clonePage(page.Page)
		for _, el := range page.Elements {
			s.elements[el.ID] = cloneElement(el)
		}
	}
	return nil
}

func (s *MemoryStore) UpdateScrapbook(_ context.Context, scrapbookID string, patch ScrapbookPatch) (Scrapbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.scrapbooks[scrapbookID]
	if !ok {
		return Scrapbook{}, sql.ErrNoRows
	}
	if patch.Title != nil {
		item.Title = *patch.Title
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.IsPublic != nil {
		item.IsPublic = *patch.IsPublic
	}
	if patch.Tags != nil {
		item.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.CoverImage != nil {
		item.CoverImage = *patch.CoverImage
	}
	item.UpdatedAt = time.Now()
	s.scrapbooks[scrapbookID] = item
	return cloneScrapbook(item), nil
}

func (s *MemoryStore) DeleteScrapbook(_ context.Context, scrapbookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scrapbooks[scrapbookID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.scrapbooks, scrapbookID)
	for pageID, page := range s.pages {
		if page.ScrapbookID != scrapbookID {
			continue
		}
		for elementID, el := range s.elements {
			if el.PageID == pageID {
				delete(s.elements, elementID)
			}
		}
		delete(s.pages, pageID)
	}
	for commentID, comment := range s.comments {
		if comment.ScrapbookID == scrapbookID {
			delete(s.comments, commentID)
		}
	}
	delete(s.likes, scrapbookID)
	delete(s.collaborators, scrapbookID)
	return nil
}

func (s *MemoryStore) ListScrapbooksByOwner(_ context.Context, ownerID string) ([]Scrapbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Scrapbook, 0)
	for _, item := range s.scrapbooks {
		if item.OwnerID == ownerID {
			items = append(items, cloneScrapbook(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

func (s *MemoryStore) ListScrapbooks(_ context.Context) ([]Scrapbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Scrapbook, 0, len(s.scrapbooks))
	for _, item := range s.scrapbooks {
		items = append(items, cloneScrapbook(item))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

func (s *MemoryStore) GetPage(_ context.Context, pageID string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return Page{}, sql.ErrNoRows
	}
	return clonePage(page), nil
}

func (s *MemoryStore) InsertPage(_ context.Context, page Page) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxOrder := 0
	for _, existing := range s.pages {
		if existing.ScrapbookID == page.ScrapbookID && existing.Order > maxOrder {
			maxOrder = existing.Order
		}
	}
	page.Order = maxOrder + 1
	s.pages[page.ID] = clonePage(page)
	return clonePage(page), nil
}

func (s *MemoryStore) UpdatePage(_ context.Context, pageID string, patch PagePatch) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return Page{}, sql.ErrNoRows
	}
	if patch.Background != nil {
		page.Background = *patch.Background
	}
	if patch.Width != nil {
		page.Width = *patch.Width
	}
	if patch.Height != nil {
		page.Height = *patch.Height
	}
	s.pages[pageID] = page
	return clonePage(page), nil
}

func (s *MemoryStore) DeletePage(_ context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[pageID]; !ok {
		return sql.ErrNoRows
	}
	for elementID, el := range s.elements {
		if el.PageID == pageID {
			delete(s.elements, elementID)
		}
	}
	delete(s.pages, pageID)
	return nil
}

func (s *MemoryStore) PageCount(_ context.Context, scrapbookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, page := range s.pages {
		if page.ScrapbookID == scrapbookID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetElement(_ context.Context, elementID string) (Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[elementID]
	if !ok {
		return Element{}, sql.ErrNoRows
	}
	return cloneElement(el), nil
}

func (s *MemoryStore) InsertElement(_ context.Context, el Element) (Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el.ZIndex < 0 {
		maxZ := 0
		for _, existing := range s.elements {
			if existing.PageID == el.PageID && existing.ZIndex > maxZ {
				maxZ = existing.ZIndex
			}
		}
		el.ZIndex = maxZ + 1
	}
	s.elements[el.ID] = cloneElement(el)
	return cloneElement(el), nil
}

func (s *MemoryStore) UpdateElement(_ context.Context, elementID string, patch ElementPatch) (Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[elementID]
	if !ok {
		return Element{}, sql.ErrNoRows
	}
	if patch.Position != nil {
		el.Position = *patch.Position
	}
	if patch.Size != nil {
		el.Size = *patch.Size
	}
	if patch.Transform != nil {
		el.Transform = *patch.Transform
	}
	if patch.Opacity != nil {
		el.Opacity = *patch.Opacity
	}
	if patch.ZIndex != nil {
		el.ZIndex = *patch.ZIndex
	}
	if patch.Locked != nil {
		el.Locked = *patch.Locked
	}
	if patch.Visible != nil {
		el.Visible = *patch.Visible
	}
	if patch.Shadow != nil {
		shadow := *patch.Shadow
		el.Shadow = &shadow
	}
	if patch.Border != nil {
		border := *patch.Border
		el.Border = &border
	}
	if patch.Properties != nil {
		el.Properties = cloneProperties(*patch.Properties)
	}
	s.elements[elementID] = el
	return cloneElement(el), nil
}

func (s *MemoryStore) DeleteElement(_ context.Context, elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elements[elementID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.elements, elementID)
	return nil
}

func (s *MemoryStore) GetCollaborator(_ context.Context, scrapbookID, userID string) (*Collaborator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	collab, ok := s.collaborators[scrapbookID][userID]
	if !ok {
		return nil, nil
	}
	out := collab
	return &out, nil
}

func (s *MemoryStore) ListCollaborators(_ context.Context, scrapbookID string) ([]Collaborator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Collaborator, 0)
	for _, collab := range s.collaborators[scrapbookID] {
		items = append(items, collab)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s *MemoryStore) UpsertCollaborator(_ context.Context, collab Collaborator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collaborators[collab.ScrapbookID] == nil {
		s.collaborators[collab.ScrapbookID] = make(map[string]Collaborator)
	}
	if existing, ok := s.collaborators[collab.ScrapbookID][collab.UserID]; ok {
		collab.CreatedAt = existing.CreatedAt
	} else if collab.CreatedAt.IsZero() {
		collab.CreatedAt = time.Now()
	}
	s.collaborators[collab.ScrapbookID][collab.UserID] = collab
	return nil
}

func (s *MemoryStore) RemoveCollaborator(_ context.Context, scrapbookID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collaborators[scrapbookID][userID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.collaborators[scrapbookID], userID)
	return nil
}

func (s *MemoryStore) IncrementViewCount(_ context.Context, scrapbookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.scrapbooks[scrapbookID]
	if !ok {
		return nil
	}
	item.ViewCount++
	s.scrapbooks[scrapbookID] = item
	return nil
}

func (s *MemoryStore) ToggleLike(_ context.Context, scrapbookID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likes[scrapbookID] == nil {
		s.likes[scrapbookID] = make(map[string]bool)
	}
	if s.likes[scrapbookID][userID] {
		delete(s.likes[scrapbookID], userID)
		return false, nil
	}
	s.likes[scrapbookID][userID] = true
	return true, nil
}

func (s *MemoryStore) HasLiked(_ context.Context, scrapbookID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likes[scrapbookID][userID], nil
}

func (s *MemoryStore) LikeCount(_ context.Context, scrapbookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.likes[scrapbookID]), nil
}

func (s *MemoryStore) InsertComment(_ context.Context, comment Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	s.comments[comment.ID] = cloneComment(comment)
	return nil
}

func (s *MemoryStore) GetComment(_ context.Context, commentID string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok {
		return Comment{}, sql.ErrNoRows
	}
	return cloneComment(comment), nil
}

func (s *MemoryStore) ListComments(_ context.Context, scrapbookID, pageID string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Comment, 0)
	for _, comment := range s.comments {
		if comment.ScrapbookID != scrapbookID {
			continue
		}
		if pageID != "" && comment.PageID != pageID {
			continue
		}
		items = append(items, cloneComment(comment))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *MemoryStore) UpdateComment(_ context.Context, commentID string, patch CommentPatch) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok {
		return Comment{}, sql.ErrNoRows
	}
	if patch.Content != nil {
		comment.Content = *patch.Content
	}
	if patch.Resolved != nil {
		comment.Resolved = *patch.Resolved
	}
	s.comments[commentID] = comment
	return cloneComment(comment), nil
}
