package store

import (
	"context"
	"sync"
	"testing"
)

func seedAggregate() Aggregate {
	agg := Aggregate{}
	agg.ID = "sb_1"
	agg.OwnerID = "usr_owner"
	agg.Title = "Summer 2024"
	agg.PageWidth = 2400
	agg.PageHeight = 3000
	agg.PageSizeName = "standard"
	agg.Pages = []PageWithElements{
		{
			Page: Page{ID: "pg_2", ScrapbookID: "sb_1", Order: 2, Background: Background{Type: BackgroundColor, Value: "#FFFFFF"}, Width: 2400, Height: 3000},
			Elements: []Element{
				{ID: "el_b", PageID: "pg_2", Type: ElementText, Opacity: 1, ZIndex: 5, Visible: true, Properties: Properties{Text: &TextProps{Content: "hello"}}},
				{ID: "el_a", PageID: "pg_2", Type: ElementPhoto, Opacity: 1, ZIndex: 1, Visible: true, Properties: Properties{Photo: &PhotoProps{URL: "https://img/1.jpg"}}},
			},
		},
		{
			Page:     Page{ID: "pg_1", ScrapbookID: "sb_1", Order: 1, Background: Background{Type: BackgroundColor, Value: "#FDF8F3"}, Width: 2400, Height: 3000},
			Elements: []Element{},
		},
	}
	return agg
}

func TestGetAggregateOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}

	agg, err := s.GetAggregate(ctx, "sb_1")
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if len(agg.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(agg.Pages))
	}
	if agg.Pages[0].Order != 1 || agg.Pages[1].Order != 2 {
		t.Fatalf("pages not in display order: %d, %d", agg.Pages[0].Order, agg.Pages[1].Order)
	}
	elements := agg.Pages[1].Elements
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}
	if elements[0].ZIndex > elements[1].ZIndex {
		t.Fatalf("elements not in paint order: %d before %d", elements[0].ZIndex, elements[1].ZIndex)
	}
}

func TestInsertPageAssignsNextOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}
	page, err := s.InsertPage(ctx, Page{ID: "pg_3", ScrapbookID: "sb_1", Background: Background{Type: BackgroundColor, Value: "#FDF8F3"}, Width: 2400, Height: 3000})
	if err != nil {
		t.Fatalf("InsertPage: %v", err)
	}
	if page.Order != 3 {
		t.Fatalf("expected order 3, got %d", page.Order)
	}
}

func TestInsertElementAssignsTopZIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}
	el, err := s.InsertElement(ctx, Element{
		ID: "el_c", PageID: "pg_2", Type: ElementText, Opacity: 1, ZIndex: -1, Visible: true,
		Properties: Properties{Text: &TextProps{Content: "on top"}},
	})
	if err != nil {
		t.Fatalf("InsertElement: %v", err)
	}
	if el.ZIndex != 6 {
		t.Fatalf("expected z-index above existing maximum, got %d", el.ZIndex)
	}
}

func TestDeleteScrapbookCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}
	if err := s.InsertComment(ctx, Comment{ID: "cm_1", ScrapbookID: "sb_1", UserID: "usr_2", Content: "nice"}); err != nil {
		t.Fatalf("InsertComment: %v", err)
	}
	if _, err := s.ToggleLike(ctx, "sb_1", "usr_2"); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if err := s.UpsertCollaborator(ctx, Collaborator{ScrapbookID: "sb_1", UserID: "usr_3", Role: "viewer"}); err != nil {
		t.Fatalf("UpsertCollaborator: %v", err)
	}

	if err := s.DeleteScrapbook(ctx, "sb_1"); err != nil {
		t.Fatalf("DeleteScrapbook: %v", err)
	}

	if _, err := s.GetScrapbook(ctx, "sb_1"); err == nil {
		t.Fatal("scrapbook should be gone")
	}
	if _, err := s.GetPage(ctx, "pg_1"); err == nil {
		t.Fatal("pages should be gone")
	}
	if _, err := s.GetElement(ctx, "el_a"); err == nil {
		t.Fatal("elements should be gone")
	}
	if _, err := s.GetComment(ctx, "cm_1"); err == nil {
		t.Fatal("comments should be gone")
	}
	count, err := s.LikeCount(ctx, "sb_1")
	if err != nil || count != 0 {
		t.Fatalf("likes should be gone, count=%d err=%v", count, err)
	}
}

func TestToggleLikeRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}

	liked, err := s.ToggleLike(ctx, "sb_1", "usr_2")
	if err != nil || !liked {
		t.Fatalf("first toggle should like: liked=%v err=%v", liked, err)
	}
	has, err := s.HasLiked(ctx, "sb_1", "usr_2")
	if err != nil || !has {
		t.Fatalf("HasLiked after like: has=%v err=%v", has, err)
	}
	liked, err = s.ToggleLike(ctx, "sb_1", "usr_2")
	if err != nil || liked {
		t.Fatalf("second toggle should unlike: liked=%v err=%v", liked, err)
	}
	count, err := s.LikeCount(ctx, "sb_1")
	if err != nil || count != 0 {
		t.Fatalf("like count after unlike: count=%d err=%v", count, err)
	}
}

func TestConcurrentViewIncrements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}

	const viewers = 50
	var wg sync.WaitGroup
	wg.Add(viewers)
	for i := 0; i < viewers; i++ {
		go func() {
			defer wg.Done()
			_ = s.IncrementViewCount(ctx, "sb_1")
		}()
	}
	wg.Wait()

	item, err := s.GetScrapbook(ctx, "sb_1")
	if err != nil {
		t.Fatalf("GetScrapbook: %v", err)
	}
	if item.ViewCount != viewers {
		t.Fatalf("expected view count %d, got %d", viewers, item.ViewCount)
	}
}

func TestUpdateScrapbookPatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}

	title := "Autumn 2024"
	isPublic := true
	updated, err := s.UpdateScrapbook(ctx, "sb_1", ScrapbookPatch{Title: &title, IsPublic: &isPublic})
	if err != nil {
		t.Fatalf("UpdateScrapbook: %v", err)
	}
	if updated.Title != title || !updated.IsPublic {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Description != "" {
		t.Fatalf("untouched field changed: %q", updated.Description)
	}
}

func TestListCommentsNewestFirstWithPageFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertAggregate(ctx, seedAggregate()); err != nil {
		t.Fatalf("InsertAggregate: %v", err)
	}
	for _, comment := range []Comment{
		{ID: "cm_1", ScrapbookID: "sb_1", UserID: "usr_2", Content: "first"},
		{ID: "cm_2", ScrapbookID: "sb_1", PageID: "pg_1", UserID: "usr_2", Content: "on page one"},
		{ID: "cm_3", ScrapbookID: "sb_1", PageID: "pg_2", UserID: "usr_3", Content: "on page two"},
	} {
		if err := s.InsertComment(ctx, comment); err != nil {
			t.Fatalf("InsertComment: %v", err)
		}
	}

	all, err := s.ListComments(ctx, "sb_1", "")
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(all))
	}

	pageOne, err := s.ListComments(ctx, "sb_1", "pg_1")
	if err != nil {
		t.Fatalf("ListComments page filter: %v", err)
	}
	if len(pageOne) != 1 || pageOne[0].ID != "cm_2" {
		t.Fatalf("page filter wrong: %+v", pageOne)
	}
}
