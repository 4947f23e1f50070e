package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"keepsake/api/internal/config"
	"keepsake/api/internal/guest"
	"keepsake/api/internal/store"
)

func newTestService() *Service {
	cfg := config.Config{JWTSecret: "test-secret", AccessTTL: time.Hour}
	return NewService(cfg, store.NewMemoryStore(), guest.NewMemoryStore(), nil, nil)
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError with status %d, got %v", want, err)
	}
	if domainErr.Status != want {
		t.Fatalf("expected status %d, got %d (%s)", want, domainErr.Status, domainErr.Code)
	}
}

func scrapbookOf(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	view, ok := payload["scrapbook"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing scrapbook: %+v", payload)
	}
	return view
}

func pagesOf(t *testing.T, view map[string]any) []map[string]any {
	t.Helper()
	pages, ok := view["pages"].([]map[string]any)
	if !ok {
		t.Fatalf("scrapbook view missing pages: %+v", view)
	}
	return pages
}

func mustCreate(t *testing.T, svc *Service, ownerID string, in CreateScrapbookInput) (string, string) {
	t.Helper()
	payload, err := svc.CreateScrapbook(context.Background(), ownerID, in)
	if err != nil {
		t.Fatalf("CreateScrapbook: %v", err)
	}
	view := scrapbookOf(t, payload)
	pages := pagesOf(t, view)
	return view["id"].(string), pages[0]["id"].(string)
}

func TestCreateScrapbookDefaults(t *testing.T) {
	svc := newTestService()

	payload, err := svc.CreateScrapbook(context.Background(), "usr_owner", CreateScrapbookInput{})
	if err != nil {
		t.Fatalf("CreateScrapbook: %v", err)
	}
	view := scrapbookOf(t, payload)
	if view["title"] != "Untitled Scrapbook" {
		t.Fatalf("default title wrong: %v", view["title"])
	}
	if view["pageWidth"] != 2400 || view["pageHeight"] != 3000 || view["pageSizeName"] != "standard" {
		t.Fatalf("default page size wrong: %v x %v (%v)", view["pageWidth"], view["pageHeight"], view["pageSizeName"])
	}
	if view["isPublic"] != false {
		t.Fatal("new scrapbooks must start private")
	}
	pages := pagesOf(t, view)
	if len(pages) != 1 {
		t.Fatalf("expected exactly one page, got %d", len(pages))
	}
	background := pages[0]["background"].(store.Background)
	if background.Type != store.BackgroundColor || background.Value != "#FDF8F3" {
		t.Fatalf("default background wrong: %+v", background)
	}
}

func TestCreateScrapbookRequiresCaller(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateScrapbook(context.Background(), "", CreateScrapbookInput{})
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestGetScrapbookAccessMatrix(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{Title: "Private"})

	// Anonymous and strangers are shut out of a private scrapbook.
	_, err := svc.GetScrapbook(ctx, id, "")
	assertStatus(t, err, http.StatusUnauthorized)
	_, err = svc.GetScrapbook(ctx, id, "usr_stranger")
	assertStatus(t, err, http.StatusForbidden)

	// A viewer collaborator reads but cannot edit.
	if _, err := svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_viewer", Role: "viewer"}); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}
	payload, err := svc.GetScrapbook(ctx, id, "usr_viewer")
	if err != nil {
		t.Fatalf("GetScrapbook as viewer: %v", err)
	}
	accessView := payload["access"].(map[string]any)
	if accessView["isCollaborator"] != true || accessView["canEdit"] != false {
		t.Fatalf("viewer access flags wrong: %+v", accessView)
	}

	// An editor collaborator can edit.
	if _, err := svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_editor", Role: "editor"}); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}
	payload, err = svc.GetScrapbook(ctx, id, "usr_editor")
	if err != nil {
		t.Fatalf("GetScrapbook as editor: %v", err)
	}
	accessView = payload["access"].(map[string]any)
	if accessView["canEdit"] != true || accessView["isOwner"] != false {
		t.Fatalf("editor access flags wrong: %+v", accessView)
	}

	// Unknown scrapbook is a plain 404.
	_, err = svc.GetScrapbook(ctx, "sb_missing", "usr_owner")
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown scrapbook, got %v", err)
	}
}

func TestViewCountSideEffect(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{Title: "Public", IsPublic: true})

	// Owner reads never count.
	payload, err := svc.GetScrapbook(ctx, id, "usr_owner")
	if err != nil {
		t.Fatalf("GetScrapbook: %v", err)
	}
	if got := scrapbookOf(t, payload)["viewCount"]; got != 0 {
		t.Fatalf("owner read must not count a view, got %v", got)
	}

	// Authenticated non-owner reads count, one per fetch.
	for i := 0; i < 2; i++ {
		payload, err = svc.GetScrapbook(ctx, id, "usr_visitor")
		if err != nil {
			t.Fatalf("GetScrapbook: %v", err)
		}
	}
	if got := scrapbookOf(t, payload)["viewCount"]; got != 2 {
		t.Fatalf("expected 2 views, got %v", got)
	}

	// Anonymous reads do not count.
	payload, err = svc.GetScrapbook(ctx, id, "")
	if err != nil {
		t.Fatalf("GetScrapbook anonymous: %v", err)
	}
	if got := scrapbookOf(t, payload)["viewCount"]; got != 2 {
		t.Fatalf("anonymous read must not count a view, got %v", got)
	}
}

func TestUpdateScrapbookGates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{Title: "Mine"})

	title := "Renamed"
	_, err := svc.UpdateScrapbook(ctx, id, "usr_stranger", UpdateScrapbookInput{Title: &title})
	assertStatus(t, err, http.StatusForbidden)

	_, err = svc.UpdateScrapbook(ctx, id, "usr_owner", UpdateScrapbookInput{})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	empty := "   "
	_, err = svc.UpdateScrapbook(ctx, id, "usr_owner", UpdateScrapbookInput{Title: &empty})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	payload, err := svc.UpdateScrapbook(ctx, id, "usr_owner", UpdateScrapbookInput{Title: &title})
	if err != nil {
		t.Fatalf("UpdateScrapbook: %v", err)
	}
	if scrapbookOf(t, payload)["title"] != "Renamed" {
		t.Fatalf("title not updated: %+v", payload)
	}
}

func TestDeleteScrapbookOwnerOnly(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{})

	if _, err := svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_editor", Role: "editor"}); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}
	_, err := svc.DeleteScrapbook(ctx, id, "usr_editor")
	assertStatus(t, err, http.StatusForbidden)

	if _, err := svc.DeleteScrapbook(ctx, id, "usr_owner"); err != nil {
		t.Fatalf("DeleteScrapbook: %v", err)
	}
	_, err = svc.GetScrapbook(ctx, id, "usr_owner")
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestDuplicateScrapbook(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, pageID := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{Title: "Template", IsPublic: true})

	if _, err := svc.AddElement(ctx, id, pageID, "usr_owner", ElementInput{
		Type:       store.ElementText,
		Properties: store.Properties{Text: &store.TextProps{Content: "keep me"}},
	}); err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	if _, err := svc.ToggleLike(ctx, id, "usr_fan"); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if _, err := svc.CreateComment(ctx, id, "usr_fan", CreateCommentInput{Content: "lovely"}); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	payload, err := svc.DuplicateScrapbook(ctx, id, "usr_copier")
	if err != nil {
		t.Fatalf("DuplicateScrapbook: %v", err)
	}
	copyView := scrapbookOf(t, payload)
	copyID := copyView["id"].(string)
	if copyID == id {
		t.Fatal("copy must get a fresh id")
	}
	if copyView["title"] != "Template (Copy)" {
		t.Fatalf("copy title wrong: %v", copyView["title"])
	}
	if copyView["isPublic"] != false {
		t.Fatal("copy must start private")
	}
	if copyView["ownerId"] != "usr_copier" {
		t.Fatalf("copy owner wrong: %v", copyView["ownerId"])
	}
	if copyView["viewCount"] != 0 {
		t.Fatalf("copy view count must reset, got %v", copyView["viewCount"])
	}

	copyPages := pagesOf(t, copyView)
	if len(copyPages) != 1 {
		t.Fatalf("copy page count wrong: %d", len(copyPages))
	}
	if copyPages[0]["id"] == pageID {
		t.Fatal("copied page must get a fresh id")
	}
	copyElements := copyPages[0]["elements"].([]map[string]any)
	if len(copyElements) != 1 {
		t.Fatalf("copy element count wrong: %d", len(copyElements))
	}

	// Engagement and comments never travel with the copy.
	got, err := svc.GetScrapbook(ctx, copyID, "usr_copier")
	if err != nil {
		t.Fatalf("GetScrapbook copy: %v", err)
	}
	if got["likeCount"] != 0 {
		t.Fatalf("copy like count must be 0, got %v", got["likeCount"])
	}
	commentsPayload, err := svc.ListComments(ctx, copyID, "usr_copier", "")
	if err != nil {
		t.Fatalf("ListComments copy: %v", err)
	}
	if comments := commentsPayload["comments"].([]map[string]any); len(comments) != 0 {
		t.Fatalf("copy must have no comments, got %d", len(comments))
	}
}

func TestDuplicateAnonymousMintsGuest(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{Title: "Template", IsPublic: true})

	payload, err := svc.DuplicateScrapbook(ctx, id, "")
	if err != nil {
		t.Fatalf("DuplicateScrapbook anonymous: %v", err)
	}
	guestID, ok := payload["guestId"].(string)
	if !ok || guestID == "" {
		t.Fatalf("expected minted guest id, got %+v", payload)
	}
	copyView := scrapbookOf(t, payload)
	if copyView["ownerId"] != guestID {
		t.Fatalf("copy must belong to the guest, got %v", copyView["ownerId"])
	}

	// The guest identity resolves and owns the copy.
	session, err := svc.SessionFromGuestID(ctx, guestID)
	if err != nil {
		t.Fatalf("SessionFromGuestID: %v", err)
	}
	got, err := svc.GetScrapbook(ctx, copyView["id"].(string), session.UserID)
	if err != nil {
		t.Fatalf("GetScrapbook as guest: %v", err)
	}
	if got["access"].(map[string]any)["isOwner"] != true {
		t.Fatal("guest must own the copy")
	}
}

func TestDuplicatePrivateDenied(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{Title: "Private"})

	_, err := svc.DuplicateScrapbook(ctx, id, "")
	assertStatus(t, err, http.StatusUnauthorized)
	_, err = svc.DuplicateScrapbook(ctx, id, "usr_stranger")
	assertStatus(t, err, http.StatusForbidden)
}

func TestToggleLikeRequiresIdentity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{IsPublic: true})

	_, err := svc.ToggleLike(ctx, id, "")
	assertStatus(t, err, http.StatusUnauthorized)

	payload, err := svc.ToggleLike(ctx, id, "usr_fan")
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if payload["liked"] != true || payload["likeCount"] != 1 {
		t.Fatalf("like payload wrong: %+v", payload)
	}
	payload, err = svc.ToggleLike(ctx, id, "usr_fan")
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if payload["liked"] != false || payload["likeCount"] != 0 {
		t.Fatalf("unlike payload wrong: %+v", payload)
	}
}

func TestCommentRules(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, pageID := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{IsPublic: true})

	_, err := svc.CreateComment(ctx, id, "usr_fan", CreateCommentInput{Content: "   "})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	_, err = svc.CreateComment(ctx, id, "usr_fan", CreateCommentInput{Content: "hi", PageID: "pg_other"})
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown page, got %v", err)
	}

	payload, err := svc.CreateComment(ctx, id, "usr_fan", CreateCommentInput{
		Content:  "love this page",
		PageID:   pageID,
		Position: &store.Position{X: 120, Y: 340},
	})
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	commentID := payload["comment"].(map[string]any)["id"].(string)

	// Only the author may touch a comment, the owner included.
	resolved := true
	_, err = svc.UpdateComment(ctx, commentID, "usr_owner", UpdateCommentInput{Resolved: &resolved})
	assertStatus(t, err, http.StatusForbidden)

	updated, err := svc.UpdateComment(ctx, commentID, "usr_fan", UpdateCommentInput{Resolved: &resolved})
	if err != nil {
		t.Fatalf("UpdateComment: %v", err)
	}
	if updated["comment"].(map[string]any)["resolved"] != true {
		t.Fatalf("comment not resolved: %+v", updated)
	}

	empty := ""
	_, err = svc.UpdateComment(ctx, commentID, "usr_fan", UpdateCommentInput{Content: &empty})
	assertStatus(t, err, http.StatusUnprocessableEntity)
}

func TestCollaboratorRules(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, _ := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{})

	_, err := svc.AddCollaborator(ctx, id, "usr_stranger", CollaboratorInput{UserID: "usr_x", Role: "viewer"})
	assertStatus(t, err, http.StatusForbidden)

	_, err = svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_owner", Role: "editor"})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	_, err = svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_x", Role: "admin"})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	if _, err := svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_x", Role: "viewer"}); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}

	// Role changes upsert in place.
	if _, err := svc.AddCollaborator(ctx, id, "usr_owner", CollaboratorInput{UserID: "usr_x", Role: "editor"}); err != nil {
		t.Fatalf("AddCollaborator upgrade: %v", err)
	}
	payload, err := svc.ListCollaborators(ctx, id, "usr_owner")
	if err != nil {
		t.Fatalf("ListCollaborators: %v", err)
	}
	collabs := payload["collaborators"].([]map[string]any)
	if len(collabs) != 1 || collabs[0]["role"] != "editor" {
		t.Fatalf("collaborator list wrong: %+v", collabs)
	}

	if _, err := svc.RemoveCollaborator(ctx, id, "usr_owner", "usr_x"); err != nil {
		t.Fatalf("RemoveCollaborator: %v", err)
	}
	_, err = svc.RemoveCollaborator(ctx, id, "usr_owner", "usr_x")
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("expected 404 removing absent collaborator, got %v", err)
	}
}

func TestPageLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, firstPageID := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{})

	// The last page can never be deleted.
	_, err := svc.DeletePage(ctx, id, firstPageID, "usr_owner")
	assertStatus(t, err, http.StatusUnprocessableEntity)

	payload, err := svc.AddPage(ctx, id, "usr_owner", PageInput{})
	if err != nil {
		t.Fatalf("AddPage: %v", err)
	}
	secondPage := payload["page"].(map[string]any)
	if secondPage["order"] != 2 {
		t.Fatalf("expected order 2, got %v", secondPage["order"])
	}

	if _, err := svc.DeletePage(ctx, id, firstPageID, "usr_owner"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}

	badBg := store.Background{Type: "video"}
	_, err = svc.AddPage(ctx, id, "usr_owner", PageInput{Background: &badBg})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	_, err = svc.AddPage(ctx, id, "usr_stranger", PageInput{})
	assertStatus(t, err, http.StatusForbidden)
}

func TestElementLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id, pageID := mustCreate(t, svc, "usr_owner", CreateScrapbookInput{})

	// Payload must match the declared type.
	_, err := svc.AddElement(ctx, id, pageID, "usr_owner", ElementInput{
		Type:       store.ElementText,
		Properties: store.Properties{Photo: &store.PhotoProps{URL: "https://img/1.jpg"}},
	})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	first, err := svc.AddElement(ctx, id, pageID, "usr_owner", ElementInput{
		Type:       store.ElementPhoto,
		Properties: store.Properties{Photo: &store.PhotoProps{URL: "https://img/1.jpg"}},
	})
	if err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	second, err := svc.AddElement(ctx, id, pageID, "usr_owner", ElementInput{
		Type:       store.ElementText,
		Properties: store.Properties{Text: &store.TextProps{Content: "caption"}},
	})
	if err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	firstView := first["element"].(map[string]any)
	secondView := second["element"].(map[string]any)
	if secondView["zIndex"].(int) <= firstView["zIndex"].(int) {
		t.Fatalf("new elements must stack on top: %v then %v", firstView["zIndex"], secondView["zIndex"])
	}
	if firstView["opacity"] != 1.0 || firstView["visible"] != true {
		t.Fatalf("element defaults wrong: %+v", firstView)
	}

	elementID := firstView["id"].(string)
	badOpacity := 1.5
	_, err = svc.UpdateElement(ctx, id, pageID, elementID, "usr_owner", ElementPatchInput{Opacity: &badOpacity})
	assertStatus(t, err, http.StatusUnprocessableEntity)

	newOpacity := 0.5
	updated, err := svc.UpdateElement(ctx, id, pageID, elementID, "usr_owner", ElementPatchInput{Opacity: &newOpacity})
	if err != nil {
		t.Fatalf("UpdateElement: %v", err)
	}
	if updated["element"].(map[string]any)["opacity"] != 0.5 {
		t.Fatalf("opacity not updated: %+v", updated)
	}

	if _, err := svc.DeleteElement(ctx, id, pageID, elementID, "usr_owner"); err != nil {
		t.Fatalf("DeleteElement: %v", err)
	}
	_, err = svc.DeleteElement(ctx, id, pageID, elementID, "usr_owner")
	if status, _, _, _ := mapError(err); status != http.StatusNotFound {
		t.Fatalf("expected 404 deleting absent element, got %v", err)
	}
}

func TestListScrapbooksOwnOnly(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, "usr_a", CreateScrapbookInput{Title: "A1"})
	mustCreate(t, svc, "usr_a", CreateScrapbookInput{Title: "A2"})
	mustCreate(t, svc, "usr_b", CreateScrapbookInput{Title: "B1"})

	payload, err := svc.ListScrapbooks(ctx, "usr_a")
	if err != nil {
		t.Fatalf("ListScrapbooks: %v", err)
	}
	items := payload["scrapbooks"].([]map[string]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 scrapbooks, got %d", len(items))
	}
	for _, item := range items {
		if item["ownerId"] != "usr_a" {
			t.Fatalf("foreign scrapbook in listing: %+v", item)
		}
	}

	_, err = svc.ListScrapbooks(ctx, "")
	assertStatus(t, err, http.StatusUnauthorized)
}
