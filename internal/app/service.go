package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"keepsake/api/internal/access"
	"keepsake/api/internal/auth"
	"keepsake/api/internal/config"
	"keepsake/api/internal/guest"
	"keepsake/api/internal/search"
	"keepsake/api/internal/snapshot"
	"keepsake/api/internal/store"
	"keepsake/api/internal/util"
)

// Store is the persistence surface the service needs. PostgresStore is the
// production implementation, MemoryStore backs the tests.
type Store interface {
	Ping(ctx context.Context) error

	CreateScrapbook(ctx context.Context, item store.Scrapbook, firstPage store.Page) error
	GetScrapbook(ctx context.Context, scrapbookID string) (store.Scrapbook, error)
	GetAggregate(ctx context.Context, scrapbookID string) (store.Aggregate, error)
	InsertAggregate(ctx context.Context, agg store.Aggregate) error
	UpdateScrapbook(ctx context.Context, scrapbookID string, patch store.ScrapbookPatch) (store.Scrapbook, error)
	DeleteScrapbook(ctx context.Context, scrapbookID string) error
	ListScrapbooksByOwner(ctx context.Context, ownerID string) ([]store.Scrapbook, error)
	ListScrapbooks(ctx context.Context) ([]store.Scrapbook, error)

	GetPage(ctx context.Context, pageID string) (store.Page, error)
	InsertPage(ctx context.Context, page store.Page) (store.Page, error)
	UpdatePage(ctx context.Context, pageID string, patch store.PagePatch) (store.Page, error)
	DeletePage(ctx context.Context, pageID string) error
	PageCount(ctx context.Context, scrapbookID string) (int, error)

	GetElement(ctx context.Context, elementID string) (store.Element, error)
	InsertElement(ctx context.Context, el store.Element) (store.Element, error)
	UpdateElement(ctx context.Context, elementID string, patch store.ElementPatch) (store.Element, error)
	DeleteElement(ctx context.Context, elementID string) error

	GetCollaborator(ctx context.Context, scrapbookID, userID string) (*store.Collaborator, error)
	ListCollaborators(ctx context.Context, scrapbookID string) ([]store.Collaborator, error)
	UpsertCollaborator(ctx context.Context, collab store.Collaborator) error
	RemoveCollaborator(ctx context.Context, scrapbookID, userID string) error

	IncrementViewCount(ctx context.Context, scrapbookID string) error
	ToggleLike(ctx context.Context, scrapbookID, userID string) (bool, error)
	HasLiked(ctx context.Context, scrapbookID, userID string) (bool, error)
	LikeCount(ctx context.Context, scrapbookID string) (int, error)

	InsertComment(ctx context.Context, comment store.Comment) error
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	ListComments(ctx context.Context, scrapbookID, pageID string) ([]store.Comment, error)
	UpdateComment(ctx context.Context, commentID string, patch store.CommentPatch) (store.Comment, error)
}

type Service struct {
	cfg       config.Config
	store     Store
	guests    guest.Store
	search    *search.Service
	snapshots *snapshot.Service
}

func NewService(cfg config.Config, st Store, guests guest.Store, searchSvc *search.Service, snapshots *snapshot.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		guests:    guests,
		search:    searchSvc,
		snapshots: snapshots,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Session is the caller identity attached to a request. Guest sessions come
// from the guest identity store, not from tokens.
type Session struct {
	UserID   string
	UserName string
	Guest    bool
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Sub, UserName: claims.Name}, nil
}

func (s *Service) SessionFromGuestID(ctx context.Context, guestID string) (Session, error) {
	identity, err := s.guests.Lookup(ctx, guestID)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: identity.ID, UserName: "Guest", Guest: true}, nil
}

// Login issues a bearer token for a known identity. Production fronts this
// with the real identity provider; the endpoint exists for dev and tests.
func (s *Service) Login(name, userID string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if userID == "" {
		userID = util.NewID("usr")
	}
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  userID,
		Name: name,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return map[string]any{
		"token":     token,
		"userId":    userID,
		"userName":  name,
		"expiresAt": expiresAt.Unix(),
	}, nil
}

// loadAccess fetches the scrapbook and resolves the caller's standing on it.
func (s *Service) loadAccess(ctx context.Context, scrapbookID, callerID string) (store.Scrapbook, access.Access, error) {
	scrapbook, err := s.store.GetScrapbook(ctx, scrapbookID)
	if err != nil {
		return store.Scrapbook{}, access.Access{}, err
	}
	var collab *store.Collaborator
	if callerID != "" && callerID != scrapbook.OwnerID {
		collab, err = s.store.GetCollaborator(ctx, scrapbookID, callerID)
		if err != nil {
			return store.Scrapbook{}, access.Access{}, err
		}
	}
	return scrapbook, access.Resolve(scrapbook, collab, callerID), nil
}

// deny maps a failed gate to 401 for anonymous callers and 403 otherwise.
func deny(callerID string) error {
	if callerID == "" {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return nil
}

// Scrapbooks

type CreateScrapbookInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	IsPublic     bool     `json:"isPublic"`
	Tags         []string `json:"tags"`
	PageWidth    int      `json:"pageWidth"`
	PageHeight   int      `json:"pageHeight"`
	PageSizeName string   `json:"pageSizeName"`
}

const (
	defaultTitle      = "Untitled Scrapbook"
	defaultPageWidth  = 2400
	defaultPageHeight = 3000
	defaultPageSize   = "standard"
	defaultPageColor  = "#FDF8F3"
)

func (s *Service) CreateScrapbook(ctx context.Context, callerID string, in CreateScrapbookInput) (map[string]any, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultTitle
	}
	width := in.PageWidth
	height := in.PageHeight
	sizeName := in.PageSizeName
	if width <= 0 || height <= 0 {
		width = defaultPageWidth
		height = defaultPageHeight
		sizeName = defaultPageSize
	}
	if sizeName == "" {
		sizeName = "custom"
	}

	scrapbook := store.Scrapbook{
		ID:           util.NewID("sb"),
		OwnerID:      callerID,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		PageWidth:    width,
		PageHeight:   height,
		PageSizeName: sizeName,
		IsPublic:     in.IsPublic,
		Tags:         in.Tags,
	}
	firstPage := store.Page{
		ID:          util.NewID("pg"),
		ScrapbookID: scrapbook.ID,
		Order:       1,
		Background:  store.Background{Type: store.BackgroundColor, Value: defaultPageColor},
		Width:       width,
		Height:      height,
	}
	if err := s.store.CreateScrapbook(ctx, scrapbook, firstPage); err != nil {
		return nil, err
	}

	agg, err := s.store.GetAggregate(ctx, scrapbook.ID)
	if err != nil {
		return nil, err
	}
	s.indexScrapbook(agg.Scrapbook)
	s.recordSnapshot(agg, callerID, "Create scrapbook")
	return map[string]any{"scrapbook": aggregateView(agg)}, nil
}

func (s *Service) GetScrapbook(ctx context.Context, scrapbookID, callerID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanRead {
		return nil, deny(callerID)
	}

	// Every authenticated non-owner read counts as a view.
	if callerID != "" && !acc.IsOwner {
		if err := s.store.IncrementViewCount(ctx, scrapbookID); err != nil {
			return nil, err
		}
	}

	agg, err := s.store.GetAggregate(ctx, scrapbookID)
	if err != nil {
		return nil, err
	}
	hasLiked := false
	if callerID != "" {
		hasLiked, err = s.store.HasLiked(ctx, scrapbookID, callerID)
		if err != nil {
			return nil, err
		}
	}
	likeCount, err := s.store.LikeCount(ctx, scrapbookID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scrapbook": aggregateView(agg),
		"access": map[string]any{
			"isOwner":        acc.IsOwner,
			"isCollaborator": acc.IsCollaborator,
			"canEdit":        acc.CanEdit,
			"hasLiked":       hasLiked,
		},
		"likeCount": likeCount,
	}, nil
}

type UpdateScrapbookInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	IsPublic    *bool     `json:"isPublic"`
	Tags        *[]string `json:"tags"`
	CoverImage  *string   `json:"coverImage"`
}

func (s *Service) UpdateScrapbook(ctx context.Context, scrapbookID, callerID string, in UpdateScrapbookInput) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}

	patch := store.ScrapbookPatch{
		Title:       in.Title,
		Description: in.Description,
		IsPublic:    in.IsPublic,
		Tags:        in.Tags,
		CoverImage:  in.CoverImage,
	}
	if patch.Empty() {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no fields to update", nil)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be empty", nil)
	}

	updated, err := s.store.UpdateScrapbook(ctx, scrapbookID, patch)
	if err != nil {
		return nil, err
	}
	s.indexScrapbook(updated)
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Update scrapbook")
	return map[string]any{"scrapbook": scrapbookView(updated)}, nil
}

func (s *Service) DeleteScrapbook(ctx context.Context, scrapbookID, callerID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.IsOwner {
		return nil, deny(callerID)
	}
	if err := s.store.DeleteScrapbook(ctx, scrapbookID); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.DeleteScrapbook(scrapbookID)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Remove(scrapbookID); err != nil {
			log.Printf("snapshot: remove %s: %v", scrapbookID, err)
		}
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) ListScrapbooks(ctx context.Context, callerID string) (map[string]any, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	items, err := s.store.ListScrapbooksByOwner(ctx, callerID)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, scrapbookView(item))
	}
	return map[string]any{"scrapbooks": views}, nil
}

// DuplicateScrapbook deep-copies a readable scrapbook under the caller's
// identity with fresh ids everywhere. Anonymous callers get a guest identity
// minted for them; the copy always starts private with no engagement or
// collaborator state.
func (s *Service) DuplicateScrapbook(ctx context.Context, scrapbookID, callerID string) (map[string]any, error) {
	scrapbook, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanRead {
		return nil, deny(callerID)
	}

	ownerID := callerID
	guestID := ""
	if ownerID == "" {
		identity, err := s.guests.Issue(ctx)
		if err != nil {
			return nil, fmt.Errorf("issue guest identity: %w", err)
		}
		ownerID = identity.ID
		guestID = identity.ID
	}

	agg, err := s.store.GetAggregate(ctx, scrapbookID)
	if err != nil {
		return nil, err
	}

	copyAgg := store.Aggregate{Scrapbook: scrapbook}
	copyAgg.ID = util.NewID("sb")
	copyAgg.OwnerID = ownerID
	copyAgg.Title = scrapbook.Title + " (Copy)"
	copyAgg.IsPublic = false
	copyAgg.ViewCount = 0
	copyAgg.Pages = make([]store.PageWithElements, 0, len(agg.Pages))
	for _, page := range agg.Pages {
		pageCopy := page.Page
		pageCopy.ID = util.NewID("pg")
		pageCopy.ScrapbookID = copyAgg.ID
		withElements := store.PageWithElements{Page: pageCopy, Elements: make([]store.Element, 0, len(page.Elements))}
		for _, el := range page.Elements {
			elCopy := el
			elCopy.ID = util.NewID("el")
			elCopy.PageID = pageCopy.ID
			withElements.Elements = append(withElements.Elements, elCopy)
		}
		copyAgg.Pages = append(copyAgg.Pages, withElements)
	}

	if err := s.store.InsertAggregate(ctx, copyAgg); err != nil {
		return nil, err
	}

	created, err := s.store.GetAggregate(ctx, copyAgg.ID)
	if err != nil {
		return nil, err
	}
	s.indexScrapbook(created.Scrapbook)
	s.recordSnapshot(created, ownerID, "Duplicate scrapbook")

	payload := map[string]any{"scrapbook": aggregateView(created)}
	if guestID != "" {
		payload["guestId"] = guestID
	}
	return payload, nil
}

// Engagement

func (s *Service) ToggleLike(ctx context.Context, scrapbookID, callerID string) (map[string]any, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanRead {
		return nil, deny(callerID)
	}
	liked, err := s.store.ToggleLike(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.LikeCount(ctx, scrapbookID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"liked": liked, "likeCount": count}, nil
}

// Comments

type CreateCommentInput struct {
	PageID   string          `json:"pageId"`
	Content  string          `json:"content"`
	Position *store.Position `json:"position"`
}

func (s *Service) ListComments(ctx context.Context, scrapbookID, callerID, pageID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanRead {
		return nil, deny(callerID)
	}
	comments, err := s.store.ListComments(ctx, scrapbookID, pageID)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		views = append(views, commentView(comment))
	}
	return map[string]any{"comments": views}, nil
}

func (s *Service) CreateComment(ctx context.Context, scrapbookID, callerID string, in CreateCommentInput) (map[string]any, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanRead {
		return nil, deny(callerID)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if in.PageID != "" {
		page, err := s.store.GetPage(ctx, in.PageID)
		if err != nil {
			return nil, err
		}
		if page.ScrapbookID != scrapbookID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page does not belong to this scrapbook", nil)
		}
	}

	comment := store.Comment{
		ID:          util.NewID("cm"),
		ScrapbookID: scrapbookID,
		PageID:      in.PageID,
		UserID:      callerID,
		Content:     strings.TrimSpace(in.Content),
		Position:    in.Position,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	created, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": commentView(created)}, nil
}

type UpdateCommentInput struct {
	Content  *string `json:"content"`
	Resolved *bool   `json:"resolved"`
}

// UpdateComment lets only the comment's author change or resolve it, owners
// included.
func (s *Service) UpdateComment(ctx context.Context, commentID, callerID string, in UpdateCommentInput) (map[string]any, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.UserID != callerID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if in.Content == nil && in.Resolved == nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no fields to update", nil)
	}
	if in.Content != nil && strings.TrimSpace(*in.Content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content cannot be empty", nil)
	}

	updated, err := s.store.UpdateComment(ctx, commentID, store.CommentPatch{Content: in.Content, Resolved: in.Resolved})
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": commentView(updated)}, nil
}

// Collaborators

type CollaboratorInput struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Service) ListCollaborators(ctx context.Context, scrapbookID, callerID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.IsOwner {
		return nil, deny(callerID)
	}
	items, err := s.store.ListCollaborators(ctx, scrapbookID)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, collaboratorView(item))
	}
	return map[string]any{"collaborators": views}, nil
}

func (s *Service) AddCollaborator(ctx context.Context, scrapbookID, callerID string, in CollaboratorInput) (map[string]any, error) {
	scrapbook, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.IsOwner {
		return nil, deny(callerID)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if userID == scrapbook.OwnerID {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "the owner cannot be added as a collaborator", nil)
	}
	if !access.ValidRole(in.Role) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be editor or viewer", nil)
	}

	collab := store.Collaborator{ScrapbookID: scrapbookID, UserID: userID, Role: in.Role}
	if err := s.store.UpsertCollaborator(ctx, collab); err != nil {
		return nil, err
	}
	saved, err := s.store.GetCollaborator(ctx, scrapbookID, userID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("collaborator %s missing after upsert", userID)
	}
	return map[string]any{"collaborator": collaboratorView(*saved)}, nil
}

func (s *Service) RemoveCollaborator(ctx context.Context, scrapbookID, callerID, userID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.IsOwner {
		return nil, deny(callerID)
	}
	if err := s.store.RemoveCollaborator(ctx, scrapbookID, userID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// Pages

type PageInput struct {
	Background *store.Background `json:"background"`
	Width      *int              `json:"width"`
	Height     *int              `json:"height"`
}

func (s *Service) AddPage(ctx context.Context, scrapbookID, callerID string, in PageInput) (map[string]any, error) {
	scrapbook, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}

	background := store.Background{Type: store.BackgroundColor, Value: defaultPageColor}
	if in.Background != nil {
		background = *in.Background
	}
	if err := background.Validate(); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	width := scrapbook.PageWidth
	if in.Width != nil {
		width = *in.Width
	}
	height := scrapbook.PageHeight
	if in.Height != nil {
		height = *in.Height
	}
	if width <= 0 || height <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page dimensions must be positive", nil)
	}

	page := store.Page{
		ID:          util.NewID("pg"),
		ScrapbookID: scrapbookID,
		Background:  background,
		Width:       width,
		Height:      height,
	}
	created, err := s.store.InsertPage(ctx, page)
	if err != nil {
		return nil, err
	}
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Add page")
	return map[string]any{"page": pageView(created)}, nil
}

func (s *Service) UpdatePage(ctx context.Context, scrapbookID, pageID, callerID string, in PageInput) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}
	if _, err := s.pageInScrapbook(ctx, scrapbookID, pageID); err != nil {
		return nil, err
	}

	if in.Background != nil {
		if err := in.Background.Validate(); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
	}
	if (in.Width != nil && *in.Width <= 0) || (in.Height != nil && *in.Height <= 0) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page dimensions must be positive", nil)
	}

	updated, err := s.store.UpdatePage(ctx, pageID, store.PagePatch{
		Background: in.Background,
		Width:      in.Width,
		Height:     in.Height,
	})
	if err != nil {
		return nil, err
	}
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Update page")
	return map[string]any{"page": pageView(updated)}, nil
}

// DeletePage refuses to remove the last page; a scrapbook always keeps at
// least one.
func (s *Service) DeletePage(ctx context.Context, scrapbookID, pageID, callerID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}
	if _, err := s.pageInScrapbook(ctx, scrapbookID, pageID); err != nil {
		return nil, err
	}
	count, err := s.store.PageCount(ctx, scrapbookID)
	if err != nil {
		return nil, err
	}
	if count <= 1 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a scrapbook must keep at least one page", nil)
	}
	if err := s.store.DeletePage(ctx, pageID); err != nil {
		return nil, err
	}
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Delete page")
	return map[string]any{"ok": true}, nil
}

func (s *Service) pageInScrapbook(ctx context.Context, scrapbookID, pageID string) (store.Page, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return store.Page{}, err
	}
	if page.ScrapbookID != scrapbookID {
		return store.Page{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return page, nil
}

// Elements

type ElementInput struct {
	Type       string           `json:"type"`
	Position   *store.Position  `json:"position"`
	Size       *store.Size      `json:"size"`
	Transform  *store.Transform `json:"transform"`
	Opacity    *float64         `json:"opacity"`
	ZIndex     *int             `json:"zIndex"`
	Locked     *bool            `json:"locked"`
	Visible    *bool            `json:"visible"`
	Shadow     *store.Shadow    `json:"shadow"`
	Border     *store.Border    `json:"border"`
	Properties store.Properties `json:"properties"`
}

func (s *Service) AddElement(ctx context.Context, scrapbookID, pageID, callerID string, in ElementInput) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}
	if _, err := s.pageInScrapbook(ctx, scrapbookID, pageID); err != nil {
		return nil, err
	}

	el := store.Element{
		ID:         util.NewID("el"),
		PageID:     pageID,
		Type:       in.Type,
		Opacity:    1,
		ZIndex:     -1,
		Visible:    true,
		Properties: in.Properties,
		Shadow:     in.Shadow,
		Border:     in.Border,
	}
	if in.Position != nil {
		el.Position = *in.Position
	}
	if in.Size != nil {
		el.Size = *in.Size
	}
	if in.Transform != nil {
		el.Transform = *in.Transform
	}
	if in.Opacity != nil {
		el.Opacity = *in.Opacity
	}
	if in.ZIndex != nil {
		el.ZIndex = *in.ZIndex
	}
	if in.Locked != nil {
		el.Locked = *in.Locked
	}
	if in.Visible != nil {
		el.Visible = *in.Visible
	}
	if err := el.Validate(); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	created, err := s.store.InsertElement(ctx, el)
	if err != nil {
		return nil, err
	}
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Add element")
	return map[string]any{"element": elementView(created)}, nil
}

type ElementPatchInput struct {
	Position   *store.Position   `json:"position"`
	Size       *store.Size       `json:"size"`
	Transform  *store.Transform  `json:"transform"`
	Opacity    *float64          `json:"opacity"`
	ZIndex     *int              `json:"zIndex"`
	Locked     *bool             `json:"locked"`
	Visible    *bool             `json:"visible"`
	Shadow     *store.Shadow     `json:"shadow"`
	Border     *store.Border     `json:"border"`
	Properties *store.Properties `json:"properties"`
}

func (s *Service) UpdateElement(ctx context.Context, scrapbookID, pageID, elementID, callerID string, in ElementPatchInput) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}
	el, err := s.elementInScrapbook(ctx, scrapbookID, pageID, elementID)
	if err != nil {
		return nil, err
	}

	patch := store.ElementPatch{
		Position:   in.Position,
		Size:       in.Size,
		Transform:  in.Transform,
		Opacity:    in.Opacity,
		ZIndex:     in.ZIndex,
		Locked:     in.Locked,
		Visible:    in.Visible,
		Shadow:     in.Shadow,
		Border:     in.Border,
		Properties: in.Properties,
	}

	// Validate the element as it will look after the patch.
	merged := el
	if patch.Position != nil {
		merged.Position = *patch.Position
	}
	if patch.Size != nil {
		merged.Size = *patch.Size
	}
	if patch.Transform != nil {
		merged.Transform = *patch.Transform
	}
	if patch.Opacity != nil {
		merged.Opacity = *patch.Opacity
	}
	if patch.ZIndex != nil {
		merged.ZIndex = *patch.ZIndex
	}
	if patch.Properties != nil {
		merged.Properties = *patch.Properties
	}
	if err := merged.Validate(); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	updated, err := s.store.UpdateElement(ctx, elementID, patch)
	if err != nil {
		return nil, err
	}
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Update element")
	return map[string]any{"element": elementView(updated)}, nil
}

func (s *Service) DeleteElement(ctx context.Context, scrapbookID, pageID, elementID, callerID string) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanEdit {
		return nil, deny(callerID)
	}
	if _, err := s.elementInScrapbook(ctx, scrapbookID, pageID, elementID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteElement(ctx, elementID); err != nil {
		return nil, err
	}
	s.recordSnapshotByID(ctx, scrapbookID, callerID, "Delete element")
	return map[string]any{"ok": true}, nil
}

func (s *Service) elementInScrapbook(ctx context.Context, scrapbookID, pageID, elementID string) (store.Element, error) {
	if _, err := s.pageInScrapbook(ctx, scrapbookID, pageID); err != nil {
		return store.Element{}, err
	}
	el, err := s.store.GetElement(ctx, elementID)
	if err != nil {
		return store.Element{}, err
	}
	if el.PageID != pageID {
		return store.Element{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return el, nil
}

// Search and history

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

func (s *Service) History(ctx context.Context, scrapbookID, callerID string, limit int) (map[string]any, error) {
	_, acc, err := s.loadAccess(ctx, scrapbookID, callerID)
	if err != nil {
		return nil, err
	}
	if !acc.CanRead {
		return nil, deny(callerID)
	}
	if s.snapshots == nil {
		return map[string]any{"history": []snapshot.Entry{}}, nil
	}
	entries, err := s.snapshots.History(scrapbookID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"history": entries}, nil
}

// ReindexAll pushes every scrapbook into the search index, used at startup.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.search == nil {
		return
	}
	items, err := s.store.ListScrapbooks(ctx)
	if err != nil {
		log.Printf("reindex: list scrapbooks: %v", err)
		return
	}
	records := make([]search.ScrapbookRecord, 0, len(items))
	for _, item := range items {
		records = append(records, searchRecord(item))
	}
	s.search.ReindexAll(records)
}

// Snapshot and index plumbing. Both are best effort; a failed snapshot or
// index write never fails the mutation that triggered it.

func (s *Service) recordSnapshot(agg store.Aggregate, author, message string) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Record(agg.ID, agg, author, message); err != nil {
		log.Printf("snapshot: record %s: %v", agg.ID, err)
	}
}

func (s *Service) recordSnapshotByID(ctx context.Context, scrapbookID, author, message string) {
	if s.snapshots == nil {
		return
	}
	agg, err := s.store.GetAggregate(ctx, scrapbookID)
	if err != nil {
		log.Printf("snapshot: load %s: %v", scrapbookID, err)
		return
	}
	s.recordSnapshot(agg, author, message)
}

func (s *Service) indexScrapbook(item store.Scrapbook) {
	if s.search == nil {
		return
	}
	s.search.IndexScrapbook(searchRecord(item))
}

func searchRecord(item store.Scrapbook) search.ScrapbookRecord {
	return search.ScrapbookRecord{
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		Title:       item.Title,
		Description: item.Description,
		Tags:        item.Tags,
		IsPublic:    item.IsPublic,
	}
}

// JSON views

func scrapbookView(item store.Scrapbook) map[string]any {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":           item.ID,
		"ownerId":      item.OwnerID,
		"title":        item.Title,
		"description":  item.Description,
		"pageWidth":    item.PageWidth,
		"pageHeight":   item.PageHeight,
		"pageSizeName": item.PageSizeName,
		"isPublic":     item.IsPublic,
		"tags":         tags,
		"coverImage":   item.CoverImage,
		"viewCount":    item.ViewCount,
		"createdAt":    item.CreatedAt,
		"updatedAt":    item.UpdatedAt,
	}
}

func aggregateView(agg store.Aggregate) map[string]any {
	view := scrapbookView(agg.Scrapbook)
	pages := make([]map[string]any, 0, len(agg.Pages))
	for _, page := range agg.Pages {
		pageMap := pageView(page.Page)
		elements := make([]map[string]any, 0, len(page.Elements))
		for _, el := range page.Elements {
			elements = append(elements, elementView(el))
		}
		pageMap["elements"] = elements
		pages = append(pages, pageMap)
	}
	view["pages"] = pages
	return view
}

func pageView(page store.Page) map[string]any {
	return map[string]any{
		"id":          page.ID,
		"scrapbookId": page.ScrapbookID,
		"order":       page.Order,
		"background":  page.Background,
		"width":       page.Width,
		"height":      page.Height,
	}
}

func elementView(el store.Element) map[string]any {
	view := map[string]any{
		"id":         el.ID,
		"pageId":     el.PageID,
		"type":       el.Type,
		"position":   el.Position,
		"size":       el.Size,
		"transform":  el.Transform,
		"opacity":    el.Opacity,
		"zIndex":     el.ZIndex,
		"locked":     el.Locked,
		"visible":    el.Visible,
		"properties": el.Properties,
	}
	if el.Shadow != nil {
		view["shadow"] = el.Shadow
	}
	if el.Border != nil {
		view["border"] = el.Border
	}
	return view
}

func commentView(comment store.Comment) map[string]any {
	view := map[string]any{
		"id":          comment.ID,
		"scrapbookId": comment.ScrapbookID,
		"userId":      comment.UserID,
		"content":     comment.Content,
		"resolved":    comment.Resolved,
		"createdAt":   comment.CreatedAt,
	}
	if comment.PageID != "" {
		view["pageId"] = comment.PageID
	}
	if comment.Position != nil {
		view["position"] = comment.Position
	}
	return view
}

func collaboratorView(collab store.Collaborator) map[string]any {
	return map[string]any{
		"scrapbookId": collab.ScrapbookID,
		"userId":      collab.UserID,
		"role":        string(access.Normalize(collab.Role)),
		"createdAt":   collab.CreatedAt,
	}
}
