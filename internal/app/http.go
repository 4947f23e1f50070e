package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"keepsake/api/internal/auth"
	"keepsake/api/internal/search"
)

const guestHeader = "X-Guest-Id"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Name   string `json:"name"`
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.Login(body.Name, body.UserID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		session, err := s.caller(r)
		if err != nil || session.UserID == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"guest":         session.Guest,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		session, err := s.caller(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}
		payload, err := s.service.Search(r.Context(), search.Query{
			Text:     q,
			CallerID: session.UserID,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/scrapbooks" {
		session, err := s.caller(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		if r.Method == http.MethodPost {
			var body CreateScrapbookInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateScrapbook(r.Context(), session.UserID, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		if r.Method == http.MethodGet {
			payload, err := s.service.ListScrapbooks(r.Context(), session.UserID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "comments" {
		session, err := s.caller(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body UpdateCommentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateComment(r.Context(), parts[2], session.UserID, body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "scrapbooks" {
		session, err := s.caller(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		s.handleScrapbooks(w, r, session, parts[2], parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleScrapbooks(w http.ResponseWriter, r *http.Request, session Session, scrapbookID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetScrapbook(ctx, scrapbookID, session.UserID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPatch:
			var body UpdateScrapbookInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateScrapbook(ctx, scrapbookID, session.UserID, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			payload, err := s.service.DeleteScrapbook(ctx, scrapbookID, session.UserID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "duplicate" && r.Method == http.MethodPost {
		payload, err := s.service.DuplicateScrapbook(ctx, scrapbookID, session.UserID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "like" && r.Method == http.MethodPost {
		payload, err := s.service.ToggleLike(ctx, scrapbookID, session.UserID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		payload, err := s.service.History(ctx, scrapbookID, session.UserID, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "comments" {
		if r.Method == http.MethodGet {
			pageID := strings.TrimSpace(r.URL.Query().Get("pageId"))
			payload, err := s.service.ListComments(ctx, scrapbookID, session.UserID, pageID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		if r.Method == http.MethodPost {
			var body CreateCommentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateComment(ctx, scrapbookID, session.UserID, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "collaborators" {
		if r.Method == http.MethodGet {
			payload, err := s.service.ListCollaborators(ctx, scrapbookID, session.UserID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		if r.Method == http.MethodPost {
			var body CollaboratorInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AddCollaborator(ctx, scrapbookID, session.UserID, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 5 && parts[3] == "collaborators" && r.Method == http.MethodDelete {
		payload, err := s.service.RemoveCollaborator(ctx, scrapbookID, session.UserID, parts[4])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "pages" && r.Method == http.MethodPost {
		var body PageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddPage(ctx, scrapbookID, session.UserID, body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if len(parts) == 5 && parts[3] == "pages" {
		pageID := parts[4]
		if r.Method == http.MethodPatch {
			var body PageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdatePage(ctx, scrapbookID, pageID, session.UserID, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		if r.Method == http.MethodDelete {
			payload, err := s.service.DeletePage(ctx, scrapbookID, pageID, session.UserID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 6 && parts[3] == "pages" && parts[5] == "elements" && r.Method == http.MethodPost {
		var body ElementInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddElement(ctx, scrapbookID, parts[4], session.UserID, body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if len(parts) == 7 && parts[3] == "pages" && parts[5] == "elements" {
		pageID := parts[4]
		elementID := parts[6]
		if r.Method == http.MethodPatch {
			var body ElementPatchInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateElement(ctx, scrapbookID, pageID, elementID, session.UserID, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		if r.Method == http.MethodDelete {
			payload, err := s.service.DeleteElement(ctx, scrapbookID, pageID, elementID, session.UserID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// caller resolves the request identity. A bearer token wins; a guest id
// header identifies a previously minted guest; no credentials means an
// anonymous session. Bad credentials are an error, not anonymity.
func (s *HTTPServer) caller(r *http.Request) (Session, error) {
	if token := bearerToken(r); token != "" {
		return s.service.SessionFromToken(token)
	}
	if guestID := strings.TrimSpace(r.Header.Get(guestHeader)); guestID != "" {
		return s.service.SessionFromGuestID(r.Context(), guestID)
	}
	return Session{}, nil
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+guestHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
