package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"stashboard/api/internal/auth"
	"stashboard/api/internal/authpw"
	"stashboard/api/internal/logger"
	"stashboard/api/internal/stash"
)

// maxImportSize caps uploaded document size; a bookmark export is small.
const maxImportSize = 5 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        logger.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log logger.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Post("/api/auth/signup", s.handleSignUp)
	r.Post("/api/auth/signin", s.handleSignIn)
	r.Get("/api/session", s.handleSessionInfo)
	r.Post("/api/session/refresh", s.handleRefresh)
	r.Post("/api/session/logout", s.handleLogout)

	// Public pages need no session.
	r.Get("/api/public/{userName}/{pageKey}", s.handlePublicPage)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/pages", s.handleListPages)
		r.Get("/api/pages/{pageKey}", s.handleRenderPage)
		r.Put("/api/pages/{pageKey}", s.handleSavePage)
		r.Delete("/api/pages/{pageKey}", s.handleDeletePage)
		r.Post("/api/pages/{pageKey}/rename", s.handleRenamePage)
		r.Post("/api/pages/{pageKey}/clone", s.handleClonePage)
		r.Post("/api/stash/state", s.handleToggleState)
		r.Post("/api/stash/visibility", s.handleToggleVisibility)
		r.Get("/api/export", s.handleExport)
		r.Post("/api/import", s.handleImport)
		r.Get("/api/search", s.handleSearch)
	})

	return r
}

// ---- middleware ----

type requestIDKey struct{}

type sessionKey struct{}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = auth.NewRandomToken("")[:16]
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			logger.String("request_id", requestID),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", writer.status),
			logger.Duration("duration", time.Since(started)),
		)
	})
}

func (s *HTTPServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.respondError(w, errUnauthorized())
			return
		}
		session, err := s.service.SessionFromToken(token)
		if err != nil {
			s.respondError(w, errUnauthorized())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// ---- infrastructure handlers ----

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":     false,
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready"})
}

// ---- session handlers ----

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "CONFLICT", "Email already registered", nil)
			return
		}
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.UserName,
		"role":          session.Role,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- page handlers ----

func (s *HTTPServer) handleListPages(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.PageNames(r.Context(), sessionFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": names})
}

func (s *HTTPServer) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.RenderPage(r.Context(), sessionFrom(r), chi.URLParam(r, "pageKey"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handlePublicPage(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.PublicPage(r.Context(), chi.URLParam(r, "userName"), chi.URLParam(r, "pageKey"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSavePage(w http.ResponseWriter, r *http.Request) {
	var cats []stash.RenderCategory
	if err := decodeBody(r, &cats); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	// JSON null decodes into a nil slice without error; only a real list may
	// replace the page's categories.
	if cats == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Body must be a list of categories", nil)
		return
	}
	if err := s.service.SavePage(r.Context(), sessionFrom(r), chi.URLParam(r, "pageKey"), cats); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": 1})
}

func (s *HTTPServer) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePage(r.Context(), sessionFrom(r), chi.URLParam(r, "pageKey")); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": 1})
}

type renameRequest struct {
	NewKey string `json:"new_key"`
}

func (b renameRequest) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.NewKey, validation.Required, validation.By(pageKeyRule)),
	)
}

func pageKeyRule(value any) error {
	key, _ := value.(string)
	if !stash.ValidPageKey(key) {
		return errors.New("must contain only letters, digits, '_', '-' and '.'")
	}
	return nil
}

func (s *HTTPServer) handleRenamePage(w http.ResponseWriter, r *http.Request) {
	var body renameRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	if err := s.service.RenamePage(r.Context(), sessionFrom(r), chi.URLParam(r, "pageKey"), body.NewKey); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": 1, "page_key": body.NewKey})
}

func (s *HTTPServer) handleClonePage(w http.ResponseWriter, r *http.Request) {
	var body renameRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	if err := s.service.ClonePage(r.Context(), sessionFrom(r), chi.URLParam(r, "pageKey"), body.NewKey); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": 1, "page_key": body.NewKey})
}

type stateRequest struct {
	PageKey       string `json:"page_key"`
	CategoryTitle string `json:"category_title"`
	State         int    `json:"state"`
}

func (b stateRequest) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.PageKey, validation.Required, validation.By(pageKeyRule)),
		validation.Field(&b.CategoryTitle, validation.Required),
		validation.Field(&b.State, validation.Min(0), validation.Max(1)),
	)
}

func (s *HTTPServer) handleToggleState(w http.ResponseWriter, r *http.Request) {
	var body stateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	if err := s.service.SetCollapsed(r.Context(), sessionFrom(r), body.PageKey, body.CategoryTitle, body.State); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": 1})
}

type visibilityRequest struct {
	PageKey  string `json:"page_key"`
	IsPublic bool   `json:"is_public"`
}

func (b visibilityRequest) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.PageKey, validation.Required, validation.By(pageKeyRule)),
	)
}

func (s *HTTPServer) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	var body visibilityRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
		return
	}
	if err := s.service.SetVisibility(r.Context(), sessionFrom(r), body.PageKey, body.IsPublic); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   1,
		"page_key":  body.PageKey,
		"is_public": body.IsPublic,
	})
}

// ---- bulk handlers ----

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Export(r.Context(), sessionFrom(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	filename := fmt.Sprintf("stashboard-export-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected a multipart file upload", nil)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing file field", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read upload", nil)
		return
	}
	if err := s.service.Import(r.Context(), sessionFrom(r), data); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": 1})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := s.service.Search(r.Context(), sessionFrom(r), query)
	if err != nil {
		if errors.Is(err, stash.ErrQueryTooShort) {
			writeJSON(w, http.StatusOK, map[string]any{"results": []stash.SearchResult{}, "tooShort": true})
			return
		}
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ---- helpers ----

func (s *HTTPServer) respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", logger.Error(err))
	}
	writeError(w, status, code, message, details)
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
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
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
