package app

import (
	"context"
	"errors"
	"time"

	"stashboard/api/internal/auth"
	"stashboard/api/internal/authpw"
	"stashboard/api/internal/config"
	"stashboard/api/internal/logger"
	"stashboard/api/internal/stash"
	"stashboard/api/internal/store"
)

// Session is the authenticated caller identity carried through a request.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// ReadOnly reports whether the session belongs to a demo account.
func (s Session) ReadOnly() bool {
	return s.Role == store.RoleDemo
}

// dataStore is the persistence surface the service depends on; both SQL
// backends implement it.
type dataStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByName(ctx context.Context, name string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	CountUsers(ctx context.Context) (int, error)
	GetStashDocument(ctx context.Context, userID string) (stash.Document, error)
	SetStashDocument(ctx context.Context, userID string, doc stash.Document) error
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens; Redis when configured, otherwise the
// SQL store doubles as the fallback.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	log      logger.Logger
	limits   stash.Limits
}

func New(cfg config.Config, dataStore dataStore, accounts *authpw.Service, log logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		accounts: accounts,
		log:      log,
		limits:   cfg.StashLimits(),
	}
}

func NewWithSessionStore(cfg config.Config, dataStore dataStore, sessions sessionStore, accounts *authpw.Service, log logger.Logger) *Service {
	service := New(cfg, dataStore, accounts, log)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- sessions ----

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := auth.NewRandomToken("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := auth.NewRandomToken("rft")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// ---- stash document operations ----
//
// Every mutation follows the same read-modify-write pattern over the whole
// document: last write wins at document granularity. Demo accounts are
// rejected before the first store round trip.

// PageView is a rendered page plus its metadata.
type PageView struct {
	PageKey    string                 `json:"page_key"`
	IsPublic   bool                   `json:"is_public"`
	Categories []stash.RenderCategory `json:"categories"`
}

func (s *Service) requireWriter(session Session) error {
	if session.ReadOnly() {
		return errForbidden("Demo accounts cannot make changes")
	}
	return nil
}

func (s *Service) document(ctx context.Context, userID string) (stash.Document, error) {
	doc, err := s.store.GetStashDocument(ctx, userID)
	if err != nil {
		return stash.Document{}, errStorageFailure(err)
	}
	return doc, nil
}

func (s *Service) persist(ctx context.Context, userID string, doc stash.Document) error {
	if err := s.store.SetStashDocument(ctx, userID, doc); err != nil {
		return errStorageFailure(err)
	}
	return nil
}

// PageNames lists the caller's page keys in lexicographic order.
func (s *Service) PageNames(ctx context.Context, session Session) ([]string, error) {
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return doc.PageNames(), nil
}

// RenderPage returns the render-shape page. A page the owner never visited
// before is initialized empty and persisted first (create-on-first-edit);
// demo accounts cannot trigger that write and get NotFound instead.
func (s *Service) RenderPage(ctx context.Context, session Session, pageKey string) (PageView, error) {
	if !stash.ValidPageKey(pageKey) {
		return PageView{}, mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return PageView{}, err
	}

	if _, ok := doc.Stashes[pageKey]; !ok {
		if session.ReadOnly() {
			return PageView{}, errNotFound("Page not found")
		}
		if _, err := doc.EnsurePage(pageKey); err != nil {
			return PageView{}, mapStashError(err)
		}
		if err := s.persist(ctx, session.UserID, doc); err != nil {
			return PageView{}, err
		}
	}

	cats, err := doc.Render(pageKey, s.limits)
	if err != nil {
		return PageView{}, mapStashError(err)
	}
	return PageView{
		PageKey:    pageKey,
		IsPublic:   doc.Stashes[pageKey].IsPublic,
		Categories: cats,
	}, nil
}

// PublicPage renders another user's page without authentication, but only
// when that page is public. Private and absent pages are indistinguishable.
func (s *Service) PublicPage(ctx context.Context, userName, pageKey string) (PageView, error) {
	if !stash.ValidPageKey(pageKey) {
		return PageView{}, mapStashError(stash.ErrInvalidPageKey)
	}
	owner, err := s.store.GetUserByName(ctx, userName)
	if err != nil {
		return PageView{}, errNotFound("Page not found")
	}
	doc, err := s.document(ctx, owner.ID)
	if err != nil {
		return PageView{}, err
	}
	page, ok := doc.Stashes[pageKey]
	if !ok || !page.IsPublic {
		return PageView{}, errNotFound("Page not found")
	}
	cats, err := doc.Render(pageKey, s.limits)
	if err != nil {
		return PageView{}, mapStashError(err)
	}
	return PageView{PageKey: pageKey, IsPublic: true, Categories: cats}, nil
}

// SavePage replaces the page's whole category list with the sanitized form
// of the submitted render-shape categories.
func (s *Service) SavePage(ctx context.Context, session Session, pageKey string, cats []stash.RenderCategory) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	if !stash.ValidPageKey(pageKey) {
		return mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := doc.Save(pageKey, cats, s.limits); err != nil {
		return mapStashError(err)
	}
	return s.persist(ctx, session.UserID, doc)
}

// DeletePage removes a page; deleting an absent page is a no-op success.
func (s *Service) DeletePage(ctx context.Context, session Session, pageKey string) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	if !stash.ValidPageKey(pageKey) {
		return mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return err
	}
	doc.DeletePage(pageKey)
	return s.persist(ctx, session.UserID, doc)
}

func (s *Service) RenamePage(ctx context.Context, session Session, pageKey, newKey string) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	if !stash.ValidPageKey(pageKey) || !stash.ValidPageKey(newKey) {
		return mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := doc.RenamePage(pageKey, newKey); err != nil {
		return mapStashError(err)
	}
	return s.persist(ctx, session.UserID, doc)
}

func (s *Service) ClonePage(ctx context.Context, session Session, pageKey, newKey string) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	if !stash.ValidPageKey(pageKey) || !stash.ValidPageKey(newKey) {
		return mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := doc.ClonePage(pageKey, newKey); err != nil {
		return mapStashError(err)
	}
	return s.persist(ctx, session.UserID, doc)
}

// SetCollapsed toggles a category's collapse state, identified by exact
// title match within the page.
func (s *Service) SetCollapsed(ctx context.Context, session Session, pageKey, categoryTitle string, state int) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	if !stash.ValidPageKey(pageKey) {
		return mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := doc.SetCollapsed(pageKey, categoryTitle, state); err != nil {
		return mapStashError(err)
	}
	return s.persist(ctx, session.UserID, doc)
}

// SetVisibility toggles unauthenticated read access for a page.
func (s *Service) SetVisibility(ctx context.Context, session Session, pageKey string, isPublic bool) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	if !stash.ValidPageKey(pageKey) {
		return mapStashError(stash.ErrInvalidPageKey)
	}
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := doc.SetPublic(pageKey, isPublic); err != nil {
		return mapStashError(err)
	}
	return s.persist(ctx, session.UserID, doc)
}

// Export serializes the caller's whole document as pretty-printed JSON.
func (s *Service) Export(ctx context.Context, session Session) ([]byte, error) {
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	data, err := doc.Export()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Import validates the uploaded document and replaces the caller's entire
// stash with it. A document that fails validation leaves the stored one
// untouched.
func (s *Service) Import(ctx context.Context, session Session, data []byte) error {
	if err := s.requireWriter(session); err != nil {
		return err
	}
	doc, err := stash.ParseDocument(data)
	if err != nil {
		return mapStashError(err)
	}
	return s.persist(ctx, session.UserID, doc)
}

// Search scans the caller's whole document for links matching the query.
func (s *Service) Search(ctx context.Context, session Session, query string) ([]stash.SearchResult, error) {
	doc, err := s.document(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	results, err := doc.SearchLinks(query)
	if err != nil {
		if errors.Is(err, stash.ErrQueryTooShort) {
			return nil, err
		}
		return nil, mapStashError(err)
	}
	return results, nil
}
