package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"devhub/api/internal/assistant"
	"devhub/api/internal/auth"
	"devhub/api/internal/authpw"
	"devhub/api/internal/config"
	"devhub/api/internal/email"
	"devhub/api/internal/files"
	"devhub/api/internal/rbac"
	"devhub/api/internal/realtime"
	"devhub/api/internal/search"
	"devhub/api/internal/store"
	"devhub/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	InsertWorkspace(context.Context, store.Workspace) error
	GetWorkspace(context.Context, string) (store.Workspace, error)
	DeleteWorkspace(context.Context, string) error
	UpsertInvitation(context.Context, store.Membership) error
	InsertOwnerMembership(ctx context.Context, id, workspaceID, email, userID string) error
	GetMembership(ctx context.Context, workspaceID, email string) (store.Membership, error)
	ActivateMembership(ctx context.Context, workspaceID, email, userID string) (bool, error)
	DeleteMembership(ctx context.Context, workspaceID, email string) error
	DeletePendingMembership(ctx context.Context, workspaceID, email string) (bool, error)
	ListAccessibleWorkspaces(context.Context, string) ([]store.WorkspaceAccess, error)
	ListPendingInvitations(context.Context, string) ([]store.Invitation, error)
	ListMembers(context.Context, string) ([]store.Membership, error)
	GetActiveMembershipByUser(ctx context.Context, workspaceID, userID string) (store.Membership, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertChatMessage(context.Context, store.ChatMessage) error
	ListChannelMessages(ctx context.Context, workspaceID string, limit int) ([]store.ChatMessage, error)
	ListDirectMessages(ctx context.Context, workspaceID, userA, userB string, limit int) ([]store.ChatMessage, error)
	InsertFileObject(context.Context, store.FileObject) error
	GetFileObject(ctx context.Context, workspaceID, fileID string) (store.FileObject, error)
	ListFileObjects(context.Context, string) ([]store.FileObject, error)
	DeleteFileObject(ctx context.Context, workspaceID, fileID string) error
	Ping(ctx context.Context) error
}

// SessionStore is the refresh-token backend: Redis in production, the
// refresh_sessions table when Redis is not configured.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Deps carries the optional side-channel services. Email, Files, Search,
// Assistant, and Hub may be nil; the service degrades gracefully.
type Deps struct {
	Sessions  SessionStore
	Auth      *authpw.Service
	Email     *email.Service
	Files     *files.Service
	Search    *search.Service
	Assistant *assistant.Service
	Hub       *realtime.Hub
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	authpw    *authpw.Service
	email     *email.Service
	files     *files.Service
	search    *search.Service
	assistant *assistant.Service
	hub       *realtime.Hub
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Deps) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  deps.Sessions,
		authpw:    deps.Auth,
		email:     deps.Email,
		files:     deps.Files,
		search:    deps.Search,
		assistant: deps.Assistant,
		hub:       deps.Hub,
	}
}

// AuthPasswordService exposes the identity provider to the HTTP layer.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// SMTPConfigured reports whether outbound email is available.
func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// CreateSession issues a new access/refresh token pair for a user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked and a fresh
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, cached.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Email:     claims.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// workspaceRole resolves the caller's role in a workspace. An empty role
// means the caller has no active standing there.
func (s *Service) workspaceRole(ctx context.Context, workspaceID, userID string) (store.Workspace, rbac.Role, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, "", err
	}
	if ws.OwnerID == userID {
		return ws, rbac.RoleOwner, nil
	}
	m, err := s.store.GetActiveMembershipByUser(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ws, "", nil
		}
		return ws, "", err
	}
	return ws, rbac.Normalize(m.Role), nil
}
