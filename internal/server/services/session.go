// Package services contains server-side business logic. This file implements
// SessionService, which handles registration, login, logout, silent refresh,
// and the cheap stateless "current user" check the page layer relies on.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/dgavrilenko/shopkeeper/internal/common"
	"github.com/dgavrilenko/shopkeeper/internal/dbx"
	"github.com/dgavrilenko/shopkeeper/internal/logging"
	"github.com/dgavrilenko/shopkeeper/internal/server/auth"
	"github.com/dgavrilenko/shopkeeper/internal/server/config"
	"github.com/dgavrilenko/shopkeeper/internal/server/models"
	"github.com/dgavrilenko/shopkeeper/internal/server/passwd"
	"github.com/dgavrilenko/shopkeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
// The HTTP layer turns these into the two auth cookies.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ClientMeta is the per-request client snapshot stored on the session row.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// SessionService provides authentication-related operations:
//   - Register: create users (and immediately log them in)
//   - Authorize: verify credentials
//   - LogIn / LogOut: open and soft-invalidate sessions
//   - Refresh: exchange a refresh token for a fresh TokenPair
//   - CurrentUser: decode the access token without touching the database
type SessionService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewSessionService constructs a SessionService using repositories and server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, l logging.Logger) *SessionService {
	return &SessionService{
		db:                           db,
		repomanager:                  m,
		logger:                       l.With("module", "sessions"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// AccessTokenValidity reports the configured access-token lifetime, which the
// HTTP layer reuses as the access cookie max-age.
func (s *SessionService) AccessTokenValidity() time.Duration { return s.accessTokenValidityDuration }

// RefreshTokenValidity reports the configured refresh-token lifetime.
func (s *SessionService) RefreshTokenValidity() time.Duration { return s.refreshTokenValidityDuration }

// Register validates the input, creates the user and its email row in one
// transaction, and immediately logs the new user in. A violated unique email
// index surfaces as common.ErrDuplicateEmail; any other persistence failure
// is logged and collapsed to common.ErrInternal.
func (s *SessionService) Register(ctx context.Context, name, email, password string, meta ClientMeta) (*models.User, *TokenPair, error) {
	if err := validateRegistration(name, email, password); err != nil {
		return nil, nil, err
	}

	hashed, err := passwd.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, nil, common.ErrInternal
	}

	user := &models.User{Name: name, Email: email, HashedPassword: hashed, Role: models.RoleUser}

	// User and email rows land together or not at all.
	s.logger.Debug(ctx, "sql", "op", "users.Create", "email", email)
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		user = created
		return nil
	}); err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, nil, common.ErrDuplicateEmail
		}
		s.logger.Error(ctx, "user registration failed", "error", err)
		return nil, nil, common.ErrInternal
	}

	pair, err := s.LogIn(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	user.HashedPassword = ""
	return user, pair, nil
}

// Authorize verifies an email/password pair. Unknown email and wrong password
// both return common.ErrInvalidCredentials so callers cannot tell which it was.
func (s *SessionService) Authorize(ctx context.Context, email, password string) (*models.User, error) {
	s.logger.Debug(ctx, "sql", "op", "users.GetByEmail", "email", email)
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "credential lookup failed", "error", err)
		return nil, common.ErrInternal
	}

	ok, err := passwd.Verify(password, user.HashedPassword)
	if err != nil || !ok {
		return nil, common.ErrInvalidCredentials
	}

	user.HashedPassword = ""
	return user, nil
}

// LogIn opens a session for user (recording the client snapshot) and mints
// the access/refresh pair bound to it.
func (s *SessionService) LogIn(ctx context.Context, user *models.User, meta ClientMeta) (*TokenPair, error) {
	s.logger.Debug(ctx, "sql", "op", "sessions.Create", "userId", user.ID)
	session, err := s.repomanager.Sessions(s.db).Create(ctx, user.ID, meta.IP, meta.UserAgent)
	if err != nil {
		s.logger.Error(ctx, "session creation failed", "error", err)
		return nil, common.ErrInternal
	}
	return s.generateTokenPair(user, session.Token)
}

// LogOut verifies the refresh token and soft-invalidates its session. The
// session row stays behind with valid=false for auditability. Invalidating an
// already-invalid session succeeds; a missing or bad token is Unauthorized.
func (s *SessionService) LogOut(ctx context.Context, refreshToken string) error {
	claims, err := auth.ParseRefreshToken(refreshToken, s.jwtSecret)
	if err != nil {
		return common.ErrUnauthorized
	}
	s.logger.Debug(ctx, "sql", "op", "sessions.Invalidate")
	if err := s.repomanager.Sessions(s.db).Invalidate(ctx, claims.SessionToken); err != nil {
		s.logger.Error(ctx, "session invalidation failed", "error", err)
		return common.ErrUnauthorized
	}
	return nil
}

// Refresh validates the refresh token, requires its session to still exist
// and be valid, and re-issues both tokens against the same session row. The
// superseded refresh token is not revoked: until the session is invalidated
// or the token expires it remains honorable, so two concurrent refreshes both
// succeed. Every failure in this path collapses to common.ErrUnauthorized.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.User, *TokenPair, error) {
	claims, err := auth.ParseRefreshToken(refreshToken, s.jwtSecret)
	if err != nil {
		return nil, nil, common.ErrUnauthorized
	}

	s.logger.Debug(ctx, "sql", "op", "sessions.GetByToken")
	session, err := s.repomanager.Sessions(s.db).GetByToken(ctx, claims.SessionToken)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "session lookup failed", "error", err)
		}
		return nil, nil, common.ErrUnauthorized
	}
	if !session.Valid {
		return nil, nil, common.ErrUnauthorized
	}

	user := &models.User{
		ID:    session.UserID,
		Name:  session.UserName,
		Email: session.UserEmail,
		Role:  session.UserRole,
	}

	pair, err := s.generateTokenPair(user, session.Token)
	if err != nil {
		return nil, nil, common.ErrUnauthorized
	}
	return user, pair, nil
}

// CurrentUser decodes the access token and returns the user claims it
// carries, or nil on any failure (missing, expired, malformed, tampered).
// It never touches the database: this is the hot-path "am I logged in" check.
func (s *SessionService) CurrentUser(accessToken string) *models.User {
	if accessToken == "" {
		return nil
	}
	claims, err := auth.ParseAccessToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil
	}
	return &models.User{
		ID:    claims.UserID,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}
}

// EnsureAdmin returns user unchanged when it holds the admin role, and
// common.ErrUnauthorized otherwise (including a nil user). Whether that
// becomes a redirect or an error response is the caller's decision.
func (s *SessionService) EnsureAdmin(user *models.User) (*models.User, error) {
	if user == nil || user.Role != models.RoleAdmin {
		return nil, common.ErrUnauthorized
	}
	return user, nil
}

// --- helpers below ---

const minPasswordLength = 8

func validateRegistration(name, email, password string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}
	return nil
}

func (s *SessionService) generateTokenPair(user *models.User, sessionToken string) (*TokenPair, error) {
	access, err := auth.SignAccessToken(user, sessionToken, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrInternal
	}
	refresh, err := auth.SignRefreshToken(sessionToken, s.jwtSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, common.ErrInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
