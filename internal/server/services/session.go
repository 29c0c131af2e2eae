// Package services contains server-side business logic. This file implements
// SessionService, which handles registration, login, and the token-pair
// lifecycle: issuance, stateless access verification, refresh rotation, and
// revocation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/cryptox"
	"github.com/oasis-water/oasis-backend/internal/dbx"
	"github.com/oasis-water/oasis-backend/internal/server/auth"
	"github.com/oasis-water/oasis-backend/internal/server/config"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
}

// Identity is the resolved subject of a verified access token.
type Identity struct {
	UserID string
	Email  string
	Role   models.Role
}

// SessionService provides authentication-related operations:
//   - Register / Authenticate: account management against hashed credentials
//   - IssuePair: mint an access/refresh pair, persisting the refresh session
//   - VerifyAccess: stateless access-token verification plus live-subject check
//   - Rotate: single-use refresh rotation with forward-linked revocation
//   - Revoke: idempotent refresh revocation (logout)
type SessionService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	codec           *auth.Codec
	accessValidity  time.Duration
	refreshValidity time.Duration
}

// NewSessionService constructs a SessionService using repositories and server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *SessionService {
	return &SessionService{
		db:              db,
		repomanager:     m,
		codec:           auth.NewCodec([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience),
		accessValidity:  cfg.AccessTokenValidity,
		refreshValidity: cfg.RefreshTokenValidity,
	}
}

// Register creates a new active user with the given email and password.
// A duplicate email fails with common.ErrAlreadyExists.
func (s *SessionService) Register(ctx context.Context, email, password, fullName string, role models.Role) (*models.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}
	if role == "" {
		role = models.RoleUser
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, common.ErrInternal
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		IsActive:     true,
	}

	// The uniqueness check and the insert share one transaction so two
	// concurrent registrations of the same email cannot both pass the check.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if _, err := repo.GetByEmail(ctx, email); err == nil {
			return fmt.Errorf("%w: an account with this email already exists", common.ErrAlreadyExists)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		_, err := repo.Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies email/password credentials and stamps last_seen_at.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *SessionService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, common.ErrInternal
	}
	if !user.IsActive {
		return nil, common.ErrInactiveUser
	}
	if user.PasswordHash == "" || !cryptox.VerifyPassword(password, user.PasswordHash) {
		return nil, common.ErrUnauthorized
	}

	if err := repo.UpdateLastSeen(ctx, user.ID); err != nil {
		return nil, common.ErrInternal
	}
	user.LastSeenAt = time.Now()
	return user, nil
}

// IssuePair mints a new access/refresh pair for user. The refresh token's
// session is persisted keyed by its jti; access tokens persist nothing.
func (s *SessionService) IssuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, _, err := s.issuePair(ctx, user, s.db)
	return pair, err
}

func (s *SessionService) issuePair(ctx context.Context, user *models.User, db dbx.DBTX) (*TokenPair, string, error) {
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	access, err := s.codec.Encode(user, auth.TokenTypeAccess, accessJTI, s.accessValidity)
	if err != nil {
		return nil, "", common.ErrInternal
	}
	refresh, err := s.codec.Encode(user, auth.TokenTypeRefresh, refreshJTI, s.refreshValidity)
	if err != nil {
		return nil, "", common.ErrInternal
	}

	session := &models.RefreshSession{
		JTI:       refreshJTI,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.refreshValidity),
	}
	if err := s.repomanager.Sessions(db).Create(ctx, session); err != nil {
		return nil, "", common.ErrInternal
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessValidity.Seconds()),
	}, refreshJTI, nil
}

// VerifyAccess validates an access token and resolves its subject. It fails
// with common.ErrInvalidToken on any signature/expiry/claim problem and with
// common.ErrInactiveUser when the subject is gone or deactivated. It never
// writes to the store.
func (s *SessionService) VerifyAccess(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != auth.TokenTypeAccess || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.Subject)
	if err != nil || !user.IsActive {
		return nil, common.ErrInactiveUser
	}

	return &Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// Rotate redeems a refresh token for a new pair. The redeemed session is
// revoked and linked forward to its replacement, so a second Rotate with the
// same token fails with common.ErrSessionRevoked.
//
// Issuance happens before revocation: a crash between the two writes can
// transiently leave two live sessions, but never zero. The window is
// accepted rather than wrapped in a transaction; see DESIGN.md.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.refreshClaims(refreshToken)
	if err != nil {
		return nil, err
	}

	sessionsRepo := s.repomanager.Sessions(s.db)
	session, err := sessionsRepo.Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrSessionNotFound
		}
		return nil, common.ErrInternal
	}
	if session.Revoked() {
		return nil, common.ErrSessionRevoked
	}
	if session.Expired(time.Now()) {
		return nil, common.ErrSessionExpired
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		return nil, common.ErrInactiveUser
	}

	// Stamp last-seen before touching the session chain: failing here must
	// not discard an issued pair after the old session is already revoked.
	if err := s.repomanager.Users(s.db).UpdateLastSeen(ctx, user.ID); err != nil {
		return nil, common.ErrInternal
	}

	pair, newJTI, err := s.issuePair(ctx, user, s.db)
	if err != nil {
		return nil, err
	}
	if err := sessionsRepo.Revoke(ctx, claims.ID, newJTI); err != nil {
		return nil, common.ErrInternal
	}
	return pair, nil
}

// Revoke marks the refresh token's session revoked. Revoking an
// already-revoked session is a no-op.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.refreshClaims(refreshToken)
	if err != nil {
		return err
	}
	if err := s.repomanager.Sessions(s.db).Revoke(ctx, claims.ID, ""); err != nil {
		return common.ErrInternal
	}
	return nil
}

// Profile returns the user for the given id.
func (s *SessionService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

// ListUsers returns up to limit users, newest first.
func (s *SessionService) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.repomanager.Users(s.db).List(ctx, limit)
}

func (s *SessionService) refreshClaims(refreshToken string) (*auth.Claims, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
