package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tahopetis/crate/internal/config"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/auth"
	"github.com/tahopetis/crate/pkg/logger"
	"github.com/tahopetis/crate/pkg/validate"
)

const searchLimit = 10

// Service handles registration, sign-in and user lookup
type Service struct {
	store   Store
	tokens  *auth.TokenManager
	revoker auth.Revoker
	cfg     config.AuthConfig
	log     *slog.Logger
	now     func() time.Time
}

// NewService creates a new users service
func NewService(store Store, tokens *auth.TokenManager, revoker auth.Revoker, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		revoker: revoker,
		cfg:     cfg.Auth,
		log:     log.With(logger.Scope("users.svc")),
		now:     time.Now,
	}
}

// Register creates an account. Self-registration can be switched off, except
// for the very first account, which becomes the administrator.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if problems := auth.PasswordProblems(req.Password, s.cfg.PasswordMinLength); len(problems) > 0 {
		return nil, apperror.NewValidationErrors("Password is too weak", problems)
	}
	if !s.cfg.AllowRegistration {
		n, err := s.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperror.NewForbidden("registration is disabled")
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.NewInternal("hash password", err)
	}
	now := s.now().UTC()
	u := &User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info("user registered", slog.String("user_id", u.ID.String()), slog.Bool("is_admin", u.IsAdmin))
	return u, nil
}

// Login verifies credentials and issues a bearer token. Unknown emails, wrong
// passwords and inactive accounts all fail the same way.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.store.GetByEmail(ctx, req.Email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, apperror.ErrInvalidCredentials
	}

	token, _, err := s.tokens.Issue(auth.Identity{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsAdmin:   u.IsAdmin,
	})
	if err != nil {
		return nil, apperror.NewInternal("issue token", err)
	}
	return &LoginResponse{
		User:      u,
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}

// Logout revokes the token the caller authenticated with.
func (s *Service) Logout(ctx context.Context, user *auth.AuthUser) error {
	if user == nil {
		return apperror.ErrUnauthorized
	}
	if err := s.revoker.Revoke(ctx, user.TokenID, user.ExpiresAt); err != nil {
		return apperror.NewInternal("revoke token", err)
	}
	return nil
}

// Me returns the account behind the current token.
func (s *Service) Me(ctx context.Context, user *auth.AuthUser) (*User, error) {
	if user == nil {
		return nil, apperror.ErrUnauthorized
	}
	u, err := s.store.GetByID(ctx, user.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.ErrInvalidToken
	}
	return u, err
}

// SearchByEmail searches active users by email fragment, excluding the caller.
func (s *Service) SearchByEmail(ctx context.Context, q string, excludeID *uuid.UUID) ([]SearchResult, error) {
	q = strings.TrimSpace(q)
	if len(q) < 2 {
		return nil, apperror.NewValidation("email query must be at least 2 characters")
	}
	return s.store.SearchByEmail(ctx, q, excludeID, searchLimit)
}
