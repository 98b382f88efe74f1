package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

// AuthUser is the identity resolved from a bearer token.
type AuthUser struct {
	ID        uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsAdmin   bool      `json:"is_admin"`

	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// DisplayName joins first and last name, falling back to the email.
func (u *AuthUser) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

type contextKey string

const UserContextKey contextKey = "auth_user"

// GetUser retrieves the authenticated user from the Echo context
func GetUser(c echo.Context) *AuthUser {
	if user, ok := c.Get(string(UserContextKey)).(*AuthUser); ok {
		return user
	}
	return nil
}

// Middleware authenticates requests with tokens issued by TokenManager.
type Middleware struct {
	tokens  *TokenManager
	revoker Revoker
	log     *slog.Logger
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(tokens *TokenManager, revoker Revoker, log *slog.Logger) *Middleware {
	return &Middleware{
		tokens:  tokens,
		revoker: revoker,
		log:     log.With(logger.Scope("auth")),
	}
}

// RequireAuth rejects requests without a valid, unrevoked bearer token.
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := m.authenticate(c)
			if err != nil {
				m.log.Debug("authentication failed",
					slog.String("path", c.Path()),
					logger.Error(err))
				return err
			}
			c.Set(string(UserContextKey), user)
			return next(c)
		}
	}
}

// RequireAdmin must run after RequireAuth.
func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := GetUser(c)
			if user == nil {
				return apperror.ErrUnauthorized
			}
			if !user.IsAdmin {
				return apperror.NewForbidden("Administrator role required")
			}
			return next(c)
		}
	}
}

func (m *Middleware) authenticate(c echo.Context) (*AuthUser, error) {
	token := extractToken(c.Request())
	if token == "" {
		return nil, apperror.ErrMissingToken
	}

	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := m.revoker.IsRevoked(c.Request().Context(), claims.ID)
	if err != nil {
		return nil, apperror.NewInternal("token revocation check failed", err)
	}
	if revoked {
		return nil, apperror.ErrInvalidToken.WithMessage("Token has been revoked")
	}

	return &AuthUser{
		ID:        uuid.MustParse(claims.Subject),
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		IsAdmin:   claims.IsAdmin,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// extractToken returns the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
