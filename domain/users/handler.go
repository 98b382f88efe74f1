package users

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/auth"
)

// Handler handles HTTP requests for users
type Handler struct {
	svc *Service
}

// NewHandler creates a new users handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register handles POST /api/v1/auth/register
// @Summary      Register
// @Description  Creates an account. The first account becomes the administrator.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Account"
// @Success      201 {object} User
// @Failure      403 {object} apperror.Error "Registration disabled"
// @Failure      409 {object} apperror.Error "Email already registered"
// @Failure      422 {object} apperror.Error "Validation failed"
// @Router       /api/v1/auth/register [post]
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

// Login handles POST /api/v1/auth/login
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Credentials"
// @Success      200 {object} LoginResponse
// @Failure      401 {object} apperror.Error "Invalid credentials"
// @Router       /api/v1/auth/login [post]
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Logout handles POST /api/v1/auth/logout
// @Summary      Log out
// @Description  Revokes the presented token until it expires.
// @Tags         auth
// @Success      204 "Logged out"
// @Router       /api/v1/auth/logout [post]
// @Security     bearerAuth
func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), auth.GetUser(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Success      200 {object} User
// @Router       /api/v1/auth/me [get]
// @Security     bearerAuth
func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context(), auth.GetUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Search handles GET /api/v1/users/search?email=<query>
// @Summary      Search users by email
// @Tags         users
// @Produce      json
// @Param        email query string true "Email fragment (2+ characters)"
// @Success      200 {array} SearchResult
// @Router       /api/v1/users/search [get]
// @Security     bearerAuth
func (h *Handler) Search(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}
	results, err := h.svc.SearchByEmail(c.Request().Context(), c.QueryParam("email"), &user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}
