package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/logging"
	authmw "github.com/Skotchmaster/notes/internal/middleware/auth"
	"github.com/Skotchmaster/notes/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

var errInvalidBody = apperr.New(apperr.KindValidation, "invalid request body")

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return errInvalidBody
	}

	user, err := h.Svc.Register(ctx, req.Username, req.Password, req.Email)
	if err != nil {
		l.Warn("register_failed", "kind", apperr.KindOf(err), "error", err)
		return err
	}

	l.Info("register_successful", "user_id", user.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "registered successfully",
		"user":    user,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return errInvalidBody
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		l.Warn("login_failed", "kind", apperr.KindOf(err), "error", err)
		return err
	}

	l.Info("login_successful", "user_id", res.User.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"token":      res.Token,
		"token_type": "Bearer",
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
		"username":   res.User.Username,
	})
}

// LogOut has nothing to revoke: tokens are stateless and the client drops its copy.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logout on client by deleting token",
	})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	user, ok := authmw.UserFromContext(c.Request().Context())
	if !ok {
		return apperr.ErrUnauthenticated
	}
	return c.JSON(http.StatusOK, user)
}
