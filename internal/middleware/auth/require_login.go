package auth

import (
	"context"
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/logging"
	"github.com/Skotchmaster/notes/internal/models"
	"github.com/Skotchmaster/notes/internal/tokens"
)

type TokenVerifier interface {
	Verify(raw string) (*tokens.Claims, error)
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
}

// FailureRecorder counts rejected requests by reason.
type FailureRecorder interface {
	AuthFailure(reason string)
}

type Middleware struct {
	Tokens   TokenVerifier
	Users    UserFinder
	Failures FailureRecorder
}

const (
	reasonMissing      = "token_missing"
	reasonExpired      = "token_expired"
	reasonInvalid      = "invalid_token"
	reasonUserNotFound = "user_not_found"
)

var (
	errTokenMissing = apperr.New(apperr.KindUnauthenticated, "token missing")
	errTokenExpired = apperr.New(apperr.KindUnauthenticated, "token expired")
	errTokenInvalid = apperr.New(apperr.KindUnauthenticated, "invalid token")
	errUserNotFound = apperr.New(apperr.KindUnauthenticated, "user not found")
)

// Resolve turns an Authorization header value into the user it names.
// Every failure is an Unauthenticated error except a store failure, which
// is returned as is.
func (m *Middleware) Resolve(ctx context.Context, header string) (*models.User, error) {
	raw := ExtractToken(header)
	if raw == "" {
		return nil, errTokenMissing
	}

	claims, err := m.Tokens.Verify(raw)
	switch {
	case errors.Is(err, tokens.ErrTokenExpired):
		return nil, errTokenExpired
	case err != nil:
		return nil, errTokenInvalid
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 0)
	if err != nil || id == 0 {
		return nil, errTokenInvalid
	}

	user, err := m.Users.FindUserByID(ctx, uint(id))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()
		l := logging.FromContext(ctx).With("middleware", "require_auth")

		user, err := m.Resolve(ctx, req.Header.Get(echo.HeaderAuthorization))
		if err != nil {
			if apperr.KindOf(err) != apperr.KindUnauthenticated {
				l.Error("auth_lookup_failed", "status", 500, "error", err)
				return err
			}
			reason := failureReason(err)
			m.recordFailure(reason)
			l.Warn("auth_rejected", "status", 401, "reason", reason)
			return err
		}

		ctx = IntoContext(ctx, user)
		ctx = logging.IntoContext(ctx, logging.FromContext(ctx).With("user_id", user.ID))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (m *Middleware) recordFailure(reason string) {
	if m.Failures != nil {
		m.Failures.AuthFailure(reason)
	}
}

func failureReason(err error) string {
	switch err {
	case errTokenMissing:
		return reasonMissing
	case errTokenExpired:
		return reasonExpired
	case errUserNotFound:
		return reasonUserNotFound
	default:
		return reasonInvalid
	}
}
