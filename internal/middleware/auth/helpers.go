package auth

import (
	"context"
	"strings"

	"github.com/Skotchmaster/notes/internal/models"
)

type ctxKey struct{}

func IntoContext(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user resolved by RequireAuth. ok is false on
// routes that are not behind it.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*models.User)
	return u, ok && u != nil
}

// ExtractToken accepts "Bearer <token>" with any casing of the scheme, or a
// bare token.
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	if found {
		// Some other scheme, or a value with spaces: not a token we issued.
		return ""
	}
	return header
}
