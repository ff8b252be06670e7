package hash

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/notes/internal/apperr"
)

// Hasher produces salted bcrypt digests. The zero value uses bcrypt.DefaultCost.
type Hasher struct {
	cost int
}

func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	cost := h.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Wrap(apperr.KindValidation, "password is too long", err)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashbytes), nil
}

// Verify reports whether password matches digest. bcrypt compares the
// derived keys with subtle.ConstantTimeCompare.
func (h *Hasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
