package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/events"
	"github.com/Skotchmaster/notes/internal/logging"
	"github.com/Skotchmaster/notes/internal/models"
)

type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

type TokenIssuer interface {
	IssueWithExpiry(subject string, lifetime time.Duration) (string, time.Time, error)
}

type AuthService struct {
	Users         UserStore
	Hasher        PasswordHasher
	Tokens        TokenIssuer
	TokenLifetime time.Duration
	Events        events.Publisher

	dummyOnce   sync.Once
	dummyDigest string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

var errCredentialsRequired = apperr.New(apperr.KindValidation, "username and password required")

// fallbackDummyDigest is a well-formed cost-10 digest, used only if hashing the
// dummy password fails, so unknown usernames still pay a full comparison.
const fallbackDummyDigest = "$2a$10$XajjQvNhvvRt5GSeFk1xFeyqRrsxkhBkUiQeg0dt.wU1qD4aFDcga"

// blank reports whether a credential is empty after trimming. Passwords are
// still hashed exactly as given.
func blank(v string) bool { return strings.TrimSpace(v) == "" }

func (s *AuthService) Register(ctx context.Context, username, password, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || blank(password) {
		return nil, errCredentialsRequired
	}

	digest, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: username, Email: email, PasswordHash: digest}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	ev := events.New(events.TypeUserRegistered, user.ID)
	ev.Username = user.Username
	s.publish(ctx, ev)

	return user, nil
}

// Login answers an unknown username and a wrong password with the same error,
// and spends one bcrypt comparison in both cases.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || blank(password) {
		return nil, errCredentialsRequired
	}

	user, err := s.Users.FindUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.Hasher.Verify(password, s.dummy())
		return nil, apperr.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	if !s.Hasher.Verify(password, user.PasswordHash) {
		return nil, apperr.ErrInvalidCredentials
	}

	token, expiresAt, err := s.Tokens.IssueWithExpiry(strconv.FormatUint(uint64(user.ID), 10), s.TokenLifetime)
	if err != nil {
		return nil, err
	}

	ev := events.New(events.TypeUserLoggedIn, user.ID)
	ev.Username = user.Username
	s.publish(ctx, ev)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		User:      user,
	}, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		d, err := s.Hasher.Hash("not-a-real-password")
		if err != nil {
			d = fallbackDummyDigest
		}
		s.dummyDigest = d
	})
	return s.dummyDigest
}

func (s *AuthService) publish(ctx context.Context, ev events.Event) {
	publish(ctx, s.Events, ev)
}

func publish(ctx context.Context, p events.Publisher, ev events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", ev.Type, "error", err)
	}
}
