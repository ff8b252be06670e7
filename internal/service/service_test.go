package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/db"
	"github.com/Skotchmaster/notes/internal/events"
	"github.com/Skotchmaster/notes/internal/hash"
	"github.com/Skotchmaster/notes/internal/models"
	"github.com/Skotchmaster/notes/internal/repo"
	"github.com/Skotchmaster/notes/internal/search"
	"github.com/Skotchmaster/notes/internal/tokens"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// countingHasher wraps the real hasher to count Verify calls.
type countingHasher struct {
	*hash.Hasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(password, digest string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Hasher.Verify(password, digest)
}

type fixture struct {
	repo   *repo.GormRepo
	codec  *tokens.Codec
	hasher *countingHasher
	pub    *recordingPublisher
	auth   *AuthService
	notes  *NoteService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	r := repo.New(gdb)
	codec := tokens.NewCodec([]byte("test-jwt-secret"))
	hasher := &countingHasher{Hasher: hash.New(bcrypt.MinCost)}
	pub := &recordingPublisher{}

	return &fixture{
		repo:   r,
		codec:  codec,
		hasher: hasher,
		pub:    pub,
		auth: &AuthService{
			Users:         r,
			Hasher:        hasher,
			Tokens:        codec,
			TokenLifetime: 24 * time.Hour,
			Events:        pub,
		},
		notes: &NoteService{
			Notes:  r,
			Index:  &search.DBIndex{Store: r},
			Events: pub,
		},
	}
}

func TestAuthService_Register(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.Register(ctx, "  alice ", "secret123", " alice@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "secret123", u.PasswordHash)
	assert.True(t, f.hasher.Hasher.Verify("secret123", u.PasswordHash))

	_, err = f.auth.Register(ctx, "alice", "another", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDuplicateUsername)

	stored, err := f.repo.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, stored.PasswordHash)

	assert.Equal(t, []string{events.TypeUserRegistered}, f.pub.types())
}

func TestAuthService_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "", password: "secret"},
		{name: "blank username", username: "   ", password: "secret"},
		{name: "empty password", username: "user", password: ""},
		{name: "blank password", username: "user", password: "   "},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.auth.Register(ctx, tt.username, tt.password, "")
			assert.ErrorIs(t, err, apperr.ErrValidation)

			res, err := f.auth.Login(ctx, tt.username, tt.password)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)

	before := time.Now()
	res, err := f.auth.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	assert.WithinDuration(t, before.Add(24*time.Hour), res.ExpiresAt, 2*time.Second)

	claims, err := f.codec.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.True(t, res.ExpiresAt.Equal(claims.ExpiresAt.Time), "expires_at %s, exp %s", res.ExpiresAt, claims.ExpiresAt.Time)

	assert.Equal(t, []string{events.TypeUserRegistered, events.TypeUserLoggedIn}, f.pub.types())
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)

	_, wrongPw := f.auth.Login(ctx, "alice", "wrong")
	_, unknown := f.auth.Login(ctx, "mallory", "secret123")

	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(wrongPw))
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(unknown))
	assert.Equal(t, 2, f.hasher.verifies, "unknown usernames still pay a bcrypt comparison")
}

func TestAuthService_PasswordIsHashedAsGiven(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "alice", " padded pw ", "")
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "alice", " padded pw ")
	require.NoError(t, err)
	_, err = f.auth.Login(ctx, "alice", "padded pw")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

// brokenHasher cannot hash and records the digests it is asked to verify.
type brokenHasher struct {
	mu      sync.Mutex
	digests []string
}

func (h *brokenHasher) Hash(string) (string, error) { return "", errors.New("rng unavailable") }

func (h *brokenHasher) Verify(password, digest string) bool {
	h.mu.Lock()
	h.digests = append(h.digests, digest)
	h.mu.Unlock()
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

func TestAuthService_UnknownUserUsesWellFormedDigestWhenHashingFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &brokenHasher{}
	f.auth.Hasher = h

	_, err := f.auth.Login(context.Background(), "mallory", "secret123")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	require.Len(t, h.digests, 1)
	cost, err := bcrypt.Cost([]byte(h.digests[0]))
	require.NoError(t, err, "the comparison must run against a parseable digest")
	assert.GreaterOrEqual(t, cost, bcrypt.DefaultCost)
}

func TestAuthService_PublishFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	_, err := f.auth.Register(context.Background(), "bob", "secret123", "")
	require.NoError(t, err)
}

func TestNoteService_CRUD(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)
	bob, err := f.auth.Register(ctx, "bob", "secret123", "")
	require.NoError(t, err)

	_, err = f.notes.Create(ctx, alice.ID, "  ", "content")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	n, err := f.notes.Create(ctx, alice.ID, " Title ", " Body ")
	require.NoError(t, err)
	assert.Equal(t, "Title", n.Title)
	assert.Equal(t, "Body", n.Content)

	_, err = f.notes.Get(ctx, bob.ID, n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	empty := ""
	_, err = f.notes.Update(ctx, alice.ID, n.ID, NoteInput{Title: &empty})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	newTitle := " New title "
	updated, err := f.notes.Update(ctx, alice.ID, n.ID, NoteInput{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "Body", updated.Content)

	_, err = f.notes.Update(ctx, bob.ID, n.ID, NoteInput{Title: &newTitle})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, f.notes.Delete(ctx, bob.ID, n.ID), apperr.ErrNotFound)
	require.NoError(t, f.notes.Delete(ctx, alice.ID, n.ID))
	assert.ErrorIs(t, f.notes.Delete(ctx, alice.ID, n.ID), apperr.ErrNotFound)

	list, err := f.notes.List(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, []string{
		events.TypeUserRegistered,
		events.TypeUserRegistered,
		events.TypeNoteCreated,
		events.TypeNoteUpdated,
		events.TypeNoteDeleted,
	}, f.pub.types())
}

func TestNoteService_Search(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.notes.Create(ctx, u.ID, "groceries", "milk")
		require.NoError(t, err)
	}
	_, err = f.notes.Create(ctx, u.ID, "work", "deadline")
	require.NoError(t, err)

	_, err = f.notes.Search(ctx, u.ID, "  ", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	res, err := f.notes.Search(ctx, u.ID, "milk", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Notes, 2)

	res, err = f.notes.Search(ctx, u.ID, "milk", 2, 2)
	require.NoError(t, err)
	assert.Len(t, res.Notes, 1)
}

func TestNoteService_SearchWithoutIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.notes.Index = nil

	u, err := f.auth.Register(context.Background(), "alice", "secret123", "")
	require.NoError(t, err)
	_, err = f.notes.Create(context.Background(), u.ID, "t", "c")
	require.NoError(t, err)

	_, err = f.notes.Search(context.Background(), u.ID, "t", 1, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

type failingIndex struct{ *search.DBIndex }

func (failingIndex) Index(context.Context, *models.Note) error { return errors.New("es down") }

func TestNoteService_IndexFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.notes.Index = failingIndex{&search.DBIndex{Store: f.repo}}

	u, err := f.auth.Register(context.Background(), "alice", "secret123", "")
	require.NoError(t, err)
	_, err = f.notes.Create(context.Background(), u.ID, "t", "c")
	require.NoError(t, err)
}
