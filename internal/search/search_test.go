package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/notes/internal/db"
	"github.com/Skotchmaster/notes/internal/models"
	"github.com/Skotchmaster/notes/internal/repo"
)

func newTestStore(t *testing.T) *repo.GormRepo {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return repo.New(gdb)
}

func seed(t *testing.T, r *repo.GormRepo) (userID uint, notes []*models.Note) {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Username: "alice", PasswordHash: "x"}
	require.NoError(t, r.CreateUser(ctx, u))
	for _, title := range []string{"shopping list", "meeting notes"} {
		n := &models.Note{UserID: u.ID, Title: title, Content: "content of " + title}
		require.NoError(t, r.CreateNote(ctx, n))
		notes = append(notes, n)
	}
	return u.ID, notes
}

func TestDBIndex_Search(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	userID, _ := seed(t, store)
	idx := &DBIndex{Store: store}

	require.NoError(t, idx.Index(context.Background(), &models.Note{}))
	res, err := idx.Search(context.Background(), userID, "SHOPPING", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "shopping list", res.Notes[0].Title)
}

// fakeES answers the handful of endpoints ESIndex calls.
type fakeES struct {
	mu       sync.Mutex
	indexed  map[string]string
	deleted  []string
	lastBody map[string]any
	hits     []string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "_search":
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &f.lastBody)
		hits := make([]map[string]any, 0, len(f.hits))
		for _, id := range f.hits {
			hits = append(hits, map[string]any{"_id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": len(f.hits)},
				"hits":  hits,
			},
		})
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, parts[2])
		if _, ok := f.indexed[parts[2]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"result":"not_found"}`))
			return
		}
		delete(f.indexed, parts[2])
		_, _ = w.Write([]byte(`{"result":"deleted"}`))
	case len(parts) == 3 && parts[1] == "_doc":
		body, _ := io.ReadAll(r.Body)
		f.indexed[parts[2]] = string(body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	default:
		_, _ = w.Write([]byte(`{"version":{"number":"9.0.0"},"tagline":"You Know, for Search"}`))
	}
}

func newTestESIndex(t *testing.T, store NoteStore) (*ESIndex, *fakeES) {
	t.Helper()
	fake := &fakeES{indexed: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewESClient(ESConfig{URL: srv.URL})
	require.NoError(t, err)
	return NewESIndex(client, "notes", store), fake
}

func TestESIndex_IndexAndDelete(t *testing.T) {
	t.Parallel()

	idx, fake := newTestESIndex(t, newTestStore(t))
	ctx := context.Background()

	require.NoError(t, idx.Ping(ctx))

	note := &models.Note{ID: 5, UserID: 2, Title: "hello", Content: "world"}
	require.NoError(t, idx.Index(ctx, note))
	fake.mu.Lock()
	doc, ok := fake.indexed["5"]
	fake.mu.Unlock()
	require.True(t, ok)
	assert.Contains(t, doc, `"title":"hello"`)

	require.NoError(t, idx.Delete(ctx, 2, 5))
	require.NoError(t, idx.Delete(ctx, 2, 5), "missing document is not an error")
	fake.mu.Lock()
	assert.Equal(t, []string{"5", "5"}, fake.deleted)
	fake.mu.Unlock()
}

func TestESIndex_SearchHydratesFromStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	userID, notes := seed(t, store)
	idx, fake := newTestESIndex(t, store)

	fake.mu.Lock()
	fake.hits = []string{docID(notes[1].ID), "999", docID(notes[0].ID)}
	fake.mu.Unlock()

	res, err := idx.Search(context.Background(), userID, "notes", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	require.Len(t, res.Notes, 2, "stale hit 999 is dropped")
	assert.Equal(t, notes[1].ID, res.Notes[0].ID)
	assert.Equal(t, notes[0].ID, res.Notes[1].ID)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	filter := fake.lastBody["query"].(map[string]any)["bool"].(map[string]any)["filter"].(map[string]any)
	assert.EqualValues(t, userID, filter["term"].(map[string]any)["user_id"])
}
