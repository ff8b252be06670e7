package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/notes/internal/models"
)

type ESConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type ESIndex struct {
	client *elasticsearch.Client
	index  string
	store  NoteStore
}

func NewESClient(cfg ESConfig) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return client, nil
}

func NewESIndex(client *elasticsearch.Client, index string, store NoteStore) *ESIndex {
	return &ESIndex{client: client, index: index, store: store}
}

// Ping checks that the cluster answers.
func (e *ESIndex) Ping(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch info: %s", res.Status())
	}
	return nil
}

func (e *ESIndex) Index(ctx context.Context, n *models.Note) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode note: %w", err)
	}

	res, err := e.client.Index(
		e.index,
		bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(docID(n.ID)),
		e.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("index note %d: %w", n.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index note %d: %s", n.ID, errorBody(res.Body, res.Status()))
	}
	return nil
}

// Delete removes the note document. A document that is already gone is not an error.
func (e *ESIndex) Delete(ctx context.Context, _ uint, noteID uint) error {
	res, err := e.client.Delete(
		e.index,
		docID(noteID),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete note %d: %w", noteID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete note %d: %s", noteID, errorBody(res.Body, res.Status()))
	}
	return nil
}

// Search matches title and content with fuzziness, restricted to userID's
// documents. Hits are loaded back from the store, which drops stale entries
// for notes deleted since they were indexed.
func (e *ESIndex) Search(ctx context.Context, userID uint, query string, from, size int) (Result, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"title^2", "content"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"user_id": userID},
				},
			},
		},
		"_source": false,
		"from":    from,
		"size":    size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Result{}, fmt.Errorf("encode search: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Result{}, fmt.Errorf("search: %s", errorBody(res.Body, res.Status()))
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("decode search: %w", err)
	}

	ids := make([]uint, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}

	notes, err := e.store.NotesByIDs(ctx, userID, ids)
	if err != nil {
		return Result{}, err
	}
	return Result{Total: r.Hits.Total.Value, Notes: notes}, nil
}

func docID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func errorBody(body io.Reader, status string) string {
	b, _ := io.ReadAll(io.LimitReader(body, 1<<10))
	if len(b) == 0 {
		return status
	}
	return status + ": " + string(b)
}
