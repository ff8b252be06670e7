// Package search finds a user's notes by free text. ESIndex is used when an
// Elasticsearch URL is configured; DBIndex falls back to SQL LIKE matching.
package search

import (
	"context"

	"github.com/Skotchmaster/notes/internal/models"
	"github.com/Skotchmaster/notes/internal/repo"
)

type Result struct {
	Total int64
	Notes []models.Note
}

// NoteStore is the subset of the repository the indexes read from.
type NoteStore interface {
	NotesByIDs(ctx context.Context, userID uint, ids []uint) ([]models.Note, error)
	SearchNotes(ctx context.Context, userID uint, query string, offset, limit int) ([]models.Note, int64, error)
}

var _ NoteStore = (*repo.GormRepo)(nil)

// DBIndex has nothing to maintain: the notes table is the index.
type DBIndex struct {
	Store NoteStore
}

func (d *DBIndex) Index(context.Context, *models.Note) error { return nil }

func (d *DBIndex) Delete(context.Context, uint, uint) error { return nil }

func (d *DBIndex) Search(ctx context.Context, userID uint, query string, from, size int) (Result, error) {
	notes, total, err := d.Store.SearchNotes(ctx, userID, query, from, size)
	if err != nil {
		return Result{}, err
	}
	return Result{Total: total, Notes: notes}, nil
}
