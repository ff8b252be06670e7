package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/events"
	"github.com/Skotchmaster/notes/internal/logging"
	"github.com/Skotchmaster/notes/internal/models"
	"github.com/Skotchmaster/notes/internal/repo"
	"github.com/Skotchmaster/notes/internal/search"
	"github.com/Skotchmaster/notes/internal/util"
)

type NoteStore interface {
	ListNotes(ctx context.Context, userID uint) ([]models.Note, error)
	CreateNote(ctx context.Context, n *models.Note) error
	GetNote(ctx context.Context, userID, id uint) (*models.Note, error)
	UpdateNote(ctx context.Context, userID, id uint, upd repo.NoteUpdate) (*models.Note, error)
	DeleteNote(ctx context.Context, userID, id uint) error
}

type SearchIndex interface {
	Index(ctx context.Context, n *models.Note) error
	Delete(ctx context.Context, userID, noteID uint) error
	Search(ctx context.Context, userID uint, query string, from, size int) (search.Result, error)
}

var errNoSearchIndex = errors.New("search index not configured")

type NoteService struct {
	Notes  NoteStore
	Index  SearchIndex
	Events events.Publisher
}

type NoteInput struct {
	Title   *string
	Content *string
}

func (s *NoteService) List(ctx context.Context, userID uint) ([]models.Note, error) {
	return s.Notes.ListNotes(ctx, userID)
}

func (s *NoteService) Get(ctx context.Context, userID, id uint) (*models.Note, error) {
	return s.Notes.GetNote(ctx, userID, id)
}

func (s *NoteService) Create(ctx context.Context, userID uint, title, content string) (*models.Note, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, apperr.New(apperr.KindValidation, "title and content required")
	}

	note := &models.Note{UserID: userID, Title: title, Content: content}
	if err := s.Notes.CreateNote(ctx, note); err != nil {
		return nil, err
	}

	s.index(ctx, note)
	s.publish(ctx, events.TypeNoteCreated, note)
	return note, nil
}

// Update changes only the fields present in in. A present field is trimmed
// and must not end up empty.
func (s *NoteService) Update(ctx context.Context, userID, id uint, in NoteInput) (*models.Note, error) {
	var upd repo.NoteUpdate
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, apperr.New(apperr.KindValidation, "title must not be empty")
		}
		upd.Title = &t
	}
	if in.Content != nil {
		c := strings.TrimSpace(*in.Content)
		if c == "" {
			return nil, apperr.New(apperr.KindValidation, "content must not be empty")
		}
		upd.Content = &c
	}

	note, err := s.Notes.UpdateNote(ctx, userID, id, upd)
	if err != nil {
		return nil, err
	}

	s.index(ctx, note)
	s.publish(ctx, events.TypeNoteUpdated, note)
	return note, nil
}

func (s *NoteService) Delete(ctx context.Context, userID, id uint) error {
	if err := s.Notes.DeleteNote(ctx, userID, id); err != nil {
		return err
	}

	if s.Index != nil {
		if err := s.Index.Delete(ctx, userID, id); err != nil {
			logging.FromContext(ctx).Warn("search_unindex_failed", "note_id", id, "error", err)
		}
	}
	s.publish(ctx, events.TypeNoteDeleted, &models.Note{ID: id, UserID: userID})
	return nil
}

func (s *NoteService) Search(ctx context.Context, userID uint, query string, page, size int) (search.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Result{}, apperr.New(apperr.KindValidation, "query must not be empty")
	}
	if s.Index == nil {
		return search.Result{}, errNoSearchIndex
	}
	from, limit := util.Calculate(page, size)
	return s.Index.Search(ctx, userID, query, from, limit)
}

func (s *NoteService) index(ctx context.Context, n *models.Note) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Index(ctx, n); err != nil {
		logging.FromContext(ctx).Warn("search_index_failed", "note_id", n.ID, "error", err)
	}
}

func (s *NoteService) publish(ctx context.Context, typ string, n *models.Note) {
	ev := events.New(typ, n.UserID)
	ev.NoteID = n.ID
	publish(ctx, s.Events, ev)
}
