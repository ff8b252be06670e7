package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/models"
)

// NoteUpdate carries the fields of a partial update; nil leaves a field as is.
type NoteUpdate struct {
	Title   *string
	Content *string
}

func notFoundNote(err error) error {
	return apperr.Wrap(apperr.KindNotFound, "note not found", err)
}

func (r *GormRepo) ListNotes(ctx context.Context, userID uint) ([]models.Note, error) {
	notes := make([]models.Note, 0)
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (r *GormRepo) CreateNote(ctx context.Context, n *models.Note) error {
	if err := r.DB.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// GetNote returns the note only when userID owns it. A note owned by someone
// else is reported exactly like a missing one.
func (r *GormRepo) GetNote(ctx context.Context, userID, id uint) (*models.Note, error) {
	return r.getNote(r.DB.WithContext(ctx), userID, id)
}

func (r *GormRepo) getNote(db *gorm.DB, userID, id uint) (*models.Note, error) {
	var note models.Note
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundNote(err)
		}
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &note, nil
}

func (r *GormRepo) UpdateNote(ctx context.Context, userID, id uint, upd NoteUpdate) (*models.Note, error) {
	var note *models.Note
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := r.getNote(tx, userID, id)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			n.Title = *upd.Title
		}
		if upd.Content != nil {
			n.Content = *upd.Content
		}
		if err := tx.Save(n).Error; err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		note = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (r *GormRepo) DeleteNote(ctx context.Context, userID, id uint) error {
	res := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Note{})
	if res.Error != nil {
		return fmt.Errorf("delete note: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundNote(nil)
	}
	return nil
}

// NotesByIDs loads userID's notes with the given ids, keeping the order of ids.
// Ids that are missing or owned by another user are skipped.
func (r *GormRepo) NotesByIDs(ctx context.Context, userID uint, ids []uint) ([]models.Note, error) {
	out := make([]models.Note, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var found []models.Note
	if err := r.DB.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("notes by ids: %w", err)
	}
	byID := make(map[uint]models.Note, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchNotes does a case-insensitive substring match over title and content.
func (r *GormRepo) SearchNotes(ctx context.Context, userID uint, query string, offset, limit int) ([]models.Note, int64, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	base := r.DB.WithContext(ctx).Model(&models.Note{}).
		Where("user_id = ?", userID).
		Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\')`, pattern, pattern)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	notes := make([]models.Note, 0)
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&notes).Error
	if err != nil {
		return nil, 0, fmt.Errorf("search notes: %w", err)
	}
	return notes, total, nil
}
