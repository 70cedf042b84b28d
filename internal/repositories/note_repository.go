package repositories

import (
	"context"
	"errors"

	"collabnotes/internal/models"

	"gorm.io/gorm"
)

var ErrNoteNotFound = errors.New("note not found")

type NoteRepository struct {
	DB *gorm.DB
}

// NoteChanges lists the fields a caller wants to overwrite; nil means keep.
type NoteChanges struct {
	Title    *string
	Content  *string
	IsPublic *bool
}

func (c NoteChanges) touchesContent() bool { return c.Title != nil || c.Content != nil }

func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	if note.Version == 0 {
		note.Version = 1
	}
	return r.DB.WithContext(ctx).Create(note).Error
}

func (r *NoteRepository) Get(ctx context.Context, noteID string) (*models.Note, error) {
	return getNote(r.DB.WithContext(ctx), noteID)
}

func getNote(db *gorm.DB, noteID string) (*models.Note, error) {
	var note models.Note
	err := db.First(&note, "id = ?", noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// ListAccessible pages through notes the user owns or collaborates on,
// most recently updated first.
func (r *NoteRepository) ListAccessible(ctx context.Context, userID uint, page, limit int) ([]models.Note, int64, error) {
	query := func() *gorm.DB {
		db := r.DB.WithContext(ctx)
		shared := db.Model(&models.Collaborator{}).Select("note_id").Where("user_id = ?", userID)
		return db.Model(&models.Note{}).
			Where("owner_id = ? OR id IN (?)", userID, shared)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notes []models.Note
	err := query().Order("updated_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notes).Error
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// Update applies changes to a note. A title or content change first records
// the current state as a NoteVersion and bumps the version counter.
func (r *NoteRepository) Update(ctx context.Context, noteID string, changes NoteChanges, modifiedBy uint) (*models.Note, error) {
	var updated *models.Note
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := getNote(tx, noteID)
		if err != nil {
			return err
		}

		if changes.touchesContent() {
			snapshot := &models.NoteVersion{
				NoteID:     note.ID,
				Version:    note.Version,
				Title:      note.Title,
				Content:    note.Content,
				ModifiedBy: modifiedBy,
			}
			if err := tx.Create(snapshot).Error; err != nil {
				return err
			}
			note.Version++
		}
		if changes.Title != nil {
			note.Title = *changes.Title
		}
		if changes.Content != nil {
			note.Content = *changes.Content
		}
		if changes.IsPublic != nil {
			note.IsPublic = *changes.IsPublic
		}

		if err := tx.Save(note).Error; err != nil {
			return err
		}
		updated = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete soft-deletes the note and drops its grants and history.
func (r *NoteRepository) Delete(ctx context.Context, noteID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Note{}, "id = ?", noteID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNoteNotFound
		}
		if err := tx.Where("note_id = ?", noteID).Delete(&models.Collaborator{}).Error; err != nil {
			return err
		}
		return tx.Where("note_id = ?", noteID).Delete(&models.NoteVersion{}).Error
	})
}
