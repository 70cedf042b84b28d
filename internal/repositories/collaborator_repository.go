package repositories

import (
	"context"
	"errors"

	"collabnotes/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCollaboratorNotFound = errors.New("collaborator not found")

type CollaboratorRepository struct {
	DB *gorm.DB
}

// Upsert grants or changes a user's permission on a note.
func (r *CollaboratorRepository) Upsert(ctx context.Context, c *models.Collaborator) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "note_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission", "updated_at"}),
	}).Create(c).Error
}

func (r *CollaboratorRepository) Get(ctx context.Context, noteID string, userID uint) (*models.Collaborator, error) {
	var c models.Collaborator
	err := r.DB.WithContext(ctx).First(&c, "note_id = ? AND user_id = ?", noteID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCollaboratorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CollaboratorRepository) List(ctx context.Context, noteID string) ([]models.Collaborator, error) {
	var out []models.Collaborator
	err := r.DB.WithContext(ctx).Where("note_id = ?", noteID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *CollaboratorRepository) Remove(ctx context.Context, noteID string, userID uint) error {
	result := r.DB.WithContext(ctx).Where("note_id = ? AND user_id = ?", noteID, userID).Delete(&models.Collaborator{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCollaboratorNotFound
	}
	return nil
}
