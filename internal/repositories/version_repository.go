package repositories

import (
	"context"
	"errors"

	"collabnotes/internal/models"

	"gorm.io/gorm"
)

var ErrVersionNotFound = errors.New("version not found")

type VersionRepository struct {
	DB *gorm.DB
}

// List returns a note's history, newest first.
func (r *VersionRepository) List(ctx context.Context, noteID string, page, limit int) ([]models.NoteVersion, int64, error) {
	query := func() *gorm.DB {
		return r.DB.WithContext(ctx).Model(&models.NoteVersion{}).Where("note_id = ?", noteID)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var versions []models.NoteVersion
	err := query().Order("version DESC").Offset((page - 1) * limit).Limit(limit).Find(&versions).Error
	if err != nil {
		return nil, 0, err
	}
	return versions, total, nil
}

func (r *VersionRepository) Get(ctx context.Context, noteID string, version int64) (*models.NoteVersion, error) {
	var v models.NoteVersion
	err := r.DB.WithContext(ctx).First(&v, "note_id = ? AND version = ?", noteID, version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
