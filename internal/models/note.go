package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Note is a collaboratively edited document.
type Note struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Content   string         `json:"content"`
	OwnerID   uint           `gorm:"index;not null" json:"ownerId"`
	IsPublic  bool           `gorm:"not null;default:false" json:"isPublic"`
	Version   int64          `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate ID if not set
func (n *Note) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// NoteVersion snapshots a note's state before a content change.
type NoteVersion struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	NoteID     string    `gorm:"type:varchar(36);uniqueIndex:idx_note_version;not null" json:"noteId"`
	Version    int64     `gorm:"uniqueIndex:idx_note_version;not null" json:"version"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ModifiedBy uint      `json:"modifiedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Collaborator grants a user access to someone else's note.
type Collaborator struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	NoteID     string      `gorm:"type:varchar(36);uniqueIndex:idx_note_user;not null" json:"noteId"`
	UserID     uint        `gorm:"uniqueIndex:idx_note_user;not null" json:"userId"`
	Permission AccessLevel `gorm:"type:varchar(8);not null" json:"permission"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Tables lists every persisted model for migrations.
func Tables() []any {
	return []any{&User{}, &Note{}, &NoteVersion{}, &Collaborator{}}
}
