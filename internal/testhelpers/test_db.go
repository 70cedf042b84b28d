package testhelpers

import (
	"fmt"
	"strings"
	"testing"

	"collabnotes/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	openSQLite = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	}
	migrateSchema = func(db *gorm.DB) error { return db.AutoMigrate(models.Tables()...) }
)

// SetupTestDB creates an isolated in-memory SQLite database for tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := openSQLite(dsn)
	if err != nil {
		panic(fmt.Sprintf("failed to open test database: %v", err))
	}
	// one connection keeps shared-cache sqlite from reporting table locks
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := migrateSchema(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedUser inserts a user with a throwaway password hash.
func SeedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "hash"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user %q: %v", username, err)
	}
	return user
}

// SeedNote inserts a note owned by ownerID.
func SeedNote(t *testing.T, db *gorm.DB, ownerID uint, title string, public bool) *models.Note {
	t.Helper()
	note := &models.Note{Title: title, OwnerID: ownerID, IsPublic: public, Version: 1}
	if err := db.Create(note).Error; err != nil {
		t.Fatalf("failed to seed note %q: %v", title, err)
	}
	return note
}

// Grant gives userID the permission on noteID.
func Grant(t *testing.T, db *gorm.DB, noteID string, userID uint, level models.AccessLevel) {
	t.Helper()
	c := &models.Collaborator{NoteID: noteID, UserID: userID, Permission: level}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to grant %s on %s: %v", level, noteID, err)
	}
}
