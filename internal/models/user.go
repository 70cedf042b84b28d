package models

import (
	"strconv"

	"gorm.io/gorm"
)

// User represents a registered user in the system.
type User struct {
	gorm.Model
	Username     string `gorm:"unique;not null" json:"username"`
	Email        string `gorm:"unique;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
}

// IDString is the user id as carried in tokens and presence rosters.
func (u *User) IDString() string { return strconv.FormatUint(uint64(u.ID), 10) }

func (u *User) Identity() Identity {
	return Identity{UserID: u.IDString(), Username: u.Username}
}

// PublicUser is the profile shape returned to other users.
type PublicUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}
