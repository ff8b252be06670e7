package models

import (
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Username     string    `gorm:"uniqueIndex;not null"      json:"username"`
	Email        string    `gorm:"default:''"                json:"email,omitempty"`
	PasswordHash string    `gorm:"not null"                  json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Note struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	UserID    uint      `gorm:"index;not null"            json:"user_id"`
	Title     string    `gorm:"not null"                  json:"title"`
	Content   string    `gorm:"type:text;not null"        json:"content"`
	CreatedAt time.Time `gorm:"index"                     json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All lists every model handled by AutoMigrate.
func All() []any {
	return []any{&User{}, &Note{}}
}
