package models

import (
	"time"
)

// VerificationComment is immutable once created; there is no edit or delete
// path for review discussion.
type VerificationComment struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DocumentID uint      `json:"document_id" gorm:"not null;index"`
	AuthorID   uint      `json:"author_id" gorm:"not null;index"`
	Author     *User     `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	IsAdmin    bool      `json:"is_admin" gorm:"default:false"`
	CreatedAt  time.Time `json:"created_at"`
}
