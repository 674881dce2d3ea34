package models

import (
	"time"
)

// VerificationPrice holds the current fee for one verification type, in
// display currency units. One row per type.
type VerificationPrice struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Type      string    `json:"type" gorm:"size:16;uniqueIndex;not null"` // EXPRESS, NORMAL
	Price     float64   `json:"price" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
