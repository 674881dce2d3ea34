package models

import (
	"time"
)

// Document statuses. The verification's aggregate status is derived from
// these on every document status update.
const (
	DocumentStatusPending               = "PENDING"
	DocumentStatusVerified              = "VERIFIED"
	DocumentStatusRequiresClarification = "REQUIRES_CLARIFICATION"
)

var DocumentStatuses = []string{DocumentStatusPending, DocumentStatusVerified, DocumentStatusRequiresClarification}

type VerificationDocument struct {
	ID             uint                  `json:"id" gorm:"primaryKey"`
	VerificationID uint                  `json:"verification_id" gorm:"not null;index"`
	Name           string                `json:"name" gorm:"size:255;not null"`
	FileURL        string                `json:"file_url" gorm:"size:512;not null"`
	Status         string                `json:"status" gorm:"size:32;default:'PENDING';index"` // PENDING, VERIFIED, REQUIRES_CLARIFICATION
	Comments       []VerificationComment `json:"comments,omitempty" gorm:"foreignKey:DocumentID"`
	CreatedAt      time.Time             `json:"uploaded_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
