package models

import (
	"time"
)

// Timeline event types.
const (
	TimelineEventStatusChange = "STATUS_CHANGE"
	TimelineEventComment      = "COMMENT"
)

// VerificationTimelineEvent is an append-only audit entry for a verification.
// Rows are never updated or deleted.
type VerificationTimelineEvent struct {
	ID             uint                  `json:"id" gorm:"primaryKey"`
	VerificationID uint                  `json:"verification_id" gorm:"not null;index"`
	DocumentID     *uint                 `json:"document_id,omitempty" gorm:"index"`
	Document       *VerificationDocument `json:"document,omitempty"`
	AuthorID       *uint                 `json:"author_id,omitempty" gorm:"index"`
	Author         *User                 `json:"author,omitempty"`
	Type           string                `json:"type" gorm:"size:16;not null;index"` // STATUS_CHANGE, COMMENT
	Status         string                `json:"status,omitempty" gorm:"size:32"`    // for STATUS_CHANGE
	Comment        string                `json:"comment,omitempty" gorm:"type:text"` // for COMMENT
	CreatedAt      time.Time             `json:"created_at"`
}
