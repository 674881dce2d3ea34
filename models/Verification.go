package models

import (
	"time"
)

// Verification statuses. REJECTED is terminal; everything between PENDING and
// VERIFIED is driven by document review (see services.VerificationService).
const (
	VerificationStatusPendingPayment        = "PENDING_PAYMENT"
	VerificationStatusPending               = "PENDING"
	VerificationStatusRequiresClarification = "REQUIRES_CLARIFICATION"
	VerificationStatusVerified              = "VERIFIED"
	VerificationStatusRejected              = "REJECTED"
)

// Payment statuses. Set only by the payment verification flow.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// Verification types, priced independently in the catalog.
const (
	VerificationTypeExpress = "EXPRESS"
	VerificationTypeNormal  = "NORMAL"
)

var VerificationTypes = []string{VerificationTypeExpress, VerificationTypeNormal}

type Verification struct {
	ID                uint                   `json:"id" gorm:"primaryKey"`
	UserID            uint                   `json:"user_id" gorm:"not null;index"`
	User              *User                  `json:"user,omitempty"`
	Status            string                 `json:"status" gorm:"size:32;default:'PENDING_PAYMENT';index"` // PENDING_PAYMENT, PENDING, REQUIRES_CLARIFICATION, VERIFIED, REJECTED
	PaymentStatus     string                 `json:"payment_status" gorm:"size:16;default:'PENDING';index"`  // PENDING, PAID, FAILED
	PaymentReference  string                 `json:"payment_reference" gorm:"size:64;uniqueIndex;not null"`
	PaymentAmount     float64                `json:"payment_amount"`
	PaymentURL        string                 `json:"payment_url" gorm:"size:512"`
	PaymentAccessCode string                 `json:"payment_access_code" gorm:"size:128"`
	Address           string                 `json:"address" gorm:"size:512;not null"`
	State             string                 `json:"state" gorm:"size:128;not null"`
	Type              string                 `json:"type" gorm:"size:16;not null;index"` // EXPRESS, NORMAL
	Documents         []VerificationDocument `json:"documents,omitempty" gorm:"foreignKey:VerificationID"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}
