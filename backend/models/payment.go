package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// Payment is the single verification record for a (user, course) pair. A
// rejected record is reused in place on resubmission instead of creating a
// second row; the unique index is what makes concurrent submits safe.
type Payment struct {
	gorm.Model
	UserID          uint       `gorm:"not null;uniqueIndex:idx_payments_user_course" json:"user_id"`
	CourseID        uint       `gorm:"not null;uniqueIndex:idx_payments_user_course" json:"course_id"`
	TransactionID   string     `gorm:"not null" json:"transaction_id"`
	ProofPath       string     `gorm:"not null" json:"proof_path"`
	Amount          int64      `gorm:"not null" json:"amount"`
	Status          string     `gorm:"default:pending" json:"status"` // pending, approved, rejected
	VerifiedBy      *uint      `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}
