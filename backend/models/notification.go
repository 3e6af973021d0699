package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotifyPaymentSubmitted = "payment_submitted"
	NotifyPaymentStatus    = "payment_status"
)

// Notification is the persisted record of one outbound message. Delivery
// failures land in Error; they are never surfaced to the request that
// triggered them.
type Notification struct {
	gorm.Model
	UserID  uint           `gorm:"not null;index" json:"user_id"`
	Kind    string         `gorm:"not null" json:"kind"`
	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Payload datatypes.JSON `json:"payload,omitempty"`
	SentAt  *time.Time     `json:"sent_at,omitempty"`
	Error   string         `json:"error,omitempty"`
}
