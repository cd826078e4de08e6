package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohanvm/shopveda-backend/pkg/enums"
)

// Payment tracks the gateway payment attempt for an order. A partial unique
// index (payments_one_pending_per_order) enforces at most one pending payment
// per order; idempotency_key carries a full unique index so a replayed create
// returns the original row instead of inserting a second one.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method            enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'razorpay'"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	AmountPaise       int64               `gorm:"column:amount_paise;not null"`
	RazorpayOrderID   string              `gorm:"column:razorpay_order_id;index"`
	RazorpayPaymentID *string             `gorm:"column:razorpay_payment_id"`
	IdempotencyKey    string              `gorm:"column:idempotency_key;not null;uniqueIndex"`
	RawResponse       *string             `gorm:"column:raw_response;type:jsonb"`
	Transactions      []PaymentTransaction `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
