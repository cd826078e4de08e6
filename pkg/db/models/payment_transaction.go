package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohanvm/shopveda-backend/pkg/enums"
)

// PaymentTransaction is an append-only audit row recording each gateway
// interaction tied to a payment. Rows are never updated or deleted.
type PaymentTransaction struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID     uuid.UUID           `gorm:"column:payment_id;type:uuid;not null;index"`
	Gateway       string              `gorm:"column:gateway;not null;default:'razorpay'"`
	GatewayTxnID  string              `gorm:"column:gateway_txn_id"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	RawResponse   *string             `gorm:"column:raw_response;type:jsonb"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}
