package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rohanvm/shopveda-backend/pkg/db"
	"github.com/rohanvm/shopveda-backend/pkg/db/models"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
)

// onePendingConstraint is the partial unique index that caps an order at a
// single pending payment row.
const onePendingConstraint = "payments_one_pending_per_order"

// Repository handles payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	ApplyStatus(ctx context.Context, update StatusUpdate) (*ApplyResult, error)
}

// StatusUpdate describes a reconciliation outcome to persist. OrderStatus may
// be empty, in which case the order row is left untouched.
type StatusUpdate struct {
	PaymentID        uuid.UUID
	PaymentStatus    enums.PaymentStatus
	OrderStatus      enums.OrderStatus
	GatewayPaymentID string
	RawResponse      *string
	Source           string
}

// ApplyResult reports what a status update actually changed. Duplicate is set
// when the payment was already in the requested terminal state and no rows
// were written.
type ApplyResult struct {
	Payment     *models.Payment
	OrderStatus enums.OrderStatus
	Duplicate   bool
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIdempotent inserts the payment. When the idempotency key already
// exists the stored row is returned with replayed=true. A collision on the
// one-pending-per-order index surfaces as a validation error since the caller
// should reuse the open attempt instead of opening another.
func (r *repository) CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	err := r.db.WithContext(ctx).Create(payment).Error
	if err == nil {
		return payment, false, nil
	}

	if db.IsUniqueViolation(err, "idx_payments_idempotency_key") || db.IsUniqueViolation(err, "payments_idempotency_key") {
		var existing models.Payment
		findErr := r.db.WithContext(ctx).
			Where("idempotency_key = ?", payment.IdempotencyKey).
			First(&existing).Error
		if findErr != nil {
			return nil, false, findErr
		}
		return &existing, true, nil
	}
	if db.IsUniqueViolation(err, onePendingConstraint) {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation,
			"a payment already exists for this order")
	}
	return nil, false, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("razorpay_order_id = ?", gatewayOrderID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ApplyStatus moves a payment and its order to the given statuses in one
// transaction, locking both rows. Redelivered updates short-circuit once the
// payment already sits in the requested terminal state.
func (r *repository) ApplyStatus(ctx context.Context, update StatusUpdate) (*ApplyResult, error) {
	if update.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !update.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	var result ApplyResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&payment, "id = ?", update.PaymentID).Error; err != nil {
			return err
		}

		if payment.Status == update.PaymentStatus {
			var order models.Order
			if err := tx.Select("status").First(&order, "id = ?", payment.OrderID).Error; err != nil {
				return err
			}
			result = ApplyResult{Payment: &payment, OrderStatus: order.Status, Duplicate: true}
			return nil
		}
		if payment.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"payment already settled with status "+payment.Status.String())
		}

		payment.Status = update.PaymentStatus
		if update.GatewayPaymentID != "" {
			payment.RazorpayPaymentID = &update.GatewayPaymentID
		}
		if update.RawResponse != nil {
			payment.RawResponse = update.RawResponse
		}
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", payment.OrderID).Error; err != nil {
			return err
		}
		if update.OrderStatus != "" && order.Status != update.OrderStatus {
			if err := tx.Model(&models.Order{}).
				Where("id = ?", order.ID).
				Update("status", update.OrderStatus).Error; err != nil {
				return err
			}
			order.Status = update.OrderStatus
		}

		audit := models.PaymentTransaction{
			PaymentID:    payment.ID,
			Gateway:      payment.Method.String(),
			GatewayTxnID: update.GatewayPaymentID,
			Status:       update.PaymentStatus,
			RawResponse:  update.RawResponse,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}

		result = ApplyResult{Payment: &payment, OrderStatus: order.Status}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	return &result, nil
}
