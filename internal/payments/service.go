package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanvm/shopveda-backend/internal/orders"
	"github.com/rohanvm/shopveda-backend/pkg/db/models"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
	"github.com/rohanvm/shopveda-backend/pkg/logger"
	"github.com/rohanvm/shopveda-backend/pkg/metrics"
	"github.com/rohanvm/shopveda-backend/pkg/razorpay"
)

// orderIDNoteKey links a gateway order back to the local order row.
const orderIDNoteKey = "order_id"

// reconciliation sources recorded on metrics and audit rows.
const (
	sourceCheckout = "checkout"
	sourceWebhook  = "webhook"
)

// Gateway is the slice of the Razorpay client the orchestrator needs.
type Gateway interface {
	CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error)
	KeyID() string
	PaymentSecret() string
}

// ServiceParams groups dependencies for the payment orchestrator.
type ServiceParams struct {
	Repo    Repository
	Orders  orders.Repository
	Gateway Gateway
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
}

// Service orchestrates payment creation and verification against the gateway.
type Service struct {
	repo    Repository
	orders  orders.Repository
	gateway Gateway
	logger  *logger.Logger
	metrics *metrics.PaymentMetrics
}

// NewService builds the payment orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("payments repository required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway client required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Service{
		repo:    params.Repo,
		orders:  params.Orders,
		gateway: params.Gateway,
		logger:  params.Logger,
		metrics: params.Metrics,
	}, nil
}

// CreateOrderInput identifies the local order to open a gateway payment for.
// UserID scopes ownership; uuid.Nil skips the check for internal callers.
type CreateOrderInput struct {
	OrderID        uuid.UUID
	UserID         uuid.UUID
	IdempotencyKey string
}

// CreateOrderResult carries everything the storefront needs to launch the
// Razorpay checkout widget.
type CreateOrderResult struct {
	Payment      *models.Payment
	GatewayOrder *razorpay.Order
	KeyID        string
}

// VerifyInput is the callback payload the storefront posts after checkout.
type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyResult reports the reconciled statuses after verification.
type VerifyResult struct {
	Payment     *models.Payment
	OrderStatus enums.OrderStatus
	Success     bool
}

// CreatePaymentOrder opens a gateway order for a pending local order and
// records the payment attempt. Replaying the same idempotency key returns the
// original attempt without touching the gateway again.
func (s *Service) CreatePaymentOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.UserID != uuid.Nil && order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("order has status %s; payments can only be created for pending orders", order.Status))
	}

	if pending, err := s.repo.FindPendingByOrder(ctx, order.ID); err == nil {
		if input.IdempotencyKey != "" && pending.IdempotencyKey == input.IdempotencyKey {
			start := time.Now()
			gatewayOrder, fetchErr := s.gateway.FetchOrder(ctx, pending.RazorpayOrderID)
			s.metrics.ObserveGatewayCall("fetch_order", time.Since(start))
			if fetchErr != nil {
				return nil, fetchErr
			}
			return &CreateOrderResult{Payment: pending, GatewayOrder: gatewayOrder, KeyID: s.gateway.KeyID()}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a payment already exists for this order")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up pending payment")
	}

	amountPaise := order.Total.Mul(decimal.NewFromInt(100)).IntPart()
	if amountPaise <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	start := time.Now()
	gatewayOrder, err := s.gateway.CreateOrder(ctx, razorpay.OrderCreateParams{
		AmountPaise: amountPaise,
		Currency:    "INR",
		Receipt:     order.OrderNumber,
		Notes:       map[string]string{orderIDNoteKey: order.ID.String()},
	})
	s.metrics.ObserveGatewayCall("create_order", time.Since(start))
	if err != nil {
		return nil, err
	}

	key := input.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	payment := &models.Payment{
		OrderID:         order.ID,
		Method:          enums.PaymentMethodRazorpay,
		Status:          enums.PaymentStatusPending,
		AmountPaise:     amountPaise,
		RazorpayOrderID: gatewayOrder.ID,
		IdempotencyKey:  key,
	}
	stored, replayed, err := s.repo.CreateIdempotent(ctx, payment)
	if err != nil {
		// The gateway order exists but nothing local references it; leave a
		// trail so ops can void it.
		ctx = s.logger.WithFields(ctx, map[string]any{
			"order_id":          order.ID.String(),
			"razorpay_order_id": gatewayOrder.ID,
		})
		s.logger.Error(ctx, "payment persist failed after gateway order creation", err)
		if pkgErr := pkgerrors.As(err); pkgErr.Code() != pkgerrors.CodeInternal {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}
	if replayed {
		s.logger.Info(s.logger.WithOrderID(ctx, order.ID.String()), "payment create replayed for idempotency key")
	}

	return &CreateOrderResult{Payment: stored, GatewayOrder: gatewayOrder, KeyID: s.gateway.KeyID()}, nil
}

// VerifyPayment validates the checkout callback signature and reconciles the
// local payment and order with the gateway's view. A bad signature stops the
// flow before any gateway call is made.
func (s *Service) VerifyPayment(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			"razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}

	if !razorpay.VerifyPaymentSignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature, s.gateway.PaymentSecret()) {
		s.metrics.IncReconciliation(sourceCheckout, "signature_rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment signature")
	}

	start := time.Now()
	gatewayPayment, err := s.gateway.FetchPayment(ctx, input.GatewayPaymentID)
	s.metrics.ObserveGatewayCall("fetch_payment", time.Since(start))
	if err != nil {
		return nil, err
	}
	start = time.Now()
	gatewayOrder, err := s.gateway.FetchOrder(ctx, input.GatewayOrderID)
	s.metrics.ObserveGatewayCall("fetch_order", time.Since(start))
	if err != nil {
		return nil, err
	}

	orderID, err := orderIDFromNotes(gatewayOrder.Notes)
	if err != nil {
		ctx = s.logger.WithField(ctx, "razorpay_order_id", gatewayOrder.ID)
		s.logger.Error(ctx, "gateway order is missing the local order reference", err)
		return nil, err
	}

	payment, err := s.repo.FindLatestByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment recorded for this order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.RazorpayOrderID != input.GatewayOrderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to this gateway order")
	}

	update := StatusUpdate{
		PaymentID:        payment.ID,
		GatewayPaymentID: gatewayPayment.ID,
		RawResponse:      marshalRaw(gatewayPayment),
		Source:           sourceCheckout,
	}
	captured := gatewayPayment.Status == razorpay.PaymentStatusCaptured
	if captured {
		update.PaymentStatus = enums.PaymentStatusCompleted
		update.OrderStatus = enums.OrderStatusPaid
	} else {
		update.PaymentStatus = enums.PaymentStatusFailed
	}

	result, err := s.repo.ApplyStatus(ctx, update)
	if err != nil {
		s.metrics.IncReconciliation(sourceCheckout, "error")
		return nil, err
	}

	outcome := update.PaymentStatus.String()
	if result.Duplicate {
		outcome = "duplicate"
	}
	s.metrics.IncReconciliation(sourceCheckout, outcome)
	ctx = s.logger.WithFields(ctx, map[string]any{
		"order_id":            orderID.String(),
		"razorpay_payment_id": gatewayPayment.ID,
		"payment_status":      result.Payment.Status.String(),
	})
	s.logger.Info(ctx, "payment verification reconciled")

	return &VerifyResult{
		Payment:     result.Payment,
		OrderStatus: result.OrderStatus,
		Success:     captured,
	}, nil
}

// orderIDFromNotes extracts the local order id a gateway order was tagged
// with at creation time. Absence is an internal fault: every gateway order
// this service creates carries the note.
func orderIDFromNotes(notes map[string]string) (uuid.UUID, error) {
	raw, ok := notes[orderIDNoteKey]
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway order has no order_id note")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "gateway order carries a malformed order_id note")
	}
	return id, nil
}

func marshalRaw(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
