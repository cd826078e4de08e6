package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rohanvm/shopveda-backend/api/responses"
	"github.com/rohanvm/shopveda-backend/api/validators"
	"github.com/rohanvm/shopveda-backend/internal/payments"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
	"github.com/rohanvm/shopveda-backend/pkg/logger"
)

// PaymentsService is the slice of the payment orchestrator the HTTP layer
// uses.
type PaymentsService interface {
	CreatePaymentOrder(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error)
	VerifyPayment(ctx context.Context, input payments.VerifyInput) (*payments.VerifyResult, error)
}

type createPaymentRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type createPaymentResponse struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	RazorpayOrderID string    `json:"razorpay_order_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	KeyID           string    `json:"key_id"`
}

// CreatePayment opens a Razorpay order for one of the caller's pending
// orders and returns what the checkout widget needs.
func CreatePayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePaymentOrder(r.Context(), payments.CreateOrderInput{
			OrderID:        payload.OrderID,
			UserID:         userID,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, createPaymentResponse{
			PaymentID:       result.Payment.ID,
			RazorpayOrderID: result.GatewayOrder.ID,
			Amount:          result.GatewayOrder.Amount,
			Currency:        result.GatewayOrder.Currency,
			KeyID:           result.KeyID,
		})
	}
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

type verifyPaymentResponse struct {
	Success       bool   `json:"success"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
}

// VerifyPayment reconciles the checkout callback with the gateway.
func VerifyPayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyPayment(r.Context(), payments.VerifyInput{
			GatewayOrderID:   payload.RazorpayOrderID,
			GatewayPaymentID: payload.RazorpayPaymentID,
			Signature:        payload.RazorpaySignature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, verifyPaymentResponse{
			Success:       result.Success,
			PaymentStatus: result.Payment.Status.String(),
			OrderStatus:   result.OrderStatus.String(),
		})
	}
}
