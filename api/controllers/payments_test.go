package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/rohanvm/shopveda-backend/api/middleware"
	"github.com/rohanvm/shopveda-backend/internal/payments"
	"github.com/rohanvm/shopveda-backend/pkg/db/models"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
	"github.com/rohanvm/shopveda-backend/pkg/razorpay"
)

type stubPaymentsService struct {
	createFn func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error)
	verifyFn func(ctx context.Context, input payments.VerifyInput) (*payments.VerifyResult, error)
}

func (s *stubPaymentsService) CreatePaymentOrder(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not configured")
}

func (s *stubPaymentsService) VerifyPayment(ctx context.Context, input payments.VerifyInput) (*payments.VerifyResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not configured")
}

func authedRequest(t *testing.T, method, target string, body any, userID uuid.UUID) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	}
	return req
}

func TestCreatePaymentReturnsCheckoutMaterial(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	paymentID := uuid.New()
	svc := &stubPaymentsService{
		createFn: func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
			if input.OrderID != orderID {
				t.Fatalf("unexpected order id %s", input.OrderID)
			}
			if input.UserID != userID {
				t.Fatalf("unexpected user id %s", input.UserID)
			}
			return &payments.CreateOrderResult{
				Payment:      &models.Payment{ID: paymentID, AmountPaise: 100000},
				GatewayOrder: &razorpay.Order{ID: "order_live", Amount: 100000, Currency: "INR"},
				KeyID:        "rzp_test_key",
			}, nil
		},
	}
	handler := CreatePayment(svc, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/payments/create", map[string]string{"order_id": orderID.String()}, userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data createPaymentResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.RazorpayOrderID != "order_live" {
		t.Fatalf("unexpected gateway order id %q", envelope.Data.RazorpayOrderID)
	}
	if envelope.Data.Amount != 100000 {
		t.Fatalf("expected paise amount 100000, got %d", envelope.Data.Amount)
	}
	if envelope.Data.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected key id %q", envelope.Data.KeyID)
	}
}

func TestCreatePaymentRequiresAuth(t *testing.T) {
	handler := CreatePayment(&stubPaymentsService{}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/payments/create", map[string]string{"order_id": uuid.NewString()}, uuid.Nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreatePaymentRejectsMalformedBody(t *testing.T) {
	handler := CreatePayment(&stubPaymentsService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/create", bytes.NewReader([]byte(`{"order_id":`)))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVerifyPaymentSuccess(t *testing.T) {
	svc := &stubPaymentsService{
		verifyFn: func(ctx context.Context, input payments.VerifyInput) (*payments.VerifyResult, error) {
			return &payments.VerifyResult{
				Payment:     &models.Payment{ID: uuid.New(), Status: enums.PaymentStatusCompleted},
				OrderStatus: enums.OrderStatusPaid,
				Success:     true,
			}, nil
		},
	}
	handler := VerifyPayment(svc, nil)

	body := map[string]string{
		"razorpay_order_id":   "order_live",
		"razorpay_payment_id": "pay_live",
		"razorpay_signature":  "f00d",
	}
	req := authedRequest(t, http.MethodPost, "/api/v1/payments/verify", body, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data verifyPaymentResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Success {
		t.Fatal("expected success true")
	}
	if envelope.Data.PaymentStatus != "completed" || envelope.Data.OrderStatus != "paid" {
		t.Fatalf("unexpected statuses %s/%s", envelope.Data.PaymentStatus, envelope.Data.OrderStatus)
	}
}

func TestVerifyPaymentInvalidSignatureMapsTo400(t *testing.T) {
	svc := &stubPaymentsService{
		verifyFn: func(ctx context.Context, input payments.VerifyInput) (*payments.VerifyResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment signature")
		},
	}
	handler := VerifyPayment(svc, nil)

	body := map[string]string{
		"razorpay_order_id":   "order_live",
		"razorpay_payment_id": "pay_live",
		"razorpay_signature":  "bad",
	}
	req := authedRequest(t, http.MethodPost, "/api/v1/payments/verify", body, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Message != "invalid payment signature" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
}

func TestVerifyPaymentMissingFields(t *testing.T) {
	handler := VerifyPayment(&stubPaymentsService{}, nil)

	req := authedRequest(t, http.MethodPost, "/api/v1/payments/verify", map[string]string{"razorpay_order_id": "order_live"}, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
