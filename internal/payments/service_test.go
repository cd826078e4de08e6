package payments

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanvm/shopveda-backend/internal/orders"
	"github.com/rohanvm/shopveda-backend/pkg/db/models"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
	"github.com/rohanvm/shopveda-backend/pkg/logger"
	"github.com/rohanvm/shopveda-backend/pkg/pagination"
	"github.com/rohanvm/shopveda-backend/pkg/razorpay"
)

const testSecret = "test_payment_secret"

type stubPaymentRepo struct {
	createFn      func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	findPendingFn func(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	findLatestFn  func(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	applyFn       func(ctx context.Context, update StatusUpdate) (*ApplyResult, error)

	applied []StatusUpdate
}

func (s *stubPaymentRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubPaymentRepo) CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	if s.createFn != nil {
		return s.createFn(ctx, payment)
	}
	payment.ID = uuid.New()
	return payment, false, nil
}
func (s *stubPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubPaymentRepo) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	if s.findPendingFn != nil {
		return s.findPendingFn(ctx, orderID)
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *stubPaymentRepo) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	if s.findLatestFn != nil {
		return s.findLatestFn(ctx, orderID)
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *stubPaymentRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubPaymentRepo) ApplyStatus(ctx context.Context, update StatusUpdate) (*ApplyResult, error) {
	s.applied = append(s.applied, update)
	if s.applyFn != nil {
		return s.applyFn(ctx, update)
	}
	return &ApplyResult{
		Payment:     &models.Payment{ID: update.PaymentID, Status: update.PaymentStatus},
		OrderStatus: update.OrderStatus,
	}, nil
}

type stubOrderRepo struct {
	findFn func(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }
func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}
func (s *stubOrderRepo) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	return nil
}
func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *stubOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	return nil, nil
}
func (s *stubOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return nil
}

type stubGateway struct {
	createOrderFn  func(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error)
	fetchPaymentFn func(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	fetchOrderFn   func(ctx context.Context, orderID string) (*razorpay.Order, error)

	createOrderCalls  int
	fetchPaymentCalls int
}

func (s *stubGateway) CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error) {
	s.createOrderCalls++
	if s.createOrderFn != nil {
		return s.createOrderFn(ctx, params)
	}
	return &razorpay.Order{
		ID:       "order_stub",
		Amount:   params.AmountPaise,
		Currency: params.Currency,
		Receipt:  params.Receipt,
		Status:   razorpay.OrderStatusCreated,
		Notes:    params.Notes,
	}, nil
}
func (s *stubGateway) FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error) {
	s.fetchPaymentCalls++
	if s.fetchPaymentFn != nil {
		return s.fetchPaymentFn(ctx, paymentID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "unexpected gateway call")
}
func (s *stubGateway) FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error) {
	if s.fetchOrderFn != nil {
		return s.fetchOrderFn(ctx, orderID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "unexpected gateway call")
}
func (s *stubGateway) KeyID() string         { return "rzp_test_key" }
func (s *stubGateway) PaymentSecret() string { return testSecret }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
}

func newPaymentService(t *testing.T, repo Repository, orderRepo orders.Repository, gw Gateway) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Orders:  orderRepo,
		Gateway: gw,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func pendingOrder(userID uuid.UUID, total decimal.Decimal) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "SV-TEST000001",
		UserID:      userID,
		Status:      enums.OrderStatusPending,
		Total:       total,
	}
}

func TestCreatePaymentOrderConvertsRupeesToPaise(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, decimal.NewFromInt(1000))
	orderRepo := &stubOrderRepo{findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return order, nil
	}}
	gw := &stubGateway{}
	svc := newPaymentService(t, &stubPaymentRepo{}, orderRepo, gw)

	result, err := svc.CreatePaymentOrder(context.Background(), CreateOrderInput{OrderID: order.ID, UserID: userID})
	if err != nil {
		t.Fatalf("CreatePaymentOrder: %v", err)
	}

	if result.GatewayOrder.Amount != 100000 {
		t.Fatalf("expected gateway amount 100000 paise, got %d", result.GatewayOrder.Amount)
	}
	if result.Payment.AmountPaise != 100000 {
		t.Fatalf("expected stored amount 100000 paise, got %d", result.Payment.AmountPaise)
	}
	if result.Payment.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", result.Payment.Status)
	}
	if result.GatewayOrder.Notes[orderIDNoteKey] != order.ID.String() {
		t.Fatal("gateway order should carry the local order id note")
	}
	if result.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected key id %q", result.KeyID)
	}
}

func TestCreatePaymentOrderRejectsNonPendingOrder(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, decimal.NewFromInt(500))
	order.Status = enums.OrderStatusPaid
	orderRepo := &stubOrderRepo{findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return order, nil
	}}
	gw := &stubGateway{}
	svc := newPaymentService(t, &stubPaymentRepo{}, orderRepo, gw)

	_, err := svc.CreatePaymentOrder(context.Background(), CreateOrderInput{OrderID: order.ID, UserID: userID})
	if err == nil {
		t.Fatal("expected error for non-pending order")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.createOrderCalls != 0 {
		t.Fatal("gateway should not be called for a non-pending order")
	}
}

func TestCreatePaymentOrderRejectsForeignOrder(t *testing.T) {
	order := pendingOrder(uuid.New(), decimal.NewFromInt(500))
	orderRepo := &stubOrderRepo{findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return order, nil
	}}
	svc := newPaymentService(t, &stubPaymentRepo{}, orderRepo, &stubGateway{})

	_, err := svc.CreatePaymentOrder(context.Background(), CreateOrderInput{OrderID: order.ID, UserID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for foreign order")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestCreatePaymentOrderMissingOrder(t *testing.T) {
	svc := newPaymentService(t, &stubPaymentRepo{}, &stubOrderRepo{}, &stubGateway{})

	_, err := svc.CreatePaymentOrder(context.Background(), CreateOrderInput{OrderID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for missing order")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCreatePaymentOrderRejectsSecondPendingAttempt(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, decimal.NewFromInt(750))
	orderRepo := &stubOrderRepo{findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return order, nil
	}}
	repo := &stubPaymentRepo{
		findPendingFn: func(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
			return &models.Payment{
				ID:              uuid.New(),
				OrderID:         orderID,
				Status:          enums.PaymentStatusPending,
				IdempotencyKey:  "first-attempt",
				RazorpayOrderID: "order_open",
			}, nil
		},
	}
	gw := &stubGateway{}
	svc := newPaymentService(t, repo, orderRepo, gw)

	_, err := svc.CreatePaymentOrder(context.Background(), CreateOrderInput{OrderID: order.ID, UserID: userID})
	if err == nil {
		t.Fatal("expected error when a pending payment already exists")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.createOrderCalls != 0 {
		t.Fatal("gateway should not be called when a pending payment exists")
	}
}

func TestCreatePaymentOrderReplaysIdempotencyKey(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, decimal.NewFromInt(750))
	orderRepo := &stubOrderRepo{findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		return order, nil
	}}
	existing := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Status:          enums.PaymentStatusPending,
		IdempotencyKey:  "attempt-1",
		RazorpayOrderID: "order_open",
		AmountPaise:     75000,
	}
	repo := &stubPaymentRepo{
		findPendingFn: func(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
			return existing, nil
		},
	}
	gw := &stubGateway{
		fetchOrderFn: func(ctx context.Context, orderID string) (*razorpay.Order, error) {
			return &razorpay.Order{ID: orderID, Amount: 75000, Status: razorpay.OrderStatusCreated}, nil
		},
	}
	svc := newPaymentService(t, repo, orderRepo, gw)

	result, err := svc.CreatePaymentOrder(context.Background(), CreateOrderInput{
		OrderID:        order.ID,
		UserID:         userID,
		IdempotencyKey: "attempt-1",
	})
	if err != nil {
		t.Fatalf("CreatePaymentOrder replay: %v", err)
	}
	if result.Payment.ID != existing.ID {
		t.Fatal("replay should return the original payment attempt")
	}
	if gw.createOrderCalls != 0 {
		t.Fatal("replay must not create a second gateway order")
	}
}

func signFor(orderID, paymentID string) string {
	return razorpay.ComputeSignature(testSecret, orderID+"|"+paymentID)
}

func TestVerifyPaymentRejectsTamperedSignature(t *testing.T) {
	gw := &stubGateway{}
	repo := &stubPaymentRepo{}
	svc := newPaymentService(t, repo, &stubOrderRepo{}, gw)

	sig := signFor("order_abc", "pay_abc")
	_, err := svc.VerifyPayment(context.Background(), VerifyInput{
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_tampered",
		Signature:        sig,
	})
	if err == nil {
		t.Fatal("expected error for tampered signature")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.fetchPaymentCalls != 0 {
		t.Fatal("gateway must not be called when the signature fails")
	}
	if len(repo.applied) != 0 {
		t.Fatal("no status update should be applied when the signature fails")
	}
}

func TestVerifyPaymentCapturedMarksOrderPaid(t *testing.T) {
	orderID := uuid.New()
	paymentID := uuid.New()
	repo := &stubPaymentRepo{
		findLatestFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return &models.Payment{
				ID:              paymentID,
				OrderID:         id,
				Status:          enums.PaymentStatusPending,
				RazorpayOrderID: "order_abc",
			}, nil
		},
	}
	gw := &stubGateway{
		fetchPaymentFn: func(ctx context.Context, id string) (*razorpay.Payment, error) {
			return &razorpay.Payment{ID: id, OrderID: "order_abc", Status: razorpay.PaymentStatusCaptured}, nil
		},
		fetchOrderFn: func(ctx context.Context, id string) (*razorpay.Order, error) {
			return &razorpay.Order{
				ID:     id,
				Status: razorpay.OrderStatusPaid,
				Notes:  map[string]string{orderIDNoteKey: orderID.String()},
			}, nil
		},
	}
	svc := newPaymentService(t, repo, &stubOrderRepo{}, gw)

	result, err := svc.VerifyPayment(context.Background(), VerifyInput{
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_abc",
		Signature:        signFor("order_abc", "pay_abc"),
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if !result.Success {
		t.Fatal("expected captured payment to verify successfully")
	}
	if result.Payment.Status != enums.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", result.Payment.Status)
	}
	if result.OrderStatus != enums.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", result.OrderStatus)
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected one status update, got %d", len(repo.applied))
	}
	if repo.applied[0].GatewayPaymentID != "pay_abc" {
		t.Fatal("status update should record the gateway payment id")
	}
}

func TestVerifyPaymentUncapturedMarksPaymentFailed(t *testing.T) {
	orderID := uuid.New()
	repo := &stubPaymentRepo{
		findLatestFn: func(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
			return &models.Payment{
				ID:              uuid.New(),
				OrderID:         id,
				Status:          enums.PaymentStatusPending,
				RazorpayOrderID: "order_abc",
			}, nil
		},
	}
	gw := &stubGateway{
		fetchPaymentFn: func(ctx context.Context, id string) (*razorpay.Payment, error) {
			return &razorpay.Payment{ID: id, OrderID: "order_abc", Status: razorpay.PaymentStatusFailed}, nil
		},
		fetchOrderFn: func(ctx context.Context, id string) (*razorpay.Order, error) {
			return &razorpay.Order{
				ID:     id,
				Status: razorpay.OrderStatusAttempted,
				Notes:  map[string]string{orderIDNoteKey: orderID.String()},
			}, nil
		},
	}
	svc := newPaymentService(t, repo, &stubOrderRepo{}, gw)

	result, err := svc.VerifyPayment(context.Background(), VerifyInput{
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_abc",
		Signature:        signFor("order_abc", "pay_abc"),
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if result.Success {
		t.Fatal("uncaptured payment must not verify successfully")
	}
	if result.Payment.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got %s", result.Payment.Status)
	}
	if repo.applied[0].OrderStatus != "" {
		t.Fatal("failed verification must leave the order status untouched")
	}
}

func TestVerifyPaymentMissingOrderNote(t *testing.T) {
	gw := &stubGateway{
		fetchPaymentFn: func(ctx context.Context, id string) (*razorpay.Payment, error) {
			return &razorpay.Payment{ID: id, Status: razorpay.PaymentStatusCaptured}, nil
		},
		fetchOrderFn: func(ctx context.Context, id string) (*razorpay.Order, error) {
			return &razorpay.Order{ID: id, Status: razorpay.OrderStatusPaid}, nil
		},
	}
	svc := newPaymentService(t, &stubPaymentRepo{}, &stubOrderRepo{}, gw)

	_, err := svc.VerifyPayment(context.Background(), VerifyInput{
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_abc",
		Signature:        signFor("order_abc", "pay_abc"),
	})
	if err == nil {
		t.Fatal("expected error when the order note is missing")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestVerifyPaymentNoLocalPayment(t *testing.T) {
	orderID := uuid.New()
	gw := &stubGateway{
		fetchPaymentFn: func(ctx context.Context, id string) (*razorpay.Payment, error) {
			return &razorpay.Payment{ID: id, Status: razorpay.PaymentStatusCaptured}, nil
		},
		fetchOrderFn: func(ctx context.Context, id string) (*razorpay.Order, error) {
			return &razorpay.Order{
				ID:     id,
				Status: razorpay.OrderStatusPaid,
				Notes:  map[string]string{orderIDNoteKey: orderID.String()},
			}, nil
		},
	}
	svc := newPaymentService(t, &stubPaymentRepo{}, &stubOrderRepo{}, gw)

	_, err := svc.VerifyPayment(context.Background(), VerifyInput{
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_abc",
		Signature:        signFor("order_abc", "pay_abc"),
	})
	if err == nil {
		t.Fatal("expected error when no local payment exists")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}
