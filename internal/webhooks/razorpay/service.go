package razorpaywebhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanvm/shopveda-backend/internal/payments"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
	"github.com/rohanvm/shopveda-backend/pkg/logger"
	"github.com/rohanvm/shopveda-backend/pkg/metrics"
	"github.com/rohanvm/shopveda-backend/pkg/razorpay"
)

const orderIDNoteKey = "order_id"

type ServiceParams struct {
	PaymentsRepo payments.Repository
	Logger       *logger.Logger
	Metrics      *metrics.PaymentMetrics
}

// Service applies Razorpay webhook events to local payment and order state.
type Service struct {
	repo    payments.Repository
	logger  *logger.Logger
	metrics *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.PaymentsRepo == nil {
		return nil, errors.New("payments repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Service{
		repo:    params.PaymentsRepo,
		logger:  params.Logger,
		metrics: params.Metrics,
	}, nil
}

// HandleEvent routes a verified webhook event. Events outside the handled set
// are acknowledged without side effects so Razorpay stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *razorpay.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}

	switch event.Event {
	case razorpay.EventPaymentCaptured:
		return s.applyPaymentEvent(ctx, event, enums.PaymentStatusCompleted, enums.OrderStatusPaid)
	case razorpay.EventPaymentFailed:
		return s.applyPaymentEvent(ctx, event, enums.PaymentStatusFailed, enums.OrderStatusCancelled)
	case razorpay.EventOrderPaid:
		return s.applyOrderPaid(ctx, event)
	default:
		s.logger.Info(s.logger.WithField(ctx, "event", event.Event), "ignoring unhandled webhook event")
		s.metrics.IncWebhookEvent(event.Event, "ignored")
		return nil
	}
}

func (s *Service) applyPaymentEvent(ctx context.Context, event *razorpay.WebhookEvent, paymentStatus enums.PaymentStatus, orderStatus enums.OrderStatus) error {
	if event.Payload.Payment == nil {
		s.metrics.IncWebhookEvent(event.Event, "error")
		return pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing from event payload")
	}
	entity := event.Payload.Payment.Entity

	orderID, err := s.resolveOrderID(ctx, entity.Notes, event)
	if err != nil {
		s.metrics.IncWebhookEvent(event.Event, "error")
		return err
	}

	update := payments.StatusUpdate{
		PaymentStatus:    paymentStatus,
		OrderStatus:      orderStatus,
		GatewayPaymentID: entity.ID,
		RawResponse:      marshalRaw(entity),
		Source:           "webhook",
	}
	return s.apply(ctx, event.Event, orderID, update)
}

func (s *Service) applyOrderPaid(ctx context.Context, event *razorpay.WebhookEvent) error {
	var notes map[string]string
	var gatewayPaymentID string
	if event.Payload.Payment != nil {
		notes = event.Payload.Payment.Entity.Notes
		gatewayPaymentID = event.Payload.Payment.Entity.ID
	}
	if len(notes) == 0 && event.Payload.Order != nil {
		notes = event.Payload.Order.Entity.Notes
	}

	orderID, err := s.resolveOrderID(ctx, notes, event)
	if err != nil {
		s.metrics.IncWebhookEvent(event.Event, "error")
		return err
	}

	update := payments.StatusUpdate{
		PaymentStatus:    enums.PaymentStatusCompleted,
		OrderStatus:      enums.OrderStatusPaid,
		GatewayPaymentID: gatewayPaymentID,
		RawResponse:      marshalRaw(event.Payload),
		Source:           "webhook",
	}
	return s.apply(ctx, event.Event, orderID, update)
}

// apply looks up the payment for the order and runs the atomic dual update.
// A missing payment row is logged and acknowledged rather than errored: the
// gateway knows about payments this service never opened (manual links, other
// channels), and retrying those deliveries can never succeed.
func (s *Service) apply(ctx context.Context, eventName string, orderID uuid.UUID, update payments.StatusUpdate) error {
	ctx = s.logger.WithOrderID(ctx, orderID.String())

	payment, err := s.repo.FindLatestByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn(ctx, "webhook references an order with no local payment; acknowledging")
			s.metrics.IncWebhookEvent(eventName, "orphaned")
			return nil
		}
		s.metrics.IncWebhookEvent(eventName, "error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	update.PaymentID = payment.ID

	result, err := s.repo.ApplyStatus(ctx, update)
	if err != nil {
		s.metrics.IncWebhookEvent(eventName, "error")
		return err
	}
	if result.Duplicate {
		s.logger.Info(ctx, "webhook redelivery matched current state; no rows written")
		s.metrics.IncWebhookEvent(eventName, "duplicate")
		return nil
	}

	s.metrics.IncWebhookEvent(eventName, "applied")
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"payment_status": result.Payment.Status.String(),
		"order_status":   result.OrderStatus.String(),
	}), "webhook event applied")
	return nil
}

// resolveOrderID pulls the local order id out of the gateway notes. Every
// order this service opens carries the note, so absence means the linkage is
// broken; returning an internal error keeps the delivery in Razorpay's retry
// queue while the data is repaired.
func (s *Service) resolveOrderID(ctx context.Context, notes map[string]string, event *razorpay.WebhookEvent) (uuid.UUID, error) {
	raw := notes[orderIDNoteKey]
	if raw == "" {
		err := pkgerrors.New(pkgerrors.CodeInternal, "webhook payload has no order_id note")
		s.logger.Error(s.logger.WithField(ctx, "event", event.Event), "cannot link webhook to a local order", err)
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook carries a malformed order_id note")
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
