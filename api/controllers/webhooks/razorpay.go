package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rohanvm/shopveda-backend/api/responses"
	pkgerrors "github.com/rohanvm/shopveda-backend/pkg/errors"
	"github.com/rohanvm/shopveda-backend/pkg/logger"
	"github.com/rohanvm/shopveda-backend/pkg/razorpay"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

type RazorpayWebhookService interface {
	HandleEvent(ctx context.Context, event *razorpay.WebhookEvent) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

// RazorpayWebhook verifies and dispatches gateway event deliveries. The
// signature is computed over the raw body bytes, so the body is read before
// any decoding. Invalid signatures are rejected with 401 so misconfigured or
// hostile senders are distinguishable from processing failures.
func RazorpayWebhook(svc RazorpayWebhookService, secrets signingSecretSource, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secrets == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !razorpay.VerifyWebhookSignature(payload, signature, secrets.SigningSecret()) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		// The signature already matched, so a body we cannot decode is our
		// contract drifting from the provider's. 500 keeps redeliveries
		// coming until an operator looks at it.
		var event razorpay.WebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(eventIDHeader))
		if guard != nil && eventID != "" {
			seen, err := guard.CheckAndMark(ctx, eventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if seen {
				responses.WriteSuccess(w, map[string]any{"received": true, "event": event.Event})
				return
			}
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if guard != nil && eventID != "" {
				_ = guard.Delete(ctx, eventID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithField(ctx, "event", event.Event)
			logg.Info(ctx, "razorpay webhook processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true, "event": event.Event})
	}
}
