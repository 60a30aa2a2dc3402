package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/starter-billing/api/responses"
	paymentwebhook "github.com/angelmondragon/starter-billing/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
	"github.com/angelmondragon/starter-billing/pkg/logger"
)

const maxIPNBodyBytes = 64 << 10

type PaymentWebhookService interface {
	HandleNotification(ctx context.Context, n *paymentwebhook.Notification) (paymentwebhook.Result, error)
	Observe(result paymentwebhook.Result)
}

// PaymentWebhook receives gateway IPN callbacks. The body must carry a valid
// HMAC-SHA512 signature; each delivery is applied at most once.
func PaymentWebhook(svc PaymentWebhookService, secret string, guard eventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxIPNBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := paymentwebhook.VerifySignature(secret, payload, r.Header.Get(paymentwebhook.SignatureHeader)); err != nil {
			svc.Observe(paymentwebhook.ResultRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		notification, err := paymentwebhook.ParseNotification(payload)
		if err != nil {
			svc.Observe(paymentwebhook.ResultRejected)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := notification.EventID()
		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			svc.Observe(paymentwebhook.ResultDuplicate)
			responses.WriteSuccess(w, map[string]string{"status": string(paymentwebhook.ResultDuplicate)})
			return
		}

		result, err := svc.HandleNotification(ctx, notification)
		svc.Observe(result)
		if err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": string(result)})
	}
}
