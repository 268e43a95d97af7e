package handler

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/service"
)

const webhookSecretHeader = "X-Webhook-Secret"

// ============================================================
// Payment webhook: POST /v1/payments/webhook
// ============================================================

// paymentWebhookHandler accepts provider notifications. An empty secret
// disables the endpoint.
func paymentWebhookHandler(svc *service.CheckoutService, secret string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments/webhook")
		defer span.End()

		if secret == "" {
			writeError(w, http.StatusServiceUnavailable, "payment webhook not configured")
			return
		}
		got := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.Warn("payment webhook: invalid secret", zap.String("remote_addr", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}

		var event domain.PaymentEvent
		if !decodeJSON(w, r, &event) {
			return
		}

		result, err := svc.ApplyPaymentEvent(ctx, &event)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
