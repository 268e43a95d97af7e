package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/service"
)

// ============================================================
// Account and professional verification
// ============================================================

func getAccountHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/account")
		defer span.End()

		account, err := svc.GetAccount(ctx, AccountIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// submitProVerificationHandler answers 202: registry checks finish in the
// background and show up on GET /v1/account.
func submitProVerificationHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/account/pro-verification")
		defer span.End()

		var req domain.ProVerificationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		account, err := svc.Submit(ctx, AccountIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, account)
	}
}

// ============================================================
// Admin: /v1/admin/accounts/{accountId}
// ============================================================

func adminGetAccountHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/accounts/{accountId}")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		account, err := svc.GetAccount(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func proDecisionHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/accounts/{accountId}/pro-decision")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.ProDecisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		account, err := svc.ManualDecision(ctx, AccountIDFromContext(ctx), accountID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func proRetryHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/accounts/{accountId}/pro-retry")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		account, err := svc.RetryAutoCheck(ctx, AccountIDFromContext(ctx), accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, account)
	}
}

func vatDecisionHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/accounts/{accountId}/vat-decision")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.VatDecisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		account, err := svc.ManualVatDecision(ctx, AccountIDFromContext(ctx), accountID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}
