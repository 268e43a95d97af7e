package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/service"
)

// ============================================================
// Dev Tools Handlers
// ============================================================

func devSetProStatusHandler(svc *service.ProVerificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/accounts/{accountId}/pro-status")
		defer span.End()

		var req domain.DevProStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := svc.DevSetProStatus(ctx, chi.URLParam(r, "accountId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
