package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/service"
)

// ============================================================
// Admin: /v1/admin/products
// ============================================================

func upsertProductHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/products/{productId}")
		defer span.End()

		var req domain.UpsertProductRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		product, err := svc.UpsertProduct(ctx, chi.URLParam(r, "productId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, product)
	}
}

func setMinimumQuantityHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/products/{productId}/minimum-quantity")
		defer span.End()

		var req domain.MinimumQuantityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		rule, err := svc.SetMinimumQuantity(ctx, chi.URLParam(r, "productId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

func deleteMinimumQuantityHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/products/{productId}/minimum-quantity")
		defer span.End()

		if err := svc.DeleteMinimumQuantity(ctx, chi.URLParam(r, "productId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
