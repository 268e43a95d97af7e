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
// Cart: /v1/cart
// ============================================================

func getCartHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/cart")
		defer span.End()

		cart, err := svc.GetCart(ctx, AccountIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart)
	}
}

func addCartItemHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cart/items")
		defer span.End()

		var req domain.AddCartItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		cart, err := svc.AddItem(ctx, AccountIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart)
	}
}

func updateCartItemHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/cart/items/{productId}")
		defer span.End()

		var req domain.UpdateCartItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		cart, err := svc.UpdateItem(ctx, AccountIDFromContext(ctx), chi.URLParam(r, "productId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart)
	}
}

func removeCartItemHandler(svc *service.CartService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/cart/items/{productId}")
		defer span.End()

		cart, err := svc.RemoveItem(ctx, AccountIDFromContext(ctx), chi.URLParam(r, "productId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart)
	}
}

// ============================================================
// Checkout and orders
// ============================================================

func checkoutHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout")
		defer span.End()

		resp, err := svc.Checkout(ctx, AccountIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getOrderHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/orders/{orderId}")
		defer span.End()

		orderID := chi.URLParam(r, "orderId")
		span.SetAttributes(attribute.String("order.id", orderID))

		caller, _ := PrincipalFromContext(ctx)
		order, err := svc.GetOrder(ctx, caller, orderID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}
