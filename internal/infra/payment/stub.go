// Package payment holds PaymentGateway implementations.
package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

var tracer = otel.Tracer("payment")

// StubGateway accepts every payment request and returns a local session
// reference. Settlement arrives later through the payment webhook.
type StubGateway struct {
	checkoutBaseURL string
	logger          *zap.Logger
}

// NewStubGateway creates a gateway whose session URLs start with checkoutBaseURL.
func NewStubGateway(checkoutBaseURL string, logger *zap.Logger) *StubGateway {
	return &StubGateway{checkoutBaseURL: strings.TrimRight(checkoutBaseURL, "/"), logger: logger}
}

// CreateSession returns a new session reference for req.
func (g *StubGateway) CreateSession(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentSession, error) {
	_, span := tracer.Start(ctx, "StubGateway.CreateSession")
	defer span.End()

	if req == nil || req.TotalAmount <= 0 {
		return nil, &domain.ErrValidation{Field: "totalAmount", Message: "payment total must be positive"}
	}

	ref := "pay_" + uuid.NewString()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Int64("payment.total_amount", req.TotalAmount),
	)

	g.logger.Info("payment session created",
		zap.String("order_id", req.OrderID),
		zap.String("payment_ref", ref),
		zap.String("currency", req.Currency),
		zap.Int64("total_amount", req.TotalAmount),
		zap.Int("items", len(req.Items)),
	)

	session := &domain.PaymentSession{Reference: ref}
	if g.checkoutBaseURL != "" {
		session.URL = g.checkoutBaseURL + "/" + ref
	}
	return session, nil
}
