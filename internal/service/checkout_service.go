package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/pricing"
)

var checkoutTracer = otel.Tracer("service/checkout")

const defaultOrderTTL = 30 * time.Minute

// CheckoutConfig holds the order settings.
type CheckoutConfig struct {
	Currency string
	OrderTTL time.Duration
}

// CheckoutService turns carts into orders and settles them from payment
// events.
type CheckoutService struct {
	cart    *CartService
	carts   port.CartStore
	orders  port.OrderStore
	gateway port.PaymentGateway
	events  port.EventPublisher
	cfg     CheckoutConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	cart *CartService,
	carts port.CartStore,
	orders port.OrderStore,
	gateway port.PaymentGateway,
	events port.EventPublisher,
	cfg CheckoutConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CheckoutService {
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = defaultOrderTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	s := &CheckoutService{
		cart:    cart,
		carts:   carts,
		orders:  orders,
		gateway: gateway,
		events:  events,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	cart.onRelease = s.settled
	return s
}

// ============================================================
// Checkout: POST /v1/checkout
// ============================================================

// Checkout re-prices the cart, reserves its lines in a pending order and
// opens a payment session. The cart stays locked until the order settles.
func (s *CheckoutService) Checkout(ctx context.Context, accountID string) (*domain.CheckoutResponse, error) {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	if err := s.cart.checkUnlocked(ctx, accountID); err != nil {
		return nil, err
	}

	snap, err := s.cart.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(snap.priced.Lines) == 0 {
		return nil, &domain.ErrValidation{Field: "cart", Message: "cart is empty"}
	}
	if err := snap.checkMinimums(); err != nil {
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    domain.OrderPending,
		Lines: lo.Map(snap.priced.Lines, func(l domain.PricedLine, _ int) domain.OrderLine {
			return domain.OrderLine{PricedLine: l, State: domain.LineQuoted}
		}),
		TaxRate:      snap.priced.TaxRate,
		SubtotalExcl: snap.priced.SubtotalExclTax,
		SubtotalIncl: snap.priced.SubtotalInclTax,
		DeliveryFee:  snap.priced.DeliveryFee,
		Total:        snap.priced.Total,
		ExpiresAt:    now.Add(s.cfg.OrderTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.SetLineState(domain.LineReserved)

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	session, err := s.gateway.CreateSession(ctx, pricing.BuildPaymentRequest(order, s.cfg.Currency))
	if err != nil {
		s.release(ctx, order.ID, domain.OrderCancelled)
		var ve *domain.ErrValidation
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "payment", Err: err}
	}

	order, err = s.orders.UpdateOrder(ctx, order.ID, func(o *domain.Order) error {
		o.PaymentRef = session.Reference
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store payment reference: %w", err)
	}

	total, _ := order.Total.Float64()
	s.metrics.IncrOrder(string(domain.OrderPending))
	s.metrics.ObserveCheckoutTotal(total)
	s.logger.Info("checkout started",
		zap.String("account_id", accountID),
		zap.String("order_id", order.ID),
		zap.String("payment_ref", session.Reference),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Lines)),
	)

	return &domain.CheckoutResponse{
		Order:      order,
		PaymentRef: session.Reference,
		PaymentURL: session.URL,
	}, nil
}

// release ends a pending order whose payment could not start.
func (s *CheckoutService) release(ctx context.Context, orderID string, status domain.OrderStatus) {
	if _, err := s.orders.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		o.Status = status
		o.SetLineState(domain.LineReleased)
		return nil
	}); err != nil {
		s.logger.Error("failed to release order",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncrOrder(string(status))
}

// ============================================================
// Payment events: POST /v1/payments/webhook
// ============================================================

// ApplyPaymentEvent settles an order from a payment notification. Replayed
// event ids and events for settled orders change nothing.
func (s *CheckoutService) ApplyPaymentEvent(ctx context.Context, event *domain.PaymentEvent) (*domain.PaymentEventResult, error) {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.ApplyPaymentEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.event_id", event.EventID),
		attribute.String("order.id", event.OrderID),
		attribute.String("payment.type", string(event.Type)),
	)

	switch {
	case event.EventID == "":
		return nil, &domain.ErrValidation{Field: "eventId", Message: "required"}
	case event.OrderID == "":
		return nil, &domain.ErrValidation{Field: "orderId", Message: "required"}
	}
	target, lineState, err := settlementOf(event.Type)
	if err != nil {
		return nil, err
	}

	changed := false
	applied, order, err := s.orders.ApplyPaymentEvent(ctx, event.EventID, event.OrderID, func(o *domain.Order) error {
		if o.Status.IsTerminal() {
			return nil
		}
		o.Status = target
		o.SetLineState(lineState)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &domain.PaymentEventResult{Applied: applied && changed, OrderID: order.ID, Status: order.Status}
	if !result.Applied {
		s.logger.Info("payment event acknowledged without change",
			zap.String("event_id", event.EventID),
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.Bool("replayed", !applied),
		)
		return result, nil
	}

	if target == domain.OrderPaid {
		if err := s.carts.ClearCart(ctx, order.AccountID); err != nil {
			s.logger.Error("failed to clear cart after payment",
				zap.String("account_id", order.AccountID),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}
	s.settled(ctx, order)
	return result, nil
}

func settlementOf(t domain.PaymentEventType) (domain.OrderStatus, domain.LineState, error) {
	switch t {
	case domain.PaymentPaid:
		return domain.OrderPaid, domain.LineConfirmed, nil
	case domain.PaymentFailed:
		return domain.OrderCancelled, domain.LineReleased, nil
	case domain.PaymentExpired:
		return domain.OrderExpired, domain.LineReleased, nil
	default:
		return "", "", &domain.ErrValidation{Field: "type", Message: "must be paid, failed or expired"}
	}
}

func (s *CheckoutService) settled(ctx context.Context, order *domain.Order) {
	eventType := domain.EventOrderReleased
	if order.Status == domain.OrderPaid {
		eventType = domain.EventOrderConfirmed
	}
	s.metrics.IncrOrder(string(order.Status))
	s.logger.Info("order settled",
		zap.String("order_id", order.ID),
		zap.String("account_id", order.AccountID),
		zap.String("status", string(order.Status)),
	)
	s.events.Publish(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        order.AccountID,
		OccurredAt: s.now(),
		Data: map[string]any{
			"orderId": order.ID,
			"status":  string(order.Status),
			"total":   order.Total.StringFixed(2),
		},
	})
}

// ============================================================
// Expiry sweep: scheduled
// ============================================================

// SweepExpired releases pending orders past their expiry and returns how
// many it released.
func (s *CheckoutService) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.SweepExpired")
	defer span.End()

	expired, err := s.orders.ListExpiredPendingOrders(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	released := 0
	for _, o := range expired {
		_, changed, err := s.cart.expireOrder(ctx, o.ID)
		if err != nil {
			s.logger.Error("failed to expire order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if changed {
			released++
		}
	}

	span.SetAttributes(attribute.Int("orders.released", released))
	if released > 0 {
		s.logger.Info("expired orders released", zap.Int("count", released))
	}
	return released, nil
}

// ============================================================
// Orders: GET /v1/orders/{orderId}
// ============================================================

// GetOrder returns an order to its owner or to an admin.
func (s *CheckoutService) GetOrder(ctx context.Context, caller domain.Principal, orderID string) (*domain.Order, error) {
	ctx, span := checkoutTracer.Start(ctx, "CheckoutService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != caller.AccountID && !caller.IsAdmin() {
		return nil, &domain.ErrNotFound{Resource: "order", ID: orderID}
	}
	return order, nil
}
