package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/pricing"
)

var cartTracer = otel.Tracer("service/cart")

// CartService manages raw cart lines and prices them on every read.
type CartService struct {
	accounts port.AccountStore
	catalog  port.CatalogStore
	carts    port.CartStore
	orders   port.OrderStore
	pricing  pricing.Config
	logger   *zap.Logger
	now      func() time.Time

	// onRelease is called after an expired order is released on access.
	onRelease func(context.Context, *domain.Order)
}

// NewCartService creates a new cart service.
func NewCartService(
	accounts port.AccountStore,
	catalog port.CatalogStore,
	carts port.CartStore,
	orders port.OrderStore,
	cfg pricing.Config,
	logger *zap.Logger,
) *CartService {
	return &CartService{
		accounts: accounts,
		catalog:  catalog,
		carts:    carts,
		orders:   orders,
		pricing:  cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// cartSnapshot is a cart resolved against current account and catalog state.
type cartSnapshot struct {
	account  *domain.Account
	buyer    pricing.Buyer
	lines    []domain.CartLine
	products map[string]*domain.Product
	rules    map[string]*domain.MinimumQuantityRule
	priced   *domain.PricingResult
}

// ============================================================
// Cart view: GET /v1/cart
// ============================================================

func (s *CartService) GetCart(ctx context.Context, accountID string) (*domain.PricingResult, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.GetCart")
	defer span.End()

	snap, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return snap.priced, nil
}

// load reads the account and cart, then the products and rules they
// reference, and prices the result.
func (s *CartService) load(ctx context.Context, accountID string) (*cartSnapshot, error) {
	snap := &cartSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.accounts.GetAccount(gctx, accountID)
		if err != nil {
			return err
		}
		snap.account = a
		return nil
	})
	g.Go(func() error {
		lines, err := s.carts.GetCart(gctx, accountID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		snap.lines = lines
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := lo.Uniq(lo.Map(snap.lines, func(l domain.CartLine, _ int) string { return l.ProductID }))

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := s.catalog.GetProducts(gctx, ids)
		if err != nil {
			return fmt.Errorf("get products: %w", err)
		}
		snap.products = products
		return nil
	})
	g.Go(func() error {
		rules, err := s.catalog.GetMinimumQuantityRules(gctx, ids)
		if err != nil {
			return fmt.Errorf("get minimum quantity rules: %w", err)
		}
		snap.rules = rules
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.buyer = pricing.BuyerOf(snap.account)
	snap.priced = pricing.PriceCart(snap.lines, snap.products, snap.buyer, s.pricing)
	return snap, nil
}

// checkMinimums enforces every priced line's minimum quantity for the buyer.
func (snap *cartSnapshot) checkMinimums() error {
	for _, l := range snap.priced.Lines {
		if err := pricing.CheckMinimumQuantity(snap.buyer.IsPro, l.ProductID, snap.rules[l.ProductID], l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// Cart mutations: /v1/cart/items
// ============================================================

// AddItem adds quantity to the product's line, creating it if needed.
func (s *CartService) AddItem(ctx context.Context, accountID string, req *domain.AddCartItemRequest) (*domain.PricingResult, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", req.ProductID), attribute.Int("quantity", req.Quantity))

	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return nil, &domain.ErrValidation{Field: "productId", Message: "required"}
	}
	if req.Quantity < 1 {
		return nil, &domain.ErrValidation{Field: "quantity", Message: "must be at least 1"}
	}

	lines, err := s.carts.GetCart(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	current := 0
	if l, ok := lo.Find(lines, func(l domain.CartLine) bool { return l.ProductID == productID }); ok {
		current = l.Quantity
	}

	if err := s.setLine(ctx, accountID, productID, current+req.Quantity); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, accountID)
}

// UpdateItem replaces the quantity of the product's line.
func (s *CartService) UpdateItem(ctx context.Context, accountID, productID string, req *domain.UpdateCartItemRequest) (*domain.PricingResult, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.UpdateItem")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", req.Quantity))

	if req.Quantity < 1 {
		return nil, &domain.ErrValidation{Field: "quantity", Message: "must be at least 1"}
	}
	if err := s.setLine(ctx, accountID, productID, req.Quantity); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, accountID)
}

// RemoveItem deletes the product's line.
func (s *CartService) RemoveItem(ctx context.Context, accountID, productID string) (*domain.PricingResult, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := s.checkUnlocked(ctx, accountID); err != nil {
		return nil, err
	}
	if err := s.carts.SetCartLine(ctx, accountID, productID, 0); err != nil {
		return nil, fmt.Errorf("remove cart line: %w", err)
	}
	s.logger.Info("cart line removed", zap.String("account_id", accountID), zap.String("product_id", productID))
	return s.GetCart(ctx, accountID)
}

func (s *CartService) setLine(ctx context.Context, accountID, productID string, quantity int) error {
	if err := s.checkUnlocked(ctx, accountID); err != nil {
		return err
	}

	var (
		account  *domain.Account
		products map[string]*domain.Product
		rules    map[string]*domain.MinimumQuantityRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		account, err = s.accounts.GetAccount(gctx, accountID)
		return err
	})
	g.Go(func() (err error) {
		products, err = s.catalog.GetProducts(gctx, []string{productID})
		return err
	})
	g.Go(func() (err error) {
		rules, err = s.catalog.GetMinimumQuantityRules(gctx, []string{productID})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if _, ok := products[productID]; !ok {
		return &domain.ErrNotFound{Resource: "product", ID: productID}
	}
	if err := pricing.CheckMinimumQuantity(account.IsPro, productID, rules[productID], quantity); err != nil {
		return err
	}

	if err := s.carts.SetCartLine(ctx, accountID, productID, quantity); err != nil {
		return fmt.Errorf("set cart line: %w", err)
	}
	s.logger.Info("cart line set",
		zap.String("account_id", accountID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return nil
}

// checkUnlocked rejects cart changes while a checkout awaits payment. A
// pending order past its expiry no longer locks the cart and is released
// here instead of waiting for the sweep.
func (s *CartService) checkUnlocked(ctx context.Context, accountID string) error {
	pending, err := s.orders.FindPendingOrder(ctx, accountID)
	if err != nil {
		return fmt.Errorf("find pending order: %w", err)
	}
	if pending == nil {
		return nil
	}
	if pending.ExpiresAt.After(s.now()) {
		return &domain.ErrConflict{Message: "cart is locked by a pending order"}
	}

	order, _, err := s.expireOrder(ctx, pending.ID)
	if err != nil {
		return fmt.Errorf("expire order: %w", err)
	}
	if order.Status == domain.OrderPending {
		return &domain.ErrConflict{Message: "cart is locked by a pending order"}
	}
	return nil
}

// expireOrder moves a pending order past its expiry to expired and releases
// its lines. changed is false when the order had already settled.
func (s *CartService) expireOrder(ctx context.Context, orderID string) (order *domain.Order, changed bool, err error) {
	now := s.now()
	order, err = s.orders.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if o.Status != domain.OrderPending || o.ExpiresAt.After(now) {
			return nil
		}
		o.Status = domain.OrderExpired
		o.SetLineState(domain.LineReleased)
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed && s.onRelease != nil {
		s.onRelease(ctx, order)
	}
	return order, changed, nil
}
