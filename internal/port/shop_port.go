package port

import (
	"context"
	"time"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// CatalogStore handles products and their minimum-quantity rules.
type CatalogStore interface {
	GetProducts(ctx context.Context, productIDs []string) (map[string]*domain.Product, error)
	UpsertProduct(ctx context.Context, product *domain.Product) error
	GetMinimumQuantityRules(ctx context.Context, productIDs []string) (map[string]*domain.MinimumQuantityRule, error)
	UpsertMinimumQuantityRule(ctx context.Context, rule *domain.MinimumQuantityRule) error
	DeleteMinimumQuantityRule(ctx context.Context, productID string) error
}

// CartStore handles raw cart lines. A zero quantity removes the line.
type CartStore interface {
	GetCart(ctx context.Context, accountID string) ([]domain.CartLine, error)
	SetCartLine(ctx context.Context, accountID, productID string, quantity int) error
	ClearCart(ctx context.Context, accountID string) error
}

// OrderStore handles orders and payment event bookkeeping.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	FindPendingOrder(ctx context.Context, accountID string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, orderID string, mutate func(*domain.Order) error) (*domain.Order, error)

	// ApplyPaymentEvent records eventID and runs mutate on the order in one
	// transaction. applied is false when the event id was already recorded.
	ApplyPaymentEvent(ctx context.Context, eventID, orderID string, mutate func(*domain.Order) error) (applied bool, order *domain.Order, err error)

	ListExpiredPendingOrders(ctx context.Context, now time.Time) ([]*domain.Order, error)
}
