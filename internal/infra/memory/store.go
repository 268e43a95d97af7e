// Package memory implements every store port in process memory. It backs
// local runs without DATABASE_URL and the service tests. A single mutex
// makes each method the equivalent of one serializable transaction.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// Store is an in-memory account, catalog, cart and order store.
type Store struct {
	mu sync.Mutex

	accounts map[string]*domain.Account
	byEmail  map[string]string
	products map[string]*domain.Product
	rules    map[string]*domain.MinimumQuantityRule
	carts    map[string]map[string]int
	orders   map[string]*domain.Order
	events   map[string]struct{}

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		byEmail:  make(map[string]string),
		products: make(map[string]*domain.Product),
		rules:    make(map[string]*domain.MinimumQuantityRule),
		carts:    make(map[string]map[string]int),
		orders:   make(map[string]*domain.Order),
		events:   make(map[string]struct{}),
		now:      time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ============================================================
// Accounts
// ============================================================

// CreateAccount inserts a new account. Emails are unique case-insensitively.
func (s *Store) CreateAccount(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, ok := s.byEmail[email]; ok {
		return &domain.ErrConflict{Message: "email already registered"}
	}
	s.accounts[a.ID] = a.Clone()
	s.byEmail[email] = a.ID
	return nil
}

// GetAccount returns a copy of the account.
func (s *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return a.Clone(), nil
}

// GetAccountByEmail returns a copy of the account registered with email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: email}
	}
	return s.GetAccount(ctx, id)
}

// UpdateAccount runs mutate on a copy and stores it only when mutate succeeds.
func (s *Store) UpdateAccount(_ context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.UpdatedAt = s.now()
	s.accounts[id] = next
	return next.Clone(), nil
}

// UpdateCompany merges patch into the stored company after guard accepts.
func (s *Store) UpdateCompany(_ context.Context, id string, patch domain.CompanyPatch, guard func(*domain.Account) error) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	if guard != nil {
		if err := guard(current.Clone()); err != nil {
			return nil, err
		}
	}
	next := current.Clone()
	if next.Company == nil {
		next.Company = &domain.Company{VatStatus: domain.VatStatusNone}
	}
	patch.Apply(next.Company)
	next.UpdatedAt = s.now()
	s.accounts[id] = next
	return next.Clone(), nil
}

// ============================================================
// Catalog
// ============================================================

// GetProducts returns the products found among ids.
func (s *Store) GetProducts(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

// UpsertProduct creates or replaces a product.
func (s *Store) UpsertProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.UpdatedAt = s.now()
	s.products[p.ID] = &cp
	return nil
}

// GetMinimumQuantityRules returns the rules found among ids.
func (s *Store) GetMinimumQuantityRules(_ context.Context, ids []string) (map[string]*domain.MinimumQuantityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*domain.MinimumQuantityRule, len(ids))
	for _, id := range ids {
		if r, ok := s.rules[id]; ok {
			cp := *r
			out[id] = &cp
		}
	}
	return out, nil
}

// UpsertMinimumQuantityRule creates or replaces the rule of a product.
func (s *Store) UpsertMinimumQuantityRule(_ context.Context, r *domain.MinimumQuantityRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[r.ProductID]; !ok {
		return &domain.ErrNotFound{Resource: "product", ID: r.ProductID}
	}
	cp := *r
	cp.UpdatedAt = s.now()
	s.rules[r.ProductID] = &cp
	return nil
}

// DeleteMinimumQuantityRule removes the rule of a product.
func (s *Store) DeleteMinimumQuantityRule(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[productID]; !ok {
		return &domain.ErrNotFound{Resource: "minimum quantity rule", ID: productID}
	}
	delete(s.rules, productID)
	return nil
}

// ============================================================
// Cart
// ============================================================

// GetCart returns the cart lines ordered by product id.
func (s *Store) GetCart(_ context.Context, accountID string) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[accountID]
	lines := make([]domain.CartLine, 0, len(cart))
	for pid, qty := range cart {
		lines = append(lines, domain.CartLine{ProductID: pid, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

// SetCartLine sets the quantity of a line; zero removes it.
func (s *Store) SetCartLine(_ context.Context, accountID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[accountID]
	if !ok {
		cart = make(map[string]int)
		s.carts[accountID] = cart
	}
	if quantity <= 0 {
		delete(cart, productID)
		return nil
	}
	cart[productID] = quantity
	return nil
}

// ClearCart removes every line of the cart.
func (s *Store) ClearCart(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, accountID)
	return nil
}

// ============================================================
// Orders
// ============================================================

// CreateOrder inserts an order. An account holds at most one pending order.
func (s *Store) CreateOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.AccountID == o.AccountID && existing.Status == domain.OrderPending {
			return &domain.ErrConflict{Message: "a pending order already exists"}
		}
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// GetOrder returns a copy of the order.
func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "order", ID: id}
	}
	return o.Clone(), nil
}

// FindPendingOrder returns the pending order of an account, or nil.
func (s *Store) FindPendingOrder(_ context.Context, accountID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.AccountID == accountID && o.Status == domain.OrderPending {
			return o.Clone(), nil
		}
	}
	return nil, nil
}

// UpdateOrder runs mutate on a copy and stores it only when mutate succeeds.
func (s *Store) UpdateOrder(_ context.Context, id string, mutate func(*domain.Order) error) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateOrderLocked(id, mutate)
}

func (s *Store) updateOrderLocked(id string, mutate func(*domain.Order) error) (*domain.Order, error) {
	current, ok := s.orders[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "order", ID: id}
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.orders[id] = next
	return next.Clone(), nil
}

// ApplyPaymentEvent records eventID and mutates the order atomically.
func (s *Store) ApplyPaymentEvent(_ context.Context, eventID, orderID string, mutate func(*domain.Order) error) (bool, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[eventID]; seen {
		o, ok := s.orders[orderID]
		if !ok {
			return false, nil, &domain.ErrNotFound{Resource: "order", ID: orderID}
		}
		return false, o.Clone(), nil
	}

	o, err := s.updateOrderLocked(orderID, mutate)
	if err != nil {
		return false, nil, err
	}
	s.events[eventID] = struct{}{}
	return true, o, nil
}

// ListExpiredPendingOrders returns pending orders whose expiry is before now.
func (s *Store) ListExpiredPendingOrders(_ context.Context, now time.Time) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderPending && o.ExpiresAt.Before(now) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
