//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/postgres"
)

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("shop"),
		tcpostgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.NewStore(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "schema must be re-appliable")
	return store
}

func TestStore_AccountLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acc := &domain.Account{
		ID:           "acc-1",
		Email:        "Pro@Example.com",
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		ProStatus:    domain.ProStatusNone,
	}
	require.NoError(t, store.CreateAccount(ctx, acc))

	err := store.CreateAccount(ctx, &domain.Account{ID: "acc-2", Email: "pro@example.com", PasswordHash: "x", Role: domain.RoleUser, ProStatus: domain.ProStatusNone})
	var conflict *domain.ErrConflict
	require.True(t, errors.As(err, &conflict))

	got, err := store.GetAccountByEmail(ctx, "PRO@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Nil(t, got.Company)

	got, err = store.UpdateAccount(ctx, "acc-1", func(a *domain.Account) error {
		a.ProStatus = domain.ProStatusPending
		a.VerificationMode = domain.VerificationAuto
		a.Company = &domain.Company{Name: "Garage Martin", Siret: "12345678901234", VatStatus: domain.VatStatusNone}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProStatusPending, got.ProStatus)

	headOffice := true
	got, err = store.UpdateCompany(ctx, "acc-1", domain.CompanyPatch{
		LegalName:            mo.Some("GARAGE MARTIN SARL"),
		IsHeadOffice:         mo.Some(&headOffice),
		VerificationWarnings: mo.Some([]string{"company was created less than 3 months ago"}),
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Company)
	assert.Equal(t, "Garage Martin", got.Company.Name)
	assert.Equal(t, "GARAGE MARTIN SARL", got.Company.LegalName)
	require.NotNil(t, got.Company.IsHeadOffice)
	assert.True(t, *got.Company.IsHeadOffice)
	assert.Len(t, got.Company.VerificationWarnings, 1)

	_, err = store.UpdateAccount(ctx, "acc-1", func(a *domain.Account) error {
		return &domain.ErrPrecondition{Reason: "decision already taken"}
	})
	var pre *domain.ErrPrecondition
	require.True(t, errors.As(err, &pre))
}

func TestStore_CatalogAndCart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, &domain.Account{ID: "acc-1", Email: "a@b.c", PasswordHash: "h", Role: domain.RoleUser, ProStatus: domain.ProStatusNone}))

	pro := decimal.RequireFromString("8.50")
	require.NoError(t, store.UpsertProduct(ctx, &domain.Product{ID: "oil", Name: "Engine oil", Price: decimal.RequireFromString("12.00"), ProPrice: &pro}))
	require.NoError(t, store.UpsertMinimumQuantityRule(ctx, &domain.MinimumQuantityRule{ProductID: "oil", MinimumQuantity: 6}))

	err := store.UpsertMinimumQuantityRule(ctx, &domain.MinimumQuantityRule{ProductID: "missing", MinimumQuantity: 2})
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))

	products, err := store.GetProducts(ctx, []string{"oil", "missing"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products["oil"].Price.Equal(decimal.RequireFromString("12")))
	require.NotNil(t, products["oil"].ProPrice)
	assert.True(t, products["oil"].ProPrice.Equal(pro))

	rules, err := store.GetMinimumQuantityRules(ctx, []string{"oil"})
	require.NoError(t, err)
	assert.Equal(t, 6, rules["oil"].MinimumQuantity)

	require.NoError(t, store.SetCartLine(ctx, "acc-1", "oil", 6))
	require.NoError(t, store.SetCartLine(ctx, "acc-1", "oil", 8))
	lines, err := store.GetCart(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: "oil", Quantity: 8}}, lines)

	require.NoError(t, store.SetCartLine(ctx, "acc-1", "oil", 0))
	lines, err = store.GetCart(ctx, "acc-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, store.DeleteMinimumQuantityRule(ctx, "oil"))
	require.True(t, errors.As(store.DeleteMinimumQuantityRule(ctx, "oil"), &nf))
}

func TestStore_OrdersAndPaymentEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, &domain.Account{ID: "acc-1", Email: "a@b.c", PasswordHash: "h", Role: domain.RoleUser, ProStatus: domain.ProStatusNone}))

	order := &domain.Order{
		ID:        "o1",
		AccountID: "acc-1",
		Status:    domain.OrderPending,
		Lines: []domain.OrderLine{{
			PricedLine: domain.PricedLine{ProductID: "oil", Name: "Engine oil", Quantity: 2, UnitPriceExclTax: decimal.RequireFromString("12")},
			State:      domain.LineReserved,
		}},
		TaxRate:      decimal.RequireFromString("0.2"),
		SubtotalExcl: decimal.RequireFromString("24"),
		SubtotalIncl: decimal.RequireFromString("28.8"),
		DeliveryFee:  decimal.RequireFromString("9.9"),
		Total:        decimal.RequireFromString("38.7"),
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.CreateOrder(ctx, order))

	var conflict *domain.ErrConflict
	require.True(t, errors.As(store.CreateOrder(ctx, &domain.Order{ID: "o2", AccountID: "acc-1", Status: domain.OrderPending, ExpiresAt: time.Now()}), &conflict))

	pending, err := store.FindPendingOrder(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.True(t, pending.Total.Equal(decimal.RequireFromString("38.7")))
	assert.Equal(t, domain.LineReserved, pending.Lines[0].State)

	expired, err := store.ListExpiredPendingOrders(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)

	markPaid := func(o *domain.Order) error {
		o.Status = domain.OrderPaid
		o.SetLineState(domain.LineConfirmed)
		return nil
	}
	applied, got, err := store.ApplyPaymentEvent(ctx, "evt-1", "o1", markPaid)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.OrderPaid, got.Status)

	applied, got, err = store.ApplyPaymentEvent(ctx, "evt-1", "o1", func(*domain.Order) error {
		t.Fatal("replayed event must not mutate the order")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.LineConfirmed, got.Lines[0].State)

	pending, err = store.FindPendingOrder(ctx, "acc-1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}
