package pricing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func promoProduct() *domain.Product {
	pro := dec("10.00")
	return &domain.Product{
		ID:           "p1",
		Name:         "Brake pads",
		Price:        dec("15.00"),
		ProPrice:     &pro,
		IsPromotion:  true,
		PromotionPct: dec("10"),
	}
}

func TestPriceLine_ProWithoutValidatedVat(t *testing.T) {
	line := pricing.PriceLine(promoProduct(), 2, pricing.Buyer{IsPro: true})

	assert.True(t, line.UnitPriceExclTax.Equal(dec("9.00")), "unit excl: %s", line.UnitPriceExclTax)
	assert.True(t, line.TotalExclTax.Equal(dec("18.00")))
	assert.True(t, line.UnitPriceInclTax.Equal(dec("10.80")))
	assert.True(t, line.TotalInclTax.Equal(dec("21.60")), "total incl: %s", line.TotalInclTax)
	assert.True(t, line.AppliedTaxRate.Equal(dec("0.20")))
}

func TestPriceLine_ProWithValidatedVat(t *testing.T) {
	line := pricing.PriceLine(promoProduct(), 2, pricing.Buyer{IsPro: true, VatExempt: true})

	assert.True(t, line.TotalInclTax.Equal(dec("18.00")), "total incl: %s", line.TotalInclTax)
	assert.True(t, line.AppliedTaxRate.IsZero())
}

func TestUnitPrice_ConsumerUsesStandardPrice(t *testing.T) {
	p := promoProduct()
	assert.True(t, pricing.UnitPrice(p, pricing.Buyer{}).Equal(dec("13.50")))

	p.IsPromotion = false
	assert.True(t, pricing.UnitPrice(p, pricing.Buyer{}).Equal(dec("15.00")))
}

func TestUnitPrice_ProFallsBackToStandardPrice(t *testing.T) {
	p := promoProduct()
	p.ProPrice = nil
	p.IsPromotion = false
	assert.True(t, pricing.UnitPrice(p, pricing.Buyer{IsPro: true}).Equal(dec("15.00")))
}

func TestBuyerOf(t *testing.T) {
	acc := &domain.Account{IsPro: true, Company: &domain.Company{VatStatus: domain.VatStatusValidated}}
	assert.Equal(t, pricing.Buyer{IsPro: true, VatExempt: true}, pricing.BuyerOf(acc))

	acc.Company.VatStatus = domain.VatStatusPendingManual
	assert.Equal(t, pricing.Buyer{IsPro: true}, pricing.BuyerOf(acc))
	assert.Equal(t, pricing.Buyer{}, pricing.BuyerOf(nil))
}

func TestPriceCart_DeliveryFee(t *testing.T) {
	cfg := pricing.Config{DeliveryFee: dec("9.90"), FreeShippingThreshold: dec("100")}
	products := map[string]*domain.Product{"p1": promoProduct()}

	small := pricing.PriceCart([]domain.CartLine{{ProductID: "p1", Quantity: 2}}, products, pricing.Buyer{IsPro: true}, cfg)
	assert.True(t, small.DeliveryFee.Equal(dec("9.90")))
	assert.True(t, small.Total.Equal(dec("31.50")), "total: %s", small.Total)
	assert.False(t, small.FreeShipping)

	big := pricing.PriceCart([]domain.CartLine{{ProductID: "p1", Quantity: 10}, {ProductID: "missing", Quantity: 1}}, products, pricing.Buyer{IsPro: true}, cfg)
	require.Len(t, big.Lines, 1)
	assert.True(t, big.SubtotalInclTax.Equal(dec("108.00")))
	assert.True(t, big.DeliveryFee.IsZero())
	assert.True(t, big.FreeShipping)
}

func TestDeliveryFee_ThresholdInclusive(t *testing.T) {
	cfg := pricing.Config{DeliveryFee: dec("9.90"), FreeShippingThreshold: dec("100")}
	assert.True(t, pricing.DeliveryFee(dec("100.00"), cfg).IsZero())
	assert.True(t, pricing.DeliveryFee(dec("99.99"), cfg).Equal(dec("9.90")))
	assert.True(t, pricing.DeliveryFee(decimal.Zero, cfg).IsZero())
}

func TestCheckMinimumQuantity(t *testing.T) {
	rule := &domain.MinimumQuantityRule{ProductID: "p1", MinimumQuantity: 5}

	err := pricing.CheckMinimumQuantity(true, "p1", rule, 4)
	var mq *domain.ErrMinimumQuantity
	require.True(t, errors.As(err, &mq))
	assert.Equal(t, 5, mq.Minimum)
	assert.Equal(t, 4, mq.Requested)

	assert.NoError(t, pricing.CheckMinimumQuantity(true, "p1", rule, 5))
	assert.NoError(t, pricing.CheckMinimumQuantity(false, "p1", rule, 1))
	assert.NoError(t, pricing.CheckMinimumQuantity(true, "p1", nil, 1))
}

func TestToMinorUnits_RoundHalfUp(t *testing.T) {
	assert.Equal(t, int64(2160), pricing.ToMinorUnits(dec("21.60")))
	assert.Equal(t, int64(1081), pricing.ToMinorUnits(dec("10.805")))
	assert.Equal(t, int64(1080), pricing.ToMinorUnits(dec("10.8049")))
}

func TestBuildPaymentRequest(t *testing.T) {
	line := pricing.PriceLine(promoProduct(), 2, pricing.Buyer{IsPro: true})
	order := &domain.Order{
		ID:          "o1",
		Lines:       []domain.OrderLine{{PricedLine: line, State: domain.LineReserved}},
		DeliveryFee: dec("9.90"),
	}

	req := pricing.BuildPaymentRequest(order, "eur")

	require.Len(t, req.Items, 1)
	assert.Equal(t, int64(1080), req.Items[0].UnitAmountMin)
	assert.Equal(t, int64(990), req.DeliveryFee)
	assert.Equal(t, int64(2160+990), req.TotalAmount)
}
