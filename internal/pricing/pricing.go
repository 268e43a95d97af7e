// Package pricing resolves cart lines into tax-exclusive and tax-inclusive
// amounts. All arithmetic is decimal; rounding to cents happens only in
// ToMinorUnits, when a payment request is built.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

var (
	// StandardTaxRate applies unless the buyer's VAT number is validated.
	StandardTaxRate = decimal.RequireFromString("0.20")
	// ExemptTaxRate applies to buyers with a validated VAT number.
	ExemptTaxRate = decimal.Zero

	hundred = decimal.NewFromInt(100)
)

// Buyer is the pricing-relevant projection of an account.
type Buyer struct {
	IsPro     bool
	VatExempt bool
}

// BuyerOf derives the pricing profile from the current account state.
func BuyerOf(a *domain.Account) Buyer {
	if a == nil {
		return Buyer{}
	}
	return Buyer{IsPro: a.IsPro, VatExempt: a.IsVatExempt()}
}

// Config holds the delivery rules.
type Config struct {
	DeliveryFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// UnitPrice resolves the tax-exclusive unit price of p for the buyer:
// the pro price for professionals when set, else the standard price, then
// the active promotion as a percentage discount.
func UnitPrice(p *domain.Product, b Buyer) decimal.Decimal {
	price := p.Price
	if b.IsPro && p.ProPrice != nil {
		price = *p.ProPrice
	}
	if p.IsPromotion && p.PromotionPct.IsPositive() {
		factor := decimal.NewFromInt(1).Sub(p.PromotionPct.Div(hundred))
		price = price.Mul(factor)
	}
	return price
}

// TaxRate selects the tax rate for the buyer.
func TaxRate(b Buyer) decimal.Decimal {
	if b.VatExempt {
		return ExemptTaxRate
	}
	return StandardTaxRate
}

// PriceLine resolves one (product, quantity) pair.
func PriceLine(p *domain.Product, quantity int, b Buyer) domain.PricedLine {
	rate := TaxRate(b)
	qty := decimal.NewFromInt(int64(quantity))
	unitExcl := UnitPrice(p, b)
	unitIncl := unitExcl.Mul(decimal.NewFromInt(1).Add(rate))

	return domain.PricedLine{
		ProductID:        p.ID,
		Name:             p.Name,
		Quantity:         quantity,
		UnitPriceExclTax: unitExcl,
		TotalExclTax:     unitExcl.Mul(qty),
		UnitPriceInclTax: unitIncl,
		TotalInclTax:     unitIncl.Mul(qty),
		AppliedTaxRate:   rate,
	}
}

// PriceCart resolves every line and computes subtotals and delivery. Lines
// whose product is missing from products are skipped.
func PriceCart(lines []domain.CartLine, products map[string]*domain.Product, b Buyer, cfg Config) *domain.PricingResult {
	res := &domain.PricingResult{
		Lines:           make([]domain.PricedLine, 0, len(lines)),
		SubtotalExclTax: decimal.Zero,
		SubtotalInclTax: decimal.Zero,
		TaxRate:         TaxRate(b),
		ProPricing:      b.IsPro,
	}

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		pl := PriceLine(p, l.Quantity, b)
		res.Lines = append(res.Lines, pl)
		res.SubtotalExclTax = res.SubtotalExclTax.Add(pl.TotalExclTax)
		res.SubtotalInclTax = res.SubtotalInclTax.Add(pl.TotalInclTax)
	}

	res.DeliveryFee = DeliveryFee(res.SubtotalInclTax, cfg)
	res.FreeShipping = len(res.Lines) > 0 && res.DeliveryFee.IsZero()
	res.Total = res.SubtotalInclTax.Add(res.DeliveryFee)
	return res
}

// DeliveryFee returns the flat fee, waived when the tax-inclusive subtotal
// reaches the free-shipping threshold. An empty cart ships nothing.
func DeliveryFee(subtotalInclTax decimal.Decimal, cfg Config) decimal.Decimal {
	if subtotalInclTax.IsZero() {
		return decimal.Zero
	}
	if subtotalInclTax.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.DeliveryFee
}

// CheckMinimumQuantity enforces the professional-only floor of a product.
// A nil rule never blocks.
func CheckMinimumQuantity(isPro bool, productID string, rule *domain.MinimumQuantityRule, quantity int) error {
	if !isPro || rule == nil {
		return nil
	}
	if quantity < rule.MinimumQuantity {
		return &domain.ErrMinimumQuantity{
			ProductID: productID,
			Minimum:   rule.MinimumQuantity,
			Requested: quantity,
		}
	}
	return nil
}

// ToMinorUnits converts euros to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// BuildPaymentRequest converts a priced order into a payment request in cents.
func BuildPaymentRequest(o *domain.Order, currency string) *domain.PaymentRequest {
	req := &domain.PaymentRequest{
		OrderID:     o.ID,
		Currency:    currency,
		Items:       make([]domain.PaymentItem, 0, len(o.Lines)),
		DeliveryFee: ToMinorUnits(o.DeliveryFee),
	}
	var total int64
	for _, l := range o.Lines {
		unit := ToMinorUnits(l.UnitPriceInclTax)
		req.Items = append(req.Items, domain.PaymentItem{
			Name:          l.Name,
			Quantity:      l.Quantity,
			UnitAmountMin: unit,
		})
		total += unit * int64(l.Quantity)
	}
	req.TotalAmount = total + req.DeliveryFee
	return req
}
