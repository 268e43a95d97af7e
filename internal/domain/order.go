package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Cart
// ============================================================

// CartLine is a raw (product, quantity) pair. Prices are never stored on it.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AddCartItemRequest is the body for POST /v1/cart/items.
type AddCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// UpdateCartItemRequest is the body for PUT /v1/cart/items/{productId}.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// PricedLine is a cart line resolved against current product and account state.
type PricedLine struct {
	ProductID        string          `json:"productId"`
	Name             string          `json:"name"`
	Quantity         int             `json:"quantity"`
	UnitPriceExclTax decimal.Decimal `json:"unitPriceExclTax"`
	TotalExclTax     decimal.Decimal `json:"totalExclTax"`
	UnitPriceInclTax decimal.Decimal `json:"unitPriceInclTax"`
	TotalInclTax     decimal.Decimal `json:"totalInclTax"`
	AppliedTaxRate   decimal.Decimal `json:"appliedTaxRate"`
}

// PricingResult is the priced view of a whole cart.
type PricingResult struct {
	Lines           []PricedLine    `json:"lines"`
	SubtotalExclTax decimal.Decimal `json:"subtotalExclTax"`
	SubtotalInclTax decimal.Decimal `json:"subtotalInclTax"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	Total           decimal.Decimal `json:"total"`
	FreeShipping    bool            `json:"freeShipping"`
	ProPricing      bool            `json:"proPricing"`
}

// ============================================================
// Orders
// ============================================================

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// IsTerminal reports whether no further payment event may change the order.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderPending
}

// LineState is the checkout state of one order line.
type LineState string

const (
	LineQuoted    LineState = "quoted"
	LineReserved  LineState = "reserved"
	LineConfirmed LineState = "confirmed"
	LineReleased  LineState = "released"
)

// OrderLine is a priced line frozen at checkout.
type OrderLine struct {
	PricedLine
	State LineState `json:"state"`
}

// Order is a checkout attempt holding reserved lines until payment resolves.
type Order struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Status       OrderStatus     `json:"status"`
	Lines        []OrderLine     `json:"lines"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	SubtotalExcl decimal.Decimal `json:"subtotalExclTax"`
	SubtotalIncl decimal.Decimal `json:"subtotalInclTax"`
	DeliveryFee  decimal.Decimal `json:"deliveryFee"`
	Total        decimal.Decimal `json:"total"`
	PaymentRef   string          `json:"paymentRef,omitempty"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// SetLineState moves every line of the order to state.
func (o *Order) SetLineState(state LineState) {
	for i := range o.Lines {
		o.Lines[i].State = state
	}
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	return &cp
}

// CheckoutResponse is returned by POST /v1/checkout.
type CheckoutResponse struct {
	Order      *Order `json:"order"`
	PaymentRef string `json:"paymentRef"`
	PaymentURL string `json:"paymentUrl,omitempty"`
}

// ============================================================
// Payment boundary
// ============================================================

// PaymentItem is one line of a payment request, in minor currency units.
type PaymentItem struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	UnitAmountMin int64  `json:"unitAmount"`
}

// PaymentRequest is handed to the payment provider. Amounts are cents.
type PaymentRequest struct {
	OrderID     string        `json:"orderId"`
	Currency    string        `json:"currency"`
	Items       []PaymentItem `json:"items"`
	DeliveryFee int64         `json:"deliveryFee"`
	TotalAmount int64         `json:"totalAmount"`
}

// PaymentSession is the provider's answer to a payment request.
type PaymentSession struct {
	Reference string `json:"reference"`
	URL       string `json:"url,omitempty"`
}

// PaymentEventType is the kind of payment webhook notification.
type PaymentEventType string

const (
	PaymentPaid    PaymentEventType = "paid"
	PaymentFailed  PaymentEventType = "failed"
	PaymentExpired PaymentEventType = "expired"
)

// PaymentEvent is the body of POST /v1/payments/webhook.
type PaymentEvent struct {
	EventID string           `json:"eventId"`
	OrderID string           `json:"orderId"`
	Type    PaymentEventType `json:"type"`
}

// PaymentEventResult reports how a webhook event was handled.
type PaymentEventResult struct {
	Applied bool        `json:"applied"`
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
}
