package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Catalog
// ============================================================

// Product is a catalog entry. Prices are tax-exclusive euros.
type Product struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	ProPrice     *decimal.Decimal `json:"proPrice,omitempty"`
	IsPromotion  bool             `json:"isPromotion"`
	PromotionPct decimal.Decimal  `json:"promotionPct"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// UpsertProductRequest is the body for PUT /v1/admin/products/{productId}.
type UpsertProductRequest struct {
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	ProPrice     *decimal.Decimal `json:"proPrice,omitempty"`
	IsPromotion  bool             `json:"isPromotion"`
	PromotionPct decimal.Decimal  `json:"promotionPct"`
}

// MinimumQuantityRule is the professional-only order floor of one product.
type MinimumQuantityRule struct {
	ProductID       string    `json:"productId"`
	MinimumQuantity int       `json:"minimumQuantity"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MinimumQuantityRequest is the body for PUT /v1/admin/products/{productId}/minimum-quantity.
type MinimumQuantityRequest struct {
	MinimumQuantity int `json:"minimumQuantity"`
}
